// Package metrics tracks generation task outcomes and backend health so the
// status tools can report what the server has been doing.
package metrics

import "time"

// TaskRecord is a single completed (or failed) operation.
type TaskRecord struct {
	// ID is the correlation id assigned when the operation started.
	ID string `json:"id"`

	// Type identifies the kind of operation, one of the Task* constants.
	Type string `json:"type"`

	// Status is "success", "error", or "processing".
	Status string `json:"status"`

	// Prompt is the text prompt, when the operation had one.
	Prompt string `json:"prompt,omitempty"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time,omitempty"`
	Duration  time.Duration `json:"duration"`

	// ErrorMsg carries the failure detail when Status is "error".
	ErrorMsg string `json:"error_msg,omitempty"`
}

// BackendStatus is the last known reachability of one backend service.
type BackendStatus struct {
	// Name is "blender", "stable_diffusion", or "hunyuan3d".
	Name string `json:"name"`

	// URL or address the backend is expected at.
	URL string `json:"url"`

	Available bool      `json:"available"`
	LastCheck time.Time `json:"last_check"`

	// Detail holds extra state, e.g. the Blender socket state name.
	Detail string `json:"detail,omitempty"`
}

// SystemStatus is the overall health summary.
type SystemStatus struct {
	Health    string        `json:"health"`
	Version   string        `json:"version"`
	Uptime    time.Duration `json:"uptime"`
	LastCheck time.Time     `json:"last_check"`
}

// TaskMetrics is the aggregate view over everything recorded so far.
type TaskMetrics struct {
	TotalProcessed int64                       `json:"total_processed"`
	TotalSuccess   int64                       `json:"total_success"`
	TotalErrors    int64                       `json:"total_errors"`
	ByType         map[string]*TaskTypeMetrics `json:"by_type"`
}

// TaskTypeMetrics is the per-type slice of TaskMetrics.
type TaskTypeMetrics struct {
	Count       int64         `json:"count"`
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// Status values for TaskRecord.
const (
	TaskStatusSuccess    = "success"
	TaskStatusError      = "error"
	TaskStatusProcessing = "processing"
)

// Health values for SystemStatus.
const (
	SystemHealthRunning = "running"
	SystemHealthError   = "error"
	SystemHealthStopped = "stopped"
)

// Task types.
const (
	TaskTypeTxt2Img      = "txt2img"
	TaskTypeImg2Img      = "img2img"
	TaskTypeHunyuan3D    = "hunyuan3d"
	TaskTypeRodin        = "rodin"
	TaskTypeAddonCommand = "addon_command"
	TaskTypeWorkflow     = "workflow"
)

// Backend names.
const (
	BackendBlender         = "blender"
	BackendStableDiffusion = "stable_diffusion"
	BackendHunyuan3D       = "hunyuan3d"
)
