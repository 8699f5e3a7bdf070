package metrics

// Collector is the write-plus-read surface consumed by the tool handlers.
// Store is the only implementation; the interface exists so handlers can be
// tested against a stub.
type Collector interface {
	// RecordTask logs a finished operation.
	RecordTask(task TaskRecord)

	// GetTaskMetrics returns aggregate counters and per-type statistics.
	GetTaskMetrics() TaskMetrics

	// GetRecentTasks returns up to limit records, most recent first.
	GetRecentTasks(limit int) []TaskRecord

	// UpdateBackendStatus stores a backend reachability snapshot.
	UpdateBackendStatus(status BackendStatus)

	// GetBackendStatus returns one backend snapshot by name.
	GetBackendStatus(name string) (BackendStatus, bool)

	// GetAllBackendStatuses returns every known backend snapshot.
	GetAllBackendStatuses() []BackendStatus

	// GetSystemStatus returns the overall health summary.
	GetSystemStatus() SystemStatus
}
