package workflow

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blender_mcp/hunyuan"
	"blender_mcp/logging"
	"blender_mcp/optimizer"
	"blender_mcp/sdapi"
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageInitialization  Stage = "initialization"
	StageImageGeneration Stage = "image_generation"
	StageModelCreation   Stage = "model_creation"
	StageSceneAssembly   Stage = "scene_assembly"
	StageOptimization    Stage = "optimization"
	StageFinalization    Stage = "finalization"
	StageCompleted       Stage = "completed"
	StageFailed          Stage = "failed"
)

// ImageBackend generates images.
type ImageBackend interface {
	Txt2Img(ctx context.Context, req *sdapi.Txt2ImgRequest) (*sdapi.GenerationResponse, error)
}

// ModelBackend turns an image into a 3D model.
type ModelBackend interface {
	Generate(ctx context.Context, req *hunyuan.GenerateRequest) ([]byte, error)
}

// BlenderBackend is the slice of the addon protocol the workflow needs.
type BlenderBackend interface {
	ImportHunyuan3DModel(ctx context.Context, name, modelBase64 string) (json.RawMessage, error)
	CreateRodinJob(ctx context.Context, textPrompt string, images []any, bboxCondition []int) (json.RawMessage, error)
	PollRodinJobStatus(ctx context.Context, subscriptionKey, requestID string) (json.RawMessage, error)
	ImportGeneratedAsset(ctx context.Context, name, taskUUID, requestID string) (json.RawMessage, error)
	ExecuteCode(ctx context.Context, code string) (json.RawMessage, error)
}

// Backends bundles everything Execute talks to. Fields may be nil when the
// corresponding capability is down; the stage that needs one fails cleanly.
type Backends struct {
	Images  ImageBackend
	Models  ModelBackend
	Blender BlenderBackend
}

// StageResult records how one stage went.
type StageResult struct {
	Stage    Stage         `json:"stage"`
	Success  bool          `json:"success"`
	Files    []string      `json:"files,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result is the outcome of a full run.
type Result struct {
	Success        bool               `json:"success"`
	Stage          Stage              `json:"stage"`
	CorrelationID  string             `json:"correlation_id"`
	GeneratedFiles []string           `json:"generated_files"`
	ExecutionTime  time.Duration      `json:"execution_time"`
	ErrorMessage   string             `json:"error_message,omitempty"`
	StageResults   []StageResult      `json:"stage_results"`
	Metrics        map[string]float64 `json:"performance_metrics,omitempty"`
}

// Manager drives one workflow run. Not safe for concurrent reuse; build a
// new Manager per run.
type Manager struct {
	config   Config
	backends Backends
	logger   *logging.Logger

	correlationID string

	// mu guards currentStage, which status handlers read while Execute runs.
	mu           sync.Mutex
	currentStage Stage

	stageResults []StageResult

	// pollInterval paces Rodin job polling. Tests shrink it.
	pollInterval time.Duration
	pollDeadline time.Duration
}

// NewManager creates a Manager for one run.
func NewManager(config Config, backends Backends, logger *logging.Logger) *Manager {
	return &Manager{
		config:        config,
		backends:      backends,
		logger:        logger.Named("workflow"),
		correlationID: uuid.NewString(),
		currentStage:  StageInitialization,
		pollInterval:  5 * time.Second,
		pollDeadline:  10 * time.Minute,
	}
}

// CorrelationID identifies this run in logs and history records.
func (m *Manager) CorrelationID() string {
	return m.correlationID
}

// CurrentStage returns the stage the run is in. Safe to call from another
// goroutine while Execute runs.
func (m *Manager) CurrentStage() Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentStage
}

func (m *Manager) setStage(stage Stage) {
	m.mu.Lock()
	m.currentStage = stage
	m.mu.Unlock()
}

// Execute runs every stage in order. Image generation, model creation, and
// scene assembly are fatal when they fail; optimization and finalization
// are best-effort.
func (m *Manager) Execute(ctx context.Context) Result {
	start := time.Now()
	m.logger.Info("workflow started",
		zap.String("correlation_id", m.correlationID),
		zap.String("description", m.config.SceneDescription),
		zap.String("method", string(m.config.Method)))

	if err := m.runStage(StageInitialization, m.stageInitialization); err != nil {
		return m.failure(start, "initialization failed", err)
	}

	imagePath, err := m.stageImageGenerationWrapped(ctx)
	if err != nil {
		return m.failure(start, "image generation failed", err)
	}

	objectName, modelFiles, err := m.stageModelCreationWrapped(ctx, imagePath)
	if err != nil {
		return m.failure(start, "3D model creation failed", err)
	}

	if objectName != "" {
		if err := m.runStage(StageSceneAssembly, func() error {
			return m.stageSceneAssembly(ctx, objectName)
		}); err != nil {
			return m.failure(start, "scene assembly failed", err)
		}

		// Best effort from here on.
		m.runStage(StageOptimization, func() error {
			return m.stageOptimization(ctx, objectName)
		})
	}

	var generated []string
	if imagePath != "" {
		generated = append(generated, imagePath)
	}
	generated = append(generated, modelFiles...)

	m.runStage(StageFinalization, func() error {
		reportPath, err := m.writeReport(generated, time.Since(start))
		if err != nil {
			return err
		}
		generated = append(generated, reportPath)
		return nil
	})

	m.setStage(StageCompleted)
	elapsed := time.Since(start)
	m.logger.Info("workflow completed",
		zap.String("correlation_id", m.correlationID),
		zap.Duration("elapsed", elapsed),
		zap.Int("files", len(generated)))

	return Result{
		Success:        true,
		Stage:          StageCompleted,
		CorrelationID:  m.correlationID,
		GeneratedFiles: generated,
		ExecutionTime:  elapsed,
		StageResults:   m.stageResults,
		Metrics:        m.performanceMetrics(elapsed),
	}
}

func (m *Manager) runStage(stage Stage, fn func() error) error {
	m.setStage(stage)
	stageStart := time.Now()
	err := fn()

	result := StageResult{
		Stage:    stage,
		Success:  err == nil,
		Duration: time.Since(stageStart),
	}
	if err != nil {
		result.Error = err.Error()
		m.logger.Warn("stage failed",
			zap.String("stage", string(stage)),
			zap.Error(err))
	} else {
		m.logger.Debug("stage complete",
			zap.String("stage", string(stage)),
			zap.Duration("elapsed", result.Duration))
	}
	m.stageResults = append(m.stageResults, result)
	return err
}

func (m *Manager) recordStageFiles(files ...string) {
	if n := len(m.stageResults); n > 0 {
		m.stageResults[n-1].Files = append(m.stageResults[n-1].Files, files...)
	}
}

func (m *Manager) stageInitialization() error {
	if err := m.config.Validate(); err != nil {
		return err
	}
	return os.MkdirAll(m.config.OutputDirectory, 0o755)
}

func (m *Manager) stageImageGenerationWrapped(ctx context.Context) (string, error) {
	// Text-only Rodin jobs never need an image.
	if m.config.Method == MethodHyper3DText {
		return "", nil
	}

	var imagePath string
	err := m.runStage(StageImageGeneration, func() error {
		path, err := m.stageImageGeneration(ctx)
		imagePath = path
		return err
	})
	return imagePath, err
}

func (m *Manager) stageImageGeneration(ctx context.Context) (string, error) {
	if m.backends.Images == nil {
		return "", fmt.Errorf("stable diffusion backend is not available")
	}

	params := m.imageParams()
	req := &sdapi.Txt2ImgRequest{
		Prompt:            m.config.SceneDescription,
		NegativePrompt:    "blurry, low quality, distorted, deformed",
		Width:             params.Width,
		Height:            params.Height,
		Steps:             params.Steps,
		CFGScale:          params.CFGScale,
		SamplerName:       params.SamplerName,
		Seed:              -1,
		BatchSize:         1,
		NIter:             1,
		EnableHR:          params.EnableHR,
		HRScale:           params.HRScale,
		DenoisingStrength: params.DenoisingStrength,
	}

	resp, err := m.backends.Images.Txt2Img(ctx, req)
	if err != nil {
		return "", err
	}

	prefix := "workflow_" + shortID(m.correlationID)
	saved, err := sdapi.SaveImages(resp, m.config.OutputDirectory, prefix, req)
	if err != nil {
		return "", err
	}
	if len(saved) == 0 {
		return "", fmt.Errorf("no images saved")
	}

	m.recordStageFiles(saved[0].Path)
	return saved[0].Path, nil
}

// imageParams resolves the image generation parameters, routing through the
// optimizer when a goal is configured.
func (m *Manager) imageParams() optimizer.Params {
	if m.config.OptimizationGoal != "" {
		result := optimizer.Optimize(optimizer.Context{
			Goal:         optimizer.ParseGoal(m.config.OptimizationGoal),
			Hardware:     optimizer.ParseHardware(m.config.HardwareProfile),
			ImageType:    optimizer.ClassifyPrompt(m.config.SceneDescription),
			TargetWidth:  m.config.ImageWidth,
			TargetHeight: m.config.ImageHeight,
		})
		return result.Params
	}

	return optimizer.Params{
		Steps:             m.config.ImageSteps,
		CFGScale:          m.config.ImageCFGScale,
		SamplerName:       "DPM++ 2M Karras",
		Width:             m.config.ImageWidth,
		Height:            m.config.ImageHeight,
		EnableHR:          m.config.EnableHR,
		HRScale:           m.config.HRScale,
		DenoisingStrength: 0.7,
		BatchSize:         1,
		NIter:             1,
	}
}

func (m *Manager) stageModelCreationWrapped(ctx context.Context, imagePath string) (string, []string, error) {
	if m.config.Method == MethodStableDiffusion {
		return "", nil, nil
	}

	var objectName string
	var files []string
	err := m.runStage(StageModelCreation, func() error {
		name, stageFiles, err := m.stageModelCreation(ctx, imagePath)
		objectName, files = name, stageFiles
		return err
	})
	return objectName, files, err
}

func (m *Manager) stageModelCreation(ctx context.Context, imagePath string) (string, []string, error) {
	objectName := "Workflow_" + shortID(m.correlationID)

	switch m.config.Method {
	case MethodHunyuan3D:
		return m.createHunyuanModel(ctx, imagePath, objectName)
	case MethodHyper3DImage:
		return m.createRodinModel(ctx, imagePath, objectName)
	case MethodHyper3DText:
		return m.createRodinModel(ctx, "", objectName)
	default:
		return "", nil, fmt.Errorf("unsupported generation method %q", m.config.Method)
	}
}

func (m *Manager) createHunyuanModel(ctx context.Context, imagePath, objectName string) (string, []string, error) {
	if m.backends.Models == nil {
		return "", nil, fmt.Errorf("hunyuan3d backend is not available")
	}
	if m.backends.Blender == nil {
		return "", nil, fmt.Errorf("blender is not available")
	}

	imageBase64, err := sdapi.EncodeImageFile(imagePath)
	if err != nil {
		return "", nil, err
	}

	req := hunyuan.DefaultGenerateRequest()
	req.Image = imageBase64
	req.RemoveBackground = m.config.RemoveBackground
	req.Texture = m.config.TextureEnabled
	req.Seed = m.config.ModelSeed

	model, err := m.backends.Models.Generate(ctx, &req)
	if err != nil {
		return "", nil, err
	}

	var files []string
	if m.config.SaveIntermediate {
		modelPath := filepath.Join(m.config.OutputDirectory, objectName+".glb")
		if err := os.WriteFile(modelPath, model, 0o644); err != nil {
			return "", nil, fmt.Errorf("save model: %w", err)
		}
		files = append(files, modelPath)
		m.recordStageFiles(modelPath)
	}

	modelBase64 := base64.StdEncoding.EncodeToString(model)
	if _, err := m.backends.Blender.ImportHunyuan3DModel(ctx, objectName, modelBase64); err != nil {
		return "", nil, fmt.Errorf("import model into blender: %w", err)
	}

	return objectName, files, nil
}

func (m *Manager) createRodinModel(ctx context.Context, imagePath, objectName string) (string, []string, error) {
	if m.backends.Blender == nil {
		return "", nil, fmt.Errorf("blender is not available")
	}

	var textPrompt string
	var images []any
	if imagePath == "" {
		textPrompt = m.config.SceneDescription
	} else {
		encoded, err := sdapi.EncodeImageFile(imagePath)
		if err != nil {
			return "", nil, err
		}
		images = []any{encoded}
	}

	raw, err := m.backends.Blender.CreateRodinJob(ctx, textPrompt, images, nil)
	if err != nil {
		return "", nil, fmt.Errorf("create rodin job: %w", err)
	}

	job, err := parseRodinJob(raw)
	if err != nil {
		return "", nil, err
	}

	if err := m.waitForRodinJob(ctx, job); err != nil {
		return "", nil, err
	}

	if _, err := m.backends.Blender.ImportGeneratedAsset(ctx, objectName, job.taskUUID, job.requestID); err != nil {
		return "", nil, fmt.Errorf("import rodin asset: %w", err)
	}
	return objectName, nil, nil
}

// rodinJob holds the identifiers the two Rodin modes hand back.
type rodinJob struct {
	taskUUID        string
	subscriptionKey string
	requestID       string
}

func parseRodinJob(raw json.RawMessage) (rodinJob, error) {
	var payload struct {
		UUID            string `json:"uuid"`
		SubscriptionKey string `json:"subscription_key"`
		RequestID       string `json:"request_id"`
		Jobs            struct {
			SubscriptionKey string `json:"subscription_key"`
		} `json:"jobs"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return rodinJob{}, fmt.Errorf("decode rodin job response: %w", err)
	}

	job := rodinJob{
		taskUUID:        payload.UUID,
		subscriptionKey: payload.SubscriptionKey,
		requestID:       payload.RequestID,
	}
	if job.subscriptionKey == "" {
		job.subscriptionKey = payload.Jobs.SubscriptionKey
	}
	if job.subscriptionKey == "" && job.requestID == "" {
		return rodinJob{}, fmt.Errorf("rodin job response carries no job identifier")
	}
	return job, nil
}

func (m *Manager) waitForRodinJob(ctx context.Context, job rodinJob) error {
	deadline := time.Now().Add(m.pollDeadline)

	for {
		raw, err := m.backends.Blender.PollRodinJobStatus(ctx, job.subscriptionKey, job.requestID)
		if err != nil {
			return fmt.Errorf("poll rodin job: %w", err)
		}

		done, failed := rodinJobState(raw)
		if failed {
			return fmt.Errorf("rodin job failed")
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("rodin job did not finish within %s", m.pollDeadline)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}
}

// rodinJobState interprets both poll shapes: MAIN_SITE returns a
// status_list that is all "Done" on success, FAL_AI a single status string.
func rodinJobState(raw json.RawMessage) (done, failed bool) {
	var payload struct {
		StatusList []string `json:"status_list"`
		Status     string   `json:"status"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return false, false
	}

	if len(payload.StatusList) > 0 {
		allDone := true
		for _, s := range payload.StatusList {
			switch s {
			case "Failed":
				return false, true
			case "Done":
			default:
				allDone = false
			}
		}
		return allDone, false
	}

	switch payload.Status {
	case "COMPLETED":
		return true, false
	case "FAILED", "ERROR":
		return false, true
	}
	return false, false
}

func (m *Manager) stageSceneAssembly(ctx context.Context, objectName string) error {
	if m.backends.Blender == nil {
		return fmt.Errorf("blender is not available")
	}
	_, err := m.backends.Blender.ExecuteCode(ctx, sceneAssemblyScript(objectName))
	return err
}

func (m *Manager) stageOptimization(ctx context.Context, objectName string) error {
	_, err := m.backends.Blender.ExecuteCode(ctx, polishScript(objectName))
	return err
}

func (m *Manager) writeReport(generated []string, elapsed time.Duration) (string, error) {
	report := map[string]any{
		"correlation_id": m.correlationID,
		"config":         m.config,
		"execution_summary": map[string]any{
			"success":              true,
			"final_stage":          string(m.currentStage),
			"total_execution_time": elapsed.Seconds(),
		},
		"stage_results":       m.stageResults,
		"generated_files":     generated,
		"performance_metrics": m.performanceMetrics(elapsed),
		"generated_at":        time.Now().Format(time.RFC3339),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal workflow report: %w", err)
	}

	path := filepath.Join(m.config.OutputDirectory, "workflow_report_"+shortID(m.correlationID)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write workflow report: %w", err)
	}
	m.recordStageFiles(path)
	return path, nil
}

func (m *Manager) performanceMetrics(elapsed time.Duration) map[string]float64 {
	metrics := map[string]float64{
		"total_execution_time": elapsed.Seconds(),
	}
	succeeded := 0
	for _, result := range m.stageResults {
		metrics["stage_"+string(result.Stage)+"_seconds"] = result.Duration.Seconds()
		if result.Success {
			succeeded++
		}
	}
	if len(m.stageResults) > 0 {
		metrics["average_stage_time"] = elapsed.Seconds() / float64(len(m.stageResults))
		metrics["stage_success_rate"] = float64(succeeded) / float64(len(m.stageResults))
	}
	return metrics
}

func (m *Manager) failure(start time.Time, message string, err error) Result {
	m.setStage(StageFailed)
	elapsed := time.Since(start)
	m.logger.Error("workflow failed",
		zap.String("correlation_id", m.correlationID),
		zap.String("message", message),
		zap.Error(err))

	return Result{
		Success:       false,
		Stage:         StageFailed,
		CorrelationID: m.correlationID,
		ExecutionTime: elapsed,
		ErrorMessage:  fmt.Sprintf("%s: %v", message, err),
		StageResults:  m.stageResults,
		Metrics:       m.performanceMetrics(elapsed),
	}
}

func shortID(correlationID string) string {
	if len(correlationID) > 8 {
		return correlationID[:8]
	}
	return correlationID
}
