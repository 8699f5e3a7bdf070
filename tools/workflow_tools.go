package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"blender_mcp/metrics"
	"blender_mcp/shutdown"
	"blender_mcp/workflow"
)

func (s *Server) registerWorkflowTools() {
	s.mcp.AddTool(mcp.NewTool("execute_text_to_3d_workflow",
		mcp.WithDescription("Run the full text-to-3D pipeline: generate an image, turn it into a model, import it into Blender, and assemble a scene around it"),
		mcp.WithString("description", mcp.Required(),
			mcp.Description("Description of the scene or object to create")),
		mcp.WithString("preset",
			mcp.Description("Workflow preset: fast, balanced, quality, creative"),
			mcp.DefaultString("quality")),
		mcp.WithString("method",
			mcp.Description("Model generation method: hunyuan3d, hyper3d_text, hyper3d_image, stable_diffusion")),
	), s.handleExecuteWorkflow)

	s.mcp.AddTool(mcp.NewTool("create_3d_scene_from_text",
		mcp.WithDescription("Create a 3D scene from a text description using the default quality pipeline"),
		mcp.WithString("description", mcp.Required(),
			mcp.Description("Description of the scene to create")),
		mcp.WithString("method",
			mcp.Description("Model generation method: hunyuan3d, hyper3d_text, hyper3d_image"),
			mcp.DefaultString("hunyuan3d")),
	), s.handleCreateScene)

	s.mcp.AddTool(mcp.NewTool("create_enhanced_3d_scene",
		mcp.WithDescription("Create a 3D scene with optimizer-driven image parameters tuned for a goal and hardware tier"),
		mcp.WithString("description", mcp.Required(),
			mcp.Description("Description of the scene to create")),
		mcp.WithString("optimization_goal",
			mcp.Description("Optimization goal: quality, speed, balanced, memory, artistic"),
			mcp.DefaultString("quality")),
		mcp.WithString("hardware_profile",
			mcp.Description("Hardware tier: low, medium, high, ultra"),
			mcp.DefaultString("medium")),
	), s.handleCreateEnhancedScene)

	s.mcp.AddTool(mcp.NewTool("get_workflow_presets",
		mcp.WithDescription("List the built-in workflow presets and their settings"),
	), s.handleWorkflowPresets)

	s.mcp.AddTool(mcp.NewTool("create_custom_workflow",
		mcp.WithDescription("Run a workflow with explicit settings, or load them from a YAML config file"),
		mcp.WithString("description",
			mcp.Description("Description of the scene, required unless config_path is given")),
		mcp.WithString("config_path",
			mcp.Description("Path of a YAML workflow config; other parameters override it")),
		mcp.WithString("method"),
		mcp.WithNumber("image_width"),
		mcp.WithNumber("image_height"),
		mcp.WithNumber("image_steps"),
		mcp.WithNumber("image_cfg_scale"),
		mcp.WithBoolean("enable_hr"),
		mcp.WithBoolean("remove_background"),
		mcp.WithBoolean("texture_enabled"),
		mcp.WithNumber("model_seed"),
		mcp.WithString("optimization_goal"),
		mcp.WithString("hardware_profile"),
	), s.handleCustomWorkflow)

	s.mcp.AddTool(mcp.NewTool("get_workflow_status",
		mcp.WithDescription("Get the status of a workflow run by correlation id, or an overall system status when no id is given"),
		mcp.WithString("correlation_id",
			mcp.Description("The correlation id returned when the workflow was started")),
	), s.handleWorkflowStatus)
}

func (s *Server) handleExecuteWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	description, err := req.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	config := workflow.PresetConfig(req.GetString("preset", "quality"), description)
	if method := req.GetString("method", ""); method != "" {
		config.Method = workflow.Method(method)
	}
	return s.runWorkflow(ctx, config)
}

func (s *Server) handleCreateScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	description, err := req.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	config := workflow.DefaultConfig(description)
	config.Method = workflow.Method(req.GetString("method", "hunyuan3d"))
	return s.runWorkflow(ctx, config)
}

func (s *Server) handleCreateEnhancedScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	description, err := req.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	config := workflow.DefaultConfig(description)
	config.OptimizationGoal = req.GetString("optimization_goal", "quality")
	config.HardwareProfile = req.GetString("hardware_profile", "medium")
	return s.runWorkflow(ctx, config)
}

func (s *Server) handleWorkflowPresets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	b.WriteString("Workflow presets:\n")
	for _, name := range workflow.PresetNames() {
		config := workflow.PresetConfig(name, "")
		fmt.Fprintf(&b, "- %s: %dx%d, %d steps, cfg %.1f, hr %v, goal %s\n",
			name, config.ImageWidth, config.ImageHeight, config.ImageSteps,
			config.ImageCFGScale, config.EnableHR, config.OptimizationGoal)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleCustomWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var config workflow.Config
	if path := req.GetString("config_path", ""); path != "" {
		loaded, err := workflow.LoadConfigFile(path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		config = loaded
	} else {
		description, err := req.RequireString("description")
		if err != nil {
			return mcp.NewToolResultError("provide a description or a config_path"), nil
		}
		config = workflow.DefaultConfig(description)
	}

	if v := req.GetString("description", ""); v != "" {
		config.SceneDescription = v
	}
	if v := req.GetString("method", ""); v != "" {
		config.Method = workflow.Method(v)
	}
	if v := req.GetInt("image_width", 0); v > 0 {
		config.ImageWidth = v
	}
	if v := req.GetInt("image_height", 0); v > 0 {
		config.ImageHeight = v
	}
	if v := req.GetInt("image_steps", 0); v > 0 {
		config.ImageSteps = v
	}
	if v := req.GetFloat("image_cfg_scale", 0); v > 0 {
		config.ImageCFGScale = v
	}
	config.EnableHR = req.GetBool("enable_hr", config.EnableHR)
	config.RemoveBackground = req.GetBool("remove_background", config.RemoveBackground)
	config.TextureEnabled = req.GetBool("texture_enabled", config.TextureEnabled)
	if v := req.GetInt("model_seed", 0); v != 0 {
		config.ModelSeed = v
	}
	if v := req.GetString("optimization_goal", ""); v != "" {
		config.OptimizationGoal = v
	}
	if v := req.GetString("hardware_profile", ""); v != "" {
		config.HardwareProfile = v
	}

	if err := config.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.runWorkflow(ctx, config)
}

// runWorkflow executes one run synchronously and records it so
// get_workflow_status can answer for it later.
func (s *Server) runWorkflow(ctx context.Context, config workflow.Config) (*mcp.CallToolResult, error) {
	if config.OutputDirectory == "" || config.OutputDirectory == "./output" {
		config.OutputDirectory = s.deps.Config.OutputDir
	}

	manager := workflow.NewManager(config, workflow.Backends{
		Images:  s.deps.SD,
		Models:  s.deps.Hunyuan,
		Blender: s.deps.Blender,
	}, s.deps.Logger)

	run := &workflowRun{
		description: config.SceneDescription,
		startedAt:   time.Now(),
		manager:     manager,
	}
	s.mu.Lock()
	s.workflowRuns[manager.CorrelationID()] = run
	s.mu.Unlock()

	start := time.Now()
	var result workflow.Result
	opErr := s.deps.Manager.WrapOperation(ctx, "workflow", func(ctx context.Context) error {
		result = manager.Execute(ctx)
		if !result.Success {
			return fmt.Errorf("workflow stopped at %s: %s", result.Stage, result.ErrorMessage)
		}
		return nil
	})

	s.mu.Lock()
	run.result = &result
	s.mu.Unlock()

	paramsJSON, _ := json.Marshal(config)
	s.track(ctx, metrics.TaskTypeWorkflow, manager.CorrelationID(),
		config.SceneDescription, string(paramsJSON), start,
		firstFile(result.GeneratedFiles), int64(config.ModelSeed), opErr)

	if opErr != nil {
		if errors.Is(opErr, shutdown.ErrTrackerClosed) {
			return mcp.NewToolResultError("server is shutting down"), nil
		}
		return errorText("running workflow", opErr), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Workflow %s completed in %s.\n",
		manager.CorrelationID(), result.ExecutionTime.Round(time.Second))
	if len(result.GeneratedFiles) > 0 {
		fmt.Fprintf(&b, "Generated files:\n")
		for _, file := range result.GeneratedFiles {
			fmt.Fprintf(&b, "- %s\n", file)
		}
	}
	for _, stage := range result.StageResults {
		mark := "ok"
		if !stage.Success {
			mark = "failed: " + stage.Error
		}
		fmt.Fprintf(&b, "%s: %s (%s)\n", stage.Stage, mark, stage.Duration.Round(time.Millisecond))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleWorkflowStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if id := req.GetString("correlation_id", ""); id != "" {
		s.mu.Lock()
		run, ok := s.workflowRuns[id]
		s.mu.Unlock()
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("no workflow run with correlation id %q", id)), nil
		}

		if run.result == nil {
			return mcp.NewToolResultText(fmt.Sprintf(
				"Workflow %s is running, stage %s, started %s ago.\nDescription: %s",
				id, run.manager.CurrentStage(), time.Since(run.startedAt).Round(time.Second),
				run.description)), nil
		}
		encoded, _ := json.MarshalIndent(run.result, "", "  ")
		return mcp.NewToolResultText(string(encoded)), nil
	}

	status := s.deps.Metrics.GetSystemStatus()
	taskMetrics := s.deps.Metrics.GetTaskMetrics()
	recent := s.deps.Metrics.GetRecentTasks(5)

	var b strings.Builder
	fmt.Fprintf(&b, "System %s, version %s, up %s.\n",
		status.Health, status.Version, status.Uptime.Round(time.Second))
	fmt.Fprintf(&b, "Tasks: %d processed, %d succeeded, %d failed.\n",
		taskMetrics.TotalProcessed, taskMetrics.TotalSuccess, taskMetrics.TotalErrors)
	for name, typeMetrics := range taskMetrics.ByType {
		fmt.Fprintf(&b, "- %s: %d runs, %.0f%% success, avg %s\n",
			name, typeMetrics.Count, typeMetrics.SuccessRate,
			typeMetrics.AvgDuration.Round(time.Millisecond))
	}
	for _, backend := range s.deps.Metrics.GetAllBackendStatuses() {
		state := "down"
		if backend.Available {
			state = "up"
		}
		fmt.Fprintf(&b, "Backend %s (%s): %s\n", backend.Name, backend.URL, state)
	}
	if len(recent) > 0 {
		b.WriteString("Recent tasks:\n")
		for _, task := range recent {
			fmt.Fprintf(&b, "- %s %s %s (%s)\n",
				task.StartTime.Format(time.RFC3339), task.Type, task.Status,
				task.Duration.Round(time.Millisecond))
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func firstFile(files []string) string {
	if len(files) == 0 {
		return ""
	}
	return files[0]
}
