package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"blender_mcp/metrics"
	"blender_mcp/optimizer"
	"blender_mcp/sdapi"
)

func (s *Server) registerOptimizerTools() {
	s.mcp.AddTool(mcp.NewTool("get_sd_presets",
		mcp.WithDescription("List the built-in Stable Diffusion parameter presets, or show one preset in detail"),
		mcp.WithString("name",
			mcp.Description("Optional preset name to show in detail")),
	), s.handleGetPresets)

	s.mcp.AddTool(mcp.NewTool("optimize_sd_parameters",
		mcp.WithDescription("Compute Stable Diffusion parameters for a goal and hardware tier, with time and memory estimates"),
		mcp.WithString("goal",
			mcp.Description("Optimization goal: quality, speed, balanced, memory, artistic"),
			mcp.DefaultString("balanced")),
		mcp.WithString("hardware",
			mcp.Description("Hardware tier: low, medium, high, ultra"),
			mcp.DefaultString("medium")),
		mcp.WithString("image_type",
			mcp.Description("Image type hint: general, portrait, landscape, artistic"),
			mcp.DefaultString("general")),
		mcp.WithNumber("time_budget_seconds",
			mcp.Description("Optional upper bound on the estimated generation time")),
		mcp.WithNumber("target_width"),
		mcp.WithNumber("target_height"),
	), s.handleOptimizeParameters)

	s.mcp.AddTool(mcp.NewTool("quick_sd_optimize",
		mcp.WithDescription("Optimize Stable Diffusion parameters from a prompt alone, classifying the image type automatically"),
		mcp.WithString("prompt", mcp.Required(),
			mcp.Description("The prompt the parameters will be used with")),
		mcp.WithString("goal", mcp.DefaultString("balanced")),
		mcp.WithString("hardware", mcp.DefaultString("medium")),
	), s.handleQuickOptimize)

	s.mcp.AddTool(mcp.NewTool("optimized_txt2img",
		mcp.WithDescription("Optimize parameters for the prompt and generate the image in one step"),
		mcp.WithString("prompt", mcp.Required(),
			mcp.Description("The positive prompt describing the image")),
		mcp.WithString("negative_prompt"),
		mcp.WithString("goal", mcp.DefaultString("balanced")),
		mcp.WithString("hardware", mcp.DefaultString("medium")),
		mcp.WithNumber("time_budget_seconds",
			mcp.Description("Optional upper bound on the estimated generation time")),
	), s.handleOptimizedTxt2Img)
}

func (s *Server) handleGetPresets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if name := req.GetString("name", ""); name != "" {
		preset, err := optimizer.GetPreset(name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		encoded, _ := json.MarshalIndent(preset, "", "  ")
		return mcp.NewToolResultText(string(encoded)), nil
	}

	names := optimizer.ListPresets()
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Available presets:\n")
	for _, name := range names {
		preset, err := optimizer.GetPreset(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s (%d steps, %dx%d, %s)\n",
			name, preset.Description, preset.Steps, preset.Width, preset.Height, preset.SamplerName)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleOptimizeParameters(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result := optimizer.Optimize(optimizer.Context{
		Goal:              optimizer.Goal(req.GetString("goal", "balanced")),
		Hardware:          optimizer.Hardware(req.GetString("hardware", "medium")),
		ImageType:         req.GetString("image_type", "general"),
		TimeBudgetSeconds: req.GetFloat("time_budget_seconds", 0),
		TargetWidth:       req.GetInt("target_width", 0),
		TargetHeight:      req.GetInt("target_height", 0),
	})
	return optimizerResultText(result), nil
}

func (s *Server) handleQuickOptimize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := optimizer.QuickOptimize(prompt,
		req.GetString("goal", "balanced"), req.GetString("hardware", "medium"))

	encoded, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(fmt.Sprintf(
		"Prompt classified as %q.\n%s\nEstimated time %.0fs, memory %.0f MB, quality score %.2f",
		optimizer.ClassifyPrompt(prompt), encoded,
		result.EstimatedSeconds, result.EstimatedMemoryMB, result.QualityScore)), nil
}

func (s *Server) handleOptimizedTxt2Img(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.SD == nil {
		return guidance("The Stable Diffusion WebUI", "SD_WEBUI_URL", s.deps.Config.SDWebUIURL), nil
	}

	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := optimizer.Optimize(optimizer.Context{
		Goal:              optimizer.Goal(req.GetString("goal", "balanced")),
		Hardware:          optimizer.Hardware(req.GetString("hardware", "medium")),
		ImageType:         optimizer.ClassifyPrompt(prompt),
		TimeBudgetSeconds: req.GetFloat("time_budget_seconds", 0),
	})
	params := result.Params

	genReq := &sdapi.Txt2ImgRequest{
		Prompt:            prompt,
		NegativePrompt:    req.GetString("negative_prompt", s.deps.Config.SDNegativePrompt),
		Width:             params.Width,
		Height:            params.Height,
		Steps:             params.Steps,
		CFGScale:          params.CFGScale,
		SamplerName:       params.SamplerName,
		Seed:              -1,
		BatchSize:         params.BatchSize,
		NIter:             params.NIter,
		EnableHR:          params.EnableHR,
		HRScale:           params.HRScale,
		DenoisingStrength: params.DenoisingStrength,
	}

	correlationID := uuid.NewString()
	start := time.Now()
	paramsJSON, _ := json.Marshal(genReq)

	var saved []sdapi.SavedImage
	opErr := s.deps.Manager.WrapOperation(ctx, "optimized-txt2img", func(ctx context.Context) error {
		resp, err := s.deps.SD.Txt2Img(ctx, genReq)
		if err != nil {
			return err
		}
		saved, err = sdapi.SaveImages(resp, s.deps.Config.OutputDir, "optimized", genReq)
		return err
	})

	outputPath := ""
	if len(saved) > 0 {
		outputPath = saved[0].Path
	}
	s.track(ctx, metrics.TaskTypeTxt2Img, correlationID, prompt, string(paramsJSON), start, outputPath, -1, opErr)

	if opErr != nil {
		return errorText("generating image", opErr), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Image generated in %s with optimized parameters (%d steps, %dx%d, %s) and saved to %s",
		time.Since(start).Round(time.Millisecond),
		params.Steps, params.Width, params.Height, params.SamplerName, outputPath)), nil
}

func optimizerResultText(result optimizer.Result) *mcp.CallToolResult {
	encoded, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(fmt.Sprintf(
		"%s\nEstimated time %.0fs, memory %.0f MB, quality score %.2f",
		encoded, result.EstimatedSeconds, result.EstimatedMemoryMB, result.QualityScore))
}
