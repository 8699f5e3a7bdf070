package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"blender_mcp/core"
	"blender_mcp/metrics"
	"blender_mcp/sdapi"
	"blender_mcp/shutdown"
)

func (s *Server) registerSDTools() {
	s.mcp.AddTool(mcp.NewTool("generate_stable_diffusion_image",
		mcp.WithDescription("Generate an image with the Stable Diffusion WebUI and save it to the output directory"),
		mcp.WithString("prompt", mcp.Required(),
			mcp.Description("The positive prompt describing the image")),
		mcp.WithString("negative_prompt",
			mcp.Description("What to avoid in the image")),
		mcp.WithNumber("width", mcp.DefaultNumber(512)),
		mcp.WithNumber("height", mcp.DefaultNumber(512)),
		mcp.WithNumber("steps", mcp.DefaultNumber(20)),
		mcp.WithNumber("cfg_scale", mcp.DefaultNumber(7.0)),
		mcp.WithString("sampler_name", mcp.DefaultString("DPM++ 2M Karras")),
		mcp.WithNumber("seed", mcp.DefaultNumber(-1),
			mcp.Description("Random seed, -1 for random")),
		mcp.WithBoolean("enable_hr", mcp.DefaultBool(false),
			mcp.Description("Enable high-resolution fix")),
		mcp.WithNumber("hr_scale", mcp.DefaultNumber(1.5)),
		mcp.WithNumber("denoising_strength", mcp.DefaultNumber(0.7)),
		mcp.WithBoolean("restore_faces", mcp.DefaultBool(false)),
	), s.handleTxt2Img)

	s.mcp.AddTool(mcp.NewTool("batch_txt2img",
		mcp.WithDescription("Generate images for several prompts in one call, sharing the same parameters"),
		mcp.WithArray("prompts", mcp.Required(),
			mcp.Description("The prompts to generate, one image each")),
		mcp.WithString("negative_prompt"),
		mcp.WithNumber("width", mcp.DefaultNumber(512)),
		mcp.WithNumber("height", mcp.DefaultNumber(512)),
		mcp.WithNumber("steps", mcp.DefaultNumber(20)),
		mcp.WithNumber("cfg_scale", mcp.DefaultNumber(7.0)),
		mcp.WithString("sampler_name", mcp.DefaultString("Euler a")),
	), s.handleBatchTxt2Img)

	s.mcp.AddTool(mcp.NewTool("enhance_image",
		mcp.WithDescription("Refine an existing image with img2img"),
		mcp.WithString("image_path", mcp.Required(),
			mcp.Description("Path of the image to enhance")),
		mcp.WithString("prompt", mcp.Required(),
			mcp.Description("Description guiding the enhancement")),
		mcp.WithString("negative_prompt"),
		mcp.WithNumber("denoising_strength", mcp.DefaultNumber(0.5),
			mcp.Description("How much to change the image, 0 keeps it, 1 redraws it")),
		mcp.WithNumber("steps", mcp.DefaultNumber(20)),
		mcp.WithNumber("cfg_scale", mcp.DefaultNumber(7.0)),
	), s.handleEnhanceImage)

	s.mcp.AddTool(mcp.NewTool("check_webui_status",
		mcp.WithDescription("Check the Stable Diffusion WebUI: reachability, loaded model, available samplers, and generation progress"),
	), s.handleWebUIStatus)
}

func (s *Server) handleTxt2Img(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.SD == nil {
		return guidance("The Stable Diffusion WebUI", "SD_WEBUI_URL", s.deps.Config.SDWebUIURL), nil
	}

	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	genReq := &sdapi.Txt2ImgRequest{
		Prompt:            prompt,
		NegativePrompt:    req.GetString("negative_prompt", s.deps.Config.SDNegativePrompt),
		Width:             core.ClampDimension(req.GetInt("width", s.deps.Config.SDDefaultWidth)),
		Height:            core.ClampDimension(req.GetInt("height", s.deps.Config.SDDefaultHeight)),
		Steps:             req.GetInt("steps", s.deps.Config.SDDefaultSteps),
		CFGScale:          req.GetFloat("cfg_scale", s.deps.Config.SDDefaultCFGScale),
		SamplerName:       req.GetString("sampler_name", "DPM++ 2M Karras"),
		Seed:              int64(req.GetInt("seed", -1)),
		BatchSize:         1,
		NIter:             1,
		EnableHR:          req.GetBool("enable_hr", false),
		HRScale:           req.GetFloat("hr_scale", 1.5),
		DenoisingStrength: req.GetFloat("denoising_strength", 0.7),
		RestoreFaces:      req.GetBool("restore_faces", false),
	}

	correlationID := uuid.NewString()
	start := time.Now()
	paramsJSON, _ := json.Marshal(genReq)

	var saved []sdapi.SavedImage
	var info *sdapi.GenerationInfo
	opErr := s.deps.Manager.WrapOperation(ctx, "txt2img", func(ctx context.Context) error {
		resp, err := s.deps.SD.Txt2Img(ctx, genReq)
		if err != nil {
			return err
		}
		info, _ = resp.DecodeInfo()
		saved, err = sdapi.SaveImages(resp, s.deps.Config.OutputDir, "sd", genReq)
		return err
	})

	outputPath := ""
	seed := genReq.Seed
	if len(saved) > 0 {
		outputPath = saved[0].Path
	}
	if info != nil {
		seed = info.Seed
	}
	s.track(ctx, metrics.TaskTypeTxt2Img, correlationID, prompt, string(paramsJSON), start, outputPath, seed, opErr)

	if opErr != nil {
		if errors.Is(opErr, shutdown.ErrTrackerClosed) {
			return mcp.NewToolResultError("server is shutting down"), nil
		}
		return errorText("generating image", opErr), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Image generated in %s (seed %d) and saved to %s",
		time.Since(start).Round(time.Millisecond), seed, outputPath)), nil
}

func (s *Server) handleBatchTxt2Img(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.SD == nil {
		return guidance("The Stable Diffusion WebUI", "SD_WEBUI_URL", s.deps.Config.SDWebUIURL), nil
	}

	prompts := stringSlice(req.GetArguments()["prompts"])
	if len(prompts) == 0 {
		return mcp.NewToolResultError("prompts must be a non-empty list of strings"), nil
	}

	var lines []string
	succeeded := 0
	for i, prompt := range prompts {
		genReq := &sdapi.Txt2ImgRequest{
			Prompt:         prompt,
			NegativePrompt: req.GetString("negative_prompt", s.deps.Config.SDNegativePrompt),
			Width:          core.ClampDimension(req.GetInt("width", 512)),
			Height:         core.ClampDimension(req.GetInt("height", 512)),
			Steps:          req.GetInt("steps", 20),
			CFGScale:       req.GetFloat("cfg_scale", 7.0),
			SamplerName:    req.GetString("sampler_name", "Euler a"),
			Seed:           -1,
			BatchSize:      1,
			NIter:          1,
		}

		correlationID := uuid.NewString()
		start := time.Now()
		paramsJSON, _ := json.Marshal(genReq)

		var saved []sdapi.SavedImage
		opErr := s.deps.Manager.WrapOperation(ctx, "batch-txt2img", func(ctx context.Context) error {
			resp, err := s.deps.SD.Txt2Img(ctx, genReq)
			if err != nil {
				return err
			}
			saved, err = sdapi.SaveImages(resp, s.deps.Config.OutputDir, fmt.Sprintf("batch_%02d", i+1), genReq)
			return err
		})

		outputPath := ""
		if len(saved) > 0 {
			outputPath = saved[0].Path
		}
		s.track(ctx, metrics.TaskTypeTxt2Img, correlationID, prompt, string(paramsJSON), start, outputPath, -1, opErr)

		if opErr != nil {
			lines = append(lines, fmt.Sprintf("%d. FAILED %q: %v", i+1, prompt, opErr))
			continue
		}
		succeeded++
		lines = append(lines, fmt.Sprintf("%d. %q -> %s", i+1, prompt, outputPath))
	}

	summary := fmt.Sprintf("Batch finished: %d/%d succeeded\n%s", succeeded, len(prompts), strings.Join(lines, "\n"))
	if succeeded == 0 {
		return mcp.NewToolResultError(summary), nil
	}
	return mcp.NewToolResultText(summary), nil
}

func (s *Server) handleEnhanceImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.SD == nil {
		return guidance("The Stable Diffusion WebUI", "SD_WEBUI_URL", s.deps.Config.SDWebUIURL), nil
	}

	imagePath, err := req.RequireString("image_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	encoded, err := sdapi.EncodeImageFile(imagePath)
	if err != nil {
		return errorText("reading input image", err), nil
	}

	genReq := &sdapi.Img2ImgRequest{
		InitImages:        []string{encoded},
		Prompt:            prompt,
		NegativePrompt:    req.GetString("negative_prompt", s.deps.Config.SDNegativePrompt),
		Steps:             req.GetInt("steps", 20),
		CFGScale:          req.GetFloat("cfg_scale", 7.0),
		DenoisingStrength: req.GetFloat("denoising_strength", 0.5),
		SamplerName:       "DPM++ 2M Karras",
		Seed:              -1,
		BatchSize:         1,
		NIter:             1,
	}

	correlationID := uuid.NewString()
	start := time.Now()

	var saved []sdapi.SavedImage
	opErr := s.deps.Manager.WrapOperation(ctx, "img2img", func(ctx context.Context) error {
		resp, err := s.deps.SD.Img2Img(ctx, genReq)
		if err != nil {
			return err
		}
		saved, err = sdapi.SaveImages(resp, s.deps.Config.OutputDir, "enhanced", genReq)
		return err
	})

	outputPath := ""
	if len(saved) > 0 {
		outputPath = saved[0].Path
	}
	s.track(ctx, metrics.TaskTypeImg2Img, correlationID, prompt, "", start, outputPath, -1, opErr)

	if opErr != nil {
		return errorText("enhancing image", opErr), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Enhanced image saved to %s", outputPath)), nil
}

func (s *Server) handleWebUIStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.SD == nil {
		return guidance("The Stable Diffusion WebUI", "SD_WEBUI_URL", s.deps.Config.SDWebUIURL), nil
	}

	options, err := s.deps.SD.CheckHealth(ctx)
	if err != nil {
		s.deps.Metrics.UpdateBackendStatus(metrics.BackendStatus{
			Name: metrics.BackendStableDiffusion, URL: s.deps.Config.SDWebUIURL,
			Available: false, LastCheck: time.Now(),
		})
		return errorText("reaching the WebUI", err), nil
	}
	s.deps.Metrics.UpdateBackendStatus(metrics.BackendStatus{
		Name: metrics.BackendStableDiffusion, URL: s.deps.Config.SDWebUIURL,
		Available: true, LastCheck: time.Now(),
	})

	var b strings.Builder
	fmt.Fprintf(&b, "WebUI is reachable at %s\n", s.deps.Config.SDWebUIURL)
	fmt.Fprintf(&b, "Active model: %s\n", options.SDModelCheckpoint)

	if models, err := s.deps.SD.GetModels(ctx); err == nil {
		names := make([]string, 0, len(models))
		for _, m := range models {
			names = append(names, m.ModelName)
		}
		fmt.Fprintf(&b, "Available models (%d): %s\n", len(names), strings.Join(names, ", "))
	}
	if samplers, err := s.deps.SD.GetSamplers(ctx); err == nil {
		names := make([]string, 0, len(samplers))
		for _, sampler := range samplers {
			names = append(names, sampler.Name)
		}
		fmt.Fprintf(&b, "Samplers (%d): %s\n", len(names), strings.Join(names, ", "))
	}
	if progress, err := s.deps.SD.GetProgress(ctx); err == nil && progress.Progress > 0 {
		fmt.Fprintf(&b, "Generation in progress: %.0f%%, ETA %.0fs\n",
			progress.Progress*100, progress.ETARelative)
	}

	return mcp.NewToolResultText(b.String()), nil
}
