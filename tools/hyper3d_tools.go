package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"blender_mcp/sdapi"
)

// Hyper3D Rodin tools. The addon owns the Rodin API key and does the
// network work; these handlers validate input and relay.
func (s *Server) registerHyper3DTools() {
	s.mcp.AddTool(mcp.NewTool("get_hyper3d_status",
		mcp.WithDescription("Check if Hyper3D Rodin integration is enabled in Blender"),
	), s.handleHyper3DStatus)

	s.mcp.AddTool(mcp.NewTool("generate_hyper3d_model_via_text",
		mcp.WithDescription("Generate a 3D asset using Hyper3D from a text description. The generated model has a normalized size, so re-scaling after import is useful."),
		mcp.WithString("text_prompt", mcp.Required(),
			mcp.Description("A short description of the desired model in English")),
		mcp.WithArray("bbox_condition",
			mcp.Description("Optional width/height/length proportions of the model")),
	), s.handleRodinViaText)

	s.mcp.AddTool(mcp.NewTool("generate_hyper3d_model_via_images",
		mcp.WithDescription("Generate a 3D asset using Hyper3D from one or more reference images. Provide image paths or image URLs, not both."),
		mcp.WithArray("input_image_paths",
			mcp.Description("Absolute paths of local reference images")),
		mcp.WithArray("input_image_urls",
			mcp.Description("URLs of reference images")),
		mcp.WithArray("bbox_condition",
			mcp.Description("Optional width/height/length proportions of the model")),
	), s.handleRodinViaImages)

	s.mcp.AddTool(mcp.NewTool("poll_rodin_job_status",
		mcp.WithDescription("Check if a Hyper3D Rodin generation task is done"),
		mcp.WithString("subscription_key",
			mcp.Description("The subscription_key given by the generate tool (MAIN_SITE mode)")),
		mcp.WithString("request_id",
			mcp.Description("The request_id given by the generate tool (FAL_AI mode)")),
	), s.handlePollRodin)

	s.mcp.AddTool(mcp.NewTool("import_generated_asset",
		mcp.WithDescription("Import a finished Hyper3D Rodin generation into Blender"),
		mcp.WithString("name", mcp.Required(),
			mcp.Description("The name of the object in the scene")),
		mcp.WithString("task_uuid",
			mcp.Description("The task uuid of the generation (MAIN_SITE mode)")),
		mcp.WithString("request_id",
			mcp.Description("The request id of the generation (FAL_AI mode)")),
	), s.handleImportRodinAsset)
}

func (s *Server) handleHyper3DStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.deps.Blender.GetHyper3DStatus(ctx)
	if err != nil {
		return errorText("checking Hyper3D status", err), nil
	}
	message := status.Message
	if !status.Enabled {
		message += "\nHyper3D is disabled. Enable it in the BlenderMCP panel; the free trial key gives a limited number of generations per day."
	}
	return mcp.NewToolResultText(message), nil
}

func (s *Server) handleRodinViaText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	textPrompt, err := req.RequireString("text_prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	bbox, err := processBBox(req.GetArguments()["bbox_condition"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := s.deps.Blender.CreateRodinJob(ctx, textPrompt, nil, bbox)
	if err != nil {
		return errorText("creating Rodin job", err), nil
	}
	return rawResult(raw), nil
}

func (s *Server) handleRodinViaImages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths := stringSlice(req.GetArguments()["input_image_paths"])
	urls := stringSlice(req.GetArguments()["input_image_urls"])

	if len(paths) == 0 && len(urls) == 0 {
		return mcp.NewToolResultError("provide input_image_paths or input_image_urls"), nil
	}
	if len(paths) > 0 && len(urls) > 0 {
		return mcp.NewToolResultError("provide only one of input_image_paths and input_image_urls"), nil
	}

	var images []any
	for _, path := range paths {
		encoded, err := sdapi.EncodeImageFile(path)
		if err != nil {
			return errorText("reading reference image", err), nil
		}
		images = append(images, encoded)
	}
	for _, url := range urls {
		encoded, err := s.downloadImageBase64(ctx, url)
		if err != nil {
			return errorText("downloading reference image", err), nil
		}
		images = append(images, encoded)
	}

	bbox, err := processBBox(req.GetArguments()["bbox_condition"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := s.deps.Blender.CreateRodinJob(ctx, "", images, bbox)
	if err != nil {
		return errorText("creating Rodin job", err), nil
	}
	return rawResult(raw), nil
}

func (s *Server) handlePollRodin(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subscriptionKey := req.GetString("subscription_key", "")
	requestID := req.GetString("request_id", "")
	if subscriptionKey == "" && requestID == "" {
		return mcp.NewToolResultError("provide subscription_key or request_id"), nil
	}

	raw, err := s.deps.Blender.PollRodinJobStatus(ctx, subscriptionKey, requestID)
	if err != nil {
		return errorText("polling Rodin job", err), nil
	}
	return rawResult(raw), nil
}

func (s *Server) handleImportRodinAsset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	taskUUID := req.GetString("task_uuid", "")
	requestID := req.GetString("request_id", "")
	if taskUUID == "" && requestID == "" {
		return mcp.NewToolResultError("provide task_uuid or request_id"), nil
	}

	raw, err := s.deps.Blender.ImportGeneratedAsset(ctx, name, taskUUID, requestID)
	if err != nil {
		return errorText("importing generated asset", err), nil
	}
	return rawResult(raw), nil
}

func (s *Server) downloadImageBase64(ctx context.Context, url string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.deps.HTTPClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// processBBox normalizes a bounding box ratio. Whole numbers pass through;
// fractional ratios are scaled so the largest side becomes 100.
func processBBox(arg any) ([]int, error) {
	if arg == nil {
		return nil, nil
	}
	values, ok := arg.([]any)
	if !ok || len(values) == 0 {
		return nil, nil
	}

	floats := make([]float64, 0, len(values))
	allWhole := true
	for _, v := range values {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("bbox_condition must contain numbers")
		}
		if f != float64(int(f)) {
			allWhole = false
		}
		floats = append(floats, f)
	}

	if allWhole {
		result := make([]int, len(floats))
		for i, f := range floats {
			result[i] = int(f)
		}
		return result, nil
	}

	maxValue := floats[0]
	for _, f := range floats[1:] {
		maxValue = max(maxValue, f)
	}
	if maxValue <= 0 {
		return nil, fmt.Errorf("bbox_condition values must be positive")
	}
	for _, f := range floats {
		if f <= 0 {
			return nil, fmt.Errorf("bbox_condition values must be positive")
		}
	}

	result := make([]int, len(floats))
	for i, f := range floats {
		result[i] = int(f / maxValue * 100)
	}
	return result, nil
}

func stringSlice(arg any) []string {
	values, ok := arg.([]any)
	if !ok {
		return nil
	}
	var result []string
	for _, v := range values {
		if s, ok := v.(string); ok {
			result = append(result, s)
		}
	}
	return result
}
