package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"blender_mcp/hunyuan"
	"blender_mcp/metrics"
	"blender_mcp/shutdown"
)

func (s *Server) registerHunyuanTools() {
	s.mcp.AddTool(mcp.NewTool("generate_hunyuan3d_model",
		mcp.WithDescription("Generate a 3D model from an image using the Hunyuan3D API server and import it into Blender. Provide exactly one of image_path, image_url, or image_base64."),
		mcp.WithString("image_path",
			mcp.Description("Absolute path of a local input image")),
		mcp.WithString("image_url",
			mcp.Description("URL of an input image")),
		mcp.WithString("image_base64",
			mcp.Description("Base64-encoded input image")),
		mcp.WithString("object_name",
			mcp.Description("Name for the imported object"),
			mcp.DefaultString("Hunyuan3D_Model")),
		mcp.WithBoolean("sync_mode",
			mcp.Description("Wait for the generation to finish (true) or submit an async task and poll later (false)"),
			mcp.DefaultBool(true)),
		mcp.WithBoolean("remove_background", mcp.DefaultBool(true)),
		mcp.WithBoolean("texture", mcp.DefaultBool(true)),
		mcp.WithNumber("seed", mcp.DefaultNumber(1234)),
		mcp.WithNumber("octree_resolution", mcp.DefaultNumber(256)),
		mcp.WithNumber("num_inference_steps", mcp.DefaultNumber(5)),
		mcp.WithNumber("guidance_scale", mcp.DefaultNumber(5.0)),
		mcp.WithNumber("face_count", mcp.DefaultNumber(40000)),
	), s.handleGenerateHunyuan)

	s.mcp.AddTool(mcp.NewTool("poll_hunyuan3d_status",
		mcp.WithDescription("Check an async Hunyuan3D task. When the task has completed, the model is downloaded and imported into Blender."),
		mcp.WithString("task_uid", mcp.Required(),
			mcp.Description("The task uid returned by generate_hunyuan3d_model in async mode")),
		mcp.WithString("object_name",
			mcp.Description("Name for the imported object"),
			mcp.DefaultString("Hunyuan3D_Model")),
	), s.handlePollHunyuan)
}

func (s *Server) hunyuanRequestFromArgs(req mcp.CallToolRequest) hunyuan.GenerateRequest {
	genReq := hunyuan.DefaultGenerateRequest()
	genReq.RemoveBackground = req.GetBool("remove_background", true)
	genReq.Texture = req.GetBool("texture", true)
	genReq.Seed = req.GetInt("seed", 1234)
	genReq.OctreeResolution = req.GetInt("octree_resolution", 256)
	genReq.NumInferenceSteps = req.GetInt("num_inference_steps", 5)
	genReq.GuidanceScale = req.GetFloat("guidance_scale", 5.0)
	genReq.FaceCount = req.GetInt("face_count", 40000)
	return genReq
}

func (s *Server) handleGenerateHunyuan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Hunyuan == nil {
		return guidance("The Hunyuan3D API server", "HUNYUAN3D_URL", s.deps.Config.Hunyuan3DURL), nil
	}

	image, err := hunyuan.ResolveImage(ctx, s.deps.HTTPClient,
		req.GetString("image_path", ""),
		req.GetString("image_url", ""),
		req.GetString("image_base64", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	genReq := s.hunyuanRequestFromArgs(req)
	genReq.Image = image
	objectName := req.GetString("object_name", "Hunyuan3D_Model")
	paramsJSON, _ := json.Marshal(genReq)

	if !req.GetBool("sync_mode", true) {
		uid, err := s.deps.Hunyuan.Send(ctx, &genReq)
		if err != nil {
			return errorText("submitting Hunyuan3D task", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(
			"Hunyuan3D task submitted. Poll it with poll_hunyuan3d_status using task_uid %q.", uid)), nil
	}

	correlationID := uuid.NewString()
	start := time.Now()
	var importResult string

	opErr := s.deps.Manager.WrapOperation(ctx, "hunyuan3d-generate", func(ctx context.Context) error {
		model, err := s.deps.Hunyuan.Generate(ctx, &genReq)
		if err != nil {
			return err
		}
		return s.importHunyuanModel(ctx, objectName, model, &importResult)
	})

	s.track(ctx, metrics.TaskTypeHunyuan3D, correlationID, "", string(paramsJSON), start, "", int64(genReq.Seed), opErr)

	if opErr != nil {
		if errors.Is(opErr, shutdown.ErrTrackerClosed) {
			return mcp.NewToolResultError("server is shutting down"), nil
		}
		return errorText("generating Hunyuan3D model", opErr), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Model generated in %s and imported as %q. %s",
		time.Since(start).Round(time.Second), objectName, importResult)), nil
}

func (s *Server) handlePollHunyuan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Hunyuan == nil {
		return guidance("The Hunyuan3D API server", "HUNYUAN3D_URL", s.deps.Config.Hunyuan3DURL), nil
	}

	taskUID, err := req.RequireString("task_uid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	status, err := s.deps.Hunyuan.Status(ctx, taskUID)
	if err != nil {
		return errorText("checking Hunyuan3D task", err), nil
	}

	switch status.Status {
	case hunyuan.StatusCompleted:
		model, err := s.deps.Hunyuan.Download(ctx, taskUID)
		if err != nil {
			return errorText("downloading Hunyuan3D model", err), nil
		}
		objectName := req.GetString("object_name", "Hunyuan3D_Model")
		var importResult string
		if err := s.importHunyuanModel(ctx, objectName, model, &importResult); err != nil {
			return errorText("importing Hunyuan3D model", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(
			"Task completed. Model imported as %q. %s", objectName, importResult)), nil

	case hunyuan.StatusFailed:
		return mcp.NewToolResultError(fmt.Sprintf("Hunyuan3D task failed: %s", status.Error)), nil

	default:
		return mcp.NewToolResultText(fmt.Sprintf(
			"Task is %s at %.0f%%. Poll again in a few seconds.", status.Status, status.Progress)), nil
	}
}

func (s *Server) importHunyuanModel(ctx context.Context, objectName string, model []byte, importResult *string) error {
	encoded := base64.StdEncoding.EncodeToString(model)
	raw, err := s.deps.Blender.ImportHunyuan3DModel(ctx, objectName, encoded)
	if err != nil {
		return fmt.Errorf("import into Blender: %w", err)
	}
	*importResult = string(raw)
	return nil
}
