package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"blender_mcp/sdapi"
)

func (s *Server) registerBlenderTools() {
	s.mcp.AddTool(mcp.NewTool("get_scene_info",
		mcp.WithDescription("Get detailed information about the current Blender scene"),
	), s.handleGetSceneInfo)

	s.mcp.AddTool(mcp.NewTool("get_object_info",
		mcp.WithDescription("Get detailed information about a specific object in the Blender scene"),
		mcp.WithString("object_name", mcp.Required(),
			mcp.Description("The name of the object to get information about")),
	), s.handleGetObjectInfo)

	s.mcp.AddTool(mcp.NewTool("get_viewport_screenshot",
		mcp.WithDescription("Capture a screenshot of the current Blender 3D viewport"),
		mcp.WithNumber("max_size",
			mcp.Description("Maximum size in pixels for the largest dimension"),
			mcp.DefaultNumber(800)),
	), s.handleViewportScreenshot)

	s.mcp.AddTool(mcp.NewTool("execute_blender_code",
		mcp.WithDescription("Execute arbitrary Python code in Blender. Make sure to do it step-by-step by breaking it into smaller chunks."),
		mcp.WithString("code", mcp.Required(),
			mcp.Description("The Python code to execute")),
	), s.handleExecuteCode)
}

func (s *Server) handleGetSceneInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := s.deps.Blender.GetSceneInfo(ctx)
	if err != nil {
		return errorText("getting scene info", err), nil
	}
	return rawResult(raw), nil
}

func (s *Server) handleGetObjectInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	objectName, err := req.RequireString("object_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := s.deps.Blender.GetObjectInfo(ctx, objectName)
	if err != nil {
		return errorText("getting object info", err), nil
	}
	return rawResult(raw), nil
}

func (s *Server) handleViewportScreenshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	maxSize := req.GetInt("max_size", 800)

	// The addon writes the capture to disk; the file is read back and
	// removed once the bytes are in hand.
	path := filepath.Join(os.TempDir(), fmt.Sprintf("blender_screenshot_%s.png", uuid.NewString()))
	defer os.Remove(path)

	if _, err := s.deps.Blender.GetViewportScreenshot(ctx, maxSize, path, "png"); err != nil {
		return errorText("capturing viewport screenshot", err), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errorText("reading screenshot file", err), nil
	}

	// Older addon builds ignore the size hint, so enforce it here too.
	data, err = sdapi.DownscalePNG(data, maxSize)
	if err != nil {
		return errorText("processing screenshot", err), nil
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	return mcp.NewToolResultImage("viewport screenshot", encoded, "image/png"), nil
}

func (s *Server) handleExecuteCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := req.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := s.deps.Blender.ExecuteCode(ctx, code)
	if err != nil {
		return errorText("executing code", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Code executed successfully: %s", raw)), nil
}
