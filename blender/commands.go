package blender

import (
	"context"
	"encoding/json"
	"fmt"
)

// Command names understood by the addon. Kept as constants so a typo fails
// review instead of a live session.
const (
	cmdGetSceneInfo          = "get_scene_info"
	cmdGetObjectInfo         = "get_object_info"
	cmdGetViewportScreenshot = "get_viewport_screenshot"
	cmdExecuteCode           = "execute_code"

	cmdGetPolyHavenStatus     = "get_polyhaven_status"
	cmdGetPolyHavenCategories = "get_polyhaven_categories"
	cmdSearchPolyHavenAssets  = "search_polyhaven_assets"
	cmdDownloadPolyHavenAsset = "download_polyhaven_asset"
	cmdSetTexture             = "set_texture"

	cmdGetSketchfabStatus     = "get_sketchfab_status"
	cmdSearchSketchfabModels  = "search_sketchfab_models"
	cmdDownloadSketchfabModel = "download_sketchfab_model"

	cmdGetHyper3DStatus     = "get_hyper3d_status"
	cmdCreateRodinJob       = "create_rodin_job"
	cmdPollRodinJobStatus   = "poll_rodin_job_status"
	cmdImportGeneratedAsset = "import_generated_asset"

	cmdImportHunyuan3DModel = "import_hunyuan3d_model"
)

// GetSceneInfo returns a summary of the current scene: object names, types,
// counts, and active settings.
func (c *Client) GetSceneInfo(ctx context.Context) (json.RawMessage, error) {
	return c.SendCommand(ctx, cmdGetSceneInfo, nil)
}

// GetObjectInfo returns detailed information about one object by name.
func (c *Client) GetObjectInfo(ctx context.Context, objectName string) (json.RawMessage, error) {
	return c.SendCommand(ctx, cmdGetObjectInfo, map[string]any{
		"name": objectName,
	})
}

// GetViewportScreenshot asks the addon to capture the active 3D viewport to
// filepath, downscaled so the longest side is at most maxSize pixels. The
// addon writes the file; the caller reads it back from disk.
func (c *Client) GetViewportScreenshot(ctx context.Context, maxSize int, filepath, format string) (json.RawMessage, error) {
	return c.SendCommand(ctx, cmdGetViewportScreenshot, map[string]any{
		"max_size": maxSize,
		"filepath": filepath,
		"format":   format,
	})
}

// ExecuteCode runs arbitrary Python inside Blender and returns whatever the
// addon captured from it. The code executes on Blender's main thread with
// full bpy access.
func (c *Client) ExecuteCode(ctx context.Context, code string) (json.RawMessage, error) {
	return c.SendCommand(ctx, cmdExecuteCode, map[string]any{
		"code": code,
	})
}

// IntegrationStatus is the addon's answer for the PolyHaven, Sketchfab, and
// Hyper3D status commands.
type IntegrationStatus struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
}

func (c *Client) integrationStatus(ctx context.Context, cmd string) (*IntegrationStatus, error) {
	raw, err := c.SendCommand(ctx, cmd, nil)
	if err != nil {
		return nil, err
	}
	var status IntegrationStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", cmd, err)
	}
	return &status, nil
}

// GetPolyHavenStatus reports whether the PolyHaven integration is enabled in
// the addon's UI panel.
func (c *Client) GetPolyHavenStatus(ctx context.Context) (*IntegrationStatus, error) {
	return c.integrationStatus(ctx, cmdGetPolyHavenStatus)
}

// GetPolyHavenCategories lists categories for an asset type: hdris,
// textures, models, or all.
func (c *Client) GetPolyHavenCategories(ctx context.Context, assetType string) (json.RawMessage, error) {
	return c.SendCommand(ctx, cmdGetPolyHavenCategories, map[string]any{
		"asset_type": assetType,
	})
}

// SearchPolyHavenAssets searches PolyHaven, optionally filtered by a
// comma-separated category list.
func (c *Client) SearchPolyHavenAssets(ctx context.Context, assetType, categories string) (json.RawMessage, error) {
	params := map[string]any{"asset_type": assetType}
	if categories != "" {
		params["categories"] = categories
	}
	return c.SendCommand(ctx, cmdSearchPolyHavenAssets, params)
}

// DownloadPolyHavenAsset downloads and imports a PolyHaven asset. The addon
// performs the download, so large assets can take a while.
func (c *Client) DownloadPolyHavenAsset(ctx context.Context, assetID, assetType, resolution, fileFormat string) (json.RawMessage, error) {
	params := map[string]any{
		"asset_id":   assetID,
		"asset_type": assetType,
		"resolution": resolution,
	}
	if fileFormat != "" {
		params["file_format"] = fileFormat
	}
	return c.SendCommand(ctx, cmdDownloadPolyHavenAsset, params)
}

// SetTexture applies a previously downloaded PolyHaven texture to an object.
func (c *Client) SetTexture(ctx context.Context, objectName, textureID string) (json.RawMessage, error) {
	return c.SendCommand(ctx, cmdSetTexture, map[string]any{
		"object_name": objectName,
		"texture_id":  textureID,
	})
}

// GetSketchfabStatus reports whether the Sketchfab integration is enabled
// and has an API key configured.
func (c *Client) GetSketchfabStatus(ctx context.Context) (*IntegrationStatus, error) {
	return c.integrationStatus(ctx, cmdGetSketchfabStatus)
}

// SearchSketchfabModels searches Sketchfab for downloadable models.
func (c *Client) SearchSketchfabModels(ctx context.Context, query, categories string, count int, downloadable bool) (json.RawMessage, error) {
	params := map[string]any{
		"query":        query,
		"count":        count,
		"downloadable": downloadable,
	}
	if categories != "" {
		params["categories"] = categories
	}
	return c.SendCommand(ctx, cmdSearchSketchfabModels, params)
}

// DownloadSketchfabModel downloads and imports a Sketchfab model by UID.
func (c *Client) DownloadSketchfabModel(ctx context.Context, uid string) (json.RawMessage, error) {
	return c.SendCommand(ctx, cmdDownloadSketchfabModel, map[string]any{
		"uid": uid,
	})
}

// GetHyper3DStatus reports whether the Hyper3D Rodin integration is enabled
// and which mode (MAIN_SITE or FAL_AI) it uses.
func (c *Client) GetHyper3DStatus(ctx context.Context) (*IntegrationStatus, error) {
	return c.integrationStatus(ctx, cmdGetHyper3DStatus)
}

// CreateRodinJob submits a Hyper3D Rodin generation job. Exactly one of
// textPrompt or images should be set; bboxCondition optionally constrains
// the output's proportions as a [width, height, length] ratio.
func (c *Client) CreateRodinJob(ctx context.Context, textPrompt string, images []any, bboxCondition []int) (json.RawMessage, error) {
	params := map[string]any{}
	if textPrompt != "" {
		params["text_prompt"] = textPrompt
	}
	if len(images) > 0 {
		params["images"] = images
	}
	if len(bboxCondition) > 0 {
		params["bbox_condition"] = bboxCondition
	}
	return c.SendCommand(ctx, cmdCreateRodinJob, params)
}

// PollRodinJobStatus checks a Rodin job. MAIN_SITE mode identifies jobs by
// subscription key, FAL_AI mode by request id; pass whichever is non-empty.
func (c *Client) PollRodinJobStatus(ctx context.Context, subscriptionKey, requestID string) (json.RawMessage, error) {
	params := map[string]any{}
	if subscriptionKey != "" {
		params["subscription_key"] = subscriptionKey
	}
	if requestID != "" {
		params["request_id"] = requestID
	}
	return c.SendCommand(ctx, cmdPollRodinJobStatus, params)
}

// ImportGeneratedAsset imports a completed Rodin job's model into the scene
// under the given object name.
func (c *Client) ImportGeneratedAsset(ctx context.Context, name, taskUUID, requestID string) (json.RawMessage, error) {
	params := map[string]any{"name": name}
	if taskUUID != "" {
		params["task_uuid"] = taskUUID
	}
	if requestID != "" {
		params["request_id"] = requestID
	}
	return c.SendCommand(ctx, cmdImportGeneratedAsset, params)
}

// ImportHunyuan3DModel ships a Hunyuan3D-generated GLB to the addon as
// base64 and imports it into the scene under the given object name.
func (c *Client) ImportHunyuan3DModel(ctx context.Context, name, modelBase64 string) (json.RawMessage, error) {
	return c.SendCommand(ctx, cmdImportHunyuan3DModel, map[string]any{
		"name":       name,
		"model_data": modelBase64,
	})
}
