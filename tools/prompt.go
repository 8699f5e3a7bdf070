package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("asset_creation_strategy",
		mcp.WithPromptDescription("Defines the preferred strategy for creating assets in Blender"),
	), s.handleAssetCreationStrategy)
}

const assetCreationStrategy = `When creating 3D content in Blender, always start by checking if integrations are available:

0. Before anything, always check the scene from get_scene_info().
1. First use the following tools to verify if the following integrations are enabled:
   1. PolyHaven: Use get_polyhaven_status() to verify its status.
   2. Sketchfab: Use get_sketchfab_status() to verify its status.
   3. Hyper3D (Rodin): Use get_hyper3d_status() to verify its status.
   4. Hunyuan3D: Use check_webui_status() and the hunyuan tools; generate_hunyuan3d_model reports when the API server is unreachable.

2. For specific object generation, prefer generated models over libraries:
   - Use the Hunyuan3D pipeline (generate_stable_diffusion_image followed by generate_hunyuan3d_model, or execute_text_to_3d_workflow in one call) when an image-to-3D result is wanted and the local backends are up.
   - Use Hyper3D (Rodin) for high-quality single items described by text or reference images. Hyper3D is not good at whole scenes, only individual objects.
   - The Hyper3D steps are: create the job with generate_hyper3d_model_via_text() or generate_hyper3d_model_via_images(), poll with poll_rodin_job_status() until done, then import with import_generated_asset(). Do not place the Rodin asset with python code before import_generated_asset() has returned.

3. For environment and texturing:
   - Use PolyHaven for HDRIs (lighting and backgrounds), PBR textures, and generic props when it is enabled. Search with search_polyhaven_assets(), download with download_polyhaven_asset(), and apply textures with set_texture().
   - Use Sketchfab for specific pre-made models when it is enabled: search_sketchfab_models() then download_sketchfab_model() with the uid.

4. When all integrations are disabled, create objects with execute_blender_code() using basic Blender primitives and modifiers.

5. Always check the world properties and scene objects before adding assets so nothing is duplicated or misplaced, and verify the result with get_object_info() or get_viewport_screenshot() after each significant step.

6. For full scenes from a single description, use execute_text_to_3d_workflow() or create_3d_scene_from_text(); pick a preset with get_workflow_presets() and track long runs with get_workflow_status().

Only fall back to a lower-priority option when the higher-priority one is disabled or fails.`

func (s *Server) handleAssetCreationStrategy(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return mcp.NewGetPromptResult(
		"Asset creation strategy for Blender",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(assetCreationStrategy)),
		},
	), nil
}
