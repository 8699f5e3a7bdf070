package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Asset library tools: PolyHaven and Sketchfab. The addon does the actual
// downloading; these handlers relay requests and translate the enablement
// checks into text a model can follow.
func (s *Server) registerAssetTools() {
	s.mcp.AddTool(mcp.NewTool("get_polyhaven_status",
		mcp.WithDescription("Check if PolyHaven integration is enabled in Blender"),
	), s.handlePolyHavenStatus)

	s.mcp.AddTool(mcp.NewTool("get_polyhaven_categories",
		mcp.WithDescription("Get a list of categories for a specific asset type on PolyHaven"),
		mcp.WithString("asset_type",
			mcp.Description("The type of asset to get categories for (hdris, textures, models, all)"),
			mcp.DefaultString("hdris")),
	), s.handlePolyHavenCategories)

	s.mcp.AddTool(mcp.NewTool("search_polyhaven_assets",
		mcp.WithDescription("Search for assets on PolyHaven with optional filtering"),
		mcp.WithString("asset_type",
			mcp.Description("Type of assets to search for (hdris, textures, models, all)"),
			mcp.DefaultString("all")),
		mcp.WithString("categories",
			mcp.Description("Optional comma-separated list of categories to filter by")),
	), s.handleSearchPolyHaven)

	s.mcp.AddTool(mcp.NewTool("download_polyhaven_asset",
		mcp.WithDescription("Download and import a PolyHaven asset into Blender"),
		mcp.WithString("asset_id", mcp.Required(),
			mcp.Description("The ID of the asset to download")),
		mcp.WithString("asset_type", mcp.Required(),
			mcp.Description("The type of asset (hdris, textures, models)")),
		mcp.WithString("resolution",
			mcp.Description("The resolution to download (e.g., 1k, 2k, 4k)"),
			mcp.DefaultString("1k")),
		mcp.WithString("file_format",
			mcp.Description("Optional file format (e.g., hdr, exr for HDRIs; jpg, png for textures)")),
	), s.handleDownloadPolyHaven)

	s.mcp.AddTool(mcp.NewTool("set_texture",
		mcp.WithDescription("Apply a previously downloaded PolyHaven texture to an object"),
		mcp.WithString("object_name", mcp.Required(),
			mcp.Description("Name of the object to apply the texture to")),
		mcp.WithString("texture_id", mcp.Required(),
			mcp.Description("ID of the PolyHaven texture to apply (must be downloaded first)")),
	), s.handleSetTexture)

	s.mcp.AddTool(mcp.NewTool("get_sketchfab_status",
		mcp.WithDescription("Check if Sketchfab integration is enabled in Blender"),
	), s.handleSketchfabStatus)

	s.mcp.AddTool(mcp.NewTool("search_sketchfab_models",
		mcp.WithDescription("Search for models on Sketchfab with optional filtering"),
		mcp.WithString("query", mcp.Required(),
			mcp.Description("Text to search for")),
		mcp.WithString("categories",
			mcp.Description("Optional comma-separated list of categories")),
		mcp.WithNumber("count",
			mcp.Description("Maximum number of results to return"),
			mcp.DefaultNumber(20)),
		mcp.WithBoolean("downloadable",
			mcp.Description("Whether to include only downloadable models"),
			mcp.DefaultBool(true)),
	), s.handleSearchSketchfab)

	s.mcp.AddTool(mcp.NewTool("download_sketchfab_model",
		mcp.WithDescription("Download and import a Sketchfab model by its UID"),
		mcp.WithString("uid", mcp.Required(),
			mcp.Description("The unique identifier of the Sketchfab model")),
	), s.handleDownloadSketchfab)
}

func (s *Server) handlePolyHavenStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.deps.Blender.GetPolyHavenStatus(ctx)
	if err != nil {
		return errorText("checking PolyHaven status", err), nil
	}
	if !status.Enabled {
		return mcp.NewToolResultText(status.Message +
			"\nPolyHaven is disabled. Select it in the sidebar of the BlenderMCP panel, then try again."), nil
	}
	return mcp.NewToolResultText(status.Message), nil
}

func (s *Server) handlePolyHavenCategories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	assetType := req.GetString("asset_type", "hdris")
	if !validAssetType(assetType) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid asset type %q, must be one of: hdris, textures, models, all", assetType)), nil
	}

	raw, err := s.deps.Blender.GetPolyHavenCategories(ctx, assetType)
	if err != nil {
		return errorText("getting PolyHaven categories", err), nil
	}
	return rawResult(raw), nil
}

func (s *Server) handleSearchPolyHaven(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	assetType := req.GetString("asset_type", "all")
	if !validAssetType(assetType) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid asset type %q, must be one of: hdris, textures, models, all", assetType)), nil
	}

	raw, err := s.deps.Blender.SearchPolyHavenAssets(ctx, assetType, req.GetString("categories", ""))
	if err != nil {
		return errorText("searching PolyHaven assets", err), nil
	}
	return rawResult(raw), nil
}

func (s *Server) handleDownloadPolyHaven(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	assetID, err := req.RequireString("asset_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	assetType, err := req.RequireString("asset_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if assetType != "hdris" && assetType != "textures" && assetType != "models" {
		return mcp.NewToolResultError(fmt.Sprintf("invalid asset type %q, must be one of: hdris, textures, models", assetType)), nil
	}

	raw, err := s.deps.Blender.DownloadPolyHavenAsset(ctx, assetID, assetType,
		req.GetString("resolution", "1k"), req.GetString("file_format", ""))
	if err != nil {
		return errorText("downloading PolyHaven asset", err), nil
	}
	return rawResult(raw), nil
}

func (s *Server) handleSetTexture(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	objectName, err := req.RequireString("object_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	textureID, err := req.RequireString("texture_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := s.deps.Blender.SetTexture(ctx, objectName, textureID)
	if err != nil {
		return errorText("applying texture", err), nil
	}
	return rawResult(raw), nil
}

func (s *Server) handleSketchfabStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.deps.Blender.GetSketchfabStatus(ctx)
	if err != nil {
		return errorText("checking Sketchfab status", err), nil
	}
	if !status.Enabled {
		return mcp.NewToolResultText(status.Message +
			"\nSketchfab is disabled. Enable it in the BlenderMCP panel and set your API key."), nil
	}
	return mcp.NewToolResultText(status.Message), nil
}

func (s *Server) handleSearchSketchfab(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := s.deps.Blender.SearchSketchfabModels(ctx, query,
		req.GetString("categories", ""), req.GetInt("count", 20), req.GetBool("downloadable", true))
	if err != nil {
		return errorText("searching Sketchfab models", err), nil
	}
	return rawResult(raw), nil
}

func (s *Server) handleDownloadSketchfab(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid, err := req.RequireString("uid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := s.deps.Blender.DownloadSketchfabModel(ctx, uid)
	if err != nil {
		return errorText("downloading Sketchfab model", err), nil
	}
	return rawResult(raw), nil
}

func validAssetType(assetType string) bool {
	switch assetType {
	case "hdris", "textures", "models", "all":
		return true
	}
	return false
}
