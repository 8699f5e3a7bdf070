package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"blender_mcp/blender"
	"blender_mcp/core"
	"blender_mcp/history"
	"blender_mcp/hunyuan"
	"blender_mcp/logging"
	"blender_mcp/metrics"
	"blender_mcp/sdapi"
	"blender_mcp/shutdown"
)

type discardSyncer struct{}

func (discardSyncer) Write(p []byte) (int, error) { return len(p), nil }
func (discardSyncer) Sync() error                 { return nil }

func testLogger() *logging.Logger {
	return logging.NewLoggerWithWriters(false, discardSyncer{}, discardSyncer{})
}

const onePixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

// stubBlender answers every addon command with canned payloads.
type stubBlender struct {
	objectInfo     json.RawMessage
	executedCode   []string
	screenshotData []byte
	importedModels []string
	hyper3DEnabled bool
}

func (b *stubBlender) State() blender.State { return blender.StateConnected }

func (b *stubBlender) GetSceneInfo(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"name":"Scene","object_count":2}`), nil
}

func (b *stubBlender) GetObjectInfo(ctx context.Context, objectName string) (json.RawMessage, error) {
	return b.objectInfo, nil
}

func (b *stubBlender) GetViewportScreenshot(ctx context.Context, maxSize int, path, format string) (json.RawMessage, error) {
	if err := os.WriteFile(path, b.screenshotData, 0o644); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"success":true}`), nil
}

func (b *stubBlender) ExecuteCode(ctx context.Context, code string) (json.RawMessage, error) {
	b.executedCode = append(b.executedCode, code)
	return json.RawMessage(`{"executed":true}`), nil
}

func (b *stubBlender) GetPolyHavenStatus(ctx context.Context) (*blender.IntegrationStatus, error) {
	return &blender.IntegrationStatus{Enabled: false, Message: "PolyHaven is disabled"}, nil
}

func (b *stubBlender) GetPolyHavenCategories(ctx context.Context, assetType string) (json.RawMessage, error) {
	return json.RawMessage(`{"categories":["outdoor"]}`), nil
}

func (b *stubBlender) SearchPolyHavenAssets(ctx context.Context, assetType, categories string) (json.RawMessage, error) {
	return json.RawMessage(`{"assets":[]}`), nil
}

func (b *stubBlender) DownloadPolyHavenAsset(ctx context.Context, assetID, assetType, resolution, fileFormat string) (json.RawMessage, error) {
	return json.RawMessage(`{"success":true}`), nil
}

func (b *stubBlender) SetTexture(ctx context.Context, objectName, textureID string) (json.RawMessage, error) {
	return json.RawMessage(`{"success":true}`), nil
}

func (b *stubBlender) GetSketchfabStatus(ctx context.Context) (*blender.IntegrationStatus, error) {
	return &blender.IntegrationStatus{Enabled: true, Message: "Sketchfab is enabled"}, nil
}

func (b *stubBlender) SearchSketchfabModels(ctx context.Context, query, categories string, count int, downloadable bool) (json.RawMessage, error) {
	return json.RawMessage(`{"results":[]}`), nil
}

func (b *stubBlender) DownloadSketchfabModel(ctx context.Context, uid string) (json.RawMessage, error) {
	return json.RawMessage(`{"success":true}`), nil
}

func (b *stubBlender) GetHyper3DStatus(ctx context.Context) (*blender.IntegrationStatus, error) {
	return &blender.IntegrationStatus{Enabled: b.hyper3DEnabled, Message: "Hyper3D status"}, nil
}

func (b *stubBlender) CreateRodinJob(ctx context.Context, textPrompt string, images []any, bboxCondition []int) (json.RawMessage, error) {
	return json.RawMessage(`{"uuid":"task-1","jobs":{"subscription_key":"sub-1"}}`), nil
}

func (b *stubBlender) PollRodinJobStatus(ctx context.Context, subscriptionKey, requestID string) (json.RawMessage, error) {
	return json.RawMessage(`{"status_list":["Done"]}`), nil
}

func (b *stubBlender) ImportGeneratedAsset(ctx context.Context, name, taskUUID, requestID string) (json.RawMessage, error) {
	b.importedModels = append(b.importedModels, name)
	return json.RawMessage(`{"succeed":true}`), nil
}

func (b *stubBlender) ImportHunyuan3DModel(ctx context.Context, name, modelBase64 string) (json.RawMessage, error) {
	b.importedModels = append(b.importedModels, name)
	return json.RawMessage(`{"succeed":true,"name":"` + name + `"}`), nil
}

// stubSD returns a single one-pixel image for every generation.
type stubSD struct {
	lastTxt2Img *sdapi.Txt2ImgRequest
	lastImg2Img *sdapi.Img2ImgRequest
}

func (s *stubSD) Txt2Img(ctx context.Context, req *sdapi.Txt2ImgRequest) (*sdapi.GenerationResponse, error) {
	s.lastTxt2Img = req
	return &sdapi.GenerationResponse{
		Images: []string{onePixelPNG},
		Info:   `{"seed":42,"steps":20}`,
	}, nil
}

func (s *stubSD) Img2Img(ctx context.Context, req *sdapi.Img2ImgRequest) (*sdapi.GenerationResponse, error) {
	s.lastImg2Img = req
	return &sdapi.GenerationResponse{Images: []string{onePixelPNG}, Info: `{"seed":7}`}, nil
}

func (s *stubSD) GetModels(ctx context.Context) ([]sdapi.Model, error) {
	return []sdapi.Model{{ModelName: "v1-5-pruned"}}, nil
}

func (s *stubSD) GetSamplers(ctx context.Context) ([]sdapi.Sampler, error) {
	return []sdapi.Sampler{{Name: "Euler a"}, {Name: "DPM++ 2M Karras"}}, nil
}

func (s *stubSD) GetProgress(ctx context.Context) (*sdapi.Progress, error) {
	return &sdapi.Progress{}, nil
}

func (s *stubSD) CheckHealth(ctx context.Context) (*sdapi.Options, error) {
	return &sdapi.Options{SDModelCheckpoint: "v1-5-pruned"}, nil
}

type stubHunyuan struct {
	status hunyuan.TaskStatus
}

func (h *stubHunyuan) Health(ctx context.Context) error { return nil }

func (h *stubHunyuan) Generate(ctx context.Context, req *hunyuan.GenerateRequest) ([]byte, error) {
	return []byte("glTF-binary"), nil
}

func (h *stubHunyuan) Send(ctx context.Context, req *hunyuan.GenerateRequest) (string, error) {
	return "task-async-1", nil
}

func (h *stubHunyuan) Status(ctx context.Context, uid string) (*hunyuan.TaskStatus, error) {
	status := h.status
	return &status, nil
}

func (h *stubHunyuan) Download(ctx context.Context, uid string) ([]byte, error) {
	return []byte("glTF-binary"), nil
}

type serverFixture struct {
	server  *Server
	blender *stubBlender
	sd      *stubSD
	hunyuan *stubHunyuan
	metrics *metrics.Store
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()

	cfg := &core.Config{
		SDWebUIURL:        "http://localhost:7860",
		Hunyuan3DURL:      "http://localhost:8081",
		SDDefaultWidth:    512,
		SDDefaultHeight:   512,
		SDDefaultSteps:    20,
		SDDefaultCFGScale: 7.0,
		SDNegativePrompt:  "blurry",
		OutputDir:         t.TempDir(),
	}

	screenshot, err := base64.StdEncoding.DecodeString(onePixelPNG)
	if err != nil {
		t.Fatalf("decode test PNG: %v", err)
	}

	fixture := &serverFixture{
		blender: &stubBlender{
			objectInfo:     json.RawMessage(`{"name":"Cube","type":"MESH"}`),
			screenshotData: screenshot,
			hyper3DEnabled: true,
		},
		sd:      &stubSD{},
		hunyuan: &stubHunyuan{status: hunyuan.TaskStatus{Status: hunyuan.StatusRunning, Progress: 40}},
		metrics: metrics.NewStore(metrics.StoreConfig{TaskHistoryCapacity: 10, Version: Version}, time.Now()),
	}

	logger := testLogger()
	fixture.server = NewServer(Deps{
		Config:  cfg,
		Logger:  logger,
		Caps:    core.Capabilities{Blender: true, StableDiffusion: true, Hunyuan3D: true},
		Blender: fixture.blender,
		SD:      fixture.sd,
		Hunyuan: fixture.hunyuan,
		History: history.NullStore{},
		Metrics: fixture.metrics,
		Manager: shutdown.NewManager(logger),
	})
	return fixture
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("tool result has no content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("tool result content is %T, want TextContent", result.Content[0])
	}
	return text.Text
}

func TestGetObjectInfo(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handleGetObjectInfo(context.Background(),
		callRequest("get_object_info", map[string]any{"object_name": "Cube"}))
	if err != nil {
		t.Fatalf("handleGetObjectInfo() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("handleGetObjectInfo() returned error result: %s", resultText(t, result))
	}
	if got := resultText(t, result); !strings.Contains(got, `"Cube"`) {
		t.Errorf("result = %q, want object payload", got)
	}
}

func TestGetObjectInfoMissingName(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handleGetObjectInfo(context.Background(),
		callRequest("get_object_info", map[string]any{}))
	if err != nil {
		t.Fatalf("handleGetObjectInfo() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("missing object_name accepted")
	}
}

func TestViewportScreenshotReturnsImage(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handleViewportScreenshot(context.Background(),
		callRequest("get_viewport_screenshot", map[string]any{"max_size": float64(400)}))
	if err != nil {
		t.Fatalf("handleViewportScreenshot() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("screenshot failed: %s", resultText(t, result))
	}

	foundImage := false
	for _, content := range result.Content {
		if image, ok := content.(mcp.ImageContent); ok {
			foundImage = true
			if image.MIMEType != "image/png" {
				t.Errorf("image MIME type = %q, want image/png", image.MIMEType)
			}
			if image.Data != onePixelPNG {
				t.Error("image data does not round-trip the capture")
			}
		}
	}
	if !foundImage {
		t.Error("result has no image content")
	}
}

func TestViewportScreenshotDownscalesOversizedCapture(t *testing.T) {
	fixture := newTestServer(t)

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	fixture.blender.screenshotData = buf.Bytes()

	result, err := fixture.server.handleViewportScreenshot(context.Background(),
		callRequest("get_viewport_screenshot", map[string]any{"max_size": float64(2)}))
	if err != nil {
		t.Fatalf("handleViewportScreenshot() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("screenshot failed: %s", resultText(t, result))
	}

	for _, content := range result.Content {
		img, ok := content.(mcp.ImageContent)
		if !ok {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			t.Fatalf("decode image data: %v", err)
		}
		decoded, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("decode PNG: %v", err)
		}
		bounds := decoded.Bounds()
		if bounds.Dx() > 2 || bounds.Dy() > 2 {
			t.Errorf("image is %dx%d, want at most 2x2", bounds.Dx(), bounds.Dy())
		}
		return
	}
	t.Fatal("result has no image content")
}

func TestTxt2ImgSavesImageAndRecordsMetrics(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handleTxt2Img(context.Background(),
		callRequest("generate_stable_diffusion_image", map[string]any{
			"prompt": "a red cube on a wooden table",
			"steps":  float64(25),
		}))
	if err != nil {
		t.Fatalf("handleTxt2Img() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("handleTxt2Img() returned error result: %s", resultText(t, result))
	}

	if fixture.sd.lastTxt2Img == nil {
		t.Fatal("Txt2Img was never called")
	}
	if fixture.sd.lastTxt2Img.Steps != 25 {
		t.Errorf("steps = %d, want 25", fixture.sd.lastTxt2Img.Steps)
	}
	if fixture.sd.lastTxt2Img.NegativePrompt != "blurry" {
		t.Errorf("negative prompt = %q, want config default", fixture.sd.lastTxt2Img.NegativePrompt)
	}

	entries, err := os.ReadDir(fixture.server.deps.Config.OutputDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	foundPNG := false
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".png" {
			foundPNG = true
		}
	}
	if !foundPNG {
		t.Error("no PNG written to the output directory")
	}

	taskMetrics := fixture.metrics.GetTaskMetrics()
	if taskMetrics.TotalSuccess != 1 {
		t.Errorf("TotalSuccess = %d, want 1", taskMetrics.TotalSuccess)
	}
}

func TestTxt2ImgGuidanceWhenWebUIDown(t *testing.T) {
	fixture := newTestServer(t)
	fixture.server.deps.SD = nil

	result, err := fixture.server.handleTxt2Img(context.Background(),
		callRequest("generate_stable_diffusion_image", map[string]any{"prompt": "anything"}))
	if err != nil {
		t.Fatalf("handleTxt2Img() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result when the WebUI is down")
	}
	if got := resultText(t, result); !strings.Contains(got, "SD_WEBUI_URL") {
		t.Errorf("guidance = %q, want mention of SD_WEBUI_URL", got)
	}
}

func TestBatchTxt2ImgRequiresPrompts(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handleBatchTxt2Img(context.Background(),
		callRequest("batch_txt2img", map[string]any{"prompts": []any{}}))
	if err != nil {
		t.Fatalf("handleBatchTxt2Img() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("empty prompts accepted")
	}
}

func TestBatchTxt2ImgGeneratesEachPrompt(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handleBatchTxt2Img(context.Background(),
		callRequest("batch_txt2img", map[string]any{
			"prompts": []any{"a cat", "a dog"},
		}))
	if err != nil {
		t.Fatalf("handleBatchTxt2Img() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("batch failed: %s", resultText(t, result))
	}
	if got := resultText(t, result); !strings.Contains(got, "2/2 succeeded") {
		t.Errorf("summary = %q, want 2/2 succeeded", got)
	}

	taskMetrics := fixture.metrics.GetTaskMetrics()
	if taskMetrics.TotalProcessed != 2 {
		t.Errorf("TotalProcessed = %d, want 2", taskMetrics.TotalProcessed)
	}
}

func TestEnhanceImage(t *testing.T) {
	fixture := newTestServer(t)

	data, _ := base64.StdEncoding.DecodeString(onePixelPNG)
	inputPath := filepath.Join(t.TempDir(), "input.png")
	if err := os.WriteFile(inputPath, data, 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}

	result, err := fixture.server.handleEnhanceImage(context.Background(),
		callRequest("enhance_image", map[string]any{
			"image_path": inputPath,
			"prompt":     "sharper details",
		}))
	if err != nil {
		t.Fatalf("handleEnhanceImage() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("enhance failed: %s", resultText(t, result))
	}
	if fixture.sd.lastImg2Img == nil || len(fixture.sd.lastImg2Img.InitImages) != 1 {
		t.Fatal("Img2Img was not called with the init image")
	}
	if fixture.sd.lastImg2Img.BatchSize != 1 || fixture.sd.lastImg2Img.NIter != 1 {
		t.Errorf("batch_size = %d, n_iter = %d, want 1 and 1",
			fixture.sd.lastImg2Img.BatchSize, fixture.sd.lastImg2Img.NIter)
	}
}

func TestWebUIStatusReportsModelAndSamplers(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handleWebUIStatus(context.Background(),
		callRequest("check_webui_status", nil))
	if err != nil {
		t.Fatalf("handleWebUIStatus() error = %v", err)
	}
	got := resultText(t, result)
	if !strings.Contains(got, "v1-5-pruned") {
		t.Errorf("status = %q, want active model name", got)
	}
	if !strings.Contains(got, "Euler a") {
		t.Errorf("status = %q, want sampler names", got)
	}

	backend, ok := fixture.metrics.GetBackendStatus(metrics.BackendStableDiffusion)
	if !ok || !backend.Available {
		t.Error("backend status not recorded as available")
	}
}

func TestGenerateHunyuanSyncImportsModel(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handleGenerateHunyuan(context.Background(),
		callRequest("generate_hunyuan3d_model", map[string]any{
			"image_base64": onePixelPNG,
			"object_name":  "Crate",
		}))
	if err != nil {
		t.Fatalf("handleGenerateHunyuan() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("generation failed: %s", resultText(t, result))
	}
	if len(fixture.blender.importedModels) != 1 || fixture.blender.importedModels[0] != "Crate" {
		t.Errorf("imported models = %v, want [Crate]", fixture.blender.importedModels)
	}
}

func TestGenerateHunyuanAsyncReturnsUID(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handleGenerateHunyuan(context.Background(),
		callRequest("generate_hunyuan3d_model", map[string]any{
			"image_base64": onePixelPNG,
			"sync_mode":    false,
		}))
	if err != nil {
		t.Fatalf("handleGenerateHunyuan() error = %v", err)
	}
	if got := resultText(t, result); !strings.Contains(got, "task-async-1") {
		t.Errorf("result = %q, want task uid", got)
	}
	if len(fixture.blender.importedModels) != 0 {
		t.Error("async submit must not import anything")
	}
}

func TestPollHunyuanCompletedImports(t *testing.T) {
	fixture := newTestServer(t)
	fixture.hunyuan.status = hunyuan.TaskStatus{Status: hunyuan.StatusCompleted, Progress: 100}

	result, err := fixture.server.handlePollHunyuan(context.Background(),
		callRequest("poll_hunyuan3d_status", map[string]any{
			"task_uid":    "task-async-1",
			"object_name": "Barrel",
		}))
	if err != nil {
		t.Fatalf("handlePollHunyuan() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("poll failed: %s", resultText(t, result))
	}
	if len(fixture.blender.importedModels) != 1 || fixture.blender.importedModels[0] != "Barrel" {
		t.Errorf("imported models = %v, want [Barrel]", fixture.blender.importedModels)
	}
}

func TestPollHunyuanRunningReportsProgress(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handlePollHunyuan(context.Background(),
		callRequest("poll_hunyuan3d_status", map[string]any{"task_uid": "task-async-1"}))
	if err != nil {
		t.Fatalf("handlePollHunyuan() error = %v", err)
	}
	if got := resultText(t, result); !strings.Contains(got, "40%") {
		t.Errorf("result = %q, want progress", got)
	}
}

func TestProcessBBox(t *testing.T) {
	tests := []struct {
		name    string
		arg     any
		want    []int
		wantErr bool
	}{
		{name: "nil passes through", arg: nil, want: nil},
		{name: "whole numbers kept", arg: []any{float64(100), float64(50), float64(20)}, want: []int{100, 50, 20}},
		{name: "fractional normalized", arg: []any{0.5, 1.0, 0.25}, want: []int{50, 100, 25}},
		{name: "negative fractional rejected", arg: []any{-0.5, 1.0}, wantErr: true},
		{name: "non-number rejected", arg: []any{"wide"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := processBBox(tt.arg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("processBBox() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("processBBox() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("processBBox() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("processBBox()[%d] = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRodinViaImagesRejectsBothSources(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handleRodinViaImages(context.Background(),
		callRequest("generate_hyper3d_model_via_images", map[string]any{
			"input_image_paths": []any{"/tmp/a.png"},
			"input_image_urls":  []any{"http://example.com/a.png"},
		}))
	if err != nil {
		t.Fatalf("handleRodinViaImages() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("both image sources accepted")
	}
}

func TestGetPresetsListsAndDetails(t *testing.T) {
	fixture := newTestServer(t)

	list, err := fixture.server.handleGetPresets(context.Background(),
		callRequest("get_sd_presets", nil))
	if err != nil {
		t.Fatalf("handleGetPresets() error = %v", err)
	}
	if got := resultText(t, list); !strings.Contains(got, "quality") || !strings.Contains(got, "speed") {
		t.Errorf("preset list = %q, want quality and speed", got)
	}

	detail, err := fixture.server.handleGetPresets(context.Background(),
		callRequest("get_sd_presets", map[string]any{"name": "quality"}))
	if err != nil {
		t.Fatalf("handleGetPresets(quality) error = %v", err)
	}
	if got := resultText(t, detail); !strings.Contains(got, "sampler_name") {
		t.Errorf("preset detail = %q, want full parameters", got)
	}

	unknown, err := fixture.server.handleGetPresets(context.Background(),
		callRequest("get_sd_presets", map[string]any{"name": "nope"}))
	if err != nil {
		t.Fatalf("handleGetPresets(nope) error = %v", err)
	}
	if !unknown.IsError {
		t.Error("unknown preset accepted")
	}
}

func TestOptimizeParametersRespectsTimeBudget(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handleOptimizeParameters(context.Background(),
		callRequest("optimize_sd_parameters", map[string]any{
			"goal":                "quality",
			"hardware":            "low",
			"time_budget_seconds": float64(30),
		}))
	if err != nil {
		t.Fatalf("handleOptimizeParameters() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("optimize failed: %s", resultText(t, result))
	}
	if got := resultText(t, result); !strings.Contains(got, "Estimated time") {
		t.Errorf("result = %q, want estimates", got)
	}
}

func TestOptimizedTxt2ImgUsesOptimizerParams(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handleOptimizedTxt2Img(context.Background(),
		callRequest("optimized_txt2img", map[string]any{
			"prompt":   "a portrait of an old sailor",
			"goal":     "speed",
			"hardware": "low",
		}))
	if err != nil {
		t.Fatalf("handleOptimizedTxt2Img() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("generation failed: %s", resultText(t, result))
	}

	if fixture.sd.lastTxt2Img == nil {
		t.Fatal("Txt2Img was never called")
	}
	if fixture.sd.lastTxt2Img.Steps > 20 {
		t.Errorf("speed/low produced %d steps, want a reduced count", fixture.sd.lastTxt2Img.Steps)
	}
	if fixture.sd.lastTxt2Img.EnableHR {
		t.Error("speed/low enabled the high-res fix")
	}
}

func TestWorkflowPresetsListed(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handleWorkflowPresets(context.Background(),
		callRequest("get_workflow_presets", nil))
	if err != nil {
		t.Fatalf("handleWorkflowPresets() error = %v", err)
	}
	got := resultText(t, result)
	for _, name := range []string{"fast", "balanced", "quality", "creative"} {
		if !strings.Contains(got, name) {
			t.Errorf("presets = %q, missing %s", got, name)
		}
	}
}

func TestExecuteWorkflowStableDiffusionMethod(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handleExecuteWorkflow(context.Background(),
		callRequest("execute_text_to_3d_workflow", map[string]any{
			"description": "a ceramic teapot",
			"preset":      "fast",
			"method":      "stable_diffusion",
		}))
	if err != nil {
		t.Fatalf("handleExecuteWorkflow() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("workflow failed: %s", resultText(t, result))
	}
	if got := resultText(t, result); !strings.Contains(got, "completed") {
		t.Errorf("result = %q, want completion summary", got)
	}

	fixture.server.mu.Lock()
	runs := len(fixture.server.workflowRuns)
	fixture.server.mu.Unlock()
	if runs != 1 {
		t.Errorf("tracked runs = %d, want 1", runs)
	}
}

func TestWorkflowStatusUnknownID(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handleWorkflowStatus(context.Background(),
		callRequest("get_workflow_status", map[string]any{"correlation_id": "nope"}))
	if err != nil {
		t.Fatalf("handleWorkflowStatus() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("unknown correlation id accepted")
	}
}

func TestWorkflowStatusSystemOverview(t *testing.T) {
	fixture := newTestServer(t)
	fixture.metrics.RecordTask(metrics.TaskRecord{
		ID: "t1", Type: metrics.TaskTypeTxt2Img, Status: metrics.TaskStatusSuccess,
		StartTime: time.Now(), Duration: time.Second,
	})

	result, err := fixture.server.handleWorkflowStatus(context.Background(),
		callRequest("get_workflow_status", nil))
	if err != nil {
		t.Fatalf("handleWorkflowStatus() error = %v", err)
	}
	got := resultText(t, result)
	if !strings.Contains(got, "1 processed") {
		t.Errorf("status = %q, want task totals", got)
	}
	if !strings.Contains(got, Version) {
		t.Errorf("status = %q, want version %s", got, Version)
	}
}

func TestCustomWorkflowRejectsInvalidConfig(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handleCustomWorkflow(context.Background(),
		callRequest("create_custom_workflow", map[string]any{
			"description": "a chair",
			"method":      "teleportation",
		}))
	if err != nil {
		t.Fatalf("handleCustomWorkflow() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("unknown method accepted")
	}
}

func TestAssetCreationStrategyPrompt(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handleAssetCreationStrategy(context.Background(), mcp.GetPromptRequest{})
	if err != nil {
		t.Fatalf("handleAssetCreationStrategy() error = %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("prompt has %d messages, want 1", len(result.Messages))
	}
	text, ok := result.Messages[0].Content.(mcp.TextContent)
	if !ok {
		t.Fatalf("prompt content is %T, want TextContent", result.Messages[0].Content)
	}
	if !strings.Contains(text.Text, "get_polyhaven_status") {
		t.Error("strategy does not mention the PolyHaven status check")
	}
}

func TestPolyHavenDisabledGuidance(t *testing.T) {
	fixture := newTestServer(t)

	result, err := fixture.server.handlePolyHavenStatus(context.Background(),
		callRequest("get_polyhaven_status", nil))
	if err != nil {
		t.Fatalf("handlePolyHavenStatus() error = %v", err)
	}
	if got := resultText(t, result); !strings.Contains(got, "disabled") {
		t.Errorf("status = %q, want disabled guidance", got)
	}
}
