package workflow

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"blender_mcp/hunyuan"
	"blender_mcp/logging"
	"blender_mcp/sdapi"
)

type discardSyncer struct{}

func (discardSyncer) Write(p []byte) (int, error) { return len(p), nil }
func (discardSyncer) Sync() error                 { return nil }

func testLogger() *logging.Logger {
	return logging.NewLoggerWithWriters(false, discardSyncer{}, discardSyncer{})
}

var fakeImage = base64.StdEncoding.EncodeToString([]byte("fake png bytes"))

type stubImages struct {
	lastReq *sdapi.Txt2ImgRequest
	err     error
}

func (s *stubImages) Txt2Img(ctx context.Context, req *sdapi.Txt2ImgRequest) (*sdapi.GenerationResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &sdapi.GenerationResponse{Images: []string{fakeImage}}, nil
}

type stubModels struct {
	lastReq *hunyuan.GenerateRequest
	err     error
}

func (s *stubModels) Generate(ctx context.Context, req *hunyuan.GenerateRequest) ([]byte, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return []byte("glTF model bytes"), nil
}

type stubBlender struct {
	imported     []string
	executedCode []string
	rodinPrompt  string
	rodinImages  int
	polls        int
	pollResults  []string // JSON responses returned in order
	importedUUID string
}

func (s *stubBlender) ImportHunyuan3DModel(ctx context.Context, name, modelBase64 string) (json.RawMessage, error) {
	s.imported = append(s.imported, name)
	return json.RawMessage(`{"status":"imported"}`), nil
}

func (s *stubBlender) CreateRodinJob(ctx context.Context, textPrompt string, images []any, bbox []int) (json.RawMessage, error) {
	s.rodinPrompt = textPrompt
	s.rodinImages = len(images)
	return json.RawMessage(`{"uuid":"task-1","subscription_key":"sub-1"}`), nil
}

func (s *stubBlender) PollRodinJobStatus(ctx context.Context, subscriptionKey, requestID string) (json.RawMessage, error) {
	result := s.pollResults[min(s.polls, len(s.pollResults)-1)]
	s.polls++
	return json.RawMessage(result), nil
}

func (s *stubBlender) ImportGeneratedAsset(ctx context.Context, name, taskUUID, requestID string) (json.RawMessage, error) {
	s.importedUUID = taskUUID
	s.imported = append(s.imported, name)
	return json.RawMessage(`{"status":"imported"}`), nil
}

func (s *stubBlender) ExecuteCode(ctx context.Context, code string) (json.RawMessage, error) {
	s.executedCode = append(s.executedCode, code)
	return json.RawMessage(`{"executed":true}`), nil
}

func testConfig(t *testing.T, method Method) Config {
	config := DefaultConfig("a red ceramic vase")
	config.OutputDirectory = t.TempDir()
	config.Method = method
	return config
}

func TestExecuteHunyuanWorkflow(t *testing.T) {
	images := &stubImages{}
	models := &stubModels{}
	blender := &stubBlender{}

	manager := NewManager(testConfig(t, MethodHunyuan3D), Backends{
		Images: images, Models: models, Blender: blender,
	}, testLogger())

	result := manager.Execute(context.Background())
	if !result.Success {
		t.Fatalf("Execute() failed: %s", result.ErrorMessage)
	}
	if result.Stage != StageCompleted {
		t.Errorf("stage = %s", result.Stage)
	}

	if images.lastReq == nil {
		t.Fatal("txt2img was not called")
	}
	if images.lastReq.Prompt != "a red ceramic vase" {
		t.Errorf("prompt = %q", images.lastReq.Prompt)
	}

	if models.lastReq == nil {
		t.Fatal("hunyuan generate was not called")
	}
	if models.lastReq.Seed != 1234 || !models.lastReq.RemoveBackground {
		t.Errorf("model request = %+v", models.lastReq)
	}

	if len(blender.imported) != 1 {
		t.Fatalf("imported objects = %v", blender.imported)
	}
	// Scene assembly plus the polish pass.
	if len(blender.executedCode) != 2 {
		t.Fatalf("executed %d scripts, want 2", len(blender.executedCode))
	}
	if !strings.Contains(blender.executedCode[0], blender.imported[0]) {
		t.Error("scene assembly script does not reference the imported object")
	}

	// Image, GLB, and report.
	if len(result.GeneratedFiles) != 3 {
		t.Errorf("generated files = %v", result.GeneratedFiles)
	}
	for _, path := range result.GeneratedFiles {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing generated file %s: %v", path, err)
		}
	}
}

func TestCurrentStageDuringExecute(t *testing.T) {
	manager := NewManager(testConfig(t, MethodHunyuan3D), Backends{
		Images:  &stubImages{},
		Models:  &stubModels{},
		Blender: &stubBlender{},
	}, testLogger())

	done := make(chan Result, 1)
	go func() {
		done <- manager.Execute(context.Background())
	}()

	// Poll the stage from another goroutine the way a status handler does.
	for {
		select {
		case result := <-done:
			if !result.Success {
				t.Fatalf("Execute() failed: %s", result.ErrorMessage)
			}
			if got := manager.CurrentStage(); got != StageCompleted {
				t.Errorf("CurrentStage() = %s, want %s", got, StageCompleted)
			}
			return
		default:
			_ = manager.CurrentStage()
		}
	}
}

func TestExecuteWritesReport(t *testing.T) {
	config := testConfig(t, MethodStableDiffusion)
	manager := NewManager(config, Backends{Images: &stubImages{}}, testLogger())

	result := manager.Execute(context.Background())
	if !result.Success {
		t.Fatalf("Execute() failed: %s", result.ErrorMessage)
	}

	var reportPath string
	for _, path := range result.GeneratedFiles {
		if strings.Contains(filepath.Base(path), "workflow_report") {
			reportPath = path
		}
	}
	if reportPath == "" {
		t.Fatalf("no report in %v", result.GeneratedFiles)
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatal(err)
	}
	var report map[string]any
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if report["correlation_id"] != result.CorrelationID {
		t.Errorf("report correlation id = %v", report["correlation_id"])
	}
	if _, ok := report["stage_results"]; !ok {
		t.Error("report has no stage results")
	}
}

func TestExecuteImageFailureStopsRun(t *testing.T) {
	images := &stubImages{err: errors.New("webui unreachable")}
	blender := &stubBlender{}

	manager := NewManager(testConfig(t, MethodHunyuan3D), Backends{
		Images: images, Models: &stubModels{}, Blender: blender,
	}, testLogger())

	result := manager.Execute(context.Background())
	if result.Success {
		t.Fatal("Execute() succeeded despite image failure")
	}
	if result.Stage != StageFailed {
		t.Errorf("stage = %s", result.Stage)
	}
	if !strings.Contains(result.ErrorMessage, "image generation failed") {
		t.Errorf("error = %q", result.ErrorMessage)
	}
	if len(blender.imported) != 0 {
		t.Error("model stage ran after image failure")
	}
}

func TestExecuteHyper3DTextSkipsImageStage(t *testing.T) {
	blender := &stubBlender{pollResults: []string{`{"status_list":["Done","Done"]}`}}

	manager := NewManager(testConfig(t, MethodHyper3DText), Backends{Blender: blender}, testLogger())
	manager.pollInterval = time.Millisecond

	result := manager.Execute(context.Background())
	if !result.Success {
		t.Fatalf("Execute() failed: %s", result.ErrorMessage)
	}

	for _, stage := range result.StageResults {
		if stage.Stage == StageImageGeneration {
			t.Error("image generation ran for a text-only method")
		}
	}
	if blender.rodinPrompt != "a red ceramic vase" {
		t.Errorf("rodin prompt = %q", blender.rodinPrompt)
	}
	if blender.importedUUID != "task-1" {
		t.Errorf("imported task uuid = %q", blender.importedUUID)
	}
}

func TestExecuteRodinPollingUntilDone(t *testing.T) {
	blender := &stubBlender{pollResults: []string{
		`{"status_list":["Generating","Waiting"]}`,
		`{"status_list":["Done","Generating"]}`,
		`{"status_list":["Done","Done"]}`,
	}}

	manager := NewManager(testConfig(t, MethodHyper3DText), Backends{Blender: blender}, testLogger())
	manager.pollInterval = time.Millisecond

	result := manager.Execute(context.Background())
	if !result.Success {
		t.Fatalf("Execute() failed: %s", result.ErrorMessage)
	}
	if blender.polls != 3 {
		t.Errorf("polls = %d, want 3", blender.polls)
	}
}

func TestExecuteRodinJobFailure(t *testing.T) {
	blender := &stubBlender{pollResults: []string{`{"status_list":["Done","Failed"]}`}}

	manager := NewManager(testConfig(t, MethodHyper3DText), Backends{Blender: blender}, testLogger())
	manager.pollInterval = time.Millisecond

	result := manager.Execute(context.Background())
	if result.Success {
		t.Fatal("Execute() succeeded despite a failed rodin job")
	}
	if !strings.Contains(result.ErrorMessage, "rodin job failed") {
		t.Errorf("error = %q", result.ErrorMessage)
	}
}

func TestRodinJobStateFALAIMode(t *testing.T) {
	if done, failed := rodinJobState(json.RawMessage(`{"status":"COMPLETED"}`)); !done || failed {
		t.Errorf("COMPLETED: done=%v failed=%v", done, failed)
	}
	if done, failed := rodinJobState(json.RawMessage(`{"status":"FAILED"}`)); done || !failed {
		t.Errorf("FAILED: done=%v failed=%v", done, failed)
	}
	if done, failed := rodinJobState(json.RawMessage(`{"status":"IN_PROGRESS"}`)); done || failed {
		t.Errorf("IN_PROGRESS: done=%v failed=%v", done, failed)
	}
}

func TestExecuteMissingBackend(t *testing.T) {
	manager := NewManager(testConfig(t, MethodHunyuan3D), Backends{}, testLogger())

	result := manager.Execute(context.Background())
	if result.Success {
		t.Fatal("Execute() succeeded without backends")
	}
	if !strings.Contains(result.ErrorMessage, "not available") {
		t.Errorf("error = %q", result.ErrorMessage)
	}
}

func TestOptimizationGoalOverridesImageParams(t *testing.T) {
	images := &stubImages{}
	config := testConfig(t, MethodStableDiffusion)
	config.OptimizationGoal = "speed"
	config.HardwareProfile = "low"

	manager := NewManager(config, Backends{Images: images}, testLogger())
	result := manager.Execute(context.Background())
	if !result.Success {
		t.Fatalf("Execute() failed: %s", result.ErrorMessage)
	}

	if images.lastReq.Steps > 15 {
		t.Errorf("steps = %d, want the speed goal's reduction", images.lastReq.Steps)
	}
	if images.lastReq.EnableHR {
		t.Error("enable_hr = true on low hardware")
	}
	if images.lastReq.Width > 512 || images.lastReq.Height > 512 {
		t.Errorf("resolution = %dx%d, want <= 512 on low hardware", images.lastReq.Width, images.lastReq.Height)
	}
}
