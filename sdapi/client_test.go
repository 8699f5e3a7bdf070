package sdapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"blender_mcp/logging"
)

type discardSyncer struct{}

func (discardSyncer) Write(p []byte) (int, error) { return len(p), nil }
func (discardSyncer) Sync() error                 { return nil }

func testLogger() *logging.Logger {
	return logging.NewLoggerWithWriters(false, discardSyncer{}, discardSyncer{})
}

// onePixelPNG is a valid 1x1 PNG, base64 encoded.
const onePixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	httpClient := &http.Client{Timeout: 5 * time.Second}
	client := NewClient(srv.URL, httpClient, httpClient, testLogger())
	return client, srv
}

func TestTxt2Img(t *testing.T) {
	var gotReq Txt2ImgRequest
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sdapi/v1/txt2img" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(GenerationResponse{
			Images: []string{onePixelPNG},
			Info:   `{"seed": 1234, "all_seeds": [1234], "steps": 20}`,
		})
	}))
	defer srv.Close()

	resp, err := client.Txt2Img(context.Background(), &Txt2ImgRequest{
		Prompt:   "a red cube on a wooden table",
		Width:    512,
		Height:   512,
		Steps:    20,
		CFGScale: 7.0,
		Seed:     1234,
	})
	if err != nil {
		t.Fatalf("Txt2Img() error = %v", err)
	}

	if gotReq.Prompt != "a red cube on a wooden table" {
		t.Errorf("server saw prompt %q", gotReq.Prompt)
	}
	if len(resp.Images) != 1 {
		t.Fatalf("images = %d, want 1", len(resp.Images))
	}

	info, err := resp.DecodeInfo()
	if err != nil {
		t.Fatalf("DecodeInfo() error = %v", err)
	}
	if info.Seed != 1234 || info.Steps != 20 {
		t.Errorf("info = %+v", info)
	}
}

func TestTxt2ImgEmptyImages(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(GenerationResponse{})
	}))
	defer srv.Close()

	_, err := client.Txt2Img(context.Background(), &Txt2ImgRequest{Prompt: "x", Width: 512, Height: 512, Steps: 20})
	if err == nil {
		t.Fatal("Txt2Img() succeeded with empty image list")
	}
}

func TestTxt2ImgServerError(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "CUDA out of memory", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := client.Txt2Img(context.Background(), &Txt2ImgRequest{Prompt: "x", Width: 512, Height: 512, Steps: 20})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if apiErr.Body != "CUDA out of memory" {
		t.Errorf("body = %q", apiErr.Body)
	}
}

func TestImg2ImgRequiresInitImage(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called")
	}))
	defer srv.Close()

	_, err := client.Img2Img(context.Background(), &Img2ImgRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("Img2Img() succeeded without init images")
	}
}

func TestGetModelsAndSamplers(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sdapi/v1/sd-models":
			json.NewEncoder(w).Encode([]Model{{Title: "v1-5-pruned", ModelName: "v1-5-pruned", Hash: "abc123"}})
		case "/sdapi/v1/samplers":
			json.NewEncoder(w).Encode([]Sampler{{Name: "Euler a"}, {Name: "DPM++ 2M Karras"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	models, err := client.GetModels(context.Background())
	if err != nil {
		t.Fatalf("GetModels() error = %v", err)
	}
	if len(models) != 1 || models[0].ModelName != "v1-5-pruned" {
		t.Errorf("models = %+v", models)
	}

	samplers, err := client.GetSamplers(context.Background())
	if err != nil {
		t.Fatalf("GetSamplers() error = %v", err)
	}
	if len(samplers) != 2 || samplers[1].Name != "DPM++ 2M Karras" {
		t.Errorf("samplers = %+v", samplers)
	}
}

func TestGetProgressAndInterrupt(t *testing.T) {
	interrupted := false
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sdapi/v1/progress":
			json.NewEncoder(w).Encode(map[string]any{
				"progress": 0.45,
				"state":    map[string]any{"sampling_step": 9, "sampling_steps": 20},
			})
		case "/sdapi/v1/interrupt":
			interrupted = true
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	progress, err := client.GetProgress(context.Background())
	if err != nil {
		t.Fatalf("GetProgress() error = %v", err)
	}
	if progress.Progress != 0.45 || progress.State.SamplingStep != 9 {
		t.Errorf("progress = %+v", progress)
	}

	if err := client.Interrupt(context.Background()); err != nil {
		t.Fatalf("Interrupt() error = %v", err)
	}
	if !interrupted {
		t.Error("interrupt endpoint never hit")
	}
}

func TestCheckHealth(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sdapi/v1/options" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(Options{SDModelCheckpoint: "v1-5-pruned.safetensors"})
	}))
	defer srv.Close()

	opts, err := client.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth() error = %v", err)
	}
	if opts.SDModelCheckpoint != "v1-5-pruned.safetensors" {
		t.Errorf("checkpoint = %q", opts.SDModelCheckpoint)
	}
}

func TestCheckHealthUnreachable(t *testing.T) {
	httpClient := &http.Client{Timeout: 500 * time.Millisecond}
	client := NewClient("http://127.0.0.1:1", httpClient, httpClient, testLogger())

	if _, err := client.CheckHealth(context.Background()); err == nil {
		t.Fatal("CheckHealth() succeeded against dead server")
	}
}
