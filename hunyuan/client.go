// Package hunyuan is an HTTP client for the Hunyuan3D-2.1 API server, which
// turns a single image into a textured 3D model. The server offers a
// synchronous endpoint that streams back GLB bytes and an asynchronous pair
// (submit, then poll and download by task UID).
package hunyuan

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"blender_mcp/logging"
)

// GenerateRequest is the request body shared by /generate and /send.
// Image is base64 encoded; use ResolveImage to build it from a path, URL,
// or raw base64 string.
type GenerateRequest struct {
	Image             string  `json:"image"`
	RemoveBackground  bool    `json:"remove_background"`
	Texture           bool    `json:"texture"`
	Seed              int     `json:"seed"`
	OctreeResolution  int     `json:"octree_resolution"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	NumChunks         int     `json:"num_chunks"`
	FaceCount         int     `json:"face_count"`
}

// DefaultGenerateRequest returns a request with the server's documented
// defaults. The caller still has to set Image.
func DefaultGenerateRequest() GenerateRequest {
	return GenerateRequest{
		RemoveBackground:  true,
		Texture:           true,
		Seed:              1234,
		OctreeResolution:  256,
		NumInferenceSteps: 5,
		GuidanceScale:     5.0,
		NumChunks:         8000,
		FaceCount:         40000,
	}
}

// Task statuses reported by /status/{uid}.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// TaskStatus is the response of /status/{uid}.
type TaskStatus struct {
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error,omitempty"`
}

// APIError is returned when the server answers with a non-2xx status.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hunyuan3d %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Client talks to one Hunyuan3D API server.
type Client struct {
	baseURL      string
	genClient    *http.Client
	statusClient *http.Client
	logger       *logging.Logger
}

// NewClient creates a Hunyuan3D client. genClient needs a generous timeout
// (synchronous generation runs for minutes); statusClient handles the cheap
// health, status, and submit calls.
func NewClient(baseURL string, genClient, statusClient *http.Client, logger *logging.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		genClient:    genClient,
		statusClient: statusClient,
		logger:       logger.Named("hunyuan"),
	}
}

// Health checks the /health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.statusClient.Do(req)
	if err != nil {
		return fmt.Errorf("hunyuan3d health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{Endpoint: "/health", StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// Generate runs a synchronous generation and returns the raw GLB bytes.
// Expect this to block for minutes; use Send/Status/Download when the
// caller needs progress reporting.
func (c *Client) Generate(ctx context.Context, genReq *GenerateRequest) ([]byte, error) {
	payload, err := json.Marshal(genReq)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.genClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hunyuan3d generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &APIError{Endpoint: "/generate", StatusCode: resp.StatusCode, Body: string(body)}
	}

	model, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read model bytes: %w", err)
	}
	if len(model) == 0 {
		return nil, fmt.Errorf("hunyuan3d generate returned an empty model")
	}

	c.logger.Info("synchronous generation complete",
		zap.Int("model_bytes", len(model)),
		zap.Duration("elapsed", time.Since(start)))
	return model, nil
}

// Send submits an asynchronous generation task and returns its UID.
func (c *Client) Send(ctx context.Context, genReq *GenerateRequest) (string, error) {
	payload, err := json.Marshal(genReq)
	if err != nil {
		return "", fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.statusClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("hunyuan3d send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &APIError{Endpoint: "/send", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result struct {
		UID string `json:"uid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}
	if result.UID == "" {
		return "", fmt.Errorf("hunyuan3d send returned no task uid")
	}

	c.logger.Info("async generation submitted", zap.String("uid", result.UID))
	return result.UID, nil
}

// Status polls an asynchronous task by UID.
func (c *Client) Status(ctx context.Context, uid string) (*TaskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+uid, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.statusClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hunyuan3d status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &APIError{Endpoint: "/status/" + uid, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var status TaskStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &status, nil
}

// Download fetches the finished model bytes of a completed task.
func (c *Client) Download(ctx context.Context, uid string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/download/"+uid, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.genClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hunyuan3d download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &APIError{Endpoint: "/download/" + uid, StatusCode: resp.StatusCode, Body: string(body)}
	}

	model, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read model bytes: %w", err)
	}
	if len(model) == 0 {
		return nil, fmt.Errorf("hunyuan3d download returned an empty model")
	}
	return model, nil
}

// ResolveImage turns exactly one of (local path, URL, raw base64) into the
// base64 string the API wants. Supplying zero or more than one source is an
// error; silently preferring one source over another hides caller bugs.
func ResolveImage(ctx context.Context, httpClient *http.Client, imagePath, imageURL, imageBase64 string) (string, error) {
	sources := 0
	for _, s := range []string{imagePath, imageURL, imageBase64} {
		if s != "" {
			sources++
		}
	}
	if sources == 0 {
		return "", fmt.Errorf("must provide one of image_path, image_url, or image_base64")
	}
	if sources > 1 {
		return "", fmt.Errorf("provide only one of image_path, image_url, or image_base64")
	}

	switch {
	case imageBase64 != "":
		if _, err := base64.StdEncoding.DecodeString(imageBase64); err != nil {
			return "", fmt.Errorf("image_base64 is not valid base64: %w", err)
		}
		return imageBase64, nil

	case imagePath != "":
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return "", fmt.Errorf("read image %s: %w", imagePath, err)
		}
		return base64.StdEncoding.EncodeToString(data), nil

	default:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
		if err != nil {
			return "", fmt.Errorf("build image download request: %w", err)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("download image %s: %w", imageURL, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("download image %s: status %d", imageURL, resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("read image body: %w", err)
		}
		return base64.StdEncoding.EncodeToString(data), nil
	}
}
