// Package sdapi is an HTTP client for the AUTOMATIC1111 Stable Diffusion
// WebUI API. It covers the generation endpoints (txt2img, img2img), the
// catalog endpoints (models, samplers), and the progress/interrupt pair used
// while a generation is running.
package sdapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"blender_mcp/logging"
)

// APIError is returned when the WebUI answers with a non-2xx status.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("webui %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Client talks to one WebUI instance. Generation calls use the long timeout,
// catalog and status calls the short one; a 300s txt2img deadline on a
// /progress poll would hide a dead server for five minutes.
type Client struct {
	baseURL      string
	genClient    *http.Client
	statusClient *http.Client
	logger       *logging.Logger
}

// NewClient creates a WebUI client. baseURL is the server root without a
// trailing slash (e.g. http://localhost:7860).
func NewClient(baseURL string, genClient, statusClient *http.Client, logger *logging.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		genClient:    genClient,
		statusClient: statusClient,
		logger:       logger.Named("sdapi"),
	}
}

// Txt2Img generates images from a text prompt.
func (c *Client) Txt2Img(ctx context.Context, req *Txt2ImgRequest) (*GenerationResponse, error) {
	start := time.Now()
	var resp GenerationResponse
	if err := c.postJSON(ctx, c.genClient, "/sdapi/v1/txt2img", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Images) == 0 {
		return nil, fmt.Errorf("txt2img returned no images")
	}

	c.logger.Info("txt2img complete",
		zap.Int("images", len(resp.Images)),
		zap.Int("steps", req.Steps),
		zap.Duration("elapsed", time.Since(start)))
	return &resp, nil
}

// Img2Img transforms existing images guided by a prompt.
func (c *Client) Img2Img(ctx context.Context, req *Img2ImgRequest) (*GenerationResponse, error) {
	if len(req.InitImages) == 0 {
		return nil, fmt.Errorf("img2img requires at least one init image")
	}

	start := time.Now()
	var resp GenerationResponse
	if err := c.postJSON(ctx, c.genClient, "/sdapi/v1/img2img", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Images) == 0 {
		return nil, fmt.Errorf("img2img returned no images")
	}

	c.logger.Info("img2img complete",
		zap.Int("images", len(resp.Images)),
		zap.Duration("elapsed", time.Since(start)))
	return &resp, nil
}

// DecodeInfo parses the Info JSON string of a generation response.
func (r *GenerationResponse) DecodeInfo() (*GenerationInfo, error) {
	if r.Info == "" {
		return &GenerationInfo{}, nil
	}
	var info GenerationInfo
	if err := json.Unmarshal([]byte(r.Info), &info); err != nil {
		return nil, fmt.Errorf("decode generation info: %w", err)
	}
	return &info, nil
}

// GetModels lists the installed checkpoint models.
func (c *Client) GetModels(ctx context.Context) ([]Model, error) {
	var models []Model
	if err := c.getJSON(ctx, "/sdapi/v1/sd-models", &models); err != nil {
		return nil, err
	}
	return models, nil
}

// GetSamplers lists the available samplers.
func (c *Client) GetSamplers(ctx context.Context) ([]Sampler, error) {
	var samplers []Sampler
	if err := c.getJSON(ctx, "/sdapi/v1/samplers", &samplers); err != nil {
		return nil, err
	}
	return samplers, nil
}

// GetProgress reports the state of the generation currently running.
func (c *Client) GetProgress(ctx context.Context) (*Progress, error) {
	var progress Progress
	if err := c.getJSON(ctx, "/sdapi/v1/progress", &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

// Interrupt cancels the generation currently running.
func (c *Client) Interrupt(ctx context.Context) error {
	return c.postJSON(ctx, c.statusClient, "/sdapi/v1/interrupt", struct{}{}, nil)
}

// CheckHealth verifies the WebUI is reachable and returns the active
// checkpoint name.
func (c *Client) CheckHealth(ctx context.Context) (*Options, error) {
	var opts Options
	if err := c.getJSON(ctx, "/sdapi/v1/options", &opts); err != nil {
		return nil, err
	}
	return &opts, nil
}

func (c *Client) postJSON(ctx context.Context, client *http.Client, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(client, req, endpoint, out)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	return c.do(c.statusClient, req, endpoint, out)
}

func (c *Client) do(client *http.Client, req *http.Request, endpoint string, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webui %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
