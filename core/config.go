package core

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Config holds all configuration values for the bridge service.
//
// Everything has a local-first default: the Blender addon on localhost:9876,
// the AUTOMATIC1111 WebUI on localhost:7860, and Hunyuan3D on localhost:8081.
// Individual integrations degrade gracefully when their backend is
// unreachable; see Capabilities.
type Config struct {
	// Blender addon socket
	BlenderHost    string        // Host of the Blender addon socket server
	BlenderPort    int           // Port of the Blender addon socket server
	BlenderTimeout time.Duration // Per-command socket timeout (matches the addon's own timeout)

	// Stable Diffusion WebUI (AUTOMATIC1111)
	SDWebUIURL      string        // Base URL of the WebUI API
	SDTimeout       time.Duration // Timeout for txt2img/img2img requests
	SDStatusTimeout time.Duration // Timeout for cheap status endpoints (options, samplers, progress)

	// Hunyuan3D API
	Hunyuan3DURL     string        // Base URL of the Hunyuan3D API server
	HunyuanTimeout   time.Duration // Timeout for synchronous /generate calls
	HunyuanPollEvery time.Duration // Suggested polling interval for async tasks

	// Default generation parameters (clamped on load)
	SDDefaultWidth    int     // Default image width in pixels (multiple of 8)
	SDDefaultHeight   int     // Default image height in pixels (multiple of 8)
	SDDefaultSteps    int     // Default denoising steps
	SDDefaultCFGScale float64 // Default classifier-free guidance scale
	SDNegativePrompt  string  // Default negative prompt

	// Artifacts
	OutputDir     string // Directory for generated images, models, and reports
	HistoryDBPath string // SQLite path for the generation history store; empty disables history

	// Logging
	LogFile string // Path to the rotating log file
	DevMode bool   // Development mode: debug level, human-readable console output

	// TLS
	AllowSelfSignedCerts bool // Accept self-signed certificates on HTTPS backends
}

// LoadConfig loads configuration from environment variables with local-first
// defaults. It never fails on a missing variable (every backend has a default
// local endpoint); it fails only on values that cannot be made valid, such as
// a non-positive port.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		BlenderHost:    GetEnvOrDefault("BLENDER_HOST", "localhost"),
		BlenderPort:    ParseIntEnv("BLENDER_PORT", 9876),
		BlenderTimeout: ParseDurationEnv("BLENDER_TIMEOUT_SECONDS", 15),

		SDWebUIURL:      GetEnvOrDefault("SD_WEBUI_URL", "http://localhost:7860"),
		SDTimeout:       ParseDurationEnv("SD_TIMEOUT_SECONDS", 300),
		SDStatusTimeout: ParseDurationEnv("SD_STATUS_TIMEOUT_SECONDS", 10),

		Hunyuan3DURL:     GetEnvOrDefault("HUNYUAN3D_URL", "http://localhost:8081"),
		HunyuanTimeout:   ParseDurationEnv("HUNYUAN3D_TIMEOUT_SECONDS", 600),
		HunyuanPollEvery: ParseDurationEnv("HUNYUAN3D_POLL_SECONDS", 5),

		SDDefaultWidth:    ParseIntEnv("SD_DEFAULT_WIDTH", 512),
		SDDefaultHeight:   ParseIntEnv("SD_DEFAULT_HEIGHT", 512),
		SDDefaultSteps:    ParseIntEnv("SD_DEFAULT_STEPS", 20),
		SDDefaultCFGScale: ParseFloat64Env("SD_DEFAULT_CFG_SCALE", 7.0),
		SDNegativePrompt:  GetEnvOrDefault("SD_NEGATIVE_PROMPT", "blurry, low quality, distorted, deformed"),

		OutputDir:     GetEnvOrDefault("OUTPUT_DIR", "./output"),
		HistoryDBPath: GetEnvOrDefault("HISTORY_DB_PATH", ""),

		LogFile: GetEnvOrDefault("LOG_FILE", "blender_mcp.log"),
		DevMode: ParseBoolEnv("DEV_MODE", false),

		AllowSelfSignedCerts: ParseBoolEnv("ALLOW_SELF_SIGNED_CERTS", false),
	}

	if cfg.BlenderPort <= 0 || cfg.BlenderPort > 65535 {
		return nil, ErrInvalidPort("BLENDER_PORT", cfg.BlenderPort)
	}
	if cfg.BlenderTimeout <= 0 {
		return nil, &ConfigError{
			Code:    ErrCodeInvalidTimeout,
			Message: fmt.Sprintf("BLENDER_TIMEOUT_SECONDS must be positive, got %v", cfg.BlenderTimeout),
			Action:  "Set BLENDER_TIMEOUT_SECONDS to a positive number of seconds (the addon uses 15)",
		}
	}

	for _, backend := range []struct{ varName, value string }{
		{"SD_WEBUI_URL", cfg.SDWebUIURL},
		{"HUNYUAN3D_URL", cfg.Hunyuan3DURL},
	} {
		parsed, err := url.Parse(backend.value)
		if err != nil {
			return nil, ErrInvalidURL(backend.varName, backend.value, err.Error())
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return nil, ErrInvalidURL(backend.varName, backend.value, "scheme must be http or https")
		}
		if parsed.Host == "" {
			return nil, ErrInvalidURL(backend.varName, backend.value, "missing host")
		}
	}

	// Generation defaults are clamped rather than rejected: a bad default is
	// recoverable, a refused startup is not.
	cfg.SDDefaultWidth = ClampDimension(cfg.SDDefaultWidth)
	cfg.SDDefaultHeight = ClampDimension(cfg.SDDefaultHeight)
	cfg.SDDefaultSteps = ClampSteps(cfg.SDDefaultSteps)
	cfg.SDDefaultCFGScale = ClampCFGScale(cfg.SDDefaultCFGScale)

	return cfg, nil
}

// BlenderAddr returns the host:port address of the Blender addon socket.
func (c *Config) BlenderAddr() string {
	return fmt.Sprintf("%s:%d", c.BlenderHost, c.BlenderPort)
}

// HistoryEnabled returns true if a generation history database is configured.
func (c *Config) HistoryEnabled() bool {
	return c.HistoryDBPath != ""
}

// Clamp bounds for generation parameters. Stable Diffusion requires
// dimensions divisible by 8; the rest are the WebUI's accepted ranges.
const (
	MinDimension = 64
	MaxDimension = 2048
	MinSteps     = 5
	MaxSteps     = 150
	MinCFGScale  = 1.0
	MaxCFGScale  = 20.0
)

// ClampDimension clamps an image dimension into [MinDimension, MaxDimension]
// and rounds it down to a multiple of 8.
func ClampDimension(v int) int {
	if v < MinDimension {
		v = MinDimension
	}
	if v > MaxDimension {
		v = MaxDimension
	}
	return (v / 8) * 8
}

// ClampSteps clamps a step count into [MinSteps, MaxSteps].
func ClampSteps(v int) int {
	if v < MinSteps {
		return MinSteps
	}
	if v > MaxSteps {
		return MaxSteps
	}
	return v
}

// ClampCFGScale clamps a guidance scale into [MinCFGScale, MaxCFGScale].
func ClampCFGScale(v float64) float64 {
	if v < MinCFGScale {
		return MinCFGScale
	}
	if v > MaxCFGScale {
		return MaxCFGScale
	}
	return v
}

// GetHTTPClient returns an HTTP client configured with TLS settings based on
// AllowSelfSignedCerts. All HTTP calls to external generation services go
// through clients built here so the TLS configuration is respected everywhere.
func GetHTTPClient(cfg *Config, timeout time.Duration) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}

	if cfg.AllowSelfSignedCerts {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return client
}

// GetDefaultHTTPClient returns an HTTP client with a 30s timeout configured
// with TLS settings.
func GetDefaultHTTPClient(cfg *Config) *http.Client {
	return GetHTTPClient(cfg, 30*time.Second)
}
