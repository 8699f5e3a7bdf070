package core

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Capabilities records which backends were reachable when the service
// started. The tool layer consults these booleans to decide whether to call a
// backend or return guidance text instead. They are computed once at startup;
// a backend that comes up later is picked up on the next restart, while a
// backend that goes down mid-session surfaces as a per-call error.
type Capabilities struct {
	Blender         bool // Blender addon socket accepted a TCP connection
	StableDiffusion bool // WebUI /sdapi/v1/options answered 200
	Hunyuan3D       bool // Hunyuan3D /health answered 200
}

// Summary returns a one-line human-readable capability summary for logs and
// the MCP server startup message.
func (c Capabilities) Summary() string {
	status := func(ok bool) string {
		if ok {
			return "available"
		}
		return "unavailable"
	}
	return fmt.Sprintf("blender=%s stable_diffusion=%s hunyuan3d=%s",
		status(c.Blender), status(c.StableDiffusion), status(c.Hunyuan3D))
}

// ProbeCapabilities checks each configured backend with a short timeout and
// returns the resulting capability set. Probes are best-effort: a failed probe
// disables the capability but never fails startup.
func ProbeCapabilities(ctx context.Context, cfg *Config) Capabilities {
	caps := Capabilities{}

	probeTimeout := 3 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < probeTimeout {
			probeTimeout = remaining
		}
	}

	caps.Blender = probeTCP(cfg.BlenderAddr(), probeTimeout)
	caps.StableDiffusion = probeHTTP(ctx, cfg, cfg.SDWebUIURL+"/sdapi/v1/options", probeTimeout)
	caps.Hunyuan3D = probeHTTP(ctx, cfg, cfg.Hunyuan3DURL+"/health", probeTimeout)

	return caps
}

func probeTCP(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func probeHTTP(ctx context.Context, cfg *Config, url string, timeout time.Duration) bool {
	client := GetHTTPClient(cfg, timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
