package main

import (
	"bytes"
	"strings"
	"testing"

	"blender_mcp/core"
	"blender_mcp/tools"
)

func TestPrintConfigError(t *testing.T) {
	var buf bytes.Buffer
	printConfigError(&buf, core.ErrInvalidOutputDir("/readonly/output", "permission denied"))
	got := buf.String()

	if !strings.Contains(got, "Configuration error:") {
		t.Errorf("output = %q, missing error prefix", got)
	}
	if !strings.Contains(got, "/readonly/output") {
		t.Errorf("output = %q, missing the offending path", got)
	}
	if !strings.Contains(got, "OUTPUT_DIR") {
		t.Errorf("output = %q, missing the remediation action", got)
	}
}

func TestPrintCapabilities(t *testing.T) {
	cfg := &core.Config{
		BlenderHost:  "localhost",
		BlenderPort:  9876,
		SDWebUIURL:   "http://localhost:7860",
		Hunyuan3DURL: "http://localhost:8081",
	}

	var buf bytes.Buffer
	printCapabilities(&buf, cfg, core.Capabilities{Blender: true})
	got := buf.String()

	if !strings.Contains(got, tools.Version) {
		t.Errorf("summary = %q, missing version", got)
	}
	if !strings.Contains(got, "[ok]   Blender addon (localhost:9876)") {
		t.Errorf("summary = %q, missing Blender ok line", got)
	}
	if !strings.Contains(got, "[down] Stable Diffusion WebUI") {
		t.Errorf("summary = %q, missing WebUI down line", got)
	}
	if !strings.Contains(got, "SD_WEBUI_URL") {
		t.Errorf("summary = %q, missing remediation hint", got)
	}
	if !strings.Contains(got, "HUNYUAN3D_URL") {
		t.Errorf("summary = %q, missing Hunyuan3D hint", got)
	}
}
