package sdapi

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/draw"
)

// SavedImage describes one image written to disk by SaveImages.
type SavedImage struct {
	Path  string `json:"path"`
	Index int    `json:"index"`
	Bytes int    `json:"bytes"`
}

// SaveImages decodes the base64 images of a generation response into dir as
// PNG files named <prefix>_<timestamp>_<n>.png. When params is non-nil a
// generation_params sidecar JSON is written next to the first image so a run
// can be reproduced later.
func SaveImages(resp *GenerationResponse, dir, prefix string, params any) ([]SavedImage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}

	stamp := time.Now().Format("20060102_150405")
	saved := make([]SavedImage, 0, len(resp.Images))

	for i, encoded := range resp.Images {
		data, err := DecodeBase64Image(encoded)
		if err != nil {
			return saved, fmt.Errorf("decode image %d: %w", i, err)
		}

		name := fmt.Sprintf("%s_%s_%d.png", prefix, stamp, i)
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return saved, fmt.Errorf("write image %s: %w", path, err)
		}

		saved = append(saved, SavedImage{Path: path, Index: i, Bytes: len(data)})
	}

	if params != nil && len(saved) > 0 {
		sidecar := strings.TrimSuffix(saved[0].Path, ".png") + "_params.json"
		data, err := json.MarshalIndent(params, "", "  ")
		if err != nil {
			return saved, fmt.Errorf("marshal params sidecar: %w", err)
		}
		if err := os.WriteFile(sidecar, data, 0o644); err != nil {
			return saved, fmt.Errorf("write params sidecar: %w", err)
		}
	}

	return saved, nil
}

// DecodeBase64Image decodes a base64 image string, tolerating an optional
// data URI prefix ("data:image/png;base64,...").
func DecodeBase64Image(encoded string) ([]byte, error) {
	if idx := strings.Index(encoded, ","); idx != -1 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	return data, nil
}

// EncodeImageFile reads an image file and returns it base64 encoded, ready
// for an img2img init image or a Hunyuan3D request.
func EncodeImageFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DownscalePNG decodes a PNG and scales it so the longest side is at most
// maxSize pixels, preserving aspect ratio. Images already within bounds are
// returned unchanged. Used to keep viewport screenshots small enough for
// MCP image content.
func DownscalePNG(data []byte, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		return data, nil
	}

	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxSize && h <= maxSize {
		return data, nil
	}

	scale := float64(maxSize) / float64(w)
	if h > w {
		scale = float64(maxSize) / float64(h)
	}
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
