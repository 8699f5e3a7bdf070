package sdapi

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveImages(t *testing.T) {
	dir := t.TempDir()
	resp := &GenerationResponse{Images: []string{onePixelPNG, onePixelPNG}}

	saved, err := SaveImages(resp, dir, "txt2img", map[string]any{"steps": 20})
	if err != nil {
		t.Fatalf("SaveImages() error = %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("saved %d images, want 2", len(saved))
	}

	for _, img := range saved {
		data, err := os.ReadFile(img.Path)
		if err != nil {
			t.Fatalf("read saved image: %v", err)
		}
		if _, err := png.Decode(bytes.NewReader(data)); err != nil {
			t.Errorf("saved file %s is not a valid PNG: %v", img.Path, err)
		}
	}

	sidecar := strings.TrimSuffix(saved[0].Path, ".png") + "_params.json"
	data, err := os.ReadFile(sidecar)
	if err != nil {
		t.Fatalf("params sidecar missing: %v", err)
	}
	if !strings.Contains(string(data), `"steps": 20`) {
		t.Errorf("sidecar content = %s", data)
	}
}

func TestSaveImagesBadBase64(t *testing.T) {
	resp := &GenerationResponse{Images: []string{"%%% not base64 %%%"}}
	if _, err := SaveImages(resp, t.TempDir(), "txt2img", nil); err == nil {
		t.Fatal("SaveImages() succeeded on invalid base64")
	}
}

func TestDecodeBase64ImageDataURI(t *testing.T) {
	data, err := DecodeBase64Image("data:image/png;base64," + onePixelPNG)
	if err != nil {
		t.Fatalf("DecodeBase64Image() error = %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("decoded data is not a PNG: %v", err)
	}
}

func TestEncodeImageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.png")
	raw, _ := base64.StdEncoding.DecodeString(onePixelPNG)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	encoded, err := EncodeImageFile(path)
	if err != nil {
		t.Fatalf("EncodeImageFile() error = %v", err)
	}
	if encoded != onePixelPNG {
		t.Error("round trip changed the encoding")
	}

	if _, err := EncodeImageFile(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("EncodeImageFile() succeeded on missing file")
	}
}

func TestDownscalePNG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}

	out, err := DownscalePNG(buf.Bytes(), 50)
	if err != nil {
		t.Fatalf("DownscalePNG() error = %v", err)
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 50 || bounds.Dy() != 25 {
		t.Errorf("downscaled to %dx%d, want 50x25", bounds.Dx(), bounds.Dy())
	}

	// Already small images pass through untouched.
	same, err := DownscalePNG(buf.Bytes(), 500)
	if err != nil {
		t.Fatalf("DownscalePNG() error = %v", err)
	}
	if !bytes.Equal(same, buf.Bytes()) {
		t.Error("image within bounds was re-encoded")
	}
}
