// Package optimizer chooses Stable Diffusion generation parameters. It has
// two layers: named presets (fixed parameter sets for common goals) and a
// rule-based optimizer that adjusts parameters for a goal, hardware tier,
// image type, and optional time budget. Everything here is pure; nothing
// talks to the network.
package optimizer

import (
	"fmt"
	"sort"
)

// Params is a Stable Diffusion parameter set. JSON tags match the WebUI API
// so a Params can be embedded directly into a txt2img request.
type Params struct {
	Steps             int     `json:"steps"`
	CFGScale          float64 `json:"cfg_scale"`
	SamplerName       string  `json:"sampler_name"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	EnableHR          bool    `json:"enable_hr"`
	HRScale           float64 `json:"hr_scale"`
	DenoisingStrength float64 `json:"denoising_strength"`
	BatchSize         int     `json:"batch_size"`
	NIter             int     `json:"n_iter"`
}

// Preset is a named parameter set with display metadata.
type Preset struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Params
}

// presets holds the built-in parameter sets. Values are tuned for SD 1.5
// class checkpoints on the WebUI's default upscaler.
var presets = map[string]Preset{
	"quality": {
		Name:        "High Quality",
		Description: "Optimized for maximum image quality",
		Params: Params{
			Steps: 30, CFGScale: 8.0, SamplerName: "DPM++ 2M Karras",
			Width: 768, Height: 768,
			EnableHR: true, HRScale: 1.5, DenoisingStrength: 0.7,
			BatchSize: 1, NIter: 1,
		},
	},
	"speed": {
		Name:        "Fast Generation",
		Description: "Optimized for speed with acceptable quality",
		Params: Params{
			Steps: 15, CFGScale: 6.0, SamplerName: "Euler a",
			Width: 512, Height: 512,
			EnableHR: false, HRScale: 1.0, DenoisingStrength: 0.5,
			BatchSize: 1, NIter: 1,
		},
	},
	"balanced": {
		Name:        "Balanced",
		Description: "Good balance between quality and speed",
		Params: Params{
			Steps: 20, CFGScale: 7.0, SamplerName: "DPM++ 2M Karras",
			Width: 640, Height: 640,
			EnableHR: false, HRScale: 1.2, DenoisingStrength: 0.6,
			BatchSize: 1, NIter: 1,
		},
	},
	"portrait": {
		Name:        "Portrait Optimized",
		Description: "Optimized for portrait and character generation",
		Params: Params{
			Steps: 25, CFGScale: 7.5, SamplerName: "DPM++ SDE Karras",
			Width: 512, Height: 768,
			EnableHR: true, HRScale: 1.3, DenoisingStrength: 0.65,
			BatchSize: 1, NIter: 1,
		},
	},
	"landscape": {
		Name:        "Landscape Optimized",
		Description: "Optimized for landscape and scenery generation",
		Params: Params{
			Steps: 28, CFGScale: 8.5, SamplerName: "DPM++ 2M Karras",
			Width: 768, Height: 512,
			EnableHR: true, HRScale: 1.4, DenoisingStrength: 0.7,
			BatchSize: 1, NIter: 1,
		},
	},
	"artistic": {
		Name:        "Artistic Style",
		Description: "Optimized for artistic and creative outputs",
		Params: Params{
			Steps: 35, CFGScale: 9.0, SamplerName: "DPM++ 2M SDE Karras",
			Width: 768, Height: 768,
			EnableHR: true, HRScale: 1.6, DenoisingStrength: 0.75,
			BatchSize: 1, NIter: 1,
		},
	},
}

// GetPreset returns a copy of the named preset. Unknown names are an error
// listing the valid choices.
func GetPreset(name string) (Preset, error) {
	preset, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("preset %q not found, available presets: %v", name, ListPresets())
	}
	return preset, nil
}

// ListPresets returns the available preset names in sorted order.
func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PresetForGoal returns the preset matching a goal string, adjusted for the
// hardware tier. Unknown goals fall back to balanced.
func PresetForGoal(goal, hardware string) Preset {
	preset, ok := presets[goal]
	if !ok {
		preset = presets["balanced"]
	}

	switch hardware {
	case "low":
		preset.Steps = max(10, preset.Steps-10)
		preset.Width = min(512, preset.Width)
		preset.Height = min(512, preset.Height)
		preset.EnableHR = false
	case "high", "ultra":
		preset.Steps = min(50, preset.Steps+10)
		preset.Width = min(1024, preset.Width+128)
		preset.Height = min(1024, preset.Height+128)
		if !preset.EnableHR {
			preset.EnableHR = true
			preset.HRScale = 1.3
		}
	}

	return preset
}
