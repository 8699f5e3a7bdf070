// Package workflow runs the full text-to-3D pipeline: generate an image,
// turn it into a model, import it into Blender, and assemble a presentable
// scene around it.
package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Method selects how the 3D model is produced.
type Method string

const (
	// MethodHunyuan3D converts the generated image through the Hunyuan3D
	// API server and imports the resulting GLB.
	MethodHunyuan3D Method = "hunyuan3d"

	// MethodHyper3DText asks the addon's Hyper3D Rodin integration to
	// generate a model straight from the scene description.
	MethodHyper3DText Method = "hyper3d_text"

	// MethodHyper3DImage feeds the generated image to Hyper3D Rodin.
	MethodHyper3DImage Method = "hyper3d_image"

	// MethodStableDiffusion stops after image generation; the image itself
	// is the deliverable.
	MethodStableDiffusion Method = "stable_diffusion"
)

// Config describes one workflow run.
type Config struct {
	SceneDescription string `yaml:"scene_description"`
	OutputDirectory  string `yaml:"output_directory"`

	// Image generation.
	ImageWidth    int     `yaml:"image_width"`
	ImageHeight   int     `yaml:"image_height"`
	ImageSteps    int     `yaml:"image_steps"`
	ImageCFGScale float64 `yaml:"image_cfg_scale"`
	EnableHR      bool    `yaml:"enable_hr"`
	HRScale       float64 `yaml:"hr_scale"`

	// Model generation.
	Method           Method `yaml:"method"`
	RemoveBackground bool   `yaml:"remove_background"`
	TextureEnabled   bool   `yaml:"texture_enabled"`
	ModelSeed        int    `yaml:"model_seed"`

	// Parameter optimization. When OptimizationGoal is set the image
	// parameters above are replaced by the optimizer's output for that
	// goal and hardware profile.
	OptimizationGoal string `yaml:"optimization_goal"`
	HardwareProfile  string `yaml:"hardware_profile"`

	SaveIntermediate bool `yaml:"save_intermediate"`
}

// DefaultConfig returns the quality-oriented defaults for a description.
func DefaultConfig(sceneDescription string) Config {
	return Config{
		SceneDescription: sceneDescription,
		OutputDirectory:  "./output",
		ImageWidth:       768,
		ImageHeight:      768,
		ImageSteps:       30,
		ImageCFGScale:    8.0,
		EnableHR:         true,
		HRScale:          1.5,
		Method:           MethodHunyuan3D,
		RemoveBackground: true,
		TextureEnabled:   true,
		ModelSeed:        1234,
		HardwareProfile:  "medium",
		SaveIntermediate: true,
	}
}

// Validate reports config errors before any backend is touched.
func (c *Config) Validate() error {
	if c.SceneDescription == "" {
		return fmt.Errorf("scene description is required")
	}
	if c.ImageWidth <= 0 || c.ImageHeight <= 0 {
		return fmt.Errorf("invalid image dimensions %dx%d", c.ImageWidth, c.ImageHeight)
	}
	switch c.Method {
	case MethodHunyuan3D, MethodHyper3DText, MethodHyper3DImage, MethodStableDiffusion:
	case "":
		return fmt.Errorf("generation method is required")
	default:
		return fmt.Errorf("unknown generation method %q", c.Method)
	}
	return nil
}

// presetOverrides are applied on top of DefaultConfig.
var presetOverrides = map[string]func(*Config){
	"fast": func(c *Config) {
		c.ImageWidth, c.ImageHeight = 512, 512
		c.ImageSteps = 20
		c.ImageCFGScale = 6.5
		c.EnableHR = false
		c.OptimizationGoal = "speed"
	},
	"balanced": func(c *Config) {
		c.ImageWidth, c.ImageHeight = 640, 640
		c.ImageSteps = 25
		c.ImageCFGScale = 7.0
		c.EnableHR = false
		c.OptimizationGoal = "balanced"
	},
	"quality": func(c *Config) {
		c.ImageWidth, c.ImageHeight = 768, 768
		c.ImageSteps = 30
		c.ImageCFGScale = 8.0
		c.EnableHR = true
		c.HRScale = 1.5
		c.OptimizationGoal = "quality"
	},
	"creative": func(c *Config) {
		c.ImageWidth, c.ImageHeight = 768, 768
		c.ImageSteps = 35
		c.ImageCFGScale = 9.0
		c.EnableHR = true
		c.HRScale = 1.6
		c.OptimizationGoal = "artistic"
	},
}

// PresetNames lists the built-in workflow presets.
func PresetNames() []string {
	return []string{"fast", "balanced", "quality", "creative"}
}

// PresetConfig returns the named preset applied to the defaults. Unknown
// names fall back to quality.
func PresetConfig(name, sceneDescription string) Config {
	config := DefaultConfig(sceneDescription)
	override, ok := presetOverrides[name]
	if !ok {
		override = presetOverrides["quality"]
	}
	override(&config)
	return config
}

// LoadConfigFile reads a YAML workflow config. Fields absent from the file
// keep their defaults.
func LoadConfigFile(path string) (Config, error) {
	config := DefaultConfig("")

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("read workflow config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parse workflow config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("workflow config %s: %w", path, err)
	}
	return config, nil
}
