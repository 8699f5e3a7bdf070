package optimizer

import "strings"

// Goal is what the caller wants the generation tuned for.
type Goal string

const (
	GoalQuality  Goal = "quality"
	GoalSpeed    Goal = "speed"
	GoalBalanced Goal = "balanced"
	GoalMemory   Goal = "memory"
	GoalArtistic Goal = "artistic"
)

// Hardware is a rough VRAM tier of the machine running the WebUI.
type Hardware string

const (
	HardwareLow    Hardware = "low"    // 4GB VRAM or less
	HardwareMedium Hardware = "medium" // 6-8GB VRAM
	HardwareHigh   Hardware = "high"   // 10GB+ VRAM
	HardwareUltra  Hardware = "ultra"  // 16GB+ VRAM
)

// Context carries everything the optimizer needs to pick parameters.
// Zero values mean "no constraint".
type Context struct {
	Goal      Goal
	Hardware  Hardware
	ImageType string // general, portrait, landscape, artistic

	// TimeBudgetSeconds bounds the estimated generation time. When the
	// unconstrained estimate exceeds it, steps shrink proportionally and
	// the high-res fix is dropped.
	TimeBudgetSeconds float64

	// TargetWidth/TargetHeight override the resolution before hardware
	// clamps are applied.
	TargetWidth  int
	TargetHeight int
}

// ParseGoal maps a goal string to a Goal, falling back to balanced for
// anything unknown.
func ParseGoal(s string) Goal {
	switch Goal(strings.ToLower(s)) {
	case GoalQuality, GoalSpeed, GoalBalanced, GoalMemory, GoalArtistic:
		return Goal(strings.ToLower(s))
	default:
		return GoalBalanced
	}
}

// ParseHardware maps a hardware string to a Hardware tier, falling back to
// medium for anything unknown.
func ParseHardware(s string) Hardware {
	switch Hardware(strings.ToLower(s)) {
	case HardwareLow, HardwareMedium, HardwareHigh, HardwareUltra:
		return Hardware(strings.ToLower(s))
	default:
		return HardwareMedium
	}
}

// baseParams is the starting point before any rule applies.
var baseParams = Params{
	Steps: 20, CFGScale: 7.0, SamplerName: "DPM++ 2M Karras",
	Width: 512, Height: 512,
	EnableHR: false, HRScale: 1.5, DenoisingStrength: 0.7,
	BatchSize: 1, NIter: 1,
}

// Result is the optimizer's output: the parameter set plus its estimates.
type Result struct {
	Params            Params  `json:"params"`
	EstimatedSeconds  float64 `json:"estimated_seconds"`
	EstimatedMemoryMB float64 `json:"estimated_memory_mb"`
	QualityScore      float64 `json:"quality_score"`
}

// Optimize produces a parameter set for the given context.
//
// The pipeline is a fixed sequence of rule tables: goal overrides, image
// type adjustments, target resolution, hardware clamps, time budget shrink,
// and final validation clamps. Hardware clamps run after the image type
// rules so a low tier's resolution cap cannot be undone by a portrait or
// landscape aspect adjustment.
func Optimize(ctx Context) Result {
	goal := ParseGoal(string(ctx.Goal))
	hardware := ParseHardware(string(ctx.Hardware))

	params := baseParams
	params = applyGoal(params, goal, hardware)
	params = applyImageType(params, ctx.ImageType)

	if ctx.TargetWidth > 0 && ctx.TargetHeight > 0 {
		params.Width = ctx.TargetWidth
		params.Height = ctx.TargetHeight
	}

	params = applyHardware(params, goal, hardware)
	params = applyTimeBudget(params, hardware, ctx.TimeBudgetSeconds)
	params = validate(params)

	return Result{
		Params:            params,
		EstimatedSeconds:  EstimateTime(params, hardware),
		EstimatedMemoryMB: EstimateMemoryMB(params),
		QualityScore:      QualityScore(params),
	}
}

// QuickOptimize classifies the image type from prompt keywords and runs the
// optimizer with it.
func QuickOptimize(prompt, goal, hardware string) Result {
	return Optimize(Context{
		Goal:      ParseGoal(goal),
		Hardware:  ParseHardware(hardware),
		ImageType: ClassifyPrompt(prompt),
	})
}

// ClassifyPrompt guesses the image type from prompt keywords. Defaults to
// general.
func ClassifyPrompt(prompt string) string {
	lower := strings.ToLower(prompt)

	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("portrait", "face", "person", "character"):
		return "portrait"
	case contains("landscape", "scenery", "nature", "outdoor"):
		return "landscape"
	case contains("art", "painting", "artistic", "style"):
		return "artistic"
	default:
		return "general"
	}
}

func applyGoal(params Params, goal Goal, hardware Hardware) Params {
	switch goal {
	case GoalQuality:
		params.Steps = 30
		params.CFGScale = 8.0
		params.SamplerName = "DPM++ 2M SDE Karras"
		params.EnableHR = true
		params.HRScale = 1.5

	case GoalSpeed:
		params.Steps = 15
		params.CFGScale = 6.0
		params.SamplerName = "Euler a"
		params.EnableHR = false

	case GoalBalanced:
		params.Steps = 20
		params.CFGScale = 7.0
		params.SamplerName = "DPM++ 2M Karras"
		params.EnableHR = hardware != HardwareLow

	case GoalMemory:
		params.Steps = 18
		params.CFGScale = 6.5
		params.SamplerName = "Euler a"
		params.EnableHR = false
		params.BatchSize = 1

	case GoalArtistic:
		params.Steps = 35
		params.CFGScale = 9.0
		params.SamplerName = "DPM++ SDE Karras"
		params.EnableHR = true
		params.HRScale = 1.6
	}

	return params
}

func applyImageType(params Params, imageType string) Params {
	switch imageType {
	case "portrait":
		params.Width = min(params.Width, 512)
		params.Height = max(params.Height, 768)
		params.CFGScale = min(8.0, params.CFGScale+0.5)

	case "landscape":
		params.Width = max(params.Width, 768)
		params.Height = min(params.Height, 512)
		params.CFGScale = min(9.0, params.CFGScale+1.0)

	case "artistic":
		params.CFGScale = min(10.0, params.CFGScale+1.5)
		params.Steps = min(40, params.Steps+5)
		if !strings.Contains(params.SamplerName, "SDE") {
			params.SamplerName = "DPM++ SDE Karras"
		}
	}

	return params
}

func applyHardware(params Params, goal Goal, hardware Hardware) Params {
	switch hardware {
	case HardwareLow:
		params.Width = min(512, params.Width)
		params.Height = min(512, params.Height)
		params.EnableHR = false
		params.BatchSize = 1
		params.Steps = max(10, params.Steps-5)

	case HardwareMedium:
		params.Width = min(768, params.Width)
		params.Height = min(768, params.Height)
		if params.EnableHR {
			params.HRScale = min(1.5, params.HRScale)
		}

	case HardwareHigh:
		params.Width = min(1024, params.Width)
		params.Height = min(1024, params.Height)
		if !params.EnableHR && goal != GoalSpeed {
			params.EnableHR = true
			params.HRScale = 1.5
		}

	case HardwareUltra:
		params.Width = min(1536, params.Width)
		params.Height = min(1536, params.Height)
		params.EnableHR = true
		params.HRScale = min(2.0, params.HRScale+0.2)
		params.Steps = min(50, params.Steps+5)
	}

	return params
}

// applyTimeBudget shrinks the parameter set until the estimate fits the
// budget. Whenever the unconstrained estimate exceeds the budget, the
// returned steps are strictly below the unconstrained value, even if
// dropping the high-res fix alone would have been enough.
func applyTimeBudget(params Params, hardware Hardware, budget float64) Params {
	if budget <= 0 {
		return params
	}

	unconstrained := EstimateTime(params, hardware)
	if unconstrained <= budget {
		return params
	}

	origSteps := params.Steps

	if params.EnableHR {
		params.EnableHR = false
	}

	est := EstimateTime(params, hardware)
	if est > budget {
		scaled := int(float64(params.Steps) * budget / est)
		params.Steps = scaled
	}
	if params.Steps >= origSteps {
		params.Steps = origSteps - 1
	}
	if params.Steps < 5 {
		params.Steps = 5
	}

	return params
}

// validate clamps every numeric field into its valid range and replaces
// unknown samplers with the default.
func validate(params Params) Params {
	params.Steps = max(5, params.Steps)
	params.CFGScale = max(1.0, min(20.0, params.CFGScale))
	params.Width = max(64, params.Width) / 8 * 8
	params.Height = max(64, params.Height) / 8 * 8

	if _, ok := samplerProfiles[params.SamplerName]; !ok {
		params.SamplerName = "DPM++ 2M Karras"
	}

	if params.BatchSize < 1 {
		params.BatchSize = 1
	}
	if params.NIter < 1 {
		params.NIter = 1
	}

	return params
}
