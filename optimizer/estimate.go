package optimizer

// samplerProfile scores a sampler's relative speed, output quality, and
// memory behavior on a 0..1 scale. Illustrative heuristics, not benchmarks.
type samplerProfile struct {
	Speed   float64
	Quality float64
	Memory  float64
}

var samplerProfiles = map[string]samplerProfile{
	"Euler a":             {Speed: 1.0, Quality: 0.7, Memory: 1.0},
	"Euler":               {Speed: 0.9, Quality: 0.75, Memory: 1.0},
	"LMS":                 {Speed: 0.8, Quality: 0.8, Memory: 1.0},
	"Heun":                {Speed: 0.5, Quality: 0.85, Memory: 1.0},
	"DPM2":                {Speed: 0.6, Quality: 0.85, Memory: 1.0},
	"DPM2 a":              {Speed: 0.6, Quality: 0.87, Memory: 1.0},
	"DPM++ 2S a":          {Speed: 0.7, Quality: 0.88, Memory: 1.0},
	"DPM++ 2M":            {Speed: 0.8, Quality: 0.9, Memory: 1.0},
	"DPM++ 2M Karras":     {Speed: 0.8, Quality: 0.92, Memory: 1.0},
	"DPM++ SDE":           {Speed: 0.6, Quality: 0.9, Memory: 1.0},
	"DPM++ SDE Karras":    {Speed: 0.6, Quality: 0.93, Memory: 1.0},
	"DPM++ 2M SDE":        {Speed: 0.5, Quality: 0.95, Memory: 0.9},
	"DPM++ 2M SDE Karras": {Speed: 0.5, Quality: 0.96, Memory: 0.9},
	"DDIM":                {Speed: 0.9, Quality: 0.8, Memory: 1.0},
	"PLMS":                {Speed: 0.85, Quality: 0.82, Memory: 1.0},
}

// KnownSamplers returns the sampler names the optimizer understands.
func KnownSamplers() []string {
	names := make([]string, 0, len(samplerProfiles))
	for name := range samplerProfiles {
		names = append(names, name)
	}
	return names
}

// IsKnownSampler reports whether the optimizer has a profile for name.
func IsKnownSampler(name string) bool {
	_, ok := samplerProfiles[name]
	return ok
}

var hardwareMultipliers = map[Hardware]float64{
	HardwareLow:    3.0,
	HardwareMedium: 1.5,
	HardwareHigh:   1.0,
	HardwareUltra:  0.7,
}

// EstimateTime estimates generation time in seconds with a multiplicative
// model: 2s per step at 512x512 on the high tier, scaled by resolution,
// sampler speed, hardware tier, high-res fix, and batch count.
func EstimateTime(params Params, hardware Hardware) float64 {
	const baseTimePerStep = 2.0

	hwMult, ok := hardwareMultipliers[ParseHardware(string(hardware))]
	if !ok {
		hwMult = hardwareMultipliers[HardwareMedium]
	}

	samplerSpeed := 1.0
	if profile, ok := samplerProfiles[params.SamplerName]; ok {
		samplerSpeed = profile.Speed
	}

	pixels := float64(params.Width * params.Height)
	resolutionMult := pixels / (512.0 * 512.0)

	hrMult := 1.0
	if params.EnableHR {
		hrMult = 1.0 + (params.HRScale-1.0)*0.8
	}

	batch := float64(max(1, params.BatchSize))
	iters := float64(max(1, params.NIter))

	return baseTimePerStep * float64(params.Steps) * hwMult *
		(1.0 / samplerSpeed) * resolutionMult * hrMult * batch * iters
}

// EstimateMemoryMB estimates peak VRAM use in megabytes: roughly 2GB for a
// 512x512 SD 1.5 generation, scaled by resolution, high-res fix, batch
// size, and the sampler's memory factor.
func EstimateMemoryMB(params Params) float64 {
	const baseMB = 2000.0

	pixels := float64(params.Width * params.Height)
	resolutionMult := pixels / (512.0 * 512.0)

	hrMult := 1.0
	if params.EnableHR {
		hrMult = 1.0 + (params.HRScale*params.HRScale-1.0)*0.5
	}

	memoryFactor := 1.0
	if profile, ok := samplerProfiles[params.SamplerName]; ok {
		memoryFactor = 2.0 - profile.Memory
	}

	batch := float64(max(1, params.BatchSize))

	return baseMB * resolutionMult * hrMult * memoryFactor * batch
}

// QualityScore gives a 0..1 heuristic score for a parameter set: the
// sampler's quality rating scaled by how close steps and cfg are to their
// sweet spots.
func QualityScore(params Params) float64 {
	samplerQuality := 0.7
	if profile, ok := samplerProfiles[params.SamplerName]; ok {
		samplerQuality = profile.Quality
	}

	stepFactor := float64(params.Steps) / 30.0
	if stepFactor > 1.0 {
		stepFactor = 1.0
	}

	cfgFactor := 1.0 - absF(params.CFGScale-7.5)/20.0

	hrBonus := 0.0
	if params.EnableHR {
		hrBonus = 0.05
	}

	score := samplerQuality*0.6 + stepFactor*0.25 + cfgFactor*0.1 + hrBonus
	if score > 1.0 {
		score = 1.0
	}
	return score
}

var goalWeights = map[Goal]struct{ speed, quality, memory float64 }{
	GoalQuality:  {speed: 0.2, quality: 0.8, memory: 0.0},
	GoalSpeed:    {speed: 0.8, quality: 0.2, memory: 0.0},
	GoalBalanced: {speed: 0.4, quality: 0.6, memory: 0.0},
	GoalMemory:   {speed: 0.3, quality: 0.2, memory: 0.5},
	GoalArtistic: {speed: 0.1, quality: 0.9, memory: 0.0},
}

// RecommendSampler returns the sampler with the best weighted score for the
// goal. Ties break toward the lexicographically smaller name so the result
// is deterministic.
func RecommendSampler(goal Goal) string {
	weights, ok := goalWeights[ParseGoal(string(goal))]
	if !ok {
		weights = goalWeights[GoalBalanced]
	}

	best := ""
	bestScore := -1.0
	for name, profile := range samplerProfiles {
		score := profile.Speed*weights.speed +
			profile.Quality*weights.quality +
			profile.Memory*weights.memory
		if score > bestScore || (score == bestScore && name < best) {
			bestScore = score
			best = name
		}
	}
	return best
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
