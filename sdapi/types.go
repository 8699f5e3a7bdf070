package sdapi

// Txt2ImgRequest is the request body for /sdapi/v1/txt2img. Field names
// mirror the WebUI API; omitted fields take the WebUI's own defaults.
type Txt2ImgRequest struct {
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	Steps             int     `json:"steps"`
	CFGScale          float64 `json:"cfg_scale"`
	SamplerName       string  `json:"sampler_name,omitempty"`
	Seed              int64   `json:"seed"`
	BatchSize         int     `json:"batch_size,omitempty"`
	NIter             int     `json:"n_iter,omitempty"`
	RestoreFaces      bool    `json:"restore_faces,omitempty"`
	EnableHR          bool    `json:"enable_hr,omitempty"`
	HRScale           float64 `json:"hr_scale,omitempty"`
	HRUpscaler        string  `json:"hr_upscaler,omitempty"`
	DenoisingStrength float64 `json:"denoising_strength,omitempty"`
}

// Img2ImgRequest is the request body for /sdapi/v1/img2img. InitImages are
// base64-encoded PNGs.
type Img2ImgRequest struct {
	InitImages        []string `json:"init_images"`
	Prompt            string   `json:"prompt"`
	NegativePrompt    string   `json:"negative_prompt,omitempty"`
	Width             int      `json:"width,omitempty"`
	Height            int      `json:"height,omitempty"`
	Steps             int      `json:"steps"`
	CFGScale          float64  `json:"cfg_scale"`
	SamplerName       string   `json:"sampler_name,omitempty"`
	Seed              int64    `json:"seed"`
	BatchSize         int      `json:"batch_size,omitempty"`
	NIter             int      `json:"n_iter,omitempty"`
	DenoisingStrength float64  `json:"denoising_strength"`
	ResizeMode        int      `json:"resize_mode,omitempty"`
}

// GenerationResponse is the shared response shape of txt2img and img2img.
// Images are base64-encoded PNGs; Info is a JSON string with the actual
// seeds and parameters the WebUI used.
type GenerationResponse struct {
	Images []string `json:"images"`
	Info   string   `json:"info"`
}

// GenerationInfo is the decoded Info field of a GenerationResponse.
type GenerationInfo struct {
	Seed        int64   `json:"seed"`
	AllSeeds    []int64 `json:"all_seeds"`
	SamplerName string  `json:"sampler_name"`
	Steps       int     `json:"steps"`
	CFGScale    float64 `json:"cfg_scale"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
}

// Model is one entry from /sdapi/v1/sd-models.
type Model struct {
	Title     string `json:"title"`
	ModelName string `json:"model_name"`
	Hash      string `json:"hash"`
	Filename  string `json:"filename"`
}

// Sampler is one entry from /sdapi/v1/samplers.
type Sampler struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

// Progress is the response of /sdapi/v1/progress.
type Progress struct {
	Progress    float64 `json:"progress"`
	ETARelative float64 `json:"eta_relative"`
	State       struct {
		JobCount      int    `json:"job_count"`
		SamplingStep  int    `json:"sampling_step"`
		SamplingSteps int    `json:"sampling_steps"`
		Job           string `json:"job"`
	} `json:"state"`
	CurrentImage string `json:"current_image,omitempty"`
}

// Options is the subset of /sdapi/v1/options used for health checks and
// status reporting.
type Options struct {
	SDModelCheckpoint string `json:"sd_model_checkpoint"`
}
