package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrEmptyPrompt     = errors.New("prompt cannot be empty")
	ErrInvalidSize     = errors.New("invalid size for model")
	ErrInvalidSteps    = errors.New("inference steps out of range for model")
	ErrInvalidGuidance = errors.New("guidance scale must be positive")
	ErrUnknownModel    = errors.New("unknown model")
)

type ProviderType string

const (
	ProviderHuggingFace ProviderType = "huggingface"
)

const DefaultModel = "stabilityai/stable-diffusion-xl-base-1.0"

type InferenceParams struct {
	Steps         int     `json:"num_inference_steps" yaml:"steps"`
	GuidanceScale float64 `json:"guidance_scale" yaml:"guidance_scale"`
	Width         int     `json:"width" yaml:"width"`
	Height        int     `json:"height" yaml:"height"`
}

// Size returns the dimensions in the registry's "WxH" notation.
func (p InferenceParams) Size() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

type GenerationRequest struct {
	Prompt      string
	StylePrefix string
	Model       string
	Params      InferenceParams
}

func NewGenerationRequest(prompt string) *GenerationRequest {
	return &GenerationRequest{
		Prompt: prompt,
		Model:  DefaultModel,
		Params: InferenceParams{
			Steps:         50,
			GuidanceScale: 7.5,
			Width:         1024,
			Height:        1024,
		},
	}
}

// FullPrompt is the text sent as the model input.
func (r *GenerationRequest) FullPrompt() string {
	prefix := strings.TrimSpace(r.StylePrefix)
	prompt := strings.TrimSpace(r.Prompt)
	if prefix == "" {
		return prompt
	}
	return prefix + " " + prompt
}

type ModelCapabilities struct {
	Name           string
	Provider       ProviderType
	SupportedSizes []string
	MinSteps       int
	MaxSteps       int
	DefaultSteps   int
	DefaultSize    string
	DefaultScale   float64
}

func (c *ModelCapabilities) Validate(req *GenerationRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrEmptyPrompt
	}

	size := req.Params.Size()
	if len(c.SupportedSizes) > 0 && !slices.Contains(c.SupportedSizes, size) {
		return fmt.Errorf("%w: %q not in %v", ErrInvalidSize, size, c.SupportedSizes)
	}

	if req.Params.Steps < c.MinSteps || req.Params.Steps > c.MaxSteps {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidSteps, req.Params.Steps, c.MinSteps, c.MaxSteps)
	}

	if req.Params.GuidanceScale <= 0 {
		return ErrInvalidGuidance
	}

	return nil
}

func (c *ModelCapabilities) ApplyDefaults(req *GenerationRequest) {
	if req.Model == "" {
		req.Model = c.Name
	}
	if req.Params.Steps == 0 {
		req.Params.Steps = c.DefaultSteps
	}
	if req.Params.GuidanceScale == 0 {
		req.Params.GuidanceScale = c.DefaultScale
	}
	if req.Params.Width == 0 || req.Params.Height == 0 {
		var w, h int
		if _, err := fmt.Sscanf(c.DefaultSize, "%dx%d", &w, &h); err == nil {
			req.Params.Width = w
			req.Params.Height = h
		}
	}
}

type ModelRegistry struct {
	models map[string]*ModelCapabilities
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		models: make(map[string]*ModelCapabilities),
	}
}

func (r *ModelRegistry) Register(cap *ModelCapabilities) {
	r.models[cap.Name] = cap
}

func (r *ModelRegistry) Get(name string) (*ModelCapabilities, bool) {
	cap, ok := r.models[name]
	return cap, ok
}

func (r *ModelRegistry) List() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *ModelRegistry) ListByProvider(provider ProviderType) []string {
	var names []string
	for name, cap := range r.models {
		if cap.Provider == provider {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func DefaultRegistry() *ModelRegistry {
	r := NewModelRegistry()

	r.Register(&ModelCapabilities{
		Name:           "stabilityai/stable-diffusion-xl-base-1.0",
		Provider:       ProviderHuggingFace,
		SupportedSizes: []string{"1024x1024", "1152x896", "896x1152", "1216x832", "832x1216"},
		MinSteps:       1,
		MaxSteps:       100,
		DefaultSteps:   50,
		DefaultSize:    "1024x1024",
		DefaultScale:   7.5,
	})

	r.Register(&ModelCapabilities{
		Name:           "stabilityai/stable-diffusion-2",
		Provider:       ProviderHuggingFace,
		SupportedSizes: []string{"512x512", "768x768"},
		MinSteps:       1,
		MaxSteps:       100,
		DefaultSteps:   50,
		DefaultSize:    "768x768",
		DefaultScale:   7.5,
	})

	r.Register(&ModelCapabilities{
		Name:           "runwayml/stable-diffusion-v1-5",
		Provider:       ProviderHuggingFace,
		SupportedSizes: []string{"512x512", "512x768", "768x512"},
		MinSteps:       1,
		MaxSteps:       100,
		DefaultSteps:   50,
		DefaultSize:    "512x512",
		DefaultScale:   7.5,
	})

	return r
}
