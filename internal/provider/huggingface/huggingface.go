package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/manash/imgpost/internal/provider"
	"github.com/manash/imgpost/pkg/models"
)

const (
	defaultBaseURL = "https://api-inference.huggingface.co"
	defaultTimeout = 120 * time.Second

	DefaultMaxRetries   = 5
	DefaultInitialDelay = 2 * time.Second
)

type apiRequest struct {
	Inputs     string        `json:"inputs"`
	Parameters apiParameters `json:"parameters"`
}

type apiParameters struct {
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Option func(*Provider)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithSleep(sleep SleepFunc) Option {
	return func(p *Provider) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

type Provider struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	registry     *models.ModelRegistry
	logger       *zap.Logger
	maxRetries   int
	initialDelay time.Duration
	sleep        SleepFunc
}

func New(cfg *provider.Config, registry *models.ModelRegistry, opts ...Option) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	initialDelay := cfg.InitialDelay
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}

	if registry == nil {
		registry = models.DefaultRegistry()
	}

	p := &Provider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(defaultTimeout),
		},
		registry:     registry,
		logger:       zap.NewNop(),
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("huggingface")
	return p, nil
}

func (p *Provider) Name() models.ProviderType {
	return models.ProviderHuggingFace
}

func (p *Provider) SupportsModel(model string) bool {
	cap, ok := p.registry.Get(model)
	if !ok {
		return false
	}
	return cap.Provider == models.ProviderHuggingFace
}

func (p *Provider) ListModels() []string {
	return p.registry.ListByProvider(models.ProviderHuggingFace)
}

// Generate runs the inference call until it succeeds, hits a fatal status, or
// runs out of attempts. 503 responses carrying estimated_time wait exactly
// that long and leave the exponential delay untouched; every other retryable
// failure waits the current delay and then doubles it.
func (p *Provider) Generate(ctx context.Context, req *models.GenerationRequest) ([]byte, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, &provider.GenerationError{Err: fmt.Errorf("%w: %w", provider.ErrValidation, models.ErrEmptyPrompt)}
	}

	model := req.Model
	if model == "" {
		model = models.DefaultModel
	}
	if cap, ok := p.registry.Get(model); ok {
		if err := cap.Validate(req); err != nil {
			return nil, &provider.GenerationError{Err: fmt.Errorf("%w: %w", provider.ErrValidation, err)}
		}
	} else {
		p.logger.Debug("model not in registry, sending as-is", zap.String("model", model))
	}

	payload, err := json.Marshal(p.buildAPIRequest(req))
	if err != nil {
		return nil, &provider.GenerationError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	url := p.baseURL + "/models/" + model
	delay := p.initialDelay
	var lastErr error

	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		log := p.logger.With(zap.Int("attempt", attempt), zap.Int("max_attempts", p.maxRetries))

		out := p.attempt(ctx, url, payload)
		switch out.State {
		case StateSuccess:
			log.Info("image generated", zap.String("model", model), zap.Int("bytes", len(out.Body)))
			return out.Body, nil
		case StateFatal:
			log.Error("generation failed", zap.Int("status", out.StatusCode), zap.Error(out.Err))
			return nil, &provider.GenerationError{Attempts: attempt, Err: out.Err}
		}

		lastErr = out.Err
		if attempt == p.maxRetries {
			break
		}

		wait := delay
		if out.Hinted {
			wait = out.Hint
			log.Info("model is loading", zap.Duration("wait", wait))
		} else {
			log.Warn("retrying generation", zap.Int("status", out.StatusCode), zap.Duration("wait", wait), zap.Error(out.Err))
		}

		if err := p.sleep(ctx, wait); err != nil {
			return nil, &provider.GenerationError{Attempts: attempt, Err: err}
		}

		if !out.Hinted {
			delay *= 2
		}
	}

	return nil, &provider.GenerationError{
		Attempts: p.maxRetries,
		Err:      fmt.Errorf("%w: %w", provider.ErrExhaustedRetries, lastErr),
	}
}

func (p *Provider) attempt(ctx context.Context, url string, payload []byte) Outcome {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Outcome{State: StateFatal, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	provider.LogRequest(p.logger, http.MethodPost, url, httpReq.Header, payload)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransportError(ctx, fmt.Errorf("failed to read response: %w", err))
	}

	provider.LogResponse(p.logger, resp.StatusCode, resp.Header, body)

	return classify(resp.StatusCode, body)
}

func (p *Provider) buildAPIRequest(req *models.GenerationRequest) *apiRequest {
	return &apiRequest{
		Inputs: req.FullPrompt(),
		Parameters: apiParameters{
			NumInferenceSteps: req.Params.Steps,
			GuidanceScale:     req.Params.GuidanceScale,
			Width:             req.Params.Width,
			Height:            req.Params.Height,
		},
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
