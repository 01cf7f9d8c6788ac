// Package pipeline runs one post end to end: prompt, generation, hosting and
// publishing. Every run ends in a PublishResult; failures never escape as
// errors or panics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/manash/imgpost/internal/enrich"
	"github.com/manash/imgpost/internal/image"
	"github.com/manash/imgpost/internal/instagram"
	"github.com/manash/imgpost/internal/provider"
	"github.com/manash/imgpost/pkg/models"
)

var ErrPublisherRequired = errors.New("instagram credentials are not configured")

type ImageHost interface {
	Upload(ctx context.Context, data []byte) (*models.HostedImage, error)
	Delete(ctx context.Context, deleteHash string) error
}

type Publisher interface {
	Publish(ctx context.Context, req instagram.PublishRequest, opts instagram.PublishOptions) models.PublishResult
}

type URLValidator interface {
	Validate(rawURL string) error
}

// Deps are the collaborators of a Runner. Publisher may be nil for dry runs
// and Saver may be nil when nothing is saved locally.
type Deps struct {
	Generator provider.Generator
	Host      ImageHost
	Publisher Publisher
	Enricher  enrich.Enricher
	Saver     *image.Saver
	Validator URLValidator
	// Registry supplies defaults for models chosen per run.
	Registry *models.ModelRegistry
	Logger   *zap.Logger
	Now      func() time.Time
}

type Settings struct {
	Model           string
	StylePrefix     string
	Params          models.InferenceParams
	Prepare         image.PrepareOptions
	SaveDir         string
	DeleteOnFailure bool
	Publish         instagram.PublishOptions
}

// Options describe a single post. An explicit Prompt skips enrichment.
type Options struct {
	Topic    string
	Prompt   string
	Caption  string
	Hashtags []string
	Model    string
	SavePath string
	DryRun   bool
}

type Runner struct {
	deps     Deps
	settings Settings
	logger   *zap.Logger
	now      func() time.Time
}

func New(deps Deps, settings Settings) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		deps:     deps,
		settings: settings,
		logger:   logger.Named("pipeline"),
		now:      now,
	}
}

// Run executes one post. A dry run stops after hosting and reports the
// hosted URL.
func (r *Runner) Run(ctx context.Context, opts Options) (result models.PublishResult) {
	log := r.logger.With(zap.String("run_id", uuid.NewString()))

	defer func() {
		if p := recover(); p != nil {
			log.Error("run panicked", zap.Any("panic", p), zap.Stack("stack"))
			result = models.NewErrorResult(fmt.Sprintf("internal error: %v", p), r.now())
		}
	}()

	started := r.now()
	result, hosted, err := r.run(ctx, log, opts)
	if err != nil {
		log.Error("run failed", zap.Error(err), zap.Duration("elapsed", r.now().Sub(started)))
		result = models.NewErrorResult(provider.Message(err), r.now())
		if hosted != nil {
			result.ImageURL = hosted.URL
		}
		return result
	}

	log.Info("run finished",
		zap.String("status", string(result.Status)),
		zap.String("post_id", result.PostID),
		zap.Duration("elapsed", r.now().Sub(started)),
	)
	return result
}

func (r *Runner) run(ctx context.Context, log *zap.Logger, opts Options) (models.PublishResult, *models.HostedImage, error) {
	if !opts.DryRun && r.deps.Publisher == nil {
		return models.PublishResult{}, nil, ErrPublisherRequired
	}

	content, err := r.resolvePrompt(ctx, log, opts)
	if err != nil {
		return models.PublishResult{}, nil, fmt.Errorf("enrichment: %w", err)
	}

	req := r.buildRequest(content.Prompt, opts)
	log.Info("generating image", zap.String("model", req.Model), zap.String("prompt", req.FullPrompt()))

	data, err := r.deps.Generator.Generate(ctx, req)
	if err != nil {
		return models.PublishResult{}, nil, err
	}

	info, err := image.Inspect(data)
	if err != nil {
		return models.PublishResult{}, nil, fmt.Errorf("generated output: %w", err)
	}
	log.Info("image generated", zap.String("format", info.Format), zap.Int("width", info.Width), zap.Int("height", info.Height))

	prepared, pinfo, err := image.Prepare(data, r.settings.Prepare)
	if err != nil {
		return models.PublishResult{}, nil, err
	}
	if !pinfo.AspectRatioOK() {
		log.Warn("aspect ratio outside instagram limits", zap.Int("width", pinfo.Width), zap.Int("height", pinfo.Height))
	}

	r.saveLocal(log, prepared, opts)

	hosted, err := r.deps.Host.Upload(ctx, prepared)
	if err != nil {
		return models.PublishResult{}, nil, err
	}
	log.Info("image hosted", zap.String("url", hosted.URL))

	if r.deps.Validator != nil {
		if err := r.deps.Validator.Validate(hosted.URL); err != nil {
			return models.PublishResult{}, hosted, fmt.Errorf("%w: hosted URL %s: %v", provider.ErrUpload, hosted.URL, err)
		}
	}

	if opts.DryRun {
		res := models.NewSuccessResult("", r.now())
		res.ImageURL = hosted.URL
		res.Message = "dry run: image hosted, not published"
		return res, hosted, nil
	}

	res := r.deps.Publisher.Publish(ctx, instagram.PublishRequest{
		Source:   models.SourceFromURL(hosted.URL),
		Caption:  r.caption(content, opts),
		Hashtags: mergeHashtags(opts.Hashtags, content.Hashtags),
	}, r.settings.Publish)
	res.ImageURL = hosted.URL

	if !res.OK() && r.settings.DeleteOnFailure && hosted.DeleteHash != "" {
		if err := r.deps.Host.Delete(ctx, hosted.DeleteHash); err != nil {
			log.Warn("failed to delete hosted image", zap.Error(err))
		} else {
			log.Info("hosted image deleted after failed publish")
		}
	}
	return res, hosted, nil
}

func (r *Runner) resolvePrompt(ctx context.Context, log *zap.Logger, opts Options) (*models.Enrichment, error) {
	if p := strings.TrimSpace(opts.Prompt); p != "" {
		return &models.Enrichment{Prompt: p, Source: "explicit"}, nil
	}
	if r.deps.Enricher == nil {
		return nil, fmt.Errorf("%w: a prompt or an enricher is required", provider.ErrValidation)
	}

	content, err := r.deps.Enricher.Enrich(ctx, opts.Topic)
	if err != nil {
		return nil, err
	}
	log.Info("prompt enriched", zap.String("source", content.Source), zap.Int("hashtags", len(content.Hashtags)))
	return content, nil
}

func (r *Runner) buildRequest(prompt string, opts Options) *models.GenerationRequest {
	req := models.NewGenerationRequest(prompt)
	req.StylePrefix = r.settings.StylePrefix
	if r.settings.Model != "" {
		req.Model = r.settings.Model
	}
	if opts.Model != "" && opts.Model != req.Model {
		req.Model = opts.Model
		// Configured parameters belong to the configured model.
		if caps, ok := r.registry().Get(opts.Model); ok {
			req.Params = models.InferenceParams{}
			caps.ApplyDefaults(req)
			return req
		}
	}

	p := r.settings.Params
	if p.Steps > 0 {
		req.Params.Steps = p.Steps
	}
	if p.GuidanceScale > 0 {
		req.Params.GuidanceScale = p.GuidanceScale
	}
	if p.Width > 0 && p.Height > 0 {
		req.Params.Width = p.Width
		req.Params.Height = p.Height
	}
	return req
}

func (r *Runner) registry() *models.ModelRegistry {
	if r.deps.Registry == nil {
		return models.DefaultRegistry()
	}
	return r.deps.Registry
}

// saveLocal keeps a copy when asked to. Failures are logged; they never
// abort the run.
func (r *Runner) saveLocal(log *zap.Logger, data []byte, opts Options) {
	if r.deps.Saver == nil {
		return
	}

	switch {
	case opts.SavePath != "":
		if err := r.deps.Saver.Save(data, opts.SavePath); err != nil {
			log.Warn("failed to save image", zap.Error(err))
			return
		}
		log.Info("image saved", zap.String("path", opts.SavePath))
	case r.settings.SaveDir != "":
		path, err := r.deps.Saver.SaveInDir(data, r.settings.SaveDir, opts.Topic, r.now())
		if err != nil {
			log.Warn("failed to save image", zap.Error(err))
			return
		}
		log.Info("image saved", zap.String("path", path))
	}
}

func (r *Runner) caption(content *models.Enrichment, opts Options) string {
	switch {
	case opts.Caption != "":
		return opts.Caption
	case content.Summary != "":
		return content.Summary
	default:
		return content.Prompt
	}
}

func mergeHashtags(explicit, enriched []string) []string {
	seen := make(map[string]bool, len(explicit)+len(enriched))
	var out []string
	for _, set := range [][]string{explicit, enriched} {
		for _, tag := range set {
			key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, tag)
		}
	}
	return out
}
