// Package batch publishes a list of posts one after another.
package batch

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/manash/imgpost/internal/pipeline"
	"github.com/manash/imgpost/pkg/models"
)

// PostRunner runs a single post. *pipeline.Runner satisfies it.
type PostRunner interface {
	Run(ctx context.Context, opts pipeline.Options) models.PublishResult
}

type Result struct {
	Index    int
	Label    string
	Outcome  models.PublishResult
	Duration time.Duration
}

func (r Result) Failed() bool {
	return !r.Outcome.OK()
}

type Options struct {
	Delay       time.Duration
	StopOnError bool
	DryRun      bool
}

type Processor struct {
	runner PostRunner
	out    io.Writer
	err    io.Writer
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

type Option func(*Processor)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithSleep replaces the wait between posts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Processor) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

func NewProcessor(runner PostRunner, out, errOut io.Writer, opts ...Option) *Processor {
	p := &Processor{
		runner: runner,
		out:    out,
		err:    errOut,
		logger: zap.NewNop(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("batch")
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Process runs items in order. It returns the results gathered so far with
// an error when the context ends or StopOnError trips.
func (p *Processor) Process(ctx context.Context, items []Item, opts *Options) ([]Result, error) {
	results := make([]Result, 0, len(items))
	total := len(items)

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result := p.processItem(ctx, item, opts, i+1, total)
		results = append(results, result)

		if result.Failed() && opts.StopOnError {
			return results, fmt.Errorf("stopped at item %d: %s", item.Index, result.Outcome.Message)
		}

		if opts.Delay > 0 && i < len(items)-1 {
			p.logger.Debug("waiting before next post", zap.Duration("delay", opts.Delay))
			if err := p.sleep(ctx, opts.Delay); err != nil {
				return results, err
			}
		}
	}

	return results, nil
}

func (p *Processor) processItem(ctx context.Context, item Item, opts *Options, current, total int) Result {
	start := time.Now()
	label := item.Label()
	fmt.Fprintf(p.out, "[%d/%d] Posting: %q\n", current, total, truncate(label, 50))

	outcome := p.runner.Run(ctx, pipeline.Options{
		Topic:    item.Topic,
		Prompt:   item.Prompt,
		Caption:  item.Caption,
		Hashtags: item.Hashtags,
		DryRun:   opts.DryRun,
	})

	result := Result{
		Index:    item.Index,
		Label:    label,
		Outcome:  outcome,
		Duration: time.Since(start),
	}

	switch {
	case result.Failed():
		fmt.Fprintf(p.err, "       Error: %s\n", outcome.Message)
	case outcome.PostID != "":
		fmt.Fprintf(p.out, "       Published: %s\n", outcome.PostID)
	default:
		fmt.Fprintf(p.out, "       Hosted: %s\n", outcome.ImageURL)
	}

	p.logger.Info("batch item finished",
		zap.Int("index", item.Index),
		zap.String("status", string(outcome.Status)),
		zap.Duration("duration", result.Duration),
	)
	return result
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func (p *Processor) PrintSummary(results []Result) {
	var successful, failed int
	var failures []Result

	for _, r := range results {
		if r.Failed() {
			failed++
			failures = append(failures, r)
		} else {
			successful++
		}
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Summary:")
	fmt.Fprintf(p.out, "  Successful: %d/%d posts\n", successful, len(results))
	if failed > 0 {
		fmt.Fprintf(p.out, "  Failed: %d (see errors below)\n", failed)
	}

	if len(failures) > 0 {
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, "Errors:")
		for _, e := range failures {
			fmt.Fprintf(p.out, "  [%d] %q: %s\n", e.Index, truncate(e.Label, 40), e.Outcome.Message)
		}
	}
}
