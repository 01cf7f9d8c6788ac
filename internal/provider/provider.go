package provider

import (
	"context"
	"time"

	"github.com/manash/imgpost/pkg/models"
)

// Generator turns a prompt into raw image bytes.
type Generator interface {
	Name() models.ProviderType
	Generate(ctx context.Context, req *models.GenerationRequest) ([]byte, error)
}

// Config is shared by every vendor client. Fields a vendor does not use are ignored.
type Config struct {
	APIKey       string
	BaseURL      string
	TimeoutSec   int
	MaxRetries   int
	InitialDelay time.Duration
	Verbose      bool
}

// Timeout returns the configured HTTP timeout or def when unset.
func (c *Config) Timeout(def time.Duration) time.Duration {
	if c.TimeoutSec > 0 {
		return time.Duration(c.TimeoutSec) * time.Second
	}
	return def
}
