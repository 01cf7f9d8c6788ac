// Package config loads imgpost settings from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/manash/imgpost/internal/enrich"
	"github.com/manash/imgpost/internal/keys"
	"github.com/manash/imgpost/pkg/models"
)

const FileName = "config.yaml"

// Config holds all imgpost configuration. Credentials are not part of it;
// see package keys.
type Config struct {
	Generation GenerationConfig `yaml:"generation"`
	ImageHost  ImageHostConfig  `yaml:"image_host"`
	Instagram  InstagramConfig  `yaml:"instagram"`
	Image      ImageConfig      `yaml:"image"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Batch      BatchConfig      `yaml:"batch"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type GenerationConfig struct {
	Model         string  `yaml:"model"`
	StylePrefix   string  `yaml:"style_prefix"`
	Steps         int     `yaml:"steps"`
	GuidanceScale float64 `yaml:"guidance_scale"`
	Width         int     `yaml:"width"`
	Height        int     `yaml:"height"`
	MaxRetries    int     `yaml:"max_retries"`
	InitialDelay  string  `yaml:"initial_delay"`
	Timeout       string  `yaml:"timeout"`
	BaseURL       string  `yaml:"base_url"`
}

type ImageHostConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
	// DeleteOnFailure removes the hosted image when publishing fails.
	DeleteOnFailure bool `yaml:"delete_on_failure"`
}

type InstagramConfig struct {
	BaseURL        string   `yaml:"base_url"`
	Timeout        string   `yaml:"timeout"`
	Validate       bool     `yaml:"validate"`
	CheckQuota     bool     `yaml:"check_quota"`
	RequiredScopes []string `yaml:"required_scopes,omitempty"`
}

type ImageConfig struct {
	MaxDimension int    `yaml:"max_dimension"`
	Quality      int    `yaml:"quality"`
	SaveDir      string `yaml:"save_dir"`
	// StrictHosts only accepts hosted links on the image host's domains.
	StrictHosts bool `yaml:"strict_hosts"`
}

type EnrichmentConfig struct {
	Mode          string   `yaml:"mode"` // template, news, market
	Country       string   `yaml:"country"`
	Category      string   `yaml:"category"`
	Terms         []string `yaml:"terms,omitempty"`
	Keywords      []string `yaml:"keywords,omitempty"`
	NewsBaseURL   string   `yaml:"news_base_url"`
	MarketBaseURL string   `yaml:"market_base_url"`
	// Seed pins the randomized prompt generator. Zero picks a random seed.
	Seed uint64 `yaml:"seed"`
}

type BatchConfig struct {
	Delay       string `yaml:"delay"`
	StopOnError bool   `yaml:"stop_on_error"`
}

type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

func DefaultConfig() *Config {
	return &Config{
		Generation: GenerationConfig{
			Model:         models.DefaultModel,
			Steps:         50,
			GuidanceScale: 7.5,
			Width:         1024,
			Height:        1024,
			MaxRetries:    5,
			InitialDelay:  "2s",
			Timeout:       "120s",
		},
		ImageHost: ImageHostConfig{
			Timeout: "60s",
		},
		Instagram: InstagramConfig{
			Timeout:        "60s",
			Validate:       true,
			CheckQuota:     true,
			RequiredScopes: []string{"instagram_basic", "instagram_content_publish"},
		},
		Image: ImageConfig{
			MaxDimension: 1080,
			Quality:      90,
			StrictHosts:  true,
		},
		Enrichment: EnrichmentConfig{
			Mode: string(enrich.ModeNews),
		},
		Batch: BatchConfig{
			Delay: "30s",
		},
	}
}

// DefaultPath is config.yaml in the imgpost config directory.
func DefaultPath() string {
	dir, err := keys.ConfigDir()
	if err != nil {
		return FileName
	}
	return filepath.Join(dir, FileName)
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("IMGPOST_MODEL"); v != "" {
		c.Generation.Model = v
	}
	if v := os.Getenv("IMGPOST_ENRICH_MODE"); v != "" {
		c.Enrichment.Mode = v
	}
	if v := os.Getenv("IMGPOST_SAVE_DIR"); v != "" {
		c.Image.SaveDir = v
	}
}

func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"generation.initial_delay": c.Generation.InitialDelay,
		"generation.timeout":       c.Generation.Timeout,
		"image_host.timeout":       c.ImageHost.Timeout,
		"instagram.timeout":        c.Instagram.Timeout,
		"batch.delay":              c.Batch.Delay,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			return fmt.Errorf("%s: invalid duration %q", name, v)
		}
	}

	if c.Generation.MaxRetries < 1 {
		return fmt.Errorf("generation.max_retries must be at least 1, got %d", c.Generation.MaxRetries)
	}
	if c.Image.Quality < 1 || c.Image.Quality > 100 {
		return fmt.Errorf("image.quality must be between 1 and 100, got %d", c.Image.Quality)
	}
	if c.Image.MaxDimension < 1 {
		return fmt.Errorf("image.max_dimension must be positive, got %d", c.Image.MaxDimension)
	}
	if _, err := enrich.ParseMode(c.Enrichment.Mode); err != nil {
		return err
	}
	return nil
}

func (c *Config) InitialDelay() time.Duration {
	return parseDuration(c.Generation.InitialDelay, 2*time.Second)
}

func (c *Config) GenerationTimeout() time.Duration {
	return parseDuration(c.Generation.Timeout, 120*time.Second)
}

func (c *Config) ImageHostTimeout() time.Duration {
	return parseDuration(c.ImageHost.Timeout, 60*time.Second)
}

func (c *Config) InstagramTimeout() time.Duration {
	return parseDuration(c.Instagram.Timeout, 60*time.Second)
}

func (c *Config) BatchDelay() time.Duration {
	return parseDuration(c.Batch.Delay, 30*time.Second)
}

func (c *Config) EnrichMode() enrich.Mode {
	m, err := enrich.ParseMode(c.Enrichment.Mode)
	if err != nil {
		return enrich.ModeNews
	}
	return m
}

// InferenceParams returns the configured generation parameters.
func (c *Config) InferenceParams() models.InferenceParams {
	return models.InferenceParams{
		Steps:         c.Generation.Steps,
		GuidanceScale: c.Generation.GuidanceScale,
		Width:         c.Generation.Width,
		Height:        c.Generation.Height,
	}
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || s == "" {
		return def
	}
	return d
}
