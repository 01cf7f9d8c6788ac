package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manash/imgpost/internal/enrich"
	"github.com/manash/imgpost/pkg/models"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, models.DefaultModel, cfg.Generation.Model)
	assert.Equal(t, 5, cfg.Generation.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.InitialDelay())
	assert.Equal(t, 30*time.Second, cfg.BatchDelay())
	assert.Equal(t, enrich.ModeNews, cfg.EnrichMode())
	assert.True(t, cfg.Instagram.Validate)
	assert.Equal(t, models.InferenceParams{Steps: 50, GuidanceScale: 7.5, Width: 1024, Height: 1024}, cfg.InferenceParams())
	require.NoError(t, cfg.Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
generation:
  model: runwayml/stable-diffusion-v1-5
  steps: 30
  width: 512
  height: 512
  max_retries: 3
  initial_delay: 500ms
image_host:
  delete_on_failure: true
instagram:
  check_quota: false
enrichment:
  mode: market
  keywords: [poland, election]
batch:
  delay: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "runwayml/stable-diffusion-v1-5", cfg.Generation.Model)
	assert.Equal(t, 30, cfg.Generation.Steps)
	assert.Equal(t, 7.5, cfg.Generation.GuidanceScale, "unset fields keep defaults")
	assert.Equal(t, 3, cfg.Generation.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.InitialDelay())
	assert.True(t, cfg.ImageHost.DeleteOnFailure)
	assert.True(t, cfg.Instagram.Validate)
	assert.False(t, cfg.Instagram.CheckQuota)
	assert.Equal(t, enrich.ModeMarket, cfg.EnrichMode())
	assert.Equal(t, []string{"poland", "election"}, cfg.Enrichment.Keywords)
	assert.Equal(t, time.Minute, cfg.BatchDelay())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("IMGPOST_MODEL", "stabilityai/stable-diffusion-2")
	t.Setenv("IMGPOST_ENRICH_MODE", "template")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "stabilityai/stable-diffusion-2", cfg.Generation.Model)
	assert.Equal(t, enrich.ModeTemplate, cfg.EnrichMode())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "generation: [unterminated"},
		{"bad duration", "generation:\n  initial_delay: soon\n"},
		{"negative duration", "batch:\n  delay: -5s\n"},
		{"zero retries", "generation:\n  max_retries: 0\n"},
		{"bad quality", "image:\n  quality: 150\n"},
		{"bad mode", "enrichment:\n  mode: psychic\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Enrichment.Seed = 42
	cfg.Image.SaveDir = "out"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestDefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("IMGPOST_CONFIG_DIR", dir)
	assert.Equal(t, filepath.Join(dir, FileName), DefaultPath())
}
