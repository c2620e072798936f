package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ProviderFshare, cfg.Providers.Order[0])
	assert.Equal(t, filepath.Join(cfg.DataDir, "gostream.db"), cfg.DatabasePath())
}

func TestPolicyFor(t *testing.T) {
	p := Providers{
		Default: Policy{Timeout: 10 * time.Second, MaxRetries: 2, Backoff: time.Second},
		Overrides: map[string]Policy{
			ProviderFebBox: {Timeout: time.Minute},
		},
	}

	febbox := p.PolicyFor(ProviderFebBox)
	assert.Equal(t, time.Minute, febbox.Timeout)
	assert.Equal(t, 2, febbox.MaxRetries)

	assert.Equal(t, p.Default, p.PolicyFor(ProviderVidSrc))
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("GOSTREAM_PROVIDERS", "vidsrc, OPhim")
	t.Setenv("GOSTREAM_PROVIDER_TIMEOUT", "7")
	t.Setenv("GOSTREAM_SEARCH_TIMEOUT", "3s")
	t.Setenv("TMDB_API_KEY", "tmdb-key")
	t.Setenv("FEBBOX_BROWSER", BrowserHTTP)
	t.Setenv("GOSTREAM_DEBUG", "true")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, []string{ProviderVidSrc, ProviderOPhim}, cfg.Providers.Order)
	assert.Equal(t, 7*time.Second, cfg.Providers.Default.Timeout)
	assert.Equal(t, 3*time.Second, cfg.Catalog.SearchTimeout)
	assert.Equal(t, "tmdb-key", cfg.TMDB.APIKey)
	assert.Equal(t, BrowserHTTP, cfg.FebBox.Browser)
	assert.True(t, cfg.Debug)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
preferred_quality: 720p
providers:
  order: [ophim, consumet]
  default:
    timeout: 12s
    max_retries: 3
subtitles:
  languages: [en]
fshare:
  email: me@example.com
  password: secret
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	t.Setenv("GOSTREAM_CONFIG", path)
	t.Setenv("GOSTREAM_DATA_DIR", dir)
	t.Setenv("GOSTREAM_QUALITY", "480p")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "480p", cfg.PreferredQuality, "env overrides file")
	assert.Equal(t, []string{ProviderOPhim, ProviderConsumet}, cfg.Providers.Order)
	assert.Equal(t, 12*time.Second, cfg.Providers.Default.Timeout)
	assert.Equal(t, 3, cfg.Providers.Default.MaxRetries)
	assert.Equal(t, []string{"en"}, cfg.Subtitles.Languages)
	assert.Equal(t, dir, cfg.DataDir)
	assert.False(t, cfg.Fshare.Configured(), "app key missing")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("GOSTREAM_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown provider", func(c *Config) { c.Providers.Order = []string{"netflix"} }, `unknown provider "netflix"`},
		{"empty order", func(c *Config) { c.Providers.Order = nil }, "at least one provider"},
		{"unknown source", func(c *Config) { c.Catalog.Sources = []string{"imdb"} }, `unknown catalog source "imdb"`},
		{"zero timeout", func(c *Config) { c.Providers.Default.Timeout = 0 }, "provider timeout"},
		{"retries", func(c *Config) { c.Providers.Default.MaxRetries = 11 }, "retries"},
		{"browser", func(c *Config) { c.FebBox.Browser = "firefox" }, "febbox browser"},
		{"half fshare", func(c *Config) { c.Fshare.Email = "a@b.c" }, "fshare email and password"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}
