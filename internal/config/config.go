// Package config loads Gostream settings from defaults, an optional YAML file
// and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Stream provider names, also used as keys in MediaRef.SourceIDs
const (
	ProviderFshare    = "fshare"
	ProviderFebBox    = "febbox"
	ProviderShowBox   = "showbox"
	ProviderOPhim     = "ophim"
	ProviderKKPhim    = "kkphim"
	ProviderConsumet  = "consumet"
	ProviderVidSrc    = "vidsrc"
	ProviderAutoembed = "autoembed"
)

// Catalog source names
const (
	SourceOPhim    = "ophim"
	SourceKKPhim   = "kkphim"
	SourceAnime47  = "anime47"
	SourceConsumet = "consumet"
	SourceTMDB     = "tmdb"
)

// Browser modes for FebBox
const (
	BrowserPlaywright = "playwright"
	BrowserHTTP       = "http"
)

var (
	knownProviders = []string{
		ProviderFshare, ProviderFebBox, ProviderShowBox, ProviderOPhim,
		ProviderKKPhim, ProviderConsumet, ProviderVidSrc, ProviderAutoembed,
	}
	knownSources = []string{SourceOPhim, SourceKKPhim, SourceAnime47, SourceConsumet, SourceTMDB}
)

// Config holds all application configuration
type Config struct {
	DataDir          string        `yaml:"data_dir"`
	Debug            bool          `yaml:"debug"`
	Proxy            string        `yaml:"proxy"`
	PreferredQuality string        `yaml:"preferred_quality"`
	Providers        Providers     `yaml:"providers"`
	Catalog          Catalog       `yaml:"catalog"`
	TMDB             TMDB          `yaml:"tmdb"`
	Fshare           Fshare        `yaml:"fshare"`
	FebBox           FebBox        `yaml:"febbox"`
	ShowBox          ShowBox       `yaml:"showbox"`
	Embed            Embed         `yaml:"embed"`
	Subtitles        Subtitles     `yaml:"subtitles"`
	Download         Download      `yaml:"download"`
	HTTPTimeout      time.Duration `yaml:"http_timeout"`
}

// Policy is the per-provider timeout and retry policy
type Policy struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	Backoff       time.Duration `yaml:"backoff"`
	RatePerSecond int           `yaml:"rate_per_second"`
}

// Providers configures the stream resolution pipeline
type Providers struct {
	Order     []string          `yaml:"order"`
	Default   Policy            `yaml:"default"`
	Overrides map[string]Policy `yaml:"overrides"`
}

// PolicyFor returns the default policy merged with the provider override
func (p Providers) PolicyFor(name string) Policy {
	policy := p.Default
	o, ok := p.Overrides[name]
	if !ok {
		return policy
	}
	if o.Timeout > 0 {
		policy.Timeout = o.Timeout
	}
	if o.MaxRetries > 0 {
		policy.MaxRetries = o.MaxRetries
	}
	if o.Backoff > 0 {
		policy.Backoff = o.Backoff
	}
	if o.RatePerSecond > 0 {
		policy.RatePerSecond = o.RatePerSecond
	}
	return policy
}

// Catalog configures catalog aggregation
type Catalog struct {
	Sources       []string      `yaml:"sources"`
	SearchTimeout time.Duration `yaml:"search_timeout"`
	OPhimURL      string        `yaml:"ophim_url"`
	KKPhimURL     string        `yaml:"kkphim_url"`
	Anime47URL    string        `yaml:"anime47_url"`
	ConsumetURL   string        `yaml:"consumet_url"`
}

type TMDB struct {
	APIKey string `yaml:"api_key"`
}

type Fshare struct {
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	AppKey    string `yaml:"app_key"`
	UserAgent string `yaml:"user_agent"`
}

// Configured reports whether login credentials are present
func (f Fshare) Configured() bool {
	return f.Email != "" && f.Password != "" && f.AppKey != ""
}

type FebBox struct {
	Token   string `yaml:"token"`
	Browser string `yaml:"browser"`
}

type ShowBox struct {
	APIURL   string `yaml:"api_url"`
	ShareURL string `yaml:"share_url"`
}

type Embed struct {
	VidSrcURL    string `yaml:"vidsrc_url"`
	AutoembedURL string `yaml:"autoembed_url"`
}

type Subtitles struct {
	Languages              []string `yaml:"languages"`
	SubDLKey               string   `yaml:"subdl_api_key"`
	OpenSubtitlesKey       string   `yaml:"opensubtitles_api_key"`
	OpenSubtitlesUserAgent string   `yaml:"opensubtitles_user_agent"`
	SubSourceURL           string   `yaml:"subsource_url"`
}

type Download struct {
	Dir string `yaml:"dir"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".local", "gostream")

	return &Config{
		DataDir:          dataDir,
		PreferredQuality: "1080p",
		HTTPTimeout:      30 * time.Second,
		Providers: Providers{
			Order: []string{
				ProviderFshare, ProviderFebBox, ProviderShowBox, ProviderOPhim,
				ProviderKKPhim, ProviderConsumet, ProviderVidSrc, ProviderAutoembed,
			},
			Default: Policy{
				Timeout:    20 * time.Second,
				MaxRetries: 1,
				Backoff:    500 * time.Millisecond,
			},
			Overrides: map[string]Policy{
				ProviderShowBox: {Timeout: 45 * time.Second},
				ProviderFebBox:  {Timeout: 45 * time.Second},
			},
		},
		Catalog: Catalog{
			Sources:       []string{SourceOPhim, SourceKKPhim, SourceAnime47, SourceConsumet, SourceTMDB},
			SearchTimeout: 15 * time.Second,
			OPhimURL:      "https://ophim1.com",
			KKPhimURL:     "https://phimapi.com",
			Anime47URL:    "https://anime47.love",
			ConsumetURL:   "https://api.consumet.org",
		},
		Fshare: Fshare{
			UserAgent: "gostream-K58W6U",
		},
		FebBox: FebBox{
			Browser: BrowserPlaywright,
		},
		ShowBox: ShowBox{
			APIURL:   "https://mbpapi.shegu.net/api/api_client/index/",
			ShareURL: "https://www.showbox.media",
		},
		Embed: Embed{
			VidSrcURL:    "https://vidsrc.xyz",
			AutoembedURL: "https://player.autoembed.cc",
		},
		Subtitles: Subtitles{
			Languages:              []string{"vi", "en"},
			OpenSubtitlesUserAgent: "Gostream v1.0",
			SubSourceURL:           "https://api.subsource.net",
		},
		Download: Download{
			Dir: filepath.Join(dataDir, "downloads"),
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// GOSTREAM_CONFIG (or <data dir>/config.yaml when present), then environment
// variables. The result is validated.
func Load() (*Config, error) {
	cfg := Default()
	if dir := os.Getenv("GOSTREAM_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
		cfg.Download.Dir = filepath.Join(dir, "downloads")
	}

	path := os.Getenv("GOSTREAM_CONFIG")
	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.DataDir, "config.yaml")
	}
	if err := cfg.LoadFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto c
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- user supplied config path
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto c
func (c *Config) ApplyEnv() {
	c.DataDir = getEnvString("GOSTREAM_DATA_DIR", c.DataDir)
	c.Debug = getEnvBool("GOSTREAM_DEBUG", c.Debug)
	c.Proxy = getEnvString("GOSTREAM_PROXY", c.Proxy)
	c.PreferredQuality = getEnvString("GOSTREAM_QUALITY", c.PreferredQuality)
	c.HTTPTimeout = getEnvDuration("GOSTREAM_HTTP_TIMEOUT", c.HTTPTimeout)

	c.Providers.Order = getEnvStringSlice("GOSTREAM_PROVIDERS", c.Providers.Order)
	c.Providers.Default.Timeout = getEnvDuration("GOSTREAM_PROVIDER_TIMEOUT", c.Providers.Default.Timeout)
	c.Providers.Default.MaxRetries = getEnvInt("GOSTREAM_PROVIDER_RETRIES", c.Providers.Default.MaxRetries)
	c.Providers.Default.RatePerSecond = getEnvInt("GOSTREAM_PROVIDER_RATE", c.Providers.Default.RatePerSecond)

	c.Catalog.Sources = getEnvStringSlice("GOSTREAM_SOURCES", c.Catalog.Sources)
	c.Catalog.SearchTimeout = getEnvDuration("GOSTREAM_SEARCH_TIMEOUT", c.Catalog.SearchTimeout)
	c.Catalog.OPhimURL = getEnvString("OPHIM_URL", c.Catalog.OPhimURL)
	c.Catalog.KKPhimURL = getEnvString("KKPHIM_URL", c.Catalog.KKPhimURL)
	c.Catalog.Anime47URL = getEnvString("ANIME47_URL", c.Catalog.Anime47URL)
	c.Catalog.ConsumetURL = getEnvString("CONSUMET_URL", c.Catalog.ConsumetURL)

	c.TMDB.APIKey = getEnvString("TMDB_API_KEY", c.TMDB.APIKey)

	c.Fshare.Email = getEnvString("FSHARE_EMAIL", c.Fshare.Email)
	c.Fshare.Password = getEnvString("FSHARE_PASSWORD", c.Fshare.Password)
	c.Fshare.AppKey = getEnvString("FSHARE_APP_KEY", c.Fshare.AppKey)
	c.Fshare.UserAgent = getEnvString("FSHARE_USER_AGENT", c.Fshare.UserAgent)

	c.FebBox.Token = getEnvString("FEBBOX_TOKEN", c.FebBox.Token)
	c.FebBox.Browser = getEnvString("FEBBOX_BROWSER", c.FebBox.Browser)
	c.ShowBox.APIURL = getEnvString("SHOWBOX_API_URL", c.ShowBox.APIURL)
	c.ShowBox.ShareURL = getEnvString("SHOWBOX_SHARE_URL", c.ShowBox.ShareURL)

	c.Embed.VidSrcURL = getEnvString("VIDSRC_URL", c.Embed.VidSrcURL)
	c.Embed.AutoembedURL = getEnvString("AUTOEMBED_URL", c.Embed.AutoembedURL)

	c.Subtitles.Languages = getEnvStringSlice("SUBTITLE_LANGS", c.Subtitles.Languages)
	c.Subtitles.SubDLKey = getEnvString("SUBDL_API_KEY", c.Subtitles.SubDLKey)
	c.Subtitles.OpenSubtitlesKey = getEnvString("OPENSUBTITLES_API_KEY", c.Subtitles.OpenSubtitlesKey)
	c.Subtitles.OpenSubtitlesUserAgent = getEnvString("OPENSUBTITLES_USER_AGENT", c.Subtitles.OpenSubtitlesUserAgent)
	c.Subtitles.SubSourceURL = getEnvString("SUBSOURCE_URL", c.Subtitles.SubSourceURL)

	c.Download.Dir = getEnvString("GOSTREAM_DOWNLOAD_DIR", c.Download.Dir)
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	var problems []string

	if c.DataDir == "" {
		problems = append(problems, "data dir must not be empty")
	}
	if len(c.Providers.Order) == 0 {
		problems = append(problems, "provider order must list at least one provider")
	}
	for _, name := range c.Providers.Order {
		if !slices.Contains(knownProviders, name) {
			problems = append(problems, fmt.Sprintf("unknown provider %q", name))
		}
	}
	for _, name := range c.Catalog.Sources {
		if !slices.Contains(knownSources, name) {
			problems = append(problems, fmt.Sprintf("unknown catalog source %q", name))
		}
	}
	if c.Providers.Default.Timeout <= 0 {
		problems = append(problems, "provider timeout must be positive")
	}
	if c.Providers.Default.MaxRetries < 0 || c.Providers.Default.MaxRetries > 10 {
		problems = append(problems, "provider retries must be between 0 and 10")
	}
	if c.Catalog.SearchTimeout <= 0 {
		problems = append(problems, "search timeout must be positive")
	}
	if c.FebBox.Browser != BrowserPlaywright && c.FebBox.Browser != BrowserHTTP {
		problems = append(problems, fmt.Sprintf("febbox browser must be %q or %q", BrowserPlaywright, BrowserHTTP))
	}
	if (c.Fshare.Email == "") != (c.Fshare.Password == "") {
		problems = append(problems, "fshare email and password must be set together")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DatabasePath is the SQLite file holding local state
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "gostream.db")
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("30s") or bare seconds ("30")
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
