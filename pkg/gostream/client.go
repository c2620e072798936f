// Package gostream is the library entry point: catalog search across every
// configured source, stream resolution across providers, subtitles, skip
// markers and the local state store.
package gostream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alvarorichard/Gostream/internal/api"
	"github.com/alvarorichard/Gostream/internal/config"
	"github.com/alvarorichard/Gostream/internal/downloader"
	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/alvarorichard/Gostream/internal/scraper"
	"github.com/alvarorichard/Gostream/internal/subtitle"
	"github.com/alvarorichard/Gostream/internal/tracking"
	"github.com/alvarorichard/Gostream/internal/util"
)

// Where skip markers came from
const (
	SkipFromSeries  = tracking.SkipFromSeries
	SkipFromCountry = tracking.SkipFromCountry
	SkipFromAniSkip = "aniskip"
)

// Client is the main client for searching, resolving and tracking media
type Client struct {
	cfg *config.Config

	registry  *scraper.Registry
	catalog   *scraper.Manager
	pipeline  *resolver.Pipeline
	subtitles *subtitle.Aggregator
	aniskip   *api.AniSkipClient
	store     *tracking.Store

	sources   []scraper.CatalogSource
	providers []resolver.StreamProvider
	subs      []subtitle.Provider
	noStore   bool
	noCache   bool
	ownsStore bool
}

// Option customizes a Client
type Option func(*Client)

// WithSources replaces the configured catalog sources
func WithSources(sources ...CatalogSource) Option {
	return func(c *Client) { c.sources = sources }
}

// WithProviders replaces the configured stream providers
func WithProviders(providers ...StreamProvider) Option {
	return func(c *Client) { c.providers = providers }
}

// WithSubtitleProviders replaces the configured subtitle providers
func WithSubtitleProviders(providers ...SubtitleProvider) Option {
	return func(c *Client) { c.subs = providers }
}

// WithStore uses an already opened store. The client does not close it.
func WithStore(store *tracking.Store) Option {
	return func(c *Client) { c.store = store }
}

// WithoutStore disables the local database
func WithoutStore() Option {
	return func(c *Client) { c.noStore = true }
}

// WithoutCache disables the catalog response caches
func WithoutCache() Option {
	return func(c *Client) { c.noCache = true }
}

// WithAniSkip overrides the AniSkip client
func WithAniSkip(client *api.AniSkipClient) Option {
	return func(c *Client) { c.aniskip = client }
}

// NewClient builds a client from the environment and the config file
func NewClient(opts ...Option) (*Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return New(cfg, opts...)
}

// New builds a client from cfg
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.Proxy != "" {
		if err := util.SetProxy(cfg.Proxy); err != nil {
			return nil, err
		}
	}

	if c.sources == nil || c.providers == nil {
		c.registry = scraper.Build(cfg)
		if c.sources == nil {
			c.sources = c.registry.Sources
		}
		if c.providers == nil {
			c.providers = c.registry.Providers
		}
	}

	c.catalog = scraper.NewManager(c.sources, cfg.Catalog.SearchTimeout)
	if c.noCache {
		c.catalog.WithCaches(nil, nil)
	}

	if c.subs != nil {
		c.subtitles = subtitle.NewAggregator(c.subs, 0)
	} else {
		c.subtitles = subtitle.FromConfig(cfg.Subtitles)
	}

	c.pipeline = resolver.NewPipeline(c.providers,
		resolver.WithPolicies(cfg.Providers),
		resolver.WithSubtitles(c.subtitles, cfg.Subtitles.Languages),
	)

	if c.aniskip == nil {
		c.aniskip = api.NewAniSkipClient()
	}

	if c.store == nil && !c.noStore {
		store, err := tracking.Open(cfg.DatabasePath())
		switch {
		case errors.Is(err, tracking.ErrCgoDisabled):
			util.Warn("Local state disabled", "reason", err)
		case err != nil:
			_ = c.closeRegistry()
			return nil, fmt.Errorf("open database: %w", err)
		default:
			c.store = store
			c.ownsStore = true
		}
	}

	util.Debug("Client ready", "sources", c.catalog.Sources(), "providers", c.pipeline.Providers())
	return c, nil
}

// Config returns the effective configuration
func (c *Client) Config() *config.Config {
	return c.cfg
}

// Sources returns the catalog source names in priority order
func (c *Client) Sources() []string {
	return c.catalog.Sources()
}

// Providers returns the stream provider names in priority order
func (c *Client) Providers() []string {
	return c.pipeline.Providers()
}

// SubtitleProviders returns the subtitle provider names
func (c *Client) SubtitleProviders() []string {
	return c.subtitles.Providers()
}

// Store returns the local state store, or nil when it is disabled
func (c *Client) Store() *tracking.Store {
	return c.store
}

// Search queries every catalog source and merges the results. Non-empty
// queries are added to the search history.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) (*MediaPage, error) {
	page, err := c.catalog.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	if c.store != nil && opts.Page <= 1 {
		if err := c.store.AddSearch(query); err != nil {
			util.Debug("Failed to record search", "error", err)
		}
	}
	return page, nil
}

// Latest returns recently updated items across sources
func (c *Client) Latest(ctx context.Context, opts SearchOptions) (*MediaPage, error) {
	return c.catalog.Latest(ctx, opts)
}

// Detail loads an item by its key ("source:id")
func (c *Client) Detail(ctx context.Context, key string) (*Media, error) {
	return c.catalog.DetailByKey(ctx, key)
}

// DetailOf loads the detail of a search result, keeping the ids other
// catalogs reported for it
func (c *Client) DetailOf(ctx context.Context, hit Media) (*Media, error) {
	return c.catalog.DetailFor(ctx, hit)
}

// Resolve tries the stream providers in priority order and returns the
// first non-empty stream set, with external subtitles attached
func (c *Client) Resolve(ctx context.Context, ref MediaRef) (*StreamSet, error) {
	return c.pipeline.Resolve(ctx, ref)
}

// ResolveAll queries every provider concurrently and merges their answers
func (c *Client) ResolveAll(ctx context.Context, ref MediaRef) (*ResolveResult, error) {
	return c.pipeline.ResolveAll(ctx, ref)
}

// SelectSource picks the source matching the preferred quality from set
func (c *Client) SelectSource(set *StreamSet) (StreamSource, bool) {
	return resolver.SelectSource(set, c.cfg.PreferredQuality)
}

// Subtitles searches the subtitle providers. Without langs the configured
// languages are used.
func (c *Client) Subtitles(ctx context.Context, ref MediaRef, langs ...string) ([]Subtitle, error) {
	if len(langs) == 0 {
		langs = c.cfg.Subtitles.Languages
	}
	return c.subtitles.Search(ctx, ref, langs)
}

// FetchSubtitle downloads sub and returns it as WebVTT
func (c *Client) FetchSubtitle(ctx context.Context, sub Subtitle) ([]byte, error) {
	return c.subtitles.Fetch(ctx, sub)
}

// SkipTimes returns intro and outro markers for an episode. Markers saved
// for the series win, then the default of its country; anime with a MAL id
// fall back to AniSkip. from names where the markers came from and is
// empty when none were found.
func (c *Client) SkipTimes(ctx context.Context, seriesKey string, ref MediaRef) (st SkipTimes, from string, err error) {
	if c.store != nil {
		st, from, found, err := c.store.ResolveSkip(seriesKey, ref.Country)
		if err != nil {
			return st, "", err
		}
		if found {
			return st, from, nil
		}
	}

	if ref.MalID <= 0 || ref.Episode <= 0 || (ref.Kind != "" && ref.Kind != models.KindAnime) {
		return st, "", nil
	}
	st, found, err := c.aniskip.SkipTimes(ctx, ref.MalID, ref.Episode)
	if err != nil {
		return st, "", err
	}
	if !found {
		return st, "", nil
	}
	return st, SkipFromAniSkip, nil
}

// PreferredSubtitles returns the tracks of set in the configured
// languages, in the order the languages are listed
func (c *Client) PreferredSubtitles(set *StreamSet) []Subtitle {
	return subtitle.Preferred(set.Subtitles, c.cfg.Subtitles.Languages)
}

// Downloader returns a downloader writing below the configured directory
func (c *Client) Downloader(interactive bool) *downloader.Downloader {
	return downloader.New(downloader.Options{Dir: c.cfg.Download.Dir, Interactive: interactive})
}

// Download resolves ref, picks the preferred source and saves it. When
// withSubs is set the first subtitle in the preferred languages is saved
// next to the video.
func (c *Client) Download(ctx context.Context, title string, ref MediaRef, withSubs, interactive bool) (*DownloadResult, error) {
	set, err := c.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	src, ok := c.SelectSource(set)
	if !ok {
		return nil, fmt.Errorf("no playable source for %s", ref)
	}

	req := DownloadRequest{Title: title, Season: ref.Season, Episode: ref.Episode, Source: src}
	if withSubs {
		for _, sub := range c.PreferredSubtitles(set) {
			data, err := c.FetchSubtitle(ctx, sub)
			if err != nil {
				util.Debug("Subtitle download failed", "url", sub.URL, "error", err)
				continue
			}
			req.Subtitle, req.SubtitleLang = data, sub.Lang
			break
		}
	}
	return c.Downloader(interactive).Download(ctx, req)
}

// Close releases the browser session and the database
func (c *Client) Close() error {
	var errs []string
	if err := c.closeRegistry(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.ownsStore && c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Client) closeRegistry() error {
	if c.registry == nil {
		return nil
	}
	return c.registry.Close()
}
