// Package scraper talks to the catalog sites and stream providers and merges
// their catalogs behind one Manager.
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

// defaultSearchTimeout is the maximum time to wait for all sources
const defaultSearchTimeout = 15 * time.Second

// ErrUnsupported is returned by sources for operations they do not offer
var ErrUnsupported = errors.New("operation not supported by this source")

// CatalogSource is one catalog the Manager aggregates
type CatalogSource interface {
	Name() string
	Search(ctx context.Context, query string, page int) (*models.Page[models.Media], error)
	Latest(ctx context.Context, page int) (*models.Page[models.Media], error)
	Detail(ctx context.Context, id string) (*models.Media, error)
}

// SearchOptions narrows a catalog query
type SearchOptions struct {
	Page     int
	Kind     models.MediaKind
	YearFrom int
	YearTo   int
	Country  string
	Sources  []string
}

func (o SearchOptions) cacheKey() string {
	return fmt.Sprintf("%d", max(o.Page, 1))
}

// keep reports whether item passes the kind, year and country filters
func (o SearchOptions) keep(item models.Media) bool {
	if o.Kind != "" && item.Kind != "" && item.Kind != o.Kind {
		return false
	}
	if o.YearFrom > 0 && item.Year > 0 && item.Year < o.YearFrom {
		return false
	}
	if o.YearTo > 0 && item.Year > 0 && item.Year > o.YearTo {
		return false
	}
	if o.Country != "" && !strings.Contains(strings.ToLower(item.Country), strings.ToLower(o.Country)) {
		return false
	}
	return true
}

// Manager fans catalog queries out to every source and merges the answers
type Manager struct {
	sources []CatalogSource
	timeout time.Duration
	cache   *util.ResponseCache
	details *util.ResponseCache
}

// NewManager creates a manager over sources, in priority order
func NewManager(sources []CatalogSource, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultSearchTimeout
	}
	return &Manager{
		sources: sources,
		timeout: timeout,
		cache:   util.GetSearchCache(),
		details: util.GetDetailCache(),
	}
}

// WithCaches replaces the response caches; nil disables caching
func (m *Manager) WithCaches(search, details *util.ResponseCache) *Manager {
	m.cache = search
	m.details = details
	return m
}

// Sources returns the source names in priority order
func (m *Manager) Sources() []string {
	names := make([]string, 0, len(m.sources))
	for _, s := range m.sources {
		names = append(names, s.Name())
	}
	return names
}

// Source returns the source registered under name
func (m *Manager) Source(name string) (CatalogSource, bool) {
	for _, s := range m.sources {
		if strings.EqualFold(s.Name(), name) {
			return s, true
		}
	}
	return nil, false
}

// Search queries every selected source concurrently. A failing or slow
// source never fails the page: an error is returned only when every
// source failed and nothing was found.
func (m *Manager) Search(ctx context.Context, query string, opts SearchOptions) (*models.Page[models.Media], error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query must not be empty")
	}
	util.Debug("Starting concurrent search across all sources", "query", query)

	return m.aggregate(ctx, "search", query, opts, func(ctx context.Context, s CatalogSource) (*models.Page[models.Media], error) {
		return s.Search(ctx, query, max(opts.Page, 1))
	})
}

// Latest lists recently updated items from every source that offers it
func (m *Manager) Latest(ctx context.Context, opts SearchOptions) (*models.Page[models.Media], error) {
	return m.aggregate(ctx, "latest", "", opts, func(ctx context.Context, s CatalogSource) (*models.Page[models.Media], error) {
		return s.Latest(ctx, max(opts.Page, 1))
	})
}

// Detail fetches the full item, episodes included, from the named source
func (m *Manager) Detail(ctx context.Context, source, id string) (*models.Media, error) {
	s, ok := m.Source(source)
	if !ok {
		return nil, fmt.Errorf("unknown catalog source %q", source)
	}

	cacheKey := "detail|" + s.Name() + "|" + id
	if data, ok := m.details.Get(cacheKey); ok {
		var item models.Media
		if err := json.Unmarshal(data, &item); err == nil {
			util.Debug("Detail cache hit", "key", cacheKey)
			return &item, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	item, err := s.Detail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("detail from %s failed: %w", s.Name(), err)
	}
	if item.Source == "" {
		item.Source = s.Name()
	}
	if item.Key == "" {
		item.Key = models.MakeKey(item.Source, id)
	}

	if data, err := json.Marshal(item); err == nil {
		m.details.Set(cacheKey, data)
	}
	return item, nil
}

// DetailFor loads the detail of a search hit and keeps what the hit
// learned from other sources during the merge (alternate ids, TMDB, IMDB
// and MAL ids), so resolution can still reach every provider.
func (m *Manager) DetailFor(ctx context.Context, hit models.Media) (*models.Media, error) {
	source, id := hit.Source, hit.ID
	if s, i, ok := models.SplitKey(hit.Key); ok {
		source, id = s, i
	}
	item, err := m.Detail(ctx, source, id)
	if err != nil {
		return nil, err
	}
	merged := *item
	merged.Adopt(hit)
	return &merged, nil
}

// DetailByKey is Detail for a "source:id" key
func (m *Manager) DetailByKey(ctx context.Context, key string) (*models.Media, error) {
	source, id, ok := models.SplitKey(key)
	if !ok {
		return nil, fmt.Errorf("invalid item key %q", key)
	}
	return m.Detail(ctx, source, id)
}

type sourceResult struct {
	index int
	name  string
	page  *models.Page[models.Media]
	err   error
}

type sourceCall func(ctx context.Context, s CatalogSource) (*models.Page[models.Media], error)

func (m *Manager) selected(opts SearchOptions) []CatalogSource {
	if len(opts.Sources) == 0 {
		return m.sources
	}
	var out []CatalogSource
	for _, s := range m.sources {
		for _, name := range opts.Sources {
			if strings.EqualFold(s.Name(), name) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func (m *Manager) aggregate(ctx context.Context, op, query string, opts SearchOptions, call sourceCall) (*models.Page[models.Media], error) {
	sources := m.selected(opts)
	if len(sources) == 0 {
		return nil, fmt.Errorf("no catalog source selected")
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	resultChan := make(chan sourceResult, len(sources))
	var wg sync.WaitGroup

	for i, src := range sources {
		wg.Add(1)
		go func(i int, s CatalogSource) {
			defer wg.Done()
			name := s.Name()
			cacheKey := strings.Join([]string{op, name, strings.ToLower(query), opts.cacheKey()}, "|")

			if data, ok := m.cache.Get(cacheKey); ok {
				var page models.Page[models.Media]
				if err := json.Unmarshal(data, &page); err == nil {
					resultChan <- sourceResult{index: i, name: name, page: &page}
					return
				}
			}

			done := make(chan struct{})
			var page *models.Page[models.Media]
			var err error

			go func() {
				page, err = call(ctx, s)
				close(done)
			}()

			select {
			case <-done:
				if err == nil && page != nil {
					if data, mErr := json.Marshal(page); mErr == nil {
						m.cache.Set(cacheKey, data)
					}
				}
				resultChan <- sourceResult{index: i, name: name, page: page, err: err}
			case <-ctx.Done():
				util.Debug("Search timeout", "source", name)
				resultChan <- sourceResult{index: i, name: name, err: fmt.Errorf("%s timed out after %v", op, m.timeout)}
			}
		}(i, src)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	ordered := make([]sourceResult, len(sources))
	for res := range resultChan {
		ordered[res.index] = res
	}

	var searchErrors []string
	unsupported := 0
	out := &models.Page[models.Media]{Page: max(opts.Page, 1)}
	merger := newMerger()

	for _, res := range ordered {
		if res.err != nil {
			if errors.Is(res.err, ErrUnsupported) {
				unsupported++
				continue
			}
			util.Debug("Search error", "source", res.name, "error", res.err)
			searchErrors = append(searchErrors, fmt.Sprintf("%s: %v", res.name, res.err))
			continue
		}
		if res.page == nil {
			continue
		}
		util.Debug("Search results", "source", res.name, "count", len(res.page.Items))

		for _, item := range res.page.Items {
			if item.Source == "" {
				item.Source = res.name
			}
			if item.Key == "" {
				item.Key = models.MakeKey(item.Source, item.ID)
			}
			if opts.keep(item) {
				merger.add(item)
			}
		}
		if res.page.HasNext {
			out.HasNext = true
		}
		out.TotalPages = max(out.TotalPages, res.page.TotalPages)
	}

	for _, errMsg := range searchErrors {
		util.Warn("Search source unavailable", "details", errMsg)
	}

	out.Items = merger.items
	if len(out.Items) == 0 && len(searchErrors) > 0 && len(searchErrors)+unsupported == len(sources) {
		return nil, fmt.Errorf("%s failed on every source: %s", op, strings.Join(searchErrors, "; "))
	}
	return out, nil
}

// merger de-duplicates items by normalized title and year. The first item
// seen wins; later ones are recorded as alternates.
type merger struct {
	items []models.Media
	index map[string]int
}

func newMerger() *merger {
	return &merger{index: make(map[string]int)}
}

func dedupeKeys(item models.Media) []string {
	var keys []string
	year := strconv.Itoa(item.Year)
	for _, title := range []string{item.Title, item.OriginalTitle} {
		if n := util.NormalizeTitle(title); n != "" {
			keys = append(keys, n+"|"+year)
		}
	}
	return keys
}

func (m *merger) add(item models.Media) {
	keys := dedupeKeys(item)
	for _, k := range keys {
		if idx, ok := m.index[k]; ok {
			m.attach(idx, item)
			return
		}
	}

	m.items = append(m.items, item)
	idx := len(m.items) - 1
	for _, k := range keys {
		m.index[k] = idx
	}
}

func (m *merger) attach(idx int, alt models.Media) {
	existing := &m.items[idx]
	if alt.Source == existing.Source {
		return
	}
	if existing.Alternates == nil {
		existing.Alternates = make(map[string]string)
	}
	id := alt.ID
	if alt.Slug != "" {
		id = alt.Slug
	}
	if _, ok := existing.Alternates[alt.Source]; !ok {
		existing.Alternates[alt.Source] = id
	}
	for src, altID := range alt.Alternates {
		if _, ok := existing.Alternates[src]; !ok && src != existing.Source {
			existing.Alternates[src] = altID
		}
	}

	if existing.TMDBID == 0 {
		existing.TMDBID = alt.TMDBID
	}
	if existing.IMDBID == "" {
		existing.IMDBID = alt.IMDBID
	}
	if existing.Poster == "" {
		existing.Poster = alt.Poster
	}
	if existing.OriginalTitle == "" && !strings.EqualFold(alt.Title, existing.Title) {
		existing.OriginalTitle = alt.Title
	}
	for _, k := range dedupeKeys(alt) {
		if _, ok := m.index[k]; !ok {
			m.index[k] = idx
		}
	}
}
