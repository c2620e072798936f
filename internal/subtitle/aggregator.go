package subtitle

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"slices"
	"time"

	"github.com/alvarorichard/Gostream/internal/config"
	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/alvarorichard/Gostream/internal/util"
)

const (
	defaultSearchTimeout = 15 * time.Second
	// maxParallelSearches bounds the providers queried at once
	maxParallelSearches = 4
)

// Provider is one subtitle search service
type Provider interface {
	Name() string
	Search(ctx context.Context, ref models.MediaRef, langs []string) ([]models.Subtitle, error)
}

// LinkResolver is implemented by providers whose search results must be
// exchanged for a download link before fetching.
type LinkResolver interface {
	ResolveLink(ctx context.Context, sub models.Subtitle) (string, error)
}

// Aggregator queries every provider concurrently and downloads tracks on
// demand.
type Aggregator struct {
	providers []Provider
	timeout   time.Duration
	http      apiClient
}

// NewAggregator creates an aggregator over providers, in priority order
func NewAggregator(providers []Provider, timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = defaultSearchTimeout
	}
	return &Aggregator{providers: providers, timeout: timeout, http: newAPIClient("subtitle", "")}
}

// FromConfig builds the providers that are configured. SubSource needs no
// key and is always present.
func FromConfig(cfg config.Subtitles) *Aggregator {
	var providers []Provider
	if cfg.SubDLKey != "" {
		providers = append(providers, NewSubDL(cfg.SubDLKey))
	}
	if cfg.OpenSubtitlesKey != "" {
		providers = append(providers, NewOpenSubtitles(cfg.OpenSubtitlesKey, cfg.OpenSubtitlesUserAgent))
	}
	if cfg.SubSourceURL != "" {
		providers = append(providers, NewSubSource(cfg.SubSourceURL))
	}
	return NewAggregator(providers, 0)
}

// Providers returns the provider names in priority order
func (a *Aggregator) Providers() []string {
	names := make([]string, len(a.providers))
	for i, p := range a.providers {
		names[i] = p.Name()
	}
	return names
}

// Search returns the tracks for ref in the wanted languages, sorted by the
// order of langs and de-duplicated by URL. An error is returned only when
// every provider failed.
func (a *Aggregator) Search(ctx context.Context, ref models.MediaRef, langs []string) ([]models.Subtitle, error) {
	if len(a.providers) == 0 {
		return nil, nil
	}
	wanted := normalizeAll(langs)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	results := make([][]models.Subtitle, len(a.providers))
	errs := make([]error, len(a.providers))
	tasks := make([]func(), len(a.providers))
	for i, p := range a.providers {
		tasks[i] = func() {
			start := time.Now()
			results[i], errs[i] = p.Search(ctx, ref, wanted)
			util.Debug("Subtitle search", "provider", p.Name(), "count", len(results[i]), "took", time.Since(start))
		}
	}
	util.ParallelExecute(maxParallelSearches, tasks...)

	var failures []error
	for i, err := range errs {
		if err == nil {
			continue
		}
		if resolver.IsKind(err, resolver.KindNotConfigured) {
			util.Debug("Subtitle provider skipped", "provider", a.providers[i].Name(), "error", err)
			continue
		}
		util.Warn("Subtitle provider failed", "provider", a.providers[i].Name(), "error", err)
		failures = append(failures, err)
	}

	merged := Merge(wanted, results...)
	if len(merged) == 0 && len(failures) > 0 && len(failures) == len(a.providers) {
		return nil, fmt.Errorf("every subtitle provider failed: %w", errors.Join(failures...))
	}
	return merged, nil
}

// Merge flattens track lists, keeps the wanted languages (all when wanted
// is empty), drops duplicate URLs and sorts by language preference.
func Merge(wanted []string, lists ...[]models.Subtitle) []models.Subtitle {
	seen := map[string]bool{}
	var out []models.Subtitle
	for _, list := range lists {
		for _, sub := range list {
			if sub.URL == "" || seen[sub.URL] {
				continue
			}
			sub.Lang = NormalizeLanguage(sub.Lang)
			if len(wanted) > 0 && !slices.Contains(wanted, sub.Lang) {
				continue
			}
			seen[sub.URL] = true
			out = append(out, sub)
		}
	}
	SortByLanguage(out, wanted)
	return out
}

// Preferred keeps the tracks in langs, best language first. Every track
// is kept when langs is empty.
func Preferred(subs []models.Subtitle, langs []string) []models.Subtitle {
	return Merge(normalizeAll(langs), subs)
}

// SortByLanguage orders subs by the position of their language in langs.
// Languages not listed go last; the relative order is otherwise kept.
func SortByLanguage(subs []models.Subtitle, langs []string) {
	rank := func(lang string) int {
		if i := slices.Index(langs, lang); i >= 0 {
			return i
		}
		return len(langs)
	}
	slices.SortStableFunc(subs, func(x, y models.Subtitle) int {
		return rank(x.Lang) - rank(y.Lang)
	})
}

func normalizeAll(langs []string) []string {
	var out []string
	for _, l := range langs {
		if n := NormalizeLanguage(l); n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

// Fetch downloads sub and returns it as WebVTT. Zip archives are unpacked
// and legacy encodings decoded first.
func (a *Aggregator) Fetch(ctx context.Context, sub models.Subtitle) ([]byte, error) {
	link := sub.URL
	for _, p := range a.providers {
		lr, ok := p.(LinkResolver)
		if !ok || p.Name() != sub.Provider {
			continue
		}
		resolved, err := lr.ResolveLink(ctx, sub)
		if err != nil {
			return nil, err
		}
		link = resolved
	}

	data, err := a.http.do(ctx, http.MethodGet, link, nil, map[string]string{"Accept": "*/*"})
	if err != nil {
		return nil, err
	}

	name := path.Base(link)
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		data, name, err = extractTrack(data)
		if err != nil {
			return nil, err
		}
	}

	text, err := DecodeText(data)
	if err != nil {
		return nil, err
	}
	format := FormatFromURL(name)
	if format == "" || format == "zip" {
		format = sub.Format
	}
	vtt, err := ToVTT(text, format)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", name, err)
	}
	return []byte(vtt), nil
}

// extractTrack returns the first subtitle file inside a zip archive
func extractTrack(data []byte) ([]byte, string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, "", fmt.Errorf("open zip: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		switch FormatFromURL(f.Name) {
		case "srt", "ass", "ssa", "vtt":
		default:
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, "", fmt.Errorf("open %s: %w", f.Name, err)
		}
		var buf bytes.Buffer
		_, err = buf.ReadFrom(io.LimitReader(rc, maxDownloadSize))
		_ = rc.Close()
		if err != nil {
			return nil, "", fmt.Errorf("read %s: %w", f.Name, err)
		}
		return buf.Bytes(), f.Name, nil
	}
	return nil, "", fmt.Errorf("archive has no subtitle file")
}
