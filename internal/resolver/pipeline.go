// Package resolver turns a MediaRef into playable streams by trying stream
// providers in priority order.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/ratelimit"

	"github.com/alvarorichard/Gostream/internal/config"
	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

// StreamProvider resolves a MediaRef into a StreamSet
type StreamProvider interface {
	Name() string
	Supports(ref models.MediaRef) bool
	Resolve(ctx context.Context, ref models.MediaRef) (*models.StreamSet, error)
}

// SubtitleSource supplies external subtitles merged into resolved sets
type SubtitleSource interface {
	Search(ctx context.Context, ref models.MediaRef, langs []string) ([]models.Subtitle, error)
}

// Pipeline resolves refs across providers with per-provider policies
type Pipeline struct {
	providers []StreamProvider
	policies  config.Providers
	limiters  map[string]ratelimit.Limiter

	subtitles SubtitleSource
	langs     []string

	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Pipeline
type Option func(*Pipeline)

type retryOwnerKey struct{}

// RetriedByPipeline reports whether ctx belongs to a provider call whose
// retries and rate limit the pipeline applies. HTTP clients then make a
// single attempt per request.
func RetriedByPipeline(ctx context.Context) bool {
	owned, _ := ctx.Value(retryOwnerKey{}).(bool)
	return owned
}

// WithPolicies sets the timeout, retry and rate policies
func WithPolicies(p config.Providers) Option {
	return func(pl *Pipeline) { pl.policies = p }
}

// WithSubtitles attaches a subtitle source queried after a successful resolve
func WithSubtitles(src SubtitleSource, langs []string) Option {
	return func(pl *Pipeline) {
		pl.subtitles = src
		pl.langs = langs
	}
}

// NewPipeline creates a pipeline trying providers in the given order
func NewPipeline(providers []StreamProvider, opts ...Option) *Pipeline {
	pl := &Pipeline{
		providers: providers,
		policies:  config.Default().Providers,
		limiters:  make(map[string]ratelimit.Limiter),
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(pl)
	}
	for _, p := range providers {
		if rate := pl.policies.PolicyFor(p.Name()).RatePerSecond; rate > 0 {
			pl.limiters[p.Name()] = ratelimit.New(rate)
		}
	}
	return pl
}

// Providers returns the provider names in priority order
func (pl *Pipeline) Providers() []string {
	names := make([]string, 0, len(pl.providers))
	for _, p := range pl.providers {
		names = append(names, p.Name())
	}
	return names
}

// Order filters providers to the names listed in order, in that order
func Order(providers []StreamProvider, order []string) []StreamProvider {
	byName := make(map[string]StreamProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	ordered := make([]StreamProvider, 0, len(order))
	for _, name := range order {
		if p, ok := byName[strings.ToLower(name)]; ok {
			ordered = append(ordered, p)
			delete(byName, strings.ToLower(name))
		}
	}
	return ordered
}

// Resolve tries providers in order and returns the first non-empty set.
// Failed or empty providers fall through to the next one. When none
// succeeds the returned *ResolveError lists every failure.
func (pl *Pipeline) Resolve(ctx context.Context, ref models.MediaRef) (*models.StreamSet, error) {
	var failures []*ProviderError

	for _, p := range pl.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !p.Supports(ref) {
			util.Debug("Provider skipped", "provider", p.Name(), "ref", ref.String())
			continue
		}

		start := time.Now()
		set, perr := pl.attempt(ctx, p, ref)
		if perr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			util.Debug("Provider failed, falling back", "provider", p.Name(), "kind", perr.Kind, "error", perr.Err)
			failures = append(failures, perr)
			continue
		}

		util.Debug("Provider resolved", "provider", p.Name(), "sources", len(set.Sources), "took", time.Since(start))
		pl.attachSubtitles(ctx, ref, set)
		return set, nil
	}

	return nil, &ResolveError{Ref: ref, Failures: failures}
}

// Result is the outcome of ResolveAll
type Result struct {
	Set      *models.StreamSet
	Failures []*ProviderError
}

// ResolveAll runs every supporting provider concurrently and merges their
// sets in priority order. Partial failures are reported in Result; an error
// is returned only when no provider produced a source.
func (pl *Pipeline) ResolveAll(ctx context.Context, ref models.MediaRef) (*Result, error) {
	sets := make([]*models.StreamSet, len(pl.providers))
	errs := make([]*ProviderError, len(pl.providers))

	var wg sync.WaitGroup
	for i, p := range pl.providers {
		if !p.Supports(ref) {
			continue
		}
		wg.Add(1)
		go func(i int, p StreamProvider) {
			defer wg.Done()
			sets[i], errs[i] = pl.attempt(ctx, p, ref)
		}(i, p)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := &models.StreamSet{}
	var names []string
	res := &Result{Set: merged}
	for i := range pl.providers {
		if errs[i] != nil {
			res.Failures = append(res.Failures, errs[i])
			continue
		}
		if sets[i] == nil {
			continue
		}
		names = append(names, sets[i].Provider)
		merged.Merge(sets[i])
	}
	merged.Provider = strings.Join(names, ",")

	if merged.Empty() {
		return nil, &ResolveError{Ref: ref, Failures: res.Failures}
	}
	pl.attachSubtitles(ctx, ref, merged)
	return res, nil
}

// attempt runs one provider under its policy, retrying retryable failures
// with linear backoff.
func (pl *Pipeline) attempt(ctx context.Context, p StreamProvider, ref models.MediaRef) (*models.StreamSet, *ProviderError) {
	name := p.Name()
	policy := pl.policies.PolicyFor(name)

	var lastErr *ProviderError
	for attempt := 0; attempt < policy.MaxRetries+1; attempt++ {
		if attempt > 0 {
			delay := policy.Backoff * time.Duration(attempt)
			util.Debug("Retrying provider", "provider", name, "attempt", attempt+1, "delay", delay)
			if err := pl.sleep(ctx, delay); err != nil {
				return nil, Classify(name, err)
			}
		}
		if lim, ok := pl.limiters[name]; ok {
			lim.Take()
		}

		set, err := pl.call(ctx, p, ref, policy.Timeout)
		if err == nil {
			return set, nil
		}
		lastErr = err
		if !lastErr.Retryable() || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// call runs a single Resolve under the provider timeout
func (pl *Pipeline) call(ctx context.Context, p StreamProvider, ref models.MediaRef, timeout time.Duration) (*models.StreamSet, *ProviderError) {
	callCtx := context.WithValue(ctx, retryOwnerKey{}, true)
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, timeout)
		defer cancel()
	}

	timer := util.StartTimer("resolve " + p.Name())
	set, err := p.Resolve(callCtx, ref)
	timer.Stop()
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, NewError(p.Name(), KindTimeout, fmt.Errorf("no answer within %s: %w", timeout, err))
		}
		return nil, Classify(p.Name(), err)
	}
	if set.Empty() {
		return nil, Errorf(p.Name(), KindNotFound, "no playable sources")
	}

	if set.Provider == "" {
		set.Provider = p.Name()
	}
	for i := range set.Sources {
		if set.Sources[i].Provider == "" {
			set.Sources[i].Provider = p.Name()
		}
	}
	for i := range set.Subtitles {
		if set.Subtitles[i].Provider == "" {
			set.Subtitles[i].Provider = p.Name()
		}
	}
	return set, nil
}

func (pl *Pipeline) attachSubtitles(ctx context.Context, ref models.MediaRef, set *models.StreamSet) {
	if pl.subtitles == nil {
		return
	}
	subs, err := pl.subtitles.Search(ctx, ref, pl.langs)
	if err != nil {
		util.Warn("Subtitle search failed", "ref", ref.String(), "error", err)
	}
	set.AddSubtitles(subs...)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
