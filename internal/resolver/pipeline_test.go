package resolver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/Gostream/internal/config"
	"github.com/alvarorichard/Gostream/internal/models"
)

// MockProvider implements StreamProvider for testing
type MockProvider struct {
	name      string
	supports  func(models.MediaRef) bool
	resolve   func(ctx context.Context, ref models.MediaRef) (*models.StreamSet, error)
	callCount atomic.Int32
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) Supports(ref models.MediaRef) bool {
	if m.supports != nil {
		return m.supports(ref)
	}
	return true
}

func (m *MockProvider) Resolve(ctx context.Context, ref models.MediaRef) (*models.StreamSet, error) {
	m.callCount.Add(1)
	if m.resolve != nil {
		return m.resolve(ctx, ref)
	}
	return nil, nil
}

func okProvider(name string, urls ...string) *MockProvider {
	return &MockProvider{
		name: name,
		resolve: func(ctx context.Context, ref models.MediaRef) (*models.StreamSet, error) {
			set := &models.StreamSet{}
			for _, u := range urls {
				set.Sources = append(set.Sources, models.StreamSource{URL: u, Quality: "1080p"})
			}
			return set, nil
		},
	}
}

func failingProvider(name string, kind ErrorKind) *MockProvider {
	return &MockProvider{
		name: name,
		resolve: func(ctx context.Context, ref models.MediaRef) (*models.StreamSet, error) {
			return nil, Errorf(name, kind, "boom")
		},
	}
}

func testPolicies(retries int) config.Providers {
	return config.Providers{
		Default: config.Policy{Timeout: time.Second, MaxRetries: retries, Backoff: time.Millisecond},
	}
}

func newTestPipeline(providers []StreamProvider, retries int, opts ...Option) *Pipeline {
	opts = append([]Option{WithPolicies(testPolicies(retries))}, opts...)
	pl := NewPipeline(providers, opts...)
	pl.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return pl
}

var movieRef = models.MediaRef{Title: "Dune", Year: 2021, Kind: models.KindMovie, TMDBID: 438631}

func TestResolve_FirstProviderWins(t *testing.T) {
	t.Parallel()

	first := okProvider("fshare", "https://a/1.mkv")
	second := okProvider("vidsrc", "https://b/1.m3u8")
	pl := newTestPipeline([]StreamProvider{first, second}, 0)

	set, err := pl.Resolve(context.Background(), movieRef)
	require.NoError(t, err)
	assert.Equal(t, "fshare", set.Provider)
	assert.Equal(t, "fshare", set.Sources[0].Provider)
	assert.Equal(t, int32(0), second.callCount.Load())
}

func TestResolve_FallsBackOnErrorAndEmpty(t *testing.T) {
	t.Parallel()

	broken := failingProvider("fshare", KindAuthExpired)
	empty := &MockProvider{name: "febbox", resolve: func(ctx context.Context, ref models.MediaRef) (*models.StreamSet, error) {
		return &models.StreamSet{}, nil
	}}
	good := okProvider("vidsrc", "https://b/1.m3u8")
	pl := newTestPipeline([]StreamProvider{broken, empty, good}, 2)

	set, err := pl.Resolve(context.Background(), movieRef)
	require.NoError(t, err)
	assert.Equal(t, "vidsrc", set.Provider)
	assert.Equal(t, int32(1), broken.callCount.Load(), "auth errors are not retried")
	assert.Equal(t, int32(1), empty.callCount.Load())
}

func TestResolve_RetriesRetryableErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	flaky := &MockProvider{name: "vidsrc", resolve: func(ctx context.Context, ref models.MediaRef) (*models.StreamSet, error) {
		if calls.Add(1) < 3 {
			return nil, Errorf("vidsrc", KindNetwork, "connection reset")
		}
		return &models.StreamSet{Sources: []models.StreamSource{{URL: "u"}}}, nil
	}}
	pl := newTestPipeline([]StreamProvider{flaky}, 2)

	set, err := pl.Resolve(context.Background(), movieRef)
	require.NoError(t, err)
	assert.False(t, set.Empty())
	assert.Equal(t, int32(3), flaky.callCount.Load())
}

func TestResolve_AllFail(t *testing.T) {
	t.Parallel()

	unsupported := &MockProvider{name: "fshare", supports: func(models.MediaRef) bool { return false }}
	a := failingProvider("febbox", KindBlocked)
	b := failingProvider("vidsrc", KindTimeout)
	pl := newTestPipeline([]StreamProvider{unsupported, a, b}, 1)

	_, err := pl.Resolve(context.Background(), movieRef)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoStreams)

	var re *ResolveError
	require.True(t, errors.As(err, &re))
	require.Len(t, re.Failures, 2)
	assert.Nil(t, re.Failure("fshare"), "unsupported providers are not failures")
	assert.Equal(t, KindBlocked, re.Failure("febbox").Kind)
	assert.Equal(t, int32(2), b.callCount.Load(), "timeouts are retried once")
	assert.Equal(t, int32(0), unsupported.callCount.Load())

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, err.Error(), "febbox: blocked")
}

func TestResolve_NoSupportingProvider(t *testing.T) {
	t.Parallel()

	pl := newTestPipeline([]StreamProvider{&MockProvider{name: "fshare", supports: func(models.MediaRef) bool { return false }}}, 0)
	_, err := pl.Resolve(context.Background(), movieRef)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no provider supports")
}

func TestResolve_ProviderTimeout(t *testing.T) {
	t.Parallel()

	slow := &MockProvider{name: "febbox", resolve: func(ctx context.Context, ref models.MediaRef) (*models.StreamSet, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	good := okProvider("vidsrc", "u")
	pl := newTestPipeline([]StreamProvider{slow, good}, 0)
	pl.policies.Overrides = map[string]config.Policy{"febbox": {Timeout: 20 * time.Millisecond}}

	set, err := pl.Resolve(context.Background(), movieRef)
	require.NoError(t, err)
	assert.Equal(t, "vidsrc", set.Provider)
}

func TestResolve_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := okProvider("vidsrc", "u")
	_, err := newTestPipeline([]StreamProvider{p}, 0).Resolve(ctx, movieRef)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), p.callCount.Load())
}

type stubSubtitles struct {
	subs []models.Subtitle
	err  error
}

func (s stubSubtitles) Search(ctx context.Context, ref models.MediaRef, langs []string) ([]models.Subtitle, error) {
	return s.subs, s.err
}

func TestResolve_MergesSubtitles(t *testing.T) {
	t.Parallel()

	p := &MockProvider{name: "consumet", resolve: func(ctx context.Context, ref models.MediaRef) (*models.StreamSet, error) {
		return &models.StreamSet{
			Sources:   []models.StreamSource{{URL: "u"}},
			Subtitles: []models.Subtitle{{URL: "embedded.vtt", Lang: "en"}},
		}, nil
	}}
	subs := stubSubtitles{subs: []models.Subtitle{{URL: "external.srt", Lang: "vi"}, {URL: "embedded.vtt"}}}
	pl := newTestPipeline([]StreamProvider{p}, 0, WithSubtitles(subs, []string{"vi", "en"}))

	set, err := pl.Resolve(context.Background(), movieRef)
	require.NoError(t, err)
	require.Len(t, set.Subtitles, 2)
	assert.Equal(t, "consumet", set.Subtitles[0].Provider)
	assert.Equal(t, "external.srt", set.Subtitles[1].URL)

	pl = newTestPipeline([]StreamProvider{p}, 0, WithSubtitles(stubSubtitles{err: errors.New("down")}, nil))
	set, err = pl.Resolve(context.Background(), movieRef)
	require.NoError(t, err, "subtitle failures never fail a resolve")
	assert.Len(t, set.Subtitles, 1)
}

func TestResolveAll(t *testing.T) {
	t.Parallel()

	a := okProvider("fshare", "https://a/1.mkv", "https://shared")
	b := failingProvider("febbox", KindBlocked)
	c := okProvider("vidsrc", "https://shared", "https://c/1.m3u8")
	pl := newTestPipeline([]StreamProvider{a, b, c}, 0)

	res, err := pl.ResolveAll(context.Background(), movieRef)
	require.NoError(t, err)
	require.Len(t, res.Set.Sources, 3)
	assert.Equal(t, "https://a/1.mkv", res.Set.Sources[0].URL)
	assert.Equal(t, "fshare", res.Set.Sources[1].Provider, "first provider keeps shared URLs")
	assert.Equal(t, "fshare,vidsrc", res.Set.Provider)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "febbox", res.Failures[0].Provider)

	_, err = newTestPipeline([]StreamProvider{b}, 0).ResolveAll(context.Background(), movieRef)
	assert.ErrorIs(t, err, ErrNoStreams)
}

func TestOrder(t *testing.T) {
	providers := []StreamProvider{okProvider("vidsrc"), okProvider("fshare"), okProvider("febbox")}
	ordered := Order(providers, []string{"fshare", "VIDSRC", "unknown"})
	pl := NewPipeline(ordered)
	assert.Equal(t, []string{"fshare", "vidsrc"}, pl.Providers())
}

func TestRateLimitedProvider(t *testing.T) {
	p := okProvider("vidsrc", "u")
	pl := NewPipeline([]StreamProvider{p}, WithPolicies(config.Providers{
		Default: config.Policy{Timeout: time.Second, RatePerSecond: 100},
	}))
	require.Contains(t, pl.limiters, "vidsrc")

	for range 3 {
		_, err := pl.Resolve(context.Background(), movieRef)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), p.callCount.Load())
}

func TestResolve_ProviderCallsCarryRetryOwner(t *testing.T) {
	t.Parallel()
	var owned atomic.Bool
	p := &MockProvider{
		name: "ophim",
		resolve: func(ctx context.Context, ref models.MediaRef) (*models.StreamSet, error) {
			owned.Store(RetriedByPipeline(ctx))
			return &models.StreamSet{Sources: []models.StreamSource{{URL: "https://cdn/1.m3u8"}}}, nil
		},
	}

	_, err := newTestPipeline([]StreamProvider{p}, 0).Resolve(context.Background(), movieRef)
	require.NoError(t, err)
	assert.True(t, owned.Load())
	assert.False(t, RetriedByPipeline(context.Background()))
}
