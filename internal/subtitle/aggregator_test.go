package subtitle

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alvarorichard/Gostream/internal/config"
	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	subs  []models.Subtitle
	err   error
	delay time.Duration
	link  string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(ctx context.Context, _ models.MediaRef, _ []string) ([]models.Subtitle, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, resolver.Classify(f.name, ctx.Err())
		}
	}
	return f.subs, f.err
}

type linkedProvider struct {
	fakeProvider
}

func (l *linkedProvider) ResolveLink(_ context.Context, _ models.Subtitle) (string, error) {
	return l.link, nil
}

func TestAggregatorSearchMergesAndSorts(t *testing.T) {
	a := NewAggregator([]Provider{
		&fakeProvider{name: "one", subs: []models.Subtitle{
			{URL: "u1", Lang: "English", Provider: "one"},
			{URL: "u2", Lang: "French", Provider: "one"},
			{URL: "u3", Lang: "vie", Provider: "one"},
		}},
		&fakeProvider{name: "two", subs: []models.Subtitle{
			{URL: "u1", Lang: "en", Provider: "two"},
			{URL: "u4", Lang: "Vietnamese", Provider: "two"},
		}},
		&fakeProvider{name: "off", err: resolver.Errorf("off", resolver.KindNotConfigured, "no key")},
	}, time.Second)

	subs, err := a.Search(context.Background(), models.MediaRef{Title: "Dune"}, []string{"vi", "English"})
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, "u3", subs[0].URL)
	assert.Equal(t, "vi", subs[0].Lang)
	assert.Equal(t, "u4", subs[1].URL)
	assert.Equal(t, "u1", subs[2].URL)
	assert.Equal(t, "one", subs[2].Provider, "first provider wins duplicates")
}

func TestAggregatorPartialFailure(t *testing.T) {
	a := NewAggregator([]Provider{
		&fakeProvider{name: "slow", delay: time.Second},
		&fakeProvider{name: "broken", err: errors.New("boom")},
		&fakeProvider{name: "ok", subs: []models.Subtitle{{URL: "u", Lang: "en"}}},
	}, 50*time.Millisecond)

	subs, err := a.Search(context.Background(), models.MediaRef{Title: "Dune"}, nil)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestAggregatorAllFail(t *testing.T) {
	a := NewAggregator([]Provider{
		&fakeProvider{name: "a", err: errors.New("boom")},
		&fakeProvider{name: "b", err: resolver.Errorf("b", resolver.KindBlocked, "captcha")},
	}, time.Second)

	_, err := a.Search(context.Background(), models.MediaRef{Title: "Dune"}, nil)
	require.Error(t, err)
	assert.True(t, resolver.IsKind(err, resolver.KindBlocked))
}

func TestAggregatorNoProviders(t *testing.T) {
	subs, err := NewAggregator(nil, 0).Search(context.Background(), models.MediaRef{}, nil)
	assert.NoError(t, err)
	assert.Empty(t, subs)
}

func zipped(t *testing.T, name, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("readme.txt")
	require.NoError(t, err)
	_, _ = w.Write([]byte("not a subtitle"))
	w, err = zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestAggregatorFetch(t *testing.T) {
	archive := zipped(t, "Dune.2021.en.srt", sampleSRT)
	mux := http.NewServeMux()
	mux.HandleFunc("/plain.vtt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nhi\n"))
	})
	mux.HandleFunc("/pack.zip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	})
	mux.HandleFunc("/resolved", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(sampleSRT))
	})
	mux.HandleFunc("/missing", http.NotFound)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	linked := &linkedProvider{fakeProvider{name: "linked", link: srv.URL + "/resolved"}}
	a := NewAggregator([]Provider{linked}, time.Second)
	ctx := context.Background()

	t.Run("vtt", func(t *testing.T) {
		got, err := a.Fetch(ctx, models.Subtitle{URL: srv.URL + "/plain.vtt", Format: "vtt"})
		require.NoError(t, err)
		assert.Contains(t, string(got), "hi")
	})
	t.Run("zip", func(t *testing.T) {
		got, err := a.Fetch(ctx, models.Subtitle{URL: srv.URL + "/pack.zip", Format: "zip"})
		require.NoError(t, err)
		assert.Contains(t, string(got), "WEBVTT\n\n00:00:01.000 --> 00:00:02.500\nHello")
	})
	t.Run("resolved link", func(t *testing.T) {
		got, err := a.Fetch(ctx, models.Subtitle{URL: "opaque", Provider: "linked", Format: "srt"})
		require.NoError(t, err)
		assert.Contains(t, string(got), "00:00:01.000 --> 00:00:02.500")
	})
	t.Run("not found", func(t *testing.T) {
		_, err := a.Fetch(ctx, models.Subtitle{URL: srv.URL + "/missing"})
		require.Error(t, err)
		assert.True(t, resolver.IsKind(err, resolver.KindNotFound))
	})
}

func TestExtractTrackWithoutSubtitle(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, _ = zw.Create("info.nfo")
	require.NoError(t, zw.Close())

	_, _, err := extractTrack(buf.Bytes())
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	a := FromConfig(config.Subtitles{SubDLKey: "k", SubSourceURL: "https://api.subsource.net"})
	assert.Equal(t, []string{"subdl", "subsource"}, a.Providers())
}
