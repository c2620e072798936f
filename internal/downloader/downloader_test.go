package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDownloader(t *testing.T, srv *httptest.Server) (*Downloader, *[]Progress) {
	t.Helper()
	var reports []Progress
	d := New(Options{
		Dir:        t.TempDir(),
		Client:     srv.Client(),
		OnProgress: func(p Progress) { reports = append(reports, p) },
	})
	d.hls.SetRetries(0, 0)
	return d, &reports
}

func TestTarget(t *testing.T) {
	d := New(Options{Dir: "/data"})
	assert.Equal(t, filepath.Join("/data", "Dune Part Two.mkv"),
		d.Target(Request{Title: "Dune: Part Two", Source: models.StreamSource{URL: "https://x/file.MKV?sig=1"}}))
	assert.Equal(t, filepath.Join("/data", "Dark", "Season 2", "Dark - s02e05.mp4"),
		d.Target(Request{Title: "Dark", Season: 2, Episode: 5, Source: models.StreamSource{URL: "https://x/master.m3u8"}}))
	assert.Equal(t, filepath.Join("/data", "Naruto", "Season 1", "Naruto - s00e07.mp4"),
		d.Target(Request{Title: "Naruto", Episode: 7, Source: models.StreamSource{URL: "https://x/v"}}))
}

func TestDownloadHTTP(t *testing.T) {
	body := strings.Repeat("v", 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") != "https://www.fshare.vn/" {
			http.Error(w, "hotlink", http.StatusForbidden)
			return
		}
		assert.Equal(t, "https://www.fshare.vn", r.Header.Get("Origin"))
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	d, reports := newTestDownloader(t, srv)
	res, err := d.Download(context.Background(), Request{
		Title:        "Dune",
		Source:       models.StreamSource{URL: srv.URL + "/dune.mp4", Headers: map[string]string{"referer": "https://www.fshare.vn/"}},
		Subtitle:     []byte("WEBVTT\n"),
		SubtitleLang: "en",
	})
	require.NoError(t, err)
	assert.Equal(t, "http", res.Method)
	assert.Equal(t, int64(4096), res.Bytes)
	assert.Equal(t, filepath.Join(d.Dir(), "Dune.en.vtt"), res.SubtitlePath)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
	require.NotEmpty(t, *reports)
	last := (*reports)[len(*reports)-1]
	assert.Equal(t, 1.0, last.Fraction())

	_, err = os.Stat(res.Path + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadSkipsExisting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	d, _ := newTestDownloader(t, srv)
	req := Request{Title: "Dune", Source: models.StreamSource{URL: srv.URL + "/dune.mp4"}}
	require.NoError(t, os.WriteFile(d.Target(req), []byte("old"), 0o600))

	res, err := d.Download(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestDownloadBadStatusRemovesFile(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d, _ := newTestDownloader(t, srv)
	req := Request{Title: "Gone", Source: models.StreamSource{URL: srv.URL + "/gone.mp4"}}
	_, err := d.Download(context.Background(), req)
	require.Error(t, err)
	assert.False(t, fileExists(d.Target(req)))
}

func TestDownloadHLSFallsBackToYtDlp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-KEY:METHOD=AES-128,URI=\"k\"\n#EXTINF:4,\na.ts\n#EXT-X-ENDLIST\n")
	}))
	defer srv.Close()

	d, _ := newTestDownloader(t, srv)
	var called bool
	d.fallback = func(_ context.Context, src models.StreamSource, dest string, report ProgressFunc) error {
		called = true
		assert.True(t, src.IsM3U8)
		report(Progress{Received: 10, Total: 10})
		return os.WriteFile(dest, []byte("muxed"), 0o600)
	}

	res, err := d.Download(context.Background(), Request{
		Title: "Dark", Season: 1, Episode: 1,
		Source: models.StreamSource{URL: srv.URL + "/index", IsM3U8: true},
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "yt-dlp", res.Method)
	assert.Equal(t, int64(5), res.Bytes)
}

func TestDownloadHLSNative(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v/index.m3u8", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXTINF:4,\n0.ts\n#EXTINF:4,\n1.ts\n#EXT-X-ENDLIST\n")
	})
	mux.HandleFunc("/v/0.ts", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, "AAAA") })
	mux.HandleFunc("/v/1.ts", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, "BBBB") })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d, _ := newTestDownloader(t, srv)
	d.fallback = func(context.Context, models.StreamSource, string, ProgressFunc) error {
		return errors.New("should not run")
	}
	res, err := d.Download(context.Background(), Request{Title: "Clip", Source: models.StreamSource{URL: srv.URL + "/v/index.m3u8"}})
	require.NoError(t, err)
	assert.Equal(t, "hls", res.Method)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "AAAABBBB", string(data))
}

func TestDownloadAllCollectsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "bad") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "episode")
	}))
	defer srv.Close()

	d, _ := newTestDownloader(t, srv)
	results, err := d.DownloadAll(context.Background(), []Request{
		{Title: "Show", Episode: 1, Source: models.StreamSource{URL: srv.URL + "/1.mp4"}},
		{Title: "Show", Episode: 2, Source: models.StreamSource{URL: srv.URL + "/bad.mp4"}},
		{Title: "Show", Episode: 3, Source: models.StreamSource{URL: srv.URL + "/3.mp4"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 downloads failed")
	assert.Len(t, results, 2)
}

func TestSanitizeDestPath(t *testing.T) {
	d := New(Options{Dir: t.TempDir()})
	_, err := d.sanitizeDestPath(filepath.Join(d.Dir(), "..", "escape.mp4"))
	assert.Error(t, err)
	_, err = d.sanitizeDestPath(filepath.Join(d.Dir(), "..foo.mp4"))
	assert.NoError(t, err)
}

func TestProgressFraction(t *testing.T) {
	assert.Equal(t, 0.0, Progress{Received: 5}.Fraction())
	assert.Equal(t, 0.5, Progress{Received: 5, Total: 10}.Fraction())
	assert.Equal(t, 1.0, Progress{Received: 15, Total: 10}.Fraction())
}
