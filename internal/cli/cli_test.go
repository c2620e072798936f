package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/Gostream/internal/config"
	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/tracking"
	"github.com/alvarorichard/Gostream/internal/util"
	"github.com/alvarorichard/Gostream/pkg/gostream"
)

type stubSource struct{}

func (stubSource) Name() string { return "ophim" }

func (stubSource) Search(_ context.Context, _ string, page int) (*models.Page[models.Media], error) {
	return &models.Page[models.Media]{Page: page, TotalPages: 1, Items: []models.Media{
		{ID: "dark", Title: "Dark", Year: 2017, Kind: models.KindTV, Country: "Germany"},
	}}, nil
}

func (stubSource) Latest(ctx context.Context, page int) (*models.Page[models.Media], error) {
	return stubSource{}.Search(ctx, "", page)
}

func (stubSource) Detail(_ context.Context, id string) (*models.Media, error) {
	return &models.Media{
		ID:       id,
		Title:    "Dark",
		Year:     2017,
		Kind:     models.KindTV,
		Overview: "A missing child sets four families on a frantic hunt for answers.",
		Episodes: []models.Episode{
			{Number: 1, Season: 1, Name: "Secrets"},
			{Number: 2, Season: 1, Name: "Lies"},
		},
	}, nil
}

type stubProvider struct {
	base string
}

func (stubProvider) Name() string                       { return "ophim" }
func (stubProvider) Supports(ref models.MediaRef) bool { return ref.Title != "" }

func (p stubProvider) Resolve(context.Context, models.MediaRef) (*models.StreamSet, error) {
	return &models.StreamSet{Sources: []models.StreamSource{
		{URL: p.base + "/1080.mp4", Quality: "1080p"},
		{URL: p.base + "/720.mp4", Quality: "720p"},
	}}, nil
}

type stubSubs struct{}

func (stubSubs) Name() string { return "stubsubs" }

func (stubSubs) Search(context.Context, models.MediaRef, []string) ([]models.Subtitle, error) {
	return nil, nil
}

// linkProvider resolves only items carrying a link for its name
type linkProvider struct {
	name string
}

func (p linkProvider) Name() string                       { return p.name }
func (p linkProvider) Supports(ref models.MediaRef) bool { return ref.SourceID(p.name) != "" }

func (p linkProvider) Resolve(_ context.Context, ref models.MediaRef) (*models.StreamSet, error) {
	return &models.StreamSet{Sources: []models.StreamSource{
		{URL: "https://cdn.example/" + path.Base(ref.SourceID(p.name)) + ".mkv", Quality: "1080p"},
	}}, nil
}

func newTestApp(t *testing.T, first ...gostream.StreamProvider) *app {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("v"), 2048))
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Download.Dir = t.TempDir()

	a := &app{
		cfg: cfg,
		newClient: func(cfg *config.Config) (*gostream.Client, error) {
			opts := []gostream.Option{
				gostream.WithoutCache(),
				gostream.WithSources(stubSource{}),
				gostream.WithProviders(append(first, stubProvider{base: srv.URL})...),
				gostream.WithSubtitleProviders(stubSubs{}),
			}
			if !tracking.IsCgoEnabled {
				opts = append(opts, gostream.WithoutStore())
			}
			return gostream.New(cfg, opts...)
		},
	}
	t.Cleanup(a.close)
	return a
}

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(a)
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestSearchCommand(t *testing.T) {
	a := newTestApp(t)

	got, err := run(t, a, "search", "dark")
	require.NoError(t, err)
	assert.Contains(t, got, "Dark [2017]")
	assert.Contains(t, got, "ophim:dark")

	got, err = run(t, a, "search", "dark", "--json")
	require.NoError(t, err)
	var page gostream.MediaPage
	require.NoError(t, json.Unmarshal([]byte(got), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "ophim:dark", page.Items[0].Key)

	got, err = run(t, a, "search", "dark", "--kind", "movie")
	require.NoError(t, err)
	assert.Contains(t, got, "No results.")

	_, err = run(t, a, "search", "dark", "--kind", "documentary")
	assert.ErrorContains(t, err, "unknown kind")
}

func TestInfoCommand(t *testing.T) {
	a := newTestApp(t)
	got, err := run(t, a, "info", "ophim:dark")
	require.NoError(t, err)
	assert.Contains(t, got, "Episodes (2):")
	assert.Contains(t, got, "S01E02 - Lies")
	assert.Contains(t, got, "four families")
}

func TestResolveCommand(t *testing.T) {
	a := newTestApp(t)
	got, err := run(t, a, "resolve", "ophim:dark", "-e", "2", "-q", "720p")
	require.NoError(t, err)
	assert.Contains(t, got, "Dark (2017) S01E02")
	assert.Contains(t, got, "resolved by ophim")
	assert.Contains(t, got, "▶ 720p")
	assert.Contains(t, got, "/1080.mp4")

	_, err = run(t, a, "resolve", "ophim:dark", "-e", "9")
	assert.ErrorContains(t, err, "no episode 9")
}

func TestPlayWithoutPlayer(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	a := newTestApp(t)
	got, err := run(t, a, "play", "ophim:dark", "-e", "1", "--no-subs")
	assert.ErrorContains(t, err, "mpv not found")
	assert.Contains(t, got, "▶ Dark (2017) S01E01")
}

func TestDownloadCommand(t *testing.T) {
	a := newTestApp(t)
	dir := t.TempDir()

	got, err := run(t, a, "download", "ophim:dark", "-e", "1", "-o", dir)
	require.NoError(t, err)
	path := filepath.Join(dir, "Dark", "Season 1", "Dark - s01e01.mp4")
	assert.Contains(t, got, path)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), info.Size())

	got, err = run(t, a, "download", "ophim:dark", "-r", "1-2", "-o", dir, "--yes")
	require.NoError(t, err)
	assert.Contains(t, got, "Already downloaded")
	assert.FileExists(t, filepath.Join(dir, "Dark", "Season 1", "Dark - s01e02.mp4"))
}

func TestLibraryCommands(t *testing.T) {
	if !tracking.IsCgoEnabled {
		t.Skip("sqlite unavailable")
	}
	a := newTestApp(t)

	_, err := run(t, a, "fav", "add", "ophim:dark")
	require.NoError(t, err)
	got, err := run(t, a, "fav", "list")
	require.NoError(t, err)
	assert.Contains(t, got, "★ Dark")

	_, err = run(t, a, "playlist", "create", "Weekend")
	require.NoError(t, err)
	_, err = run(t, a, "playlist", "add", "weekend", "ophim:dark")
	require.NoError(t, err)
	got, err = run(t, a, "playlist", "show", "WEEKEND")
	require.NoError(t, err)
	assert.Contains(t, got, "1. Dark")
	_, err = run(t, a, "playlist", "show", "nope")
	assert.ErrorContains(t, err, `playlist "nope" does not exist`)

	_, err = run(t, a, "history", "progress", "ophim:dark", "10:00", "50:00", "-e", "2")
	require.NoError(t, err)
	got, err = run(t, a, "history")
	require.NoError(t, err)
	assert.Contains(t, got, "S01E02")
	assert.Contains(t, got, "10:00/50:00 (20%)")

	got, err = run(t, a, "history", "searches")
	require.NoError(t, err)
	assert.NotContains(t, got, "dark")

	_, err = run(t, a, "sections", "move", "anime", "1")
	require.NoError(t, err)
	got, err = run(t, a, "sections")
	require.NoError(t, err)
	assert.Contains(t, got, "1. anime")
}

func TestSkipCommands(t *testing.T) {
	if !tracking.IsCgoEnabled {
		t.Skip("sqlite unavailable")
	}
	a := newTestApp(t)

	got, err := run(t, a, "skip", "get", "ophim:dark", "-e", "1")
	require.NoError(t, err)
	assert.Contains(t, got, "No skip markers.")

	_, err = run(t, a, "skip", "country", "germany", "--intro", "0:00-0:45")
	require.NoError(t, err)
	got, err = run(t, a, "skip", "get", "ophim:dark", "-e", "1", "--country", "Germany")
	require.NoError(t, err)
	assert.Contains(t, got, "Intro: 0:00-0:45")
	assert.Contains(t, got, "from country")

	_, err = run(t, a, "skip", "set", "ophim:dark", "--intro", "1:05-2:30", "--outro", "48:00-50:10")
	require.NoError(t, err)
	got, err = run(t, a, "skip", "get", "ophim:dark", "-e", "1", "--country", "Germany")
	require.NoError(t, err)
	assert.Contains(t, got, "Intro: 1:05-2:30")
	assert.Contains(t, got, "Outro: 48:00-50:10")
	assert.Contains(t, got, "from series")

	_, err = run(t, a, "skip", "set", "ophim:dark", "--intro", "2:30-1:05")
	assert.ErrorContains(t, err, "ends before it starts")
}

func TestPerfFlag(t *testing.T) {
	t.Cleanup(func() { util.PerfEnabled = false })
	a := newTestApp(t)
	_, err := run(t, a, "resolve", "ophim:dark", "-e", "1", "--perf")
	require.NoError(t, err)

	var buf bytes.Buffer
	a.report(&buf)
	assert.Contains(t, buf.String(), "client_init")
	assert.Contains(t, buf.String(), "resolve ophim")
}

func TestVersionCommand(t *testing.T) {
	got, err := run(t, &app{}, "version")
	require.NoError(t, err)
	assert.Contains(t, got, "Gostream v")
}

func TestParseEpisodeRange(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"3", []int{3}, false},
		{"1-3", []int{1, 2, 3}, false},
		{"5, 1-2,2", []int{1, 2, 5}, false},
		{"4-2", nil, true},
		{"0", nil, true},
		{"a-b", nil, true},
		{"1-5000", nil, true},
		{",", nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseEpisodeRange(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClock(t *testing.T) {
	for in, want := range map[string]int{"95": 95, "1:35": 95, "1:00:05": 3605, " 0:07 ": 7} {
		got, err := parseClock(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "1:75", "a", "1:2:3:4", "-5"} {
		_, err := parseClock(bad)
		assert.Error(t, err, bad)
	}

	assert.Equal(t, "1:35", formatClock(95))
	assert.Equal(t, "0:07", formatClock(7))
	assert.Equal(t, "1:00:05", formatClock(3605))

	skip, err := parseInterval("0:30-1:30")
	require.NoError(t, err)
	assert.Equal(t, gostream.Skip{Start: 30, End: 90}, skip)
	_, err = parseInterval("90")
	assert.Error(t, err)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "2.0 GiB", formatBytes(2<<30))

	assert.Equal(t, "S02E05 - Pilot", episodeLabel(gostream.Episode{Season: 2, Number: 5, Name: "Pilot"}))
	assert.Equal(t, "Episode 7", episodeLabel(gostream.Episode{Number: 7, Name: "7"}))

	assert.Equal(t, "one two\nthree", wrap("one two three", 8))
}

func TestShareLinkFlags(t *testing.T) {
	a := newTestApp(t, linkProvider{name: "fshare"}, linkProvider{name: "febbox"})

	got, err := run(t, a, "resolve", "ophim:dark", "-e", "2")
	require.NoError(t, err)
	assert.Contains(t, got, "resolved by ophim")

	got, err = run(t, a, "resolve", "ophim:dark", "-e", "2", "--fshare", "https://www.fshare.vn/folder/ABCDEF")
	require.NoError(t, err)
	assert.Contains(t, got, "resolved by fshare")
	assert.Contains(t, got, "https://cdn.example/ABCDEF.mkv")

	got, err = run(t, a, "resolve", "ophim:dark", "-e", "2", "--febbox", "xyz789")
	require.NoError(t, err)
	assert.Contains(t, got, "resolved by febbox")

	_, err = run(t, a, "resolve", "ophim:dark", "-e", "2", "--fshare", " ")
	assert.ErrorContains(t, err, "empty fshare link")
}
