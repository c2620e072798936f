// Package downloader saves a resolved stream, and optionally its subtitle
// track, to the local disk.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/alvarorichard/Gostream/internal/downloader/hls"
	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

// Progress is one progress report
type Progress struct {
	Received int64
	Total    int64
	Status   string
}

// Fraction returns the completed share in [0, 1], or 0 when the total is
// unknown
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return min(float64(p.Received)/float64(p.Total), 1)
}

// ProgressFunc receives progress reports
type ProgressFunc func(Progress)

// Request describes one download
type Request struct {
	Title   string
	Season  int
	Episode int
	Source  models.StreamSource

	// Subtitle is a WebVTT track written next to the video when set
	Subtitle     []byte
	SubtitleLang string

	Overwrite bool
}

// Result describes a finished download
type Result struct {
	Path         string
	SubtitlePath string
	Bytes        int64
	Method       string
	Skipped      bool
}

// Options configures a Downloader
type Options struct {
	Dir         string
	Interactive bool
	OnProgress  ProgressFunc
	Client      *http.Client
}

type fallbackFunc func(ctx context.Context, src models.StreamSource, dest string, report ProgressFunc) error

// Downloader downloads resolved streams into a directory
type Downloader struct {
	dir         string
	interactive bool
	onProgress  ProgressFunc
	client      *http.Client
	hls         *hls.Downloader
	fallback    fallbackFunc
}

// New creates a Downloader. Without a directory, ~/Downloads/Gostream is used.
func New(opts Options) *Downloader {
	dir := opts.Dir
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, "Downloads", "Gostream")
	}
	client := opts.Client
	segments := hls.NewDownloader()
	if client == nil {
		client = &http.Client{Transport: util.GetSharedClient().Transport}
	} else {
		segments = hls.NewDownloaderWithClient(client)
	}
	return &Downloader{
		dir:         dir,
		interactive: opts.Interactive,
		onProgress:  opts.OnProgress,
		client:      client,
		hls:         segments,
		fallback:    downloadWithYtDlp,
	}
}

// Dir returns the output directory
func (d *Downloader) Dir() string {
	return d.dir
}

// Target returns where req will be written. Episodes go below
// "<Title>/Season N".
func (d *Downloader) Target(req Request) string {
	name := util.EpisodeFilename(req.Title, req.Season, req.Episode, extensionOf(req.Source))
	if req.Episode == 0 {
		return filepath.Join(d.dir, name)
	}
	show := util.SanitizeForFilename(req.Title)
	if show == "" {
		show = "video"
	}
	return filepath.Join(d.dir, show, fmt.Sprintf("Season %d", max(req.Season, 1)), name)
}

// Download fetches req.Source. Existing files are kept unless
// req.Overwrite is set.
func (d *Downloader) Download(ctx context.Context, req Request) (*Result, error) {
	if req.Source.URL == "" {
		return nil, errors.New("stream has no url")
	}
	dest, err := d.sanitizeDestPath(d.Target(req))
	if err != nil {
		return nil, err
	}
	res := &Result{Path: dest}

	if !req.Overwrite && fileExists(dest) {
		util.Info("File already exists", "path", dest)
		res.Skipped = true
		return res, d.writeSubtitle(res, req)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	title := req.Title
	if req.Episode > 0 {
		title = fmt.Sprintf("%s S%02dE%02d", req.Title, max(req.Season, 1), req.Episode)
	}
	run := func(report ProgressFunc) error {
		var err error
		res.Method, err = d.fetch(ctx, req.Source, dest, report)
		return err
	}
	if d.interactive {
		err = runWithProgressBar(title, run)
	} else {
		err = run(d.report)
	}
	if err != nil {
		_ = os.Remove(dest)
		return nil, err
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("download verification failed: %w", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(dest)
		return nil, fmt.Errorf("download verification failed: file is empty")
	}
	res.Bytes = info.Size()
	util.Info("Download finished", "path", dest, "method", res.Method, "bytes", res.Bytes)
	return res, d.writeSubtitle(res, req)
}

// DownloadAll downloads requests one after another. Failures are collected
// and reported together; the other downloads still run.
func (d *Downloader) DownloadAll(ctx context.Context, reqs []Request) ([]*Result, error) {
	var results []*Result
	var errs []error
	for _, req := range reqs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res, err := d.Download(ctx, req)
		if err != nil {
			util.Warn("Download failed", "title", req.Title, "episode", req.Episode, "error", err)
			errs = append(errs, fmt.Errorf("episode %d: %w", req.Episode, err))
			continue
		}
		results = append(results, res)
	}
	if len(errs) > 0 {
		return results, fmt.Errorf("%d of %d downloads failed: %w", len(errs), len(reqs), errors.Join(errs...))
	}
	return results, nil
}

func (d *Downloader) report(p Progress) {
	if d.onProgress != nil {
		d.onProgress(p)
	}
}

// fetch picks the transfer method: native HLS with a yt-dlp fallback for
// playlists, a plain copy for files.
func (d *Downloader) fetch(ctx context.Context, src models.StreamSource, dest string, report ProgressFunc) (string, error) {
	if !isPlaylist(src) {
		return "http", d.copyHTTP(ctx, src, dest, report)
	}

	report(Progress{Status: "Downloading HLS segments..."})
	err := d.hls.Download(ctx, src.URL, dest, requestHeaders(src), func(written int64, done, total int) {
		p := Progress{Received: written, Status: fmt.Sprintf("%d/%d segments", done, total)}
		if done > 0 {
			p.Total = written / int64(done) * int64(total)
		}
		report(p)
	})
	if err == nil {
		return "hls", nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	util.Warn("Native HLS failed, falling back to yt-dlp", "error", err)
	if d.fallback == nil {
		return "", err
	}
	report(Progress{Status: "Downloading with yt-dlp..."})
	if ferr := d.fallback(ctx, src, dest, report); ferr != nil {
		return "", fmt.Errorf("hls: %w; yt-dlp: %w", err, ferr)
	}
	return "yt-dlp", nil
}

func (d *Downloader) copyHTTP(ctx context.Context, src models.StreamSource, dest string, report ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range requestHeaders(src) {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to start download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	tmp := dest + ".part"
	out, err := os.OpenFile(filepath.Clean(tmp), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = src.Size
	}
	pw := &progressWriter{total: total, report: report, every: 250 * time.Millisecond}
	_, copyErr := io.Copy(out, io.TeeReader(resp.Body, pw))
	closeErr := out.Close()
	if copyErr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to read from response: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write file: %w", closeErr)
	}
	pw.flush()
	return os.Rename(tmp, dest)
}

// progressWriter counts bytes flowing through a TeeReader and reports at
// most once per interval
type progressWriter struct {
	received int64
	total    int64
	report   ProgressFunc
	every    time.Duration
	last     time.Time
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.received += int64(len(p))
	if time.Since(w.last) >= w.every {
		w.flush()
	}
	return len(p), nil
}

func (w *progressWriter) flush() {
	w.last = time.Now()
	w.report(Progress{Received: w.received, Total: w.total})
}

func (d *Downloader) writeSubtitle(res *Result, req Request) error {
	if len(req.Subtitle) == 0 {
		return nil
	}
	base := strings.TrimSuffix(res.Path, filepath.Ext(res.Path))
	name := base + ".vtt"
	if req.SubtitleLang != "" {
		name = base + "." + req.SubtitleLang + ".vtt"
	}
	if err := os.WriteFile(name, req.Subtitle, 0o600); err != nil {
		return fmt.Errorf("failed to save subtitle: %w", err)
	}
	res.SubtitlePath = name
	return nil
}

// sanitizeDestPath keeps the destination inside the output directory
func (d *Downloader) sanitizeDestPath(p string) (string, error) {
	absDir, err := filepath.Abs(filepath.Clean(d.dir))
	if err != nil {
		return "", err
	}
	absFile, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absDir, absFile)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("destination escapes output directory: %s", p)
	}
	return absFile, nil
}

func isPlaylist(src models.StreamSource) bool {
	return src.IsM3U8 || strings.Contains(strings.ToLower(src.URL), ".m3u8")
}

// requestHeaders returns the provider headers plus a browser User-Agent
// and an Origin derived from the Referer
func requestHeaders(src models.StreamSource) map[string]string {
	headers := map[string]string{"User-Agent": util.DefaultUserAgent, "Accept": "*/*"}
	for k, v := range src.Headers {
		headers[http.CanonicalHeaderKey(k)] = v
	}
	if ref := headers["Referer"]; ref != "" && headers["Origin"] == "" {
		if u, err := url.Parse(ref); err == nil && u.Host != "" {
			headers["Origin"] = u.Scheme + "://" + u.Host
		}
	}
	return headers
}

// extensionOf keeps a known container extension from the stream URL.
// Playlists are saved as .mp4.
func extensionOf(src models.StreamSource) string {
	if isPlaylist(src) {
		return "mp4"
	}
	u, err := url.Parse(src.URL)
	if err != nil {
		return "mp4"
	}
	switch ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), ".")); ext {
	case "mp4", "mkv", "webm", "avi", "mov", "ts", "m4v":
		return ext
	}
	return "mp4"
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
