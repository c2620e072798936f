// Package hls downloads HLS streams by fetching their segments concurrently
// and concatenating them in playlist order.
package hls

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alvarorichard/Gostream/internal/util"
)

// ErrEncrypted is returned for playlists whose segments are encrypted.
// Callers fall back to yt-dlp for those.
var ErrEncrypted = errors.New("hls: encrypted segments are not supported")

// maxLossRatio is the share of segments that may fail before the whole
// download is considered broken
const maxLossRatio = 0.05

var bandwidthRe = regexp.MustCompile(`BANDWIDTH=(\d+)`)

// Segment is one media segment of a playlist
type Segment struct {
	URL      string
	Index    int
	Duration float64
}

// Playlist is a parsed media playlist
type Playlist struct {
	TargetDuration float64
	MediaSequence  int
	Segments       []Segment
	EndList        bool
	Encrypted      bool
}

// Duration is the sum of segment durations
func (p *Playlist) Duration() time.Duration {
	var total float64
	for _, s := range p.Segments {
		total += s.Duration
	}
	return time.Duration(total * float64(time.Second))
}

// Variant is one rendition listed in a master playlist
type Variant struct {
	URL       string
	Bandwidth int
}

// Progress reports bytes written so far and segment counts
type Progress func(bytesWritten int64, segmentsDone, totalSegments int)

// Downloader fetches playlists and segments
type Downloader struct {
	client     *http.Client
	workers    int
	retries    int
	retryDelay time.Duration
}

// NewDownloader creates a downloader on an HTTP/1.1-only transport. CDNs
// tend to reset multiplexed HTTP/2 streams when many segments are fetched
// over one connection.
func NewDownloader() *Downloader {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		TLSNextProto:        make(map[string]func(string, *tls.Conn) http.RoundTripper),
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	return NewDownloaderWithClient(&http.Client{Timeout: 5 * time.Minute, Transport: transport})
}

// NewDownloaderWithClient creates a downloader on the given client
func NewDownloaderWithClient(client *http.Client) *Downloader {
	return &Downloader{client: client, workers: 8, retries: 4, retryDelay: time.Second}
}

// SetRetries changes how often a failed segment is retried and the base
// delay between attempts
func (d *Downloader) SetRetries(n int, delay time.Duration) {
	d.retries, d.retryDelay = n, delay
}

func (d *Downloader) get(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", util.DefaultUserAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}
	return resp, nil
}

// Fetch loads the playlist at rawURL. For a master playlist the variant
// with the highest bandwidth is followed.
func (d *Downloader) Fetch(ctx context.Context, rawURL string, headers map[string]string) (*Playlist, error) {
	for hops := 0; hops < 3; hops++ {
		resp, err := d.get(ctx, rawURL, headers)
		if err != nil {
			return nil, err
		}
		playlist, variants, err := Parse(resp.Body, rawURL)
		_ = resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if len(variants) == 0 {
			return playlist, nil
		}
		best := BestVariant(variants)
		util.Debug("HLS master playlist", "variants", len(variants), "bandwidth", best.Bandwidth)
		rawURL = best.URL
	}
	return nil, fmt.Errorf("too many nested master playlists")
}

// Parse reads a playlist. A master playlist yields its variants and a nil
// playlist; a media playlist yields its segments.
func Parse(r io.Reader, base string) (*Playlist, []Variant, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid playlist url: %w", err)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		playlist    = &Playlist{}
		variants    []Variant
		pendingBW   = -1
		pendingDur  = -1.0
		sawHeader   bool
		resolveLine = func(ref string) string {
			u, err := url.Parse(ref)
			if err != nil {
				return ref
			}
			return baseURL.ResolveReference(u).String()
		}
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "#EXTM3U"):
			sawHeader = true
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			pendingBW = 0
			if m := bandwidthRe.FindStringSubmatch(line); m != nil {
				pendingBW, _ = strconv.Atoi(m[1])
			}
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			playlist.TargetDuration, _ = strconv.ParseFloat(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"), 64)
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			playlist.MediaSequence, _ = strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"))
		case strings.HasPrefix(line, "#EXT-X-ENDLIST"):
			playlist.EndList = true
		case strings.HasPrefix(line, "#EXT-X-KEY:"):
			if !strings.Contains(line, "METHOD=NONE") {
				playlist.Encrypted = true
			}
		case strings.HasPrefix(line, "#EXTINF:"):
			dur, _, _ := strings.Cut(strings.TrimPrefix(line, "#EXTINF:"), ",")
			pendingDur, _ = strconv.ParseFloat(strings.TrimSpace(dur), 64)
		case strings.HasPrefix(line, "#"):
		case pendingBW >= 0:
			variants = append(variants, Variant{URL: resolveLine(line), Bandwidth: pendingBW})
			pendingBW = -1
		case pendingDur >= 0:
			playlist.Segments = append(playlist.Segments, Segment{
				URL:      resolveLine(line),
				Index:    len(playlist.Segments),
				Duration: pendingDur,
			})
			pendingDur = -1
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read playlist: %w", err)
	}
	if !sawHeader {
		return nil, nil, fmt.Errorf("not an m3u8 playlist")
	}
	if len(variants) > 0 {
		return nil, variants, nil
	}
	return playlist, nil, nil
}

// BestVariant returns the variant with the highest bandwidth
func BestVariant(variants []Variant) Variant {
	best := variants[0]
	for _, v := range variants[1:] {
		if v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best
}

func (d *Downloader) segment(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * d.retryDelay):
			}
		}
		resp, err := d.get(ctx, rawURL, headers)
		if err != nil {
			lastErr = err
			continue
		}
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return data, nil
	}
	return nil, lastErr
}

// Download writes the stream at rawURL to output. A few lost segments are
// tolerated; more than five percent fails the download.
func (d *Downloader) Download(ctx context.Context, rawURL, output string, headers map[string]string, progress Progress) error {
	playlist, err := d.Fetch(ctx, rawURL, headers)
	if err != nil {
		return fmt.Errorf("failed to load playlist: %w", err)
	}
	if playlist.Encrypted {
		return ErrEncrypted
	}
	total := len(playlist.Segments)
	if total == 0 {
		return fmt.Errorf("playlist has no segments")
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	out, err := os.OpenFile(filepath.Clean(output), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = out.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		index int
		data  []byte
		err   error
	}
	jobs := make(chan Segment)
	results := make(chan result, total)

	var wg sync.WaitGroup
	for i := 0; i < min(d.workers, total); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seg := range jobs {
				data, err := d.segment(ctx, seg.URL, headers)
				results <- result{index: seg.Index, data: data, err: err}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, seg := range playlist.Segments {
			select {
			case jobs <- seg:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	pending := map[int][]byte{}
	next, done, failed := 0, 0, 0
	var written int64
	var firstErr error
	if progress != nil {
		progress(0, 0, total)
	}

	for res := range results {
		done++
		if res.err != nil {
			failed++
			if firstErr == nil {
				firstErr = res.err
			}
			util.Debug("HLS segment failed", "index", res.index, "error", res.err)
			if float64(failed)/float64(total) > maxLossRatio {
				cancel()
			}
		}
		pending[res.index] = res.data
		for {
			data, ok := pending[next]
			if !ok {
				break
			}
			if len(data) > 0 {
				n, err := out.Write(data)
				if err != nil {
					cancel()
					return fmt.Errorf("failed to write segment %d: %w", next, err)
				}
				written += int64(n)
			}
			delete(pending, next)
			next++
		}
		if progress != nil {
			progress(written, done, total)
		}
	}

	if err := ctx.Err(); err != nil && failed == 0 {
		return err
	}
	if failed > 0 {
		ratio := float64(failed) / float64(total)
		if ratio > maxLossRatio || done < total {
			return fmt.Errorf("download incomplete: %d/%d segments failed: %w", failed, total, firstErr)
		}
		util.Warn("Some HLS segments could not be downloaded", "failed", failed, "total", total)
	}
	return nil
}
