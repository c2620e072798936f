package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/alvarorichard/Gostream/internal/util"
)

// maxBodySize caps how much of a response body is read into memory
const maxBodySize = 16 << 20

// baseClient holds what every scraper client shares: the HTTP client, the
// site root and the retry settings.
type baseClient struct {
	name       string
	client     *http.Client
	baseURL    string
	userAgent  string
	referer    string
	maxRetries int
	retryDelay time.Duration
}

func newBaseClient(name, baseURL string) baseClient {
	return baseClient{
		name:       name,
		client:     util.GetFastClient(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  util.DefaultUserAgent,
		maxRetries: 2,
		retryDelay: 300 * time.Millisecond,
	}
}

// request describes one HTTP call. body is kept as bytes so that retries
// can resend it.
type request struct {
	method      string
	url         string
	body        []byte
	contentType string
	headers     map[string]string
}

// response is a fully read HTTP response
type response struct {
	status int
	header http.Header
	body   []byte
}

// fetch performs req and fails on any non-2xx status
func (c *baseClient) fetch(ctx context.Context, req request) ([]byte, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.status < 200 || resp.status > 299 {
		return nil, c.statusError(resp)
	}
	return resp.body, nil
}

// get is fetch for a plain GET
func (c *baseClient) get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	return c.fetch(ctx, request{method: http.MethodGet, url: rawURL, headers: headers})
}

// getDocument GETs an HTML page and rejects Cloudflare challenge pages
func (c *baseClient) getDocument(ctx context.Context, rawURL string, headers map[string]string) (*goquery.Document, error) {
	body, err := c.get(ctx, rawURL, headers)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, resolver.NewError(c.name, resolver.KindLayout, fmt.Errorf("failed to parse HTML: %w", err))
	}
	if isChallengePage(doc) {
		return nil, resolver.Errorf(c.name, resolver.KindBlocked, "%s returned a challenge page (try a proxy or wait)", c.name)
	}
	return doc, nil
}

// do performs req, retrying transport errors, 5xx and 429 answers. Other
// statuses are returned to the caller untouched. Under a resolver pipeline
// call each request is sent once and the pipeline retries the provider.
func (c *baseClient) do(ctx context.Context, r request) (*response, error) {
	if r.method == "" {
		r.method = http.MethodGet
	}

	retries := c.maxRetries
	if resolver.RetriedByPipeline(ctx) {
		retries = 0
	}
	shouldRetry := func(attempt int) bool { return attempt < retries }

	var lastErr error
	attempts := retries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		var body io.Reader
		if r.body != nil {
			body = bytes.NewReader(r.body)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
		if err != nil {
			return nil, resolver.NewError(c.name, resolver.KindLayout, fmt.Errorf("failed to create request: %w", err))
		}
		c.decorateRequest(req)
		if r.contentType != "" {
			req.Header.Set("Content-Type", r.contentType)
		}
		for k, v := range r.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = resolver.Classify(c.name, fmt.Errorf("failed to make request: %w", err))
			if ctx.Err() == nil && shouldRetry(attempt) {
				c.sleep(ctx)
				continue
			}
			return nil, lastErr
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		_ = resp.Body.Close()
		out := &response{status: resp.StatusCode, header: resp.Header, body: data}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = c.statusError(out)
			var pe *resolver.ProviderError
			if errors.As(lastErr, &pe) && pe.Retryable() && shouldRetry(attempt) {
				c.sleep(ctx)
				continue
			}
			return nil, lastErr
		}
		if readErr != nil {
			lastErr = resolver.Classify(c.name, fmt.Errorf("failed to read body: %w", readErr))
			if shouldRetry(attempt) {
				c.sleep(ctx)
				continue
			}
			return nil, lastErr
		}
		return out, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, resolver.Errorf(c.name, resolver.KindNetwork, "failed to retrieve %s", r.url)
}

func (c *baseClient) statusError(resp *response) error {
	if (resp.status == http.StatusForbidden || resp.status == http.StatusServiceUnavailable) && isChallengeBody(resp.body) {
		return resolver.Errorf(c.name, resolver.KindBlocked, "cloudflare challenge (status %d)", resp.status)
	}
	return resolver.Errorf(c.name, resolver.StatusKind(resp.status), "server returned: %d %s",
		resp.status, http.StatusText(resp.status))
}

func (c *baseClient) decorateRequest(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,vi;q=0.8")
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}
}

func (c *baseClient) sleep(ctx context.Context) {
	if c.retryDelay <= 0 {
		return
	}
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func isChallengePage(doc *goquery.Document) bool {
	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	if strings.Contains(title, "just a moment") || strings.Contains(title, "attention required") {
		return true
	}
	return doc.Find("#cf-wrapper").Length() > 0 || doc.Find("#challenge-form").Length() > 0
}

func isChallengeBody(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "just a moment") ||
		strings.Contains(lower, "cf-chl") ||
		strings.Contains(lower, "challenge-platform")
}

// resolveURL resolves relative URLs against base
func resolveURL(base, ref string) string {
	switch {
	case ref == "":
		return ""
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return ref
	case strings.HasPrefix(ref, "//"):
		return "https:" + ref
	case strings.HasPrefix(ref, "/"):
		return strings.TrimRight(base, "/") + ref
	}
	return strings.TrimRight(base, "/") + "/" + ref
}
