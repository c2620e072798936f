package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/alvarorichard/Gostream/internal/util"
)

// BrowserSession performs same-origin requests from inside a page of the
// target site. FebBox rejects API calls that do not come from a browser
// that has loaded the share page first.
type BrowserSession interface {
	// Fetch loads pageURL (once per page) and returns the body of a
	// same-origin GET of apiURL made from that page.
	Fetch(ctx context.Context, pageURL, apiURL string) ([]byte, error)
	Close() error
}

// fetchScript runs inside the page; credentials carry the ui cookie
const fetchScript = `async ({ u, ms }) => {
	const r = await fetch(u, {
		credentials: "include",
		headers: { "X-Requested-With": "XMLHttpRequest", "Accept": "application/json" },
		signal: AbortSignal.timeout(ms)
	});
	return await r.text();
}`

// browserTimeout bounds page loads and in-page fetches when ctx has no deadline
const browserTimeout = 30 * time.Second

// timeoutMillis is the time left before ctx expires, capped at fallback,
// in the milliseconds playwright expects
func timeoutMillis(ctx context.Context, fallback time.Duration) float64 {
	d := fallback
	if deadline, ok := ctx.Deadline(); ok {
		d = min(time.Until(deadline), fallback)
	}
	return float64(max(d, time.Millisecond).Milliseconds())
}

// PlaywrightSession drives a headless Chromium through playwright-go. The
// browser is started on first use and reused until Close.
type PlaywrightSession struct {
	name      string
	cookieURL string
	token     string
	userAgent string

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
	pageURL string
}

// NewPlaywrightSession creates a session that sets the ui cookie on
// cookieURL before loading any page.
func NewPlaywrightSession(name, cookieURL, token string) *PlaywrightSession {
	return &PlaywrightSession{
		name:      name,
		cookieURL: cookieURL,
		token:     token,
		userAgent: util.DefaultUserAgent,
	}
}

func (s *PlaywrightSession) start() error {
	if s.page != nil {
		return nil
	}

	timer := util.StartTimer("playwright start")
	defer timer.Stop()

	pw, err := playwright.Run()
	if err != nil {
		return resolver.NewError(s.name, resolver.KindNotConfigured, fmt.Errorf("start playwright (run `playwright install chromium`): %w", err))
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		_ = pw.Stop()
		return resolver.NewError(s.name, resolver.KindNotConfigured, fmt.Errorf("launch chromium: %w", err))
	}
	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(s.userAgent),
	})
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return resolver.NewError(s.name, resolver.KindNetwork, fmt.Errorf("browser context: %w", err))
	}
	if s.token != "" {
		err = bctx.AddCookies([]playwright.OptionalCookie{{
			Name:  "ui",
			Value: s.token,
			URL:   playwright.String(s.cookieURL),
		}})
		if err != nil {
			_ = browser.Close()
			_ = pw.Stop()
			return resolver.NewError(s.name, resolver.KindLayout, fmt.Errorf("set cookie: %w", err))
		}
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return resolver.NewError(s.name, resolver.KindNetwork, fmt.Errorf("new page: %w", err))
	}

	s.pw, s.browser, s.bctx, s.page = pw, browser, bctx, page
	return nil
}

// Fetch implements BrowserSession
func (s *PlaywrightSession) Fetch(ctx context.Context, pageURL, apiURL string) ([]byte, error) {
	type result struct {
		body []byte
		err  error
	}
	done := make(chan result, 1)

	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		// the caller may have given up while another fetch held the page
		if err := ctx.Err(); err != nil {
			done <- result{err: err}
			return
		}
		if err := s.start(); err != nil {
			done <- result{err: err}
			return
		}
		if s.pageURL != pageURL {
			util.Debug("Browser loading page", "url", pageURL)
			if _, err := s.page.Goto(pageURL, playwright.PageGotoOptions{
				WaitUntil: playwright.WaitUntilStateDomcontentloaded,
				Timeout:   playwright.Float(timeoutMillis(ctx, browserTimeout)),
			}); err != nil {
				done <- result{err: resolver.NewError(s.name, resolver.KindNetwork, fmt.Errorf("load %s: %w", pageURL, err))}
				return
			}
			s.pageURL = pageURL
		}

		out, err := s.page.Evaluate(fetchScript, map[string]any{
			"u":  apiURL,
			"ms": timeoutMillis(ctx, browserTimeout),
		})
		if err != nil {
			done <- result{err: resolver.NewError(s.name, resolver.KindLayout, fmt.Errorf("in-page fetch: %w", err))}
			return
		}
		text, ok := out.(string)
		if !ok {
			done <- result{err: resolver.Errorf(s.name, resolver.KindLayout, "in-page fetch returned %T", out)}
			return
		}
		done <- result{body: []byte(text)}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.body, r.err
	}
}

// Close shuts the browser down
func (s *PlaywrightSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pw == nil {
		return nil
	}
	if s.browser != nil {
		_ = s.browser.Close()
	}
	err := s.pw.Stop()
	s.pw, s.browser, s.bctx, s.page, s.pageURL = nil, nil, nil, nil, ""
	return err
}

// HTTPSession imitates the browser with a cookie jar and XHR headers. It
// works while FebBox does not enforce its browser checks.
type HTTPSession struct {
	baseClient

	mu     sync.Mutex
	loaded map[string]bool
}

// NewHTTPSession creates a session whose jar holds the ui cookie for
// cookieURL.
func NewHTTPSession(name, cookieURL, token string) *HTTPSession {
	jar, _ := cookiejar.New(nil)
	if u, err := url.Parse(cookieURL); err == nil && token != "" {
		jar.SetCookies(u, []*http.Cookie{{Name: "ui", Value: token, Path: "/"}})
	}

	base := newBaseClient(name, cookieURL)
	fast := util.GetFastClient()
	base.client = &http.Client{
		Transport: fast.Transport,
		Timeout:   30 * time.Second,
		Jar:       jar,
	}
	return &HTTPSession{baseClient: base, loaded: map[string]bool{}}
}

// Fetch implements BrowserSession
func (s *HTTPSession) Fetch(ctx context.Context, pageURL, apiURL string) ([]byte, error) {
	s.mu.Lock()
	seen := s.loaded[pageURL]
	s.mu.Unlock()

	if !seen {
		if _, err := s.get(ctx, pageURL, nil); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.loaded[pageURL] = true
		s.mu.Unlock()
	}

	return s.get(ctx, apiURL, map[string]string{
		"X-Requested-With": "XMLHttpRequest",
		"Accept":           "application/json, text/javascript, */*; q=0.01",
		"Referer":          pageURL,
	})
}

// Close implements BrowserSession
func (s *HTTPSession) Close() error {
	return nil
}
