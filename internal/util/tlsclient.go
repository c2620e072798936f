package util

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

// browserTLSHosts are fronted by Cloudflare and reject Go's default TLS
// fingerprint. Requests to them go through the Chrome-fingerprinted client.
var browserTLSHosts = []string{
	"vidsrc.",
	"cloudnestra.",
	"autoembed.",
	"febbox.com",
	"showbox.media",
}

var (
	browserClient     *http.Client
	browserClientOnce sync.Once
)

// GetBrowserClient returns a client whose TLS handshake mimics Chrome and
// that speaks HTTP/2 when the server negotiates it.
func GetBrowserClient() *http.Client {
	browserClientOnce.Do(func() {
		browserClient = &http.Client{
			Transport: newUTLSRoundTripper(),
			Timeout:   30 * time.Second,
		}
	})
	return browserClient
}

// NeedsBrowserTLS reports whether rawURL points at a host that requires the
// browser fingerprint.
func NeedsBrowserTLS(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, host := range browserTLSHosts {
		if strings.Contains(lower, host) {
			return true
		}
	}
	return false
}

// ClientFor picks the browser client for Cloudflare-fronted hosts and the
// shared pooled client otherwise.
func ClientFor(rawURL string) *http.Client {
	if NeedsBrowserTLS(rawURL) {
		return GetBrowserClient()
	}
	return GetSharedClient()
}

type utlsRoundTripper struct {
	dialer      *net.Dialer
	h2Transport *http2.Transport
	fallback    http.RoundTripper
}

func newUTLSRoundTripper() *utlsRoundTripper {
	return &utlsRoundTripper{
		dialer: &net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 60 * time.Second,
		},
		h2Transport: &http2.Transport{},
		fallback:    GetSharedClient().Transport,
	}
}

func (t *utlsRoundTripper) dial(ctx context.Context, addr string) (net.Conn, error) {
	if p := currentProxy(); p != nil && strings.HasPrefix(p.Scheme, "socks5") {
		socks, err := proxy.FromURL(p, t.dialer)
		if err == nil {
			if cd, ok := socks.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, "tcp", addr)
			}
			return socks.Dial("tcp", addr)
		}
		Debug("SOCKS dialer unavailable for browser client", "error", err)
	}
	return t.dialer.DialContext(ctx, "tcp", addr)
}

func (t *utlsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.fallback.RoundTrip(req)
	}

	addr := req.URL.Host
	if req.URL.Port() == "" {
		addr += ":443"
	}

	conn, err := t.dial(req.Context(), addr)
	if err != nil {
		return nil, err
	}

	uconn := utls.UClient(conn, &utls.Config{ServerName: req.URL.Hostname()}, utls.HelloChrome_120)
	if err := uconn.Handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if uconn.ConnectionState().NegotiatedProtocol == "h2" {
		h2Conn, err := t.h2Transport.NewClientConn(uconn)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return h2Conn.RoundTrip(req)
	}

	if err := req.Write(uconn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	resp, err := http.ReadResponse(bufio.NewReader(uconn), req)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	resp.Body = &connCloser{ReadCloser: resp.Body, conn: uconn}
	return resp, nil
}

// connCloser closes the underlying connection with the response body
type connCloser struct {
	io.ReadCloser
	conn net.Conn
}

func (c *connCloser) Close() error {
	_ = c.ReadCloser.Close()
	return c.conn.Close()
}
