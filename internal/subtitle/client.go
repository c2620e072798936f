package subtitle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/alvarorichard/Gostream/internal/util"
)

// maxDownloadSize caps subtitle downloads and API answers
const maxDownloadSize = 20 << 20

// apiClient is the HTTP plumbing shared by the subtitle providers
type apiClient struct {
	name    string
	baseURL string
	client  *http.Client
	headers map[string]string
}

func newAPIClient(name, baseURL string) apiClient {
	return apiClient{
		name:    name,
		baseURL: baseURL,
		client:  util.GetSharedClient(),
		headers: map[string]string{"User-Agent": util.DefaultUserAgent},
	}
}

// do sends one request and returns the body of a 2xx answer
func (c *apiClient) do(ctx context.Context, method, rawURL string, payload any, headers map[string]string) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, resolver.NewError(c.name, resolver.KindLayout, fmt.Errorf("failed to create request: %w", err))
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, resolver.Classify(c.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resolver.StatusError(c.name, resp)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, resolver.Classify(c.name, fmt.Errorf("failed to read body: %w", err))
	}
	return data, nil
}

func (c *apiClient) getJSON(ctx context.Context, rawURL string, headers map[string]string, out any) error {
	data, err := c.do(ctx, http.MethodGet, rawURL, nil, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resolver.NewError(c.name, resolver.KindLayout, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

func (c *apiClient) postJSON(ctx context.Context, rawURL string, payload any, headers map[string]string, out any) error {
	data, err := c.do(ctx, http.MethodPost, rawURL, payload, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resolver.NewError(c.name, resolver.KindLayout, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}
