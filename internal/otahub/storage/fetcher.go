package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/autopeer-io/otahub/internal/otahub/core"
)

var _ core.BlobFetcher = (*HTTPFetcher)(nil)

// HTTPFetcher downloads firmware over http and https.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a fetcher whose downloads are bounded by timeout.
// Zero means no timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Open(ctx context.Context, raw string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid firmware url: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch firmware: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("fetch firmware: unexpected status %s", resp.Status)
	}
	return resp.Body, resp.ContentLength, nil
}

// Router dispatches Open to a fetcher chosen by URL scheme.
type Router struct {
	fetchers map[string]core.BlobFetcher
}

func NewRouter() *Router {
	return &Router{fetchers: make(map[string]core.BlobFetcher)}
}

// Handle registers f for the given schemes.
func (r *Router) Handle(f core.BlobFetcher, schemes ...string) *Router {
	for _, s := range schemes {
		r.fetchers[s] = f
	}
	return r
}

func (r *Router) Open(ctx context.Context, raw string) (io.ReadCloser, int64, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid firmware url: %w", err)
	}
	f, ok := r.fetchers[u.Scheme]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported firmware url scheme %q", u.Scheme)
	}
	return f.Open(ctx, raw)
}
