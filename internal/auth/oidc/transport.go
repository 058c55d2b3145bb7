package oidc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rjw57/componentsdb/internal/pkg/metrics"
)

const (
	// DefaultFetchTimeout bounds a single discovery or JWKS fetch
	DefaultFetchTimeout = 10 * time.Second

	maxDocumentSize = 1 << 20
	maxRedirects    = 10
)

// Fetcher retrieves the body of a JSON document. Implementations must map
// every transport failure to ErrFetch.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

// Fetch calls f(ctx, url)
func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// HTTPFetcher fetches documents synchronously over HTTP. It does not retry.
type HTTPFetcher struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPFetcher creates a fetcher using a copy of client (http.DefaultClient
// settings when nil). A timeout of zero selects DefaultFetchTimeout.
func NewHTTPFetcher(client *http.Client, timeout time.Duration) *HTTPFetcher {
	var c http.Client
	if client != nil {
		c = *client
	}
	c.CheckRedirect = httpsOnlyRedirect
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{client: &c, timeout: timeout}
}

func httpsOnlyRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("too many redirects")
	}
	if req.URL.Scheme != "https" {
		return fmt.Errorf("refusing redirect to non-https URL %s", req.URL.Redacted())
	}
	return nil
}

// Fetch performs a GET request for url and returns the response body
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	body, outcome, err := f.fetch(ctx, url)
	metrics.OIDCFetchDuration.Observe(float64(time.Since(start).Milliseconds()))
	metrics.OIDCFetches.WithLabelValues(outcome).Inc()
	return body, err
}

func (f *HTTPFetcher) fetch(ctx context.Context, url string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "request_error", fmt.Errorf("%w: failed to create request for %s: %v", ErrFetch, url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "transport_error", fmt.Errorf("%w: failed to fetch %s: %v", ErrFetch, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "bad_status", fmt.Errorf("%w: unexpected status code %d from %s", ErrFetch, resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, "transport_error", fmt.Errorf("%w: failed to read response from %s: %v", ErrFetch, url, err)
	}
	if len(body) > maxDocumentSize {
		return nil, "too_large", fmt.Errorf("%w: response from %s exceeds %d bytes", ErrFetch, url, maxDocumentSize)
	}
	return body, "success", nil
}

// AsyncFetcher runs fetches of a wrapped Fetcher on their own goroutine so
// callers can start a fetch and collect the result later.
type AsyncFetcher struct {
	fetcher Fetcher
}

// NewAsyncFetcher wraps fetcher
func NewAsyncFetcher(fetcher Fetcher) *AsyncFetcher {
	return &AsyncFetcher{fetcher: fetcher}
}

// PendingFetch is a fetch started by AsyncFetcher.Start
type PendingFetch struct {
	done chan struct{}
	body []byte
	err  error
}

// Start begins fetching url in the background. The fetch is bound to ctx.
func (a *AsyncFetcher) Start(ctx context.Context, url string) *PendingFetch {
	p := &PendingFetch{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.body, p.err = a.fetcher.Fetch(ctx, url)
	}()
	return p
}

// Done is closed once the fetch has completed
func (p *PendingFetch) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the fetch completes or ctx is done
func (p *PendingFetch) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-p.done:
		return p.body, p.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrFetch, ctx.Err())
	}
}

// Fetch starts a fetch and waits for it, so AsyncFetcher is itself a Fetcher
func (a *AsyncFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return a.Start(ctx, url).Wait(ctx)
}
