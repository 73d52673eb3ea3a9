package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/lucidrx/fusion/fuserr"
	"github.com/lucidrx/fusion/record"
)

// DefaultRefreshTimeout bounds a single upstream HTTP call.
const DefaultRefreshTimeout = 15 * time.Second

// maxResponseBytes caps the response body read from an upstream API.
const maxResponseBytes = 64 << 20

// Fetcher issues the HTTP GET behind an API source refresh. A shared rate
// limiter bounds the aggregate upstream request rate across all sources.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// NewFetcher creates a fetcher with the given HTTP client and per-call
// timeout. A nil client falls back to a default client; a zero timeout falls
// back to DefaultRefreshTimeout. The limiter allows a burst of 4 calls at 10
// requests per second by default.
func NewFetcher(client *http.Client, timeout time.Duration) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	return &Fetcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(10), 4),
		timeout: timeout,
	}
}

// WithLimiter overrides the shared rate limiter and returns the fetcher for
// chaining.
func (f *Fetcher) WithLimiter(l *rate.Limiter) *Fetcher {
	if l != nil {
		f.limiter = l
	}
	return f
}

// Fetch performs the refresh GET for an API source and parses the JSON body
// into records. Transport errors, non-2xx responses, and malformed bodies
// all surface as UPSTREAM_UNAVAILABLE so the scheduler records them on the
// source uniformly.
func (f *Fetcher) Fetch(ctx context.Context, src *DataSource) ([]record.Record, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Endpoint, nil)
	if err != nil {
		return nil, fuserr.New(src.ID, "fetcher.Fetch", fuserr.CodeUpstreamUnavailable,
			"failed to build request").WithCause(err)
	}
	req.Header.Set("Accept", "application/json")
	if src.Credentials != "" {
		req.Header.Set("Authorization", "Bearer "+src.Credentials)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fuserr.New(src.ID, "fetcher.Fetch", fuserr.CodeUpstreamUnavailable,
			"upstream request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fuserr.New(src.ID, "fetcher.Fetch", fuserr.CodeUpstreamUnavailable,
			fmt.Sprintf("upstream returned HTTP %d", resp.StatusCode))
	}

	records, err := record.Parse(io.LimitReader(resp.Body, maxResponseBytes), record.FormatJSON)
	if err != nil {
		return nil, fuserr.New(src.ID, "fetcher.Fetch", fuserr.CodeUpstreamUnavailable,
			"failed to parse upstream response").WithCause(err)
	}
	return records, nil
}
