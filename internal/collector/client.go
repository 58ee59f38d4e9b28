// Package collector implements the HTTP Collector (spec §4.2): one
// independent polling loop per enabled HTTP-source kit, fetching its
// drones/signals/status endpoints concurrently and handing normalised
// records to the Persistence Writer.
package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// retrySchedule is the within-tick backoff for retriable endpoint
// fetches, per spec §4.2: "200/500/1000 ms".
var retrySchedule = []time.Duration{200 * time.Millisecond, 500 * time.Millisecond, 1000 * time.Millisecond}

// Fetcher performs the raw HTTP GET a KitCollector needs. It is an
// interface so tests can substitute an in-memory kit server fake without
// a live network.
type Fetcher interface {
	Get(ctx context.Context, url string, timeout time.Duration) ([]byte, int, error)
}

// httpFetcher is the production Fetcher backed by a shared *http.Client,
// matching spec §5's "one shared HTTP client pool" across kits.
type httpFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a Fetcher sharing one client (connection reuse
// across kits, per spec §5).
func NewHTTPFetcher(client *http.Client) Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &httpFetcher{client: client}
}

func (f *httpFetcher) Get(ctx context.Context, url string, timeout time.Duration) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("collector: build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("collector: read body: %w", err)
	}

	return body, resp.StatusCode, nil
}

// isRetriable classifies a tick's endpoint failure per spec §4.2:
// timeouts, 5xx, and connection-refused are retried within the tick;
// 4xx counts as the tick's failure without retry.
func isRetriable(status int, err error) bool {
	if err != nil {
		return true // timeout, connection refused, DNS failure, etc.
	}
	return status >= 500
}

// fetchWithRetry retries a single endpoint fetch up to len(retrySchedule)+1
// attempts for retriable errors, per spec §4.2.
func fetchWithRetry(ctx context.Context, f Fetcher, url string, timeout time.Duration) ([]byte, error) {
	var lastErr error

	body, status, err := f.Get(ctx, url, timeout)
	if err == nil && status < 300 {
		return body, nil
	}
	lastErr = classifyErr(status, err)

	if !isRetriable(status, err) {
		return nil, lastErr
	}

	for _, backoff := range retrySchedule {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		body, status, err = f.Get(ctx, url, timeout)
		if err == nil && status < 300 {
			return body, nil
		}
		lastErr = classifyErr(status, err)

		if !isRetriable(status, err) {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

func classifyErr(status int, err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("collector: unexpected status %d", status)
}
