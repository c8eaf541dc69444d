package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"roomstaging/internal/domain"
)

const defaultMaxBytes = 25 * 1024 * 1024

// Fetcher downloads rendered assets fully into memory.
type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
}

// New returns a Fetcher. A nil client gets a two minute timeout; a
// non-positive maxBytes falls back to 25 MiB.
func New(httpClient *http.Client, maxBytes int64) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Fetcher{httpClient: httpClient, maxBytes: maxBytes}
}

// Fetch returns the body and content type of url. Every failure is a
// *domain.DownloadError.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &domain.DownloadError{URL: url, Err: fmt.Errorf("build request: %w", err)}
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", &domain.DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &domain.DownloadError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", &domain.DownloadError{URL: url, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > f.maxBytes {
		return nil, "", &domain.DownloadError{URL: url, Status: resp.StatusCode, Err: fmt.Errorf("asset too large (>%d bytes)", f.maxBytes)}
	}
	return body, resp.Header.Get("Content-Type"), nil
}
