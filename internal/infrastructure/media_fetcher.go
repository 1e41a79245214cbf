package infrastructure

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/embed-archiver/internal/domain"
)

const maxDiagnosticBody = 1 << 10

// HTTPMediaFetcher downloads embed media, falling back from the direct URL to
// the upstream media proxy. Each call makes one primary and at most one backup
// request; retrying is left to queue redelivery.
type HTTPMediaFetcher struct {
	httpClient *http.Client
	maxBytes   int64
	logger     *zap.Logger
}

// NewHTTPMediaFetcher creates a new media fetcher
func NewHTTPMediaFetcher(config *domain.ArchiveConfig, httpClient *http.Client, logger *zap.Logger) *HTTPMediaFetcher {
	if httpClient == nil {
		// the default client follows redirects
		httpClient = &http.Client{Timeout: config.FetchTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPMediaFetcher{
		httpClient: httpClient,
		maxBytes:   config.MaxMediaBytes,
		logger:     logger,
	}
}

// Fetch tries primaryURL, then backupURL. Only a 200 response counts as success.
// When both fail the error is a *domain.FetchError describing both attempts.
func (f *HTTPMediaFetcher) Fetch(ctx context.Context, primaryURL, backupURL string) (*domain.FetchResult, error) {
	result, primary := f.attempt(ctx, primaryURL)
	if result != nil {
		return result, nil
	}

	f.logger.Debug("Primary media URL failed, trying backup",
		zap.String("url", primaryURL),
		zap.Int("status", primary.Status))

	result, backup := f.attempt(ctx, backupURL)
	if result != nil {
		result.UsedBackup = true
		return result, nil
	}

	return nil, &domain.FetchError{Primary: primary, Backup: backup}
}

func (f *HTTPMediaFetcher) attempt(ctx context.Context, rawURL string) (*domain.FetchResult, domain.FetchAttempt) {
	failed := domain.FetchAttempt{URL: rawURL}
	if rawURL == "" {
		failed.Body = "no URL"
		return nil, failed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		failed.Body = err.Error()
		return nil, failed
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		failed.Body = err.Error()
		return nil, failed
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDiagnosticBody))
		failed.Status = resp.StatusCode
		failed.Body = string(body)
		return nil, failed
	}

	reader := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		failed.Status = resp.StatusCode
		failed.Body = fmt.Sprintf("failed to read body: %v", err)
		return nil, failed
	}
	if f.maxBytes > 0 && int64(len(body)) > f.maxBytes {
		failed.Status = resp.StatusCode
		failed.Body = fmt.Sprintf("body exceeds %d bytes", f.maxBytes)
		return nil, failed
	}

	f.logger.Debug("Fetched media",
		zap.String("url", rawURL),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)))

	return &domain.FetchResult{
		URL:    rawURL,
		Body:   body,
		Header: resp.Header.Clone(),
	}, failed
}
