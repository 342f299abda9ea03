package downloader

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/mediagrabba/internal/config"
	"github.com/iconidentify/mediagrabba/internal/domain"
)

// HTTPDownloader implements Fetcher over plain HTTP GETs.
type HTTPDownloader struct {
	client      *http.Client
	userAgent   string
	maxFileSize int64
	retry       RetryConfig
	logger      *slog.Logger
}

// NewHTTPDownloader creates a new HTTP-based media downloader.
func NewHTTPDownloader(cfg config.DownloadConfig, logger *slog.Logger) *HTTPDownloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 100 << 20
	}
	retry := DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		retry.InitialDelay = cfg.RetryDelay
	}
	if cfg.MaxRetryDelay > 0 {
		retry.MaxDelay = cfg.MaxRetryDelay
	}

	return &HTTPDownloader{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent:   cfg.UserAgent,
		maxFileSize: cfg.MaxFileSize,
		retry:       retry,
		logger:      logger,
	}
}

// Fetch downloads req.URL to req.DestPath. Permanent HTTP statuses and size
// violations end the call at once; everything else is retried with backoff.
// A completed outcome always points at a verified, non-empty file.
func (d *HTTPDownloader) Fetch(ctx context.Context, req FetchRequest) domain.DownloadOutcome {
	logger := d.logger.With("media_id", req.MediaID, "kind", req.Kind)

	if !req.Kind.Valid() {
		err := fmt.Errorf("%w: %q", domain.ErrInvalidMediaKind, req.Kind)
		return domain.FailedOutcome(req.MediaID, domain.ErrorKindInvalidMediaKind, err, 0)
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < d.retry.MaxAttempts; attempt++ {
		attempts++

		size, checksum, err := d.fetchOnce(ctx, req)
		if err == nil {
			logger.Debug("media downloaded", "path", req.DestPath, "bytes", size, "attempts", attempts)
			return domain.DownloadOutcome{
				MediaID:    req.MediaID,
				Status:     domain.DownloadCompleted,
				LocalPath:  req.DestPath,
				FileSize:   size,
				Checksum:   checksum,
				Attempts:   attempts,
				SourceURL:  req.URL,
				Width:      req.Width,
				Height:     req.Height,
				DurationMs: req.DurationMs,
			}
		}
		lastErr = err

		var te *domain.TransferError
		if errors.As(err, &te) && te.Permanent() {
			logger.Warn("media download rejected", "error", err, "attempt", attempts)
			break
		}

		if attempt == d.retry.MaxAttempts-1 {
			break
		}

		delay := d.retry.DelayForAttempt(attempt)
		logger.Warn("media download failed, will retry",
			"error", err,
			"attempt", attempts,
			"max_retries", d.retry.MaxAttempts,
			"delay", delay,
		)
		if err := sleepContext(ctx, delay); err != nil {
			lastErr = fmt.Errorf("retry wait: %w", err)
			break
		}
	}

	out := domain.FailedOutcome(req.MediaID, domain.KindOf(lastErr), lastErr, attempts)
	out.SourceURL = req.URL
	return out
}

func (d *HTTPDownloader) fetchOnce(ctx context.Context, req FetchRequest) (int64, string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return 0, "", domain.NewTransferError(domain.ErrorKindNoResolvableURL, 0, fmt.Errorf("create request: %w", err))
	}

	if d.userAgent != "" {
		httpReq.Header.Set("User-Agent", d.userAgent)
	}
	httpReq.Header.Set("Accept", "*/*")
	httpReq.Header.Set("Referer", "https://x.com/")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return 0, "", domain.NewTransferError(domain.ErrorKindTransientTransfer, 0, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusGone:
		return 0, "", domain.NewTransferError(domain.ErrorKindPermanentHTTP, resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return 0, "", domain.NewTransferError(domain.ErrorKindTransientTransfer, resp.StatusCode, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	if resp.ContentLength > d.maxFileSize {
		return 0, "", domain.NewTransferError(domain.ErrorKindSizeLimitExceeded, resp.StatusCode,
			fmt.Errorf("%w: advertised %d bytes, limit %d", domain.ErrSizeLimitExceeded, resp.ContentLength, d.maxFileSize))
	}

	if err := os.MkdirAll(filepath.Dir(req.DestPath), 0755); err != nil {
		return 0, "", domain.NewTransferError(domain.ErrorKindTransientTransfer, 0, fmt.Errorf("create directory: %w", err))
	}

	// Write next to the destination so the final rename stays on one filesystem.
	tmpPath := req.DestPath + ".part-" + uuid.NewString()
	size, checksum, err := d.writeBody(tmpPath, resp.Body)
	if err != nil {
		os.Remove(tmpPath)
		return 0, "", err
	}

	expected := size
	if resp.ContentLength > 0 {
		expected = resp.ContentLength
	}
	if err := VerifyIntegrity(tmpPath, expected); err != nil {
		os.Remove(tmpPath)
		return 0, "", domain.NewTransferError(domain.ErrorKindTransientTransfer, 0, err)
	}

	if err := os.Rename(tmpPath, req.DestPath); err != nil {
		os.Remove(tmpPath)
		return 0, "", domain.NewTransferError(domain.ErrorKindTransientTransfer, 0, fmt.Errorf("move into place: %w", err))
	}

	return size, checksum, nil
}

// writeBody streams body into path, reading at most one byte past the size
// cap so servers that understate Content-Length are still caught.
func (d *HTTPDownloader) writeBody(path string, body io.Reader) (int64, string, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return 0, "", domain.NewTransferError(domain.ErrorKindTransientTransfer, 0, fmt.Errorf("create file: %w", err))
	}

	hash := newDigest()
	n, copyErr := io.Copy(io.MultiWriter(f, hash), io.LimitReader(body, d.maxFileSize+1))
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		return 0, "", domain.NewTransferError(domain.ErrorKindTransientTransfer, 0, fmt.Errorf("read body: %w", copyErr))
	case closeErr != nil:
		return 0, "", domain.NewTransferError(domain.ErrorKindTransientTransfer, 0, fmt.Errorf("close file: %w", closeErr))
	case n > d.maxFileSize:
		return 0, "", domain.NewTransferError(domain.ErrorKindSizeLimitExceeded, 0,
			fmt.Errorf("%w: body exceeds %d bytes", domain.ErrSizeLimitExceeded, d.maxFileSize))
	case n == 0:
		return 0, "", domain.NewTransferError(domain.ErrorKindTransientTransfer, 0, domain.ErrEmptyPayload)
	}

	return n, hex.EncodeToString(hash.Sum(nil)), nil
}
