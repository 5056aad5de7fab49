package binary

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// downloadTimeout bounds a single archive download attempt.
	downloadTimeout = 60 * time.Second
	// fetchTimeout bounds small fetches (checksums manifest, signatures).
	fetchTimeout = 30 * time.Second
	// defaultRetries is the number of retries after a failed download.
	defaultRetries = 3
	// maxRedirects bounds manual redirect following.
	maxRedirects = 10

	userAgent = "ccswitch/1.0"
)

// Downloader performs streaming HTTP downloads with manual redirect
// following and retry with exponential backoff.
type Downloader struct {
	client  *http.Client
	retries int
}

// NewDownloader creates a downloader. Redirects are not followed by the
// underlying client: each redirect target is re-requested explicitly so the
// hop count stays under our control.
func NewDownloader() *Downloader {
	return &Downloader{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		retries: defaultRetries,
	}
}

// get issues a GET and re-requests redirect targets until it reaches a
// non-redirect response or the hop limit. The caller owns the response body.
func (d *Downloader) get(ctx context.Context, url string) (*http.Response, error) {
	for hop := 0; hop <= maxRedirects; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
			http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			target := resp.Header.Get("Location")
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if target == "" {
				return nil, fmt.Errorf("redirect without Location from %s", url)
			}
			log.Debugf("following redirect to %s", target)
			url = target
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("too many redirects")
}

// DownloadToFile downloads a URL to destPath, retrying with exponential
// backoff (1s, 2s, 4s, ...). The file is staged with a .tmp suffix and
// renamed into place only once the body has been fully copied, so an
// interrupted download never leaves a partial file at destPath.
func (d *Downloader) DownloadToFile(ctx context.Context, url, destPath string) error {
	var lastErr error

	for attempt := 0; attempt <= d.retries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			log.Debugf("download retry %d/%d in %s: %v", attempt, d.retries, backoff, lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := d.downloadOnce(ctx, url, destPath)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("download failed after %d retries: %w", d.retries, lastErr)
}

func (d *Downloader) downloadOnce(ctx context.Context, url, destPath string) error {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	resp, err := d.get(ctx, url)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, url)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	tmpPath := destPath + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		return fmt.Errorf("copy response body: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	cleanupNeeded = false
	return nil
}

// FetchBytes fetches a small resource (manifest, API response) into memory
// under the given timeout. No retry: callers decide whether a miss matters.
func (d *Downloader) FetchBytes(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := d.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return data, nil
}
