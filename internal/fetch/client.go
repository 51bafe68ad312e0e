// Package fetch provides a rate-limited, retrying HTTP client for the
// registry API (spec §4.3).
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	searcherrors "github.com/dregistry/docsearch/internal/errors"
)

// Config configures a Client.
type Config struct {
	// MinInterval is the minimum spacing between requests.
	MinInterval time.Duration
	// MaxRetries is the number of retry attempts after the first failure.
	MaxRetries int
	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration
}

// DefaultConfig returns the documented defaults: 100ms minimum interval,
// 3 retries.
func DefaultConfig() Config {
	return Config{
		MinInterval: 100 * time.Millisecond,
		MaxRetries:  3,
		Timeout:     30 * time.Second,
	}
}

// Client is a rate-limited, retrying HTTP client. A zero MinInterval
// disables spacing between requests.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New returns a Client configured per cfg.
func New(cfg Config) *Client {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
	}
}

// Get fetches url and returns the response body. It waits out any
// remaining request interval before issuing the request, and on failure
// sleeps `attempt_number` seconds before retrying (linear backoff), up to
// MaxRetries. After exhaustion it returns a structured, retryable-tagged
// error wrapping the last underlying cause.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.doGet(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if attempt >= c.cfg.MaxRetries {
			break
		}
		if err := c.sleepBeforeRetry(ctx, attempt+1); err != nil {
			return nil, err
		}
	}
	return nil, searcherrors.NetworkError(
		fmt.Sprintf("GET %s failed after %d attempts", url, c.cfg.MaxRetries+1),
		lastErr, false,
	)
}

// Download fetches url and writes the response body to path, replacing any
// existing file atomically. Retry policy matches Get.
func (c *Client) Download(ctx context.Context, url, path string) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.wait(ctx); err != nil {
			return err
		}

		err := c.doDownload(ctx, url, path)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= c.cfg.MaxRetries {
			break
		}
		if err := c.sleepBeforeRetry(ctx, attempt+1); err != nil {
			return err
		}
	}
	return searcherrors.NetworkError(
		fmt.Sprintf("download %s failed after %d attempts", url, c.cfg.MaxRetries+1),
		lastErr, false,
	)
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return searcherrors.Wrap(searcherrors.ErrCodeNetworkTransient, err)
	}
	return nil
}

// sleepBeforeRetry sleeps `attempt` seconds, the linear backoff schedule (spec §4.3).
func (c *Client) sleepBeforeRetry(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(attempt) * time.Second):
		return nil
	}
}

func (c *Client) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *Client) doDownload(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write body: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
