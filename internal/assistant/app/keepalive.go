package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Ayomide650/DMS-Assistant/common/retry"
)

// DefaultKeepAliveInterval keeps the cadence under the 15-minute idle
// timeout free-tier hosts apply.
const DefaultKeepAliveInterval = 14 * time.Minute

// KeepAlive periodically fetches a URL (normally the bot's own /health
// endpoint) so the hosting platform does not spin the process down.
type KeepAlive struct {
	url      string
	interval time.Duration
	client   *http.Client
}

// NewKeepAlive creates a pinger. A non-positive interval falls back to
// DefaultKeepAliveInterval.
func NewKeepAlive(url string, interval time.Duration) *KeepAlive {
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}
	return &KeepAlive{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Run pings until ctx is cancelled.
func (k *KeepAlive) Run(ctx context.Context) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	slog.Info("keep-alive running", "url", k.url, "interval", k.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := k.ping(ctx); err != nil {
				slog.Warn("keep-alive ping failed", "url", k.url, "err", err)
			}
		}
	}
}

// ping fetches the URL, retrying transient failures a few times.
func (k *KeepAlive) ping(ctx context.Context) error {
	return retry.Do(ctx, retry.Config{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
	}, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
		if err != nil {
			return err
		}
		resp, err := k.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("keep-alive: HTTP %d", resp.StatusCode)
		}
		return nil
	})
}
