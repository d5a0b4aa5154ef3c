// Package uptime pings an external status monitor after each successful
// cycle. Monitors like Uptime Kuma accept the elapsed whole seconds
// appended to the push URL.
package uptime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type Pinger struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// New returns nil when no URL is configured so callers can treat the pinger
// as absent.
func New(url string, logger *zap.Logger) *Pinger {
	if url == "" {
		return nil
	}
	return &Pinger{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Ping is best-effort: failures are logged and never affect the cycle.
func (p *Pinger) Ping(ctx context.Context, elapsed time.Duration) {
	url := fmt.Sprintf("%s%d", p.url, int64(elapsed.Seconds()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.logger.Warn("uptime ping request build failed", zap.Error(err))
		return
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("uptime ping failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		p.logger.Warn("uptime ping rejected", zap.Int("status", resp.StatusCode))
	}
}
