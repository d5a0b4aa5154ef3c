package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/plexwatch/announcer/internal/domain"
)

// WebhookSink delivers payloads by POSTing to a Discord webhook URL.
// The URL is injected from config so tests can point to a local mock.
type WebhookSink struct {
	webhookURL string
	httpClient *http.Client
}

func NewWebhookSink(webhookURL string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// throttleResponse maps Discord's 429 body: retry_after is in seconds,
// fractional.
type throttleResponse struct {
	RetryAfter float64 `json:"retry_after"`
}

// Send posts the payload. Success is 2xx (Discord answers 204 without
// ?wait=true). Every failure is classified:
//
//	429            -> *domain.ThrottledError with the endpoint's retry-after
//	other 4xx      -> domain.ErrRejected (payload or webhook config invalid)
//	5xx / network  -> domain.ErrTransient
func (s *WebhookSink) Send(ctx context.Context, payload domain.Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal payload: %v", domain.ErrRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", domain.ErrRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return &domain.ThrottledError{RetryAfter: retryAfter(resp)}

	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: webhook returned %d", domain.ErrTransient, resp.StatusCode)

	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: webhook returned %d: %s",
			domain.ErrRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
}

// retryAfter extracts the backoff duration from a 429 response, preferring
// the JSON retry_after field over the Retry-After header. Falls back to one
// second if the endpoint sent neither.
func retryAfter(resp *http.Response) time.Duration {
	var tr throttleResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&tr); err == nil && tr.RetryAfter > 0 {
		return time.Duration(tr.RetryAfter * float64(time.Second))
	}
	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.ParseFloat(h, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return time.Second
}

var _ Sink = (*WebhookSink)(nil)
