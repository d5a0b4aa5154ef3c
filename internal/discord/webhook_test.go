package discord_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/plexwatch/announcer/internal/discord"
	"github.com/plexwatch/announcer/internal/domain"
)

func payload() domain.Payload {
	return domain.Payload{Embeds: []domain.Embed{{Title: "New Movie", Description: "Heat (1995)"}}}
}

func newSink(t *testing.T, handler http.HandlerFunc) *discord.WebhookSink {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return discord.NewWebhookSink(srv.URL, 5*time.Second)
}

func TestSend_Success(t *testing.T) {
	var gotContentType string
	sink := newSink(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	})

	if err := sink.Send(context.Background(), payload()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotContentType != "application/json" {
		t.Fatalf("expected JSON content type, got %q", gotContentType)
	}
}

func TestSend_ThrottledCarriesRetryAfter(t *testing.T) {
	sink := newSink(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"retry_after": 2.5}`))
	})

	err := sink.Send(context.Background(), payload())
	var throttled *domain.ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError, got %v", err)
	}
	if throttled.RetryAfter != 2500*time.Millisecond {
		t.Fatalf("expected 2.5s retry-after, got %s", throttled.RetryAfter)
	}
}

func TestSend_ThrottledFallsBackToHeader(t *testing.T) {
	sink := newSink(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := sink.Send(context.Background(), payload())
	var throttled *domain.ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError, got %v", err)
	}
	if throttled.RetryAfter != 3*time.Second {
		t.Fatalf("expected 3s retry-after, got %s", throttled.RetryAfter)
	}
}

func TestSend_ServerErrorIsTransient(t *testing.T) {
	sink := newSink(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := sink.Send(context.Background(), payload())
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}

func TestSend_ClientErrorIsRejected(t *testing.T) {
	sink := newSink(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid webhook token", http.StatusUnauthorized)
	})

	err := sink.Send(context.Background(), payload())
	if !errors.Is(err, domain.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestSend_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	sink := discord.NewWebhookSink(srv.URL, time.Second)
	err := sink.Send(context.Background(), payload())
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}
