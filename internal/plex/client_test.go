package plex_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/plexwatch/announcer/internal/domain"
	"github.com/plexwatch/announcer/internal/plex"
)

const sectionsJSON = `{"MediaContainer":{"size":2,"Directory":[
	{"key":"1","title":"Movies"},
	{"key":"2","title":"TV Shows"}
]}}`

func recentlyAddedJSON(entries ...string) string {
	body := ""
	for i, e := range entries {
		if i > 0 {
			body += ","
		}
		body += e
	}
	return fmt.Sprintf(`{"MediaContainer":{"size":%d,"Metadata":[%s]}}`, len(entries), body)
}

func newTestServer(t *testing.T, recentlyAdded map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/library/sections", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Plex-Token"); got != "test-token" {
			t.Errorf("missing or wrong X-Plex-Token header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, sectionsJSON)
	})
	for key, body := range recentlyAdded {
		body := body
		mux.HandleFunc("/library/sections/"+key+"/recentlyAdded", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, body)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_BuildsSnapshot(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"1": recentlyAddedJSON(
			`{"ratingKey":"101","type":"movie","title":"Dune","year":2021,"addedAt":1700000000,"thumb":"/library/metadata/101/thumb/1"}`,
			`{"ratingKey":"102","type":"movie","title":"Arrival","year":2016,"addedAt":1700000100}`,
		),
	})
	c := plex.NewClientWithDoer(srv.URL, "test-token", 50, srv.Client())

	snap, err := c.Fetch(context.Background(), "Movies")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Section != "Movies" {
		t.Fatalf("section = %q, want Movies", snap.Section)
	}
	if len(snap.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(snap.Items))
	}

	first := snap.Items[0]
	if first.ID != "101" || first.Kind != domain.KindMovie || first.Title != "Dune" {
		t.Fatalf("unexpected first item: %+v", first)
	}
	if want := time.Unix(1700000000, 0).UTC(); !first.AddedAt.Equal(want) {
		t.Fatalf("AddedAt = %v, want %v", first.AddedAt, want)
	}
	if first.Thumb != "/library/metadata/101/thumb/1" {
		t.Fatalf("Thumb = %q", first.Thumb)
	}
}

func TestFetch_SectionNameCaseInsensitive(t *testing.T) {
	srv := newTestServer(t, map[string]string{"2": recentlyAddedJSON(
		`{"ratingKey":"201","type":"episode","title":"Pilot","grandparentTitle":"Severance","parentIndex":1,"index":1,"addedAt":1700000000}`,
	)})
	c := plex.NewClientWithDoer(srv.URL, "test-token", 0, srv.Client())

	snap, err := c.Fetch(context.Background(), "tv shows")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Items) != 1 || snap.Items[0].GrandparentTitle != "Severance" {
		t.Fatalf("unexpected snapshot: %+v", snap.Items)
	}
}

func TestFetch_UnknownSection(t *testing.T) {
	srv := newTestServer(t, nil)
	c := plex.NewClientWithDoer(srv.URL, "test-token", 50, srv.Client())

	_, err := c.Fetch(context.Background(), "Anime")
	if !errors.Is(err, domain.ErrSourceMalformed) {
		t.Fatalf("expected ErrSourceMalformed, got %v", err)
	}
}

func TestFetch_MissingIdentifierRejectsSnapshot(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"1": recentlyAddedJSON(`{"type":"movie","title":"No Key","addedAt":1700000000}`),
	})
	c := plex.NewClientWithDoer(srv.URL, "test-token", 50, srv.Client())

	_, err := c.Fetch(context.Background(), "Movies")
	if !errors.Is(err, domain.ErrSourceMalformed) {
		t.Fatalf("expected ErrSourceMalformed, got %v", err)
	}
}

func TestFetch_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := plex.NewClientWithDoer(srv.URL, "test-token", 50, srv.Client())

	_, err := c.Fetch(context.Background(), "Movies")
	if !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestFetch_NetworkErrorIsUnavailable(t *testing.T) {
	srv := newTestServer(t, nil)
	client := srv.Client()
	srv.Close()
	c := plex.NewClientWithDoer(srv.URL, "test-token", 50, client)

	_, err := c.Fetch(context.Background(), "Movies")
	if !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestFetch_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer srv.Close()
	c := plex.NewClientWithDoer(srv.URL, "test-token", 50, srv.Client())

	_, err := c.Fetch(context.Background(), "Movies")
	if !errors.Is(err, domain.ErrSourceMalformed) {
		t.Fatalf("expected ErrSourceMalformed, got %v", err)
	}
}
