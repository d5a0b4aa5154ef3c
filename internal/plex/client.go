package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/plexwatch/announcer/internal/config"
	"github.com/plexwatch/announcer/internal/domain"
)

const userAgent = "announcer/1.0"

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to the Plex Media Server REST API.
// Section names are resolved to numeric keys via /library/sections once and
// cached; the cache is dropped on resolution misses so a renamed library
// heals on the next fetch.
type Client struct {
	baseURL       string
	token         string
	containerSize int
	httpClient    HTTPDoer

	mu       sync.Mutex
	sections map[string]string // lower-cased title -> key
}

func NewClient(cfg config.PlexConfig) *Client {
	return &Client{
		baseURL:       strings.TrimRight(cfg.URL, "/"),
		token:         cfg.Token,
		containerSize: cfg.ContainerSize,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
	}
}

// NewClientWithDoer is used by tests to inject a transport.
func NewClientWithDoer(baseURL, token string, containerSize int, doer HTTPDoer) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		token:         token,
		containerSize: containerSize,
		httpClient:    doer,
	}
}

// mediaContainerResponse is the top-level shape of every Plex JSON response.
type mediaContainerResponse struct {
	MediaContainer struct {
		Size        int             `json:"size"`
		Directories []sectionEntry  `json:"Directory"`
		Metadata    []metadataEntry `json:"Metadata"`
	} `json:"MediaContainer"`
}

type sectionEntry struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

// metadataEntry is the subset of Plex item metadata the announcer needs.
type metadataEntry struct {
	RatingKey        string `json:"ratingKey"`
	Type             string `json:"type"`
	Title            string `json:"title"`
	Year             int    `json:"year,omitempty"`
	ParentTitle      string `json:"parentTitle,omitempty"`
	GrandparentTitle string `json:"grandparentTitle,omitempty"`
	ParentIndex      int    `json:"parentIndex,omitempty"`
	Index            int    `json:"index,omitempty"`
	AddedAt          int64  `json:"addedAt"`
	Thumb            string `json:"thumb,omitempty"`
}

// Fetch pulls the recently-added items of one section.
// Endpoint: GET /library/sections/{key}/recentlyAdded
func (c *Client) Fetch(ctx context.Context, section string) (*domain.Snapshot, error) {
	key, err := c.sectionKey(ctx, section)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	if c.containerSize > 0 {
		query.Set("X-Plex-Container-Size", fmt.Sprintf("%d", c.containerSize))
	}

	var resp mediaContainerResponse
	if err := c.doJSONRequest(ctx, "/library/sections/"+key+"/recentlyAdded", query, &resp); err != nil {
		return nil, err
	}

	snapshot := &domain.Snapshot{
		FetchedAt: time.Now().UTC(),
		Section:   section,
		Items:     make([]domain.Item, 0, len(resp.MediaContainer.Metadata)),
	}

	for _, md := range resp.MediaContainer.Metadata {
		item := domain.Item{
			ID:               md.RatingKey,
			Kind:             domain.Kind(md.Type),
			Title:            md.Title,
			Year:             md.Year,
			ParentTitle:      md.ParentTitle,
			GrandparentTitle: md.GrandparentTitle,
			SeasonIndex:      md.ParentIndex,
			EpisodeIndex:     md.Index,
			AddedAt:          time.Unix(md.AddedAt, 0).UTC(),
			Thumb:            md.Thumb,
			Section:          section,
		}
		if err := item.Validate(); err != nil {
			// A snapshot containing an item we cannot dedup is rejected
			// whole; silently including it would corrupt the diff.
			return nil, fmt.Errorf("%w: item %q in section %q: %v",
				domain.ErrSourceMalformed, md.Title, section, err)
		}
		snapshot.Items = append(snapshot.Items, item)
	}

	return snapshot, nil
}

// sectionKey resolves a section title to its numeric key, caching the
// directory listing after the first success.
func (c *Client) sectionKey(ctx context.Context, section string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sections == nil {
		var resp mediaContainerResponse
		if err := c.doJSONRequest(ctx, "/library/sections", nil, &resp); err != nil {
			return "", err
		}
		sections := make(map[string]string, len(resp.MediaContainer.Directories))
		for _, dir := range resp.MediaContainer.Directories {
			if dir.Key == "" || dir.Title == "" {
				continue
			}
			sections[strings.ToLower(dir.Title)] = dir.Key
		}
		c.sections = sections
	}

	key, ok := c.sections[strings.ToLower(section)]
	if !ok {
		c.sections = nil // refetch next cycle in case the library was renamed
		return "", fmt.Errorf("%w: library section %q not found", domain.ErrSourceMalformed, section)
	}
	return key, nil
}

func (c *Client) doJSONRequest(ctx context.Context, path string, query url.Values, out *mediaContainerResponse) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build plex request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: plex %s returned %d: %s",
			domain.ErrSourceUnavailable, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode plex response: %v", domain.ErrSourceMalformed, err)
	}
	return nil
}

var _ Source = (*Client)(nil)
