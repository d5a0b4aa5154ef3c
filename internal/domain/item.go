package domain

import "time"

// Kind is the media type of a library item, as reported by the Plex API's
// "type" field.
type Kind string

const (
	KindMovie   Kind = "movie"
	KindShow    Kind = "show"
	KindSeason  Kind = "season"
	KindEpisode Kind = "episode"
	KindTrack   Kind = "track"
	KindAlbum   Kind = "album"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindMovie, KindShow, KindSeason, KindEpisode, KindTrack, KindAlbum:
		return true
	}
	return false
}

// Item is a single unit of library content eligible for announcement.
// Identity is solely the ID (the Plex ratingKey); all other fields are
// display metadata and never participate in dedup.
type Item struct {
	ID               string    `json:"id"`
	Kind             Kind      `json:"kind"`
	Title            string    `json:"title"`
	Year             int       `json:"year,omitempty"`
	ParentTitle      string    `json:"parent_title,omitempty"`      // season / album
	GrandparentTitle string    `json:"grandparent_title,omitempty"` // show / artist
	SeasonIndex      int       `json:"season_index,omitempty"`
	EpisodeIndex     int       `json:"episode_index,omitempty"`
	AddedAt          time.Time `json:"added_at"`
	Thumb            string    `json:"thumb,omitempty"` // artwork path, may be empty
	Section          string    `json:"section"`         // library section the item came from
}

// Validate enforces the fetcher's well-formedness contract. An item without
// a stable identifier cannot be deduped and must be rejected outright.
func (i *Item) Validate() error {
	if i.ID == "" {
		return ErrMissingIdentifier
	}
	if !i.Kind.IsValid() {
		return ErrUnknownKind
	}
	return nil
}

// DisplayTitle is the title used in announcements. Episodes and tracks are
// attributed to their show/artist; everything else stands on its own.
func (i *Item) DisplayTitle() string {
	switch i.Kind {
	case KindEpisode, KindTrack:
		if i.GrandparentTitle != "" {
			return i.GrandparentTitle
		}
	}
	return i.Title
}

// Snapshot is the set of items observed in one fetch. It exists only within
// a cycle and is never persisted.
type Snapshot struct {
	Items     []Item
	FetchedAt time.Time
	Section   string
}

// Payload is the channel-ready message for one item, shaped as a Discord
// webhook body with a single embed. Discarded after dispatch.
type Payload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed mirrors the subset of Discord's embed object the formatter emits.
type Embed struct {
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	URL         string          `json:"url,omitempty"`
	Color       int             `json:"color,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
	Thumbnail   *EmbedThumbnail `json:"thumbnail,omitempty"`
}

type EmbedThumbnail struct {
	URL string `json:"url"`
}

// SeenSet is the durable record of identifiers already announced.
type SeenSet map[string]struct{}

func (s SeenSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

func (s SeenSet) Add(id string) {
	s[id] = struct{}{}
}
