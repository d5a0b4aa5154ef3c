// Package format converts library items into channel-ready Discord webhook
// payloads. Formatting is total over validated items: missing optional
// fields degrade to omitted embed sections, never to an error.
package format

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/plexwatch/announcer/internal/config"
	"github.com/plexwatch/announcer/internal/domain"
)

// yearSuffix matches titles that already end with a year in parentheses,
// e.g. "The Flash (2014)", so the year is not appended twice.
var yearSuffix = regexp.MustCompile(`\([12][0-9]{3}\)$`)

// Formatter builds announcement payloads. artBaseURL/artToken are the Plex
// server address and token used to resolve artwork paths into fetchable
// thumbnail URLs; thumbnails are skipped entirely when disabled or when the
// item carries no artwork reference.
type Formatter struct {
	embed      config.EmbedConfig
	artBaseURL string
	artToken   string
}

func New(embed config.EmbedConfig, artBaseURL, artToken string) *Formatter {
	return &Formatter{
		embed:      embed,
		artBaseURL: strings.TrimRight(artBaseURL, "/"),
		artToken:   artToken,
	}
}

// Payload renders one item into a webhook body with a single embed.
func (f *Formatter) Payload(item domain.Item) domain.Payload {
	embed := domain.Embed{
		Title:       f.title(item),
		Description: f.description(item),
		Color:       f.colour(item.Kind),
	}

	if !item.AddedAt.IsZero() {
		embed.Timestamp = item.AddedAt.Format(time.RFC3339)
	}

	if f.embed.Thumbnail && item.Thumb != "" && f.artBaseURL != "" {
		embed.Thumbnail = &domain.EmbedThumbnail{URL: f.artworkURL(item.Thumb)}
	}

	return domain.Payload{Embeds: []domain.Embed{embed}}
}

func (f *Formatter) title(item domain.Item) string {
	switch item.Kind {
	case domain.KindEpisode:
		return fmt.Sprintf("New Episode %s", f.embed.ShowEmote)
	case domain.KindSeason, domain.KindShow:
		return fmt.Sprintf("New Show Content %s", f.embed.ShowEmote)
	case domain.KindMovie:
		return fmt.Sprintf("New Movie %s", f.embed.MovieEmote)
	default:
		return "New Media"
	}
}

func (f *Formatter) description(item domain.Item) string {
	var b strings.Builder
	bullet := f.embed.Bullet
	if bullet != "" {
		bullet += " "
	}

	b.WriteString(bullet)
	b.WriteString("**")
	b.WriteString(cleanYear(item.DisplayTitle(), item.Year))
	b.WriteString("**")

	if item.Kind == domain.KindEpisode {
		if item.SeasonIndex > 0 && item.EpisodeIndex > 0 {
			fmt.Fprintf(&b, "\n%sS%02dE%02d", bullet, item.SeasonIndex, item.EpisodeIndex)
			if item.Title != "" {
				fmt.Fprintf(&b, " — *%s*", item.Title)
			}
		} else if item.Title != "" {
			fmt.Fprintf(&b, "\n%s*%s*", bullet, item.Title)
		}
	}

	if item.Section != "" {
		fmt.Fprintf(&b, "\n%sAdded to *%s*", bullet, item.Section)
	}

	return trimOnNewlines(b.String(), f.embed.MaxDescription, f.embed.OverflowFooter)
}

func (f *Formatter) colour(kind domain.Kind) int {
	switch kind {
	case domain.KindMovie:
		return f.embed.MovieColour
	case domain.KindTrack, domain.KindAlbum:
		return f.embed.MusicColour
	default:
		return f.embed.ShowColour
	}
}

// artworkURL turns a Plex artwork path (e.g. /library/metadata/42/thumb/1)
// into a URL the channel can fetch.
func (f *Formatter) artworkURL(thumb string) string {
	if !strings.HasPrefix(thumb, "/") {
		thumb = "/" + thumb
	}
	u := f.artBaseURL + thumb
	if f.artToken != "" {
		u += "?X-Plex-Token=" + url.QueryEscape(f.artToken)
	}
	return u
}

// cleanYear appends the release year to a title unless the title already
// ends with one, avoiding "The Flash (2014) (2014)".
func cleanYear(title string, year int) string {
	if year <= 0 || yearSuffix.MatchString(title) {
		return title
	}
	return fmt.Sprintf("%s (%d)", title, year)
}

// trimOnNewlines clamps s to maxLen, cutting at the last newline before the
// limit so no partial line survives, and appends the overflow footer when a
// cut happened. maxLen <= 0 disables clamping.
func trimOnNewlines(s string, maxLen int, footer string) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	end := strings.LastIndex(s[:maxLen], "\n")
	if end < 0 {
		// No line boundary fits; cut at the limit but never inside a rune.
		end = maxLen
		for end > 0 && !utf8.RuneStart(s[end]) {
			end--
		}
	}
	trimmed := s[:end]
	if footer != "" {
		trimmed += "\n\n**" + footer + "**"
	}
	return trimmed
}
