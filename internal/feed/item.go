// Package feed implements the client-side feed engine: the item model,
// per-feed-type page cache, session dedup, the pagination pipeline, and
// the realtime merge of server-pushed posts.
package feed

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/abelbrown/flick/internal/backend"
)

// Kind is the content kind of a feed item
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindMixed Kind = "mixed"
)

// Visibility is the audience scope of an item
type Visibility string

const (
	VisibilityPublic Visibility = "public"
	VisibilityGroup  Visibility = "group"
)

// MediaKind tags one media reference
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Media is the single normalized media shape every consumer works
// against. The server emits several historical forms; NormalizeMedia
// folds them all into this one at the boundary.
type Media struct {
	Kind           MediaKind
	URL            string
	PosterURL      string
	DurationMillis int64
}

// UserSummary is the author info rendered alongside an item
type UserSummary struct {
	ID        string
	Handle    string
	Name      string
	AvatarURL string
}

// Counters holds engagement numbers. Updated by patch events only;
// the item from the original fetch is never mutated in place.
type Counters struct {
	Likes    int
	Comments int
	Shares   int
}

// Item is one renderable feed unit. Immutable once placed in a list.
// IDs are stable and unique per feed item but not across feed types.
type Item struct {
	ID         string
	AuthorID   string
	AuthorName string // filled by enrichment, may be empty on degrade
	Kind       Kind
	Body       string
	Media      []Media
	CreatedAt  time.Time
	Counters   Counters
	Visibility Visibility
	GroupID    string
	GroupName  string // filled by enrichment
}

// Playable reports whether the item has at least one resolvable video URL
func (it Item) Playable() bool {
	for _, m := range it.Media {
		if m.Kind == MediaVideo && m.URL != "" {
			return true
		}
	}
	return false
}

// ItemFromRow converts a raw server row into an Item, normalizing the
// media payload. ok is false for ghost items: a video row with no
// resolvable playable URL is dropped before it can reach the UI.
func ItemFromRow(row backend.PostRow) (Item, bool) {
	it := Item{
		ID:        row.ID,
		AuthorID:  row.AuthorID,
		Kind:      Kind(row.Kind),
		Body:      row.Body,
		Media:     NormalizeMedia(Kind(row.Kind), row.Media),
		CreatedAt: row.CreatedAt,
		Counters: Counters{
			Likes:    row.Likes,
			Comments: row.Comments,
			Shares:   row.Shares,
		},
		Visibility: Visibility(row.Visibility),
		GroupID:    row.GroupID,
	}
	if it.Visibility == "" {
		it.Visibility = VisibilityPublic
	}

	if it.ID == "" || it.AuthorID == "" {
		return Item{}, false
	}

	// Ghost rule: video content with nothing playable never renders
	if (it.Kind == KindVideo || it.Kind == KindMixed) && !it.Playable() {
		if it.Kind == KindVideo {
			return Item{}, false
		}
		// mixed items survive on their non-video media
		if len(it.Media) == 0 {
			return Item{}, false
		}
	}

	return it, true
}

// rawMedia covers the typed-object media form plus every legacy field
// name the server has ever used for the URL.
type rawMedia struct {
	Kind       string `json:"kind,omitempty"`
	Type       string `json:"type,omitempty"` // older alias for kind
	URL        string `json:"url,omitempty"`
	URI        string `json:"uri,omitempty"`
	Src        string `json:"src,omitempty"`
	VideoURL   string `json:"videoUrl,omitempty"`
	ImageURL   string `json:"imageUrl,omitempty"`
	PosterURL  string `json:"poster_url,omitempty"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// NormalizeMedia parses the polymorphic media payload into the one
// internal shape. Accepted forms:
//
//	"https://cdn/x.mp4"                      single URL string
//	["https://a.jpg", "https://b.jpg"]       array of URL strings
//	[{"kind":"video","url":...}, ...]        array of typed objects
//	{"videoUrl": ...}                        legacy single object
//
// Unresolvable entries are dropped; the ghost rule decides what that
// means for the item as a whole.
func NormalizeMedia(kind Kind, raw json.RawMessage) []Media {
	if len(raw) == 0 {
		return nil
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	switch trimmed[0] {
	case '"':
		var u string
		if err := json.Unmarshal(raw, &u); err != nil || u == "" {
			return nil
		}
		return []Media{{Kind: inferMediaKind(kind, u, ""), URL: u}}

	case '[':
		// Could be strings or typed objects; try objects first since a
		// string array also decodes element-wise below.
		var objs []rawMedia
		if err := json.Unmarshal(raw, &objs); err == nil {
			out := make([]Media, 0, len(objs))
			for _, o := range objs {
				if m, ok := o.normalize(kind); ok {
					out = append(out, m)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
		var urls []string
		if err := json.Unmarshal(raw, &urls); err == nil {
			out := make([]Media, 0, len(urls))
			for _, u := range urls {
				if u == "" {
					continue
				}
				out = append(out, Media{Kind: inferMediaKind(kind, u, ""), URL: u})
			}
			return out
		}
		return nil

	case '{':
		var o rawMedia
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil
		}
		if m, ok := o.normalize(kind); ok {
			return []Media{m}
		}
		return nil
	}
	return nil
}

// normalize resolves a rawMedia to the internal shape, ok=false when no
// usable URL exists under any of the known field names.
func (o rawMedia) normalize(itemKind Kind) (Media, bool) {
	u := firstNonEmpty(o.URL, o.URI, o.Src, o.VideoURL, o.ImageURL)
	if u == "" {
		return Media{}, false
	}

	declared := firstNonEmpty(o.Kind, o.Type)
	var mk MediaKind
	switch declared {
	case "video":
		mk = MediaVideo
	case "image", "photo":
		mk = MediaImage
	default:
		hint := ""
		if o.VideoURL != "" {
			hint = "video"
		} else if o.ImageURL != "" {
			hint = "image"
		}
		mk = inferMediaKind(itemKind, u, hint)
	}

	return Media{
		Kind:           mk,
		URL:            u,
		PosterURL:      firstNonEmpty(o.PosterURL, o.Thumbnail),
		DurationMillis: o.DurationMs,
	}, true
}

// inferMediaKind guesses a media kind from the item kind, URL extension,
// and any field-name hint, in that order of weakness.
func inferMediaKind(itemKind Kind, u, hint string) MediaKind {
	switch hint {
	case "video":
		return MediaVideo
	case "image":
		return MediaImage
	}

	lower := strings.ToLower(u)
	for _, ext := range []string{".mp4", ".m3u8", ".webm", ".mov"} {
		if strings.Contains(lower, ext) {
			return MediaVideo
		}
	}
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp"} {
		if strings.Contains(lower, ext) {
			return MediaImage
		}
	}

	if itemKind == KindVideo {
		return MediaVideo
	}
	return MediaImage
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
