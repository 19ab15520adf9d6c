// Package backend is the wire boundary to the hosted feed service.
//
// The backend owns ranking; this client treats it as an opaque oracle
// that returns rows in created-at descending order, supports cursor
// continuation, and honors an excluded-ids filter. Anything beyond that
// contract is the server's business.
package backend

import (
	"encoding/json"
	"time"
)

// Cursor is the pagination continuation token: the (created_at, id)
// pair of the last row a previous page walked past. Stable under
// concurrent inserts, unlike offsets.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

// IsZero reports whether the cursor is unset (first page)
func (c Cursor) IsZero() bool {
	return c.ID == "" && c.CreatedAt.IsZero()
}

// FeedQuery is one ranked-feed request
type FeedQuery struct {
	ViewerID    string   `json:"viewer_id"`
	FeedType    string   `json:"feed_type"`
	Limit       int      `json:"limit"`
	ExcludeIDs  []string `json:"exclude_ids,omitempty"`
	Memberships []string `json:"memberships,omitempty"`
	Cursor      *Cursor  `json:"cursor,omitempty"`
}

// PostRow is a raw feed row as the server returns it. Media is kept raw
// because the server emits several historical shapes; normalization
// happens in one place on the client (feed.NormalizeMedia).
type PostRow struct {
	ID         string          `json:"id"`
	AuthorID   string          `json:"author_id"`
	Kind       string          `json:"kind"` // text, image, video, mixed
	Body       string          `json:"body,omitempty"`
	Media      json.RawMessage `json:"media,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Likes      int             `json:"likes"`
	Comments   int             `json:"comments"`
	Shares     int             `json:"shares"`
	Visibility string          `json:"visibility"` // public, group
	GroupID    string          `json:"group_id,omitempty"`
	Hidden     bool            `json:"hidden,omitempty"` // moderation flag
}

// UserRow is a user summary as the server returns it
type UserRow struct {
	ID        string `json:"id"`
	Handle    string `json:"handle"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// FollowEvent is a social-graph change pushed over the realtime boundary
type FollowEvent struct {
	FollowerID string    `json:"follower_id"`
	FolloweeID string    `json:"followee_id"`
	Following  bool      `json:"following"` // false on unfollow
	At         time.Time `json:"at"`
}

// CounterPatch updates engagement counters for a live item. Counters
// arrive as patches; the original fetch result is never mutated server-side.
type CounterPatch struct {
	PostID   string `json:"post_id"`
	Likes    int    `json:"likes"`
	Comments int    `json:"comments"`
	Shares   int    `json:"shares"`
}
