package feed

import (
	"sync"
	"time"

	"github.com/abelbrown/flick/internal/backend"
)

// Type names a feed slice with independent cache, cursor, and dedup state
type Type string

const (
	ForYou    Type = "for-you"
	Following Type = "following"
)

// Entry is the cached page state for one feed type
type Entry struct {
	Items     []Item
	Users     map[string]UserSummary
	FetchedAt time.Time
	Cursor    backend.Cursor
	HasMore   bool
}

// clone returns a shallow-copied snapshot so callers can't mutate the
// cache's backing slices from outside the engine.
func (e *Entry) clone() *Entry {
	out := &Entry{
		FetchedAt: e.FetchedAt,
		Cursor:    e.Cursor,
		HasMore:   e.HasMore,
	}
	out.Items = make([]Item, len(e.Items))
	copy(out.Items, e.Items)
	out.Users = make(map[string]UserSummary, len(e.Users))
	for k, v := range e.Users {
		out.Users[k] = v
	}
	return out
}

// Cache holds the fetched page per feed type. All mutation flows through
// the paginator and merger; UI surfaces only ever see snapshots.
type Cache struct {
	mu       sync.RWMutex
	entries  map[Type]*Entry
	ttl      time.Duration
	maxItems int
}

// NewCache creates a cache with the given TTL and per-feed item cap
func NewCache(ttl time.Duration, maxItems int) *Cache {
	return &Cache{
		entries:  make(map[Type]*Entry),
		ttl:      ttl,
		maxItems: maxItems,
	}
}

// Get returns a snapshot of the entry for a feed type, if present
func (c *Cache) Get(ft Type) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[ft]
	if !ok {
		return nil, false
	}
	return e.clone(), true
}

// Fresh reports whether the entry exists and is younger than the TTL
func (c *Cache) Fresh(ft Type, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[ft]
	return ok && now.Sub(e.FetchedAt) < c.ttl
}

// Put replaces the entry for a feed type, enforcing the item cap and
// trimming users to exactly the set the items reference.
func (c *Cache) Put(ft Type, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ft] = c.trim(e.clone())
}

// Mutate applies fn to the live entry under the write lock, creating an
// empty entry first if none exists. Caps are re-enforced afterward.
// This is how the merger prepends and counter patches land without a
// read-modify-write race against a concurrent page append.
func (c *Cache) Mutate(ft Type, fn func(*Entry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[ft]
	if !ok {
		e = &Entry{Users: make(map[string]UserSummary)}
		c.entries[ft] = e
	}
	fn(e)
	c.entries[ft] = c.trim(e)
}

// Invalidate drops the entry for one feed type
func (c *Cache) Invalidate(ft Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, ft)
}

// InvalidateAll drops every entry. Called on identity change.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Type]*Entry)
}

// Sweep evicts entries older than the TTL multiple given and re-trims
// oversized lists. Run periodically by the coordinator.
func (c *Cache) Sweep(now time.Time, expireAfter time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for ft, e := range c.entries {
		if now.Sub(e.FetchedAt) > expireAfter {
			delete(c.entries, ft)
			evicted++
			continue
		}
		c.entries[ft] = c.trim(e)
	}
	return evicted
}

// trim enforces the item cap (oldest trimmed first; the list is
// created-at descending, so oldest means the tail) and drops user
// summaries no remaining item references.
func (c *Cache) trim(e *Entry) *Entry {
	if c.maxItems > 0 && len(e.Items) > c.maxItems {
		e.Items = e.Items[:c.maxItems]
	}

	referenced := make(map[string]bool, len(e.Items))
	for _, it := range e.Items {
		referenced[it.AuthorID] = true
	}
	for id := range e.Users {
		if !referenced[id] {
			delete(e.Users, id)
		}
	}
	return e
}
