package feed

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/abelbrown/flick/internal/backend"
	"github.com/abelbrown/flick/internal/logging"
)

// Session owns all per-identity feed state: the page cache, the dedup
// sets, and the short-TTL social caches (memberships, following list).
// Constructed once at app start and Reset on login/logout, so nothing
// leaks across identities and tests get isolated instances instead of
// package-level globals.
type Session struct {
	mu       sync.RWMutex
	viewerID string

	client backend.Client

	Cache *Cache
	Dedup *DedupSet

	// social caches keyed by viewer id; these expire on a much shorter
	// TTL than the page cache and are invalidated separately.
	memberships *expirable.LRU[string, []string]
	following   *expirable.LRU[string, []string]
}

// SessionOptions configures a Session
type SessionOptions struct {
	CacheTTL      time.Duration
	MembershipTTL time.Duration
	MaxItems      int
	MaxExcluded   int
}

// NewSession creates a session around a backend client
func NewSession(client backend.Client, opts SessionOptions) *Session {
	return &Session{
		client:      client,
		Cache:       NewCache(opts.CacheTTL, opts.MaxItems),
		Dedup:       NewDedupSet(opts.MaxExcluded),
		memberships: expirable.NewLRU[string, []string](8, nil, opts.MembershipTTL),
		following:   expirable.NewLRU[string, []string](8, nil, opts.MembershipTTL),
	}
}

// SetViewer sets the current identity. A change wipes all cached feed
// state - the previous viewer's pages must never bleed into this one.
func (s *Session) SetViewer(viewerID string) {
	s.mu.Lock()
	changed := s.viewerID != viewerID
	s.viewerID = viewerID
	s.mu.Unlock()

	if changed {
		logging.Info("viewer changed, resetting feed state", "viewer", viewerID)
		s.Reset()
	}
}

// ViewerID returns the current identity, "" when signed out
func (s *Session) ViewerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewerID
}

// Reset wipes every cache the session owns
func (s *Session) Reset() {
	s.Cache.InvalidateAll()
	s.Dedup.ResetAll()
	s.memberships.Purge()
	s.following.Purge()
}

// Memberships returns the viewer's group ids, served from the short-TTL
// cache when possible.
func (s *Session) Memberships(ctx context.Context) ([]string, error) {
	viewer := s.ViewerID()
	if viewer == "" {
		return nil, nil
	}
	if ids, ok := s.memberships.Get(viewer); ok {
		return ids, nil
	}
	ids, err := s.client.Memberships(ctx, viewer)
	if err != nil {
		return nil, err
	}
	s.memberships.Add(viewer, ids)
	return ids, nil
}

// Following returns the ids the viewer follows, cached like memberships
func (s *Session) Following(ctx context.Context) ([]string, error) {
	viewer := s.ViewerID()
	if viewer == "" {
		return nil, nil
	}
	if ids, ok := s.following.Get(viewer); ok {
		return ids, nil
	}
	ids, err := s.client.Following(ctx, viewer)
	if err != nil {
		return nil, err
	}
	s.following.Add(viewer, ids)
	return ids, nil
}

// InvalidateSocial drops the social caches and the following feed.
// Called when the follow graph changes under us.
func (s *Session) InvalidateSocial() {
	s.mu.RLock()
	viewer := s.viewerID
	s.mu.RUnlock()

	s.following.Remove(viewer)
	s.memberships.Remove(viewer)
	s.Cache.Invalidate(Following)
	s.Dedup.Reset(Following)
}
