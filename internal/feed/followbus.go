package feed

import (
	"sync"

	"github.com/abelbrown/flick/internal/backend"
)

// FollowBus is a small pub/sub for social-graph changes. The feed layer
// subscribes to invalidate the following feed; UI surfaces subscribe to
// repaint follow buttons. Subscribe returns a disposer so callers clean
// up without manual bookkeeping.
type FollowBus struct {
	mu   sync.Mutex
	subs map[int]func(backend.FollowEvent)
	next int
}

// NewFollowBus creates an empty bus
func NewFollowBus() *FollowBus {
	return &FollowBus{subs: make(map[int]func(backend.FollowEvent))}
}

// Subscribe registers a handler and returns its disposer
func (b *FollowBus) Subscribe(fn func(backend.FollowEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers an event to every subscriber
func (b *FollowBus) Publish(ev backend.FollowEvent) {
	b.mu.Lock()
	handlers := make([]func(backend.FollowEvent), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// BindSession wires the bus to a session: any follow change involving
// the viewer invalidates the following feed cache and social caches.
func (b *FollowBus) BindSession(s *Session) func() {
	return b.Subscribe(func(ev backend.FollowEvent) {
		if ev.FollowerID == s.ViewerID() {
			s.InvalidateSocial()
		}
	})
}
