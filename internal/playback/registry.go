// Package playback coordinates video players so at most one plays at a time.
//
// Every mounted player registers itself with pause/stop callbacks. Claiming
// the playback slot pauses every other registered player before the claimant
// is allowed to play. The slot is the only piece of shared play state in the
// app; nothing else may flip a player's play state without a claim.
package playback

import (
	"sync"

	"github.com/abelbrown/flick/internal/logging"
)

// PauseFunc pauses a player. Called best-effort during claims; a panicking
// callback is isolated and must not prevent other players from pausing.
type PauseFunc func()

// entry is one registered player
type entry struct {
	id       string
	priority int
	pause    PauseFunc
	stop     PauseFunc // optional, nil if the player cannot hard-stop
}

// Registry tracks all mounted players and the single active claim.
//
// Priority is advisory metadata only: a successful Claim pauses everyone
// else regardless of relative priority. Last claim wins. Callers rely on
// this - a fullscreen view that registers with low priority must still win
// when it claims - so do not make claims priority-preemptive.
type Registry struct {
	claimMu sync.Mutex // serializes Claim/PauseAll end to end

	mu      sync.RWMutex
	players map[string]*entry
	active  string // id of the claim holder, "" if none
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		players: make(map[string]*entry),
	}
}

// Register adds or updates a player. Idempotent: re-registering the same id
// replaces its callbacks and priority. Registering before the underlying
// player is ready is tolerated - the claim simply has no visible effect
// until the player catches up.
func (r *Registry) Register(id string, priority int, pause PauseFunc, stop PauseFunc) {
	if id == "" || pause == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players[id] = &entry{id: id, priority: priority, pause: pause, stop: stop}
}

// Unregister removes a player. If it held the active claim, the claim is
// cleared so a stale entry can never block future claims.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.players, id)
	if r.active == id {
		r.active = ""
	}
}

// Claim makes id the sole active player. Returns false if id was never
// registered. On success every other registered player's pause callback has
// been invoked before Claim returns - there is no window in which two
// players are both cleared to play.
func (r *Registry) Claim(id string) bool {
	r.claimMu.Lock()
	defer r.claimMu.Unlock()

	r.mu.Lock()
	if _, ok := r.players[id]; !ok {
		r.mu.Unlock()
		return false
	}
	others := make([]*entry, 0, len(r.players))
	for pid, e := range r.players {
		if pid != id {
			others = append(others, e)
		}
	}
	r.active = id
	r.mu.Unlock()

	for _, e := range others {
		safePause(e)
	}
	return true
}

// Release clears the active claim, but only if id currently holds it.
// A stale release (the claim moved on) is a no-op, never an error.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == id {
		r.active = ""
	}
}

// PauseAll pauses every registered player and clears the claim.
// Called unconditionally when the app is backgrounded.
func (r *Registry) PauseAll() {
	r.claimMu.Lock()
	defer r.claimMu.Unlock()

	r.mu.Lock()
	all := make([]*entry, 0, len(r.players))
	for _, e := range r.players {
		all = append(all, e)
	}
	r.active = ""
	r.mu.Unlock()

	for _, e := range all {
		safePause(e)
	}
}

// Active reports whether id holds the current claim
func (r *Registry) Active(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active != "" && r.active == id
}

// ActiveID returns the id of the claim holder, "" if none
func (r *Registry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Count returns the number of registered players
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// safePause invokes a pause callback, isolating panics so one broken
// player (typically an already-unmounted view) cannot leave the rest
// of the registry unpaused.
func safePause(e *entry) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Warn("player pause callback panicked", "player", e.id, "panic", rec)
		}
	}()
	e.pause()
}
