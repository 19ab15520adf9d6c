// Package coord provides background maintenance coordination for Flick.
package coord

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/flick/internal/feed"
	"github.com/abelbrown/flick/internal/logging"
	"github.com/abelbrown/flick/internal/store"
	"github.com/abelbrown/flick/internal/ui"
)

// refillInterval is the time between silent refill cycles.
const refillInterval = 2 * time.Minute

// sweepInterval is the time between cache maintenance cycles.
const sweepInterval = time.Minute

// refillTimeout is the timeout for each refill cycle.
const refillTimeout = 30 * time.Second

// cacheExpireAfter is how long an untouched cache entry survives a sweep.
const cacheExpireAfter = 15 * time.Minute

// positionRetention is how long saved playback offsets are kept.
const positionRetention = 30 * 24 * time.Hour

// refiller interface for dependency injection (testing).
type refiller interface {
	RefillSilently(ctx context.Context, ft feed.Type)
}

// pauser interface for dependency injection (testing).
type pauser interface {
	PauseAll()
}

// Coordinator manages background refills, cache sweeps, and the
// background/foreground lifecycle.
// Uses context cancellation as the ONLY stop mechanism.
type Coordinator struct {
	session  *feed.Session
	refiller refiller
	players  pauser
	store    *store.Store // optional: nil to skip persistence maintenance

	longAway time.Duration

	mu           sync.Mutex
	backgroundAt time.Time

	wg sync.WaitGroup
}

// NewCoordinator creates a Coordinator.
// The store is optional (nil to skip position pruning).
func NewCoordinator(session *feed.Session, r refiller, p pauser, s *store.Store, longAway time.Duration) *Coordinator {
	if longAway <= 0 {
		longAway = 30 * time.Minute
	}
	return &Coordinator{
		session:  session,
		refiller: r,
		players:  p,
		store:    s,
		longAway: longAway,
	}
}

// Start begins background maintenance. Call with a cancellable context.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		refill := time.NewTicker(refillInterval)
		defer refill.Stop()
		sweep := time.NewTicker(sweepInterval)
		defer sweep.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-refill.C:
				c.refillAll(ctx)
			case <-sweep.C:
				c.sweepOnce()
			}
		}
	}()
}

// Wait blocks until the background goroutine exits.
// Call after canceling the context passed to Start.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// OnBackground is called when the app loses focus. Playback stops
// immediately; the timestamp decides what happens on return.
func (c *Coordinator) OnBackground() {
	c.mu.Lock()
	c.backgroundAt = time.Now()
	c.mu.Unlock()

	if c.players != nil {
		c.players.PauseAll()
	}
	logging.Debug("app backgrounded, playback paused")
}

// OnForeground is called when the app regains focus.
// A short absence resumes in place; past the threshold the feed
// position is stale and the caller gets a SessionResumed with
// LongAway set so the UI jumps to the top and refreshes.
func (c *Coordinator) OnForeground(program *tea.Program) {
	msg, ok := c.resumeMessage(time.Now())
	if !ok {
		return
	}
	if program != nil {
		program.Send(msg)
	}
}

// resumeMessage consumes the background timestamp and decides whether
// the absence crossed the long-away threshold.
func (c *Coordinator) resumeMessage(now time.Time) (ui.SessionResumed, bool) {
	c.mu.Lock()
	at := c.backgroundAt
	c.backgroundAt = time.Time{}
	c.mu.Unlock()

	if at.IsZero() {
		return ui.SessionResumed{}, false
	}

	away := now.Sub(at)
	long := away >= c.longAway
	logging.Info("app foregrounded", "away", away.Round(time.Second), "long", long)
	return ui.SessionResumed{LongAway: long}, true
}

// refillAll silently tops up every feed the viewer has loaded.
// Skipped entirely while the app is backgrounded.
func (c *Coordinator) refillAll(ctx context.Context) {
	c.mu.Lock()
	backgrounded := !c.backgroundAt.IsZero()
	c.mu.Unlock()
	if backgrounded || c.refiller == nil {
		return
	}

	refillCtx, cancel := context.WithTimeout(ctx, refillTimeout)
	defer cancel()

	for _, ft := range []feed.Type{feed.ForYou, feed.Following} {
		if ctx.Err() != nil {
			return
		}
		c.refiller.RefillSilently(refillCtx, ft)
	}
}

// sweepOnce evicts expired cache entries and prunes stale persisted state.
func (c *Coordinator) sweepOnce() {
	if c.session != nil {
		c.session.Cache.Sweep(time.Now(), cacheExpireAfter)
	}
	if c.store != nil {
		if n, err := c.store.PrunePositions(time.Now().Add(-positionRetention)); err != nil {
			logging.Warn("position prune failed", "error", err)
		} else if n > 0 {
			logging.Debug("pruned stale positions", "count", n)
		}
	}
}
