// Package scroll reconciles a paged, one-item-per-viewport list with the
// notion of a single "current" item.
//
// The controller is a pure state machine over gesture events (drag begin,
// drag end, settle, viewability). It owns the decision of which item is
// current, compensates for a platform paging defect that fires a spurious
// backward settle after fast drags, and anchors the current item to its id
// so realtime prepends never silently shift what the viewer is looking at.
package scroll

import (
	"math"
	"time"

	"github.com/abelbrown/flick/internal/logging"
)

// Phase is the gesture phase of the pager
type Phase int

const (
	// PhaseIdle means the list is at rest on one item
	PhaseIdle Phase = iota
	// PhaseDragging means the user's finger is down
	PhaseDragging
	// PhaseSettling means the gesture ended and momentum is decaying
	PhaseSettling
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDragging:
		return "dragging"
	case PhaseSettling:
		return "settling"
	default:
		return "unknown"
	}
}

// Tuning holds the empirically-tuned reconciliation thresholds.
// There is no principled formula behind these numbers - they compensate
// for observed scroll physics and vary by platform version. Load them
// from config; validate changes against real devices.
type Tuning struct {
	ItemHeight          float64       // viewport height of one page, in scroll units
	BounceWindow        time.Duration // two settles within this window may be a bounce
	MinDragPages        float64       // drag shorter than this can't have turned a page
	MinBouncePages      float64       // displacement below this is sub-pixel noise
	Cooldown            time.Duration // suppress further corrections after one fires
	ViewabilityDebounce time.Duration // min spacing of mid-drag viewability updates
}

// DefaultTuning returns thresholds matching the observed paging defect
func DefaultTuning(itemHeight float64) Tuning {
	return Tuning{
		ItemHeight:          itemHeight,
		BounceWindow:        350 * time.Millisecond,
		MinDragPages:        0.5,
		MinBouncePages:      0.2,
		Cooldown:            600 * time.Millisecond,
		ViewabilityDebounce: 80 * time.Millisecond,
	}
}

// Change reports that the settled current item changed
type Change struct {
	Index int
	ID    string
}

// Correction instructs the caller to re-scroll to the originally
// intended page after a detected bounce.
type Correction struct {
	Index int
	ID    string
}

// Controller binds scroll gestures to a current-item index.
// Not safe for concurrent use; drive it from the UI event loop.
type Controller struct {
	tuning Tuning
	notify func(Change)

	ids   []string
	phase Phase

	currentIndex   int
	currentID      string
	lastReportedID string

	dragStartOffset float64
	dragEndOffset   float64

	lastSettleOffset float64
	lastSettleAt     time.Time
	haveSettled      bool

	cooldownUntil time.Time

	lastViewabilityAt time.Time

	// initial-scroll guard: while a deep-link / restore-position scroll is
	// animating, settle and viewability reports describe transit positions
	// and must not move the current item.
	pendingInitialScroll bool
	initialTargetID      string
}

// NewController creates a controller. notify is invoked exactly once each
// time the settled current item's id changes (never mid initial scroll).
func NewController(tuning Tuning, notify func(Change)) *Controller {
	if tuning.ItemHeight <= 0 {
		tuning.ItemHeight = 1
	}
	return &Controller{
		tuning: tuning,
		notify: notify,
	}
}

// Phase returns the current gesture phase
func (c *Controller) Phase() Phase {
	return c.phase
}

// Current returns the settled index and item id
func (c *Controller) Current() (int, string) {
	return c.currentIndex, c.currentID
}

// SetItems replaces the id list backing the pager. The current item is
// re-anchored by identity: a realtime prepend shifts indexes, not the
// item the viewer is on. Emits no change notification for a pure shift.
func (c *Controller) SetItems(ids []string) {
	c.ids = ids
	if len(ids) == 0 {
		c.currentIndex = 0
		c.currentID = ""
		return
	}

	if c.currentID != "" {
		for i, id := range ids {
			if id == c.currentID {
				c.currentIndex = i
				return
			}
		}
	}

	// Anchor lost (item removed or first population): clamp and re-derive
	if c.currentIndex >= len(ids) {
		c.currentIndex = len(ids) - 1
	}
	if c.currentIndex < 0 {
		c.currentIndex = 0
	}
	c.currentID = ids[c.currentIndex]
}

// DragStart records the gesture origin and enters Dragging
func (c *Controller) DragStart(offset float64, now time.Time) {
	c.phase = PhaseDragging
	c.dragStartOffset = offset

	// A cooldown older than its window no longer protects anything
	if !c.cooldownUntil.IsZero() && now.After(c.cooldownUntil) {
		c.cooldownUntil = time.Time{}
	}
}

// DragEnd marks the start of momentum and enters Settling
func (c *Controller) DragEnd(offset float64, now time.Time) {
	if c.phase != PhaseDragging {
		return
	}
	c.phase = PhaseSettling
	c.dragEndOffset = offset
}

// Settle handles a momentum-end report at the given offset. Returns a
// non-nil Correction when the report is recognized as a spurious bounce
// and the caller should re-scroll to the indicated page.
func (c *Controller) Settle(offset float64, now time.Time) *Correction {
	prevPhase := c.phase
	c.phase = PhaseIdle

	if corr := c.detectBounce(prevPhase, offset, now); corr != nil {
		return corr
	}

	c.lastSettleOffset = offset
	c.lastSettleAt = now
	c.haveSettled = true

	c.applyIndex(c.clampIndex(offset))
	return nil
}

// detectBounce recognizes the double-settle pattern: a fast large drag
// settles at its destination, then the platform fires a second, smaller
// settle jumping backward. When all conditions hold, the second report
// is rejected and a corrective scroll to the first destination is issued.
func (c *Controller) detectBounce(prevPhase Phase, offset float64, now time.Time) *Correction {
	// A bounce is a second settle arriving at rest, not the first one
	// that ended the gesture.
	if prevPhase != PhaseIdle || !c.haveSettled {
		return nil
	}
	if !c.cooldownUntil.IsZero() && now.Before(c.cooldownUntil) {
		// Already corrected recently; trust nothing into an oscillation
		return nil
	}
	if now.Sub(c.lastSettleAt) > c.tuning.BounceWindow {
		return nil
	}

	drag := c.dragEndOffset - c.dragStartOffset
	if math.Abs(drag) < c.tuning.MinDragPages*c.tuning.ItemHeight {
		// Drag too small to have plausibly turned a page
		return nil
	}

	displacement := offset - c.lastSettleOffset
	if math.Abs(displacement) < c.tuning.MinBouncePages*c.tuning.ItemHeight {
		// Sub-pixel noise, not a real correction
		return nil
	}
	if displacement*drag > 0 {
		// Same direction as the drag: a genuine continued scroll
		return nil
	}

	target := c.clampIndex(c.lastSettleOffset)
	c.cooldownUntil = now.Add(c.tuning.Cooldown)
	logging.Debug("bounce detected, correcting",
		"target", target, "drag", drag, "displacement", displacement)

	var id string
	if target < len(c.ids) {
		id = c.ids[target]
	}
	return &Correction{Index: target, ID: id}
}

// Viewability handles a majority-visibility report for an index. It is the
// faster, secondary signal next to momentum-end. Mid-drag reports arriving
// faster than the debounce interval are dropped - fast flicks otherwise
// flicker the current item through every intermediate page.
func (c *Controller) Viewability(index int, now time.Time) {
	if c.pendingInitialScroll {
		return
	}
	if c.phase == PhaseDragging {
		if now.Sub(c.lastViewabilityAt) < c.tuning.ViewabilityDebounce {
			return
		}
	}
	c.lastViewabilityAt = now

	if index < 0 || index >= len(c.ids) {
		return
	}
	c.applyIndex(index)
}

// BeginInitialScroll sets the guard for a programmatic scroll to a target
// item (deep link, restore position). Until FinishInitialScroll, settle
// and viewability reports cannot move the current item.
func (c *Controller) BeginInitialScroll(targetID string) {
	c.pendingInitialScroll = true
	c.initialTargetID = targetID
}

// FinishInitialScroll clears the guard and lands on the target
func (c *Controller) FinishInitialScroll(now time.Time) {
	c.pendingInitialScroll = false
	target := c.initialTargetID
	c.initialTargetID = ""
	if target == "" {
		return
	}
	for i, id := range c.ids {
		if id == target {
			c.lastSettleAt = now
			c.haveSettled = true
			c.applyIndex(i)
			return
		}
	}
}

// InitialScrollPending reports whether the guard is set
func (c *Controller) InitialScrollPending() bool {
	return c.pendingInitialScroll
}

// clampIndex converts a scroll offset to a page index within bounds
func (c *Controller) clampIndex(offset float64) int {
	idx := int(math.Round(offset / c.tuning.ItemHeight))
	if idx < 0 {
		idx = 0
	}
	if n := len(c.ids); n > 0 && idx > n-1 {
		idx = n - 1
	}
	return idx
}

// applyIndex moves the current item and emits at most one change
// notification per settled identity change.
func (c *Controller) applyIndex(index int) {
	if c.pendingInitialScroll {
		return
	}
	if index < 0 || index >= len(c.ids) {
		return
	}

	c.currentIndex = index
	c.currentID = c.ids[index]

	if c.currentID != c.lastReportedID {
		c.lastReportedID = c.currentID
		if c.notify != nil {
			c.notify(Change{Index: index, ID: c.currentID})
		}
	}
}
