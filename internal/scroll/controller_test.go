package scroll

import (
	"testing"
	"time"
)

const itemHeight = 800.0

func testTuning() Tuning {
	return DefaultTuning(itemHeight)
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('a' + i))
	}
	return out
}

// recorder collects change notifications
type recorder struct {
	changes []Change
}

func (r *recorder) notify(ch Change) {
	r.changes = append(r.changes, ch)
}

func newTestController(n int) (*Controller, *recorder) {
	rec := &recorder{}
	c := NewController(testTuning(), rec.notify)
	c.SetItems(ids(n))
	return c, rec
}

func TestSettleComputesClampedIndex(t *testing.T) {
	tests := []struct {
		name   string
		offset float64
		want   int
	}{
		{"exact page", 2 * itemHeight, 2},
		{"rounds down", 2.4 * itemHeight, 2},
		{"rounds up", 2.6 * itemHeight, 3},
		{"clamps low", -300, 0},
		{"clamps high", 99 * itemHeight, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestController(5)
			now := time.Now()
			c.DragStart(0, now)
			c.DragEnd(tt.offset, now)
			c.Settle(tt.offset, now)
			if idx, _ := c.Current(); idx != tt.want {
				t.Errorf("index = %d, want %d", idx, tt.want)
			}
			if c.Phase() != PhaseIdle {
				t.Errorf("phase = %v, want idle", c.Phase())
			}
		})
	}
}

func TestPhaseTransitions(t *testing.T) {
	c, _ := newTestController(5)
	now := time.Now()

	if c.Phase() != PhaseIdle {
		t.Fatalf("initial phase = %v", c.Phase())
	}
	c.DragStart(0, now)
	if c.Phase() != PhaseDragging {
		t.Fatalf("after drag start: %v", c.Phase())
	}
	c.DragEnd(400, now)
	if c.Phase() != PhaseSettling {
		t.Fatalf("after drag end: %v", c.Phase())
	}
	c.Settle(itemHeight, now)
	if c.Phase() != PhaseIdle {
		t.Fatalf("after settle: %v", c.Phase())
	}
}

// The platform defect: a fast forward drag settles at the destination,
// then a second settle jumps backward. The backward report must be
// rejected and a corrective scroll to the first destination issued.
func TestBounceCorrection(t *testing.T) {
	c, rec := newTestController(10)
	now := time.Now()

	// Big forward drag from page 0 toward page 3
	c.DragStart(0, now)
	c.DragEnd(2.5*itemHeight, now)
	if corr := c.Settle(3*itemHeight, now.Add(50*time.Millisecond)); corr != nil {
		t.Fatal("first settle should be trusted")
	}
	if idx, _ := c.Current(); idx != 3 {
		t.Fatalf("after first settle index = %d, want 3", idx)
	}

	// Spurious corrective settle backward within the window
	corr := c.Settle(2.3*itemHeight, now.Add(200*time.Millisecond))
	if corr == nil {
		t.Fatal("backward settle should be detected as bounce")
	}
	if corr.Index != 3 {
		t.Errorf("correction target = %d, want 3", corr.Index)
	}
	if idx, _ := c.Current(); idx != 3 {
		t.Errorf("bounce was applied: index = %d, want 3", idx)
	}

	// Exactly one change notification (0 -> 3)
	if len(rec.changes) != 1 || rec.changes[0].Index != 3 {
		t.Errorf("changes = %+v, want one change to index 3", rec.changes)
	}
}

func TestBounceCooldownSuppressesOscillation(t *testing.T) {
	c, _ := newTestController(10)
	now := time.Now()

	c.DragStart(0, now)
	c.DragEnd(2.5*itemHeight, now)
	c.Settle(3*itemHeight, now.Add(50*time.Millisecond))

	if corr := c.Settle(2.3*itemHeight, now.Add(150*time.Millisecond)); corr == nil {
		t.Fatal("expected first correction")
	}

	// Another backward settle right after: inside the cooldown, trusted
	// normally rather than corrected again.
	corr := c.Settle(2*itemHeight, now.Add(300*time.Millisecond))
	if corr != nil {
		t.Error("second correction within cooldown should be suppressed")
	}
}

func TestSmallDragIsNotABounce(t *testing.T) {
	c, _ := newTestController(10)
	now := time.Now()

	// Tiny drag: any follow-up settle is trusted
	c.DragStart(2*itemHeight, now)
	c.DragEnd(2*itemHeight+50, now)
	c.Settle(2*itemHeight, now.Add(30*time.Millisecond))

	if corr := c.Settle(1*itemHeight, now.Add(100*time.Millisecond)); corr != nil {
		t.Error("small drag should never trigger correction")
	}
	if idx, _ := c.Current(); idx != 1 {
		t.Errorf("second settle should be applied, index = %d", idx)
	}
}

func TestSubPixelSecondSettleTrusted(t *testing.T) {
	c, _ := newTestController(10)
	now := time.Now()

	c.DragStart(0, now)
	c.DragEnd(2.5*itemHeight, now)
	c.Settle(3*itemHeight, now.Add(30*time.Millisecond))

	// Backward but far below the noise floor
	if corr := c.Settle(3*itemHeight-20, now.Add(100*time.Millisecond)); corr != nil {
		t.Error("sub-pixel displacement should not correct")
	}
}

func TestLateSecondSettleTrusted(t *testing.T) {
	c, _ := newTestController(10)
	now := time.Now()

	c.DragStart(0, now)
	c.DragEnd(2.5*itemHeight, now)
	c.Settle(3*itemHeight, now)

	// Outside the detection window: a genuine new position
	corr := c.Settle(2*itemHeight, now.Add(2*time.Second))
	if corr != nil {
		t.Error("settle outside window should be trusted")
	}
	if idx, _ := c.Current(); idx != 2 {
		t.Errorf("index = %d, want 2", idx)
	}
}

func TestForwardSecondSettleTrusted(t *testing.T) {
	c, _ := newTestController(10)
	now := time.Now()

	c.DragStart(0, now)
	c.DragEnd(2.5*itemHeight, now)
	c.Settle(3*itemHeight, now.Add(30*time.Millisecond))

	// Same direction as the drag: continued scroll, not a bounce
	corr := c.Settle(4*itemHeight, now.Add(100*time.Millisecond))
	if corr != nil {
		t.Error("forward settle should be trusted")
	}
	if idx, _ := c.Current(); idx != 4 {
		t.Errorf("index = %d, want 4", idx)
	}
}

func TestViewabilityDebouncedWhileDragging(t *testing.T) {
	c, rec := newTestController(10)
	now := time.Now()

	c.DragStart(0, now)

	// Rapid-fire reports during a fast flick: only spaced ones land
	c.Viewability(1, now.Add(10*time.Millisecond))
	c.Viewability(2, now.Add(20*time.Millisecond)) // too soon, dropped
	c.Viewability(3, now.Add(30*time.Millisecond)) // too soon, dropped
	c.Viewability(4, now.Add(120*time.Millisecond))

	if idx, _ := c.Current(); idx != 4 {
		t.Errorf("index = %d, want 4", idx)
	}
	if len(rec.changes) != 2 {
		t.Errorf("got %d changes %v, want 2 (indexes 1 and 4)", len(rec.changes), rec.changes)
	}
}

func TestViewabilityNotDebouncedWhenIdle(t *testing.T) {
	c, _ := newTestController(10)
	now := time.Now()

	c.Viewability(1, now)
	c.Viewability(2, now.Add(5*time.Millisecond))

	if idx, _ := c.Current(); idx != 2 {
		t.Errorf("index = %d, want 2 (no debounce when idle)", idx)
	}
}

func TestInitialScrollGuardBlocksUpdates(t *testing.T) {
	c, rec := newTestController(10)
	now := time.Now()

	c.BeginInitialScroll("f") // index 5

	// Transit reports while animating toward the target
	c.Viewability(2, now)
	c.DragStart(0, now)
	c.DragEnd(3*itemHeight, now)
	c.Settle(3*itemHeight, now)

	if idx, _ := c.Current(); idx != 0 {
		t.Fatalf("guard violated: index moved to %d", idx)
	}
	if len(rec.changes) != 0 {
		t.Fatalf("changes emitted during initial scroll: %v", rec.changes)
	}

	c.FinishInitialScroll(now.Add(300 * time.Millisecond))
	idx, id := c.Current()
	if idx != 5 || id != "f" {
		t.Errorf("landed on (%d, %q), want (5, f)", idx, id)
	}
	if len(rec.changes) != 1 {
		t.Errorf("want exactly one change after landing, got %v", rec.changes)
	}
}

func TestPrependReanchorsWithoutNotification(t *testing.T) {
	c, rec := newTestController(5)
	now := time.Now()

	c.Viewability(2, now) // current = "c"
	before := len(rec.changes)

	// Realtime prepend shifts every index by one
	c.SetItems(append([]string{"new"}, ids(5)...))

	idx, id := c.Current()
	if id != "c" || idx != 3 {
		t.Errorf("current = (%d, %q), want (3, c): anchor to identity", idx, id)
	}
	if len(rec.changes) != before {
		t.Errorf("prepend must not emit a change notification")
	}
}

func TestAnchorLostClampsToNearest(t *testing.T) {
	c, _ := newTestController(5)
	now := time.Now()
	c.Viewability(4, now) // current = "e"

	// Item removed and list shrank past the old index
	c.SetItems(ids(3))

	idx, id := c.Current()
	if idx != 2 || id != "c" {
		t.Errorf("current = (%d, %q), want (2, c)", idx, id)
	}
}

func TestNoDuplicateNotificationForSameItem(t *testing.T) {
	c, rec := newTestController(5)
	now := time.Now()

	c.Viewability(2, now)
	c.DragStart(2*itemHeight, now.Add(time.Second))
	c.DragEnd(2*itemHeight, now.Add(time.Second))
	c.Settle(2*itemHeight, now.Add(time.Second))

	if len(rec.changes) != 1 {
		t.Errorf("settling on the same item re-notified: %v", rec.changes)
	}
}
