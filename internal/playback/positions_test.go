package playback

import (
	"fmt"
	"testing"
)

func TestPositionsSaveGet(t *testing.T) {
	p, err := NewPositions(10, 0)
	if err != nil {
		t.Fatal(err)
	}

	p.Save("item1", 5000)
	if got := p.Get("item1"); got != 5000 {
		t.Errorf("Get = %d, want 5000", got)
	}

	// Overwrite with a newer offset
	p.Save("item1", 7500)
	if got := p.Get("item1"); got != 7500 {
		t.Errorf("Get after overwrite = %d, want 7500", got)
	}

	if got := p.Get("absent"); got != 0 {
		t.Errorf("Get absent = %d, want 0", got)
	}
}

func TestPositionsIgnoresNonPositiveOffsets(t *testing.T) {
	p, _ := NewPositions(10, 0)
	p.Save("a", 0)
	p.Save("b", -100)
	if p.Len() != 0 {
		t.Errorf("len = %d, want 0", p.Len())
	}
}

func TestPositionsMinSaveOffset(t *testing.T) {
	p, _ := NewPositions(10, 250)
	p.Save("a", 100) // below threshold: starting over is equivalent
	if got := p.Get("a"); got != 0 {
		t.Errorf("offset below minimum was saved: %d", got)
	}
	p.Save("a", 250)
	if got := p.Get("a"); got != 250 {
		t.Errorf("Get = %d, want 250", got)
	}
}

func TestPositionsClear(t *testing.T) {
	p, _ := NewPositions(10, 0)
	p.Save("a", 9000)
	p.Clear("a")
	if got := p.Get("a"); got != 0 {
		t.Errorf("Get after clear = %d, want 0", got)
	}
}

func TestPositionsEvictsLeastRecentlyUsed(t *testing.T) {
	p, _ := NewPositions(3, 0)
	for i := 1; i <= 3; i++ {
		p.Save(fmt.Sprintf("item%d", i), int64(i*1000))
	}

	// Touch item1 so item2 becomes the LRU entry
	p.Get("item1")
	p.Save("item4", 4000)

	if got := p.Get("item2"); got != 0 {
		t.Errorf("item2 should have been evicted, got %d", got)
	}
	for _, id := range []string{"item1", "item3", "item4"} {
		if got := p.Get(id); got == 0 {
			t.Errorf("%s should still be present", id)
		}
	}
}

// Resume semantics: a saved offset survives claim churn until cleared.
func TestPositionResumeAcrossClaims(t *testing.T) {
	r := NewRegistry()
	p, _ := NewPositions(10, 0)

	r.Register("player-i", 0, func() {}, nil)
	r.Claim("player-i")
	p.Save("item-i", 42000)
	r.Release("player-i")

	// Re-claim later: the player consults the store once on acquire
	r.Claim("player-i")
	if got := p.Get("item-i"); got != 42000 {
		t.Errorf("resume offset = %d, want 42000", got)
	}

	// Natural end clears the position
	p.Clear("item-i")
	if got := p.Get("item-i"); got != 0 {
		t.Errorf("offset after natural end = %d, want 0", got)
	}
}
