package playback

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Positions remembers the last playback offset per item so a feed revisit
// resumes where the viewer left off. LRU-bounded: hot items stay, cold ones
// fall off. Safe to call Save on every progress tick - an insert into the
// LRU is O(1) and never grows past the cap.
type Positions struct {
	cache         *lru.Cache[string, int64]
	minSaveOffset int64
}

// NewPositions creates a position store holding at most size entries.
// Offsets at or below minSaveOffsetMs are ignored - restarting a video
// from 40ms in is indistinguishable from starting over.
func NewPositions(size int, minSaveOffsetMs int64) (*Positions, error) {
	c, err := lru.New[string, int64](size)
	if err != nil {
		return nil, err
	}
	return &Positions{cache: c, minSaveOffset: minSaveOffsetMs}, nil
}

// Save records the offset for an item, refreshing its recency.
// No-op when the offset is not past the minimum.
func (p *Positions) Save(itemID string, offsetMillis int64) {
	if itemID == "" || offsetMillis <= 0 || offsetMillis < p.minSaveOffset {
		return
	}
	p.cache.Add(itemID, offsetMillis)
}

// Get returns the saved offset for an item, 0 if none
func (p *Positions) Get(itemID string) int64 {
	if v, ok := p.cache.Get(itemID); ok {
		return v
	}
	return 0
}

// Clear removes an item's saved offset. Called when playback reaches the
// natural end of the content, so the next view starts from the top.
func (p *Positions) Clear(itemID string) {
	p.cache.Remove(itemID)
}

// Len returns the number of stored positions
func (p *Positions) Len() int {
	return p.cache.Len()
}
