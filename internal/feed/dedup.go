package feed

import "sync"

// DedupSet tracks the item ids already delivered this session, per feed
// type. The exclusion list is sent to the server on every page request so
// pagination never re-delivers an id. Capped: oldest ids drop off first,
// which also bounds the exclusion payload size on the wire.
//
// Realtime-pushed items are deliberately allowed to re-surface; they are
// newer than anything the cursor has walked past.
type DedupSet struct {
	mu    sync.Mutex
	max   int
	seen  map[Type]map[string]bool
	order map[Type][]string // insertion order for FIFO eviction
}

// NewDedupSet creates a dedup set capped at max ids per feed type
func NewDedupSet(max int) *DedupSet {
	return &DedupSet{
		max:   max,
		seen:  make(map[Type]map[string]bool),
		order: make(map[Type][]string),
	}
}

// Add records ids as seen for a feed type
func (d *DedupSet) Add(ft Type, ids ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.seen[ft]
	if !ok {
		set = make(map[string]bool)
		d.seen[ft] = set
	}

	for _, id := range ids {
		if id == "" || set[id] {
			continue
		}
		set[id] = true
		d.order[ft] = append(d.order[ft], id)
	}

	// FIFO eviction past the cap
	for d.max > 0 && len(d.order[ft]) > d.max {
		oldest := d.order[ft][0]
		d.order[ft] = d.order[ft][1:]
		delete(set, oldest)
	}
}

// Has reports whether an id was already delivered this session
func (d *DedupSet) Has(ft Type, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[ft][id]
}

// Exclusions returns the capped exclusion list for a feed type
func (d *DedupSet) Exclusions(ft Type) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	src := d.order[ft]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Reset clears the set for one feed type
func (d *DedupSet) Reset(ft Type) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, ft)
	delete(d.order, ft)
}

// ResetAll clears everything. Called on identity change.
func (d *DedupSet) ResetAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[Type]map[string]bool)
	d.order = make(map[Type][]string)
}

// Len returns the number of tracked ids for a feed type
func (d *DedupSet) Len(ft Type) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order[ft])
}
