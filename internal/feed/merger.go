package feed

import (
	"context"

	"github.com/abelbrown/flick/internal/backend"
	"github.com/abelbrown/flick/internal/logging"
)

// Merger splices server-pushed posts into the live lists. A qualifying
// item is prepended latest-first and recorded in the dedup set; the
// scroll layer anchors the current item by identity, so a prepend never
// disturbs what the viewer is looking at. Duplicate delivery is
// idempotently ignored.
//
// Realtime items bypass the pagination exclusion list on purpose: they
// are newer than anything the cursor has walked past, so re-surfacing
// them is correct, not a bug.
type Merger struct {
	session  *Session
	onChange func(Type)
}

// NewMerger creates a merger over the session's caches. onChange fires
// once per feed type whose live list the event actually changed.
func NewMerger(session *Session, onChange func(Type)) *Merger {
	return &Merger{session: session, onChange: onChange}
}

// HandlePost processes one item-creation event
func (m *Merger) HandlePost(ctx context.Context, row backend.PostRow) {
	viewer := m.session.ViewerID()
	if viewer == "" {
		return
	}

	// Eligibility: not the viewer's own post, not moderated away,
	// completeness holds (the ghost rule applies to pushes too).
	if row.AuthorID == viewer || row.Hidden {
		return
	}
	item, ok := ItemFromRow(row)
	if !ok {
		logging.Debug("realtime post failed completeness, ignored", "post", row.ID)
		return
	}

	// Group-scoped posts require the viewer's membership.
	if item.Visibility == VisibilityGroup {
		memberships, err := m.session.Memberships(ctx)
		if err != nil {
			logging.Debug("membership check failed for realtime post", "post", row.ID, "error", err)
			return
		}
		if !contains(memberships, item.GroupID) {
			return
		}
	}

	if m.prependTo(ForYou, item) {
		m.notify(ForYou)
	}

	// The following feed additionally requires following the author.
	followees, err := m.session.Following(ctx)
	if err == nil && contains(followees, item.AuthorID) {
		if m.prependTo(Following, item) {
			m.notify(Following)
		}
	}
}

// prependTo adds the item to the head of a live list if that feed has
// been loaded and the id is not already present. Returns whether the
// list changed.
func (m *Merger) prependTo(ft Type, item Item) bool {
	if _, ok := m.session.Cache.Get(ft); !ok {
		// Feed never loaded this session; first page will pick the
		// item up from the server instead.
		return false
	}

	changed := false
	m.session.Cache.Mutate(ft, func(e *Entry) {
		for _, existing := range e.Items {
			if existing.ID == item.ID {
				return // duplicate delivery
			}
		}
		e.Items = append([]Item{item}, e.Items...)
		changed = true
	})
	if changed {
		m.session.Dedup.Add(ft, item.ID)
	}
	return changed
}

// HandleCounters applies an engagement patch to every live list holding
// the item. The patch replaces the item's counter struct; the item from
// the original fetch is never mutated, a fresh value takes its slot.
func (m *Merger) HandleCounters(patch backend.CounterPatch) {
	for _, ft := range []Type{ForYou, Following} {
		if _, ok := m.session.Cache.Get(ft); !ok {
			continue
		}
		changed := false
		m.session.Cache.Mutate(ft, func(e *Entry) {
			for i, it := range e.Items {
				if it.ID == patch.PostID {
					next := it
					next.Counters = Counters{
						Likes:    patch.Likes,
						Comments: patch.Comments,
						Shares:   patch.Shares,
					}
					e.Items[i] = next
					changed = true
					return
				}
			}
		})
		if changed {
			m.notify(ft)
		}
	}
}

func (m *Merger) notify(ft Type) {
	if m.onChange != nil {
		m.onChange(ft)
	}
}

func contains(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
