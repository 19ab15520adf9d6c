package feed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/abelbrown/flick/internal/backend"
)

func seedFeed(t *testing.T, p *Paginator, ft Type) {
	t.Helper()
	if _, err := p.FirstPage(context.Background(), ft); err != nil {
		t.Fatal(err)
	}
}

func mergerFixture(t *testing.T) (*Session, *Merger, *fakeClient, *[]Type) {
	t.Helper()
	client := &fakeClient{
		following: []string{"friend-1"},
		respond: func(q backend.FeedQuery) ([]backend.PostRow, error) {
			return rowPage("seed", 20, time.Now()), nil
		},
	}
	s, p := newTestEngine(client)
	seedFeed(t, p, ForYou)
	seedFeed(t, p, Following)

	var changes []Type
	m := NewMerger(s, func(ft Type) { changes = append(changes, ft) })
	return s, m, client, &changes
}

func pushRow(id, author string) backend.PostRow {
	return backend.PostRow{
		ID:        id,
		AuthorID:  author,
		Kind:      "video",
		Media:     json.RawMessage(`"https://cdn/new.mp4"`),
		CreatedAt: time.Now(),
	}
}

func TestMergerPrependsQualifyingPost(t *testing.T) {
	s, m, _, changes := mergerFixture(t)

	m.HandlePost(context.Background(), pushRow("fresh", "someone-else"))

	e, _ := s.Cache.Get(ForYou)
	if e.Items[0].ID != "fresh" {
		t.Errorf("head = %s, want the pushed item prepended", e.Items[0].ID)
	}
	if !s.Dedup.Has(ForYou, "fresh") {
		t.Error("pushed id should join the dedup set")
	}
	if len(*changes) == 0 || (*changes)[0] != ForYou {
		t.Errorf("changes = %v, want for-you notified", *changes)
	}
}

func TestMergerIdempotentUnderDuplicateDelivery(t *testing.T) {
	s, m, _, changes := mergerFixture(t)
	ctx := context.Background()

	m.HandlePost(ctx, pushRow("dup", "someone-else"))
	before := len(*changes)
	m.HandlePost(ctx, pushRow("dup", "someone-else"))

	e, _ := s.Cache.Get(ForYou)
	count := 0
	for _, it := range e.Items {
		if it.ID == "dup" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("item appears %d times, want 1", count)
	}
	if len(*changes) != before {
		t.Error("duplicate delivery should not notify")
	}
}

func TestMergerIgnoresOwnPosts(t *testing.T) {
	s, m, _, _ := mergerFixture(t)

	m.HandlePost(context.Background(), pushRow("mine", "viewer-1"))

	e, _ := s.Cache.Get(ForYou)
	if e.Items[0].ID == "mine" {
		t.Error("viewer's own post must not be pushed into their feed")
	}
}

func TestMergerIgnoresGhostsAndHidden(t *testing.T) {
	s, m, _, _ := mergerFixture(t)
	ctx := context.Background()

	ghost := pushRow("ghost", "someone-else")
	ghost.Media = json.RawMessage(`{}`)
	m.HandlePost(ctx, ghost)

	hidden := pushRow("hidden", "someone-else")
	hidden.Hidden = true
	m.HandlePost(ctx, hidden)

	e, _ := s.Cache.Get(ForYou)
	for _, it := range e.Items {
		if it.ID == "ghost" || it.ID == "hidden" {
			t.Errorf("ineligible item %s reached the feed", it.ID)
		}
	}
}

func TestMergerFollowingRequiresFollowedAuthor(t *testing.T) {
	s, m, _, _ := mergerFixture(t)
	ctx := context.Background()

	m.HandlePost(ctx, pushRow("from-friend", "friend-1"))
	m.HandlePost(ctx, pushRow("from-stranger", "stranger-9"))

	e, _ := s.Cache.Get(Following)
	if e.Items[0].ID != "from-friend" {
		t.Errorf("following head = %s, want from-friend", e.Items[0].ID)
	}
	for _, it := range e.Items {
		if it.ID == "from-stranger" {
			t.Error("unfollowed author's post reached the following feed")
		}
	}

	// For-you gets both
	e, _ = s.Cache.Get(ForYou)
	found := map[string]bool{}
	for _, it := range e.Items {
		found[it.ID] = true
	}
	if !found["from-friend"] || !found["from-stranger"] {
		t.Error("for-you should carry both pushes")
	}
}

func TestMergerGroupVisibilityRequiresMembership(t *testing.T) {
	client := &fakeClient{
		memberships: []string{"g-mine"},
		respond: func(q backend.FeedQuery) ([]backend.PostRow, error) {
			return rowPage("seed", 20, time.Now()), nil
		},
	}
	s, p := newTestEngine(client)
	seedFeed(t, p, ForYou)
	m := NewMerger(s, nil)
	ctx := context.Background()

	inGroup := pushRow("in-group", "someone")
	inGroup.Visibility = "group"
	inGroup.GroupID = "g-mine"
	m.HandlePost(ctx, inGroup)

	outGroup := pushRow("out-group", "someone")
	outGroup.Visibility = "group"
	outGroup.GroupID = "g-other"
	m.HandlePost(ctx, outGroup)

	e, _ := s.Cache.Get(ForYou)
	found := map[string]bool{}
	for _, it := range e.Items {
		found[it.ID] = true
	}
	if !found["in-group"] {
		t.Error("member-visible post was dropped")
	}
	if found["out-group"] {
		t.Error("non-member group post reached the feed")
	}
}

func TestMergerSkipsUnloadedFeeds(t *testing.T) {
	client := &fakeClient{
		respond: func(q backend.FeedQuery) ([]backend.PostRow, error) {
			return rowPage("seed", 20, time.Now()), nil
		},
	}
	s, _ := newTestEngine(client)
	m := NewMerger(s, nil)

	m.HandlePost(context.Background(), pushRow("early", "someone"))

	if _, ok := s.Cache.Get(ForYou); ok {
		t.Error("push before first load should not materialize a feed")
	}
}

func TestCounterPatchReplacesCounters(t *testing.T) {
	s, m, _, changes := mergerFixture(t)

	m.HandleCounters(backend.CounterPatch{PostID: "seed3", Likes: 42, Comments: 7, Shares: 2})

	e, _ := s.Cache.Get(ForYou)
	for _, it := range e.Items {
		if it.ID == "seed3" {
			if it.Counters.Likes != 42 || it.Counters.Comments != 7 {
				t.Errorf("counters = %+v, want patched values", it.Counters)
			}
		}
	}
	if len(*changes) == 0 {
		t.Error("counter patch should notify")
	}
}

func TestFollowBusInvalidatesFollowingFeed(t *testing.T) {
	client := &fakeClient{
		following: []string{"friend-1"},
		respond: func(q backend.FeedQuery) ([]backend.PostRow, error) {
			return rowPage("seed", 20, time.Now()), nil
		},
	}
	s, p := newTestEngine(client)
	seedFeed(t, p, Following)

	bus := NewFollowBus()
	dispose := bus.BindSession(s)
	defer dispose()

	bus.Publish(backend.FollowEvent{FollowerID: "viewer-1", FolloweeID: "friend-2", Following: true})

	if _, ok := s.Cache.Get(Following); ok {
		t.Error("follow change should invalidate the following feed cache")
	}
	if s.Dedup.Len(Following) != 0 {
		t.Error("follow change should reset the following dedup set")
	}
}

func TestFollowBusIgnoresOtherViewers(t *testing.T) {
	client := &fakeClient{
		following: []string{"friend-1"},
		respond: func(q backend.FeedQuery) ([]backend.PostRow, error) {
			return rowPage("seed", 20, time.Now()), nil
		},
	}
	s, p := newTestEngine(client)
	seedFeed(t, p, Following)

	bus := NewFollowBus()
	defer bus.BindSession(s)()

	bus.Publish(backend.FollowEvent{FollowerID: "stranger", FolloweeID: "friend-2", Following: true})

	if _, ok := s.Cache.Get(Following); !ok {
		t.Error("another viewer's follow change must not invalidate our cache")
	}
}

func TestFollowBusDisposerUnsubscribes(t *testing.T) {
	bus := NewFollowBus()
	calls := 0
	dispose := bus.Subscribe(func(backend.FollowEvent) { calls++ })

	bus.Publish(backend.FollowEvent{})
	dispose()
	bus.Publish(backend.FollowEvent{})

	if calls != 1 {
		t.Errorf("calls = %d, want 1 after dispose", calls)
	}
}
