package feedview

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/flick/internal/feed"
	"github.com/abelbrown/flick/internal/playback"
	"github.com/abelbrown/flick/internal/scroll"
)

func videoItem(id string, durationMs int64) feed.Item {
	return feed.Item{
		ID:       id,
		AuthorID: "author-" + id,
		Kind:     feed.KindVideo,
		Media: []feed.Media{{
			Kind:           feed.MediaVideo,
			URL:            "https://cdn.example/" + id + ".mp4",
			DurationMillis: durationMs,
		}},
		CreatedAt: time.Now(),
	}
}

func textItem(id string) feed.Item {
	return feed.Item{
		ID:        id,
		AuthorID:  "author-" + id,
		Kind:      feed.KindText,
		Body:      "post " + id,
		CreatedAt: time.Now(),
	}
}

func videoPage(n int) *feed.Page {
	items := make([]feed.Item, n)
	for i := range items {
		items[i] = videoItem(fmt.Sprintf("v%d", i), 30_000)
	}
	return &feed.Page{Items: items, Users: map[string]feed.UserSummary{}, HasMore: true}
}

func newTestModel(t *testing.T) (*Model, *playback.Registry, *playback.Positions) {
	t.Helper()
	registry := playback.NewRegistry()
	positions, err := playback.NewPositions(32, 1000)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	m := New(feed.ForYou, registry, positions, scroll.DefaultTuning(1000))
	m.SetSize(80, 24)
	return m, registry, positions
}

func TestFirstPageClaimsPlayback(t *testing.T) {
	m, registry, _ := newTestModel(t)

	m.SetPage(videoPage(5))

	if got := m.CurrentID(); got != "v0" {
		t.Fatalf("current = %q, want v0", got)
	}
	if got := registry.ActiveID(); got != "v0" {
		t.Errorf("active player = %q, want v0", got)
	}
	if !m.Playing() {
		t.Error("first video should start playing")
	}
}

func TestMoveDownSwitchesPlayback(t *testing.T) {
	m, registry, _ := newTestModel(t)
	m.SetPage(videoPage(5))

	m.MoveDown()

	if got := m.CurrentID(); got != "v1" {
		t.Fatalf("current = %q, want v1", got)
	}
	if got := registry.ActiveID(); got != "v1" {
		t.Errorf("active player = %q, want v1", got)
	}
}

func TestMoveDownNearTailRequestsMore(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.SetPage(videoPage(5))

	// v0 -> v1: still far from the tail of 5
	if m.MoveDown() {
		t.Error("should not request more at index 1 of 5")
	}
	// v1 -> v2: within threshold of the tail
	if !m.MoveDown() {
		t.Error("should request more at index 2 of 5 with more available")
	}
}

func TestMoveDownAtTailNoMore(t *testing.T) {
	m, _, _ := newTestModel(t)
	page := videoPage(2)
	page.HasMore = false
	m.SetPage(page)

	m.MoveDown()
	if m.MoveDown() {
		t.Error("exhausted feed should never request more")
	}
	if got := m.CurrentID(); got != "v1" {
		t.Errorf("current = %q, want v1 (clamped at tail)", got)
	}
}

func TestPauseOnLeavingVideoSavesPosition(t *testing.T) {
	m, _, positions := newTestModel(t)

	clock := time.Now()
	m.now = func() time.Time { return clock }
	m.SetPage(videoPage(5))

	// Watch v0 for 5 seconds, then page away. The registry pauses v0
	// through its callback, which persists the watched offset.
	clock = clock.Add(5 * time.Second)
	m.player.startedAt = m.player.startedAt.Add(-5 * time.Second) // simulate elapsed wall time
	m.MoveDown()

	if got := positions.Get("v0"); got < 4000 || got > 6000 {
		t.Errorf("saved position = %dms, want ~5000ms", got)
	}
}

func TestNaturalEndClearsSavedPosition(t *testing.T) {
	m, registry, positions := newTestModel(t)

	clock := time.Now()
	m.now = func() time.Time { return clock }
	m.SetPage(videoPage(3))
	positions.Save("v0", 12_000)

	// Mid-playback frames leave everything alone
	m.TickPlayback()
	if !m.Playing() {
		t.Fatal("mid-playback tick must not stop the video")
	}

	// Play v0 past its full 30s duration
	m.player.startedAt = m.player.startedAt.Add(-31 * time.Second) // simulate elapsed wall time
	m.TickPlayback()

	if m.Playing() {
		t.Error("playback should stop at natural end")
	}
	if got := registry.ActiveID(); got != "" {
		t.Errorf("active player = %q, want none after natural end", got)
	}
	if got := positions.Get("v0"); got != 0 {
		t.Errorf("saved position = %dms, want 0 (cleared at natural end)", got)
	}

	// Watching again starts from the beginning
	m.TogglePlayback()
	if !m.Playing() {
		t.Fatal("replay after natural end should start playback")
	}
	if got := m.player.offset(clock); got != 0 {
		t.Errorf("replay offset = %dms, want 0", got)
	}
}

func TestNonVideoCurrentPausesEverything(t *testing.T) {
	m, registry, _ := newTestModel(t)
	page := &feed.Page{
		Items:   []feed.Item{videoItem("v0", 30_000), textItem("t1")},
		Users:   map[string]feed.UserSummary{},
		HasMore: false,
	}
	m.SetPage(page)

	if registry.ActiveID() != "v0" {
		t.Fatalf("setup: v0 should be playing")
	}
	m.MoveDown()

	if got := registry.ActiveID(); got != "" {
		t.Errorf("active player = %q, want none on a text item", got)
	}
	if m.Playing() {
		t.Error("nothing should play while a text item is current")
	}
}

func TestTogglePlayback(t *testing.T) {
	m, registry, _ := newTestModel(t)
	m.SetPage(videoPage(3))

	m.TogglePlayback()
	if m.Playing() {
		t.Error("toggle should pause the playing video")
	}
	if registry.ActiveID() != "" {
		t.Error("pause should release the claim")
	}

	m.TogglePlayback()
	if !m.Playing() {
		t.Error("second toggle should resume")
	}
	if registry.ActiveID() != "v0" {
		t.Error("resume should re-claim")
	}
}

func TestPrependKeepsCurrentItem(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.SetPage(videoPage(5))
	m.MoveDown()
	m.MoveDown() // on v2

	// Realtime prepend shifts every index down by one
	page := videoPage(5)
	page.Items = append([]feed.Item{videoItem("fresh", 10_000)}, page.Items...)
	m.SetPage(page)

	if got := m.CurrentID(); got != "v2" {
		t.Errorf("current = %q, want v2 anchored by identity", got)
	}
}

func TestJumpToTop(t *testing.T) {
	m, registry, _ := newTestModel(t)
	m.SetPage(videoPage(5))
	m.MoveDown()
	m.MoveDown()

	m.JumpToTop()

	if got := m.CurrentID(); got != "v0" {
		t.Errorf("current = %q, want v0 after jump", got)
	}
	if got := registry.ActiveID(); got != "v0" {
		t.Errorf("active player = %q, want v0 after jump", got)
	}
}

func TestRestoreToMissingItemFallsBackToTop(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.SetPage(videoPage(3))

	m.RestoreTo("gone")

	if got := m.CurrentID(); got != "v0" {
		t.Errorf("current = %q, want v0 fallback", got)
	}
}

func TestEmptyFollowingMessage(t *testing.T) {
	registry := playback.NewRegistry()
	positions, _ := playback.NewPositions(8, 0)
	m := New(feed.Following, registry, positions, scroll.DefaultTuning(1000))
	m.SetSize(60, 20)
	m.SetPage(&feed.Page{Items: []feed.Item{}, Users: map[string]feed.UserSummary{}})

	if view := m.View(); !strings.Contains(view, "Follow people") {
		t.Error("empty following feed should prompt to follow people")
	}
}

func TestFailedViewOffersRetry(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.SetFailed()

	if view := m.View(); !strings.Contains(view, "retry") {
		t.Error("failed view should mention retry")
	}
}
