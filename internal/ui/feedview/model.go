// Package feedview renders one feed as a full-screen vertical pager:
// one item per viewport, the current item playing, neighbors at rest.
package feedview

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/flick/internal/feed"
	"github.com/abelbrown/flick/internal/playback"
	"github.com/abelbrown/flick/internal/scroll"
)

// loadMoreThreshold is how close to the tail the viewer gets before the
// next page is requested.
const loadMoreThreshold = 3

// playerState is the simulated playback head for the current video.
// It lives behind a pointer so registry callbacks see live state no
// matter how the surrounding model value is copied.
type playerState struct {
	mu         sync.Mutex
	id         string
	baseOffset int64 // ms already watched when playback (re)started
	durationMs int64
	startedAt  time.Time
	playing    bool
}

// pause stops the head and returns the id and offset to persist
func (p *playerState) pause(now time.Time) (string, int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return "", 0
	}
	p.playing = false
	offset := p.baseOffset + now.Sub(p.startedAt).Milliseconds()
	if p.durationMs > 0 && offset > p.durationMs {
		offset = p.durationMs
	}
	p.baseOffset = offset
	return p.id, offset
}

func (p *playerState) start(id string, baseOffset, durationMs int64, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = id
	p.baseOffset = baseOffset
	p.durationMs = durationMs
	p.startedAt = now
	p.playing = true
}

func (p *playerState) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

// offset returns the current playback offset in ms
func (p *playerState) offset(now time.Time) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	off := p.baseOffset
	if p.playing {
		off += now.Sub(p.startedAt).Milliseconds()
	}
	if p.durationMs > 0 && off > p.durationMs {
		off = p.durationMs
	}
	return off
}

// finished reports whether the playing head has reached the end of its
// content. Never true for a paused head or one without a duration.
func (p *playerState) finished(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing || p.durationMs <= 0 {
		return false
	}
	return p.baseOffset+now.Sub(p.startedAt).Milliseconds() >= p.durationMs
}

func (p *playerState) isPlaying(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing && p.id == id
}

// Model is the vertical pager over one feed type
type Model struct {
	feedType feed.Type

	items   []feed.Item
	users   map[string]feed.UserSummary
	hasMore bool

	loading    bool
	refreshing bool
	failed     bool
	muted      bool
	online     bool

	width  int
	height int

	spinner spinner.Model

	registry  *playback.Registry
	positions *playback.Positions
	ctrl      *scroll.Controller
	player    *playerState
	tuning    scroll.Tuning

	// Smooth paging with harmonica spring physics
	scrollSpring   harmonica.Spring
	scrollPos      float64
	scrollVelocity float64
	scrollTarget   float64

	now func() time.Time
}

// New creates a pager for a feed type
func New(ft feed.Type, registry *playback.Registry, positions *playback.Positions, tuning scroll.Tuning) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#58a6ff"))

	// Higher frequency = faster response, higher damping = less bounce
	spring := harmonica.NewSpring(harmonica.FPS(60), 6.0, 0.8)

	m := &Model{
		feedType:     ft,
		users:        make(map[string]feed.UserSummary),
		loading:      true,
		online:       true,
		spinner:      s,
		registry:     registry,
		positions:    positions,
		player:       &playerState{},
		tuning:       tuning,
		scrollSpring: spring,
		now:          time.Now,
	}
	m.ctrl = scroll.NewController(tuning, m.onCurrentChanged)
	return m
}

// FeedType returns the feed this pager renders
func (m *Model) FeedType() feed.Type {
	return m.feedType
}

// SetSize updates the viewport dimensions
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// SetPage replaces the pager contents with a fresh page snapshot.
// The current item survives by identity when it is still in the list.
func (m *Model) SetPage(page *feed.Page) {
	if page == nil {
		return
	}
	hadItems := len(m.items) > 0

	m.items = page.Items
	m.hasMore = page.HasMore
	if page.Users != nil {
		m.users = page.Users
	}
	m.loading = false
	m.refreshing = false
	m.failed = false

	ids := make([]string, len(m.items))
	for i, it := range m.items {
		ids[i] = it.ID
	}
	m.ctrl.SetItems(ids)

	idx, _ := m.ctrl.Current()
	m.scrollTarget = float64(idx) * m.tuning.ItemHeight
	if !hadItems {
		// First population lands instantly, no slide-in from zero
		m.scrollPos = m.scrollTarget
		m.startPlayback()
	}
}

// SetLoading flips the full-screen loading state
func (m *Model) SetLoading(loading bool) {
	m.loading = loading
	if loading {
		m.failed = false
	}
}

// SetRefreshing marks a pull-to-refresh in progress. The old list stays
// visible under the spinner.
func (m *Model) SetRefreshing(refreshing bool) {
	m.refreshing = refreshing
}

// SetFailed shows the retry state
func (m *Model) SetFailed() {
	m.loading = false
	m.refreshing = false
	m.failed = true
}

// Failed reports whether the last load failed
func (m *Model) Failed() bool {
	return m.failed
}

// SetOnline updates the realtime connection indicator
func (m *Model) SetOnline(online bool) {
	m.online = online
}

// ToggleMute flips the mute state for this surface
func (m *Model) ToggleMute() {
	m.muted = !m.muted
}

// Muted reports the mute state
func (m *Model) Muted() bool {
	return m.muted
}

// ItemCount returns the number of items in the pager
func (m *Model) ItemCount() int {
	return len(m.items)
}

// CurrentItem returns the item the viewer is on, nil when empty
func (m *Model) CurrentItem() *feed.Item {
	idx, _ := m.ctrl.Current()
	if idx < 0 || idx >= len(m.items) {
		return nil
	}
	return &m.items[idx]
}

// CurrentID returns the id of the current item, "" when empty
func (m *Model) CurrentID() string {
	_, id := m.ctrl.Current()
	return id
}

// MoveDown pages to the next item. Returns true when the viewer is
// close enough to the tail that the next page should be requested.
func (m *Model) MoveDown() bool {
	m.page(1)
	idx, _ := m.ctrl.Current()
	return m.hasMore && idx >= len(m.items)-loadMoreThreshold
}

// MoveUp pages to the previous item
func (m *Model) MoveUp() {
	m.page(-1)
}

// page simulates one clean page-turn gesture through the controller
func (m *Model) page(dir int) {
	if len(m.items) == 0 {
		return
	}
	idx, _ := m.ctrl.Current()
	target := idx + dir
	if target < 0 || target >= len(m.items) {
		return
	}

	now := m.now()
	from := float64(idx) * m.tuning.ItemHeight
	to := float64(target) * m.tuning.ItemHeight

	m.ctrl.DragStart(from, now)
	m.ctrl.DragEnd(to, now)
	if corr := m.ctrl.Settle(to, now); corr != nil {
		to = float64(corr.Index) * m.tuning.ItemHeight
	}
	m.scrollTarget = to
}

// JumpToTop scrolls back to the head of the feed, as after a long
// absence or a feed switch.
func (m *Model) JumpToTop() {
	if len(m.items) == 0 {
		return
	}
	m.ctrl.BeginInitialScroll(m.items[0].ID)
	m.scrollTarget = 0
	m.scrollPos = 0
	m.ctrl.FinishInitialScroll(m.now())
}

// RestoreTo scrolls to a remembered item id, landing silently.
// Falls back to the top when the item is gone from the list.
func (m *Model) RestoreTo(id string) {
	for i, it := range m.items {
		if it.ID == id {
			m.ctrl.BeginInitialScroll(id)
			m.scrollTarget = float64(i) * m.tuning.ItemHeight
			m.scrollPos = m.scrollTarget
			m.ctrl.FinishInitialScroll(m.now())
			return
		}
	}
	m.JumpToTop()
}

// UpdateScroll advances the spring animation one frame
func (m *Model) UpdateScroll() {
	m.scrollPos, m.scrollVelocity = m.scrollSpring.Update(m.scrollPos, m.scrollVelocity, m.scrollTarget)
}

// IsScrolling reports whether the page-turn animation is still moving
func (m *Model) IsScrolling() bool {
	return math.Abs(m.scrollPos-m.scrollTarget) > 0.5
}

// TickPlayback advances the playback head one frame. A video reaching
// its natural end stops and releases its claim; the saved position is
// dropped so the next watch starts from the beginning.
func (m *Model) TickPlayback() {
	it := m.CurrentItem()
	if it == nil || !m.player.isPlaying(it.ID) {
		return
	}
	if !m.player.finished(m.now()) {
		return
	}
	m.player.stop()
	m.positions.Clear(it.ID)
	m.registry.Release(it.ID)
}

// TogglePlayback pauses or resumes the current item's video
func (m *Model) TogglePlayback() {
	it := m.CurrentItem()
	if it == nil || !it.Playable() {
		return
	}
	if m.player.isPlaying(it.ID) {
		if id, off := m.player.pause(m.now()); id != "" {
			m.positions.Save(id, off)
		}
		m.registry.Release(it.ID)
		return
	}
	m.startPlayback()
}

// Playing reports whether the current item's video is playing
func (m *Model) Playing() bool {
	it := m.CurrentItem()
	return it != nil && m.player.isPlaying(it.ID)
}

// onCurrentChanged is the controller's change callback: exactly one
// invocation per settled identity change.
func (m *Model) onCurrentChanged(ch scroll.Change) {
	m.startPlayback()
}

// startPlayback claims playback for the current item. A non-video
// current item pauses everything instead; nothing plays off-screen.
func (m *Model) startPlayback() {
	it := m.CurrentItem()
	if it == nil || !it.Playable() {
		m.registry.PauseAll()
		m.player.stop()
		return
	}

	id := it.ID
	now := m.now()
	player := m.player
	positions := m.positions

	m.registry.Register(id, 0,
		func() {
			if pid, off := player.pause(time.Now()); pid != "" {
				positions.Save(pid, off)
			}
		},
		func() {
			player.stop()
		})

	if !m.registry.Claim(id) {
		return
	}

	var duration int64
	for _, media := range it.Media {
		if media.Kind == feed.MediaVideo {
			duration = media.DurationMillis
			break
		}
	}
	m.player.start(id, m.positions.Get(id), duration, now)
}

// Spinner returns the spinner model
func (m *Model) Spinner() spinner.Model {
	return m.spinner
}

// UpdateSpinner updates the spinner state
func (m *Model) UpdateSpinner(s spinner.Model) {
	m.spinner = s
}

// View renders the pager
func (m *Model) View() string {
	if m.loading && len(m.items) == 0 {
		return m.renderLoading()
	}
	if m.failed && len(m.items) == 0 {
		return m.renderFailed()
	}
	if len(m.items) == 0 {
		return m.renderEmpty()
	}

	idx, _ := m.ctrl.Current()
	it := m.items[idx]

	var sections []string
	if banner := m.renderBanner(); banner != "" {
		sections = append(sections, banner)
	}
	sections = append(sections, m.renderCard(it))
	sections = append(sections, m.renderFooter(idx))

	return strings.Join(sections, "\n")
}

func (m *Model) renderLoading() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#8b949e"))
	content := fmt.Sprintf("%s Loading %s...", m.spinner.View(), m.feedType)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, style.Render(content))
}

func (m *Model) renderFailed() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#f85149"))
	hint := lipgloss.NewStyle().Foreground(lipgloss.Color("#8b949e"))
	content := style.Render("Couldn't load the feed.") + "\n" + hint.Render("Press r to retry.")
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m *Model) renderEmpty() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#8b949e"))
	content := "Nothing here yet. Press r to refresh."
	if m.feedType == feed.Following {
		content = "Follow people to fill this feed."
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, style.Render(content))
}

// renderBanner shows transient status above the card
func (m *Model) renderBanner() string {
	var parts []string
	if !m.online {
		offline := lipgloss.NewStyle().
			Foreground(lipgloss.Color("#0d1117")).
			Background(lipgloss.Color("#d29922")).
			Padding(0, 1)
		parts = append(parts, offline.Render("offline - showing cached feed"))
	}
	if m.refreshing {
		dim := lipgloss.NewStyle().Foreground(lipgloss.Color("#8b949e"))
		parts = append(parts, dim.Render(fmt.Sprintf("%s refreshing...", m.spinner.View())))
	}
	if m.failed {
		warn := lipgloss.NewStyle().Foreground(lipgloss.Color("#f85149"))
		parts = append(parts, warn.Render("load failed - press r to retry"))
	}
	return strings.Join(parts, "  ")
}

func (m *Model) renderCard(it feed.Item) string {
	authorBadge := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#0d1117")).
		Background(lipgloss.Color("#58a6ff")).
		Padding(0, 1).
		Render(m.authorLabel(it))

	timeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#484f58"))
	header := fmt.Sprintf("%s %s", authorBadge, timeStyle.Render(formatAge(m.now().Sub(it.CreatedAt))))

	if it.Visibility == feed.VisibilityGroup {
		groupStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7ee787")).
			Background(lipgloss.Color("#1f3a2f")).
			Padding(0, 1)
		name := it.GroupName
		if name == "" {
			name = "group"
		}
		header += " " + groupStyle.Render("⊚ "+name)
	}

	var lines []string
	lines = append(lines, header)

	if it.Body != "" {
		bodyStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c9d1d9")).
			Width(max(20, m.width-8))
		lines = append(lines, "", bodyStyle.Render(it.Body))
	}

	if media := m.renderMedia(it); media != "" {
		lines = append(lines, "", media)
	}

	lines = append(lines, "", m.renderCounters(it.Counters))

	cardStyle := lipgloss.NewStyle().
		BorderLeft(true).
		BorderStyle(lipgloss.ThickBorder()).
		BorderForeground(m.kindColor(it.Kind)).
		PaddingLeft(2).
		Width(max(24, m.width-4))

	return cardStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) authorLabel(it feed.Item) string {
	if u, ok := m.users[it.AuthorID]; ok && u.Handle != "" {
		return "@" + u.Handle
	}
	if it.AuthorName != "" {
		return it.AuthorName
	}
	return "@" + truncate(it.AuthorID, 10)
}

func (m *Model) kindColor(k feed.Kind) lipgloss.Color {
	switch k {
	case feed.KindVideo:
		return lipgloss.Color("#f778ba")
	case feed.KindImage:
		return lipgloss.Color("#7ee787")
	case feed.KindMixed:
		return lipgloss.Color("#d2a8ff")
	default:
		return lipgloss.Color("#8b949e")
	}
}

// renderMedia shows the playback line for videos and a thumbnail hint
// for images.
func (m *Model) renderMedia(it feed.Item) string {
	var video *feed.Media
	images := 0
	for i := range it.Media {
		if it.Media[i].Kind == feed.MediaVideo && video == nil {
			video = &it.Media[i]
		} else if it.Media[i].Kind == feed.MediaImage {
			images++
		}
	}

	var parts []string
	if video != nil && video.URL != "" {
		playing := m.player.isPlaying(it.ID)
		glyph := "▶"
		if playing {
			glyph = "▮▮"
		}
		glyphStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#f778ba")).Bold(true)

		line := glyphStyle.Render(glyph)
		if video.DurationMillis > 0 {
			offset := m.player.offset(m.now())
			if !m.player.isPlaying(it.ID) {
				offset = m.positions.Get(it.ID)
			}
			line += " " + renderProgress(offset, video.DurationMillis, 20)
		}
		if m.muted {
			muteStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#8b949e"))
			line += " " + muteStyle.Render("🔇")
		}
		parts = append(parts, line)
	}
	if images > 0 {
		imgStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#7ee787"))
		noun := "image"
		if images > 1 {
			noun = "images"
		}
		parts = append(parts, imgStyle.Render(fmt.Sprintf("▣ %d %s", images, noun)))
	}
	return strings.Join(parts, "\n")
}

func (m *Model) renderCounters(c feed.Counters) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#8b949e"))
	return style.Render(fmt.Sprintf("♥ %s   ✉ %s   ↗ %s",
		formatCount(c.Likes), formatCount(c.Comments), formatCount(c.Shares)))
}

func (m *Model) renderFooter(idx int) string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("#484f58"))
	total := len(m.items)
	more := ""
	if m.hasMore {
		more = "+"
	}
	feedName := lipgloss.NewStyle().Foreground(lipgloss.Color("#58a6ff")).Render(string(m.feedType))
	return dim.Render(fmt.Sprintf(" %s  %d/%d%s  j/k scroll · space pause · m mute · r refresh", feedName, idx+1, total, more))
}

// renderProgress draws a playback bar like [━━━━╌╌╌╌ 0:12/0:30]
func renderProgress(offsetMs, durationMs int64, barWidth int) string {
	if durationMs <= 0 {
		return ""
	}
	frac := float64(offsetMs) / float64(durationMs)
	if frac > 1 {
		frac = 1
	}
	if frac < 0 {
		frac = 0
	}
	filled := int(float64(barWidth) * frac)

	filledStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#f778ba"))
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#30363d"))
	timeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#8b949e"))

	bar := filledStyle.Render(strings.Repeat("━", filled)) +
		emptyStyle.Render(strings.Repeat("╌", barWidth-filled))
	return fmt.Sprintf("[%s %s]", bar, timeStyle.Render(formatClock(offsetMs)+"/"+formatClock(durationMs)))
}

func formatClock(ms int64) string {
	total := ms / 1000
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func formatCount(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw", int(d.Hours()/(24*7)))
	}
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-2] + ".."
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
