// Package app wires the feed engine, playback coordination, and the
// pager surfaces into the root Bubble Tea model.
package app

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/flick/internal/config"
	"github.com/abelbrown/flick/internal/feed"
	"github.com/abelbrown/flick/internal/logging"
	"github.com/abelbrown/flick/internal/media"
	"github.com/abelbrown/flick/internal/playback"
	"github.com/abelbrown/flick/internal/scroll"
	"github.com/abelbrown/flick/internal/store"
	"github.com/abelbrown/flick/internal/ui"
	"github.com/abelbrown/flick/internal/ui/feedview"
)

// frameInterval drives the page-turn animation
const frameInterval = time.Second / 60

// preloadAhead is how many upcoming items get their media warmed
const preloadAhead = 3

// frameMsg advances the scroll animation
type frameMsg struct{}

// Deps carries everything the root model needs, injected by main
type Deps struct {
	Config    *config.Config
	Session   *feed.Session
	Paginator *feed.Paginator
	Registry  *playback.Registry
	Positions *playback.Positions
	Preloader *media.Preloader
	Store     *store.Store // optional: nil runs without persistence

	// Lifecycle hooks, wired to the coordinator by main
	OnBackground func()
	OnForeground func()

	// ResumeID is the item to land on for the starting feed, "" for top
	ResumeID string

	// ShowTutorial shows the first-run key hints overlay
	ShowTutorial bool
	TutorialDone func()
}

// Model is the root Bubble Tea model
type Model struct {
	deps Deps

	forYou    *feedview.Model
	following *feedview.Model
	active    feed.Type

	width  int
	height int

	animating bool
	restored  bool
	tutorial  bool
	err       error
}

// New creates the root model
func New(deps Deps) Model {
	tuning := tuningFromConfig(deps.Config.Scroll)

	forYou := feedview.New(feed.ForYou, deps.Registry, deps.Positions, tuning)
	following := feedview.New(feed.Following, deps.Registry, deps.Positions, tuning)
	if deps.Config.UI.StartMuted {
		forYou.ToggleMute()
		following.ToggleMute()
	}

	return Model{
		deps:      deps,
		forYou:    forYou,
		following: following,
		active:    feed.ForYou,
		tutorial:  deps.ShowTutorial,
	}
}

// tuningFromConfig converts the persisted thresholds to scroll tuning.
// The terminal pager uses a fixed virtual page height; the thresholds
// are fractions of it.
func tuningFromConfig(sc config.ScrollConfig) scroll.Tuning {
	t := scroll.DefaultTuning(1000)
	if sc.BounceWindowMs > 0 {
		t.BounceWindow = time.Duration(sc.BounceWindowMs) * time.Millisecond
	}
	if sc.MinDragPages > 0 {
		t.MinDragPages = sc.MinDragPages
	}
	if sc.MinBouncePages > 0 {
		t.MinBouncePages = sc.MinBouncePages
	}
	if sc.CooldownMs > 0 {
		t.Cooldown = time.Duration(sc.CooldownMs) * time.Millisecond
	}
	if sc.ViewabilityDebounceMs > 0 {
		t.ViewabilityDebounce = time.Duration(sc.ViewabilityDebounceMs) * time.Millisecond
	}
	return t
}

// activeView returns the pager for the active feed type
func (m Model) activeView() *feedview.Model {
	if m.active == feed.Following {
		return m.following
	}
	return m.forYou
}

func (m Model) viewFor(ft feed.Type) *feedview.Model {
	if ft == feed.Following {
		return m.following
	}
	return m.forYou
}

// Init starts the spinner and loads the first page of the active feed
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.activeView().Spinner().Tick,
		m.loadFirst(m.active),
	)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.forYou.SetSize(msg.Width, msg.Height-2)
		m.following.SetSize(msg.Width, msg.Height-2)
		return m, nil

	case tea.FocusMsg:
		if m.deps.OnForeground != nil {
			m.deps.OnForeground()
		}
		return m, nil

	case tea.BlurMsg:
		if m.deps.OnBackground != nil {
			m.deps.OnBackground()
		}
		return m, nil

	case ui.PageLoaded:
		return m.handlePageLoaded(msg)

	case ui.FeedChanged:
		// Background paths changed the cached list; pull the snapshot
		return m, m.loadFirst(msg.Feed)

	case ui.ConnectionChanged:
		m.forYou.SetOnline(msg.Online)
		m.following.SetOnline(msg.Online)
		return m, nil

	case ui.SessionResumed:
		if msg.LongAway {
			logging.Info("long absence, resetting feed to top")
			m.activeView().JumpToTop()
			m.activeView().SetRefreshing(true)
			return m, m.refresh(m.active)
		}
		return m, nil

	case frameMsg:
		view := m.activeView()
		view.UpdateScroll()
		view.TickPlayback()
		// The frame loop outlives the page-turn: it keeps ticking while
		// a video plays so natural end-of-content is noticed.
		if view.IsScrolling() || view.Playing() {
			return m, m.nextFrame()
		}
		m.animating = false
		return m, nil

	case spinner.TickMsg:
		s, cmd := m.activeView().Spinner().Update(msg)
		m.forYou.UpdateSpinner(s)
		m.following.UpdateSpinner(s)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.tutorial {
		m.tutorial = false
		if m.deps.TutorialDone != nil {
			m.deps.TutorialDone()
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.saveResume()
		if m.deps.Store != nil {
			m.deps.Store.Close()
		}
		return m, tea.Quit

	case "down", "j":
		view := m.activeView()
		needMore := view.MoveDown()
		cmds := []tea.Cmd{m.startAnimation(), m.preloadUpcoming()}
		if needMore {
			cmds = append(cmds, m.loadMore(m.active))
		}
		return m, tea.Batch(cmds...)

	case "up", "k":
		m.activeView().MoveUp()
		return m, tea.Batch(m.startAnimation(), m.preloadUpcoming())

	case " ":
		m.activeView().TogglePlayback()
		return m, m.startAnimation()

	case "m":
		m.activeView().ToggleMute()
		return m, nil

	case "g":
		m.activeView().JumpToTop()
		return m, nil

	case "r":
		view := m.activeView()
		view.SetRefreshing(true)
		return m, m.refresh(m.active)

	case "tab", "f":
		return m.switchFeed()
	}

	return m, nil
}

// switchFeed toggles between the two feed types. The feed left behind
// keeps its position; whatever was playing there stops.
func (m Model) switchFeed() (tea.Model, tea.Cmd) {
	m.deps.Registry.PauseAll()
	if m.active == feed.ForYou {
		m.active = feed.Following
	} else {
		m.active = feed.ForYou
	}

	view := m.activeView()
	if view.ItemCount() == 0 && !view.Failed() {
		view.SetLoading(true)
		return m, m.loadFirst(m.active)
	}
	// Returning to a populated feed resumes playback on its current item
	view.TogglePlayback()
	return m, m.startAnimation()
}

func (m Model) handlePageLoaded(msg ui.PageLoaded) (tea.Model, tea.Cmd) {
	view := m.viewFor(msg.Feed)

	if msg.Err != nil {
		logging.Error("page load failed", "feed", msg.Feed, "error", msg.Err)
		m.err = msg.Err
		view.SetFailed()
		return m, nil
	}

	m.err = nil
	view.SetPage(msg.Page)

	var cmds []tea.Cmd
	if msg.Refresh && msg.Feed == m.active {
		view.JumpToTop()
	}

	// One-time restore of the persisted position on the starting feed
	if !m.restored && msg.Feed == m.active {
		m.restored = true
		if m.deps.ResumeID != "" {
			view.RestoreTo(m.deps.ResumeID)
		}
	}

	if msg.Feed == m.active {
		cmds = append(cmds, m.preloadUpcoming(), m.startAnimation())
	}
	return m, tea.Batch(cmds...)
}

// saveResume persists where the viewer left off
func (m Model) saveResume() {
	if m.deps.Store == nil {
		return
	}
	id := m.activeView().CurrentID()
	if id == "" {
		return
	}
	err := m.deps.Store.SaveResume(store.Resume{
		FeedType:  string(m.active),
		ItemID:    id,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		logging.Warn("failed to save resume position", "error", err)
	}
}

// View renders the UI
func (m Model) View() string {
	if m.tutorial {
		return m.renderTutorial()
	}

	header := m.renderHeader()
	return lipgloss.JoinVertical(lipgloss.Left, header, m.activeView().View())
}

func (m Model) renderHeader() string {
	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#c9d1d9")).
		Bold(true)
	tabStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#484f58"))
	activeTab := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#0d1117")).
		Background(lipgloss.Color("#58a6ff")).
		Padding(0, 1)

	var tabs string
	if m.active == feed.ForYou {
		tabs = activeTab.Render("For You") + " " + tabStyle.Render("Following")
	} else {
		tabs = tabStyle.Render("For You") + " " + activeTab.Render("Following")
	}

	return headerStyle.Render("  FLICK  ") + tabs
}

func (m Model) renderTutorial() string {
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#58a6ff")).
		Bold(true).
		Render("Welcome to Flick")
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#8b949e")).
		Render("j/k scroll the feed · space pause · m mute\ntab switch feeds · r refresh · q quit\n\npress any key to start")

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#58a6ff")).
		Padding(1, 3).
		Render(title + "\n\n" + body)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// Commands

func (m Model) loadFirst(ft feed.Type) tea.Cmd {
	p := m.deps.Paginator
	return func() tea.Msg {
		page, err := p.FirstPage(context.Background(), ft)
		return ui.PageLoaded{Feed: ft, Page: page, Err: err}
	}
}

func (m Model) loadMore(ft feed.Type) tea.Cmd {
	p := m.deps.Paginator
	return func() tea.Msg {
		page, err := p.LoadMore(context.Background(), ft)
		return ui.PageLoaded{Feed: ft, Page: page, Err: err}
	}
}

func (m Model) refresh(ft feed.Type) tea.Cmd {
	p := m.deps.Paginator
	return func() tea.Msg {
		page, err := p.Refresh(context.Background(), ft)
		return ui.PageLoaded{Feed: ft, Page: page, Refresh: true, Err: err}
	}
}

// preloadUpcoming warms media for the next few items past the current one
func (m Model) preloadUpcoming() tea.Cmd {
	if m.deps.Preloader == nil {
		return nil
	}
	entry, ok := m.deps.Session.Cache.Get(m.active)
	if !ok {
		return nil
	}
	currentID := m.activeView().CurrentID()

	idx := -1
	for i, it := range entry.Items {
		if it.ID == currentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	var urls []string
	for i := idx + 1; i <= idx+preloadAhead && i < len(entry.Items); i++ {
		for _, med := range entry.Items[i].Media {
			if med.URL != "" {
				urls = append(urls, med.URL)
			}
			if med.PosterURL != "" {
				urls = append(urls, med.PosterURL)
			}
		}
	}
	if len(urls) == 0 {
		return nil
	}

	preloader := m.deps.Preloader
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		preloader.Warm(ctx, urls)
		return nil
	}
}

func (m *Model) startAnimation() tea.Cmd {
	if m.animating {
		return nil
	}
	m.animating = true
	return m.nextFrame()
}

func (m Model) nextFrame() tea.Cmd {
	return tea.Tick(frameInterval, func(time.Time) tea.Msg {
		return frameMsg{}
	})
}

// Err returns the last load error, for the status line
func (m Model) Err() error {
	return m.err
}
