package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/flick/internal/app"
	"github.com/abelbrown/flick/internal/backend"
	"github.com/abelbrown/flick/internal/config"
	"github.com/abelbrown/flick/internal/coord"
	"github.com/abelbrown/flick/internal/feed"
	"github.com/abelbrown/flick/internal/logging"
	"github.com/abelbrown/flick/internal/media"
	"github.com/abelbrown/flick/internal/playback"
	"github.com/abelbrown/flick/internal/realtime"
	"github.com/abelbrown/flick/internal/store"
	"github.com/abelbrown/flick/internal/ui"
)

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())

	if err := logging.Init(); err != nil {
		log.Printf("Warning: file logging unavailable: %v", err)
	}
	defer logging.Close()

	cfg, err := config.Load()
	if err != nil {
		logging.Warn("config load failed, using defaults", "error", err)
	}

	// Data directory: ~/.flick/
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Failed to get home directory: %v", err)
	}
	dataDir := filepath.Join(homeDir, ".flick")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Open store; the app runs without persistence if it fails
	st, err := store.Open(filepath.Join(dataDir, "flick.db"))
	if err != nil {
		logging.Warn("store unavailable, running without persistence", "error", err)
		st = nil
	}

	// Backend client
	client := backend.NewHTTPClient(
		envOrDefault("FLICK_API_URL", cfg.Backend.BaseURL),
		envOrDefault("FLICK_API_KEY", cfg.Backend.APIKey),
		time.Duration(cfg.Backend.TimeoutSeconds)*time.Second,
		cfg.Backend.RatePerSecond,
	)

	// Feed engine
	session := feed.NewSession(client, feed.SessionOptions{
		CacheTTL:      cfg.CacheTTL(),
		MembershipTTL: cfg.MembershipTTL(),
		MaxItems:      cfg.Feed.MaxCachedItems,
		MaxExcluded:   cfg.Feed.MaxExcludedIDs,
	})
	session.SetViewer(os.Getenv("FLICK_VIEWER"))

	paginator := feed.NewPaginator(session, feed.PaginatorOptions{
		PageSize:       cfg.Feed.PageSize,
		RetryAttempts:  cfg.Feed.RetryAttempts,
		MinSpinnerTime: time.Duration(cfg.Feed.MinSpinnerMillis) * time.Millisecond,
	})

	// Playback coordination
	registry := playback.NewRegistry()
	positions, err := playback.NewPositions(cfg.Playback.PositionCacheSize, int64(cfg.Playback.MinSaveOffsetMs))
	if err != nil {
		log.Fatalf("Failed to create position cache: %v", err)
	}
	preloader := media.NewPreloader(time.Duration(cfg.Playback.PreloadTimeoutMs) * time.Millisecond)

	// program is published once the model exists. The engine callbacks
	// below fire on their own goroutines, so the handoff is atomic.
	var program atomic.Pointer[tea.Program]

	paginator.OnUpdate(func(ft feed.Type) {
		if p := program.Load(); p != nil {
			p.Send(ui.FeedChanged{Feed: ft})
		}
	})

	merger := feed.NewMerger(session, func(ft feed.Type) {
		if p := program.Load(); p != nil {
			p.Send(ui.FeedChanged{Feed: ft})
		}
	})

	bus := feed.NewFollowBus()
	unbind := bus.BindSession(session)
	defer unbind()
	busDispose := bus.Subscribe(func(ev backend.FollowEvent) {
		if ev.FollowerID != session.ViewerID() {
			return
		}
		if p := program.Load(); p != nil {
			p.Send(ui.FeedChanged{Feed: feed.Following})
		}
	})
	defer busDispose()

	// Realtime event stream
	var conn *realtime.Conn
	if cfg.Realtime.Enabled {
		conn, err = realtime.Connect(envOrDefault("FLICK_NATS_URL", cfg.Realtime.URL))
		if err != nil {
			logging.Warn("realtime unavailable, feed updates on refresh only", "error", err)
		} else {
			defer conn.Close()
			if _, err := conn.SubscribePosts(func(row backend.PostRow) {
				merger.HandlePost(ctx, row)
			}); err != nil {
				logging.Warn("post subscription failed", "error", err)
			}
			if _, err := conn.SubscribeCounters(func(patch backend.CounterPatch) {
				merger.HandleCounters(patch)
			}); err != nil {
				logging.Warn("counter subscription failed", "error", err)
			}
			if _, err := conn.SubscribeFollows(func(ev backend.FollowEvent) {
				bus.Publish(ev)
			}); err != nil {
				logging.Warn("follow subscription failed", "error", err)
			}
		}
	}

	// Coordinator for background refills, sweeps, and lifecycle
	longAway := time.Duration(cfg.Scroll.LongBackgroundSec) * time.Second
	coordinator := coord.NewCoordinator(session, paginator, registry, st, longAway)

	// Persisted UI state
	var resumeID string
	showTutorial := true
	if st != nil {
		if r, ok, err := st.GetResume(string(feed.ForYou)); err == nil && ok {
			resumeID = r.ItemID
		}
		if shown, err := st.Flag("tutorial_shown"); err == nil && shown {
			showTutorial = false
		}
	}

	model := app.New(app.Deps{
		Config:       cfg,
		Session:      session,
		Paginator:    paginator,
		Registry:     registry,
		Positions:    positions,
		Preloader:    preloader,
		Store:        st,
		OnBackground: func() { coordinator.OnBackground() },
		OnForeground: func() { coordinator.OnForeground(program.Load()) },
		ResumeID:     resumeID,
		ShowTutorial: showTutorial,
		TutorialDone: func() {
			if st != nil {
				if err := st.SetFlag("tutorial_shown", true); err != nil {
					logging.Warn("failed to persist tutorial flag", "error", err)
				}
			}
		},
	})

	prog := tea.NewProgram(model, tea.WithAltScreen(), tea.WithReportFocus())
	program.Store(prog)

	// The connection watcher starts only now that the program exists
	if conn != nil {
		go watchConnection(ctx, conn, prog)
	}

	coordinator.Start(ctx)

	// Run UI (blocks until quit)
	if _, err := prog.Run(); err != nil {
		log.Printf("Error running program: %v", err)
	}

	// Graceful shutdown
	cancel()
	coordinator.Wait()
}

// watchConnection polls the realtime link and reports transitions
func watchConnection(ctx context.Context, conn *realtime.Conn, program *tea.Program) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	last := conn.Connected()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := conn.Connected()
			if now != last {
				last = now
				program.Send(ui.ConnectionChanged{Online: now})
			}
		}
	}
}
