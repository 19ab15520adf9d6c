// Package ui holds the Bubble Tea message types shared between the
// feed surfaces, the coordinator, and the realtime bridge.
package ui

import "github.com/abelbrown/flick/internal/feed"

// PageLoaded is sent when a feed page request completes.
type PageLoaded struct {
	Feed    feed.Type
	Page    *feed.Page
	Refresh bool // the request was a pull-to-refresh
	Err     error
}

// FeedChanged is sent when a background path (realtime prepend, silent
// refill, revalidation, counter patch) changed the list without the UI
// having asked.
type FeedChanged struct {
	Feed feed.Type
}

// ConnectionChanged is sent when the realtime link drops or recovers.
type ConnectionChanged struct {
	Online bool
}

// SessionResumed is sent when the app regains focus.
// LongAway means the viewer was gone long enough that the current feed
// position is stale and the list should jump back to the top.
type SessionResumed struct {
	LongAway bool
}
