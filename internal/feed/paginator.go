package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/flick/internal/backend"
	"github.com/abelbrown/flick/internal/logging"
)

// ErrLoadFailed is surfaced to the UI after the retry budget is spent.
// Everything before that point is handled inside the engine.
var ErrLoadFailed = errors.New("feed load failed")

// Page is an immutable snapshot handed to UI surfaces
type Page struct {
	Items   []Item
	Users   map[string]UserSummary
	HasMore bool
}

// Status is the externally visible loading state for one feed type
type Status struct {
	Loading bool
	Failed  bool
}

type loadMode int

const (
	modeReplace loadMode = iota // first page / refresh
	modeAppend                  // loadMore
	modeSilent                  // background refill: appends past the cursor
	modeRevalidate              // stale head: silent refetch from the top
)

// PaginatorOptions tunes the pipeline
type PaginatorOptions struct {
	PageSize       int
	RetryAttempts  int
	MinSpinnerTime time.Duration // UX floor for Refresh, not a correctness knob
}

// Paginator orchestrates fetch, ghost filtering, enrichment, and cache
// merge for every feed type. All cache writes for a feed type are
// serialized through here; concurrent loads for the same type collapse
// into one.
type Paginator struct {
	session *Session
	client  backend.Client
	opts    PaginatorOptions

	mu       sync.Mutex
	inflight map[Type]bool
	loading  map[Type]bool
	failed   map[Type]bool

	// onUpdate is called when a background path (revalidate, silent
	// refill) changed the list without the UI having asked.
	onUpdate func(Type)

	now func() time.Time
}

// NewPaginator creates a paginator over a session
func NewPaginator(session *Session, opts PaginatorOptions) *Paginator {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	return &Paginator{
		session:  session,
		client:   session.client,
		opts:     opts,
		inflight: make(map[Type]bool),
		loading:  make(map[Type]bool),
		failed:   make(map[Type]bool),
		now:      time.Now,
	}
}

// OnUpdate registers the callback for background list changes
func (p *Paginator) OnUpdate(fn func(Type)) {
	p.onUpdate = fn
}

// Status returns the loading state for a feed type
func (p *Paginator) Status(ft Type) Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{Loading: p.loading[ft], Failed: p.failed[ft]}
}

// FirstPage returns page one for a feed type. Cache-first: an existing
// non-empty entry is returned immediately, even stale - a stale one
// additionally kicks off a background revalidation (stale-while-
// revalidate). Only a cold or empty cache goes to the network in the
// caller's path.
func (p *Paginator) FirstPage(ctx context.Context, ft Type) (*Page, error) {
	if entry, ok := p.session.Cache.Get(ft); ok && len(entry.Items) > 0 {
		if !p.session.Cache.Fresh(ft, p.now()) {
			go p.revalidate(ctx, ft)
		}
		return pageFromEntry(entry), nil
	}

	return p.load(ctx, ft, modeReplace)
}

// LoadMore extends the feed past the stored cursor, appending to the
// in-memory list. A no-op returning the current page when a load is
// already in flight or the feed is exhausted.
func (p *Paginator) LoadMore(ctx context.Context, ft Type) (*Page, error) {
	entry, ok := p.session.Cache.Get(ft)
	if !ok {
		return p.FirstPage(ctx, ft)
	}
	if !entry.HasMore || p.isInflight(ft) {
		return pageFromEntry(entry), nil
	}
	return p.load(ctx, ft, modeAppend)
}

// Refresh discards all state for the feed type and refetches page one.
// The spinner stays visible for at least MinSpinnerTime even when the
// network answers instantly - pull-to-refresh that blinks reads as broken.
func (p *Paginator) Refresh(ctx context.Context, ft Type) (*Page, error) {
	started := p.now()

	p.session.Cache.Invalidate(ft)
	p.session.Dedup.Reset(ft)

	page, err := p.load(ctx, ft, modeReplace)

	if remain := p.opts.MinSpinnerTime - p.now().Sub(started); remain > 0 {
		select {
		case <-time.After(remain):
		case <-ctx.Done():
		}
	}
	return page, err
}

// RefillSilently fetches the next page in the background without
// flipping any loading flag, appending unseen items to the live list.
// Used by the coordinator while the cache is warm but not exhausted.
func (p *Paginator) RefillSilently(ctx context.Context, ft Type) {
	entry, ok := p.session.Cache.Get(ft)
	if !ok || !entry.HasMore || p.isInflight(ft) {
		return
	}
	if _, err := p.load(ctx, ft, modeSilent); err != nil {
		logging.Debug("silent refill skipped", "feed", ft, "error", err)
		return
	}
	if p.onUpdate != nil {
		p.onUpdate(ft)
	}
}

// revalidate refetches page one for a stale-but-served entry in the
// background and replaces the head with the fresh result. Distinct from
// the silent refill: a refill paginates deeper, this re-verifies what
// the viewer is already looking at.
func (p *Paginator) revalidate(ctx context.Context, ft Type) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if p.isInflight(ft) {
		return
	}
	if _, err := p.load(ctx, ft, modeRevalidate); err != nil {
		logging.Debug("background revalidation failed", "feed", ft, "error", err)
		return
	}
	if p.onUpdate != nil {
		p.onUpdate(ft)
	}
}

// load runs the full pipeline for one page. Serialized per feed type:
// a second call while one is outstanding returns the current snapshot.
func (p *Paginator) load(ctx context.Context, ft Type, mode loadMode) (*Page, error) {
	p.mu.Lock()
	if p.inflight[ft] {
		p.mu.Unlock()
		if entry, ok := p.session.Cache.Get(ft); ok {
			return pageFromEntry(entry), nil
		}
		return emptyPage(), nil
	}
	p.inflight[ft] = true
	if mode == modeReplace || mode == modeAppend {
		p.loading[ft] = true
		p.failed[ft] = false
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inflight[ft] = false
		p.loading[ft] = false
		p.mu.Unlock()
	}()

	page, err := p.loadPage(ctx, ft, mode)
	if err != nil {
		p.mu.Lock()
		if mode == modeReplace || mode == modeAppend {
			p.failed[ft] = true
		}
		p.mu.Unlock()
		return nil, err
	}
	return page, nil
}

// loadPage is the pipeline body: identity, social context, fetch with
// retries, ghost filter, cursor advance, dedup, enrichment, cache merge.
func (p *Paginator) loadPage(ctx context.Context, ft Type, mode loadMode) (*Page, error) {
	viewer := p.session.ViewerID()
	if viewer == "" {
		// No anonymous feed: defined to be empty, not an error
		return emptyPage(), nil
	}

	// The following feed of someone following nobody is empty by
	// definition; skip the post round-trip entirely.
	if ft == Following {
		followees, err := p.followingWithRetry(ctx)
		if err != nil {
			logging.Error("following list fetch failed after retries", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
		}
		if len(followees) == 0 {
			return emptyPage(), nil
		}
	}

	memberships, err := p.session.Memberships(ctx)
	if err != nil {
		// Memberships gate only group-scoped rows; a public-only feed
		// still works. Log and continue with none.
		logging.Warn("membership fetch failed, serving public scope only", "error", err)
		memberships = nil
	}

	query := backend.FeedQuery{
		ViewerID:    viewer,
		FeedType:    string(ft),
		Limit:       p.opts.PageSize,
		Memberships: memberships,
	}
	// Revalidation re-asks for the head: no cursor and no exclusions,
	// or the server would withhold exactly the rows being re-verified.
	if mode != modeRevalidate {
		query.ExcludeIDs = p.session.Dedup.Exclusions(ft)
	}
	if mode == modeAppend || mode == modeSilent {
		if entry, ok := p.session.Cache.Get(ft); ok && !entry.Cursor.IsZero() {
			cur := entry.Cursor
			query.Cursor = &cur
		}
	}

	rows, err := p.fetchWithRetry(ctx, query)
	if err != nil {
		logging.Error("page fetch failed after retries", "feed", ft, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	// Ghost filtering. HasMore derives from the raw count: a page full
	// of ghosts still means the server had a full page to give, and the
	// filtered count would end pagination prematurely.
	rawCount := len(rows)
	items := make([]Item, 0, rawCount)
	dropped := 0
	for _, row := range rows {
		it, ok := ItemFromRow(row)
		if !ok {
			dropped++
			continue
		}
		items = append(items, it)
	}
	if dropped > 0 {
		logging.Debug("dropped ghost rows", "feed", ft, "count", dropped)
	}
	hasMore := rawCount >= p.opts.PageSize

	// Cursor advances to the last valid row; when the whole page was
	// ghosts, advance past the raw tail anyway or the next request
	// would walk the same ghosts forever.
	var cursor backend.Cursor
	if len(items) > 0 {
		last := items[len(items)-1]
		cursor = backend.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	} else if rawCount > 0 {
		last := rows[rawCount-1]
		cursor = backend.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	if mode == modeRevalidate {
		// The fresh head supersedes the old one; its ids must not keep
		// excluding the replacement rows from future pages.
		p.session.Dedup.Reset(ft)
	}
	p.session.Dedup.Add(ft, ids...)

	users, groups := p.enrich(ctx, items)
	for i := range items {
		if u, ok := users[items[i].AuthorID]; ok {
			items[i].AuthorName = u.Name
		}
		if g, ok := groups[items[i].GroupID]; ok {
			items[i].GroupName = g
		}
	}

	p.session.Cache.Mutate(ft, func(e *Entry) {
		if e.Users == nil {
			e.Users = make(map[string]UserSummary)
		}
		switch mode {
		case modeReplace, modeRevalidate:
			e.Items = items
			e.Users = make(map[string]UserSummary)
		default:
			// Append, skipping anything a realtime prepend already put
			// in the list while this request was in flight.
			present := make(map[string]bool, len(e.Items))
			for _, it := range e.Items {
				present[it.ID] = true
			}
			for _, it := range items {
				if !present[it.ID] {
					e.Items = append(e.Items, it)
				}
			}
		}
		for id, u := range users {
			e.Users[id] = u
		}
		e.FetchedAt = p.now()
		if !cursor.IsZero() {
			e.Cursor = cursor
		}
		e.HasMore = hasMore
	})

	entry, _ := p.session.Cache.Get(ft)
	if entry == nil {
		return emptyPage(), nil
	}
	return pageFromEntry(entry), nil
}

// fetchWithRetry calls the ranked feed with exponential backoff up to
// the attempt cap.
func (p *Paginator) fetchWithRetry(ctx context.Context, q backend.FeedQuery) ([]backend.PostRow, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond

	return backoff.Retry(ctx, func() ([]backend.PostRow, error) {
		rows, err := p.client.RankedFeed(ctx, q)
		if err != nil {
			logging.Debug("ranked feed attempt failed", "feed", q.FeedType, "error", err)
			return nil, err
		}
		return rows, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(p.opts.RetryAttempts)))
}

// followingWithRetry resolves the follow list under the same backoff
// budget as the page fetch; the following feed cannot be built without it.
func (p *Paginator) followingWithRetry(ctx context.Context) ([]string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond

	return backoff.Retry(ctx, func() ([]string, error) {
		return p.session.Following(ctx)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(p.opts.RetryAttempts)))
}

// enrich batch-resolves author summaries and group names. Failure here
// degrades presentation, never blocks the items: callers get whatever
// resolved and render fallbacks for the rest.
func (p *Paginator) enrich(ctx context.Context, items []Item) (map[string]UserSummary, map[string]string) {
	authorSet := make(map[string]bool)
	groupSet := make(map[string]bool)
	for _, it := range items {
		authorSet[it.AuthorID] = true
		if it.GroupID != "" {
			groupSet[it.GroupID] = true
		}
	}

	users := make(map[string]UserSummary)
	groups := make(map[string]string)
	var umu, gmu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := p.client.UserSummaries(gctx, keys(authorSet))
		if err != nil {
			logging.Warn("user summary batch failed, rendering fallbacks", "error", err)
			return nil
		}
		umu.Lock()
		for id, row := range rows {
			users[id] = UserSummary{ID: row.ID, Handle: row.Handle, Name: row.Name, AvatarURL: row.AvatarURL}
		}
		umu.Unlock()
		return nil
	})
	if len(groupSet) > 0 {
		g.Go(func() error {
			names, err := p.client.GroupNames(gctx, keys(groupSet))
			if err != nil {
				logging.Warn("group name batch failed, rendering fallbacks", "error", err)
				return nil
			}
			gmu.Lock()
			for id, name := range names {
				groups[id] = name
			}
			gmu.Unlock()
			return nil
		})
	}
	g.Wait()

	return users, groups
}

func (p *Paginator) isInflight(ft Type) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight[ft]
}

func pageFromEntry(e *Entry) *Page {
	return &Page{Items: e.Items, Users: e.Users, HasMore: e.HasMore}
}

func emptyPage() *Page {
	return &Page{Items: []Item{}, Users: map[string]UserSummary{}, HasMore: false}
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
