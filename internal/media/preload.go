// Package media warms adjacent items' media ahead of the scroll.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/abelbrown/flick/internal/logging"
)

// Preloader issues short, bounded warm-up requests for media the viewer
// is about to reach. A timed-out preload is "try again later", never an
// error: the URL stays un-warmed and the next adjacency pass retries it.
type Preloader struct {
	client  *http.Client
	timeout time.Duration

	mu     sync.Mutex
	warmed map[string]bool
}

// NewPreloader creates a preloader with the given per-request timeout
func NewPreloader(timeout time.Duration) *Preloader {
	return &Preloader{
		client:  &http.Client{},
		warmed:  make(map[string]bool),
		timeout: timeout,
	}
}

// Warm preloads each URL not already warmed. Blocking; run it from a
// background goroutine, never the UI loop.
func (p *Preloader) Warm(ctx context.Context, urls []string) {
	for _, u := range urls {
		if u == "" || p.isWarmed(u) {
			continue
		}
		if err := p.head(ctx, u); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				logging.Debug("preload timed out, will retry later", "url", u)
			} else {
				logging.Debug("preload failed", "url", u, "error", err)
			}
			continue
		}
		p.markWarmed(u)
	}
}

// Forget drops the warmed marker so a URL is fetched again
func (p *Preloader) Forget(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.warmed, u)
}

func (p *Preloader) head(ctx context.Context, u string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("preload returned %d", resp.StatusCode)
	}
	return nil
}

func (p *Preloader) isWarmed(u string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.warmed[u]
}

func (p *Preloader) markWarmed(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warmed[u] = true
}
