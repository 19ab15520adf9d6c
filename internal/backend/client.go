package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ErrUnavailable wraps transport-level failures so callers can treat
// them uniformly as retryable.
var ErrUnavailable = errors.New("backend unavailable")

// Client is the surface the feed engine needs from the backend.
// An interface so tests inject fakes; the HTTP client is the real thing.
type Client interface {
	// RankedFeed returns rows in created-at descending order.
	RankedFeed(ctx context.Context, q FeedQuery) ([]PostRow, error)

	// Following returns the ids the viewer follows.
	Following(ctx context.Context, viewerID string) ([]string, error)

	// Memberships returns the viewer's group/circle ids.
	Memberships(ctx context.Context, viewerID string) ([]string, error)

	// UserSummaries resolves user rows in one batch.
	UserSummaries(ctx context.Context, ids []string) (map[string]UserRow, error)

	// GroupNames resolves group display names in one batch.
	GroupNames(ctx context.Context, ids []string) (map[string]string, error)
}

// HTTPClient talks JSON over HTTP to the hosted backend.
// Rate-limited client-side so a scroll frenzy cannot hammer the API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient creates a client for the given base URL
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, ratePerSecond int) *HTTPClient {
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), ratePerSecond),
	}
}

// RankedFeed calls the ranked-feed endpoint
func (c *HTTPClient) RankedFeed(ctx context.Context, q FeedQuery) ([]PostRow, error) {
	var resp struct {
		Rows []PostRow `json:"rows"`
	}
	if err := c.post(ctx, "/v1/feed/ranked", q, &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// Following returns followed user ids for the viewer
func (c *HTTPClient) Following(ctx context.Context, viewerID string) ([]string, error) {
	var resp struct {
		IDs []string `json:"ids"`
	}
	path := "/v1/users/" + url.PathEscape(viewerID) + "/following"
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

// Memberships returns the viewer's group ids
func (c *HTTPClient) Memberships(ctx context.Context, viewerID string) ([]string, error) {
	var resp struct {
		IDs []string `json:"ids"`
	}
	path := "/v1/users/" + url.PathEscape(viewerID) + "/memberships"
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

// UserSummaries resolves a batch of user ids
func (c *HTTPClient) UserSummaries(ctx context.Context, ids []string) (map[string]UserRow, error) {
	if len(ids) == 0 {
		return map[string]UserRow{}, nil
	}
	var resp struct {
		Users map[string]UserRow `json:"users"`
	}
	req := struct {
		IDs []string `json:"ids"`
	}{IDs: ids}
	if err := c.post(ctx, "/v1/users/batch", req, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// GroupNames resolves a batch of group ids to display names
func (c *HTTPClient) GroupNames(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	var resp struct {
		Names map[string]string `json:"names"`
	}
	req := struct {
		IDs []string `json:"ids"`
	}{IDs: ids}
	if err := c.post(ctx, "/v1/groups/names", req, &resp); err != nil {
		return nil, err
	}
	return resp.Names, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}

	req.Header.Set("User-Agent", "Flick/0.2 (terminal client)")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: server returned %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned %d for %s", resp.StatusCode, req.URL.Path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
