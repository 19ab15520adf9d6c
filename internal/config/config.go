package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config is the persistent application configuration
type Config struct {
	// Backend API settings
	Backend BackendConfig `json:"backend"`

	// Realtime event settings
	Realtime RealtimeConfig `json:"realtime"`

	// Feed engine tuning
	Feed FeedConfig `json:"feed"`

	// Playback settings
	Playback PlaybackConfig `json:"playback"`

	// Scroll reconciliation tuning
	Scroll ScrollConfig `json:"scroll"`

	// UI Preferences
	UI UIConfig `json:"ui"`
}

// BackendConfig holds hosted backend settings
type BackendConfig struct {
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	RatePerSecond  int    `json:"rate_per_second"` // client-side request rate cap
}

// RealtimeConfig holds event stream settings
type RealtimeConfig struct {
	URL     string `json:"url"` // NATS server URL
	Enabled bool   `json:"enabled"`
}

// FeedConfig holds feed cache and pagination tuning
type FeedConfig struct {
	PageSize             int `json:"page_size"`
	CacheTTLSeconds      int `json:"cache_ttl_seconds"`
	MembershipTTLSeconds int `json:"membership_ttl_seconds"`
	MaxCachedItems       int `json:"max_cached_items"`   // oldest trimmed beyond this
	MaxExcludedIDs       int `json:"max_excluded_ids"`   // dedup set cap
	RetryAttempts        int `json:"retry_attempts"`
	MinSpinnerMillis     int `json:"min_spinner_millis"` // refresh UX floor
}

// PlaybackConfig holds playback coordination settings
type PlaybackConfig struct {
	PositionCacheSize int `json:"position_cache_size"` // LRU entries
	MinSaveOffsetMs   int `json:"min_save_offset_ms"`  // below this, position not worth saving
	PreloadTimeoutMs  int `json:"preload_timeout_ms"`
}

// ScrollConfig holds the bounce-correction heuristic thresholds.
// These are tuned empirically against observed paging physics, not
// derived. Adjust per platform, validate with integration runs.
type ScrollConfig struct {
	BounceWindowMs        int     `json:"bounce_window_ms"`        // two settles within this window
	MinDragPages          float64 `json:"min_drag_pages"`          // drag big enough to turn a page
	MinBouncePages        float64 `json:"min_bounce_pages"`        // below this, sub-pixel noise
	CooldownMs            int     `json:"cooldown_ms"`             // suppress corrections after one fires
	ViewabilityDebounceMs int     `json:"viewability_debounce_ms"` // mid-drag update rate limit
	LongBackgroundSec     int     `json:"long_background_sec"`     // past this, foreground resets feed
}

// UIConfig holds UI preferences
type UIConfig struct {
	Theme       string `json:"theme"`
	StartMuted  bool   `json:"start_muted"`
	DensityMode string `json:"density_mode"` // "comfortable" or "compact"
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:        "https://api.flick.example.com",
			TimeoutSeconds: 15,
			RatePerSecond:  5,
		},
		Realtime: RealtimeConfig{
			URL:     "nats://realtime.flick.example.com:4222",
			Enabled: true,
		},
		Feed: FeedConfig{
			PageSize:             20,
			CacheTTLSeconds:      300,
			MembershipTTLSeconds: 60,
			MaxCachedItems:       200,
			MaxExcludedIDs:       500,
			RetryAttempts:        3,
			MinSpinnerMillis:     400,
		},
		Playback: PlaybackConfig{
			PositionCacheSize: 100,
			MinSaveOffsetMs:   250,
			PreloadTimeoutMs:  3000,
		},
		Scroll: ScrollConfig{
			BounceWindowMs:        350,
			MinDragPages:          0.5,
			MinBouncePages:        0.2,
			CooldownMs:            600,
			ViewabilityDebounceMs: 80,
			LongBackgroundSec:     1800,
		},
		UI: UIConfig{
			Theme:       "dark",
			StartMuted:  true,
			DensityMode: "comfortable",
		},
	}
}

// configPath returns the config file location
func configPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".flick", "config.json"), nil
}

// Load reads the config file, filling defaults for anything missing.
// A missing file is not an error - returns defaults.
func Load() (*Config, error) {
	cfg := Default()

	path, err := configPath()
	if err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return Default(), err
	}
	cfg.fillDefaults()
	return cfg, nil
}

// fillDefaults repairs zero values left by older config files
func (c *Config) fillDefaults() {
	d := Default()
	if c.Feed.PageSize <= 0 {
		c.Feed.PageSize = d.Feed.PageSize
	}
	if c.Feed.CacheTTLSeconds <= 0 {
		c.Feed.CacheTTLSeconds = d.Feed.CacheTTLSeconds
	}
	if c.Feed.MembershipTTLSeconds <= 0 {
		c.Feed.MembershipTTLSeconds = d.Feed.MembershipTTLSeconds
	}
	if c.Feed.MaxCachedItems <= 0 {
		c.Feed.MaxCachedItems = d.Feed.MaxCachedItems
	}
	if c.Feed.MaxExcludedIDs <= 0 {
		c.Feed.MaxExcludedIDs = d.Feed.MaxExcludedIDs
	}
	if c.Feed.RetryAttempts <= 0 {
		c.Feed.RetryAttempts = d.Feed.RetryAttempts
	}
	if c.Playback.PositionCacheSize <= 0 {
		c.Playback.PositionCacheSize = d.Playback.PositionCacheSize
	}
	if c.Scroll.BounceWindowMs <= 0 {
		c.Scroll = d.Scroll
	}
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = d.Backend.TimeoutSeconds
	}
	if c.Backend.RatePerSecond <= 0 {
		c.Backend.RatePerSecond = d.Backend.RatePerSecond
	}
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// CacheTTL returns the feed cache TTL as a duration
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Feed.CacheTTLSeconds) * time.Second
}

// MembershipTTL returns the membership cache TTL as a duration
func (c *Config) MembershipTTL() time.Duration {
	return time.Duration(c.Feed.MembershipTTLSeconds) * time.Second
}
