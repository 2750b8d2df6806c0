/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package player implements the listener-side playback state machine. Each
// embedded player instance polls the status surface; polling is the only
// sync mechanism, so track changes are reflected within one poll interval.
package player

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the player lifecycle state.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// Track is the client-side view of a playlist entry.
type Track struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Artist      string  `json:"artist"`
	AlbumArt    string  `json:"albumArt"`
	Duration    float64 `json:"duration"`
	Genre       string  `json:"genre"`
	RecordLabel string  `json:"recordLabel"`
	IsAd        bool    `json:"isAd"`
	IsIntro     bool    `json:"isIntro"`
	NFTID       string  `json:"nftId"`
}

// Status is the authoritative server snapshot the client syncs against.
type Status struct {
	Success        bool    `json:"success"`
	IsLive         bool    `json:"isLive"`
	Playlist       []Track `json:"playlist"`
	CurrentTrack   *Track  `json:"currentTrack"`
	TimeRemaining  float64 `json:"timeRemaining"`
	TotalListeners int     `json:"totalListeners"`
	PeakListeners  int     `json:"peakListeners"`
	Uptime         float64 `json:"uptime"`
}

// pendingAction tags an optimistic local update with the control action that
// produced it. It is cleared by a confirming poll or an explicit revert.
type pendingAction struct {
	Action string
	Track  Track
}

// Config tunes one client instance.
type Config struct {
	BaseURL      string
	AuthToken    string
	PollInterval time.Duration
	// MaxStale bounds how long the last snapshot stays trustworthy. Past
	// it the client renders offline instead of stale now-playing data.
	MaxStale time.Duration
}

// Client is the single-threaded playback state machine. All methods are safe
// for concurrent use; internally one mutex serializes every transition.
type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger

	mu         sync.Mutex
	state      State
	status     Status
	lastSync   time.Time
	pending    *pendingAction
	lastTrack  string
	cacheToken string

	// UI-only state, never reported back as authoritative.
	volume float64
	muted  bool
	liked  map[string]bool
	filter string

	stopCh chan struct{}
	done   chan struct{}
}

// NewClient creates a player in the Loading state.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.MaxStale <= 0 {
		cfg.MaxStale = 3 * cfg.PollInterval
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logger.With().Str("component", "player").Logger(),
		state:  StateLoading,
		volume: 1.0,
		liked:  map[string]bool{},
	}
}

// Start begins the poll loop. Stop must be called to release it.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.stopCh != nil {
		c.mu.Unlock()
		return
	}
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	stopCh, done := c.stopCh, c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.Refresh(ctx)
		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				c.Refresh(ctx)
			}
		}
	}()
}

// Stop halts polling.
func (c *Client) Stop() {
	c.mu.Lock()
	stopCh, done := c.stopCh, c.done
	c.stopCh, c.done = nil, nil
	c.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
		<-done
	}
}

// Refresh re-fetches authoritative status and reconciles local state.
func (c *Client) Refresh(ctx context.Context) {
	status, err := c.fetchStatus(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("status poll failed")
		return
	}
	c.apply(status)
}

func (c *Client) fetchStatus(ctx context.Context) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/v1/radio/status", nil)
	if err != nil {
		return Status{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Status{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}
	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return Status{}, err
	}
	return status, nil
}

func (c *Client) apply(status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = status
	c.lastSync = time.Now()

	// A confirming poll clears the optimistic overlay.
	if c.pending != nil && status.CurrentTrack != nil && status.CurrentTrack.ID == c.pending.Track.ID {
		c.pending = nil
	}

	if c.state == StateLoading {
		c.state = StateReady
	}
	c.refreshCacheTokenLocked()
}

// refreshCacheTokenLocked rotates the artwork cache-bust token only when the
// displayed track id actually changes, never per render.
func (c *Client) refreshCacheTokenLocked() {
	id := ""
	if track := c.displayedTrackLocked(); track != nil {
		id = track.ID
	}
	if id != c.lastTrack {
		c.lastTrack = id
		c.cacheToken = strconv.FormatInt(time.Now().UnixNano(), 36)
	}
}

func (c *Client) displayedTrackLocked() *Track {
	if c.pending != nil {
		track := c.pending.Track
		return &track
	}
	if c.status.CurrentTrack != nil {
		track := *c.status.CurrentTrack
		return &track
	}
	return nil
}

// CurrentTrack returns the displayed track: the optimistic selection while a
// control call is pending, otherwise the last authoritative value.
func (c *Client) CurrentTrack() *Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayedTrackLocked()
}

// CacheToken returns the current artwork cache-bust token.
func (c *Client) CacheToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cacheToken
}

// State returns the playback state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Offline reports whether the client should render the stream as offline:
// the server says not live, or the snapshot has aged past MaxStale.
func (c *Client) Offline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastSync.IsZero() {
		return true
	}
	if time.Since(c.lastSync) > c.cfg.MaxStale {
		return true
	}
	return !c.status.IsLive
}

// Play transitions Ready or Paused into Playing.
func (c *Client) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady && c.state != StatePaused {
		return fmt.Errorf("cannot play from %s", c.state)
	}
	c.state = StatePlaying
	return nil
}

// Pause transitions Playing into Paused.
func (c *Client) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePlaying {
		return fmt.Errorf("cannot pause from %s", c.state)
	}
	c.state = StatePaused
	return nil
}

// SetVolume, ToggleMute, ToggleLike and SetFilter mutate UI-only state.
func (c *Client) SetVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v < 0 {
		v = 0
	}
	c.volume = v
}

func (c *Client) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

func (c *Client) ToggleMute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = !c.muted
	return c.muted
}

func (c *Client) ToggleLike(trackID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liked[trackID] = !c.liked[trackID]
	return c.liked[trackID]
}

func (c *Client) SetFilter(filter string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = filter
}

// SelectTrack optimistically displays the chosen track, then asks the
// control surface to switch to it. On failure the optimistic update is
// reverted and authoritative status re-fetched so the UI never sticks in an
// inconsistent state.
func (c *Client) SelectTrack(ctx context.Context, track Track) error {
	c.mu.Lock()
	c.pending = &pendingAction{Action: "set-track", Track: track}
	c.refreshCacheTokenLocked()
	c.mu.Unlock()

	err := c.sendControl(ctx, map[string]string{"action": "set-track", "trackId": track.ID})
	if err != nil {
		c.mu.Lock()
		c.pending = nil
		c.refreshCacheTokenLocked()
		c.mu.Unlock()
		c.Refresh(ctx)
		return fmt.Errorf("set track: %w", err)
	}
	return nil
}

func (c *Client) sendControl(ctx context.Context, body map[string]string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v1/radio/control", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("control endpoint returned %d", resp.StatusCode)
	}
	return nil
}
