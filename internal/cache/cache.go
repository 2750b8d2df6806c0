/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for the hot read paths:
// the radio status snapshot polled by every listener and generated playlists.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/waxpress/waxradio/internal/models"
)

// Default TTL values
const (
	DefaultStatusTTL   = 2 * time.Second
	DefaultPlaylistTTL = time.Hour
)

// Key prefixes
const (
	keyStatus   = "waxradio:cache:status"
	keyPlaylist = "waxradio:cache:playlist:" // + playlist_id
)

// ErrMiss is returned when the key is absent or the cache is disabled.
var ErrMiss = errors.New("cache miss")

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StatusTTL   time.Duration
	PlaylistTTL time.Duration

	// DisableOnError trips a circuit breaker on Redis errors instead of
	// failing the read path.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		StatusTTL:      DefaultStatusTTL,
		PlaylistTTL:    DefaultPlaylistTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback. All getters
// return ErrMiss rather than a Redis error when the cache is unusable; the
// caller always has the database as the source of truth.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a cache. The connection is verified lazily; an unreachable
// Redis degrades to pass-through rather than failing startup.
func New(cfg Config, logger zerolog.Logger) *Cache {
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = DefaultStatusTTL
	}
	if cfg.PlaylistTTL <= 0 {
		cfg.PlaylistTTL = DefaultPlaylistTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}
}

// GetStatus returns the cached status snapshot bytes.
func (c *Cache) GetStatus(ctx context.Context) ([]byte, error) {
	return c.get(ctx, keyStatus)
}

// SetStatus stores the status snapshot with a short TTL so pollers share one
// render without observing stale track data for long.
func (c *Cache) SetStatus(ctx context.Context, payload []byte) {
	c.set(ctx, keyStatus, payload, c.config.StatusTTL)
}

// InvalidateStatus drops the snapshot, used on track change and control
// actions so the next poll reflects the new state immediately.
func (c *Cache) InvalidateStatus(ctx context.Context) {
	if c.isDisabled() {
		return
	}
	if err := c.client.Del(ctx, keyStatus).Err(); err != nil {
		c.fault(err)
	}
}

// GetPlaylist returns a cached playlist by id.
func (c *Cache) GetPlaylist(ctx context.Context, id string) (models.Playlist, error) {
	data, err := c.get(ctx, keyPlaylist+id)
	if err != nil {
		return models.Playlist{}, err
	}
	var playlist models.Playlist
	if err := json.Unmarshal(data, &playlist); err != nil {
		return models.Playlist{}, ErrMiss
	}
	return playlist, nil
}

// SetPlaylist stores a playlist.
func (c *Cache) SetPlaylist(ctx context.Context, playlist models.Playlist) {
	data, err := json.Marshal(playlist)
	if err != nil {
		return
	}
	c.set(ctx, keyPlaylist+playlist.ID, data, c.config.PlaylistTTL)
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, error) {
	if c.isDisabled() {
		return nil, ErrMiss
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		c.fault(err)
		return nil, ErrMiss
	}
	return data, nil
}

func (c *Cache) set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if c.isDisabled() {
		return
	}
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		c.fault(err)
	}
}

func (c *Cache) isDisabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.disabled
}

func (c *Cache) fault(err error) {
	if !c.config.DisableOnError {
		return
	}
	c.mu.Lock()
	already := c.disabled
	c.disabled = true
	c.mu.Unlock()
	if !already {
		c.logger.Warn().Err(err).Msg("redis unavailable, caching disabled")
	}
}
