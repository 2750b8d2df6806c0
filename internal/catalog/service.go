/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog reads the radio-eligible track catalog maintained by the
// marketplace and records spins back into it.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/waxpress/waxradio/internal/models"
)

// ErrNotFound indicates the referenced track does not exist or is not eligible.
var ErrNotFound = errors.New("track not found")

// Service provides catalog queries for the playout and API layers.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New creates a catalog service.
func New(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{db: db, logger: logger.With().Str("component", "catalog").Logger()}
}

// EligibleTracks returns the full radio rotation catalog in stable order.
func (s *Service) EligibleTracks(ctx context.Context) ([]models.Track, error) {
	var tracks []models.Track
	err := s.db.WithContext(ctx).
		Where("eligible = ?", true).
		Order("created_at ASC, id ASC").
		Find(&tracks).Error
	return tracks, err
}

// Track resolves a single eligible track by id.
func (s *Service) Track(ctx context.Context, id string) (models.Track, error) {
	var track models.Track
	err := s.db.WithContext(ctx).First(&track, "id = ? AND eligible = ?", id, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Track{}, ErrNotFound
	}
	return track, err
}

// RecordPlay stores a spin and bumps the track play counter.
func (s *Service) RecordPlay(ctx context.Context, track models.Track) error {
	entry := models.PlayHistory{
		ID:        uuid.NewString(),
		TrackID:   track.ID,
		Artist:    track.Artist,
		Genre:     track.Genre,
		StartedAt: time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		return tx.Model(&models.Track{}).
			Where("id = ?", track.ID).
			UpdateColumn("play_count", gorm.Expr("play_count + 1")).Error
	})
}

// RecentPlays returns spins since the cutoff, newest first.
func (s *Service) RecentPlays(ctx context.Context, since time.Time) ([]models.PlayHistory, error) {
	var plays []models.PlayHistory
	err := s.db.WithContext(ctx).
		Where("started_at >= ?", since).
		Order("started_at DESC").
		Find(&plays).Error
	return plays, err
}

// SavePlaylist persists a generated playlist with its items.
func (s *Service) SavePlaylist(ctx context.Context, playlist *models.Playlist) error {
	return s.db.WithContext(ctx).Create(playlist).Error
}

// Playlist loads a stored playlist with its items in position order.
func (s *Service) Playlist(ctx context.Context, id string) (models.Playlist, error) {
	var playlist models.Playlist
	err := s.db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		First(&playlist, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Playlist{}, ErrNotFound
	}
	return playlist, err
}

// ActiveStream returns the single active radio stream, if any.
func (s *Service) ActiveStream(ctx context.Context) (models.RadioStream, error) {
	var stream models.RadioStream
	err := s.db.WithContext(ctx).First(&stream, "status = ?", models.StreamActive).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.RadioStream{}, ErrNotFound
	}
	return stream, err
}

// EnsureStream creates the named stream if missing and returns it.
func (s *Service) EnsureStream(ctx context.Context, name string) (models.RadioStream, error) {
	var stream models.RadioStream
	err := s.db.WithContext(ctx).First(&stream, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		stream = models.RadioStream{
			ID:     uuid.NewString(),
			Name:   name,
			Status: models.StreamActive,
		}
		err = s.db.WithContext(ctx).Create(&stream).Error
	}
	return stream, err
}

// SetLive flags the stream live state and current playlist reference.
func (s *Service) SetLive(ctx context.Context, streamID string, live bool, playlistID string) error {
	updates := map[string]any{"is_live": live}
	if playlistID != "" {
		updates["playlist_id"] = playlistID
	}
	return s.db.WithContext(ctx).Model(&models.RadioStream{}).
		Where("id = ?", streamID).
		Updates(updates).Error
}
