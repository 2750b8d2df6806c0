/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// Track is a radio-eligible catalog entry. The catalog itself (upload,
// consent, artwork) is owned by the marketplace; waxradio only reads it.
type Track struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Title       string `gorm:"index"`
	Artist      string `gorm:"index"`
	Genre       string `gorm:"index"`
	RecordLabel string
	AudioURL    string
	ArtworkURL  string
	NFTID       string
	Duration    time.Duration
	PlayCount   int64
	Eligible    bool `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RadioStream is the administrative entity for one live rotation.
type RadioStream struct {
	ID         string       `gorm:"type:uuid;primaryKey"`
	Name       string       `gorm:"uniqueIndex"`
	Status     StreamStatus `gorm:"type:varchar(16)"`
	IsLive     bool
	PlaylistID string `gorm:"type:uuid"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StreamStatus tracks administrative state of a radio stream.
type StreamStatus string

const (
	StreamActive   StreamStatus = "active"
	StreamInactive StreamStatus = "inactive"
)

// Playlist is a generated ordered sequence of playable items.
type Playlist struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	Algorithm     string `gorm:"type:varchar(32)"`
	TrackCount    int
	TotalDuration time.Duration
	Items         []PlaylistItem `gorm:"foreignKey:PlaylistID"`
	CreatedAt     time.Time
}

// PlaylistItem is one entry of a playlist; intro/ad markers carry no TrackID.
type PlaylistItem struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	PlaylistID string `gorm:"type:uuid;index"`
	Position   int
	TrackID    string `gorm:"type:uuid;index"`
	IsIntro    bool
	IsAd       bool
	VoiceID    string
	Duration   time.Duration
}

// PlayHistory records completed spins, feeding popularity and recency scoring.
type PlayHistory struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	TrackID   string `gorm:"type:uuid;index"`
	Artist    string `gorm:"index"`
	Genre     string
	StartedAt time.Time `gorm:"index"`
}
