/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package liveaudio

import (
	"time"

	"github.com/waxpress/waxradio/internal/queue"
)

// MixConfig holds the process-wide mix tunables. Read by every mix
// computation; replaced as a whole on update so readers never see a
// half-applied change.
type MixConfig struct {
	MasterVolume      float64
	CrossfadeDuration time.Duration
	TypeVolumes       map[queue.StreamType]float64
	AutoFade          bool
	NormalizeAudio    bool
}

// DefaultMixConfig returns the rotation defaults: full master gain, ads and
// spoken intros slightly below music.
func DefaultMixConfig(crossfade time.Duration) MixConfig {
	return MixConfig{
		MasterVolume:      1.0,
		CrossfadeDuration: crossfade,
		TypeVolumes: map[queue.StreamType]float64{
			queue.TypeMusic:      1.0,
			queue.TypeTTS:        0.9,
			queue.TypeAd:         0.85,
			queue.TypeTransition: 0.8,
		},
		AutoFade:       true,
		NormalizeAudio: true,
	}
}

func (c MixConfig) clone() MixConfig {
	out := c
	out.TypeVolumes = make(map[queue.StreamType]float64, len(c.TypeVolumes))
	for k, v := range c.TypeVolumes {
		out.TypeVolumes[k] = v
	}
	return out
}

func (c MixConfig) volumeFor(stream queue.AudioStream) float64 {
	vol := stream.Volume
	if vol <= 0 {
		vol = 1.0
	}
	if tv, ok := c.TypeVolumes[stream.Type]; ok && tv > 0 {
		vol *= tv
	}
	if c.MasterVolume > 0 {
		vol *= c.MasterVolume
	}
	return vol
}

// ConfigUpdate is a partial MixConfig. Nil fields keep their current value;
// a non-nil TypeVolumes map is merged key by key.
type ConfigUpdate struct {
	MasterVolume      *float64                     `json:"masterVolume"`
	CrossfadeDuration *float64                     `json:"crossfadeDuration"` // seconds
	TypeVolumes       map[queue.StreamType]float64 `json:"typeVolumes"`
	AutoFade          *bool                        `json:"autoFade"`
	NormalizeAudio    *bool                        `json:"normalizeAudio"`
}

func (c MixConfig) merged(update ConfigUpdate) MixConfig {
	out := c.clone()
	if update.MasterVolume != nil {
		out.MasterVolume = *update.MasterVolume
	}
	if update.CrossfadeDuration != nil {
		out.CrossfadeDuration = time.Duration(*update.CrossfadeDuration * float64(time.Second))
	}
	for k, v := range update.TypeVolumes {
		out.TypeVolumes[k] = v
	}
	if update.AutoFade != nil {
		out.AutoFade = *update.AutoFade
	}
	if update.NormalizeAudio != nil {
		out.NormalizeAudio = *update.NormalizeAudio
	}
	return out
}
