/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/waxpress/waxradio/internal/catalog"
	"github.com/waxpress/waxradio/internal/playlist"
)

type generateRequest struct {
	MaxDuration   float64 `json:"maxDuration"` // seconds
	IncludeTTS    bool    `json:"includeTTS"`
	VoiceID       string  `json:"voiceId"`
	ShuffleTracks bool    `json:"shuffleTracks"`
	Algorithm     string  `json:"algorithm"`
	Genre         string  `json:"genre"`
}

func (a *API) handlePlaylistGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if req.MaxDuration <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_max_duration")
		return
	}

	generated, err := a.generator.Generate(r.Context(), playlist.Request{
		MaxDuration:   time.Duration(req.MaxDuration * float64(time.Second)),
		IncludeTTS:    req.IncludeTTS,
		VoiceID:       req.VoiceID,
		ShuffleTracks: req.ShuffleTracks,
		Algorithm:     req.Algorithm,
		Genre:         req.Genre,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("playlist generation failed")
		writeError(w, http.StatusBadRequest, "generation_failed")
		return
	}
	if a.cache != nil {
		a.cache.SetPlaylist(r.Context(), *generated)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"playlistId":    generated.ID,
		"algorithm":     generated.Algorithm,
		"trackCount":    generated.TrackCount,
		"totalDuration": generated.TotalDuration.Seconds(),
	})
}

func (a *API) handleAlgorithms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"algorithms": playlist.Algorithms(),
	})
}

func (a *API) handlePlaylistGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "playlistID")

	if a.cache != nil {
		if cached, err := a.cache.GetPlaylist(r.Context(), id); err == nil {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "playlist": cached})
			return
		}
	}

	stored, err := a.catalog.Playlist(r.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	if a.cache != nil {
		a.cache.SetPlaylist(r.Context(), stored)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "playlist": stored})
}
