/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the radio status and control surface consumed by the
// marketplace admin tooling and playback clients.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/waxpress/waxradio/internal/auth"
	"github.com/waxpress/waxradio/internal/cache"
	"github.com/waxpress/waxradio/internal/liveaudio"
	"github.com/waxpress/waxradio/internal/models"
	"github.com/waxpress/waxradio/internal/playlist"
)

// Catalog is the content-store surface the handlers need.
type Catalog interface {
	Track(ctx context.Context, id string) (models.Track, error)
	EnsureStream(ctx context.Context, name string) (models.RadioStream, error)
	SetLive(ctx context.Context, streamID string, live bool, playlistID string) error
	Playlist(ctx context.Context, id string) (models.Playlist, error)
}

// API exposes HTTP handlers.
type API struct {
	processor    *liveaudio.Processor
	generator    *playlist.Generator
	catalog      Catalog
	cache        *cache.Cache
	jwtSecret    []byte
	outputTarget string
	streamName   string
	logger       zerolog.Logger
}

// New creates the API router wrapper. The cache may be nil.
func New(processor *liveaudio.Processor, generator *playlist.Generator, cat Catalog, statusCache *cache.Cache, jwtSecret []byte, outputTarget, streamName string, logger zerolog.Logger) *API {
	if streamName == "" {
		streamName = "main"
	}
	return &API{
		processor:    processor,
		generator:    generator,
		catalog:      cat,
		cache:        statusCache,
		jwtSecret:    jwtSecret,
		outputTarget: outputTarget,
		streamName:   streamName,
		logger:       logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts all endpoints. Status queries are public; control and
// generation require a bearer token when a secret is configured.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Route("/radio", func(r chi.Router) {
			r.Get("/status", a.handleRadioStatus)
			r.Post("/listeners", a.handleListenerReport)
			r.With(auth.Middleware(a.jwtSecret)).Post("/control", a.handleRadioControl)
		})

		r.Route("/playlists", func(r chi.Router) {
			r.Get("/algorithms", a.handleAlgorithms)
			r.Get("/{playlistID}", a.handlePlaylistGet)
			r.With(auth.Middleware(a.jwtSecret)).Post("/generate", a.handlePlaylistGenerate)
		})
	})

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"success": false, "error": code})
}
