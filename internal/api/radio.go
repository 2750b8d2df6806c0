/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/waxpress/waxradio/internal/catalog"
	"github.com/waxpress/waxradio/internal/liveaudio"
	"github.com/waxpress/waxradio/internal/queue"
)

// statusTrack is the wire shape of one playlist entry.
type statusTrack struct {
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

type statusResponse struct {
	Success        bool          `json:"success"`
	IsLive         bool          `json:"isLive"`
	Playlist       []statusTrack `json:"playlist"`
	CurrentTrack   *statusTrack  `json:"currentTrack"`
	TimeRemaining  float64       `json:"timeRemaining"`
	TotalListeners int           `json:"totalListeners"`
	PeakListeners  int           `json:"peakListeners"`
	Uptime         float64       `json:"uptime"`
	ServerTime     time.Time     `json:"serverTime"`
}

func (a *API) handleRadioStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if a.cache != nil {
		if cached, err := a.cache.GetStatus(ctx); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(cached)
			return
		}
	}

	meta := a.processor.GetMetadata()
	resp := statusResponse{
		Success:        true,
		IsLive:         meta.State == liveaudio.StateStreaming,
		Playlist:       []statusTrack{},
		TimeRemaining:  meta.TimeRemaining.Seconds(),
		TotalListeners: meta.TotalListeners,
		PeakListeners:  meta.PeakListeners,
		Uptime:         meta.Uptime.Seconds(),
		ServerTime:     time.Now().UTC(),
	}
	if meta.CurrentTrack != nil {
		entry := a.enrich(ctx, *meta.CurrentTrack)
		resp.CurrentTrack = &entry
	}
	for _, stream := range a.processor.Queue().Snapshot() {
		resp.Playlist = append(resp.Playlist, a.enrich(ctx, liveaudio.TrackInfo{
			ID:       stream.ID,
			TrackID:  stream.TrackID,
			Title:    stream.Title,
			Artist:   stream.Artist,
			Genre:    stream.Genre,
			Artwork:  stream.Artwork,
			Type:     stream.Type,
			Duration: stream.Duration,
		}))
	}

	body, err := json.Marshal(resp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	if a.cache != nil {
		a.cache.SetStatus(ctx, body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// enrich fills record label and NFT reference from the catalog; queue entries
// only carry playout metadata.
func (a *API) enrich(ctx context.Context, info liveaudio.TrackInfo) statusTrack {
	entry := statusTrack{
		ID:       info.TrackID,
		Name:     info.Title,
		Artist:   info.Artist,
		AlbumArt: info.Artwork,
		Duration: info.Duration.Seconds(),
		Genre:    info.Genre,
		IsAd:     info.Type == queue.TypeAd,
		IsIntro:  info.Type == queue.TypeTTS,
	}
	if entry.ID == "" {
		entry.ID = info.ID
	}
	if info.TrackID != "" {
		if track, err := a.catalog.Track(ctx, info.TrackID); err == nil {
			entry.RecordLabel = track.RecordLabel
			entry.NFTID = track.NFTID
		}
	}
	return entry
}

type controlRequest struct {
	Action  string                  `json:"action"`
	TrackID string                  `json:"trackId"`
	Config  *liveaudio.ConfigUpdate `json:"config"`
}

func (a *API) handleRadioControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	ctx := r.Context()

	switch req.Action {
	case "start":
		a.handleStart(ctx, w)
	case "stop":
		a.handleStop(ctx, w)
	case "add-track":
		a.handleEnqueue(ctx, w, req.TrackID, false)
	case "set-track":
		a.handleEnqueue(ctx, w, req.TrackID, true)
	case "skip":
		a.processor.Skip()
		a.invalidateStatus(ctx)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case "update-track", "update-config":
		if req.Config == nil {
			writeError(w, http.StatusBadRequest, "missing_config")
			return
		}
		a.processor.UpdateConfig(*req.Config)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		writeError(w, http.StatusBadRequest, "unknown_action")
	}
}

func (a *API) handleStart(ctx context.Context, w http.ResponseWriter) {
	// The subprocess must outlive this request.
	err := a.processor.StartStreaming(context.WithoutCancel(ctx), a.outputTarget)
	if errors.Is(err, liveaudio.ErrAlreadyStreaming) {
		// Not destructive: report the running stream instead of erroring.
		meta := a.processor.GetMetadata()
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"isLive":  true,
			"uptime":  meta.Uptime.Seconds(),
		})
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("start streaming failed")
		writeError(w, http.StatusInternalServerError, "start_failed")
		return
	}

	if stream, err := a.catalog.EnsureStream(ctx, a.streamName); err == nil {
		if err := a.catalog.SetLive(ctx, stream.ID, true, ""); err != nil {
			a.logger.Warn().Err(err).Msg("mark stream live failed")
		}
	}
	a.invalidateStatus(ctx)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "isLive": true})
}

func (a *API) handleStop(ctx context.Context, w http.ResponseWriter) {
	if err := a.processor.StopStreaming(); err != nil {
		writeError(w, http.StatusInternalServerError, "stop_failed")
		return
	}
	if stream, err := a.catalog.EnsureStream(ctx, a.streamName); err == nil {
		if err := a.catalog.SetLive(ctx, stream.ID, false, ""); err != nil {
			a.logger.Warn().Err(err).Msg("mark stream offline failed")
		}
	}
	a.invalidateStatus(ctx)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "isLive": false})
}

// handleEnqueue validates the track against the catalog before touching the
// queue; unknown ids never corrupt it.
func (a *API) handleEnqueue(ctx context.Context, w http.ResponseWriter, trackID string, playNow bool) {
	if trackID == "" {
		writeError(w, http.StatusBadRequest, "missing_track_id")
		return
	}
	track, err := a.catalog.Track(ctx, trackID)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}

	spec := queue.Spec{
		TrackID:  track.ID,
		URL:      track.AudioURL,
		Type:     queue.TypeMusic,
		Title:    track.Title,
		Artist:   track.Artist,
		Genre:    track.Genre,
		Artwork:  track.ArtworkURL,
		Duration: track.Duration,
	}
	var id string
	if playNow {
		id = a.processor.PlayNow(spec)
	} else {
		id = a.processor.Queue().Add(spec)
	}
	a.invalidateStatus(ctx)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "streamId": id})
}

type listenerReport struct {
	Count int `json:"count"`
}

func (a *API) handleListenerReport(w http.ResponseWriter, r *http.Request) {
	var report listenerReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if report.Count < 0 {
		writeError(w, http.StatusBadRequest, "invalid_count")
		return
	}
	a.processor.UpdateListenerCount(report.Count)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) invalidateStatus(ctx context.Context) {
	if a.cache != nil {
		a.cache.InvalidateStatus(ctx)
	}
}
