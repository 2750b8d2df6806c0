/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/waxpress/waxradio/internal/models"
	"github.com/waxpress/waxradio/internal/telemetry"
)

// scoreEpsilon bounds float comparison when grouping equal-score ties.
const scoreEpsilon = 1e-9

// introDuration is the nominal length of a generated spoken track intro.
// Intros are markers for the TTS stage and do not count against the music
// duration budget.
const introDuration = 8 * time.Second

// artistWindow is how many recently selected tracks an artist repeat is
// penalized within.
const artistWindow = 3

// Catalog is the slice of the content store the generator needs.
type Catalog interface {
	EligibleTracks(ctx context.Context) ([]models.Track, error)
	SavePlaylist(ctx context.Context, playlist *models.Playlist) error
}

// Request configures one generation run. MaxDuration bounds the cumulative
// music duration; intro markers are not counted against it.
type Request struct {
	MaxDuration   time.Duration
	IncludeTTS    bool
	VoiceID       string
	ShuffleTracks bool
	Algorithm     string
	Genre         string // target genre for genreSpecific
}

// Generator builds and persists playlists from the eligible catalog.
type Generator struct {
	catalog Catalog
	metrics *telemetry.Metrics
	logger  zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a generator. Metrics may be nil in tests.
func NewGenerator(cat Catalog, metrics *telemetry.Metrics, logger zerolog.Logger) *Generator {
	return &Generator{
		catalog: cat,
		metrics: metrics,
		logger:  logger.With().Str("component", "playlist").Logger(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Generate scores and selects tracks per the requested algorithm, persists
// the resulting playlist, and returns it. An exhausted duration budget with
// no fitting tracks yields an empty playlist, not an error.
func (g *Generator) Generate(ctx context.Context, req Request) (*models.Playlist, error) {
	alg, ok := AlgorithmByName(req.Algorithm)
	if !ok {
		return nil, fmt.Errorf("unknown algorithm %q", req.Algorithm)
	}

	tracks, err := g.catalog.EligibleTracks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	selected := g.selectTracks(tracks, alg, req)

	playlist := &models.Playlist{
		ID:        uuid.NewString(),
		Algorithm: alg.Name,
		CreatedAt: time.Now().UTC(),
	}
	position := 0
	for _, track := range selected {
		if req.IncludeTTS {
			playlist.Items = append(playlist.Items, models.PlaylistItem{
				ID:         uuid.NewString(),
				PlaylistID: playlist.ID,
				Position:   position,
				IsIntro:    true,
				VoiceID:    req.VoiceID,
				Duration:   introDuration,
			})
			position++
		}
		playlist.Items = append(playlist.Items, models.PlaylistItem{
			ID:         uuid.NewString(),
			PlaylistID: playlist.ID,
			Position:   position,
			TrackID:    track.ID,
			Duration:   track.Duration,
		})
		position++
		playlist.TrackCount++
		playlist.TotalDuration += track.Duration
	}

	if err := g.catalog.SavePlaylist(ctx, playlist); err != nil {
		return nil, fmt.Errorf("save playlist: %w", err)
	}
	if g.metrics != nil {
		g.metrics.PlaylistsBuilt.WithLabelValues(alg.Name).Inc()
	}
	g.logger.Info().
		Str("playlist_id", playlist.ID).
		Str("algorithm", alg.Name).
		Int("tracks", playlist.TrackCount).
		Dur("total_duration", playlist.TotalDuration).
		Msg("playlist generated")
	return playlist, nil
}

type candidate struct {
	track models.Track
	index int // original catalog position, the deterministic tie-break
}

// selectTracks runs the greedy weighted selection. Each round scores every
// remaining candidate against the running diversity counters and picks the
// best one that still fits the budget.
func (g *Generator) selectTracks(tracks []models.Track, alg Algorithm, req Request) []models.Track {
	candidates := make([]candidate, 0, len(tracks))
	for i, track := range tracks {
		if track.Duration <= 0 {
			continue
		}
		candidates = append(candidates, candidate{track: track, index: i})
	}

	var maxPlay int64
	oldest, newest := time.Time{}, time.Time{}
	for _, c := range candidates {
		if c.track.PlayCount > maxPlay {
			maxPlay = c.track.PlayCount
		}
		if oldest.IsZero() || c.track.CreatedAt.Before(oldest) {
			oldest = c.track.CreatedAt
		}
		if c.track.CreatedAt.After(newest) {
			newest = c.track.CreatedAt
		}
	}

	budget := req.MaxDuration
	genreCounts := map[string]int{}
	artistCounts := map[string]int{}
	var selected []models.Track

	for len(candidates) > 0 {
		bestScore := -1.0
		var ties []int
		for i, c := range candidates {
			if c.track.Duration > budget {
				continue
			}
			score := g.score(c.track, alg.Weights, req.Genre, selected, genreCounts, artistCounts, maxPlay, oldest, newest)
			switch {
			case score > bestScore+scoreEpsilon:
				bestScore = score
				ties = append(ties[:0], i)
			case score > bestScore-scoreEpsilon:
				ties = append(ties, i)
			}
		}
		if len(ties) == 0 {
			break
		}

		// Equal scores keep catalog order unless shuffling was asked for;
		// shuffle never reorders across score groups.
		pick := ties[0]
		if req.ShuffleTracks && len(ties) > 1 {
			g.mu.Lock()
			pick = ties[g.rng.Intn(len(ties))]
			g.mu.Unlock()
		}

		chosen := candidates[pick]
		selected = append(selected, chosen.track)
		budget -= chosen.track.Duration
		genreCounts[strings.ToLower(chosen.track.Genre)]++
		artistCounts[strings.ToLower(chosen.track.Artist)]++
		candidates = append(candidates[:pick], candidates[pick+1:]...)
	}
	return selected
}

func (g *Generator) score(track models.Track, w Weights, targetGenre string, selected []models.Track, genreCounts, artistCounts map[string]int, maxPlay int64, oldest, newest time.Time) float64 {
	genreScore := 0.5
	if targetGenre != "" {
		if strings.EqualFold(track.Genre, targetGenre) {
			genreScore = 1.0
		} else {
			genreScore = 0.0
		}
	}

	recentRepeats := 0
	for i := len(selected) - 1; i >= 0 && i >= len(selected)-artistWindow; i-- {
		if strings.EqualFold(selected[i].Artist, track.Artist) {
			recentRepeats++
		}
	}
	artistScore := 1.0 / float64(1+recentRepeats)

	popScore := 0.0
	if maxPlay > 0 {
		popScore = float64(track.PlayCount) / float64(maxPlay)
	}

	recencyScore := 0.5
	if span := newest.Sub(oldest); span > 0 {
		recencyScore = float64(track.CreatedAt.Sub(oldest)) / float64(span)
	}

	diversityScore := 1.0 / float64(1+genreCounts[strings.ToLower(track.Genre)]+artistCounts[strings.ToLower(track.Artist)])

	return w.Genre*genreScore +
		w.Artist*artistScore +
		w.Popularity*popScore +
		w.Recency*recencyScore +
		w.Diversity*diversityScore
}
