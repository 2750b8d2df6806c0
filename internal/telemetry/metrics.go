/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the radio instrumentation on a dedicated registry so tests
// can construct isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	Listeners         prometheus.Gauge
	PeakListeners     prometheus.Gauge
	TracksPlayed      prometheus.Counter
	CrossfadeFailures prometheus.Counter
	SourceSkips       prometheus.Counter
	SubprocessExits   *prometheus.CounterVec
	PlaylistsBuilt    *prometheus.CounterVec
	SegmentRenderTime prometheus.Histogram
}

// NewMetrics creates the metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Listeners: factory.NewGauge(prometheus.GaugeOpts{
			Name: "waxradio_listeners",
			Help: "Current reported listener count.",
		}),
		PeakListeners: factory.NewGauge(prometheus.GaugeOpts{
			Name: "waxradio_peak_listeners",
			Help: "Highest listener count observed since startup.",
		}),
		TracksPlayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "waxradio_tracks_played_total",
			Help: "Tracks transitioned into the live mix.",
		}),
		CrossfadeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "waxradio_crossfade_failures_total",
			Help: "Crossfade renders that fell back to a hard cut.",
		}),
		SourceSkips: factory.NewCounter(prometheus.CounterOpts{
			Name: "waxradio_source_skips_total",
			Help: "Queued tracks skipped because download or probing failed.",
		}),
		SubprocessExits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "waxradio_subprocess_exits_total",
			Help: "Encoder subprocess exits by outcome.",
		}, []string{"outcome"}),
		PlaylistsBuilt: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "waxradio_playlists_built_total",
			Help: "Generated playlists by algorithm.",
		}, []string{"algorithm"}),
		SegmentRenderTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "waxradio_segment_render_seconds",
			Help:    "Wall time spent rendering one playout segment.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
