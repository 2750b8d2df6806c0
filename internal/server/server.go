/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server is the composition root: it wires the catalog, playout
// processor, playlist generator and HTTP surface together. The processor is
// a plain injected instance; process-wide singleton behavior comes from this
// package holding the one shared reference.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"github.com/waxpress/waxradio/internal/api"
	"github.com/waxpress/waxradio/internal/cache"
	"github.com/waxpress/waxradio/internal/catalog"
	"github.com/waxpress/waxradio/internal/config"
	"github.com/waxpress/waxradio/internal/db"
	"github.com/waxpress/waxradio/internal/eventbus"
	"github.com/waxpress/waxradio/internal/events"
	"github.com/waxpress/waxradio/internal/liveaudio"
	"github.com/waxpress/waxradio/internal/playlist"
	"github.com/waxpress/waxradio/internal/queue"
	"github.com/waxpress/waxradio/internal/source"
	"github.com/waxpress/waxradio/internal/telemetry"
	"github.com/waxpress/waxradio/internal/transcoder"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger

	db          *gorm.DB
	bus         *events.Bus
	bridge      *eventbus.Bridge
	cache       *cache.Cache
	catalog     *catalog.Service
	processor   *liveaudio.Processor
	metrics     *telemetry.Metrics
	httpServer  *http.Server
	metricsServ *http.Server

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New builds the full service graph from configuration.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	bus := events.NewBus()
	metrics := telemetry.NewMetrics()
	catalogSvc := catalog.New(database, logger)

	var statusCache *cache.Cache
	if cfg.RedisAddr != "" {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = cfg.RedisAddr
		cacheCfg.RedisPassword = cfg.RedisPassword
		cacheCfg.RedisDB = cfg.RedisDB
		statusCache = cache.New(cacheCfg, logger)
	}

	source.SweepOrphans(cfg.SpoolDir, logger)
	fetcher, err := source.NewFetcher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init source fetcher: %w", err)
	}

	prober := transcoder.NewProber(cfg.FFprobeBin, logger)
	mixer := transcoder.NewMixer(cfg.FFmpegBin, logger)
	pipeline := transcoder.NewPipeline(cfg.GStreamerBin, logger)

	processor := liveaudio.New(liveaudio.Deps{
		Queue:          queue.New(bus),
		Preparer:       liveaudio.NewTrackPreparer(fetcher, prober, logger),
		Renderer:       mixer,
		Pipeline:       pipeline,
		Bus:            bus,
		Metrics:        metrics,
		SpoolDir:       cfg.SpoolDir,
		TickInterval:   cfg.TickInterval,
		SegmentTimeout: cfg.SegmentTimeout,
	}, liveaudio.DefaultMixConfig(cfg.CrossfadeDuration), logger)

	if cfg.AlgorithmProfiles != "" {
		loaded, err := playlist.LoadProfiles(cfg.AlgorithmProfiles)
		if err != nil {
			return nil, fmt.Errorf("load algorithm profiles: %w", err)
		}
		logger.Info().Int("count", len(loaded)).Str("file", cfg.AlgorithmProfiles).Msg("algorithm profiles loaded")
	}
	generator := playlist.NewGenerator(catalogSvc, metrics, logger)
	bridge := eventbus.NewBridge(cfg.NATSURL, bus, logger)

	var jwtSecret []byte
	if cfg.JWTSigningKey != "" {
		jwtSecret = []byte(cfg.JWTSigningKey)
	}
	apiSvc := api.New(processor, generator, catalogSvc, statusCache, jwtSecret, cfg.OutputTarget, "main", logger)

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		db:        database,
		bus:       bus,
		bridge:    bridge,
		cache:     statusCache,
		catalog:   catalogSvc,
		processor: processor,
		metrics:   metrics,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
			Handler:           otelhttp.NewHandler(apiSvc.Routes(), "waxradio-api"),
			ReadHeaderTimeout: 10 * time.Second,
		},
		metricsServ: metricsServer(cfg.MetricsBind, metrics),
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel
	s.startBackground(bgCtx)
	return s, nil
}

func metricsServer(bind string, metrics *telemetry.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return &http.Server{
		Addr:              bind,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// HTTPServer returns the API server for the caller to run.
func (s *Server) HTTPServer() *http.Server { return s.httpServer }

// MetricsServer returns the Prometheus scrape server.
func (s *Server) MetricsServer() *http.Server { return s.metricsServ }

// Processor exposes the playout orchestrator for shutdown sequencing.
func (s *Server) Processor() *liveaudio.Processor { return s.processor }

// startBackground runs the event consumers that keep the catalog and cache
// in sync with playout.
func (s *Server) startBackground(ctx context.Context) {
	trackChanged := s.bus.Subscribe(events.EventTrackChanged)
	streamEnded := s.bus.Subscribe(events.EventStreamEnded)
	streamError := s.bus.Subscribe(events.EventStreamError)

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-trackChanged:
				if !ok {
					return
				}
				s.onTrackChanged(ctx, payload)
			case <-streamEnded:
				s.invalidateStatus(ctx)
			case <-streamError:
				s.invalidateStatus(ctx)
			}
		}
	}()
}

// onTrackChanged records the spin so popularity and recency scoring see it,
// and drops the cached status snapshot.
func (s *Server) onTrackChanged(ctx context.Context, payload events.Payload) {
	s.invalidateStatus(ctx)

	trackID, _ := payload["track_id"].(string)
	if trackID == "" {
		return
	}
	track, err := s.catalog.Track(ctx, trackID)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			s.logger.Warn().Err(err).Str("track_id", trackID).Msg("load track for spin record")
		}
		return
	}
	if err := s.catalog.RecordPlay(ctx, track); err != nil {
		s.logger.Warn().Err(err).Str("track_id", trackID).Msg("record spin")
	}
}

func (s *Server) invalidateStatus(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateStatus(ctx)
	}
}

// Close stops playout and releases all resources. Call after the HTTP server
// has shut down so in-flight control requests are not cut off.
func (s *Server) Close() error {
	var firstErr error

	if err := s.processor.StopStreaming(); err != nil && firstErr == nil {
		firstErr = err
	}

	s.bgCancel()
	s.bgWG.Wait()

	if err := s.bridge.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := db.Close(s.db); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
