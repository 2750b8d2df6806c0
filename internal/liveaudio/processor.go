/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package liveaudio orchestrates the continuous radio output. A single
// background loop per stream consumes the queue, renders transitions, and
// feeds the encoder subprocess through a spool file.
package liveaudio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/waxpress/waxradio/internal/events"
	"github.com/waxpress/waxradio/internal/queue"
	"github.com/waxpress/waxradio/internal/telemetry"
	"github.com/waxpress/waxradio/internal/transcoder"
)

// ErrAlreadyStreaming is returned by StartStreaming while a session is live.
var ErrAlreadyStreaming = errors.New("already streaming")

// State is the processor lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateStreaming State = "streaming"
	StateStopping  State = "stopping"
	StateError     State = "error"
)

// PreparedSource is a downloaded, probed source ready for the renderer. The
// probed duration is authoritative and overrides whatever the enqueuer
// claimed.
type PreparedSource struct {
	Path     string
	Duration time.Duration
	cleanup  func()
}

// Cleanup releases the source's temp file. Safe to call twice.
func (s PreparedSource) Cleanup() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

// Preparer materializes a queued stream's audio locally.
type Preparer interface {
	Prepare(ctx context.Context, stream queue.AudioStream) (PreparedSource, error)
}

// SegmentRenderer renders playout segments to encoded files.
type SegmentRenderer interface {
	RenderCrossfade(ctx context.Context, spec transcoder.CrossfadeSpec, outPath string) error
	RenderDirect(ctx context.Context, spec transcoder.DirectSpec, outPath string) error
}

// OutputPipeline is the long running encoder subprocess boundary.
type OutputPipeline interface {
	Start(ctx context.Context, launch string) error
	Done() <-chan error
	Stop() error
}

// TrackInfo is display metadata for one stream on the timeline.
type TrackInfo struct {
	ID       string
	TrackID  string
	Title    string
	Artist   string
	Genre    string
	Artwork  string
	Type     queue.StreamType
	Duration time.Duration
}

// Metadata is a point-in-time snapshot of the stream. Always a copy; callers
// can never mutate processor state through it.
type Metadata struct {
	State          State
	CurrentTrack   *TrackInfo
	NextTrack      *TrackInfo
	TimeRemaining  time.Duration
	TotalListeners int
	PeakListeners  int
	Uptime         time.Duration
}

// Deps are the processor's collaborators, injected by the composition root.
type Deps struct {
	Queue          *queue.Queue
	Preparer       Preparer
	Renderer       SegmentRenderer
	Pipeline       OutputPipeline
	Bus            *events.Bus
	Metrics        *telemetry.Metrics
	SpoolDir       string
	TickInterval   time.Duration
	SegmentTimeout time.Duration
}

// Processor owns the continuous-output lifecycle for one radio stream.
type Processor struct {
	queue          *queue.Queue
	preparer       Preparer
	renderer       SegmentRenderer
	pipeline       OutputPipeline
	bus            *events.Bus
	metrics        *telemetry.Metrics
	logger         zerolog.Logger
	spoolDir       string
	tickInterval   time.Duration
	segmentTimeout time.Duration

	mu             sync.Mutex
	state          State
	cfg            MixConfig
	spoolPath      string
	startedAt      time.Time
	stopping       bool
	skip           bool
	current        *queue.AudioStream
	currentSrc     PreparedSource
	currentStarted time.Time
	timeline       time.Duration // end offset of the last scheduled stream
	totalListeners int
	peakListeners  int
	stopCh         chan struct{}
	loopDone       chan struct{}
}

// New constructs an idle processor.
func New(deps Deps, cfg MixConfig, logger zerolog.Logger) *Processor {
	if deps.TickInterval <= 0 {
		deps.TickInterval = time.Second
	}
	if deps.SegmentTimeout <= 0 {
		deps.SegmentTimeout = time.Minute
	}
	return &Processor{
		queue:          deps.Queue,
		preparer:       deps.Preparer,
		renderer:       deps.Renderer,
		pipeline:       deps.Pipeline,
		bus:            deps.Bus,
		metrics:        deps.Metrics,
		logger:         logger.With().Str("component", "liveaudio").Logger(),
		spoolDir:       deps.SpoolDir,
		tickInterval:   deps.TickInterval,
		segmentTimeout: deps.SegmentTimeout,
		state:          StateIdle,
		cfg:            cfg.clone(),
	}
}

// Queue returns the stream backlog.
func (p *Processor) Queue() *queue.Queue { return p.queue }

// State reports the current lifecycle state.
func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// StartStreaming spawns the encoder subprocess writing to outputTarget and
// begins the processing loop. Fails with ErrAlreadyStreaming unless Idle.
func (p *Processor) StartStreaming(ctx context.Context, outputTarget string) error {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return ErrAlreadyStreaming
	}
	// Session channels exist before the lock drops so a concurrent
	// StopStreaming during Starting has something to signal and wait on.
	p.state = StateStarting
	p.stopping = false
	p.skip = false
	p.timeline = 0
	p.stopCh = make(chan struct{})
	p.loopDone = make(chan struct{})
	loopDone := p.loopDone
	p.mu.Unlock()

	spool, err := os.CreateTemp(p.spoolDir, "waxradio-mix-*.mp3")
	if err != nil {
		close(loopDone)
		p.setState(StateIdle)
		return fmt.Errorf("create spool file: %w", err)
	}
	spoolPath := spool.Name()
	spool.Close()

	launch := transcoder.EncodeLaunch(spoolPath, outputTarget)
	if err := p.pipeline.Start(ctx, launch); err != nil {
		_ = os.Remove(spoolPath)
		close(loopDone)
		p.setState(StateIdle)
		return fmt.Errorf("start encoder: %w", err)
	}

	p.mu.Lock()
	if p.stopping {
		// A stop came in while the encoder was spawning. Closing loopDone
		// releases the waiting StopStreaming, which owns the teardown.
		p.mu.Unlock()
		_ = os.Remove(spoolPath)
		close(loopDone)
		return fmt.Errorf("streaming stopped during startup")
	}
	p.state = StateStreaming
	p.spoolPath = spoolPath
	p.startedAt = time.Now()
	p.mu.Unlock()

	p.logger.Info().Str("target", outputTarget).Msg("streaming started")
	p.publish(events.EventStreamStarted, events.Payload{"target": outputTarget})

	go p.loop()
	go p.watchPipeline()
	return nil
}

// StopStreaming signals the subprocess and returns once the loop has exited.
// No-op when already Idle; safe to call repeatedly.
func (p *Processor) StopStreaming() error {
	p.mu.Lock()
	if p.state == StateIdle || p.stopping {
		p.mu.Unlock()
		return nil
	}
	p.stopping = true
	p.state = StateStopping
	stopCh := p.stopCh
	loopDone := p.loopDone
	p.mu.Unlock()

	close(stopCh)
	<-loopDone
	_ = p.pipeline.Stop()
	p.cleanupSession()
	p.setState(StateIdle)

	p.logger.Info().Msg("streaming stopped")
	p.publish(events.EventStreamEnded, events.Payload{"reason": "stopped"})
	return nil
}

// UpdateConfig merges update into the mix config atomically. Takes effect on
// the next mix computation; no restart required.
func (p *Processor) UpdateConfig(update ConfigUpdate) {
	p.mu.Lock()
	p.cfg = p.cfg.merged(update)
	p.mu.Unlock()
}

// Config returns a copy of the current mix config.
func (p *Processor) Config() MixConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.clone()
}

// UpdateListenerCount records the latest listener report; the peak only ever
// rises.
func (p *Processor) UpdateListenerCount(n int) {
	p.mu.Lock()
	p.totalListeners = n
	if n > p.peakListeners {
		p.peakListeners = n
	}
	total, peak := p.totalListeners, p.peakListeners
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.Listeners.Set(float64(total))
		p.metrics.PeakListeners.Set(float64(peak))
	}
	p.publish(events.EventListenerStats, events.Payload{"total": total, "peak": peak})
}

// Skip makes the loop transition to the next queued stream on its next
// iteration instead of waiting out the current track.
func (p *Processor) Skip() {
	p.mu.Lock()
	p.skip = true
	p.mu.Unlock()
}

// PlayNow enqueues spec at the queue head and skips to it.
func (p *Processor) PlayNow(spec queue.Spec) string {
	id := p.queue.AddFront(spec)
	p.Skip()
	return id
}

// GetMetadata returns an immutable snapshot of the stream state.
func (p *Processor) GetMetadata() Metadata {
	p.mu.Lock()
	meta := Metadata{
		State:          p.state,
		TotalListeners: p.totalListeners,
		PeakListeners:  p.peakListeners,
	}
	if p.state == StateStreaming || p.state == StateStopping {
		meta.Uptime = time.Since(p.startedAt)
	}
	if p.current != nil {
		info := trackInfo(*p.current)
		meta.CurrentTrack = &info
		remaining := p.currentSrc.Duration - time.Since(p.currentStarted)
		if remaining < 0 {
			remaining = 0
		}
		meta.TimeRemaining = remaining
	}
	p.mu.Unlock()

	if head := p.queue.Snapshot(); len(head) > 0 {
		info := trackInfo(head[0])
		meta.NextTrack = &info
	}
	return meta
}

func trackInfo(s queue.AudioStream) TrackInfo {
	return TrackInfo{
		ID:       s.ID,
		TrackID:  s.TrackID,
		Title:    s.Title,
		Artist:   s.Artist,
		Genre:    s.Genre,
		Artwork:  s.Artwork,
		Type:     s.Type,
		Duration: s.Duration,
	}
}

func (p *Processor) loop() {
	defer close(p.loopDone)

	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.step()
		}
	}
}

// step runs one loop iteration. The queue is only consumed when there is no
// current track, a skip was requested, or the current track has entered its
// crossfade window; otherwise the iteration is a no-op and an empty queue
// idles without ending the stream.
func (p *Processor) step() {
	p.mu.Lock()
	if p.state != StateStreaming {
		p.mu.Unlock()
		return
	}
	cfg := p.cfg
	current := p.current
	skip := p.skip
	stopCh := p.stopCh
	var remaining time.Duration
	if current != nil {
		remaining = p.currentSrc.Duration - time.Since(p.currentStarted)
	}
	p.mu.Unlock()

	if current != nil && !skip && remaining > cfg.CrossfadeDuration {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.segmentTimeout)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Source-prep failures skip the entry; the stream keeps going.
	for {
		next, ok := p.queue.DequeueNext()
		if !ok {
			return
		}
		prepared, err := p.preparer.Prepare(ctx, next)
		if err != nil {
			p.logger.Warn().Err(err).
				Str("stream_id", next.ID).
				Str("url", next.URL).
				Msg("source preparation failed, skipping track")
			if p.metrics != nil {
				p.metrics.SourceSkips.Inc()
			}
			continue
		}
		p.transition(ctx, cfg, current, next, prepared, skip)
		return
	}
}

// transition renders the playout segment for next (crossfaded with current
// when possible) and appends it to the spool the encoder is reading.
func (p *Processor) transition(ctx context.Context, cfg MixConfig, current *queue.AudioStream, next queue.AudioStream, prepared PreparedSource, skip bool) {
	seg, err := os.CreateTemp(p.spoolDir, "waxradio-seg-*.mp3")
	if err != nil {
		p.logger.Error().Err(err).Msg("create segment file")
		prepared.Cleanup()
		return
	}
	segPath := seg.Name()
	seg.Close()
	defer os.Remove(segPath)

	renderStart := time.Now()
	volume := cfg.volumeFor(next)
	crossfaded := false

	p.mu.Lock()
	currentSrc := p.currentSrc
	p.mu.Unlock()

	// Reserve the new track's final window so the following transition can
	// replay it under its fade-out. Short tracks are spooled whole.
	reserve := time.Duration(0)
	if cfg.AutoFade && cfg.CrossfadeDuration > 0 && prepared.Duration > 2*cfg.CrossfadeDuration {
		reserve = cfg.CrossfadeDuration
	}

	if current != nil && !skip && cfg.AutoFade && cfg.CrossfadeDuration > 0 {
		win := ComputeWindow(currentSrc.Duration, prepared.Duration, cfg.CrossfadeDuration)
		err := p.renderer.RenderCrossfade(ctx, transcoder.CrossfadeSpec{
			CurrentPath:     currentSrc.Path,
			NextPath:        prepared.Path,
			CurrentDuration: currentSrc.Duration,
			NextDuration:    prepared.Duration,
			Window:          win.Length,
			ReserveTail:     reserve,
			CurrentVolume:   cfg.volumeFor(*current),
			NextVolume:      volume,
			Normalize:       cfg.NormalizeAudio,
		}, segPath)
		if err != nil {
			// Availability beats smoothness: fall back to a hard cut.
			p.logger.Warn().Err(err).Msg("crossfade failed, hard cutting")
			if p.metrics != nil {
				p.metrics.CrossfadeFailures.Inc()
			}
		} else {
			crossfaded = true
		}
	}

	if !crossfaded {
		err := p.renderer.RenderDirect(ctx, transcoder.DirectSpec{
			SourcePath:  prepared.Path,
			Duration:    prepared.Duration,
			Volume:      volume,
			ReserveTail: reserve,
			Normalize:   cfg.NormalizeAudio,
		}, segPath)
		if err != nil {
			p.logger.Error().Err(err).Str("stream_id", next.ID).Msg("segment render failed, skipping track")
			if p.metrics != nil {
				p.metrics.SourceSkips.Inc()
			}
			prepared.Cleanup()
			return
		}
	}

	p.mu.Lock()
	spoolPath := p.spoolPath
	p.mu.Unlock()
	if err := appendFile(spoolPath, segPath); err != nil {
		p.logger.Error().Err(err).Msg("append segment to spool")
	}

	if p.metrics != nil {
		p.metrics.SegmentRenderTime.Observe(time.Since(renderStart).Seconds())
		p.metrics.TracksPlayed.Inc()
	}

	// Schedule bookkeeping: a crossfaded stream starts inside the previous
	// one's window so endTime - startTime stays equal to duration.
	next.Duration = prepared.Duration
	p.mu.Lock()
	oldSrc := p.currentSrc
	start := p.timeline
	if crossfaded {
		win := ComputeWindow(currentSrc.Duration, prepared.Duration, cfg.CrossfadeDuration)
		start -= win.Length
		if start < 0 {
			start = 0
		}
	}
	next.StartTime = start
	next.EndTime = start + next.Duration
	p.timeline = next.EndTime
	p.current = &next
	p.currentSrc = prepared
	p.currentStarted = time.Now()
	p.skip = false
	p.mu.Unlock()
	oldSrc.Cleanup()

	p.logger.Info().
		Str("stream_id", next.ID).
		Str("title", next.Title).
		Str("artist", next.Artist).
		Dur("duration", next.Duration).
		Bool("crossfade", crossfaded).
		Msg("track changed")
	p.publish(events.EventTrackChanged, events.Payload{
		"stream_id": next.ID,
		"track_id":  next.TrackID,
		"title":     next.Title,
		"artist":    next.Artist,
		"duration":  next.Duration.Seconds(),
		"crossfade": crossfaded,
	})
}

// watchPipeline reaps the encoder subprocess. An unexpected exit tears the
// session down and reports it exactly once; deliberate stops are reported by
// StopStreaming instead.
func (p *Processor) watchPipeline() {
	done := p.pipeline.Done()
	if done == nil {
		return
	}
	err := <-done

	p.mu.Lock()
	if p.stopping || p.state == StateIdle {
		p.mu.Unlock()
		return
	}
	p.stopping = true
	p.state = StateError
	stopCh := p.stopCh
	loopDone := p.loopDone
	p.mu.Unlock()

	close(stopCh)
	<-loopDone
	p.cleanupSession()
	p.setState(StateIdle)

	p.logger.Error().Err(err).Msg("encoder subprocess exited unexpectedly")
	if p.metrics != nil {
		p.metrics.SubprocessExits.WithLabelValues("error").Inc()
	}
	payload := events.Payload{"reason": "subprocess"}
	if err != nil {
		payload["error"] = err.Error()
	}
	p.publish(events.EventStreamError, payload)
}

// cleanupSession removes per-session files and resets track state.
func (p *Processor) cleanupSession() {
	p.mu.Lock()
	src := p.currentSrc
	spoolPath := p.spoolPath
	p.current = nil
	p.currentSrc = PreparedSource{}
	p.spoolPath = ""
	p.timeline = 0
	p.mu.Unlock()

	src.Cleanup()
	if spoolPath != "" {
		_ = os.Remove(spoolPath)
	}
}

func (p *Processor) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Processor) publish(eventType events.EventType, payload events.Payload) {
	if p.bus != nil {
		p.bus.Publish(eventType, payload)
	}
}

func appendFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
