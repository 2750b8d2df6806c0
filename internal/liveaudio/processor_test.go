package liveaudio

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/waxpress/waxradio/internal/events"
	"github.com/waxpress/waxradio/internal/queue"
	"github.com/waxpress/waxradio/internal/transcoder"
)

type fakePreparer struct {
	mu       sync.Mutex
	dir      string
	duration time.Duration
	failures int // fail this many leading calls
	calls    int
}

func (f *fakePreparer) Prepare(_ context.Context, _ queue.AudioStream) (PreparedSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return PreparedSource{}, errors.New("download failed")
	}
	tmp, err := os.CreateTemp(f.dir, "fake-src-*")
	if err != nil {
		return PreparedSource{}, err
	}
	tmp.Close()
	path := tmp.Name()
	return PreparedSource{
		Path:     path,
		Duration: f.duration,
		cleanup:  func() { _ = os.Remove(path) },
	}, nil
}

type fakeRenderer struct {
	mu        sync.Mutex
	cross     int
	direct    int
	failCross bool
}

func (f *fakeRenderer) RenderCrossfade(_ context.Context, _ transcoder.CrossfadeSpec, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cross++
	if f.failCross {
		return errors.New("mixer crashed")
	}
	return nil
}

func (f *fakeRenderer) RenderDirect(_ context.Context, _ transcoder.DirectSpec, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct++
	return nil
}

func (f *fakeRenderer) counts() (cross, direct int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cross, f.direct
}

type fakePipeline struct {
	mu      sync.Mutex
	done    chan error
	exited  bool
	started int
	stopped int
}

func (f *fakePipeline) Start(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	f.done = make(chan error, 1)
	f.exited = false
	return nil
}

func (f *fakePipeline) Done() <-chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

func (f *fakePipeline) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	f.exitLocked(nil)
	return nil
}

// exit simulates the subprocess terminating with err.
func (f *fakePipeline) exit(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exitLocked(err)
}

func (f *fakePipeline) exitLocked(err error) {
	if f.exited || f.done == nil {
		return
	}
	f.exited = true
	f.done <- err
	close(f.done)
}

// blockingPipeline holds Start until release is closed, pinning the
// processor in Starting.
type blockingPipeline struct {
	release chan struct{}

	mu   sync.Mutex
	done chan error
}

func (p *blockingPipeline) Start(_ context.Context, _ string) error {
	<-p.release
	p.mu.Lock()
	p.done = make(chan error, 1)
	p.mu.Unlock()
	return nil
}

func (p *blockingPipeline) Done() <-chan error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *blockingPipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		p.done <- nil
		close(p.done)
		p.done = nil
	}
	return nil
}

type fixture struct {
	processor *Processor
	preparer  *fakePreparer
	renderer  *fakeRenderer
	pipeline  *fakePipeline
	bus       *events.Bus
}

func newFixture(t *testing.T, trackDuration time.Duration) *fixture {
	t.Helper()
	dir := t.TempDir()
	bus := events.NewBus()
	prep := &fakePreparer{dir: dir, duration: trackDuration}
	rend := &fakeRenderer{}
	pipe := &fakePipeline{}

	p := New(Deps{
		Queue:          queue.New(bus),
		Preparer:       prep,
		Renderer:       rend,
		Pipeline:       pipe,
		Bus:            bus,
		SpoolDir:       dir,
		TickInterval:   5 * time.Millisecond,
		SegmentTimeout: time.Second,
	}, DefaultMixConfig(2*time.Second), zerolog.Nop())

	return &fixture{processor: p, preparer: prep, renderer: rend, pipeline: pipe, bus: bus}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStartWhileStreamingFails(t *testing.T) {
	f := newFixture(t, 30*time.Second)
	if err := f.processor.StartStreaming(context.Background(), "/tmp/out.mp3"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f.processor.StopStreaming()

	if err := f.processor.StartStreaming(context.Background(), "/tmp/out.mp3"); !errors.Is(err, ErrAlreadyStreaming) {
		t.Fatalf("second start: got %v, want ErrAlreadyStreaming", err)
	}
}

func TestLoopPlaysQueuedTrack(t *testing.T) {
	f := newFixture(t, 30*time.Second)
	changed := f.bus.Subscribe(events.EventTrackChanged)

	if err := f.processor.StartStreaming(context.Background(), "/tmp/out.mp3"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f.processor.StopStreaming()

	f.processor.Queue().Add(queue.Spec{
		TrackID: "track-1",
		URL:     "https://cdn.example.com/track-1.mp3",
		Type:    queue.TypeMusic,
		Title:   "Blue Vinyl",
	})

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("no trackChanged event")
	}

	meta := f.processor.GetMetadata()
	if meta.CurrentTrack == nil || meta.CurrentTrack.TrackID != "track-1" {
		t.Fatalf("current track %+v, want track-1", meta.CurrentTrack)
	}
	if meta.TimeRemaining <= 29*time.Second || meta.TimeRemaining > 30*time.Second {
		t.Fatalf("time remaining %s, want about 30s", meta.TimeRemaining)
	}
	if meta.State != StateStreaming {
		t.Fatalf("state %s, want streaming", meta.State)
	}
}

func TestStopStreamingIdempotent(t *testing.T) {
	f := newFixture(t, 30*time.Second)
	if err := f.processor.StartStreaming(context.Background(), "/tmp/out.mp3"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := f.processor.StopStreaming(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if got := f.processor.State(); got != StateIdle {
		t.Fatalf("state %s, want idle", got)
	}
	if err := f.processor.StopStreaming(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if got := f.processor.State(); got != StateIdle {
		t.Fatalf("state after second stop %s, want idle", got)
	}
}

func TestStopWhileStartingAbortsCleanly(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus()
	pipe := &blockingPipeline{release: make(chan struct{})}

	p := New(Deps{
		Queue:          queue.New(bus),
		Preparer:       &fakePreparer{dir: dir, duration: 30 * time.Second},
		Renderer:       &fakeRenderer{},
		Pipeline:       pipe,
		Bus:            bus,
		SpoolDir:       dir,
		TickInterval:   5 * time.Millisecond,
		SegmentTimeout: time.Second,
	}, DefaultMixConfig(2*time.Second), zerolog.Nop())

	startErr := make(chan error, 1)
	go func() {
		startErr <- p.StartStreaming(context.Background(), "/tmp/out.mp3")
	}()
	waitFor(t, time.Second, func() bool { return p.State() == StateStarting })

	stopErr := make(chan error, 1)
	go func() {
		stopErr <- p.StopStreaming()
	}()
	waitFor(t, time.Second, func() bool { return p.State() == StateStopping })

	close(pipe.release)

	if err := <-startErr; err == nil {
		t.Fatal("aborted start must report an error")
	}
	if err := <-stopErr; err != nil {
		t.Fatalf("stop during starting: %v", err)
	}
	waitFor(t, time.Second, func() bool { return p.State() == StateIdle })

	// The processor must be usable again after the aborted session.
	if err := p.StartStreaming(context.Background(), "/tmp/out.mp3"); err != nil {
		t.Fatalf("restart after aborted start: %v", err)
	}
	defer p.StopStreaming()
	if got := p.State(); got != StateStreaming {
		t.Fatalf("state %s, want streaming", got)
	}
}

func TestSubprocessFailureEmitsStreamErrorOnce(t *testing.T) {
	f := newFixture(t, 30*time.Second)
	errs := f.bus.Subscribe(events.EventStreamError)

	if err := f.processor.StartStreaming(context.Background(), "/tmp/out.mp3"); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.pipeline.exit(errors.New("exit status 1"))

	select {
	case payload := <-errs:
		if payload["reason"] != "subprocess" {
			t.Fatalf("unexpected payload %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no streamError event")
	}

	waitFor(t, time.Second, func() bool { return f.processor.State() == StateIdle })

	select {
	case payload := <-errs:
		t.Fatalf("second streamError event: %v", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPeakListenersMonotonic(t *testing.T) {
	f := newFixture(t, 30*time.Second)
	for _, n := range []int{5, 12, 3} {
		f.processor.UpdateListenerCount(n)
	}
	meta := f.processor.GetMetadata()
	if meta.TotalListeners != 3 {
		t.Fatalf("total %d, want 3", meta.TotalListeners)
	}
	if meta.PeakListeners != 12 {
		t.Fatalf("peak %d, want 12", meta.PeakListeners)
	}
}

func TestCrossfadeFailureFallsBackToHardCut(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond) // shorter than the crossfade window
	f.renderer.failCross = true

	if err := f.processor.StartStreaming(context.Background(), "/tmp/out.mp3"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f.processor.StopStreaming()

	f.processor.Queue().Add(queue.Spec{TrackID: "a", URL: "https://cdn/a.mp3", Type: queue.TypeMusic})
	f.processor.Queue().Add(queue.Spec{TrackID: "b", URL: "https://cdn/b.mp3", Type: queue.TypeMusic})

	waitFor(t, 2*time.Second, func() bool {
		cross, direct := f.renderer.counts()
		return cross >= 1 && direct >= 2
	})

	if got := f.processor.State(); got != StateStreaming {
		t.Fatalf("state %s, want streaming after fallback", got)
	}
}

func TestSourcePrepFailureSkipsToNextTrack(t *testing.T) {
	f := newFixture(t, 30*time.Second)
	f.preparer.failures = 1
	changed := f.bus.Subscribe(events.EventTrackChanged)

	if err := f.processor.StartStreaming(context.Background(), "/tmp/out.mp3"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f.processor.StopStreaming()

	f.processor.Queue().Add(queue.Spec{TrackID: "broken", URL: "https://cdn/broken.mp3", Type: queue.TypeMusic})
	f.processor.Queue().Add(queue.Spec{TrackID: "good", URL: "https://cdn/good.mp3", Type: queue.TypeMusic})

	select {
	case payload := <-changed:
		if payload["track_id"] != "good" {
			t.Fatalf("played %v, want good", payload["track_id"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no trackChanged event")
	}
}

func TestUpdateConfigMergesPartially(t *testing.T) {
	f := newFixture(t, 30*time.Second)
	master := 0.5
	f.processor.UpdateConfig(ConfigUpdate{MasterVolume: &master})

	cfg := f.processor.Config()
	if cfg.MasterVolume != 0.5 {
		t.Fatalf("master volume %f, want 0.5", cfg.MasterVolume)
	}
	if cfg.CrossfadeDuration != 2*time.Second {
		t.Fatalf("crossfade %s, want unchanged 2s", cfg.CrossfadeDuration)
	}
	if !cfg.AutoFade {
		t.Fatal("autoFade lost on partial update")
	}
}

func TestPlayNowSkipsCurrentTrack(t *testing.T) {
	f := newFixture(t, 30*time.Second)
	changed := f.bus.Subscribe(events.EventTrackChanged)

	if err := f.processor.StartStreaming(context.Background(), "/tmp/out.mp3"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f.processor.StopStreaming()

	f.processor.Queue().Add(queue.Spec{TrackID: "first", URL: "https://cdn/first.mp3", Type: queue.TypeMusic})
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("first track never started")
	}

	f.processor.PlayNow(queue.Spec{TrackID: "urgent", URL: "https://cdn/urgent.mp3", Type: queue.TypeMusic})
	select {
	case payload := <-changed:
		if payload["track_id"] != "urgent" {
			t.Fatalf("played %v, want urgent", payload["track_id"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("play-now track never started")
	}
}
