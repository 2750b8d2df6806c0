package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/waxpress/waxradio/internal/auth"
	"github.com/waxpress/waxradio/internal/catalog"
	"github.com/waxpress/waxradio/internal/events"
	"github.com/waxpress/waxradio/internal/liveaudio"
	"github.com/waxpress/waxradio/internal/models"
	"github.com/waxpress/waxradio/internal/playlist"
	"github.com/waxpress/waxradio/internal/queue"
	"github.com/waxpress/waxradio/internal/transcoder"
)

var testSecret = []byte("test-secret")

type fakeCatalog struct {
	tracks    map[string]models.Track
	playlists map[string]models.Playlist
	stream    models.RadioStream
	liveState *bool
	saved     *models.Playlist
}

func (f *fakeCatalog) Track(_ context.Context, id string) (models.Track, error) {
	track, ok := f.tracks[id]
	if !ok {
		return models.Track{}, catalog.ErrNotFound
	}
	return track, nil
}

func (f *fakeCatalog) EnsureStream(context.Context, string) (models.RadioStream, error) {
	return f.stream, nil
}

func (f *fakeCatalog) SetLive(_ context.Context, _ string, live bool, _ string) error {
	f.liveState = &live
	return nil
}

func (f *fakeCatalog) Playlist(_ context.Context, id string) (models.Playlist, error) {
	stored, ok := f.playlists[id]
	if !ok {
		return models.Playlist{}, catalog.ErrNotFound
	}
	return stored, nil
}

func (f *fakeCatalog) EligibleTracks(context.Context) ([]models.Track, error) {
	out := make([]models.Track, 0, len(f.tracks))
	for _, track := range f.tracks {
		out = append(out, track)
	}
	return out, nil
}

func (f *fakeCatalog) SavePlaylist(_ context.Context, p *models.Playlist) error {
	f.saved = p
	return nil
}

type nopPreparer struct{}

func (nopPreparer) Prepare(context.Context, queue.AudioStream) (liveaudio.PreparedSource, error) {
	return liveaudio.PreparedSource{}, errors.New("not used in api tests")
}

type nopRenderer struct{}

func (nopRenderer) RenderCrossfade(context.Context, transcoder.CrossfadeSpec, string) error {
	return nil
}

func (nopRenderer) RenderDirect(context.Context, transcoder.DirectSpec, string) error {
	return nil
}

type nopPipeline struct{ done chan error }

func (p *nopPipeline) Start(context.Context, string) error {
	p.done = make(chan error, 1)
	return nil
}

func (p *nopPipeline) Done() <-chan error { return p.done }

func (p *nopPipeline) Stop() error {
	if p.done != nil {
		select {
		case <-p.done:
		default:
			p.done <- nil
			close(p.done)
		}
	}
	return nil
}

type harness struct {
	api       *API
	processor *liveaudio.Processor
	catalog   *fakeCatalog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cat := &fakeCatalog{
		tracks:    map[string]models.Track{},
		playlists: map[string]models.Playlist{},
		stream:    models.RadioStream{ID: "stream-1", Name: "main"},
	}
	bus := events.NewBus()
	processor := liveaudio.New(liveaudio.Deps{
		Queue:    queue.New(bus),
		Preparer: nopPreparer{},
		Renderer: nopRenderer{},
		Pipeline: &nopPipeline{},
		Bus:      bus,
		SpoolDir: t.TempDir(),
		// The loop must never interfere with handler assertions.
		TickInterval:   time.Hour,
		SegmentTimeout: time.Second,
	}, liveaudio.DefaultMixConfig(3*time.Second), zerolog.Nop())
	t.Cleanup(func() { _ = processor.StopStreaming() })

	generator := playlist.NewGenerator(cat, nil, zerolog.Nop())
	a := New(processor, generator, cat, nil, testSecret, "/tmp/live.mp3", "main", zerolog.Nop())
	return &harness{api: a, processor: processor, catalog: cat}
}

func (h *harness) request(t *testing.T, method, path string, body any, token bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token {
		signed, err := auth.Issue(testSecret, auth.Claims{UserID: "admin-1", Roles: []string{"admin"}}, time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+signed)
	}
	rec := httptest.NewRecorder()
	h.api.Routes().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.request(t, http.MethodGet, "/api/v1/health", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
}

func TestStatusWhenOffline(t *testing.T) {
	h := newHarness(t)
	rec := h.request(t, http.MethodGet, "/api/v1/radio/status", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	body := decode(t, rec)
	if body["success"] != true {
		t.Fatal("success false")
	}
	if body["isLive"] != false {
		t.Fatal("offline stream reported live")
	}
	if body["currentTrack"] != nil {
		t.Fatalf("current track %v, want null", body["currentTrack"])
	}
}

func TestControlRequiresAuth(t *testing.T) {
	h := newHarness(t)
	rec := h.request(t, http.MethodPost, "/api/v1/radio/control", map[string]string{"action": "stop"}, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rec.Code)
	}
}

func TestControlUnknownTrack(t *testing.T) {
	h := newHarness(t)
	rec := h.request(t, http.MethodPost, "/api/v1/radio/control",
		map[string]string{"action": "add-track", "trackId": "missing"}, true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
	body := decode(t, rec)
	if body["error"] != "not_found" {
		t.Fatalf("error %v, want not_found", body["error"])
	}
	if h.processor.Queue().Len() != 0 {
		t.Fatal("unknown track id corrupted the queue")
	}
}

func TestControlAddTrack(t *testing.T) {
	h := newHarness(t)
	h.catalog.tracks["track-1"] = models.Track{
		ID:       "track-1",
		Title:    "Blue Vinyl",
		Artist:   "artist-1",
		AudioURL: "https://cdn.example.com/track-1.mp3",
		Duration: 3 * time.Minute,
		Eligible: true,
	}

	rec := h.request(t, http.MethodPost, "/api/v1/radio/control",
		map[string]string{"action": "add-track", "trackId": "track-1"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if h.processor.Queue().Len() != 1 {
		t.Fatalf("queue length %d, want 1", h.processor.Queue().Len())
	}
	snapshot := h.processor.Queue().Snapshot()
	if snapshot[0].TrackID != "track-1" {
		t.Fatalf("queued track %s, want track-1", snapshot[0].TrackID)
	}
}

func TestControlStartIsIdempotentish(t *testing.T) {
	h := newHarness(t)

	rec := h.request(t, http.MethodPost, "/api/v1/radio/control", map[string]string{"action": "start"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: status %d: %s", rec.Code, rec.Body.String())
	}
	if h.processor.State() != liveaudio.StateStreaming {
		t.Fatalf("state %s, want streaming", h.processor.State())
	}
	if h.catalog.liveState == nil || !*h.catalog.liveState {
		t.Fatal("stream not marked live in catalog")
	}

	// Second start reports the running stream instead of failing.
	rec = h.request(t, http.MethodPost, "/api/v1/radio/control", map[string]string{"action": "start"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("second start: status %d", rec.Code)
	}
	if decode(t, rec)["success"] != true {
		t.Fatal("second start not reported as success")
	}

	rec = h.request(t, http.MethodPost, "/api/v1/radio/control", map[string]string{"action": "stop"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: status %d", rec.Code)
	}
	if h.processor.State() != liveaudio.StateIdle {
		t.Fatalf("state %s, want idle", h.processor.State())
	}

	rec = h.request(t, http.MethodPost, "/api/v1/radio/control", map[string]string{"action": "stop"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("second stop: status %d", rec.Code)
	}
}

func TestControlUpdateTrackConfig(t *testing.T) {
	h := newHarness(t)

	crossfade := 5.0
	rec := h.request(t, http.MethodPost, "/api/v1/radio/control",
		map[string]any{"action": "update-track", "config": map[string]any{"crossfadeDuration": crossfade}}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if got := h.processor.Config().CrossfadeDuration; got != 5*time.Second {
		t.Fatalf("crossfade %s, want 5s", got)
	}

	rec = h.request(t, http.MethodPost, "/api/v1/radio/control",
		map[string]any{"action": "update-track"}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing config: status %d, want 400", rec.Code)
	}
}

func TestListenerReport(t *testing.T) {
	h := newHarness(t)
	rec := h.request(t, http.MethodPost, "/api/v1/radio/listeners", map[string]int{"count": 7}, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	meta := h.processor.GetMetadata()
	if meta.TotalListeners != 7 || meta.PeakListeners != 7 {
		t.Fatalf("listeners %d/%d, want 7/7", meta.TotalListeners, meta.PeakListeners)
	}

	rec = h.request(t, http.MethodPost, "/api/v1/radio/listeners", map[string]int{"count": -1}, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative count: status %d, want 400", rec.Code)
	}
}

func TestAlgorithmCatalogEndpoint(t *testing.T) {
	h := newHarness(t)
	rec := h.request(t, http.MethodGet, "/api/v1/playlists/algorithms", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	body := decode(t, rec)
	algs, ok := body["algorithms"].([]any)
	if !ok || len(algs) != 4 {
		t.Fatalf("algorithms %v, want 4 entries", body["algorithms"])
	}
}

func TestGeneratePlaylist(t *testing.T) {
	h := newHarness(t)
	h.catalog.tracks["track-1"] = models.Track{ID: "track-1", Artist: "a1", Genre: "rock", Duration: 3 * time.Minute, Eligible: true}
	h.catalog.tracks["track-2"] = models.Track{ID: "track-2", Artist: "a2", Genre: "jazz", Duration: 3 * time.Minute, Eligible: true}

	rec := h.request(t, http.MethodPost, "/api/v1/playlists/generate",
		map[string]any{"maxDuration": 600, "algorithm": "balanced"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["trackCount"].(float64) != 2 {
		t.Fatalf("track count %v, want 2", body["trackCount"])
	}
	if h.catalog.saved == nil {
		t.Fatal("playlist not persisted")
	}

	rec = h.request(t, http.MethodPost, "/api/v1/playlists/generate",
		map[string]any{"maxDuration": 600, "algorithm": "chaotic"}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown algorithm: status %d, want 400", rec.Code)
	}
}

func TestPlaylistGetNotFound(t *testing.T) {
	h := newHarness(t)
	rec := h.request(t, http.MethodGet, "/api/v1/playlists/00000000-0000-0000-0000-000000000000", nil, false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
}
