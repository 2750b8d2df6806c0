package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/waxpress/waxradio/internal/config"
)

func newTestFetcher(t *testing.T, dir string) *Fetcher {
	t.Helper()
	f, err := NewFetcher(&config.Config{SpoolDir: dir}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	return f
}

func TestFetchHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fake-mp3-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := newTestFetcher(t, dir)

	prepared, err := f.Fetch(context.Background(), srv.URL+"/track.mp3")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer prepared.Cleanup()

	data, err := os.ReadFile(prepared.Path)
	if err != nil {
		t.Fatalf("read spooled file: %v", err)
	}
	if string(data) != "fake-mp3-bytes" {
		t.Fatalf("unexpected content %q", data)
	}

	prepared.Cleanup()
	if _, err := os.Stat(prepared.Path); !os.IsNotExist(err) {
		t.Fatal("cleanup left the temp file behind")
	}
}

func TestFetchHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t, t.TempDir())
	if _, err := f.Fetch(context.Background(), srv.URL+"/missing.mp3"); err == nil {
		t.Fatal("expected error for 404 source")
	}
}

func TestFetchS3WithoutCredentials(t *testing.T) {
	f := newTestFetcher(t, t.TempDir())
	if _, err := f.Fetch(context.Background(), "s3://masters/track.flac"); err == nil {
		t.Fatal("expected error without S3 credentials")
	}
}

func TestSweepOrphans(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{tempPrefix + "aaa.audio", tempPrefix + "bbb.audio", "keep.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	removed := SweepOrphans(dir, zerolog.Nop())
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "keep.txt")); err != nil {
		t.Fatal("sweep removed an unrelated file")
	}
}
