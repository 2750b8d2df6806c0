package liveaudio

import (
	"testing"
	"time"
)

func TestComputeWindowFirstTrackGoverns(t *testing.T) {
	d1 := 200 * time.Second
	d2 := 180 * time.Second
	c := 3 * time.Second

	win := ComputeWindow(d1, d2, c)

	if win.MixedLength != d1 {
		t.Fatalf("mixed length %s, want %s", win.MixedLength, d1)
	}
	if win.TailLength != d2-c {
		t.Fatalf("tail length %s, want %s", win.TailLength, d2-c)
	}
	if win.FadeStart != d1-c {
		t.Fatalf("fade start %s, want %s", win.FadeStart, d1-c)
	}
	if win.Length != c {
		t.Fatalf("window length %s, want %s", win.Length, c)
	}
}

func TestComputeWindowClampsToShortestTrack(t *testing.T) {
	win := ComputeWindow(10*time.Second, 2*time.Second, 5*time.Second)
	if win.Length != 2*time.Second {
		t.Fatalf("window %s, want clamp to 2s", win.Length)
	}
	if win.TailLength != 0 {
		t.Fatalf("tail %s, want 0", win.TailLength)
	}

	win = ComputeWindow(1*time.Second, 10*time.Second, 5*time.Second)
	if win.Length != 1*time.Second {
		t.Fatalf("window %s, want clamp to 1s", win.Length)
	}
	if win.FadeStart != 0 {
		t.Fatalf("fade start %s, want 0", win.FadeStart)
	}
}

func TestComputeWindowNegativeCrossfade(t *testing.T) {
	win := ComputeWindow(10*time.Second, 10*time.Second, -1)
	if win.Length != 0 {
		t.Fatalf("window %s, want 0", win.Length)
	}
	if win.MixedLength != 10*time.Second {
		t.Fatalf("mixed length %s, want 10s", win.MixedLength)
	}
}
