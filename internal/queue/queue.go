/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waxpress/waxradio/internal/events"
)

// StreamType classifies a playable unit in the live mix.
type StreamType string

const (
	TypeMusic      StreamType = "music"
	TypeTTS        StreamType = "tts"
	TypeAd         StreamType = "ad"
	TypeTransition StreamType = "transition"
)

// AudioStream is one playable unit in the live mix. StartTime/EndTime are
// offsets within the continuous output and are filled in when the stream is
// scheduled; Duration is authoritative only after probing.
type AudioStream struct {
	ID        string
	TrackID   string
	URL       string
	Type      StreamType
	Title     string
	Artist    string
	Genre     string
	Artwork   string
	Duration  time.Duration
	StartTime time.Duration
	EndTime   time.Duration
	Volume    float64
	FadeIn    time.Duration
	FadeOut   time.Duration
}

// Spec describes a stream to enqueue; the id is assigned by the queue.
type Spec struct {
	TrackID  string
	URL      string
	Type     StreamType
	Title    string
	Artist   string
	Genre    string
	Artwork  string
	Duration time.Duration
	Volume   float64
	FadeIn   time.Duration
	FadeOut  time.Duration
}

// Queue holds the ordered backlog of not-yet-played streams. FIFO only;
// "play now" is modeled as front insertion. Mutated only by the processor
// loop and the public add/remove API.
type Queue struct {
	mu      sync.Mutex
	entries []AudioStream
	bus     *events.Bus
}

// New creates an empty queue publishing on bus. A nil bus disables events.
func New(bus *events.Bus) *Queue {
	return &Queue{bus: bus}
}

// Add appends a stream to the tail and returns its generated id.
func (q *Queue) Add(spec Spec) string {
	stream := fromSpec(spec)

	q.mu.Lock()
	q.entries = append(q.entries, stream)
	q.mu.Unlock()

	q.publish(events.EventStreamAdded, stream)
	return stream.ID
}

// AddFront inserts a stream at the head so it plays next.
func (q *Queue) AddFront(spec Spec) string {
	stream := fromSpec(spec)

	q.mu.Lock()
	q.entries = append([]AudioStream{stream}, q.entries...)
	q.mu.Unlock()

	q.publish(events.EventStreamAdded, stream)
	return stream.ID
}

// Remove drops a still-queued stream by id. Returns false when the id is
// unknown (including streams already dequeued for playback).
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	idx := -1
	for i, entry := range q.entries {
		if entry.ID == id {
			idx = i
			break
		}
	}
	var removed AudioStream
	if idx >= 0 {
		removed = q.entries[idx]
		q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	}
	q.mu.Unlock()

	if idx < 0 {
		return false
	}
	q.publish(events.EventStreamRemoved, removed)
	return true
}

// DequeueNext pops the head for playback. The second return is false when
// the queue is empty; fallback behavior is the caller's decision.
func (q *Queue) DequeueNext() (AudioStream, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return AudioStream{}, false
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	return head, true
}

// Len reports the number of queued streams.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot returns a copy of the backlog in play order.
func (q *Queue) Snapshot() []AudioStream {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]AudioStream, len(q.entries))
	copy(out, q.entries)
	return out
}

func fromSpec(spec Spec) AudioStream {
	volume := spec.Volume
	if volume <= 0 {
		volume = 1.0
	}
	return AudioStream{
		ID:       uuid.NewString(),
		TrackID:  spec.TrackID,
		URL:      spec.URL,
		Type:     spec.Type,
		Title:    spec.Title,
		Artist:   spec.Artist,
		Genre:    spec.Genre,
		Artwork:  spec.Artwork,
		Duration: spec.Duration,
		Volume:   volume,
		FadeIn:   spec.FadeIn,
		FadeOut:  spec.FadeOut,
	}
}

func (q *Queue) publish(eventType events.EventType, stream AudioStream) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(eventType, events.Payload{
		"stream_id": stream.ID,
		"track_id":  stream.TrackID,
		"type":      string(stream.Type),
		"title":     stream.Title,
		"artist":    stream.Artist,
	})
}
