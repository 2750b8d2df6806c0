/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus bridges in-process radio events onto NATS so marketplace
// services (notifications, analytics) can observe the live rotation.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/waxpress/waxradio/internal/events"
)

// subjectPrefix namespaces radio events on the shared cluster.
const subjectPrefix = "waxradio.events."

// bridgedEvents are forwarded to NATS; queue churn stays local.
var bridgedEvents = []events.EventType{
	events.EventStreamStarted,
	events.EventStreamEnded,
	events.EventStreamError,
	events.EventTrackChanged,
	events.EventListenerStats,
}

type envelope struct {
	NodeID    string         `json:"nodeId"`
	Type      string         `json:"type"`
	Payload   events.Payload `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Bridge forwards bus events to NATS subjects. When NATS is unreachable the
// local bus keeps working and the bridge simply stays inactive.
type Bridge struct {
	bus    *events.Bus
	conn   *nats.Conn
	logger zerolog.Logger
	nodeID string
	subs   []events.Subscriber
	done   chan struct{}
}

// NewBridge connects to natsURL and starts forwarding. A connection failure
// is logged and returns a bridge that does nothing.
func NewBridge(natsURL string, bus *events.Bus, logger zerolog.Logger) *Bridge {
	b := &Bridge{
		bus:    bus,
		logger: logger.With().Str("component", "eventbus").Logger(),
		nodeID: uuid.NewString(),
		done:   make(chan struct{}),
	}
	if natsURL == "" {
		return b
	}

	conn, err := nats.Connect(natsURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		b.logger.Warn().Err(err).Str("url", natsURL).Msg("NATS unreachable, events stay local")
		return b
	}
	b.conn = conn

	for _, eventType := range bridgedEvents {
		sub := bus.Subscribe(eventType)
		b.subs = append(b.subs, sub)
		go b.forward(eventType, sub)
	}
	b.logger.Info().Str("url", natsURL).Msg("event bridge connected")
	return b
}

func (b *Bridge) forward(eventType events.EventType, sub events.Subscriber) {
	subject := subjectPrefix + string(eventType)
	for {
		select {
		case <-b.done:
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			data, err := json.Marshal(envelope{
				NodeID:    b.nodeID,
				Type:      string(eventType),
				Payload:   payload,
				Timestamp: time.Now().UTC(),
			})
			if err != nil {
				continue
			}
			if err := b.conn.Publish(subject, data); err != nil {
				b.logger.Debug().Err(err).Str("subject", subject).Msg("publish failed")
			}
		}
	}
}

// Close stops forwarding and drains the connection.
func (b *Bridge) Close() error {
	close(b.done)
	for i, sub := range b.subs {
		b.bus.Unsubscribe(bridgedEvents[i], sub)
	}
	if b.conn == nil {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
