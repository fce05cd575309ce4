// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package websocket

import (
	"context"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/heliowatch/heliowatch/internal/eventbus"
	"github.com/heliowatch/heliowatch/internal/logging"
)

// Bridge subscribes to the event bus and re-broadcasts domain events to
// dashboard clients. It decouples the ingest and detection loops from
// the hub: producers publish once and every consumer, websocket
// included, reads its own stream.
type Bridge struct {
	bus *eventbus.Bus
	hub *Hub

	forwarded atomic.Int64
}

// NewBridge wires a bus to a hub.
func NewBridge(bus *eventbus.Bus, hub *Hub) *Bridge {
	return &Bridge{bus: bus, hub: hub}
}

// topicMessageTypes maps bus topics to the websocket frame type their
// payloads are delivered under.
var topicMessageTypes = map[string]string{
	eventbus.TopicReadings:        MessageTypeSensorUpdate,
	eventbus.TopicAlerts:          MessageTypeAlert,
	eventbus.TopicRecommendations: MessageTypeRecommendation,
}

// RunWithContext consumes all bridged topics until ctx is cancelled.
// Suitable for suture supervision.
func (b *Bridge) RunWithContext(ctx context.Context) error {
	channels := make(map[string]<-chan *message.Message, len(topicMessageTypes))
	for topic := range topicMessageTypes {
		ch, err := b.bus.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		channels[topic] = ch
	}

	done := make(chan struct{})
	for topic, ch := range channels {
		go b.forward(topicMessageTypes[topic], ch, done)
	}

	<-ctx.Done()
	close(done)
	logging.Info().
		Str("component", "websocket-bridge").
		Int64("messages_forwarded", b.forwarded.Load()).
		Msg("websocket bridge stopped")
	return ctx.Err()
}

func (b *Bridge) forward(messageType string, ch <-chan *message.Message, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.hub.BroadcastRaw(messageType, msg.Payload)
			b.forwarded.Add(1)
			msg.Ack()
		}
	}
}

// Forwarded returns the number of messages bridged since startup.
func (b *Bridge) Forwarded() int64 {
	return b.forwarded.Load()
}
