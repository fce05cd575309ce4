// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

// Package eventbus carries domain events between the ingest loop and its
// consumers (WebSocket fan-out, threshold detection). It is an in-process
// Watermill pub/sub: every subscriber gets its own copy of each message
// and slow consumers never block the publisher.
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
)

// Topics published by the ingest and detection loops.
const (
	// TopicReadings carries one ReadingsBatch per ingest cycle.
	TopicReadings = "readings.batch"
	// TopicAlerts carries individual alerts raised by detection.
	TopicAlerts = "alerts.raised"
	// TopicRecommendations carries newly generated recommendations.
	TopicRecommendations = "recommendations.generated"
)

// Config tunes the in-process channel buffers.
type Config struct {
	// BufferSize is the per-subscriber channel depth.
	BufferSize int64 `koanf:"buffer_size"`
}

// DefaultConfig returns bus defaults sized for one reading batch per
// second across 200 panels.
func DefaultConfig() Config {
	return Config{BufferSize: 64}
}

// Bus is a thin wrapper over a Watermill gochannel Pub/Sub.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	closed bool

	published atomic.Int64
}

// New builds the bus.
func New(cfg Config, logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = NewLoggerAdapter()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            cfg.BufferSize,
			BlockPublishUntilSubscriberAck: false,
		}, logger),
		logger: logger,
	}
}

// PublishJSON serializes payload and publishes it to topic.
func (b *Bus) PublishJSON(ctx context.Context, topic string, payload interface{}) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("event bus is closed")
	}
	b.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	b.published.Add(1)
	return nil
}

// Subscribe returns a channel of messages for topic. The subscription
// ends when ctx is cancelled or the bus closes.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return ch, nil
}

// Published returns the number of messages published since startup.
func (b *Bus) Published() int64 {
	return b.published.Load()
}

// Close shuts the bus down. Subscriber channels are closed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}
