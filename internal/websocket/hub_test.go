// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package websocket

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/logging"
	"github.com/heliowatch/heliowatch/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

// startHub runs the hub and returns a cancel func that waits for exit.
func startHub(t *testing.T) (*Hub, func()) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()
	return hub, func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("hub did not stop")
		}
	}
}

func recvMessage(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func TestHubRegisterSendsConnected(t *testing.T) {
	hub, stop := startHub(t)
	defer stop()

	client := NewClient(hub, nil)
	hub.Register <- client

	msg := recvMessage(t, client)
	if msg.Type != MessageTypeConnected {
		t.Fatalf("first frame type = %q, want %q", msg.Type, MessageTypeConnected)
	}
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", hub.ClientCount())
	}
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	hub, stop := startHub(t)
	defer stop()

	first := NewClient(hub, nil)
	second := NewClient(hub, nil)
	hub.Register <- first
	hub.Register <- second

	// Drain the connected greetings.
	recvMessage(t, first)
	recvMessage(t, second)

	hub.BroadcastAlert(&models.Alert{
		ID:       uuid.New(),
		Severity: models.AlertSeverityCritical,
		Category: models.AlertCategoryOverheat,
		Title:    "panel overheating",
	})

	for _, c := range []*Client{first, second} {
		msg := recvMessage(t, c)
		if msg.Type != MessageTypeAlert {
			t.Errorf("frame type = %q, want %q", msg.Type, MessageTypeAlert)
		}
	}
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	hub, stop := startHub(t)
	defer stop()

	client := NewClient(hub, nil)
	hub.Register <- client
	recvMessage(t, client)

	hub.Unregister <- client

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-client.send:
			if !ok {
				if hub.ClientCount() != 0 {
					t.Errorf("ClientCount = %d, want 0", hub.ClientCount())
				}
				return
			}
		case <-deadline:
			t.Fatal("send channel never closed")
		}
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub()

	slow := NewClient(hub, nil)
	slow.send = make(chan Message) // unbuffered, nothing reading
	hub.clients[slow] = true

	hub.broadcastToClients(Message{Type: MessageTypeSensorUpdate})

	if hub.ClientCount() != 0 {
		t.Errorf("slow client not dropped, ClientCount = %d", hub.ClientCount())
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()

	client := NewClient(hub, nil)
	hub.Register <- client
	recvMessage(t, client)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount after shutdown = %d, want 0", hub.ClientCount())
	}
}

func TestHubBroadcastAggregatedUpdate(t *testing.T) {
	hub, stop := startHub(t)
	defer stop()

	client := NewClient(hub, nil)
	hub.Register <- client
	recvMessage(t, client)

	hub.BroadcastAggregatedUpdate(&models.FarmSummary{PanelCount: 200, ActivePanels: 198})

	msg := recvMessage(t, client)
	if msg.Type != MessageTypeAggregatedUpdate {
		t.Fatalf("frame type = %q, want %q", msg.Type, MessageTypeAggregatedUpdate)
	}
	summary, ok := msg.Data.(*models.FarmSummary)
	if !ok {
		t.Fatalf("frame data is %T, want *models.FarmSummary", msg.Data)
	}
	if summary.PanelCount != 200 {
		t.Errorf("PanelCount = %d, want 200", summary.PanelCount)
	}
}

func TestHubFrameShape(t *testing.T) {
	hub, stop := startHub(t)
	defer stop()

	client := NewClient(hub, nil)
	hub.Register <- client

	welcome := recvMessage(t, client)
	if welcome.Timestamp.IsZero() {
		t.Error("connected frame has zero timestamp")
	}

	before := time.Now().UTC()
	hub.BroadcastSensorUpdate([]models.SensorReading{{PanelID: uuid.New()}})

	msg := recvMessage(t, client)
	if msg.Type != "sensorUpdate" {
		t.Errorf("frame type = %q, want %q", msg.Type, "sensorUpdate")
	}
	if msg.Timestamp.IsZero() {
		t.Fatal("frame has zero timestamp")
	}
	if msg.Timestamp.Before(before.Add(-time.Second)) || msg.Timestamp.After(time.Now().UTC().Add(time.Second)) {
		t.Errorf("frame timestamp %v not stamped at enqueue time", msg.Timestamp)
	}
}

func TestHubBroadcastRawInvalidJSONIsDropped(t *testing.T) {
	hub, stop := startHub(t)
	defer stop()

	client := NewClient(hub, nil)
	hub.Register <- client
	recvMessage(t, client)

	hub.BroadcastRaw(MessageTypeSensorUpdate, []byte("{not json"))
	hub.BroadcastJSON(MessageTypePong, nil)

	// Only the pong should arrive; the invalid payload was discarded.
	msg := recvMessage(t, client)
	if msg.Type != MessageTypePong {
		t.Errorf("frame type = %q, want %q", msg.Type, MessageTypePong)
	}
}
