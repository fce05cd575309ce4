// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/heliowatch/heliowatch/internal/logging"
	"github.com/heliowatch/heliowatch/internal/metrics"
	"github.com/heliowatch/heliowatch/internal/models"
)

// Message types sent to dashboard clients.
const (
	MessageTypeConnected        = "connected"
	MessageTypePing             = "ping"
	MessageTypePong             = "pong"
	MessageTypeSensorUpdate     = "sensorUpdate"
	MessageTypeAggregatedUpdate = "aggregatedUpdate"
	MessageTypeAlert            = "alert"
	MessageTypeRecommendation   = "recommendation"
	MessageTypeStorageFailover  = "storageFailover"
)

// Message is a frame on the dashboard feed. Timestamp records when the
// frame was handed to the hub, not when it reached the client.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates an empty hub. Call RunWithContext to start it.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub loop until ctx is cancelled. Lifecycle
// events are drained before broadcasts so client state is consistent
// when a message goes out. Designed to run under a suture supervisor.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		// Lifecycle first, non-blocking.
		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(total))

	// Greet the client so the dashboard knows the feed is live.
	welcome := Message{
		Type:      MessageTypeConnected,
		Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{
			"connected_at": time.Now().UTC().Format(time.RFC3339),
			"client_id":    client.id,
		},
	}
	select {
	case client.send <- welcome:
	default:
	}

	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

func (h *Hub) shutdown(ctx context.Context) {
	count := h.ClientCount()
	h.closeAllClients()
	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", count).
		Msg("websocket hub stopped")
}

// broadcastToClients delivers a message to every client in stable ID
// order. Clients whose send buffer is full are dropped.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}
	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WebSocketClients.Set(float64(len(h.clients)))
	metrics.WebSocketBroadcasts.WithLabelValues(message.Type).Inc()
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WebSocketClients.Set(0)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// enqueue stamps the frame and offers it to the broadcast channel
// without blocking.
func (h *Hub) enqueue(message Message) {
	message.Timestamp = time.Now().UTC()
	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("message_type", message.Type).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastSensorUpdate pushes the latest per-panel readings to all clients.
func (h *Hub) BroadcastSensorUpdate(readings []models.SensorReading) {
	h.enqueue(Message{Type: MessageTypeSensorUpdate, Data: readings})
}

// BroadcastAggregatedUpdate pushes a farm-level summary to all clients.
func (h *Hub) BroadcastAggregatedUpdate(summary *models.FarmSummary) {
	h.enqueue(Message{Type: MessageTypeAggregatedUpdate, Data: summary})
}

// BroadcastAlert pushes a newly raised alert to all clients.
func (h *Hub) BroadcastAlert(alert *models.Alert) {
	h.enqueue(Message{Type: MessageTypeAlert, Data: alert})
}

// BroadcastRecommendation pushes a new recommendation to all clients.
func (h *Hub) BroadcastRecommendation(rec *models.Recommendation) {
	h.enqueue(Message{Type: MessageTypeRecommendation, Data: rec})
}

// BroadcastStorageFailover tells clients the backend switched to the
// in-memory fallback and history is no longer durable.
func (h *Hub) BroadcastStorageFailover(reason string) {
	h.enqueue(Message{Type: MessageTypeStorageFailover, Data: map[string]string{
		"reason":      reason,
		"occurred_at": time.Now().UTC().Format(time.RFC3339),
	}})
}

// BroadcastJSON sends an arbitrary typed payload to all clients.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	h.enqueue(Message{Type: messageType, Data: data})
}

// BroadcastRaw forwards pre-encoded JSON, wrapping it under the given
// message type. Used by the event bus bridge.
func (h *Hub) BroadcastRaw(messageType string, payload []byte) {
	var data interface{}
	if err := json.Unmarshal(payload, &data); err != nil {
		logging.Warn().Err(err).Msg("failed to unmarshal raw payload for broadcast")
		return
	}
	h.enqueue(Message{Type: messageType, Data: data})
}
