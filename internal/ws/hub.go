// Package ws carries the realtime room channel: one websocket per seat,
// typed events out, player actions in.
package ws

import (
	"sync"

	"landlord-service/internal/service/game"
	"landlord-service/pkg/logger"

	"go.uber.org/zap"
)

const outboundBuffer = 64

// Hub fans game events out to subscribed room connections. Delivery is
// at most once; a subscriber that cannot keep up has events dropped rather
// than blocking the game loop.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[int64]chan game.Event
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[int64]chan game.Event)}
}

// Subscribe registers userID on the room channel, replacing any previous
// subscription for the same seat.
func (h *Hub) Subscribe(roomID string, userID int64) <-chan game.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	seats, ok := h.rooms[roomID]
	if !ok {
		seats = make(map[int64]chan game.Event)
		h.rooms[roomID] = seats
	}
	if old, ok := seats[userID]; ok {
		close(old)
	}
	ch := make(chan game.Event, outboundBuffer)
	seats[userID] = ch
	return ch
}

// Unsubscribe drops the seat's channel if ch is still the registered one.
// A reconnect that already replaced the channel is left alone.
func (h *Hub) Unsubscribe(roomID string, userID int64, ch <-chan game.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	seats, ok := h.rooms[roomID]
	if !ok {
		return
	}
	current, ok := seats[userID]
	if !ok || (<-chan game.Event)(current) != ch {
		return
	}
	close(current)
	delete(seats, userID)
	if len(seats) == 0 {
		delete(h.rooms, roomID)
	}
}

// Broadcast delivers the event to every connected seat in the room.
func (h *Hub) Broadcast(roomID string, event game.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for userID, ch := range h.rooms[roomID] {
		h.deliver(roomID, userID, ch, event)
	}
}

// Push delivers the event to one seat only.
func (h *Hub) Push(roomID string, userID int64, event game.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if ch, ok := h.rooms[roomID][userID]; ok {
		h.deliver(roomID, userID, ch, event)
	}
}

func (h *Hub) deliver(roomID string, userID int64, ch chan game.Event, event game.Event) {
	select {
	case ch <- event:
	default:
		logger.Log.Warn("ws event dropped, slow consumer",
			zap.String("roomID", roomID),
			zap.Int64("userID", userID),
			zap.String("type", string(event.Type)),
		)
	}
}
