package websocket

import (
	"context"
	"log/slog"
	"sync"

	"notifyhub/internal/microservices/http-api/models"
)

// Multiplexer owns one Room per conversation that has live subscribers and routes
// published events to it. Empty rooms are dropped.
type Multiplexer struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	joined map[string]map[string]struct{} // subscriber id -> conversation ids
	logger *slog.Logger
}

func NewMultiplexer(logger *slog.Logger) *Multiplexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multiplexer{
		rooms:  make(map[string]*Room),
		joined: make(map[string]map[string]struct{}),
		logger: logger,
	}
}

func (m *Multiplexer) Subscribe(conversationID string, s Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[conversationID]
	if !ok {
		room = NewRoom(conversationID)
		m.rooms[conversationID] = room
	}
	if !room.Add(s) {
		return
	}
	convs, ok := m.joined[s.ID()]
	if !ok {
		convs = make(map[string]struct{})
		m.joined[s.ID()] = convs
	}
	convs[conversationID] = struct{}{}
	m.logger.Debug("conversation_subscribed", "conversation_id", conversationID, "subscriber_id", s.ID())
}

func (m *Multiplexer) Unsubscribe(conversationID string, s Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribeLocked(conversationID, s)
}

// UnsubscribeAll removes s from every room, used when a connection closes
func (m *Multiplexer) UnsubscribeAll(s Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conversationID := range m.joined[s.ID()] {
		m.unsubscribeLocked(conversationID, s)
	}
}

func (m *Multiplexer) unsubscribeLocked(conversationID string, s Subscriber) {
	if room, ok := m.rooms[conversationID]; ok {
		if room.Remove(s) == 0 {
			delete(m.rooms, conversationID)
		}
	}
	if convs, ok := m.joined[s.ID()]; ok {
		delete(convs, conversationID)
		if len(convs) == 0 {
			delete(m.joined, s.ID())
		}
	}
}

// Dispatch delivers an event to local subscribers only
func (m *Multiplexer) Dispatch(event models.ConversationEvent) {
	m.mu.RLock()
	room, ok := m.rooms[event.ConversationID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	room.Deliver(event)
}

// Publish makes the multiplexer usable as the event publisher of a single instance
func (m *Multiplexer) Publish(_ context.Context, event models.ConversationEvent) error {
	m.Dispatch(event)
	return nil
}

// RoomCount returns the number of conversations with at least one subscriber
func (m *Multiplexer) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

func (m *Multiplexer) SubscriberCount(conversationID string) int {
	m.mu.RLock()
	room, ok := m.rooms[conversationID]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return room.Count()
}
