package websocket

import (
	"sync"

	"notifyhub/internal/microservices/http-api/models"
)

// Subscriber receives the realtime events of the conversations it joined.
// Handlers are called from the publishing goroutine and must not block.
type Subscriber interface {
	ID() string
	HandleMessage(conversationID string, msg *models.Message)
	HandleTyping(conversationID string, state *models.TypingState)
	HandleRead(conversationID string, receipt *models.ReadReceipt)
}

// Room = the subscribers of one conversation
type Room struct {
	ID          string
	subscribers map[string]Subscriber
	mu          sync.RWMutex
}

func NewRoom(conversationID string) *Room {
	return &Room{
		ID:          conversationID,
		subscribers: make(map[string]Subscriber),
	}
}

// Add reports whether the subscriber was new to the room
func (r *Room) Add(s Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subscribers[s.ID()]; ok {
		return false
	}
	r.subscribers[s.ID()] = s
	return true
}

// Remove returns how many subscribers are left
func (r *Room) Remove(s Subscriber) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscribers, s.ID())
	return len(r.subscribers)
}

func (r *Room) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// Deliver routes the event to the typed handler of every subscriber.
// The subscriber set is copied first so handlers run without the lock.
func (r *Room) Deliver(event models.ConversationEvent) {
	r.mu.RLock()
	subs := make([]Subscriber, 0, len(r.subscribers))
	for _, s := range r.subscribers {
		subs = append(subs, s)
	}
	r.mu.RUnlock()

	for _, s := range subs {
		switch event.Type {
		case models.EventMessage:
			if event.Message != nil {
				s.HandleMessage(r.ID, event.Message)
			}
		case models.EventTyping:
			if event.Typing != nil {
				s.HandleTyping(r.ID, event.Typing)
			}
		case models.EventRead:
			if event.Read != nil {
				s.HandleRead(r.ID, event.Read)
			}
		}
	}
}
