package models

import "time"

type ConversationEventType string

const (
	EventMessage ConversationEventType = "message"
	EventTyping  ConversationEventType = "typing"
	EventRead    ConversationEventType = "read"
)

// ReadReceipt is published when a member's watermark moves.
type ReadReceipt struct {
	ProfileID  string    `json:"profile_id"`
	LastReadAt time.Time `json:"last_read_at"`
}

// ConversationEvent is the realtime envelope fanned out to subscribers of one conversation.
// Exactly one of Message, Typing and Read is set, matching Type.
type ConversationEvent struct {
	Type           ConversationEventType `json:"type"`
	ConversationID string                `json:"conversation_id"`
	Message        *Message              `json:"message,omitempty"`
	Typing         *TypingState          `json:"typing,omitempty"`
	Read           *ReadReceipt          `json:"read,omitempty"`
}
