package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"notifyhub/internal/microservices/http-api/models"
)

// Frame protocol between the server and browser clients

type FrameType string

const ( // client -> server
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
)

const ( // server -> client
	FrameSubscribed   FrameType = "subscribed"
	FrameUnsubscribed FrameType = "unsubscribed"
	FrameMessage      FrameType = "message"
	FrameTyping       FrameType = "typing"
	FrameRead         FrameType = "read"
	FrameError        FrameType = "error"
)

// ClientFrame is the only shape clients send
type ClientFrame struct {
	Type           FrameType `json:"type"`
	ConversationID string    `json:"conversation_id"`
}

// ServerFrame carries one event for one conversation. At most one payload field is set.
type ServerFrame struct {
	Type           FrameType           `json:"type"`
	ConversationID string              `json:"conversation_id,omitempty"`
	Message        *models.Message     `json:"message,omitempty"`
	Typing         *models.TypingState `json:"typing,omitempty"`
	Read           *models.ReadReceipt `json:"read,omitempty"`
	Error          string              `json:"error,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
}

func newServerFrame(t FrameType, conversationID string) *ServerFrame {
	return &ServerFrame{Type: t, ConversationID: conversationID, Timestamp: time.Now().UTC()}
}

func newErrorFrame(conversationID, msg string) *ServerFrame {
	f := newServerFrame(FrameError, conversationID)
	f.Error = msg
	return f
}

// ToJSON: marshal frame for the write pump
func (f *ServerFrame) ToJSON() ([]byte, error) {
	return json.Marshal(f)
}

// FrameFromJSON parses and validates a client frame
func FrameFromJSON(data []byte) (*ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	switch f.Type {
	case FrameSubscribe, FrameUnsubscribe:
	default:
		return nil, fmt.Errorf("unsupported frame type %q", f.Type)
	}
	if f.ConversationID == "" {
		return nil, fmt.Errorf("conversation_id is required")
	}
	return &f, nil
}
