package dto

import "notifyhub/internal/microservices/http-api/service"

// SendMessageRequest used for POST /conversations/messages. Either conversation_id or
// recipient_profile_id addresses the message.
type SendMessageRequest struct {
	ConversationID     string         `json:"conversation_id"`
	RecipientProfileID string         `json:"recipient_profile_id"`
	Content            string         `json:"content" binding:"required"`
	MessageType        string         `json:"message_type"`
	Meta               map[string]any `json:"meta,omitempty"`
}

func (d SendMessageRequest) ToService() service.SendMessageInput {
	return service.SendMessageInput{
		ConversationID:     d.ConversationID,
		RecipientProfileID: d.RecipientProfileID,
		Content:            d.Content,
		MessageType:        d.MessageType,
		Meta:               d.Meta,
	}
}

type TypingRequest struct {
	IsTyping *bool `json:"is_typing" binding:"required"`
}
