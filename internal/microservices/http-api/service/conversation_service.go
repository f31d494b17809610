package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"notifyhub/internal/microservices/http-api/models"
	"notifyhub/internal/microservices/http-api/repository"
)

const (
	maxMessageLength   = 4000
	defaultMessageType = "text"
	maxPageSize        = 200
	previewLength      = 140
)

// EventPublisher fans conversation events out to realtime subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event models.ConversationEvent) error
}

// ProfileLookup resolves a profile's role and display name.
type ProfileLookup interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

// SendMessageInput addresses either an existing conversation or a recipient; the
// conversation with a recipient is created on the first message.
type SendMessageInput struct {
	ConversationID     string
	RecipientProfileID string
	Content            string
	MessageType        string
	Meta               map[string]any
}

type ConversationService interface {
	SendMessage(ctx context.Context, senderID string, in SendMessageInput) (*models.Message, error)
	ListConversations(ctx context.Context, profileID string) ([]models.Conversation, error)
	Messages(ctx context.Context, conversationID, profileID string, afterSeq int64, limit int) ([]models.Message, error)
	UnreadCount(ctx context.Context, conversationID, profileID string) (int64, error)
	// MarkAsRead moves the member's watermark to max(now, newest message), so unread is zero afterwards.
	MarkAsRead(ctx context.Context, conversationID, profileID string) (time.Time, error)
	SetTyping(ctx context.Context, conversationID, profileID string, isTyping bool) error
	// ListTyping returns the other members currently typing.
	ListTyping(ctx context.Context, conversationID, profileID string) ([]models.TypingState, error)
	// Authorize returns ErrForbidden unless profileID belongs to the conversation.
	Authorize(ctx context.Context, conversationID, profileID string) error
}

type ConversationServiceConfig struct {
	Conversations repository.ConversationRepository
	Typing        repository.TypingRepository
	Profiles      ProfileLookup
	Publisher     EventPublisher
	Notifier      Dispatcher
	TypingTTL     time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
}

type conversationService struct {
	convs     repository.ConversationRepository
	typing    repository.TypingRepository
	profiles  ProfileLookup
	publisher EventPublisher
	notifier  Dispatcher
	typingTTL time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewConversationService(cfg ConversationServiceConfig) ConversationService {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = 10 * time.Second
	}
	return &conversationService{
		convs:     cfg.Conversations,
		typing:    cfg.Typing,
		profiles:  cfg.Profiles,
		publisher: cfg.Publisher,
		notifier:  cfg.Notifier,
		typingTTL: cfg.TypingTTL,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}
}

func (s *conversationService) Authorize(ctx context.Context, conversationID, profileID string) error {
	if conversationID == "" {
		return invalidf("conversation_id is required")
	}
	if _, err := s.convs.FindMember(ctx, conversationID, profileID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrForbidden
		}
		return err
	}
	return nil
}

func (s *conversationService) SendMessage(ctx context.Context, senderID string, in SendMessageInput) (*models.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, invalidf("content is required")
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return nil, invalidf("content exceeds %d characters", maxMessageLength)
	}
	if (in.ConversationID == "") == (in.RecipientProfileID == "") {
		return nil, invalidf("exactly one of conversation_id and recipient_profile_id is required")
	}

	conversationID := in.ConversationID
	if conversationID != "" {
		if err := s.Authorize(ctx, conversationID, senderID); err != nil {
			return nil, err
		}
	} else {
		if in.RecipientProfileID == senderID {
			return nil, invalidf("cannot message yourself")
		}
		if _, err := s.profiles.FindByID(ctx, in.RecipientProfileID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, invalidf("unknown recipient %s", in.RecipientProfileID)
			}
			return nil, err
		}
		conv, err := s.convs.FindOrCreateDirect(ctx, senderID, in.RecipientProfileID)
		if err != nil {
			return nil, err
		}
		conversationID = conv.ID
	}

	msgType := in.MessageType
	if msgType == "" {
		msgType = defaultMessageType
	}
	msg := &models.Message{
		ConversationID:  conversationID,
		SenderProfileID: senderID,
		Content:         content,
		MessageType:     msgType,
		Meta:            in.Meta,
	}
	if err := s.convs.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	s.publish(ctx, models.ConversationEvent{Type: models.EventMessage, ConversationID: conversationID, Message: msg})

	// sending implies the sender stopped typing
	if err := s.typing.Clear(ctx, conversationID, senderID); err != nil {
		s.logger.Warn("typing_clear_failed", "conversation_id", conversationID, "error", err)
	}

	s.notifyMembers(ctx, msg)
	return msg, nil
}

// notifyMembers queues a message-category notification for every other member. Failures are logged only.
func (s *conversationService) notifyMembers(ctx context.Context, msg *models.Message) {
	if s.notifier == nil {
		return
	}

	members, err := s.convs.ListMembers(ctx, msg.ConversationID)
	if err != nil {
		s.logger.Error("message_notify_failed", "conversation_id", msg.ConversationID, "error", err)
		return
	}

	title := "New message"
	if sender, err := s.profiles.FindByID(ctx, msg.SenderProfileID); err == nil && sender.DisplayName != "" {
		title = "New message from " + sender.DisplayName
	}

	for _, m := range members {
		if m.ProfileID == msg.SenderProfileID {
			continue
		}
		recipient, err := s.profiles.FindByID(ctx, m.ProfileID)
		if err != nil {
			s.logger.Error("message_notify_failed", "conversation_id", msg.ConversationID, "profile_id", m.ProfileID, "error", err)
			continue
		}
		s.notifier.DispatchAsync(DispatchRequest{
			Type:   models.CategoryMessage,
			UserID: recipient.ID,
			Role:   recipient.Role,
			Title:  title,
			Body:   preview(msg.Content),
			URL:    "/messages/" + msg.ConversationID,
			Metadata: map[string]any{
				"conversation_id": msg.ConversationID,
				"message_id":      msg.ID,
			},
		})
	}
}

func (s *conversationService) ListConversations(ctx context.Context, profileID string) ([]models.Conversation, error) {
	return s.convs.ListForProfile(ctx, profileID)
}

func (s *conversationService) Messages(ctx context.Context, conversationID, profileID string, afterSeq int64, limit int) ([]models.Message, error) {
	if err := s.Authorize(ctx, conversationID, profileID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxPageSize {
		limit = 50
	}
	return s.convs.ListMessages(ctx, conversationID, afterSeq, limit)
}

func (s *conversationService) UnreadCount(ctx context.Context, conversationID, profileID string) (int64, error) {
	member, err := s.convs.FindMember(ctx, conversationID, profileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrForbidden
		}
		return 0, err
	}
	return s.convs.CountUnread(ctx, conversationID, profileID, member.LastReadAt)
}

func (s *conversationService) MarkAsRead(ctx context.Context, conversationID, profileID string) (time.Time, error) {
	if err := s.Authorize(ctx, conversationID, profileID); err != nil {
		return time.Time{}, err
	}

	at := s.now()
	latest, err := s.convs.LatestMessageAt(ctx, conversationID)
	if err != nil {
		return time.Time{}, err
	}
	// message timestamps come from the database clock, which may run ahead of ours
	if latest != nil && latest.After(at) {
		at = *latest
	}

	moved, err := s.convs.AdvanceLastRead(ctx, conversationID, profileID, at)
	if err != nil {
		return time.Time{}, err
	}
	if moved {
		s.publish(ctx, models.ConversationEvent{
			Type:           models.EventRead,
			ConversationID: conversationID,
			Read:           &models.ReadReceipt{ProfileID: profileID, LastReadAt: at},
		})
	}
	return at, nil
}

func (s *conversationService) SetTyping(ctx context.Context, conversationID, profileID string, isTyping bool) error {
	if err := s.Authorize(ctx, conversationID, profileID); err != nil {
		return err
	}

	state := models.TypingState{
		ConversationID: conversationID,
		ProfileID:      profileID,
		IsTyping:       isTyping,
		LastTypedAt:    s.now(),
	}
	var err error
	if isTyping {
		err = s.typing.Set(ctx, state, s.typingTTL)
	} else {
		err = s.typing.Clear(ctx, conversationID, profileID)
	}
	if err != nil {
		return err
	}

	s.publish(ctx, models.ConversationEvent{Type: models.EventTyping, ConversationID: conversationID, Typing: &state})
	return nil
}

func (s *conversationService) ListTyping(ctx context.Context, conversationID, profileID string) ([]models.TypingState, error) {
	if err := s.Authorize(ctx, conversationID, profileID); err != nil {
		return nil, err
	}
	states, err := s.typing.List(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	others := make([]models.TypingState, 0, len(states))
	for _, st := range states {
		if st.ProfileID != profileID {
			others = append(others, st)
		}
	}
	return others, nil
}

func (s *conversationService) publish(ctx context.Context, event models.ConversationEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("conversation_publish_failed",
			"conversation_id", event.ConversationID,
			"type", event.Type,
			"error", err,
		)
	}
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	return string([]rune(content)[:previewLength]) + "…"
}
