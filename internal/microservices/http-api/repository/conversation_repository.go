package repository

import (
	"context"
	"errors"
	"time"

	"notifyhub/internal/microservices/http-api/models"

	"gorm.io/gorm"
)

type ConversationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Conversation, error)
	// FindOrCreateDirect returns the conversation between a and b, creating it with both members on first use.
	FindOrCreateDirect(ctx context.Context, a, b string) (*models.Conversation, error)
	ListForProfile(ctx context.Context, profileID string) ([]models.Conversation, error)
	FindMember(ctx context.Context, conversationID, profileID string) (*models.ConversationMember, error)
	ListMembers(ctx context.Context, conversationID string) ([]models.ConversationMember, error)
	// AppendMessage assigns the next per-conversation seq and created_at, then inserts msg.
	AppendMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]models.Message, error)
	LatestMessageAt(ctx context.Context, conversationID string) (*time.Time, error)
	CountUnread(ctx context.Context, conversationID, profileID string, since *time.Time) (int64, error)
	// AdvanceLastRead sets last_read_at only when it moves forward. Returns whether a row changed.
	AdvanceLastRead(ctx context.Context, conversationID, profileID string, at time.Time) (bool, error)
}

type conversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) FindByID(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.db.WithContext(ctx).Preload("Members").First(&conv, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

func (r *conversationRepository) findByPairKey(ctx context.Context, key string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.db.WithContext(ctx).Preload("Members").Where("pair_key = ?", key).First(&conv).Error; err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

func (r *conversationRepository) FindOrCreateDirect(ctx context.Context, a, b string) (*models.Conversation, error) {
	key := models.PairKey(a, b)

	conv, err := r.findByPairKey(ctx, key)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	created := &models.Conversation{PairKey: key}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(created).Error; err != nil {
			return err
		}
		members := []models.ConversationMember{
			{ConversationID: created.ID, ProfileID: a},
			{ConversationID: created.ID, ProfileID: b},
		}
		if err := tx.Create(&members).Error; err != nil {
			return err
		}
		created.Members = members
		return nil
	})
	if isUniqueViolation(err) {
		// lost the race against the other party's first message
		return r.findByPairKey(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *conversationRepository) ListForProfile(ctx context.Context, profileID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Members").
		Joins("JOIN conversation_members cm ON cm.conversation_id = conversations.id").
		Where("cm.profile_id = ?", profileID).
		Order("conversations.updated_at DESC").
		Find(&convs).Error
	return convs, err
}

func (r *conversationRepository) FindMember(ctx context.Context, conversationID, profileID string) (*models.ConversationMember, error) {
	var member models.ConversationMember
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND profile_id = ?", conversationID, profileID).
		First(&member).Error; err != nil {
		return nil, notFound(err)
	}
	return &member, nil
}

func (r *conversationRepository) ListMembers(ctx context.Context, conversationID string) ([]models.ConversationMember, error) {
	var members []models.ConversationMember
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Find(&members).Error
	return members, err
}

type seqAllocation struct {
	LastSeq int64
	Now     time.Time
}

func (r *conversationRepository) AppendMessage(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the row lock on the conversation serialises senders, so clock_timestamp() grows with seq
		var alloc seqAllocation
		if err := tx.Raw(`
			UPDATE conversations
			SET last_seq = last_seq + 1, updated_at = clock_timestamp()
			WHERE id = ?
			RETURNING last_seq, clock_timestamp() AS now`, msg.ConversationID).
			Scan(&alloc).Error; err != nil {
			return err
		}
		if alloc.LastSeq == 0 {
			return ErrNotFound
		}

		msg.Seq = alloc.LastSeq
		msg.CreatedAt = alloc.Now.UTC()
		return tx.Create(msg).Error
	})
}

func (r *conversationRepository) ListMessages(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND seq > ?", conversationID, afterSeq).
		Order("created_at ASC, seq ASC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

func (r *conversationRepository) LatestMessageAt(ctx context.Context, conversationID string) (*time.Time, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, seq DESC").
		Limit(1).
		Find(&msg).Error
	if err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, nil
	}
	return &msg.CreatedAt, nil
}

func (r *conversationRepository) CountUnread(ctx context.Context, conversationID, profileID string, since *time.Time) (int64, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ? AND sender_profile_id <> ?", conversationID, profileID)
	if since != nil {
		q = q.Where("created_at > ?", *since)
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}

func (r *conversationRepository) AdvanceLastRead(ctx context.Context, conversationID, profileID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND profile_id = ?", conversationID, profileID).
		Where("last_read_at IS NULL OR last_read_at < ?", at).
		Update("last_read_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
