package service

import (
	"context"
	"errors"
	"time"

	"notifyhub/internal/microservices/http-api/models"
	"notifyhub/internal/microservices/http-api/repository"
)

// FeedService reads the in-app notification feed. Read state lives in a per (user, role)
// watermark; outbox rows are left untouched.
type FeedService interface {
	List(ctx context.Context, userID string, role models.Role, limit int) ([]models.FeedItem, error)
	UnreadCount(ctx context.Context, userID string, role models.Role) (int64, error)
	MarkAllRead(ctx context.Context, userID string, role models.Role) (time.Time, error)
}

type feedService struct {
	outbox  repository.OutboxRepository
	cursors repository.FeedCursorRepository
	now     func() time.Time
}

func NewFeedService(outbox repository.OutboxRepository, cursors repository.FeedCursorRepository) FeedService {
	return &feedService{
		outbox:  outbox,
		cursors: cursors,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *feedService) watermark(ctx context.Context, userID string, role models.Role) (*time.Time, error) {
	cursor, err := s.cursors.Get(ctx, userID, role)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cursor.LastReadAt, nil
}

func (s *feedService) List(ctx context.Context, userID string, role models.Role, limit int) ([]models.FeedItem, error) {
	if !role.Valid() {
		return nil, invalidf("unknown role %q", role)
	}
	if limit <= 0 || limit > maxPageSize {
		limit = 50
	}

	since, err := s.watermark(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	entries, err := s.outbox.ListInApp(ctx, userID, role, limit)
	if err != nil {
		return nil, err
	}

	items := make([]models.FeedItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, models.FeedItem{
			ID:        e.ID,
			Category:  e.Category,
			Title:     e.Payload.Title,
			Body:      e.Payload.Body,
			URL:       e.Payload.URL,
			Read:      since != nil && !e.CreatedAt.After(*since),
			CreatedAt: e.CreatedAt,
		})
	}
	return items, nil
}

func (s *feedService) UnreadCount(ctx context.Context, userID string, role models.Role) (int64, error) {
	if !role.Valid() {
		return 0, invalidf("unknown role %q", role)
	}
	since, err := s.watermark(ctx, userID, role)
	if err != nil {
		return 0, err
	}
	return s.outbox.CountInAppSince(ctx, userID, role, since)
}

func (s *feedService) MarkAllRead(ctx context.Context, userID string, role models.Role) (time.Time, error) {
	if !role.Valid() {
		return time.Time{}, invalidf("unknown role %q", role)
	}
	at := s.now()
	if err := s.cursors.Advance(ctx, userID, role, at); err != nil {
		return time.Time{}, err
	}
	return at, nil
}
