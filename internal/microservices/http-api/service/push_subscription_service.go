package service

import (
	"context"
	"net/url"

	"notifyhub/internal/microservices/http-api/models"
	"notifyhub/internal/microservices/http-api/repository"
)

type PushSubscriptionService interface {
	Register(ctx context.Context, userID string, sub *models.PushSubscription) (*models.PushSubscription, error)
	Unregister(ctx context.Context, userID, endpoint string) error
	List(ctx context.Context, userID string) ([]models.PushSubscription, error)
	// VAPIDPublicKey is the application server key browsers subscribe with.
	VAPIDPublicKey() string
}

type pushSubscriptionService struct {
	repo      repository.PushSubscriptionRepository
	publicKey string
}

func NewPushSubscriptionService(repo repository.PushSubscriptionRepository, vapidPublicKey string) PushSubscriptionService {
	return &pushSubscriptionService{
		repo:      repo,
		publicKey: vapidPublicKey,
	}
}

func (s *pushSubscriptionService) Register(ctx context.Context, userID string, sub *models.PushSubscription) (*models.PushSubscription, error) {
	if sub == nil {
		return nil, invalidf("subscription is required")
	}
	u, err := url.Parse(sub.Endpoint)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return nil, invalidf("endpoint must be an https URL")
	}
	if sub.P256dh == "" || sub.Auth == "" {
		return nil, invalidf("keys.p256dh and keys.auth are required")
	}

	sub.UserID = userID
	if err := s.repo.Upsert(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *pushSubscriptionService) Unregister(ctx context.Context, userID, endpoint string) error {
	if endpoint == "" {
		return invalidf("endpoint is required")
	}
	return s.repo.DeleteForUser(ctx, userID, endpoint)
}

func (s *pushSubscriptionService) List(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *pushSubscriptionService) VAPIDPublicKey() string {
	return s.publicKey
}
