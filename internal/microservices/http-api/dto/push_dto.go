package dto

import "notifyhub/internal/microservices/http-api/models"

// PushKeys is the keys object of a browser PushSubscription.
type PushKeys struct {
	P256dh string `json:"p256dh" binding:"required"`
	Auth   string `json:"auth" binding:"required"`
}

// PushSubscriptionRequest is the standard Web Push subscription JSON.
type PushSubscriptionRequest struct {
	Endpoint string   `json:"endpoint" binding:"required"`
	Keys     PushKeys `json:"keys" binding:"required"`
}

func (d PushSubscriptionRequest) ToModel(userAgent string) *models.PushSubscription {
	return &models.PushSubscription{
		Endpoint:  d.Endpoint,
		P256dh:    d.Keys.P256dh,
		Auth:      d.Keys.Auth,
		UserAgent: userAgent,
	}
}

type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

type PushSubscriptionResponse struct {
	Endpoint string   `json:"endpoint"`
	Keys     PushKeys `json:"keys"`
}

func NewPushSubscriptionResponse(s *models.PushSubscription) PushSubscriptionResponse {
	return PushSubscriptionResponse{
		Endpoint: s.Endpoint,
		Keys:     PushKeys{P256dh: s.P256dh, Auth: s.Auth},
	}
}
