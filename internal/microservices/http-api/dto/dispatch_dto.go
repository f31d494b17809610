package dto

import (
	"time"

	"notifyhub/internal/microservices/http-api/models"
	"notifyhub/internal/microservices/http-api/service"
)

// ForceChannelsDTO bypasses preferences and quiet hours when present.
type ForceChannelsDTO struct {
	InApp bool `json:"inapp"`
	Push  bool `json:"push"`
	Email bool `json:"email"`
}

func (f *ForceChannelsDTO) toModel() *models.ChannelFlags {
	if f == nil {
		return nil
	}
	return &models.ChannelFlags{InApp: f.InApp, Push: f.Push, Email: f.Email}
}

// DispatchRequest used for POST /dispatch. Edge functions send userId/forceChannels,
// internal callers the snake_case keys; either form is accepted and the snake_case one wins.
type DispatchRequest struct {
	Type               string            `json:"type" binding:"required"`
	UserID             string            `json:"user_id"`
	UserIDCamel        string            `json:"userId"`
	Role               string            `json:"role" binding:"required"`
	Title              string            `json:"title" binding:"required"`
	Body               string            `json:"body"`
	URL                string            `json:"url,omitempty"`
	Metadata           map[string]any    `json:"metadata,omitempty"`
	ForceChannels      *ForceChannelsDTO `json:"force_channels,omitempty"`
	ForceChannelsCamel *ForceChannelsDTO `json:"forceChannels,omitempty"`
}

func (d DispatchRequest) ToService() service.DispatchRequest {
	userID := d.UserID
	if userID == "" {
		userID = d.UserIDCamel
	}
	force := d.ForceChannels
	if force == nil {
		force = d.ForceChannelsCamel
	}
	return service.DispatchRequest{
		Type:          models.Category(d.Type),
		UserID:        userID,
		Role:          models.Role(d.Role),
		Title:         d.Title,
		Body:          d.Body,
		URL:           d.URL,
		Metadata:      d.Metadata,
		ForceChannels: force.toModel(),
	}
}

// AnnouncementRequest used for POST /announcements
type AnnouncementRequest struct {
	TargetAudience string            `json:"target_audience" binding:"required"`
	Title          string            `json:"title" binding:"required"`
	Body           string            `json:"body"`
	URL            string            `json:"url,omitempty"`
	ForceChannels  *ForceChannelsDTO `json:"force_channels,omitempty"`
	// ForceChannelsCamel is the edge-function spelling of ForceChannels.
	ForceChannelsCamel *ForceChannelsDTO `json:"forceChannels,omitempty"`
}

func (d AnnouncementRequest) ToService() service.AnnouncementRequest {
	force := d.ForceChannels
	if force == nil {
		force = d.ForceChannelsCamel
	}
	return service.AnnouncementRequest{
		Audience:      service.Audience(d.TargetAudience),
		Title:         d.Title,
		Body:          d.Body,
		URL:           d.URL,
		ForceChannels: force.toModel(),
	}
}

// DispatchResponse mirrors service.DispatchResult plus the ids of the rows written.
type DispatchResponse struct {
	Recipients   int              `json:"recipients"`
	EmailsSent   int              `json:"emails_sent"`
	EmailsFailed int              `json:"emails_failed"`
	PushSent     int              `json:"push_sent"`
	PushFailed   int              `json:"push_failed"`
	Suppressed   []models.Channel `json:"suppressed,omitempty"`
	EntryIDs     []string         `json:"entry_ids,omitempty"`
}

func NewDispatchResponse(r *service.DispatchResult) DispatchResponse {
	resp := DispatchResponse{
		Recipients:   r.Recipients,
		EmailsSent:   r.EmailsSent,
		EmailsFailed: r.EmailsFailed,
		PushSent:     r.PushSent,
		PushFailed:   r.PushFailed,
		Suppressed:   r.Suppressed,
	}
	for _, e := range r.Entries {
		resp.EntryIDs = append(resp.EntryIDs, e.ID)
	}
	return resp
}

// OutboxEntryResponse is the row shape of the admin health view.
type OutboxEntryResponse struct {
	ID            string              `json:"id"`
	UserID        string              `json:"user_id"`
	Category      models.Category     `json:"category"`
	Channel       models.Channel      `json:"channel"`
	Status        models.OutboxStatus `json:"status"`
	AttemptCount  int                 `json:"attempt_count"`
	LastError     *string             `json:"last_error"`
	NextAttemptAt time.Time           `json:"next_attempt_at"`
	CreatedAt     time.Time           `json:"created_at"`
}

func NewOutboxEntryResponse(e *models.OutboxEntry) OutboxEntryResponse {
	return OutboxEntryResponse{
		ID:            e.ID,
		UserID:        e.UserID,
		Category:      e.Category,
		Channel:       e.Channel,
		Status:        e.Status,
		AttemptCount:  e.AttemptCount,
		LastError:     e.LastError,
		NextAttemptAt: e.NextAttemptAt,
		CreatedAt:     e.CreatedAt,
	}
}
