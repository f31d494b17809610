package service

import (
	"context"
	"fmt"
	"sync"

	"notifyhub/internal/microservices/http-api/models"
	"notifyhub/internal/worker"
)

// Audience selects announcement recipients by role.
type Audience string

const (
	AudienceAll        Audience = "all"
	AudienceProviders  Audience = "providers"
	AudienceHomeowners Audience = "homeowners"
)

// Roles returns the profile roles an audience covers, or nil when a is unknown.
func (a Audience) Roles() []models.Role {
	switch a {
	case AudienceAll:
		return []models.Role{models.RoleHomeowner, models.RoleProvider, models.RoleAdmin}
	case AudienceProviders:
		return []models.Role{models.RoleProvider}
	case AudienceHomeowners:
		return []models.Role{models.RoleHomeowner}
	}
	return nil
}

type AnnouncementRequest struct {
	Audience      Audience
	Title         string
	Body          string
	URL           string
	ForceChannels *models.ChannelFlags
}

// RecipientDirectory lists the profiles an announcement goes to.
type RecipientDirectory interface {
	ListByRoles(ctx context.Context, roles []models.Role) ([]models.Profile, error)
}

// DispatchAnnouncement sends one announcement per matching profile, each in that profile's role,
// so every recipient's own preferences apply.
func (d *dispatcher) DispatchAnnouncement(ctx context.Context, req AnnouncementRequest) (*DispatchResult, error) {
	roles := req.Audience.Roles()
	if roles == nil {
		return nil, invalidf("unknown audience %q", req.Audience)
	}
	if req.Title == "" {
		return nil, invalidf("title is required")
	}

	recipients, err := d.profiles.ListByRoles(ctx, roles)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}

	var (
		mu     sync.Mutex
		total  = &DispatchResult{}
		failed int
	)

	tasks := make([]worker.Task, 0, len(recipients))
	for _, p := range recipients {
		tasks = append(tasks, func(ctx context.Context) error {
			res, err := d.Dispatch(ctx, DispatchRequest{
				Type:          models.CategoryAnnouncement,
				UserID:        p.ID,
				Role:          p.Role,
				Title:         req.Title,
				Body:          req.Body,
				URL:           req.URL,
				ForceChannels: req.ForceChannels,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				return fmt.Errorf("recipient %s: %w", p.ID, err)
			}
			total.add(res)
			return nil
		})
	}

	worker.Run(ctx, "announcement", d.fanoutWorkers, tasks)

	d.logger.Info("announcement_dispatched",
		"audience", req.Audience,
		"recipients", total.Recipients,
		"failed_recipients", failed,
		"emails_sent", total.EmailsSent,
		"emails_failed", total.EmailsFailed,
	)
	return total, nil
}
