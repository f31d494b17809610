package delivery

import (
	"fmt"
	"log/slog"

	"notifyhub/internal/config"
)

// NewConfiguredRegistry registers in-app delivery plus whichever external channels cfg
// configures. Entries on an unconfigured channel fail permanently at send time.
func NewConfiguredRegistry(cfg *config.Config, profiles ProfileDirectory, subs SubscriptionStore, logger *slog.Logger) (*Registry, error) {
	senders := []Sender{InAppSender{}}

	if cfg.EmailAPIKey != "" {
		renderer, err := NewEmailRenderer(cfg.AppName, cfg.AppBaseURL)
		if err != nil {
			return nil, fmt.Errorf("email templates: %w", err)
		}
		client := NewAPIClient(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailRatePerSec)
		senders = append(senders, NewEmailSender(client, renderer, profiles, cfg.EmailFrom))
	} else {
		logger.Warn("email_channel_disabled", "reason", "EMAIL_API_KEY not set")
	}

	if cfg.PushEnabled() {
		client := NewWebPushClient(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject, cfg.PushTTL)
		senders = append(senders, NewPushSender(client, subs))
	} else {
		logger.Warn("push_channel_disabled", "reason", "VAPID keys not set")
	}

	return NewRegistry(senders...), nil
}
