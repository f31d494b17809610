package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"notifyhub/internal/microservices/http-api/models"

	webpush "github.com/SherClockHolmes/webpush-go"
	"golang.org/x/sync/errgroup"
)

var ErrNoSubscriptions = errors.New("user has no push subscriptions")

// PushClient delivers an encrypted payload to one browser endpoint.
// The status code is returned even on error so callers can spot expired endpoints.
type PushClient interface {
	Send(ctx context.Context, sub models.PushSubscription, payload []byte) (int, error)
}

// WebPushClient is a PushClient using VAPID-signed Web Push requests.
type WebPushClient struct {
	options webpush.Options
}

func NewWebPushClient(publicKey, privateKey, subject string, ttl int) *WebPushClient {
	return &WebPushClient{
		options: webpush.Options{
			// the library adds the mailto: scheme itself for non-https subjects
			Subscriber:      strings.TrimPrefix(subject, "mailto:"),
			VAPIDPublicKey:  publicKey,
			VAPIDPrivateKey: privateKey,
			TTL:             ttl,
			Urgency:         webpush.UrgencyNormal,
		},
	}
}

func (c *WebPushClient) Send(ctx context.Context, sub models.PushSubscription, payload []byte) (int, error) {
	opts := c.options
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &opts)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("push service returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// SubscriptionStore is the slice of the subscription repository the push sender needs.
type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID string) ([]models.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

type pushMessage struct {
	Title    string          `json:"title"`
	Body     string          `json:"body"`
	URL      string          `json:"url,omitempty"`
	Category models.Category `json:"category"`
	Tag      string          `json:"tag"`
}

// PushSender fans an entry out to every device of the user. The entry counts as sent when at
// least one device accepts it; endpoints reported gone (404/410) are removed.
type PushSender struct {
	client      PushClient
	store       SubscriptionStore
	concurrency int
	logger      *slog.Logger
}

func NewPushSender(client PushClient, store SubscriptionStore) *PushSender {
	return &PushSender{
		client:      client,
		store:       store,
		concurrency: 8,
		logger:      slog.Default(),
	}
}

func (s *PushSender) Channel() models.Channel { return models.ChannelPush }

func (s *PushSender) Send(ctx context.Context, entry *models.OutboxEntry) (Receipt, error) {
	subs, err := s.store.ListByUser(ctx, entry.UserID)
	if err != nil {
		return Receipt{}, fmt.Errorf("list push subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return Receipt{}, Permanent(ErrNoSubscriptions)
	}

	payload, err := json.Marshal(pushMessage{
		Title:    entry.Payload.Title,
		Body:     entry.Payload.Body,
		URL:      entry.Payload.URL,
		Category: entry.Category,
		Tag:      entry.ID,
	})
	if err != nil {
		return Receipt{}, Permanent(err)
	}

	var (
		mu   sync.Mutex
		sent int
		errs []error
		gone []string
	)

	// goroutines never return an error so one bad device does not cancel the rest
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, sub := range subs {
		g.Go(func() error {
			status, err := s.client.Send(ctx, sub, payload)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("endpoint %s: %w", endpointHost(sub.Endpoint), err))
				if status == http.StatusNotFound || status == http.StatusGone {
					gone = append(gone, sub.Endpoint)
				}
				return nil
			}
			sent++
			return nil
		})
	}
	g.Wait()

	for _, endpoint := range gone {
		if err := s.store.DeleteByEndpoint(ctx, endpoint); err != nil {
			s.logger.Warn("push_subscription_cleanup_failed", "user_id", entry.UserID, "error", err)
			continue
		}
		s.logger.Info("push_subscription_removed", "user_id", entry.UserID, "endpoint", endpointHost(endpoint))
	}

	if sent == 0 {
		joined := errors.Join(errs...)
		if len(gone) == len(subs) {
			return Receipt{}, Permanent(joined)
		}
		return Receipt{}, joined
	}
	return Receipt{Sent: sent, Failed: len(errs)}, nil
}

// endpointHost keeps logs free of the per-device token part of the URL.
func endpointHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "invalid-endpoint"
	}
	return u.Host
}
