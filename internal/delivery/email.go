package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"notifyhub/internal/microservices/http-api/models"

	"golang.org/x/time/rate"
)

// EmailMessage is what the transactional email API accepts.
type EmailMessage struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

// EmailClient sends one message and returns the provider's message id.
type EmailClient interface {
	Send(ctx context.Context, msg EmailMessage) (string, error)
}

// APIClient talks to a JSON transactional email API (POST, bearer key, {"id": ...} response).
type APIClient struct {
	endpoint    string
	apiKey      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

func NewAPIClient(endpoint, apiKey string, ratePerSec float64) *APIClient {
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return &APIClient{
		endpoint:    endpoint,
		apiKey:      apiKey,
		rateLimiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type emailAPIResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (c *APIClient) Send(ctx context.Context, msg EmailMessage) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return "", Permanent(fmt.Errorf("failed to marshal email: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("email api request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out emailAPIResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			// accepted but unreadable: treat as sent, id unknown
			return "", nil
		}
		return out.ID, nil
	}

	apiErr := fmt.Errorf("email api returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	if isRetryableStatus(resp.StatusCode) {
		return "", apiErr
	}
	return "", Permanent(apiErr)
}

func isRetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ProfileDirectory resolves the recipient's address.
type ProfileDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

var ErrNoEmailAddress = errors.New("recipient has no email address")

// EmailSender renders the shared shell and hands it to the email API.
// There is no idempotency key: a retry after a lost success response sends a second email.
type EmailSender struct {
	client   EmailClient
	renderer *EmailRenderer
	profiles ProfileDirectory
	from     string
}

func NewEmailSender(client EmailClient, renderer *EmailRenderer, profiles ProfileDirectory, from string) *EmailSender {
	return &EmailSender{
		client:   client,
		renderer: renderer,
		profiles: profiles,
		from:     from,
	}
}

func (s *EmailSender) Channel() models.Channel { return models.ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, entry *models.OutboxEntry) (Receipt, error) {
	profile, err := s.profiles.FindByID(ctx, entry.UserID)
	if err != nil {
		return Receipt{}, fmt.Errorf("lookup recipient: %w", err)
	}
	if profile.Email == "" {
		return Receipt{}, Permanent(ErrNoEmailAddress)
	}

	html, text, err := s.renderer.Render(entry.Payload)
	if err != nil {
		return Receipt{}, Permanent(err)
	}

	id, err := s.client.Send(ctx, EmailMessage{
		From:    s.from,
		To:      []string{profile.Email},
		Subject: entry.Payload.Title,
		HTML:    html,
		Text:    text,
	})
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{ProviderID: id, Sent: 1}, nil
}
