// Package delivery holds the channel senders invoked for outbox entries.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"notifyhub/internal/microservices/http-api/models"
)

// ErrPermanent marks failures that retrying cannot fix (bad address, no devices, rejected payload).
var ErrPermanent = errors.New("permanent delivery failure")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string   { return e.err.Error() }
func (e *permanentError) Unwrap() []error { return []error{e.err, ErrPermanent} }

// Permanent wraps err so that IsPermanent reports true while keeping err in the chain.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// Receipt describes a successful delivery.
type Receipt struct {
	ProviderID string `json:"provider_id,omitempty"` // email provider message id
	Sent       int    `json:"sent"`                  // devices / recipients reached
	Failed     int    `json:"failed"`                // devices that failed while others succeeded
}

// Sender delivers one outbox entry on its channel.
type Sender interface {
	Channel() models.Channel
	Send(ctx context.Context, entry *models.OutboxEntry) (Receipt, error)
}

// Registry routes entries to the sender of their channel.
type Registry struct {
	senders map[models.Channel]Sender
}

func NewRegistry(senders ...Sender) *Registry {
	r := &Registry{senders: make(map[models.Channel]Sender, len(senders))}
	for _, s := range senders {
		r.senders[s.Channel()] = s
	}
	return r
}

// Send dispatches entry to its channel's sender. An unconfigured channel is a permanent failure.
func (r *Registry) Send(ctx context.Context, entry *models.OutboxEntry) (Receipt, error) {
	s, ok := r.senders[entry.Channel]
	if !ok {
		return Receipt{}, Permanent(fmt.Errorf("no sender configured for channel %q", entry.Channel))
	}
	return s.Send(ctx, entry)
}

// Has reports whether a sender is registered for ch.
func (r *Registry) Has(ch models.Channel) bool {
	_, ok := r.senders[ch]
	return ok
}

// InAppSender is a no-op: the outbox row is the in-app notification, read by the client's feed.
type InAppSender struct{}

func (InAppSender) Channel() models.Channel { return models.ChannelInApp }

func (InAppSender) Send(ctx context.Context, entry *models.OutboxEntry) (Receipt, error) {
	return Receipt{Sent: 1}, nil
}
