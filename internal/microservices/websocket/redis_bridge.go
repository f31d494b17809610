package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"notifyhub/internal/microservices/http-api/models"

	"github.com/redis/go-redis/v9"
)

const conversationChannelPrefix = "conversation:"

// RedisBridge publishes conversation events to Redis and feeds every event seen on
// conversation:* into the local multiplexer, so subscribers on any API instance receive them.
type RedisBridge struct {
	rdb    *redis.Client
	mux    *Multiplexer
	logger *slog.Logger
}

func NewRedisBridge(rdb *redis.Client, mux *Multiplexer, logger *slog.Logger) *RedisBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBridge{rdb: rdb, mux: mux, logger: logger}
}

func conversationChannel(conversationID string) string {
	return conversationChannelPrefix + conversationID
}

func (b *RedisBridge) Publish(ctx context.Context, event models.ConversationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode conversation event: %w", err)
	}
	if err := b.rdb.Publish(ctx, conversationChannel(event.ConversationID), payload).Err(); err != nil {
		return fmt.Errorf("publish conversation event: %w", err)
	}
	return nil
}

// Run blocks until ctx is cancelled. It returns an error only if the subscription cannot be set up.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.rdb.PSubscribe(ctx, conversationChannelPrefix+"*")
	defer pubsub.Close()

	// wait for the subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe conversation events: %w", err)
	}
	b.logger.Info("conversation_bridge_subscribed", "pattern", conversationChannelPrefix+"*")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("conversation_bridge_stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(msg.Channel, msg.Payload)
		}
	}
}

func (b *RedisBridge) handle(channel, payload string) {
	var event models.ConversationEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		b.logger.Warn("conversation_event_decode_failed", "channel", channel, "error", err)
		return
	}
	if event.ConversationID == "" {
		event.ConversationID = strings.TrimPrefix(channel, conversationChannelPrefix)
	}
	b.mux.Dispatch(event)
}
