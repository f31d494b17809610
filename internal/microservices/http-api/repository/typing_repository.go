package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"notifyhub/internal/microservices/http-api/models"

	"github.com/redis/go-redis/v9"
)

// TypingRepository holds ephemeral typing indicators. States older than the TTL are never returned.
type TypingRepository interface {
	Set(ctx context.Context, state models.TypingState, ttl time.Duration) error
	Clear(ctx context.Context, conversationID, profileID string) error
	List(ctx context.Context, conversationID string) ([]models.TypingState, error)
}

// --- Redis ---

type redisTypingRepository struct {
	client *redis.Client
}

func NewRedisTypingRepository(client *redis.Client) TypingRepository {
	return &redisTypingRepository{client: client}
}

func typingKey(conversationID, profileID string) string {
	return fmt.Sprintf("typing:%s:%s", conversationID, profileID)
}

func (r *redisTypingRepository) Set(ctx context.Context, state models.TypingState, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	// SET EX refreshes the expiry on every keystroke event
	return r.client.Set(ctx, typingKey(state.ConversationID, state.ProfileID), data, ttl).Err()
}

func (r *redisTypingRepository) Clear(ctx context.Context, conversationID, profileID string) error {
	return r.client.Del(ctx, typingKey(conversationID, profileID)).Err()
}

func (r *redisTypingRepository) List(ctx context.Context, conversationID string) ([]models.TypingState, error) {
	pattern := typingKey(conversationID, "*")
	var (
		states []models.TypingState
		cursor uint64
	)
	for {
		// SCAN walks keys in batches without blocking the server
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			raw, err := r.client.Get(ctx, key).Bytes()
			if err != nil {
				// expired between SCAN and GET
				continue
			}
			var state models.TypingState
			if err := json.Unmarshal(raw, &state); err != nil {
				continue
			}
			states = append(states, state)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return states, nil
}

// --- in-memory ---

type typingEntry struct {
	state     models.TypingState
	expiresAt time.Time
}

// MemoryTypingRepository is the single-instance fallback used when Redis is not configured.
type MemoryTypingRepository struct {
	mu      sync.RWMutex
	entries map[string]*typingEntry // typingKey -> entry
	now     func() time.Time
}

func NewMemoryTypingRepository() *MemoryTypingRepository {
	return &MemoryTypingRepository{
		entries: make(map[string]*typingEntry),
		now:     time.Now,
	}
}

func (m *MemoryTypingRepository) Set(ctx context.Context, state models.TypingState, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[typingKey(state.ConversationID, state.ProfileID)] = &typingEntry{
		state:     state,
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

func (m *MemoryTypingRepository) Clear(ctx context.Context, conversationID, profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, typingKey(conversationID, profileID))
	return nil
}

func (m *MemoryTypingRepository) List(ctx context.Context, conversationID string) ([]models.TypingState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	states := make([]models.TypingState, 0)
	for _, e := range m.entries {
		if e.state.ConversationID == conversationID && now.Before(e.expiresAt) {
			states = append(states, e.state)
		}
	}
	return states, nil
}

// CleanupExpired drops entries past their TTL.
func (m *MemoryTypingRepository) CleanupExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, key)
		}
	}
}

// Count returns the number of stored entries, expired or not.
func (m *MemoryTypingRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

// StartCleanupRoutine periodically purges expired entries until done is closed.
func (m *MemoryTypingRepository) StartCleanupRoutine(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CleanupExpired()
		case <-done:
			return
		}
	}
}
