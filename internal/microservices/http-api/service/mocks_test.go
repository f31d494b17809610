package service

import (
	"context"
	"sync"
	"time"

	"notifyhub/internal/delivery"
	"notifyhub/internal/microservices/http-api/models"
	"notifyhub/internal/microservices/http-api/repository"

	"github.com/stretchr/testify/mock"
)

// MockPreferenceRepository mocks repository.PreferenceRepository
type MockPreferenceRepository struct {
	mock.Mock
}

func (m *MockPreferenceRepository) FindByUserRole(ctx context.Context, userID string, role models.Role) (*models.NotificationPreference, error) {
	args := m.Called(ctx, userID, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.NotificationPreference), args.Error(1)
}

func (m *MockPreferenceRepository) CreateIfAbsent(ctx context.Context, pref *models.NotificationPreference) error {
	args := m.Called(ctx, pref)
	return args.Error(0)
}

func (m *MockPreferenceRepository) Update(ctx context.Context, pref *models.NotificationPreference, expectedVersion int64) (*models.NotificationPreference, error) {
	args := m.Called(ctx, pref, expectedVersion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.NotificationPreference), args.Error(1)
}

// MockPreferenceService mocks PreferenceService
type MockPreferenceService struct {
	mock.Mock
}

func (m *MockPreferenceService) GetOrCreate(ctx context.Context, userID string, role models.Role) (*models.NotificationPreference, error) {
	args := m.Called(ctx, userID, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.NotificationPreference), args.Error(1)
}

func (m *MockPreferenceService) Update(ctx context.Context, userID string, role models.Role, pref *models.NotificationPreference) (*models.NotificationPreference, error) {
	args := m.Called(ctx, userID, role, pref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.NotificationPreference), args.Error(1)
}

// fakeOutbox is an in-memory ledger applying the same guarded transitions as the SQL repository.
type fakeOutbox struct {
	mu      sync.Mutex
	entries map[string]*models.OutboxEntry
	order   []string
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{entries: make(map[string]*models.OutboxEntry)}
}

func (f *fakeOutbox) CreateBatch(ctx context.Context, entries []*models.OutboxEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		cp := *e
		f.entries[e.ID] = &cp
		f.order = append(f.order, e.ID)
	}
	return nil
}

func (f *fakeOutbox) FindByID(ctx context.Context, id string) (*models.OutboxEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeOutbox) MarkSent(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok || e.Status != models.StatusPending {
		return repository.ErrNotFound
	}
	e.Status = models.StatusSent
	e.AttemptCount++
	e.LastError = nil
	e.SentAt = &at
	return nil
}

func (f *fakeOutbox) RecordFailure(ctx context.Context, id string, status models.OutboxStatus, lastErr string, nextAttemptAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok || e.Status != models.StatusPending {
		return repository.ErrNotFound
	}
	e.Status = status
	e.AttemptCount++
	e.LastError = &lastErr
	e.NextAttemptAt = nextAttemptAt
	return nil
}

func (f *fakeOutbox) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.OutboxEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.OutboxEntry
	for _, id := range f.order {
		e := f.entries[id]
		if e.Status != models.StatusPending || e.NextAttemptAt.After(now) {
			continue
		}
		if len(out) == limit {
			break
		}
		e.NextAttemptAt = now.Add(lease)
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeOutbox) Requeue(ctx context.Context, id string, now time.Time, lease time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok || e.Status != models.StatusFailed {
		return repository.ErrNotFound
	}
	e.Status = models.StatusPending
	e.NextAttemptAt = now.Add(lease)
	return nil
}

func (f *fakeOutbox) List(ctx context.Context, filter repository.OutboxFilter) ([]models.OutboxEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.OutboxEntry
	for _, id := range f.order {
		e := f.entries[id]
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Channel != "" && e.Channel != filter.Channel {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeOutbox) Stats(ctx context.Context) ([]repository.OutboxStat, error) {
	return nil, nil
}

func (f *fakeOutbox) ListInApp(ctx context.Context, userID string, role models.Role, limit int) ([]models.OutboxEntry, error) {
	return nil, nil
}

func (f *fakeOutbox) CountInAppSince(ctx context.Context, userID string, role models.Role, since *time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeOutbox) all() []models.OutboxEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.OutboxEntry, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, *f.entries[id])
	}
	return out
}

// scriptedSender returns a fixed error per channel; a nil error means delivered.
type scriptedSender struct {
	mu    sync.Mutex
	errs  map[models.Channel]error
	calls []models.Channel
}

func (s *scriptedSender) Send(ctx context.Context, entry *models.OutboxEntry) (delivery.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, entry.Channel)
	if err := s.errs[entry.Channel]; err != nil {
		return delivery.Receipt{}, err
	}
	return delivery.Receipt{Sent: 1}, nil
}

func (s *scriptedSender) setErr(ch models.Channel, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errs == nil {
		s.errs = make(map[models.Channel]error)
	}
	s.errs[ch] = err
}

// MockRecipientDirectory mocks RecipientDirectory and ProfileLookup
type MockRecipientDirectory struct {
	mock.Mock
}

func (m *MockRecipientDirectory) ListByRoles(ctx context.Context, roles []models.Role) ([]models.Profile, error) {
	args := m.Called(ctx, roles)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Profile), args.Error(1)
}

func (m *MockRecipientDirectory) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

// MockDispatcher mocks Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*DispatchResult), args.Error(1)
}

func (m *MockDispatcher) DispatchAsync(req DispatchRequest) {
	m.Called(req)
}

func (m *MockDispatcher) DispatchAnnouncement(ctx context.Context, req AnnouncementRequest) (*DispatchResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*DispatchResult), args.Error(1)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ConversationEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event models.ConversationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []models.ConversationEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.ConversationEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
