package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"notifyhub/internal/delivery"
	"notifyhub/internal/microservices/http-api/models"
	"notifyhub/internal/microservices/http-api/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOutboxService(outbox *fakeOutbox, sender *scriptedSender, now time.Time) OutboxService {
	return NewOutboxService(OutboxServiceConfig{
		Outbox:    outbox,
		Sender:    sender,
		Policy:    NewRetryPolicy(5, 30*time.Second, 30*time.Minute),
		BatchSize: 2,
		Workers:   2,
		Lease:     time.Minute,
		Now:       func() time.Time { return now },
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func seedEntry(t *testing.T, outbox *fakeOutbox, ch models.Channel, status models.OutboxStatus, attempts int, due time.Time) *models.OutboxEntry {
	t.Helper()
	e := models.NewOutboxEntry("u1", models.RoleHomeowner, models.CategoryBooking, ch, models.OutboxPayload{Title: "Booking"}, due, 0)
	e.Status = status
	e.AttemptCount = attempts
	e.NextAttemptAt = due
	require.NoError(t, outbox.CreateBatch(context.Background(), []*models.OutboxEntry{e}))
	return e
}

func TestSweep_ProcessesDueEntries(t *testing.T) {
	outbox := newFakeOutbox()
	sender := &scriptedSender{}
	sender.setErr(models.ChannelPush, errors.New("push service returned status 503"))

	due := testNow.Add(-time.Minute)
	email := seedEntry(t, outbox, models.ChannelEmail, models.StatusPending, 1, due)
	push := seedEntry(t, outbox, models.ChannelPush, models.StatusPending, 1, due)
	lastTry := seedEntry(t, outbox, models.ChannelPush, models.StatusPending, 4, due)
	later := seedEntry(t, outbox, models.ChannelEmail, models.StatusPending, 1, testNow.Add(time.Hour))
	done := seedEntry(t, outbox, models.ChannelEmail, models.StatusSent, 1, due)

	result, err := newTestOutboxService(outbox, sender, testNow).Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, &SweepResult{Claimed: 3, Sent: 1, Retrying: 1, Failed: 1}, result)

	get := func(id string) *models.OutboxEntry {
		e, err := outbox.FindByID(context.Background(), id)
		require.NoError(t, err)
		return e
	}
	assert.Equal(t, models.StatusSent, get(email.ID).Status)
	assert.Equal(t, 2, get(email.ID).AttemptCount)

	assert.Equal(t, models.StatusPending, get(push.ID).Status)
	assert.Equal(t, 2, get(push.ID).AttemptCount)
	assert.True(t, get(push.ID).NextAttemptAt.After(testNow))

	assert.Equal(t, models.StatusFailed, get(lastTry.ID).Status)
	assert.Equal(t, 5, get(lastTry.ID).AttemptCount)

	assert.Equal(t, 1, get(later.ID).AttemptCount)
	assert.Equal(t, models.StatusSent, get(done.ID).Status)
}

func TestSweep_AttemptCountNeverDecreases(t *testing.T) {
	outbox := newFakeOutbox()
	sender := &scriptedSender{}
	sender.setErr(models.ChannelEmail, errors.New("timeout"))
	entry := seedEntry(t, outbox, models.ChannelEmail, models.StatusPending, 0, testNow.Add(-time.Second))

	prev := 0
	now := testNow
	for i := 0; i < 6; i++ {
		_, err := newTestOutboxService(outbox, sender, now).Sweep(context.Background())
		require.NoError(t, err)

		got, err := outbox.FindByID(context.Background(), entry.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.AttemptCount, prev)
		prev = got.AttemptCount
		now = now.Add(time.Hour)
	}

	got, _ := outbox.FindByID(context.Background(), entry.ID)
	assert.Equal(t, 5, got.AttemptCount)
	assert.Equal(t, models.StatusFailed, got.Status)
}

func TestRetryEntry_RequeuesFailed(t *testing.T) {
	outbox := newFakeOutbox()
	entry := seedEntry(t, outbox, models.ChannelEmail, models.StatusFailed, 5, testNow.Add(-time.Hour))

	got, err := newTestOutboxService(outbox, &scriptedSender{}, testNow).RetryEntry(context.Background(), entry.ID)

	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, got.Status)
	assert.Equal(t, 6, got.AttemptCount)
}

// gatedSender holds its first Send until release is closed.
type gatedSender struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func newGatedSender() *gatedSender {
	return &gatedSender{entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *gatedSender) Send(ctx context.Context, entry *models.OutboxEntry) (delivery.Receipt, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if first {
		close(s.entered)
		<-s.release
	}
	return delivery.Receipt{Sent: 1}, nil
}

func (s *gatedSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestSweep_SkipsEntryDuringImmediateAttempt(t *testing.T) {
	outbox := newFakeOutbox()
	sender := newGatedSender()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	policy := NewRetryPolicy(5, 30*time.Second, 30*time.Minute)

	dispatcher := NewDispatcher(DispatcherConfig{
		Preferences: new(MockPreferenceService),
		Outbox:      outbox,
		Sender:      sender,
		Profiles:    new(MockRecipientDirectory),
		Policy:      policy,
		Lease:       time.Minute,
		Now:         func() time.Time { return testNow },
		Logger:      logger,
	})
	sweepAt := testNow.Add(30 * time.Second)
	sweeper := NewOutboxService(OutboxServiceConfig{
		Outbox: outbox,
		Sender: sender,
		Policy: policy,
		Lease:  time.Minute,
		Now:    func() time.Time { return sweepAt },
		Logger: logger,
	})

	done := make(chan *DispatchResult, 1)
	go func() {
		result, err := dispatcher.Dispatch(context.Background(), DispatchRequest{
			Type:          models.CategoryPayment,
			UserID:        "u1",
			Role:          models.RoleHomeowner,
			Title:         "Payment received",
			ForceChannels: &models.ChannelFlags{Email: true},
		})
		assert.NoError(t, err)
		done <- result
	}()

	select {
	case <-sender.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch never reached the sender")
	}

	swept, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, swept.Claimed)

	close(sender.release)
	var result *DispatchResult
	select {
	case result = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not finish")
	}
	require.NotNil(t, result)
	assert.Equal(t, 1, result.EmailsSent)
	assert.Equal(t, 1, sender.count())

	rows := outbox.all()
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusSent, rows[0].Status)
	assert.Equal(t, 1, rows[0].AttemptCount)
}

func TestDispatch_AbandonedEntryBecomesDueAfterLease(t *testing.T) {
	outbox := newFakeOutbox()
	entry := models.NewOutboxEntry("u1", models.RoleHomeowner, models.CategoryJob, models.ChannelEmail,
		models.OutboxPayload{Title: "Job posted"}, testNow, time.Minute)
	require.NoError(t, outbox.CreateBatch(context.Background(), []*models.OutboxEntry{entry}))

	claimed, err := outbox.ClaimDue(context.Background(), testNow.Add(59*time.Second), time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	claimed, err = outbox.ClaimDue(context.Background(), testNow.Add(time.Minute), time.Minute, 10)
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

type senderFunc func(ctx context.Context, entry *models.OutboxEntry) (delivery.Receipt, error)

func (f senderFunc) Send(ctx context.Context, entry *models.OutboxEntry) (delivery.Receipt, error) {
	return f(ctx, entry)
}

func TestRetryEntry_LeasesRequeuedEntry(t *testing.T) {
	outbox := newFakeOutbox()
	entry := seedEntry(t, outbox, models.ChannelEmail, models.StatusFailed, 5, testNow.Add(-time.Hour))

	var claimedDuringSend []models.OutboxEntry
	sender := senderFunc(func(ctx context.Context, e *models.OutboxEntry) (delivery.Receipt, error) {
		var err error
		claimedDuringSend, err = outbox.ClaimDue(ctx, testNow, time.Minute, 10)
		require.NoError(t, err)
		return delivery.Receipt{Sent: 1}, nil
	})
	svc := NewOutboxService(OutboxServiceConfig{
		Outbox: outbox,
		Sender: sender,
		Policy: NewRetryPolicy(5, 30*time.Second, 30*time.Minute),
		Lease:  time.Minute,
		Now:    func() time.Time { return testNow },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	got, err := svc.RetryEntry(context.Background(), entry.ID)

	require.NoError(t, err)
	assert.Empty(t, claimedDuringSend)
	assert.Equal(t, models.StatusSent, got.Status)
	assert.Equal(t, 6, got.AttemptCount)
}

func TestRetryEntry_RejectsPending(t *testing.T) {
	outbox := newFakeOutbox()
	entry := seedEntry(t, outbox, models.ChannelEmail, models.StatusPending, 1, testNow.Add(time.Minute))
	sender := &scriptedSender{}

	_, err := newTestOutboxService(outbox, sender, testNow).RetryEntry(context.Background(), entry.ID)

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, sender.calls)
}

func TestRetryEntry_AlreadySent(t *testing.T) {
	outbox := newFakeOutbox()
	entry := seedEntry(t, outbox, models.ChannelEmail, models.StatusSent, 1, testNow)

	_, err := newTestOutboxService(outbox, &scriptedSender{}, testNow).RetryEntry(context.Background(), entry.ID)

	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRetryEntry_Unknown(t *testing.T) {
	_, err := newTestOutboxService(newFakeOutbox(), &scriptedSender{}, testNow).RetryEntry(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOutboxList_ValidatesFilter(t *testing.T) {
	svc := newTestOutboxService(newFakeOutbox(), &scriptedSender{}, testNow)

	_, err := svc.List(context.Background(), repository.OutboxFilter{Status: "bounced"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.List(context.Background(), repository.OutboxFilter{Channel: "sms"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
