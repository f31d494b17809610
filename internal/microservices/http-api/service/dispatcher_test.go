package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"notifyhub/internal/delivery"
	"notifyhub/internal/microservices/http-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 7, 1, 15, 0, 0, 0, time.UTC) // 11:00 in New York

type dispatcherFixture struct {
	prefs    *MockPreferenceService
	outbox   *fakeOutbox
	sender   *scriptedSender
	profiles *MockRecipientDirectory
	svc      Dispatcher
}

func newDispatcherFixture(t *testing.T, now time.Time) *dispatcherFixture {
	t.Helper()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	f := &dispatcherFixture{
		prefs:    new(MockPreferenceService),
		outbox:   newFakeOutbox(),
		sender:   &scriptedSender{},
		profiles: new(MockRecipientDirectory),
	}
	f.svc = NewDispatcher(DispatcherConfig{
		Preferences:   f.prefs,
		Outbox:        f.outbox,
		Sender:        f.sender,
		Profiles:      f.profiles,
		Policy:        NewRetryPolicy(5, 30*time.Second, 30*time.Minute),
		DefaultTZ:     ny,
		FanoutWorkers: 2,
		Now:           func() time.Time { return now },
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func channelsOf(entries []models.OutboxEntry) []models.Channel {
	out := make([]models.Channel, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Channel)
	}
	return out
}

func TestDispatch_FollowsPreferences(t *testing.T) {
	f := newDispatcherFixture(t, testNow)
	pref := models.DefaultPreference("u1", models.RoleProvider, "America/New_York")
	f.prefs.On("GetOrCreate", mock.Anything, "u1", models.RoleProvider).Return(pref, nil)

	result, err := f.svc.Dispatch(context.Background(), DispatchRequest{
		Type:   models.CategoryMessage,
		UserID: "u1",
		Role:   models.RoleProvider,
		Title:  "New message",
		Body:   "Can you come Tuesday?",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Recipients)
	assert.Equal(t, 1, result.PushSent)
	assert.Equal(t, 0, result.EmailsSent)

	rows := f.outbox.all()
	assert.Equal(t, []models.Channel{models.ChannelInApp, models.ChannelPush}, channelsOf(rows))
	for _, r := range rows {
		assert.Equal(t, models.StatusSent, r.Status)
		assert.Equal(t, 1, r.AttemptCount)
		assert.Equal(t, "u1", r.Payload.UserID)
		assert.Equal(t, models.CategoryMessage, r.Category)
	}
}

func TestDispatch_ForceChannelsSkipsPreferences(t *testing.T) {
	// 23:30 in New York, inside the quiet window below, which must not matter
	f := newDispatcherFixture(t, time.Date(2026, 7, 2, 3, 30, 0, 0, time.UTC))

	result, err := f.svc.Dispatch(context.Background(), DispatchRequest{
		Type:          models.CategoryPayment,
		UserID:        "u1",
		Role:          models.RoleHomeowner,
		Title:         "Payment received",
		ForceChannels: &models.ChannelFlags{Email: true},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.EmailsSent)
	assert.Equal(t, []models.Channel{models.ChannelEmail}, channelsOf(f.outbox.all()))
	f.prefs.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_QuietHoursSuppressPushAndEmail(t *testing.T) {
	f := newDispatcherFixture(t, time.Date(2026, 7, 2, 3, 30, 0, 0, time.UTC))
	pref := models.DefaultPreference("u1", models.RoleHomeowner, "America/New_York")
	pref.QuietHoursStart = strPtr("22:00")
	pref.QuietHoursEnd = strPtr("08:00")
	f.prefs.On("GetOrCreate", mock.Anything, "u1", models.RoleHomeowner).Return(pref, nil)

	result, err := f.svc.Dispatch(context.Background(), DispatchRequest{
		Type:   models.CategoryPayment,
		UserID: "u1",
		Role:   models.RoleHomeowner,
		Title:  "Payment received",
	})

	require.NoError(t, err)
	assert.Equal(t, []models.Channel{models.ChannelPush, models.ChannelEmail}, result.Suppressed)
	assert.Equal(t, []models.Channel{models.ChannelInApp}, channelsOf(f.outbox.all()))
}

func TestDispatch_TransientFailureStaysPending(t *testing.T) {
	f := newDispatcherFixture(t, testNow)
	f.prefs.On("GetOrCreate", mock.Anything, "u1", models.RoleProvider).
		Return(models.DefaultPreference("u1", models.RoleProvider, "America/New_York"), nil)
	f.sender.setErr(models.ChannelEmail, errors.New("email api returned status 503"))

	result, err := f.svc.Dispatch(context.Background(), DispatchRequest{
		Type:   models.CategoryPayout,
		UserID: "u1",
		Role:   models.RoleProvider,
		Title:  "Payout sent",
	})

	require.NoError(t, err)
	assert.Equal(t, 0, result.EmailsSent)
	assert.Equal(t, 1, result.EmailsFailed)

	for _, r := range f.outbox.all() {
		if r.Channel != models.ChannelEmail {
			assert.Equal(t, models.StatusSent, r.Status)
			continue
		}
		assert.Equal(t, models.StatusPending, r.Status)
		assert.Equal(t, 1, r.AttemptCount)
		require.NotNil(t, r.LastError)
		assert.Contains(t, *r.LastError, "503")
		assert.True(t, r.NextAttemptAt.After(testNow))
	}
}

func TestDispatch_PermanentFailureIsTerminal(t *testing.T) {
	f := newDispatcherFixture(t, testNow)
	f.sender.setErr(models.ChannelPush, delivery.Permanent(delivery.ErrNoSubscriptions))

	result, err := f.svc.Dispatch(context.Background(), DispatchRequest{
		Type:          models.CategoryJob,
		UserID:        "u1",
		Role:          models.RoleProvider,
		Title:         "New job nearby",
		ForceChannels: &models.ChannelFlags{Push: true},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.PushFailed)
	rows := f.outbox.all()
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusFailed, rows[0].Status)
}

func TestDispatch_IdenticalRequestsAreNotDeduplicated(t *testing.T) {
	f := newDispatcherFixture(t, testNow)
	req := DispatchRequest{
		Type:          models.CategoryBooking,
		UserID:        "u1",
		Role:          models.RoleHomeowner,
		Title:         "Booking confirmed",
		ForceChannels: &models.ChannelFlags{InApp: true},
	}

	_, err := f.svc.Dispatch(context.Background(), req)
	require.NoError(t, err)
	_, err = f.svc.Dispatch(context.Background(), req)
	require.NoError(t, err)

	rows := f.outbox.all()
	require.Len(t, rows, 2)
	assert.NotEqual(t, rows[0].ID, rows[1].ID)
}

func TestDispatch_Validation(t *testing.T) {
	f := newDispatcherFixture(t, testNow)

	tests := []struct {
		name string
		req  DispatchRequest
	}{
		{"unknown type", DispatchRequest{Type: "invoice", UserID: "u1", Role: models.RoleProvider, Title: "x"}},
		{"missing user", DispatchRequest{Type: models.CategoryJob, Role: models.RoleProvider, Title: "x"}},
		{"service role cannot receive", DispatchRequest{Type: models.CategoryJob, UserID: "u1", Role: models.RoleService, Title: "x"}},
		{"missing title", DispatchRequest{Type: models.CategoryJob, UserID: "u1", Role: models.RoleProvider}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Dispatch(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.Empty(t, f.outbox.all())
}

func TestDispatch_PreferenceErrorIsReturned(t *testing.T) {
	f := newDispatcherFixture(t, testNow)
	f.prefs.On("GetOrCreate", mock.Anything, "u1", models.RoleProvider).Return(nil, errors.New("db down"))

	_, err := f.svc.Dispatch(context.Background(), DispatchRequest{
		Type: models.CategoryQuote, UserID: "u1", Role: models.RoleProvider, Title: "Quote accepted",
	})

	assert.EqualError(t, err, "db down")
	assert.Empty(t, f.outbox.all())
}

func TestDispatchAsync_SwallowsErrors(t *testing.T) {
	f := newDispatcherFixture(t, testNow)
	called := make(chan struct{})
	f.prefs.On("GetOrCreate", mock.Anything, "u1", models.RoleProvider).
		Run(func(args mock.Arguments) { close(called) }).
		Return(nil, errors.New("db down"))

	f.svc.DispatchAsync(DispatchRequest{Type: models.CategoryMessage, UserID: "u1", Role: models.RoleProvider, Title: "hi"})

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("async dispatch never ran")
	}
}

func TestDispatchAnnouncement_ProvidersOnly(t *testing.T) {
	f := newDispatcherFixture(t, testNow)
	f.profiles.On("ListByRoles", mock.Anything, []models.Role{models.RoleProvider}).Return([]models.Profile{
		{ID: "p1", Role: models.RoleProvider},
		{ID: "p2", Role: models.RoleProvider},
	}, nil)
	for _, id := range []string{"p1", "p2"} {
		f.prefs.On("GetOrCreate", mock.Anything, id, models.RoleProvider).
			Return(models.DefaultPreference(id, models.RoleProvider, "America/New_York"), nil)
	}

	result, err := f.svc.DispatchAnnouncement(context.Background(), AnnouncementRequest{
		Audience: AudienceProviders,
		Title:    "New payout schedule",
		Body:     "Payouts now run daily.",
	})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Recipients)
	assert.Equal(t, 2, result.EmailsSent)

	rows := f.outbox.all()
	require.Len(t, rows, 4) // announcement defaults: in-app and email
	for _, r := range rows {
		assert.Equal(t, models.RoleProvider, r.Role)
		assert.Equal(t, models.CategoryAnnouncement, r.Category)
		assert.Contains(t, []string{"p1", "p2"}, r.UserID)
	}
	f.profiles.AssertExpectations(t)
}

func TestDispatchAnnouncement_UnknownAudience(t *testing.T) {
	f := newDispatcherFixture(t, testNow)

	_, err := f.svc.DispatchAnnouncement(context.Background(), AnnouncementRequest{Audience: "vips", Title: "x"})

	assert.ErrorIs(t, err, ErrInvalidInput)
	f.profiles.AssertNotCalled(t, "ListByRoles", mock.Anything, mock.Anything)
}
