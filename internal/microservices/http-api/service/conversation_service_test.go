package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"notifyhub/internal/microservices/http-api/models"
	"notifyhub/internal/microservices/http-api/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockConversationRepository mocks repository.ConversationRepository
type MockConversationRepository struct {
	mock.Mock
}

func (m *MockConversationRepository) FindByID(ctx context.Context, id string) (*models.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockConversationRepository) FindOrCreateDirect(ctx context.Context, a, b string) (*models.Conversation, error) {
	args := m.Called(ctx, a, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockConversationRepository) ListForProfile(ctx context.Context, profileID string) ([]models.Conversation, error) {
	args := m.Called(ctx, profileID)
	return args.Get(0).([]models.Conversation), args.Error(1)
}

func (m *MockConversationRepository) FindMember(ctx context.Context, conversationID, profileID string) (*models.ConversationMember, error) {
	args := m.Called(ctx, conversationID, profileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConversationMember), args.Error(1)
}

func (m *MockConversationRepository) ListMembers(ctx context.Context, conversationID string) ([]models.ConversationMember, error) {
	args := m.Called(ctx, conversationID)
	return args.Get(0).([]models.ConversationMember), args.Error(1)
}

func (m *MockConversationRepository) AppendMessage(ctx context.Context, msg *models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockConversationRepository) ListMessages(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, afterSeq, limit)
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockConversationRepository) LatestMessageAt(ctx context.Context, conversationID string) (*time.Time, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

func (m *MockConversationRepository) CountUnread(ctx context.Context, conversationID, profileID string, since *time.Time) (int64, error) {
	args := m.Called(ctx, conversationID, profileID, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockConversationRepository) AdvanceLastRead(ctx context.Context, conversationID, profileID string, at time.Time) (bool, error) {
	args := m.Called(ctx, conversationID, profileID, at)
	return args.Bool(0), args.Error(1)
}

type conversationFixture struct {
	convs     *MockConversationRepository
	typing    *repository.MemoryTypingRepository
	profiles  *MockRecipientDirectory
	publisher *recordingPublisher
	notifier  *MockDispatcher
	svc       ConversationService
}

func newConversationFixture() *conversationFixture {
	f := &conversationFixture{
		convs:     new(MockConversationRepository),
		typing:    repository.NewMemoryTypingRepository(),
		profiles:  new(MockRecipientDirectory),
		publisher: &recordingPublisher{},
		notifier:  new(MockDispatcher),
	}
	f.svc = NewConversationService(ConversationServiceConfig{
		Conversations: f.convs,
		Typing:        f.typing,
		Profiles:      f.profiles,
		Publisher:     f.publisher,
		Notifier:      f.notifier,
		TypingTTL:     10 * time.Second,
		Now:           func() time.Time { return testNow },
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func TestSendMessage_FirstMessageCreatesConversation(t *testing.T) {
	f := newConversationFixture()
	homeowner := &models.Profile{ID: "h1", Role: models.RoleHomeowner, DisplayName: "Dana"}
	provider := &models.Profile{ID: "p1", Role: models.RoleProvider, DisplayName: "Sam's Plumbing"}

	f.profiles.On("FindByID", mock.Anything, "p1").Return(provider, nil)
	f.profiles.On("FindByID", mock.Anything, "h1").Return(homeowner, nil)
	f.convs.On("FindOrCreateDirect", mock.Anything, "h1", "p1").Return(&models.Conversation{ID: "c1"}, nil)
	f.convs.On("AppendMessage", mock.Anything, mock.AnythingOfType("*models.Message")).
		Run(func(args mock.Arguments) {
			msg := args.Get(1).(*models.Message)
			msg.ID = "m1"
			msg.Seq = 1
			msg.CreatedAt = testNow
		}).Return(nil)
	f.convs.On("ListMembers", mock.Anything, "c1").Return([]models.ConversationMember{
		{ConversationID: "c1", ProfileID: "h1"},
		{ConversationID: "c1", ProfileID: "p1"},
	}, nil)
	f.notifier.On("DispatchAsync", mock.MatchedBy(func(req DispatchRequest) bool {
		return req.Type == models.CategoryMessage &&
			req.UserID == "p1" &&
			req.Role == models.RoleProvider &&
			req.Title == "New message from Dana" &&
			req.URL == "/messages/c1"
	})).Return()

	require.NoError(t, f.typing.Set(context.Background(), models.TypingState{ConversationID: "c1", ProfileID: "h1", IsTyping: true, LastTypedAt: time.Now()}, time.Minute))

	msg, err := f.svc.SendMessage(context.Background(), "h1", SendMessageInput{
		RecipientProfileID: "p1",
		Content:            "  Is Tuesday ok?  ",
	})

	require.NoError(t, err)
	assert.Equal(t, "c1", msg.ConversationID)
	assert.Equal(t, int64(1), msg.Seq)
	assert.Equal(t, "Is Tuesday ok?", msg.Content)
	assert.Equal(t, "text", msg.MessageType)
	assert.Equal(t, []models.ConversationEventType{models.EventMessage}, f.publisher.types())
	assert.Equal(t, 0, f.typing.Count(), "sending clears the sender's typing state")
	f.notifier.AssertNumberOfCalls(t, "DispatchAsync", 1)
	f.convs.AssertExpectations(t)
}

func TestSendMessage_NonMemberIsForbidden(t *testing.T) {
	f := newConversationFixture()
	f.convs.On("FindMember", mock.Anything, "c1", "intruder").Return(nil, repository.ErrNotFound)

	_, err := f.svc.SendMessage(context.Background(), "intruder", SendMessageInput{ConversationID: "c1", Content: "hi"})

	assert.ErrorIs(t, err, ErrForbidden)
	f.convs.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything)
}

func TestSendMessage_Validation(t *testing.T) {
	f := newConversationFixture()

	tests := []struct {
		name string
		in   SendMessageInput
	}{
		{"empty content", SendMessageInput{ConversationID: "c1", Content: "   "}},
		{"no target", SendMessageInput{Content: "hi"}},
		{"both targets", SendMessageInput{ConversationID: "c1", RecipientProfileID: "p1", Content: "hi"}},
		{"self", SendMessageInput{RecipientProfileID: "h1", Content: "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SendMessage(context.Background(), "h1", tt.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestUnreadCount_UsesWatermark(t *testing.T) {
	f := newConversationFixture()
	readAt := testNow.Add(-time.Hour)
	f.convs.On("FindMember", mock.Anything, "c1", "h1").Return(&models.ConversationMember{LastReadAt: &readAt}, nil)
	f.convs.On("CountUnread", mock.Anything, "c1", "h1", &readAt).Return(int64(3), nil)

	n, err := f.svc.UnreadCount(context.Background(), "c1", "h1")

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestMarkAsRead_ThenUnreadIsZero(t *testing.T) {
	f := newConversationFixture()
	// the newest message carries a database timestamp slightly ahead of the service clock
	newest := testNow.Add(2 * time.Second)

	f.convs.On("FindMember", mock.Anything, "c1", "h1").Return(&models.ConversationMember{}, nil).Once()
	f.convs.On("LatestMessageAt", mock.Anything, "c1").Return(&newest, nil)
	f.convs.On("AdvanceLastRead", mock.Anything, "c1", "h1", newest).Return(true, nil)

	at, err := f.svc.MarkAsRead(context.Background(), "c1", "h1")
	require.NoError(t, err)
	assert.Equal(t, newest, at)
	assert.Equal(t, []models.ConversationEventType{models.EventRead}, f.publisher.types())

	f.convs.On("FindMember", mock.Anything, "c1", "h1").Return(&models.ConversationMember{LastReadAt: &newest}, nil)
	f.convs.On("CountUnread", mock.Anything, "c1", "h1", &newest).Return(int64(0), nil)

	n, err := f.svc.UnreadCount(context.Background(), "c1", "h1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestMarkAsRead_NoMovementPublishesNothing(t *testing.T) {
	f := newConversationFixture()
	f.convs.On("FindMember", mock.Anything, "c1", "h1").Return(&models.ConversationMember{}, nil)
	f.convs.On("LatestMessageAt", mock.Anything, "c1").Return(nil, nil)
	f.convs.On("AdvanceLastRead", mock.Anything, "c1", "h1", testNow).Return(false, nil)

	_, err := f.svc.MarkAsRead(context.Background(), "c1", "h1")

	require.NoError(t, err)
	assert.Empty(t, f.publisher.types())
}

func TestTyping_SetListClear(t *testing.T) {
	f := newConversationFixture()
	f.convs.On("FindMember", mock.Anything, "c1", mock.Anything).Return(&models.ConversationMember{}, nil)
	ctx := context.Background()

	require.NoError(t, f.svc.SetTyping(ctx, "c1", "p1", true))

	others, err := f.svc.ListTyping(ctx, "c1", "h1")
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, "p1", others[0].ProfileID)

	self, err := f.svc.ListTyping(ctx, "c1", "p1")
	require.NoError(t, err)
	assert.Empty(t, self, "callers never see themselves typing")

	require.NoError(t, f.svc.SetTyping(ctx, "c1", "p1", false))
	others, err = f.svc.ListTyping(ctx, "c1", "h1")
	require.NoError(t, err)
	assert.Empty(t, others)

	assert.Equal(t, []models.ConversationEventType{models.EventTyping, models.EventTyping}, f.publisher.types())
}

func TestMessages_ClampsLimit(t *testing.T) {
	f := newConversationFixture()
	f.convs.On("FindMember", mock.Anything, "c1", "h1").Return(&models.ConversationMember{}, nil)
	f.convs.On("ListMessages", mock.Anything, "c1", int64(10), 50).Return([]models.Message{{ID: "m11", Seq: 11}}, nil)

	msgs, err := f.svc.Messages(context.Background(), "c1", "h1", 10, 10000)

	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
