package handler

import (
	"context"
	"time"

	"notifyhub/internal/microservices/http-api/models"
	"notifyhub/internal/microservices/http-api/repository"
	"notifyhub/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
)

const testUserID = "test-user-id"

func mockAuthMiddleware(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", testUserID)
		c.Set("role", role)
		c.Next()
	}
}

func setupRouter(role string) (*gin.Engine, *gin.RouterGroup) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rg := r.Group("/api/v1")
	if role != "" {
		rg.Use(mockAuthMiddleware(role))
	}
	return r, rg
}

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

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, req service.DispatchRequest) (*service.DispatchResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DispatchResult), args.Error(1)
}

func (m *MockDispatcher) DispatchAsync(req service.DispatchRequest) {
	m.Called(req)
}

func (m *MockDispatcher) DispatchAnnouncement(ctx context.Context, req service.AnnouncementRequest) (*service.DispatchResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DispatchResult), args.Error(1)
}

type MockOutboxService struct {
	mock.Mock
}

func (m *MockOutboxService) Sweep(ctx context.Context) (*service.SweepResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SweepResult), args.Error(1)
}

func (m *MockOutboxService) RetryEntry(ctx context.Context, id string) (*models.OutboxEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OutboxEntry), args.Error(1)
}

func (m *MockOutboxService) List(ctx context.Context, filter repository.OutboxFilter) ([]models.OutboxEntry, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.OutboxEntry), args.Error(1)
}

func (m *MockOutboxService) Stats(ctx context.Context) ([]repository.OutboxStat, error) {
	args := m.Called(ctx)
	return args.Get(0).([]repository.OutboxStat), args.Error(1)
}

type MockPushSubscriptionService struct {
	mock.Mock
}

func (m *MockPushSubscriptionService) Register(ctx context.Context, userID string, sub *models.PushSubscription) (*models.PushSubscription, error) {
	args := m.Called(ctx, userID, sub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PushSubscription), args.Error(1)
}

func (m *MockPushSubscriptionService) Unregister(ctx context.Context, userID, endpoint string) error {
	return m.Called(ctx, userID, endpoint).Error(0)
}

func (m *MockPushSubscriptionService) List(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.PushSubscription), args.Error(1)
}

func (m *MockPushSubscriptionService) VAPIDPublicKey() string {
	return m.Called().String(0)
}

type MockFeedService struct {
	mock.Mock
}

func (m *MockFeedService) List(ctx context.Context, userID string, role models.Role, limit int) ([]models.FeedItem, error) {
	args := m.Called(ctx, userID, role, limit)
	return args.Get(0).([]models.FeedItem), args.Error(1)
}

func (m *MockFeedService) UnreadCount(ctx context.Context, userID string, role models.Role) (int64, error) {
	args := m.Called(ctx, userID, role)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockFeedService) MarkAllRead(ctx context.Context, userID string, role models.Role) (time.Time, error) {
	args := m.Called(ctx, userID, role)
	return args.Get(0).(time.Time), args.Error(1)
}

type MockConversationService struct {
	mock.Mock
}

func (m *MockConversationService) SendMessage(ctx context.Context, senderID string, in service.SendMessageInput) (*models.Message, error) {
	args := m.Called(ctx, senderID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockConversationService) ListConversations(ctx context.Context, profileID string) ([]models.Conversation, error) {
	args := m.Called(ctx, profileID)
	return args.Get(0).([]models.Conversation), args.Error(1)
}

func (m *MockConversationService) Messages(ctx context.Context, conversationID, profileID string, afterSeq int64, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, profileID, afterSeq, limit)
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockConversationService) UnreadCount(ctx context.Context, conversationID, profileID string) (int64, error) {
	args := m.Called(ctx, conversationID, profileID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockConversationService) MarkAsRead(ctx context.Context, conversationID, profileID string) (time.Time, error) {
	args := m.Called(ctx, conversationID, profileID)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockConversationService) SetTyping(ctx context.Context, conversationID, profileID string, isTyping bool) error {
	return m.Called(ctx, conversationID, profileID, isTyping).Error(0)
}

func (m *MockConversationService) ListTyping(ctx context.Context, conversationID, profileID string) ([]models.TypingState, error) {
	args := m.Called(ctx, conversationID, profileID)
	return args.Get(0).([]models.TypingState), args.Error(1)
}

func (m *MockConversationService) Authorize(ctx context.Context, conversationID, profileID string) error {
	return m.Called(ctx, conversationID, profileID).Error(0)
}
