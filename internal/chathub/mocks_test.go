package chathub

import (
	"context"

	"socialdm/backend/internal/models"
	"socialdm/backend/internal/privacy"
	"socialdm/backend/internal/push"
	"socialdm/backend/internal/storage"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify implementation of storage.Storage.
type MockStorage struct {
	mock.Mock
}

var _ storage.Storage = (*MockStorage)(nil)

func (m *MockStorage) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	args := m.Called(ctx, blockerID, blockedID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	args := m.Called(ctx, followerID, followeeID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) MessagePrivacy(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) GetOrCreateConversation(ctx context.Context, userA, userB string) (*models.Conversation, bool, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Conversation), args.Bool(1), args.Error(2)
}

func (m *MockStorage) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockStorage) GetConversationForUser(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	args := m.Called(ctx, conversationID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockStorage) ActivateConversation(ctx context.Context, conversationID string) error {
	return m.Called(ctx, conversationID).Error(0)
}

func (m *MockStorage) MarkDeletedForUser(ctx context.Context, conversationID, userID string) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) ReappearForUser(ctx context.Context, conversationID, userID string) error {
	return m.Called(ctx, conversationID, userID).Error(0)
}

func (m *MockStorage) ListVisibleConversations(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversation), args.Error(1)
}

func (m *MockStorage) CreateMessage(ctx context.Context, conversationID, senderID, text string, attachments []models.AttachmentInput) (*models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, text, attachments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) GetMessage(ctx context.Context, messageID uint) (*models.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) ListMessagesForUser(ctx context.Context, conversationID, userID string, beforeID *uint, pageSize int) (*storage.MessagePage, error) {
	args := m.Called(ctx, conversationID, userID, beforeID, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.MessagePage), args.Error(1)
}

func (m *MockStorage) LastVisibleMessage(ctx context.Context, conversationID, userID string) (*models.Message, error) {
	args := m.Called(ctx, conversationID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) DeleteMessage(ctx context.Context, messageID uint) error {
	return m.Called(ctx, messageID).Error(0)
}

func (m *MockStorage) MarkMessageRead(ctx context.Context, messageID uint, readerID string) (bool, error) {
	args := m.Called(ctx, messageID, readerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) MarkDelivered(ctx context.Context, messageID uint) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	args := m.Called(ctx, conversationID, readerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) MarkAllRead(ctx context.Context, readerID string) (int64, error) {
	args := m.Called(ctx, readerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) UnreadConversationCount(ctx context.Context, readerID string) (int64, error) {
	args := m.Called(ctx, readerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) UnreadCountForConversation(ctx context.Context, readerID, conversationID string) (int64, error) {
	args := m.Called(ctx, readerID, conversationID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) GetActiveTokens(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStorage) SavePushToken(ctx context.Context, userID, provider, token string) error {
	return m.Called(ctx, userID, provider, token).Error(0)
}

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) CanMessage(ctx context.Context, senderID, recipientID string) (privacy.Decision, error) {
	args := m.Called(ctx, senderID, recipientID)
	return args.Get(0).(privacy.Decision), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyOffline(ctx context.Context, n push.Notification) {
	m.Called(ctx, n)
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Allow(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// staticVerifier maps tokens straight to user ids.
type staticVerifier map[string]string

func (v staticVerifier) Verify(token string) (string, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return "", errInvalidToken
}
