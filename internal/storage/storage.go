package storage

import (
	"context"
	"time"

	"socialdm/backend/internal/models"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Storage is everything the gateway and the REST handlers need from the
// relational store.
type Storage interface {
	// Identity and privacy facts
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error)
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
	MessagePrivacy(ctx context.Context, userID string) (string, error)

	// Conversations
	GetOrCreateConversation(ctx context.Context, userA, userB string) (*models.Conversation, bool, error)
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	GetConversationForUser(ctx context.Context, conversationID, userID string) (*models.Conversation, error)
	ActivateConversation(ctx context.Context, conversationID string) error
	MarkDeletedForUser(ctx context.Context, conversationID, userID string) (bool, error)
	ReappearForUser(ctx context.Context, conversationID, userID string) error
	ListVisibleConversations(ctx context.Context, userID string, limit int) ([]models.Conversation, error)

	// Messages
	CreateMessage(ctx context.Context, conversationID, senderID, text string, attachments []models.AttachmentInput) (*models.Message, error)
	GetMessage(ctx context.Context, messageID uint) (*models.Message, error)
	ListMessagesForUser(ctx context.Context, conversationID, userID string, beforeID *uint, pageSize int) (*MessagePage, error)
	LastVisibleMessage(ctx context.Context, conversationID, userID string) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID uint) error

	// Read state
	MarkMessageRead(ctx context.Context, messageID uint, readerID string) (bool, error)
	MarkDelivered(ctx context.Context, messageID uint) (bool, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error)
	MarkAllRead(ctx context.Context, readerID string) (int64, error)
	UnreadConversationCount(ctx context.Context, readerID string) (int64, error)
	UnreadCountForConversation(ctx context.Context, readerID, conversationID string) (int64, error)

	// Push tokens
	GetActiveTokens(ctx context.Context, userID string) ([]string, error)
	SavePushToken(ctx context.Context, userID, provider, token string) error
}

// Service implements Storage on top of gorm. Redis is optional and only
// used by the broker, presence and rate limiter helpers built from it.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Files FileStore

	log zerolog.Logger
	now func() time.Time
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client, files FileStore, logger zerolog.Logger) *Service {
	if files == nil {
		files = NopFiles{}
	}
	return &Service{
		DB:    db,
		Redis: rdb,
		Files: files,
		log:   logger.With().Str("component", "storage").Logger(),
		now:   utcNow,
	}
}

// utcNow is truncated to microseconds, the precision PostgreSQL keeps, so
// values compare the same in memory and in the database.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// SetClock replaces the time source. Tests use it to pin timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = func() time.Time { return now().UTC().Truncate(time.Microsecond) }
}

// Migrate creates or updates every table the service owns.
func (s *Service) Migrate() error {
	if err := s.DB.AutoMigrate(models.All()...); err != nil {
		return errors.Wrap(err, "storage.Migrate")
	}
	return nil
}

// Ping checks the database and, when configured, Redis.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return errors.Wrap(err, "storage.Ping.DB")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errors.Wrap(err, "storage.Ping.Postgres")
	}
	if s.Redis != nil {
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "storage.Ping.Redis")
		}
	}
	return nil
}

var _ Storage = (*Service)(nil)
