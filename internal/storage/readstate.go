package storage

import (
	"context"

	"socialdm/backend/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Every read update below is a single conditional UPDATE on is_read = false,
// so concurrent callers race harmlessly and the flag never goes back.

func (s *Service) participantConversations(db *gorm.DB, userID string) *gorm.DB {
	return db.Model(&models.Conversation{}).
		Select("id").
		Where("(user1_id = ? OR user2_id = ?)", userID, userID)
}

func (s *Service) unreadFor(db *gorm.DB, readerID string) *gorm.DB {
	return db.Model(&models.Message{}).
		Where("is_read = ?", false).
		Where("sender_id <> ?", readerID).
		Where("conversation_id IN (?)", s.participantConversations(db, readerID)).
		Where(visibleToUser, readerID)
}

// MarkMessageRead marks one message read on behalf of the other participant.
// changed is false when it was already read, the reader sent it, or the
// reader is not a participant.
func (s *Service) MarkMessageRead(ctx context.Context, messageID uint, readerID string) (bool, error) {
	db := s.DB.WithContext(ctx)
	res := s.unreadFor(db, readerID).
		Where("id = ?", messageID).
		Update("is_read", true)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "storage.MarkMessageRead")
	}
	return res.RowsAffected > 0, nil
}

// MarkDelivered records that the message reached a live connection of the
// recipient.
func (s *Service) MarkDelivered(ctx context.Context, messageID uint) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND is_delivered = ?", messageID, false).
		Update("is_delivered", true)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "storage.MarkDelivered")
	}
	return res.RowsAffected > 0, nil
}

// MarkConversationRead marks every visible unread message from the other
// participant as read and returns how many changed.
func (s *Service) MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	db := s.DB.WithContext(ctx)
	if _, err := s.GetConversationForUser(ctx, conversationID, readerID); err != nil {
		return 0, err
	}

	res := s.unreadFor(db, readerID).
		Where("conversation_id = ?", conversationID).
		Update("is_read", true)
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "storage.MarkConversationRead")
	}
	return res.RowsAffected, nil
}

// MarkAllRead is MarkConversationRead across every conversation of the reader.
func (s *Service) MarkAllRead(ctx context.Context, readerID string) (int64, error) {
	res := s.unreadFor(s.DB.WithContext(ctx), readerID).Update("is_read", true)
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "storage.MarkAllRead")
	}
	return res.RowsAffected, nil
}

// UnreadConversationCount counts conversations holding at least one visible
// unread message addressed to the reader.
func (s *Service) UnreadConversationCount(ctx context.Context, readerID string) (int64, error) {
	var n int64
	err := s.unreadFor(s.DB.WithContext(ctx), readerID).
		Distinct("conversation_id").
		Count(&n).Error
	if err != nil {
		return 0, errors.Wrap(err, "storage.UnreadConversationCount")
	}
	return n, nil
}

// UnreadCountForConversation counts visible unread messages addressed to the
// reader in one conversation.
func (s *Service) UnreadCountForConversation(ctx context.Context, readerID, conversationID string) (int64, error) {
	var n int64
	err := s.unreadFor(s.DB.WithContext(ctx), readerID).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	if err != nil {
		return 0, errors.Wrap(err, "storage.UnreadCountForConversation")
	}
	return n, nil
}
