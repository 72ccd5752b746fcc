package storage

import (
	"context"
	"strings"
	"time"

	"socialdm/backend/internal/apperr"
	"socialdm/backend/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultPageSize = 30
	MaxPageSize     = 100
)

// MessagePage is one page of history, newest first.
type MessagePage struct {
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// CreateMessage persists a message from a participant. It activates the
// conversation, bumps its last message time and brings it back into the
// sender's list if the sender had deleted it. Timestamps are strictly
// increasing within a conversation and always newer than any deletion
// cutoff, so a new message is never hidden by an older "delete for me".
func (s *Service) CreateMessage(ctx context.Context, conversationID, senderID, text string, attachments []models.AttachmentInput) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(attachments) == 0 {
		return nil, apperr.ErrEmptyMessage
	}
	for _, a := range attachments {
		if a.File == "" {
			return nil, apperr.ErrMissingField("attachments.file")
		}
	}

	var msg models.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The row lock serializes concurrent senders so nextTimestamp sees
		// the previous insert.
		conv, err := getConversation(tx.Clauses(clause.Locking{Strength: "UPDATE"}), conversationID)
		if errors.Is(err, apperr.ErrConversationNotFound) {
			return apperr.ErrNotParticipant
		}
		if err != nil {
			return err
		}
		if !conv.HasParticipant(senderID) {
			return apperr.ErrNotParticipant
		}

		ts, err := s.nextTimestamp(tx, conversationID)
		if err != nil {
			return err
		}

		msg = models.Message{
			ConversationID: conversationID,
			SenderID:       senderID,
			Text:           text,
			CreatedAt:      ts,
		}
		for _, a := range attachments {
			mediaType := a.MediaType
			if mediaType == "" {
				mediaType = "application/octet-stream"
			}
			msg.Attachments = append(msg.Attachments, models.Attachment{File: a.File, MediaType: mediaType, CreatedAt: ts})
		}
		if err := tx.Create(&msg).Error; err != nil {
			return errors.Wrap(err, "insert message")
		}

		err = tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Updates(map[string]any{"last_message_at": ts, "updated_at": ts}).Error
		if err != nil {
			return errors.Wrap(err, "touch conversation")
		}
		if err := activate(tx, conversationID); err != nil {
			return err
		}
		return reappear(tx, conversationID, senderID)
	})
	if err != nil {
		if apperr.CodeOf(err) != apperr.CodeUnknown {
			return nil, err
		}
		return nil, errors.Wrap(err, "storage.CreateMessage")
	}
	return &msg, nil
}

// nextTimestamp returns now, or the smallest later instant when the clock has
// not passed the newest message or deletion cutoff of the conversation.
func (s *Service) nextTimestamp(tx *gorm.DB, conversationID string) (time.Time, error) {
	ts := s.now()

	last, err := lastMessageTime(tx, conversationID)
	if err != nil {
		return time.Time{}, err
	}
	if last != nil && !ts.After(*last) {
		ts = last.Add(time.Microsecond)
	}

	var rec models.DeletionRecord
	err = tx.Where("conversation_id = ?", conversationID).Order("cutoff DESC").Limit(1).Take(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return time.Time{}, errors.Wrap(err, "storage.nextTimestamp")
	case !ts.After(rec.Cutoff):
		ts = rec.Cutoff.Add(time.Microsecond)
	}
	return ts.UTC(), nil
}

// GetMessage loads a message with its attachments.
func (s *Service) GetMessage(ctx context.Context, messageID uint) (*models.Message, error) {
	var msg models.Message
	err := s.DB.WithContext(ctx).Preload("Attachments").Where("id = ?", messageID).Take(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrMessageNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "storage.GetMessage")
	}
	return &msg, nil
}

// ListMessagesForUser pages through the history the user may see, newest
// first. With beforeID, only messages ordered before that message by
// (created_at, id) are returned. HasMore is true when the page came back full.
func (s *Service) ListMessagesForUser(ctx context.Context, conversationID, userID string, beforeID *uint, pageSize int) (*MessagePage, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	db := s.DB.WithContext(ctx)
	conv, err := getConversation(db, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, apperr.ErrNotParticipant
	}

	q := db.Preload("Attachments").
		Where("conversation_id = ?", conversationID).
		Where(visibleToUser, userID)

	if beforeID != nil {
		var cursor models.Message
		err := db.Select("id", "created_at").
			Where("id = ? AND conversation_id = ?", *beforeID, conversationID).
			Take(&cursor).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrMessageNotFound
		}
		if err != nil {
			return nil, errors.Wrap(err, "storage.ListMessagesForUser.cursor")
		}
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var msgs []models.Message
	if err := q.Order("created_at DESC").Order("id DESC").Limit(pageSize).Find(&msgs).Error; err != nil {
		return nil, errors.Wrap(err, "storage.ListMessagesForUser")
	}
	return &MessagePage{Messages: msgs, HasMore: len(msgs) == pageSize}, nil
}

// LastVisibleMessage returns the newest message the user may see, or nil.
func (s *Service) LastVisibleMessage(ctx context.Context, conversationID, userID string) (*models.Message, error) {
	var msg models.Message
	err := s.DB.WithContext(ctx).Preload("Attachments").
		Where("conversation_id = ?", conversationID).
		Where(visibleToUser, userID).
		Order("created_at DESC").
		Limit(1).
		Take(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "storage.LastVisibleMessage")
	}
	return &msg, nil
}

// DeleteMessage removes a message and its attachments, then releases the
// attachment files.
func (s *Service) DeleteMessage(ctx context.Context, messageID uint) error {
	var files []string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Attachment{}).Where("message_id = ?", messageID).Pluck("file", &files).Error; err != nil {
			return errors.Wrap(err, "collect attachment files")
		}
		if err := tx.Where("message_id = ?", messageID).Delete(&models.Attachment{}).Error; err != nil {
			return errors.Wrap(err, "delete attachments")
		}
		res := tx.Where("id = ?", messageID).Delete(&models.Message{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "delete message")
		}
		if res.RowsAffected == 0 {
			return apperr.ErrMessageNotFound
		}
		return nil
	})
	if errors.Is(err, apperr.ErrMessageNotFound) {
		return err
	}
	if err != nil {
		return errors.Wrap(err, "storage.DeleteMessage")
	}

	s.releaseFiles(ctx, files)
	return nil
}
