package storage

import (
	"context"
	"time"

	"socialdm/backend/internal/apperr"
	"socialdm/backend/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// visibleToUser hides messages at or before the user's deletion cutoff.
// It is meant for queries over the messages table.
const visibleToUser = `NOT EXISTS (
	SELECT 1 FROM deletion_records d
	WHERE d.conversation_id = messages.conversation_id
	  AND d.user_id = ?
	  AND messages.created_at <= d.cutoff)`

// listedForUser drops conversations the user hid, unless a message arrived
// after their cutoff. It is meant for queries over the conversations table.
const listedForUser = `NOT EXISTS (
	SELECT 1 FROM deletion_records d
	WHERE d.conversation_id = conversations.id
	  AND d.user_id = ?
	  AND d.hidden = ?
	  AND NOT EXISTS (
		SELECT 1 FROM messages m
		WHERE m.conversation_id = d.conversation_id
		  AND m.created_at > d.cutoff))`

// purgeWhenBothDeleted removes the conversation row only while both
// participants hold a deletion record and no message is newer than either
// cutoff. Running it twice, or from both sides at once, is harmless.
const purgeWhenBothDeleted = `DELETE FROM conversations
WHERE id = ?
  AND (SELECT COUNT(*) FROM deletion_records d WHERE d.conversation_id = conversations.id) >= 2
  AND NOT EXISTS (
	SELECT 1 FROM messages m
	JOIN deletion_records d ON d.conversation_id = m.conversation_id
	WHERE m.conversation_id = conversations.id
	  AND m.created_at > d.cutoff)`

// GetOrCreateConversation returns the single conversation between two users,
// creating it inactive when it does not exist. created is true only for the
// caller whose insert won.
func (s *Service) GetOrCreateConversation(ctx context.Context, userA, userB string) (*models.Conversation, bool, error) {
	if userA == "" || userB == "" {
		return nil, false, apperr.InvalidArg("both participants are required")
	}
	if userA == userB {
		return nil, false, apperr.ErrSelfConversation
	}

	first, second, key := models.PairKey(userA, userB)
	conv := models.Conversation{PairKey: key, User1ID: first, User2ID: second}

	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "pair_key"}}, DoNothing: true}).
		Create(&conv)
	if res.Error != nil {
		return nil, false, errors.Wrap(res.Error, "storage.GetOrCreateConversation")
	}
	if res.RowsAffected == 1 {
		return &conv, true, nil
	}

	// Lost the race or the pair already existed. conv carries an id that was
	// never stored, so read into a fresh value.
	var existing models.Conversation
	if err := s.DB.WithContext(ctx).Where("pair_key = ?", key).Take(&existing).Error; err != nil {
		return nil, false, errors.Wrap(err, "storage.GetOrCreateConversation.read")
	}
	return &existing, false, nil
}

// GetConversation returns ErrConversationNotFound for unknown ids.
func (s *Service) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	return getConversation(s.DB.WithContext(ctx), conversationID)
}

// GetConversationForUser is GetConversation plus the participant check.
func (s *Service) GetConversationForUser(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, apperr.ErrNotParticipant
	}
	return conv, nil
}

func getConversation(db *gorm.DB, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := db.Where("id = ?", conversationID).Take(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrConversationNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "storage.getConversation")
	}
	return &conv, nil
}

// ActivateConversation flips isActive to true. It never goes back.
func (s *Service) ActivateConversation(ctx context.Context, conversationID string) error {
	return activate(s.DB.WithContext(ctx), conversationID)
}

func activate(db *gorm.DB, conversationID string) error {
	err := db.Model(&models.Conversation{}).
		Where("id = ? AND is_active = ?", conversationID, false).
		Update("is_active", true).Error
	return errors.Wrap(err, "storage.activate")
}

// ReappearForUser clears the hidden flag of the user's deletion record. The
// cutoff stays, so earlier history remains invisible.
func (s *Service) ReappearForUser(ctx context.Context, conversationID, userID string) error {
	return reappear(s.DB.WithContext(ctx), conversationID, userID)
}

func reappear(db *gorm.DB, conversationID, userID string) error {
	err := db.Model(&models.DeletionRecord{}).
		Where("conversation_id = ? AND user_id = ? AND hidden = ?", conversationID, userID, true).
		Update("hidden", false).Error
	return errors.Wrap(err, "storage.reappear")
}

// MarkDeletedForUser records a "delete for me" with the cutoff at now. When the
// other participant already deleted too and nothing newer exists, the whole
// conversation is purged and purged is true.
func (s *Service) MarkDeletedForUser(ctx context.Context, conversationID, userID string) (bool, error) {
	db := s.DB.WithContext(ctx)

	conv, err := getConversation(db, conversationID)
	if err != nil {
		return false, err
	}
	if !conv.HasParticipant(userID) {
		return false, apperr.ErrNotParticipant
	}

	// The cutoff must cover every stored message even when timestamps were
	// bumped ahead of the clock.
	cutoff := s.now()
	if last, err := lastMessageTime(db, conversationID); err != nil {
		return false, err
	} else if last != nil && last.After(cutoff) {
		cutoff = *last
	}

	rec := models.DeletionRecord{ConversationID: conversationID, UserID: userID, Cutoff: cutoff, Hidden: true}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"cutoff", "hidden"}),
	}).Create(&rec).Error
	if err != nil {
		return false, errors.Wrap(err, "storage.MarkDeletedForUser")
	}

	purged, err := s.purgeIfMutuallyDeleted(ctx, conversationID)
	if err != nil {
		// The record is stored; the sweep finishes the purge later.
		s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("mutual purge failed")
		return false, nil
	}
	if purged {
		s.log.Info().Str("conversation_id", conversationID).Msg("conversation purged after mutual deletion")
	}
	return purged, nil
}

// purgeIfMutuallyDeleted removes the conversation together with its messages,
// attachments and deletion records, then releases the attachment files.
func (s *Service) purgeIfMutuallyDeleted(ctx context.Context, conversationID string) (bool, error) {
	var files []string
	purged := false

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Attachment{}).
			Joins("JOIN messages ON messages.id = attachments.message_id").
			Where("messages.conversation_id = ?", conversationID).
			Pluck("attachments.file", &files).Error
		if err != nil {
			return errors.Wrap(err, "collect attachment files")
		}

		res := tx.Exec(purgeWhenBothDeleted, conversationID)
		if res.Error != nil {
			return errors.Wrap(res.Error, "delete conversation")
		}
		if res.RowsAffected == 0 {
			return nil
		}
		purged = true

		messageIDs := tx.Model(&models.Message{}).Select("id").Where("conversation_id = ?", conversationID)
		if err := tx.Where("message_id IN (?)", messageIDs).Delete(&models.Attachment{}).Error; err != nil {
			return errors.Wrap(err, "delete attachments")
		}
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&models.Message{}).Error; err != nil {
			return errors.Wrap(err, "delete messages")
		}
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&models.DeletionRecord{}).Error; err != nil {
			return errors.Wrap(err, "delete deletion records")
		}
		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, "storage.purgeIfMutuallyDeleted")
	}

	if purged {
		s.releaseFiles(ctx, files)
	}
	return purged, nil
}

// SweepMutualDeletions re-runs the purge for every conversation where both
// participants hold a deletion record. It returns how many were purged.
func (s *Service) SweepMutualDeletions(ctx context.Context) (int, error) {
	var candidates []string
	err := s.DB.WithContext(ctx).Model(&models.DeletionRecord{}).
		Select("conversation_id").
		Group("conversation_id").
		Having("COUNT(*) >= ?", 2).
		Pluck("conversation_id", &candidates).Error
	if err != nil {
		return 0, errors.Wrap(err, "storage.SweepMutualDeletions")
	}

	purged := 0
	for _, id := range candidates {
		ok, err := s.purgeIfMutuallyDeleted(ctx, id)
		if err != nil {
			return purged, err
		}
		if ok {
			purged++
		}
	}
	return purged, nil
}

// ListVisibleConversations returns the active conversations the user takes
// part in and has not hidden, most recent message first. limit <= 0 means
// no limit.
func (s *Service) ListVisibleConversations(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	q := s.DB.WithContext(ctx).Model(&models.Conversation{}).
		Where("(user1_id = ? OR user2_id = ?)", userID, userID).
		Where("is_active = ?", true).
		Where(listedForUser, userID, true).
		Order("last_message_at DESC").
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var convs []models.Conversation
	if err := q.Find(&convs).Error; err != nil {
		return nil, errors.Wrap(err, "storage.ListVisibleConversations")
	}
	return convs, nil
}

func lastMessageTime(db *gorm.DB, conversationID string) (*time.Time, error) {
	var last models.Message
	err := db.Select("id", "created_at").
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(1).
		Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "storage.lastMessageTime")
	}
	return &last.CreatedAt, nil
}
