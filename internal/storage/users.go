package storage

import (
	"context"

	"socialdm/backend/internal/apperr"
	"socialdm/backend/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetUserByID returns the account or ErrUserNotFound.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "storage.GetUserByID")
	}
	return &user, nil
}

// IsBlocked reports whether blockerID has blocked blockedID.
func (s *Service) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.Block{}).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Count(&n).Error
	if err != nil {
		return false, errors.Wrap(err, "storage.IsBlocked")
	}
	return n > 0, nil
}

// IsFollowing reports whether followerID follows followeeID.
func (s *Service) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&n).Error
	if err != nil {
		return false, errors.Wrap(err, "storage.IsFollowing")
	}
	return n > 0, nil
}

// MessagePrivacy returns the user's inbound message setting.
func (s *Service) MessagePrivacy(ctx context.Context, userID string) (string, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Select("id", "message_privacy").Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperr.ErrUserNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "storage.MessagePrivacy")
	}
	return user.MessagePrivacy, nil
}

// GetActiveTokens returns the push tokens still marked active for a user.
func (s *Service) GetActiveTokens(ctx context.Context, userID string) ([]string, error) {
	var tokens []string
	err := s.DB.WithContext(ctx).Model(&models.PushToken{}).
		Where("user_id = ? AND active = ?", userID, true).
		Order("id").
		Pluck("token", &tokens).Error
	if err != nil {
		return nil, errors.Wrap(err, "storage.GetActiveTokens")
	}
	return tokens, nil
}

// SavePushToken registers a token for the user. A token already known under
// another account moves to this one and is reactivated.
func (s *Service) SavePushToken(ctx context.Context, userID, provider, token string) error {
	if token == "" {
		return apperr.ErrMissingField("token")
	}
	if provider == "" {
		provider = models.PushProviderTelegram
	}
	if provider != models.PushProviderTelegram {
		return apperr.InvalidArg("unsupported push provider: " + provider)
	}

	rec := models.PushToken{UserID: userID, Provider: provider, Token: token, Active: true}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "active", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return errors.Wrap(err, "storage.SavePushToken")
	}
	return nil
}

// DeactivatePushToken stops sending to a token the provider rejected.
func (s *Service) DeactivatePushToken(ctx context.Context, token string) error {
	err := s.DB.WithContext(ctx).Model(&models.PushToken{}).
		Where("token = ?", token).
		Update("active", false).Error
	return errors.Wrap(err, "storage.DeactivatePushToken")
}
