package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message privacy settings a user can choose.
const (
	PrivacyEveryone  = "everyone"
	PrivacyFollowers = "followers"
	PrivacyNone      = "none"
)

// User is the read-only identity/profile view the messaging subsystem needs.
// Profiles are owned by the platform; this service only reads them.
type User struct {
	ID          string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Username    string `gorm:"type:varchar(150);uniqueIndex" json:"username"`
	DisplayName string `gorm:"type:varchar(255)" json:"display_name"`
	AvatarURL   string `gorm:"type:text" json:"avatar"`
	// MessagePrivacy is one of PrivacyEveryone, PrivacyFollowers, PrivacyNone.
	MessagePrivacy string `gorm:"type:varchar(20);not null;default:'everyone'" json:"message_privacy"`
	// Language selects the push notification catalog.
	Language  string    `gorm:"type:varchar(8);default:'en'" json:"language"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate generates a UUID for the user if the ID is not set yet.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// Name is the display name, falling back to the username.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Follow records that FollowerID follows FolloweeID.
type Follow struct {
	FollowerID string    `gorm:"primaryKey;type:varchar(64)"`
	FolloweeID string    `gorm:"primaryKey;type:varchar(64);index"`
	CreatedAt  time.Time
}

// Block records that BlockerID blocked BlockedID.
type Block struct {
	BlockerID string    `gorm:"primaryKey;type:varchar(64)"`
	BlockedID string    `gorm:"primaryKey;type:varchar(64);index"`
	CreatedAt time.Time
}

// PushProviderTelegram tokens are Telegram chat ids.
const PushProviderTelegram = "telegram"

// PushToken is a device or channel address for out-of-band notifications.
type PushToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Provider  string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_push_provider_token" json:"provider"`
	Token     string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_push_provider_token" json:"token"`
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// All returns every model the store migrates.
func All() []any {
	return []any{
		&User{},
		&Follow{},
		&Block{},
		&Conversation{},
		&DeletionRecord{},
		&Message{},
		&Attachment{},
		&PushToken{},
	}
}
