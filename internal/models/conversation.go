package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation is a two-party direct-message thread. The participant pair is
// unordered: User1ID always holds the lexically smaller id, and PairKey is
// unique, so the same two users can never own two conversations.
type Conversation struct {
	// ID is the conversation identifier (UUID).
	ID string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	// PairKey is "<User1ID>:<User2ID>".
	PairKey string `gorm:"type:varchar(80);not null;uniqueIndex" json:"-"`
	User1ID string `gorm:"type:varchar(64);not null;index" json:"user1_id"`
	User2ID string `gorm:"type:varchar(64);not null;index" json:"user2_id"`
	// IsActive stays false until the first message is persisted.
	IsActive bool `gorm:"not null;default:false" json:"is_active"`
	// LastMessageAt is the timestamp of the most recent message; the list
	// views are ordered by it.
	LastMessageAt *time.Time `gorm:"index" json:"last_message_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// BeforeCreate generates the conversation id if it is still empty.
func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// PairKey orders the two ids so (a, b) and (b, a) produce the same key.
func PairKey(a, b string) (first, second, key string) {
	if b < a {
		a, b = b, a
	}
	return a, b, a + ":" + b
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.User1ID == userID || c.User2ID == userID)
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// Participants returns both participant ids.
func (c *Conversation) Participants() []string {
	return []string{c.User1ID, c.User2ID}
}

// DeletionRecord is a per-user "delete for me" cutoff. Messages at or before
// Cutoff stay invisible to that user for good; Hidden only controls whether
// the conversation shows up in that user's list and is cleared when the user
// writes into the conversation again.
type DeletionRecord struct {
	ConversationID string    `gorm:"primaryKey;type:varchar(36)" json:"conversation_id"`
	UserID         string    `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	Cutoff         time.Time `gorm:"not null" json:"deleted_at"`
	Hidden         bool      `gorm:"not null" json:"hidden"`
}
