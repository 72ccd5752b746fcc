package models

import "time"

// Message is a persisted direct message. Everything except IsRead and
// IsDelivered is immutable, and those two only move from false to true.
type Message struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	ConversationID string `gorm:"type:varchar(36);not null;index:idx_conv_created,priority:1" json:"conversation_id"`
	SenderID       string `gorm:"type:varchar(64);not null;index" json:"sender_id"`
	// Text may be empty when the message carries attachments.
	Text string `gorm:"type:text" json:"text"`
	// CreatedAt is the message timestamp; strictly increasing within a
	// conversation.
	CreatedAt   time.Time    `gorm:"not null;index:idx_conv_created,priority:2" json:"timestamp"`
	IsRead      bool         `gorm:"not null;default:false;index" json:"is_read"`
	IsDelivered bool         `gorm:"not null;default:false" json:"is_delivered"`
	Attachments []Attachment `gorm:"foreignKey:MessageID" json:"attachments"`
}

// Attachment references an already stored file. The file is discarded when
// the owning message is deleted.
type Attachment struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	MessageID uint `gorm:"not null;index" json:"message_id"`
	// File is the storage reference, relative to the media root.
	File      string    `gorm:"type:text;not null" json:"file"`
	MediaType string    `gorm:"type:varchar(100);not null" json:"media_type"`
	CreatedAt time.Time `json:"created_at"`
}

// AttachmentInput is what a client supplies when sending a message.
type AttachmentInput struct {
	File      string `json:"file"`
	MediaType string `json:"media_type"`
}

// AttachmentPreview stands in for the text of attachment-only messages.
const AttachmentPreview = "[attachment]"

// Preview is the short text shown in room lists and push notifications.
func (m *Message) Preview(max int) string {
	text := m.Text
	if text == "" && len(m.Attachments) > 0 {
		return AttachmentPreview
	}
	runes := []rune(text)
	if max > 0 && len(runes) > max {
		return string(runes[:max]) + "…"
	}
	return text
}
