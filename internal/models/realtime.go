package models

import "time"

// Commands a client may send over the connection.
const (
	CommandSendMessage        = "send_message"
	CommandMarkAsRead         = "mark_as_read"
	CommandMarkRoomAsRead     = "mark_room_as_read"
	CommandMarkAllAsRead      = "mark_all_as_read"
	CommandGetUnreadCount     = "get_unread_count"
	CommandGetRecentRooms     = "get_recent_rooms"
	CommandNotifyMessagesRead = "notify_messages_read"
)

// ClientCommand is the client→server envelope: {"command": ..., ...fields}.
type ClientCommand struct {
	Command     string            `json:"command"`
	Message     string            `json:"message,omitempty"`
	RoomID      string            `json:"room_id,omitempty"`
	MessageID   *uint             `json:"message_id,omitempty"`
	Attachments []AttachmentInput `json:"attachments,omitempty"`
}

// Event kinds. KindChatMessage and KindNewMessageNotification travel on the
// fan-out channels and are rewritten to their wire type on delivery; the rest
// are sent to the client as they are.
const (
	KindChatMessage            = "chat_message"
	KindNewMessageNotification = "new_message_notification"

	EventConnectionEstablished    = "connection_established"
	EventNewMessage               = "new_message"
	EventMessageBlocked           = "message_blocked"
	EventMessageNotification      = "message_notification"
	EventMessagesReadNotification = "messages_read_notification"
	EventRoomMessagesRead         = "room_messages_read"
	EventAllMessagesRead          = "all_messages_read"
	EventUnreadCount              = "unread_count"
	EventRecentRooms              = "recent_rooms"
	EventMessageRead              = "message_read"
	EventError                    = "error"
)

// WireType maps an internal event kind to the type the client sees.
func WireType(kind string) string {
	switch kind {
	case KindChatMessage:
		return EventNewMessage
	case KindNewMessageNotification:
		return EventMessageNotification
	default:
		return kind
	}
}

// Event is a server→client frame. Only the fields relevant to Type are set.
type Event struct {
	Type string `json:"type"`

	UserID      string          `json:"user_id,omitempty"`
	RoomID      string          `json:"room_id,omitempty"`
	MessageID   *uint           `json:"message_id,omitempty"`
	Message     *MessagePayload `json:"message,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	UnreadCount *int64          `json:"unread_count,omitempty"`
	Count       *int64          `json:"count,omitempty"`
	Rooms       []RoomSummary   `json:"rooms,omitempty"`
	Sender      *ProfilePayload `json:"sender,omitempty"`
	ReadBy      string          `json:"read_by,omitempty"`
	Error       string          `json:"error,omitempty"`
	Command     string          `json:"command,omitempty"`
}

// MessagePayload is the serialized form of a message inside events.
type MessagePayload struct {
	ID             uint                `json:"id"`
	ConversationID string              `json:"room_id"`
	SenderID       string              `json:"sender_id"`
	SenderName     string              `json:"sender_name,omitempty"`
	SenderAvatar   string              `json:"sender_avatar,omitempty"`
	Text           string              `json:"text"`
	Timestamp      time.Time           `json:"timestamp"`
	IsRead         bool                `json:"is_read"`
	IsDelivered    bool                `json:"is_delivered"`
	Attachments    []AttachmentPayload `json:"attachments"`
}

type AttachmentPayload struct {
	ID        uint   `json:"id"`
	File      string `json:"file"`
	MediaType string `json:"media_type"`
}

type ProfilePayload struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
}

// RoomSummary is one row of the recent_rooms list.
type RoomSummary struct {
	ID            string     `json:"id"`
	DisplayName   string     `json:"display_name"`
	Avatar        string     `json:"avatar,omitempty"`
	OtherUserID   string     `json:"other_user_id"`
	UnreadCount   int64      `json:"unread_count"`
	LastMessage   string     `json:"last_message"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// NewMessagePayload serializes m. sender may be nil when the profile lookup
// failed; the payload is then sent without name and avatar.
func NewMessagePayload(m *Message, sender *User) *MessagePayload {
	p := &MessagePayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		Timestamp:      m.CreatedAt,
		IsRead:         m.IsRead,
		IsDelivered:    m.IsDelivered,
		Attachments:    make([]AttachmentPayload, 0, len(m.Attachments)),
	}
	if sender != nil {
		p.SenderName = sender.Name()
		p.SenderAvatar = sender.AvatarURL
	}
	for _, a := range m.Attachments {
		p.Attachments = append(p.Attachments, AttachmentPayload{ID: a.ID, File: a.File, MediaType: a.MediaType})
	}
	return p
}

// Int64 is a helper for the optional count fields.
func Int64(v int64) *int64 { return &v }

// Uint is a helper for the optional id fields.
func Uint(v uint) *uint { return &v }
