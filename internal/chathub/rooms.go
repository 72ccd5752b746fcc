package chathub

import (
	"context"

	"socialdm/backend/internal/models"
	"socialdm/backend/internal/storage"

	"github.com/rs/zerolog"
)

const roomPreview = 80

// SummarizeRooms builds the recent-rooms list: the user's visible
// conversations, newest first, with the other participant's profile, the
// unread count and a preview of the last visible message. A failed profile
// lookup degrades that row to the bare user id.
func SummarizeRooms(ctx context.Context, store storage.Storage, userID string, limit int, log zerolog.Logger) ([]models.RoomSummary, error) {
	convs, err := store.ListVisibleConversations(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	rooms := make([]models.RoomSummary, 0, len(convs))
	for i := range convs {
		conv := &convs[i]
		otherID := conv.Other(userID)

		room := models.RoomSummary{
			ID:            conv.ID,
			OtherUserID:   otherID,
			DisplayName:   otherID,
			LastMessageAt: conv.LastMessageAt,
		}

		if other, err := store.GetUserByID(ctx, otherID); err == nil {
			room.DisplayName = other.Name()
			room.Avatar = other.AvatarURL
		} else {
			log.Warn().Err(err).Str("user_id", otherID).Msg("profile lookup failed")
		}

		unread, err := store.UnreadCountForConversation(ctx, userID, conv.ID)
		if err != nil {
			return nil, err
		}
		room.UnreadCount = unread

		last, err := store.LastVisibleMessage(ctx, conv.ID, userID)
		if err != nil {
			return nil, err
		}
		if last != nil {
			room.LastMessage = last.Preview(roomPreview)
			ts := last.CreatedAt
			room.LastMessageAt = &ts
		}

		rooms = append(rooms, room)
	}
	return rooms, nil
}
