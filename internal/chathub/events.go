package chathub

import (
	"context"

	"socialdm/backend/internal/metrics"
	"socialdm/backend/internal/models"
	"socialdm/backend/internal/push"
)

const notificationPreview = 120

// MessageSent is the outcome of a successful send. fanOut consumes it in a
// fixed order: room broadcast, personal notifications, then push for
// participants not viewing the room.
type MessageSent struct {
	Conversation *models.Conversation
	Message      *models.Message
	Sender       *models.User
}

func (g *Gateway) fanOut(ctx context.Context, ev MessageSent) {
	conv, msg, sender := ev.Conversation, ev.Message, ev.Sender
	payload := models.NewMessagePayload(msg, sender)

	g.publish(ctx, RoomChannel(conv.ID), models.Event{
		Type:    models.KindChatMessage,
		RoomID:  conv.ID,
		Message: payload,
	})

	for _, participant := range conv.Participants() {
		if participant == msg.SenderID {
			continue
		}

		unread, err := g.store.UnreadConversationCount(ctx, participant)
		if err != nil {
			g.log.Warn().Err(err).Str("user_id", participant).Msg("unread count for notification failed")
		}
		g.publish(ctx, PersonalChannel(participant), models.Event{
			Type:        models.KindNewMessageNotification,
			RoomID:      conv.ID,
			Message:     payload,
			Sender:      profileOf(sender),
			UnreadCount: models.Int64(unread),
		})

		g.pushIfAway(ctx, conv.ID, participant, msg, sender)
	}
}

func (g *Gateway) pushIfAway(ctx context.Context, roomID, recipientID string, msg *models.Message, sender *models.User) {
	if g.push == nil {
		return
	}
	inRoom, err := g.presence.InRoom(ctx, roomID, recipientID)
	if err != nil {
		// Unknown presence: a duplicate notification beats a missed one.
		g.log.Warn().Err(err).Str("room_id", roomID).Msg("presence lookup failed")
	}
	if inRoom {
		return
	}

	n := push.Notification{
		RecipientID: recipientID,
		RoomID:      roomID,
		MessageID:   msg.ID,
		SenderID:    msg.SenderID,
		Preview:     msg.Preview(notificationPreview),
	}
	if sender != nil {
		n.SenderName = sender.Name()
	}
	g.push.NotifyOffline(ctx, n)
}

func profileOf(u *models.User) *models.ProfilePayload {
	if u == nil {
		return nil
	}
	return &models.ProfilePayload{ID: u.ID, DisplayName: u.Name(), Avatar: u.AvatarURL}
}

// PrepareOutbound runs right before an event is written to the client and
// returns the wire form. Messages reaching a recipient are flagged delivered,
// and a message arriving in the room the recipient is viewing is marked read
// on the spot (auto-read-on-view), on both the room and the personal copy.
func (g *Gateway) PrepareOutbound(ctx context.Context, s *Session, ev models.Event) models.Event {
	switch ev.Type {
	case models.KindChatMessage, models.KindNewMessageNotification:
		if ev.Message == nil || ev.Message.SenderID == s.UserID() {
			break
		}
		// The payload is shared by every local subscriber; copy before editing.
		m := *ev.Message
		ev.Message = &m

		g.markDelivered(ctx, &m)
		if s.State() != StateRoomBound || s.RoomID() != ev.RoomID {
			break
		}
		// The viewer gets the message twice, on the room channel and as a
		// personal notification. Neither copy may show it unread.
		g.autoRead(ctx, s, &m)
		if ev.Type == models.KindNewMessageNotification && m.IsRead {
			unread, err := g.store.UnreadConversationCount(ctx, s.UserID())
			if err != nil {
				g.sessionLog(s).Warn().Err(err).Msg("unread count for viewed notification failed")
				break
			}
			ev.UnreadCount = models.Int64(unread)
		}
	}
	ev.Type = models.WireType(ev.Type)
	return ev
}

func (g *Gateway) markDelivered(ctx context.Context, m *models.MessagePayload) {
	if m.IsDelivered {
		return
	}
	if _, err := g.store.MarkDelivered(ctx, m.ID); err != nil {
		g.log.Warn().Err(err).Uint("message_id", m.ID).Msg("mark delivered failed")
		return
	}
	m.IsDelivered = true
}

func (g *Gateway) autoRead(ctx context.Context, s *Session, m *models.MessagePayload) {
	changed, err := g.store.MarkMessageRead(ctx, m.ID, s.UserID())
	if err != nil {
		g.sessionLog(s).Warn().Err(err).Uint("message_id", m.ID).Msg("auto-read failed")
		return
	}
	m.IsRead = true
	if !changed {
		// Another connection of the same reader got there first and sent
		// the receipts.
		return
	}
	metrics.MessagesAutoRead.Inc()

	g.publish(ctx, PersonalChannel(m.SenderID), models.Event{
		Type:      models.EventMessageRead,
		RoomID:    m.ConversationID,
		MessageID: models.Uint(m.ID),
		ReadBy:    s.UserID(),
	})

	unread, err := g.store.UnreadConversationCount(ctx, s.UserID())
	if err != nil {
		g.sessionLog(s).Warn().Err(err).Msg("unread count after auto-read failed")
	}
	g.publish(ctx, PersonalChannel(s.UserID()), models.Event{
		Type:        models.EventMessagesReadNotification,
		RoomID:      m.ConversationID,
		MessageID:   models.Uint(m.ID),
		UnreadCount: models.Int64(unread),
	})
}
