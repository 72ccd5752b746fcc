package chathub

import (
	"context"
	"encoding/json"

	"socialdm/backend/internal/apperr"
	"socialdm/backend/internal/metrics"
	"socialdm/backend/internal/models"
)

// ReasonRateLimited is the message_blocked reason for throttled senders.
const ReasonRateLimited = "rate limit exceeded"

var knownCommands = map[string]bool{
	models.CommandSendMessage:        true,
	models.CommandMarkAsRead:         true,
	models.CommandMarkRoomAsRead:     true,
	models.CommandMarkAllAsRead:      true,
	models.CommandGetUnreadCount:     true,
	models.CommandGetRecentRooms:     true,
	models.CommandNotifyMessagesRead: true,
}

// Handle decodes one client frame and runs the command. Failures are
// reported to the caller as an error event; the connection stays open.
func (g *Gateway) Handle(ctx context.Context, s *Session, raw []byte) {
	if !s.State().Active() {
		return
	}

	var cmd models.ClientCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		metrics.CommandsTotal.WithLabelValues("malformed", "error").Inc()
		g.replyError(s, "", apperr.InvalidArg("malformed command"))
		return
	}

	label := cmd.Command
	if !knownCommands[label] {
		label = "unknown"
	}

	if err := g.dispatch(ctx, s, cmd); err != nil {
		metrics.CommandsTotal.WithLabelValues(label, "error").Inc()
		g.replyError(s, cmd.Command, err)
		return
	}
	metrics.CommandsTotal.WithLabelValues(label, "ok").Inc()
}

func (g *Gateway) dispatch(ctx context.Context, s *Session, cmd models.ClientCommand) error {
	switch cmd.Command {
	case models.CommandSendMessage:
		return g.sendMessage(ctx, s, cmd)
	case models.CommandMarkAsRead:
		return g.markAsRead(ctx, s, cmd)
	case models.CommandMarkRoomAsRead:
		return g.markRoomAsRead(ctx, s, cmd)
	case models.CommandMarkAllAsRead:
		return g.markAllAsRead(ctx, s)
	case models.CommandGetUnreadCount:
		return g.getUnreadCount(ctx, s)
	case models.CommandGetRecentRooms:
		return g.getRecentRooms(ctx, s)
	case models.CommandNotifyMessagesRead:
		return g.notifyMessagesRead(ctx, s, cmd)
	default:
		return apperr.ErrUnknownCommand
	}
}

func (g *Gateway) replyError(s *Session, command string, err error) {
	l := g.sessionLog(s)
	switch apperr.CodeOf(err) {
	case apperr.CodeInternal, apperr.CodeUnknown, apperr.CodeUnavailable:
		l.Error().Err(err).Str("command", command).Msg("command failed")
	default:
		l.Debug().Err(err).Str("command", command).Msg("command rejected")
	}
	s.Deliver(models.Event{Type: models.EventError, Command: command, Error: apperr.PublicMessage(err)})
}

// targetRoom is the bound room, else the room named in the command.
func targetRoom(s *Session, cmd models.ClientCommand) (string, error) {
	if s.RoomID() != "" {
		return s.RoomID(), nil
	}
	if cmd.RoomID == "" {
		return "", apperr.ErrMissingField("room_id")
	}
	return cmd.RoomID, nil
}

func (g *Gateway) sendMessage(ctx context.Context, s *Session, cmd models.ClientCommand) error {
	roomID, err := targetRoom(s, cmd)
	if err != nil {
		return err
	}
	user := s.User()

	if g.limiter != nil {
		allowed, err := g.limiter.Allow(ctx, "send:"+user.ID)
		if err != nil {
			// Fail open: a limiter outage must not stop messaging.
			g.sessionLog(s).Warn().Err(err).Msg("rate limiter unavailable")
		} else if !allowed {
			g.block(s, roomID, ReasonRateLimited)
			return nil
		}
	}

	conv, err := g.store.GetConversationForUser(ctx, roomID, user.ID)
	if err != nil {
		return err
	}

	// Re-evaluated on every send, so a block placed mid-connection applies
	// to the next message.
	decision, err := g.privacy.CanMessage(ctx, user.ID, conv.Other(user.ID))
	if err != nil {
		return err
	}
	if !decision.Allowed {
		g.block(s, roomID, decision.Reason)
		return nil
	}

	msg, err := g.store.CreateMessage(ctx, conv.ID, user.ID, cmd.Message, cmd.Attachments)
	if err != nil {
		return err
	}
	metrics.MessagesSent.Inc()

	g.fanOut(ctx, MessageSent{Conversation: conv, Message: msg, Sender: user})
	return nil
}

func (g *Gateway) block(s *Session, roomID, reason string) {
	metrics.MessagesBlocked.WithLabelValues(reason).Inc()
	g.sessionLog(s).Info().Str("reason", reason).Msg("message blocked")
	s.Deliver(models.Event{Type: models.EventMessageBlocked, RoomID: roomID, Reason: reason})
}

func (g *Gateway) markAsRead(ctx context.Context, s *Session, cmd models.ClientCommand) error {
	if cmd.MessageID == nil {
		return apperr.ErrMissingField("message_id")
	}
	_, err := g.MarkMessageRead(ctx, *cmd.MessageID, s.UserID())
	return err
}

// MarkMessageRead flags one message read by readerID and, when that changed
// anything, sends the read receipt to the sender. The REST surface shares it
// with the mark_as_read command.
func (g *Gateway) MarkMessageRead(ctx context.Context, messageID uint, readerID string) (bool, error) {
	changed, err := g.store.MarkMessageRead(ctx, messageID, readerID)
	if err != nil {
		return false, err
	}
	if changed {
		g.sendReadReceipt(ctx, messageID, readerID)
	}
	return changed, nil
}

// NotifyRoomRead tells the reader's other connections that roomID was read
// elsewhere, with the fresh unread total.
func (g *Gateway) NotifyRoomRead(ctx context.Context, readerID, roomID string) {
	unread, err := g.store.UnreadConversationCount(ctx, readerID)
	if err != nil {
		g.log.Warn().Err(err).Str("user_id", readerID).Msg("unread count for read sync failed")
		return
	}
	g.publish(ctx, PersonalChannel(readerID), models.Event{
		Type:        models.EventMessagesReadNotification,
		RoomID:      roomID,
		UnreadCount: models.Int64(unread),
	})
}

// NotifyAllRead pushes the reader's fresh unread count to every connection
// they hold, after a read-all that did not come through a socket.
func (g *Gateway) NotifyAllRead(ctx context.Context, readerID string) {
	unread, err := g.store.UnreadConversationCount(ctx, readerID)
	if err != nil {
		g.log.Warn().Err(err).Str("user_id", readerID).Msg("unread count for read-all sync failed")
		return
	}
	g.publish(ctx, PersonalChannel(readerID), models.Event{
		Type:        models.EventUnreadCount,
		UnreadCount: models.Int64(unread),
	})
}

// sendReadReceipt tells the sender that readerID has read messageID.
func (g *Gateway) sendReadReceipt(ctx context.Context, messageID uint, readerID string) {
	msg, err := g.store.GetMessage(ctx, messageID)
	if err != nil {
		g.log.Warn().Err(err).Uint("message_id", messageID).Msg("read receipt lookup failed")
		return
	}
	g.publish(ctx, PersonalChannel(msg.SenderID), models.Event{
		Type:      models.EventMessageRead,
		RoomID:    msg.ConversationID,
		MessageID: models.Uint(messageID),
		ReadBy:    readerID,
	})
}

func (g *Gateway) markRoomAsRead(ctx context.Context, s *Session, cmd models.ClientCommand) error {
	roomID, err := targetRoom(s, cmd)
	if err != nil {
		return err
	}
	n, err := g.store.MarkConversationRead(ctx, roomID, s.UserID())
	if err != nil {
		return err
	}
	unread, err := g.store.UnreadConversationCount(ctx, s.UserID())
	if err != nil {
		return err
	}
	s.Deliver(models.Event{
		Type:        models.EventRoomMessagesRead,
		RoomID:      roomID,
		Count:       models.Int64(n),
		UnreadCount: models.Int64(unread),
	})
	return nil
}

func (g *Gateway) markAllAsRead(ctx context.Context, s *Session) error {
	n, err := g.store.MarkAllRead(ctx, s.UserID())
	if err != nil {
		return err
	}
	s.Deliver(models.Event{Type: models.EventAllMessagesRead, Count: models.Int64(n)})
	s.Deliver(models.Event{Type: models.EventUnreadCount, UnreadCount: models.Int64(0)})
	return nil
}

func (g *Gateway) getUnreadCount(ctx context.Context, s *Session) error {
	n, err := g.store.UnreadConversationCount(ctx, s.UserID())
	if err != nil {
		return err
	}
	s.Deliver(models.Event{Type: models.EventUnreadCount, UnreadCount: models.Int64(n)})
	return nil
}

func (g *Gateway) getRecentRooms(ctx context.Context, s *Session) error {
	rooms, err := SummarizeRooms(ctx, g.store, s.UserID(), g.recentRooms, g.log)
	if err != nil {
		return err
	}
	s.Deliver(models.Event{Type: models.EventRecentRooms, Rooms: rooms})
	return nil
}

func (g *Gateway) notifyMessagesRead(ctx context.Context, s *Session, cmd models.ClientCommand) error {
	roomID := cmd.RoomID
	if roomID == "" {
		roomID = s.RoomID()
	}
	unread, err := g.store.UnreadConversationCount(ctx, s.UserID())
	if err != nil {
		return err
	}
	g.publish(ctx, PersonalChannel(s.UserID()), models.Event{
		Type:        models.EventMessagesReadNotification,
		RoomID:      roomID,
		MessageID:   cmd.MessageID,
		UnreadCount: models.Int64(unread),
	})
	return nil
}

// publish logs broker failures; fan-out is fire-and-forget.
func (g *Gateway) publish(ctx context.Context, channel string, ev models.Event) {
	if err := g.hub.Publish(ctx, channel, ev); err != nil {
		g.log.Error().Err(err).Str("channel", channel).Str("type", ev.Type).Msg("publish failed")
	}
}
