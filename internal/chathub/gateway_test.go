package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"socialdm/backend/internal/apperr"
	"socialdm/backend/internal/models"
	"socialdm/backend/internal/privacy"
	"socialdm/backend/internal/push"
	"socialdm/backend/internal/storage"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errInvalidToken = apperr.ErrCredentialInvalid

var (
	alice = &models.User{ID: "alice", Username: "alice", DisplayName: "Alice"}
	bob   = &models.User{ID: "bob", Username: "bob", DisplayName: "Bob", AvatarURL: "bob.png"}
	room  = &models.Conversation{ID: "room-1", User1ID: "alice", User2ID: "bob", IsActive: true}
)

type harness struct {
	gw       *Gateway
	hub      *Hub
	store    *MockStorage
	privacy  *mockChecker
	push     *mockNotifier
	limiter  *mockLimiter
	presence *storage.MemoryPresence
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		hub:      startHub(t, storage.NewMemoryBroker()),
		store:    new(MockStorage),
		privacy:  new(mockChecker),
		push:     new(mockNotifier),
		limiter:  new(mockLimiter),
		presence: storage.NewMemoryPresence(),
	}
	h.gw = NewGateway(Deps{
		Store:    h.store,
		Privacy:  h.privacy,
		Hub:      h.hub,
		Verifier: staticVerifier{"tok-alice": "alice", "tok-bob": "bob", "tok-ghost": "ghost"},
		Presence: h.presence,
		Push:     h.push,
		Limiter:  h.limiter,
		Logger:   zerolog.Nop(),
	})

	h.store.On("GetUserByID", mock.Anything, "alice").Return(alice, nil).Maybe()
	h.store.On("GetUserByID", mock.Anything, "bob").Return(bob, nil).Maybe()
	h.store.On("GetUserByID", mock.Anything, "ghost").Return(nil, apperr.ErrUserNotFound).Maybe()
	h.store.On("GetConversationForUser", mock.Anything, room.ID, "alice").Return(room, nil).Maybe()
	h.store.On("GetConversationForUser", mock.Anything, room.ID, "bob").Return(room, nil).Maybe()
	h.limiter.On("Allow", mock.Anything, mock.Anything).Return(true, nil).Maybe()
	return h
}

// connect opens a session and consumes its connection_established event.
func (h *harness) connect(t *testing.T, token, roomID string, unread int64) *Session {
	t.Helper()
	userID := map[string]string{"tok-alice": "alice", "tok-bob": "bob"}[token]
	h.store.On("UnreadConversationCount", mock.Anything, userID).Return(unread, nil).Once()

	s, err := h.gw.Connect(context.Background(), token, roomID)
	require.NoError(t, err)
	ev := h.next(t, s)
	require.Equal(t, models.EventConnectionEstablished, ev.Type)
	t.Cleanup(func() { h.gw.Disconnect(context.Background(), s) })
	return s
}

// next returns the next event for s in its wire form, as the writer would
// send it.
func (h *harness) next(t *testing.T, s *Session) models.Event {
	t.Helper()
	select {
	case ev := <-s.Outbound():
		return h.gw.PrepareOutbound(context.Background(), s, ev)
	case <-time.After(2 * time.Second):
		t.Fatalf("no event for %s", s.UserID())
		return models.Event{}
	}
}

func (h *harness) none(t *testing.T, s *Session) {
	t.Helper()
	select {
	case ev := <-s.Outbound():
		t.Fatalf("unexpected %s event for %s", ev.Type, s.UserID())
	case <-time.After(50 * time.Millisecond):
	}
}

func command(t *testing.T, cmd models.ClientCommand) []byte {
	t.Helper()
	raw, err := json.Marshal(cmd)
	require.NoError(t, err)
	return raw
}

func TestConnect_Rejections(t *testing.T) {
	h := newHarness(t)
	h.store.On("GetConversationForUser", mock.Anything, "room-x", "alice").Return(nil, apperr.ErrNotParticipant)
	h.store.On("GetConversationForUser", mock.Anything, "missing", "alice").Return(nil, apperr.ErrConversationNotFound)

	tests := []struct {
		name     string
		token    string
		roomID   string
		wantCode int
	}{
		{"no credential", "", "", apperr.CloseAuthFailure},
		{"bad credential", "tok-forged", "", apperr.CloseAuthFailure},
		{"unknown user", "tok-ghost", "", apperr.CloseAuthFailure},
		{"not a participant", "tok-alice", "room-x", apperr.CloseForbiddenRoom},
		{"unknown room", "tok-alice", "missing", apperr.CloseForbiddenRoom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := h.gw.Connect(context.Background(), tt.token, tt.roomID)
			assert.Nil(t, s)
			var rej *RejectError
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, tt.wantCode, rej.Code)
		})
	}

	assert.Zero(t, h.hub.Members(PersonalChannel("alice")), "rejected room connection left its personal channel")
}

func TestConnect_InfrastructureFailure(t *testing.T) {
	h := newHarness(t)
	h.store.On("GetConversationForUser", mock.Anything, "room-db", "alice").Return(nil, errors.New("db down"))

	_, err := h.gw.Connect(context.Background(), "tok-alice", "room-db")
	var rej *RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, 1011, rej.Code)
}

func TestConnect_Unbound(t *testing.T) {
	h := newHarness(t)
	h.store.On("UnreadConversationCount", mock.Anything, "alice").Return(int64(3), nil).Once()

	s, err := h.gw.Connect(context.Background(), "tok-alice", "")
	require.NoError(t, err)
	defer h.gw.Disconnect(context.Background(), s)

	assert.Equal(t, StateUnbound, s.State())
	assert.Equal(t, 1, h.hub.Members(PersonalChannel("alice")))

	ev := h.next(t, s)
	assert.Equal(t, models.EventConnectionEstablished, ev.Type)
	assert.Equal(t, "alice", ev.UserID)
	require.NotNil(t, ev.UnreadCount)
	assert.Equal(t, int64(3), *ev.UnreadCount)
}

func TestConnect_RoomBoundAndDisconnect(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.On("UnreadConversationCount", mock.Anything, "alice").Return(int64(0), nil).Once()

	s, err := h.gw.Connect(ctx, "tok-alice", room.ID)
	require.NoError(t, err)
	assert.Equal(t, StateRoomBound, s.State())
	assert.Equal(t, 1, h.hub.Members(RoomChannel(room.ID)))
	assert.Equal(t, 1, h.hub.Members(PersonalChannel("alice")))
	in, _ := h.presence.InRoom(ctx, room.ID, "alice")
	assert.True(t, in)

	h.gw.Disconnect(ctx, s)
	h.gw.Disconnect(ctx, s)

	assert.Equal(t, StateClosed, s.State())
	assert.Zero(t, h.hub.Members(RoomChannel(room.ID)))
	assert.Zero(t, h.hub.Members(PersonalChannel("alice")))
	in, _ = h.presence.InRoom(ctx, room.ID, "alice")
	assert.False(t, in)
	assert.False(t, s.Deliver(models.Event{Type: models.EventUnreadCount}))
}

func TestSendMessage_BroadcastNotifyAndPush(t *testing.T) {
	h := newHarness(t)
	sender := h.connect(t, "tok-alice", room.ID, 0)
	recipient := h.connect(t, "tok-bob", "", 0)

	msg := &models.Message{ID: 42, ConversationID: room.ID, SenderID: "alice", Text: "hello bob", CreatedAt: time.Now().UTC()}
	h.privacy.On("CanMessage", mock.Anything, "alice", "bob").Return(privacy.Decision{Allowed: true}, nil).Once()
	h.store.On("CreateMessage", mock.Anything, room.ID, "alice", "hello bob", []models.AttachmentInput(nil)).Return(msg, nil).Once()
	h.store.On("UnreadConversationCount", mock.Anything, "bob").Return(int64(1), nil).Once()
	h.store.On("MarkDelivered", mock.Anything, uint(42)).Return(true, nil).Once()
	h.push.On("NotifyOffline", mock.Anything, push.Notification{
		RecipientID: "bob", RoomID: room.ID, MessageID: 42, SenderID: "alice", SenderName: "Alice", Preview: "hello bob",
	}).Once()

	h.gw.Handle(context.Background(), sender, command(t, models.ClientCommand{Command: models.CommandSendMessage, Message: "hello bob"}))

	own := h.next(t, sender)
	assert.Equal(t, models.EventNewMessage, own.Type)
	require.NotNil(t, own.Message)
	assert.Equal(t, uint(42), own.Message.ID)
	assert.Equal(t, "Alice", own.Message.SenderName)
	assert.False(t, own.Message.IsRead)

	note := h.next(t, recipient)
	assert.Equal(t, models.EventMessageNotification, note.Type)
	assert.Equal(t, room.ID, note.RoomID)
	require.NotNil(t, note.Sender)
	assert.Equal(t, "Alice", note.Sender.DisplayName)
	require.NotNil(t, note.UnreadCount)
	assert.Equal(t, int64(1), *note.UnreadCount)
	assert.True(t, note.Message.IsDelivered)
	assert.False(t, note.Message.IsRead, "not viewing the room, so still unread")
	h.none(t, recipient)

	h.store.AssertExpectations(t)
	h.push.AssertExpectations(t)
}

func TestSendMessage_AutoReadWhenViewing(t *testing.T) {
	h := newHarness(t)
	sender := h.connect(t, "tok-alice", room.ID, 0)
	viewer := h.connect(t, "tok-bob", room.ID, 1)

	msg := &models.Message{ID: 7, ConversationID: room.ID, SenderID: "alice", Text: "look", CreatedAt: time.Now().UTC()}
	h.privacy.On("CanMessage", mock.Anything, "alice", "bob").Return(privacy.Decision{Allowed: true}, nil).Once()
	h.store.On("CreateMessage", mock.Anything, room.ID, "alice", "look", []models.AttachmentInput(nil)).Return(msg, nil).Once()
	h.store.On("UnreadConversationCount", mock.Anything, "bob").Return(int64(1), nil).Once()
	h.store.On("MarkDelivered", mock.Anything, uint(7)).Return(true, nil)
	h.store.On("MarkMessageRead", mock.Anything, uint(7), "bob").Return(true, nil).Once()
	h.store.On("MarkMessageRead", mock.Anything, uint(7), "bob").Return(false, nil).Once()
	h.store.On("UnreadConversationCount", mock.Anything, "bob").Return(int64(0), nil).Twice()

	h.gw.Handle(context.Background(), sender, command(t, models.ClientCommand{Command: models.CommandSendMessage, Message: "look"}))

	// Bob is in the room: no push.
	h.push.AssertNotCalled(t, "NotifyOffline", mock.Anything, mock.Anything)

	seen := h.next(t, viewer)
	assert.Equal(t, models.EventNewMessage, seen.Type)
	assert.True(t, seen.Message.IsRead)
	assert.True(t, seen.Message.IsDelivered)

	// The personal copy of the same message must not show it unread either.
	note := h.next(t, viewer)
	assert.Equal(t, models.EventMessageNotification, note.Type)
	assert.True(t, note.Message.IsRead)
	require.NotNil(t, note.UnreadCount)
	assert.Equal(t, int64(0), *note.UnreadCount)

	resync := h.next(t, viewer)
	assert.Equal(t, models.EventMessagesReadNotification, resync.Type)
	assert.Equal(t, int64(0), *resync.UnreadCount)
	assert.Equal(t, uint(7), *resync.MessageID)
	h.none(t, viewer)

	own := h.next(t, sender)
	assert.Equal(t, models.EventNewMessage, own.Type)
	assert.False(t, own.Message.IsRead, "the sender's copy is not rewritten")

	receipt := h.next(t, sender)
	assert.Equal(t, models.EventMessageRead, receipt.Type)
	assert.Equal(t, "bob", receipt.ReadBy)
	assert.Equal(t, uint(7), *receipt.MessageID)
	h.none(t, sender)
	h.store.AssertExpectations(t)
}

func TestSendMessage_PrivacyDenied(t *testing.T) {
	h := newHarness(t)
	sender := h.connect(t, "tok-alice", room.ID, 0)
	recipient := h.connect(t, "tok-bob", "", 0)

	h.privacy.On("CanMessage", mock.Anything, "alice", "bob").
		Return(privacy.Decision{Allowed: false, Reason: privacy.ReasonAcceptsNone}, nil).Once()

	h.gw.Handle(context.Background(), sender, command(t, models.ClientCommand{Command: models.CommandSendMessage, Message: "hi"}))

	ev := h.next(t, sender)
	assert.Equal(t, models.EventMessageBlocked, ev.Type)
	assert.Equal(t, privacy.ReasonAcceptsNone, ev.Reason)
	assert.Equal(t, room.ID, ev.RoomID)
	h.none(t, recipient)
	h.store.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, StateRoomBound, sender.State(), "connection stays open")
}

func TestSendMessage_RateLimited(t *testing.T) {
	h := newHarness(t)
	h.limiter.ExpectedCalls = nil
	h.limiter.On("Allow", mock.Anything, "send:alice").Return(false, nil).Once()
	sender := h.connect(t, "tok-alice", room.ID, 0)

	h.gw.Handle(context.Background(), sender, command(t, models.ClientCommand{Command: models.CommandSendMessage, Message: "spam"}))

	ev := h.next(t, sender)
	assert.Equal(t, models.EventMessageBlocked, ev.Type)
	assert.Equal(t, ReasonRateLimited, ev.Reason)
	h.privacy.AssertNotCalled(t, "CanMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessage_UnboundNeedsRoom(t *testing.T) {
	h := newHarness(t)
	sender := h.connect(t, "tok-alice", "", 0)

	h.gw.Handle(context.Background(), sender, command(t, models.ClientCommand{Command: models.CommandSendMessage, Message: "hi"}))

	ev := h.next(t, sender)
	assert.Equal(t, models.EventError, ev.Type)
	assert.Equal(t, models.CommandSendMessage, ev.Command)
	assert.Equal(t, "room_id is required", ev.Error)
}

func TestSendMessage_UnboundWithRoom(t *testing.T) {
	h := newHarness(t)
	sender := h.connect(t, "tok-alice", "", 0)

	msg := &models.Message{ID: 9, ConversationID: room.ID, SenderID: "alice", Text: "hi"}
	h.privacy.On("CanMessage", mock.Anything, "alice", "bob").Return(privacy.Decision{Allowed: true}, nil).Once()
	h.store.On("CreateMessage", mock.Anything, room.ID, "alice", "hi", []models.AttachmentInput(nil)).Return(msg, nil).Once()
	h.store.On("UnreadConversationCount", mock.Anything, "bob").Return(int64(1), nil).Once()
	h.push.On("NotifyOffline", mock.Anything, mock.Anything).Once()

	h.gw.Handle(context.Background(), sender, command(t, models.ClientCommand{Command: models.CommandSendMessage, Message: "hi", RoomID: room.ID}))

	// Not joined to the room channel, so nothing comes back.
	h.none(t, sender)
	h.store.AssertExpectations(t)
	h.push.AssertExpectations(t)
}

func TestSendMessage_PersistenceFailureSkipsBroadcast(t *testing.T) {
	h := newHarness(t)
	sender := h.connect(t, "tok-alice", room.ID, 0)

	h.privacy.On("CanMessage", mock.Anything, "alice", "bob").Return(privacy.Decision{Allowed: true}, nil).Once()
	h.store.On("CreateMessage", mock.Anything, room.ID, "alice", "hi", []models.AttachmentInput(nil)).
		Return(nil, apperr.ErrNotParticipant).Once()

	h.gw.Handle(context.Background(), sender, command(t, models.ClientCommand{Command: models.CommandSendMessage, Message: "hi"}))

	ev := h.next(t, sender)
	assert.Equal(t, models.EventError, ev.Type)
	h.none(t, sender)
	h.push.AssertNotCalled(t, "NotifyOffline", mock.Anything, mock.Anything)
}

func TestHandle_MalformedAndUnknown(t *testing.T) {
	h := newHarness(t)
	s := h.connect(t, "tok-alice", "", 0)

	h.gw.Handle(context.Background(), s, []byte("{not json"))
	ev := h.next(t, s)
	assert.Equal(t, models.EventError, ev.Type)
	assert.Equal(t, "malformed command", ev.Error)

	h.gw.Handle(context.Background(), s, command(t, models.ClientCommand{Command: "reboot"}))
	ev = h.next(t, s)
	assert.Equal(t, models.EventError, ev.Type)
	assert.Equal(t, "reboot", ev.Command)

	h.gw.Handle(context.Background(), s, command(t, models.ClientCommand{Command: models.CommandMarkAsRead}))
	ev = h.next(t, s)
	assert.Equal(t, "message_id is required", ev.Error)

	assert.Equal(t, StateUnbound, s.State())
}

func TestMarkAsRead_SendsReceipt(t *testing.T) {
	h := newHarness(t)
	reader := h.connect(t, "tok-bob", "", 0)
	author := h.connect(t, "tok-alice", "", 0)

	h.store.On("MarkMessageRead", mock.Anything, uint(5), "bob").Return(true, nil).Once()
	h.store.On("GetMessage", mock.Anything, uint(5)).Return(&models.Message{ID: 5, ConversationID: room.ID, SenderID: "alice"}, nil).Once()

	h.gw.Handle(context.Background(), reader, command(t, models.ClientCommand{Command: models.CommandMarkAsRead, MessageID: models.Uint(5)}))

	ev := h.next(t, author)
	assert.Equal(t, models.EventMessageRead, ev.Type)
	assert.Equal(t, "bob", ev.ReadBy)

	// Second call changes nothing and sends nothing.
	h.store.On("MarkMessageRead", mock.Anything, uint(5), "bob").Return(false, nil).Once()
	h.gw.Handle(context.Background(), reader, command(t, models.ClientCommand{Command: models.CommandMarkAsRead, MessageID: models.Uint(5)}))
	h.none(t, author)
	h.none(t, reader)
}

func TestMarkRoomAndAllAsRead(t *testing.T) {
	h := newHarness(t)
	s := h.connect(t, "tok-bob", room.ID, 2)

	h.store.On("MarkConversationRead", mock.Anything, room.ID, "bob").Return(int64(2), nil).Once()
	h.store.On("UnreadConversationCount", mock.Anything, "bob").Return(int64(1), nil).Once()
	h.gw.Handle(context.Background(), s, command(t, models.ClientCommand{Command: models.CommandMarkRoomAsRead}))

	ev := h.next(t, s)
	assert.Equal(t, models.EventRoomMessagesRead, ev.Type)
	assert.Equal(t, room.ID, ev.RoomID)
	assert.Equal(t, int64(2), *ev.Count)
	assert.Equal(t, int64(1), *ev.UnreadCount)

	h.store.On("MarkAllRead", mock.Anything, "bob").Return(int64(4), nil).Once()
	h.gw.Handle(context.Background(), s, command(t, models.ClientCommand{Command: models.CommandMarkAllAsRead}))

	ev = h.next(t, s)
	assert.Equal(t, models.EventAllMessagesRead, ev.Type)
	assert.Equal(t, int64(4), *ev.Count)
	ev = h.next(t, s)
	assert.Equal(t, models.EventUnreadCount, ev.Type)
	assert.Equal(t, int64(0), *ev.UnreadCount)
}

func TestGetUnreadCount(t *testing.T) {
	h := newHarness(t)
	s := h.connect(t, "tok-bob", "", 0)

	h.store.On("UnreadConversationCount", mock.Anything, "bob").Return(int64(6), nil).Once()
	h.gw.Handle(context.Background(), s, command(t, models.ClientCommand{Command: models.CommandGetUnreadCount}))

	ev := h.next(t, s)
	assert.Equal(t, models.EventUnreadCount, ev.Type)
	assert.Equal(t, int64(6), *ev.UnreadCount)
}

func TestGetRecentRooms(t *testing.T) {
	h := newHarness(t)
	s := h.connect(t, "tok-alice", "", 0)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	other := models.Conversation{ID: "room-2", User1ID: "alice", User2ID: "zed", IsActive: true}
	h.store.On("ListVisibleConversations", mock.Anything, "alice", DefaultRecentRooms).Return([]models.Conversation{*room, other}, nil).Once()
	h.store.On("GetUserByID", mock.Anything, "zed").Return(nil, errors.New("profiles down")).Once()
	h.store.On("UnreadCountForConversation", mock.Anything, "alice", room.ID).Return(int64(2), nil).Once()
	h.store.On("UnreadCountForConversation", mock.Anything, "alice", "room-2").Return(int64(0), nil).Once()
	h.store.On("LastVisibleMessage", mock.Anything, room.ID, "alice").Return(&models.Message{Text: "see you", CreatedAt: at}, nil).Once()
	h.store.On("LastVisibleMessage", mock.Anything, "room-2", "alice").Return(nil, nil).Once()

	h.gw.Handle(context.Background(), s, command(t, models.ClientCommand{Command: models.CommandGetRecentRooms}))

	ev := h.next(t, s)
	assert.Equal(t, models.EventRecentRooms, ev.Type)
	require.Len(t, ev.Rooms, 2)
	assert.Equal(t, "Bob", ev.Rooms[0].DisplayName)
	assert.Equal(t, "bob.png", ev.Rooms[0].Avatar)
	assert.Equal(t, int64(2), ev.Rooms[0].UnreadCount)
	assert.Equal(t, "see you", ev.Rooms[0].LastMessage)
	assert.True(t, ev.Rooms[0].LastMessageAt.Equal(at))
	assert.Equal(t, "zed", ev.Rooms[1].DisplayName)
	assert.Empty(t, ev.Rooms[1].LastMessage)
}

func TestNotifyMessagesRead_ReachesOtherViews(t *testing.T) {
	h := newHarness(t)
	phone := h.connect(t, "tok-bob", room.ID, 0)
	laptop := h.connect(t, "tok-bob", "", 0)

	h.store.On("UnreadConversationCount", mock.Anything, "bob").Return(int64(0), nil).Once()
	h.gw.Handle(context.Background(), phone, command(t, models.ClientCommand{Command: models.CommandNotifyMessagesRead, MessageID: models.Uint(3)}))

	for _, s := range []*Session{phone, laptop} {
		ev := h.next(t, s)
		assert.Equal(t, models.EventMessagesReadNotification, ev.Type)
		assert.Equal(t, room.ID, ev.RoomID)
		assert.Equal(t, uint(3), *ev.MessageID)
	}
}

func TestNotifyAllRead_ReachesEveryConnection(t *testing.T) {
	h := newHarness(t)
	phone := h.connect(t, "tok-bob", room.ID, 3)
	laptop := h.connect(t, "tok-bob", "", 3)
	other := h.connect(t, "tok-alice", "", 0)

	h.store.On("UnreadConversationCount", mock.Anything, "bob").Return(int64(0), nil).Once()
	h.gw.NotifyAllRead(context.Background(), "bob")

	for _, s := range []*Session{phone, laptop} {
		ev := h.next(t, s)
		assert.Equal(t, models.EventUnreadCount, ev.Type)
		assert.Equal(t, int64(0), *ev.UnreadCount)
	}
	h.none(t, other)
}

// countingPresence records renewals of room presence.
type countingPresence struct {
	*storage.MemoryPresence
	mu     sync.Mutex
	enters int
}

func (p *countingPresence) Enter(ctx context.Context, roomID, userID, connID string) error {
	p.mu.Lock()
	p.enters++
	p.mu.Unlock()
	return p.MemoryPresence.Enter(ctx, roomID, userID, connID)
}

func (p *countingPresence) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enters
}

func TestKeepAlive_RenewsRoomPresence(t *testing.T) {
	h := newHarness(t)
	presence := &countingPresence{MemoryPresence: storage.NewMemoryPresence()}
	h.gw = NewGateway(Deps{
		Store:    h.store,
		Privacy:  h.privacy,
		Hub:      h.hub,
		Verifier: staticVerifier{"tok-alice": "alice", "tok-bob": "bob"},
		Presence: presence,
		Push:     h.push,
		Limiter:  h.limiter,
		Logger:   zerolog.Nop(),
	})
	ctx := context.Background()

	viewer := h.connect(t, "tok-bob", room.ID, 0)
	lobby := h.connect(t, "tok-alice", "", 0)
	require.Equal(t, 1, presence.count())

	h.gw.KeepAlive(ctx, viewer)
	assert.Equal(t, 2, presence.count())
	in, err := presence.InRoom(ctx, room.ID, "bob")
	require.NoError(t, err)
	assert.True(t, in)

	h.gw.KeepAlive(ctx, lobby)
	assert.Equal(t, 2, presence.count(), "unbound sessions hold no presence")

	h.gw.Disconnect(ctx, viewer)
	h.gw.KeepAlive(ctx, viewer)
	assert.Equal(t, 2, presence.count(), "a closed session must not come back")
	in, err = presence.InRoom(ctx, room.ID, "bob")
	require.NoError(t, err)
	assert.False(t, in)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "room_bound", StateRoomBound.String())
	assert.True(t, StateUnbound.Active())
	assert.False(t, StateAuthorized.Active())
	assert.False(t, StateClosed.Active())
}
