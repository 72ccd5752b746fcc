// Package chathub is the real-time side of direct messaging: channel
// fan-out across instances, the per-connection state machine and the
// command dispatch behind the WebSocket endpoints.
package chathub

import (
	"context"
	"errors"
	"strconv"

	"socialdm/backend/internal/apperr"
	"socialdm/backend/internal/metrics"
	"socialdm/backend/internal/models"
	"socialdm/backend/internal/privacy"
	"socialdm/backend/internal/push"
	"socialdm/backend/internal/storage"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// TokenVerifier resolves a bearer credential to a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Notifier sends the out-of-band notification for a participant who is not
// viewing the room. It must return without waiting for the provider.
type Notifier interface {
	NotifyOffline(ctx context.Context, n push.Notification)
}

// DefaultRecentRooms bounds get_recent_rooms when no limit is configured.
const DefaultRecentRooms = 20

// Deps are the collaborators a Gateway is built from. Presence, Push and
// Limiter are optional.
type Deps struct {
	Store    storage.Storage
	Privacy  privacy.Checker
	Hub      *Hub
	Verifier TokenVerifier
	Presence storage.Presence
	Push     Notifier
	Limiter  storage.RateLimiter
	Logger   zerolog.Logger

	RecentRoomsLimit int
}

type Gateway struct {
	store    storage.Storage
	privacy  privacy.Checker
	hub      *Hub
	verifier TokenVerifier
	presence storage.Presence
	push     Notifier
	limiter  storage.RateLimiter
	log      zerolog.Logger

	recentRooms int
}

func NewGateway(d Deps) *Gateway {
	if d.Presence == nil {
		d.Presence = storage.NewMemoryPresence()
	}
	if d.RecentRoomsLimit <= 0 {
		d.RecentRoomsLimit = DefaultRecentRooms
	}
	return &Gateway{
		store:       d.Store,
		privacy:     d.Privacy,
		hub:         d.Hub,
		verifier:    d.Verifier,
		presence:    d.Presence,
		push:        d.Push,
		limiter:     d.Limiter,
		log:         d.Logger.With().Str("component", "gateway").Logger(),
		recentRooms: d.RecentRoomsLimit,
	}
}

// RejectError ends a connection during authorization with a close code.
type RejectError struct {
	Code   int
	Reason string
	Err    error
}

func (e *RejectError) Error() string {
	return "connection rejected (" + strconv.Itoa(e.Code) + "): " + e.Reason
}

func (e *RejectError) Unwrap() error { return e.Err }

func (g *Gateway) reject(s *Session, code int, reason string, err error) *RejectError {
	s.setState(StateRejected)
	s.close()
	metrics.ConnectionsRejected.WithLabelValues(strconv.Itoa(code)).Inc()
	g.log.Info().Err(err).Int("code", code).Str("conn_id", s.ID()).Str("room_id", s.RoomID()).Msg("connection rejected")
	return &RejectError{Code: code, Reason: reason, Err: err}
}

// Connect runs authorization for a new connection. roomID is empty for the
// unbound endpoint. On failure the returned error is a *RejectError and the
// session is already closed.
func (g *Gateway) Connect(ctx context.Context, credential, roomID string) (*Session, error) {
	s := newSession(roomID)
	s.setState(StateAuthenticating)

	if credential == "" {
		return nil, g.reject(s, apperr.CloseAuthFailure, "authentication required", apperr.ErrCredentialMissing)
	}
	userID, err := g.verifier.Verify(credential)
	if err != nil {
		return nil, g.reject(s, apperr.CloseAuthFailure, "invalid credential", err)
	}
	user, err := g.store.GetUserByID(ctx, userID)
	if errors.Is(err, apperr.ErrUserNotFound) {
		return nil, g.reject(s, apperr.CloseAuthFailure, "unknown user", err)
	}
	if err != nil {
		return nil, g.reject(s, websocket.CloseInternalServerErr, "user lookup failed", err)
	}

	s.setUser(user)
	s.setState(StateAuthorized)
	g.hub.Join(PersonalChannel(user.ID), s)

	if roomID != "" {
		if _, err := g.store.GetConversationForUser(ctx, roomID, user.ID); err != nil {
			g.hub.Leave(PersonalChannel(user.ID), s)
			code := apperr.CloseForbiddenRoom
			if c := apperr.CodeOf(err); c != apperr.CodeNotFound && c != apperr.CodeNotParticipant {
				code = websocket.CloseInternalServerErr
			}
			return nil, g.reject(s, code, "not a participant of this room", err)
		}
		g.hub.Join(RoomChannel(roomID), s)
		if err := g.presence.Enter(ctx, roomID, user.ID, s.ID()); err != nil {
			g.log.Warn().Err(err).Str("room_id", roomID).Msg("presence enter failed")
		}
		s.setState(StateRoomBound)
	} else {
		s.setState(StateUnbound)
	}

	metrics.ConnectionsActive.Inc()
	g.sessionLog(s).Info().Msg("connection established")

	unread, err := g.store.UnreadConversationCount(ctx, user.ID)
	if err != nil {
		g.sessionLog(s).Warn().Err(err).Msg("unread count failed")
	}
	s.Deliver(models.Event{
		Type:        models.EventConnectionEstablished,
		UserID:      user.ID,
		RoomID:      roomID,
		UnreadCount: models.Int64(unread),
	})
	return s, nil
}

// Disconnect leaves the room channel, then the personal channel, before the
// session is released. Safe to call more than once.
func (g *Gateway) Disconnect(ctx context.Context, s *Session) {
	if s.State() == StateClosed {
		return
	}
	userID := s.UserID()
	if s.State() == StateRoomBound {
		g.hub.Leave(RoomChannel(s.RoomID()), s)
		if err := g.presence.Leave(ctx, s.RoomID(), userID, s.ID()); err != nil {
			g.log.Warn().Err(err).Str("room_id", s.RoomID()).Msg("presence leave failed")
		}
	}
	g.hub.Leave(PersonalChannel(userID), s)
	s.close()
	metrics.ConnectionsActive.Dec()
	g.sessionLog(s).Info().Msg("connection closed")
}

// KeepAlive renews the room presence of a live connection so its entry
// outlasts the presence expiry only while the connection does.
func (g *Gateway) KeepAlive(ctx context.Context, s *Session) {
	if s.State() != StateRoomBound {
		return
	}
	if err := g.presence.Enter(ctx, s.RoomID(), s.UserID(), s.ID()); err != nil {
		g.sessionLog(s).Warn().Err(err).Msg("presence refresh failed")
	}
}

func (g *Gateway) sessionLog(s *Session) *zerolog.Logger {
	l := g.log.With().Str("conn_id", s.ID()).Str("user_id", s.UserID()).Str("room_id", s.RoomID()).Logger()
	return &l
}
