package chathub

import (
	"sync"
	"sync/atomic"

	"socialdm/backend/internal/models"

	"github.com/oklog/ulid/v2"
)

// State is where a connection is in its lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateAuthorized
	StateRejected
	StateRoomBound
	StateUnbound
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthorized:
		return "authorized"
	case StateRejected:
		return "rejected"
	case StateRoomBound:
		return "room_bound"
	case StateUnbound:
		return "unbound"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Active reports whether commands are accepted in this state.
func (s State) Active() bool {
	return s == StateRoomBound || s == StateUnbound
}

const sendBuffer = 256

// Session is one client connection as the gateway sees it, independent of the
// transport. Events for the client queue on Outbound.
type Session struct {
	id     string
	roomID string

	state atomic.Int32

	mu   sync.RWMutex
	user *models.User

	send      chan models.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(roomID string) *Session {
	s := &Session{
		id:     ulid.Make().String(),
		roomID: roomID,
		send:   make(chan models.Event, sendBuffer),
		done:   make(chan struct{}),
	}
	s.setState(StateConnecting)
	return s
}

// ID is the connection id, unique per process lifetime.
func (s *Session) ID() string { return s.id }

// RoomID is the conversation this connection targets, empty when unbound.
func (s *Session) RoomID() string { return s.roomID }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// User is nil until the session is authorized.
func (s *Session) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) UserID() string {
	if u := s.User(); u != nil {
		return u.ID
	}
	return ""
}

func (s *Session) setUser(u *models.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}

// Deliver queues an event without blocking. It returns false when the buffer
// is full or the session is closed.
func (s *Session) Deliver(ev models.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- ev:
		return true
	default:
		return false
	}
}

// Outbound yields queued events for the transport's writer.
func (s *Session) Outbound() <-chan models.Event { return s.send }

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		close(s.done)
	})
}
