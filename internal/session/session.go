// Package session tracks live connections, the user↔session directory, and
// ephemeral multi-party chat rooms.
package session

import (
	"sync"

	"github.com/google/uuid"

	"retroim/internal/domain"
)

// Session is a single live connection bound to at most one user. Sessions
// of the same user can coexist; the user goes offline only when the last
// one closes.
type Session struct {
	ID string

	mu        sync.Mutex
	user      *domain.User
	transport domain.Transport
	dialect   int
	chat      *Chat
	closed    bool
}

func New(transport domain.Transport) *Session {
	return &Session{
		ID:        uuid.NewString(),
		transport: transport,
	}
}

// User returns the bound user, or nil before authentication completes.
func (s *Session) User() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Session) SetUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// Dialect is the protocol version variant negotiated by the adapter.
func (s *Session) Dialect() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialect
}

func (s *Session) SetDialect(d int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialect = d
}

// Chat returns the room this session currently participates in, if any.
func (s *Session) Chat() *Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat
}

func (s *Session) setChat(c *Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = c
}

// Transport exposes the underlying transport for the idle reaper.
func (s *Session) Transport() domain.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// Send pushes an event to the session's transport. A closed session drops
// events silently.
func (s *Session) Send(ev domain.Event) error {
	s.mu.Lock()
	closed := s.closed
	t := s.transport
	s.mu.Unlock()
	if closed || t == nil {
		return nil
	}
	return t.SendEvent(ev)
}

// Close shuts the transport down. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	t := s.transport
	s.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Close()
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
