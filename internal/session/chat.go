package session

import (
	"sync"

	"github.com/google/uuid"

	"retroim/internal/domain"
)

// RosterEntry pairs a chat participant session with its user.
type RosterEntry struct {
	Session *Session
	User    *domain.User
}

// Chat is an ephemeral multi-party room created on switchboard/conference
// transfer. A room with no participants becomes unreachable garbage; the
// adapter-side registry drops its reference via Empty.
type Chat struct {
	ID string

	mu           sync.RWMutex
	participants map[*Session]*domain.User
}

func NewChat() *Chat {
	return &Chat{
		ID:           uuid.NewString(),
		participants: make(map[*Session]*domain.User),
	}
}

// AddSession binds a session's user into the room and announces the join to
// the other participants.
func (c *Chat) AddSession(s *Session) {
	u := s.User()
	if u == nil {
		return
	}
	c.mu.Lock()
	c.participants[s] = u
	c.mu.Unlock()
	s.setChat(c)

	c.broadcast(s, domain.ParticipantJoinedEvent{
		ChatID:   c.ID,
		UserUUID: u.UUID,
		Email:    u.Email,
		Name:     u.Status.Name,
	})
}

// SendToEveryone relays an opaque payload from the sender to every other
// participant verbatim.
func (c *Chat) SendToEveryone(sender *Session, payload []byte) {
	u := c.userOf(sender)
	if u == nil {
		return
	}
	c.broadcast(sender, domain.ChatMessageEvent{
		ChatID:      c.ID,
		SenderUUID:  u.UUID,
		SenderEmail: u.Email,
		SenderName:  u.Status.Name,
		Payload:     payload,
	})
}

// Roster snapshots current participants, optionally excluding one session
// (typically the caller, to avoid echoing its own join).
func (c *Chat) Roster(excluding *Session) []RosterEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]RosterEntry, 0, len(c.participants))
	for s, u := range c.participants {
		if s == excluding {
			continue
		}
		out = append(out, RosterEntry{Session: s, User: u})
	}
	return out
}

// OnLeave removes a session from the room. A session that was never a
// participant is a no-op; otherwise the departure is announced to the rest.
func (c *Chat) OnLeave(s *Session) {
	c.mu.Lock()
	u, ok := c.participants[s]
	if ok {
		delete(c.participants, s)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	s.setChat(nil)

	c.broadcast(nil, domain.ParticipantLeftEvent{
		ChatID:   c.ID,
		UserUUID: u.UUID,
		Email:    u.Email,
	})
}

// Empty reports whether the room has no participants left.
func (c *Chat) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.participants) == 0
}

func (c *Chat) userOf(s *Session) *domain.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.participants[s]
}

func (c *Chat) broadcast(exclude *Session, ev domain.Event) {
	c.mu.RLock()
	targets := make([]*Session, 0, len(c.participants))
	for s := range c.participants {
		if s == exclude {
			continue
		}
		targets = append(targets, s)
	}
	c.mu.RUnlock()

	for _, s := range targets {
		if err := s.Send(ev); err != nil {
			// failed transport; drop the connection, the adapter's read
			// loop will run the usual leave path
			_ = s.Close()
		}
	}
}
