package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retroim/internal/domain"
)

func eventsOfType(events []domain.Event, typ string) []domain.Event {
	var out []domain.Event
	for _, ev := range events {
		if ev.EventType() == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestChatJoinAnnouncesToOthers(t *testing.T) {
	c := NewChat()
	a, ta := newUserSession("u1", "a@example.com", "A")
	b, tb := newUserSession("u2", "b@example.com", "B")

	c.AddSession(a)
	assert.Empty(t, ta.sent(), "first joiner has nobody to announce to")
	assert.Same(t, c, a.Chat())

	c.AddSession(b)
	joins := eventsOfType(ta.sent(), "participant_joined")
	require.Len(t, joins, 1)
	ev := joins[0].(domain.ParticipantJoinedEvent)
	assert.Equal(t, "u2", ev.UserUUID)
	assert.Equal(t, c.ID, ev.ChatID)
	assert.Empty(t, tb.sent(), "joiner does not hear its own join")
}

func TestChatSendRelaysToEveryoneElse(t *testing.T) {
	c := NewChat()
	a, ta := newUserSession("u1", "a@example.com", "A")
	b, tb := newUserSession("u2", "b@example.com", "B")
	x, tx := newUserSession("u3", "x@example.com", "X")
	c.AddSession(a)
	c.AddSession(b)
	c.AddSession(x)

	c.SendToEveryone(a, []byte("hello"))

	for _, tr := range []*fakeTransport{tb, tx} {
		msgs := eventsOfType(tr.sent(), "chat_message")
		require.Len(t, msgs, 1)
		ev := msgs[0].(domain.ChatMessageEvent)
		assert.Equal(t, "u1", ev.SenderUUID)
		assert.Equal(t, []byte("hello"), ev.Payload)
	}
	assert.Empty(t, eventsOfType(ta.sent(), "chat_message"))
}

func TestChatSendFromNonParticipantIsDropped(t *testing.T) {
	c := NewChat()
	a, _ := newUserSession("u1", "a@example.com", "A")
	b, tb := newUserSession("u2", "b@example.com", "B")
	c.AddSession(b)

	c.SendToEveryone(a, []byte("hi"))
	assert.Empty(t, eventsOfType(tb.sent(), "chat_message"))
}

func TestChatLeave(t *testing.T) {
	c := NewChat()
	a, _ := newUserSession("u1", "a@example.com", "A")
	b, tb := newUserSession("u2", "b@example.com", "B")
	c.AddSession(a)
	c.AddSession(b)

	c.OnLeave(a)
	assert.Nil(t, a.Chat())

	left := eventsOfType(tb.sent(), "participant_left")
	require.Len(t, left, 1)
	assert.Equal(t, "u1", left[0].(domain.ParticipantLeftEvent).UserUUID)

	assert.False(t, c.Empty())
	c.OnLeave(b)
	assert.True(t, c.Empty())

	// leaving twice is harmless
	c.OnLeave(b)
}

func TestChatRosterExcludes(t *testing.T) {
	c := NewChat()
	a, _ := newUserSession("u1", "a@example.com", "A")
	b, _ := newUserSession("u2", "b@example.com", "B")
	c.AddSession(a)
	c.AddSession(b)

	roster := c.Roster(a)
	require.Len(t, roster, 1)
	assert.Equal(t, "u2", roster[0].User.UUID)

	assert.Len(t, c.Roster(nil), 2)
}

func TestBroadcastClosesFailedTransports(t *testing.T) {
	c := NewChat()
	a, _ := newUserSession("u1", "a@example.com", "A")
	b, tb := newUserSession("u2", "b@example.com", "B")
	c.AddSession(a)
	c.AddSession(b)

	tb.failed = true
	c.SendToEveryone(a, []byte("hello"))
	assert.True(t, b.Closed())
}

func TestSessionSendAfterCloseIsSilent(t *testing.T) {
	s, ft := newUserSession("u1", "a@example.com", "A")
	require.NoError(t, s.Close())
	assert.True(t, ft.closed)

	err := s.Send(domain.ForcedLogoffEvent{Reason: "test"})
	assert.NoError(t, err)
	assert.Empty(t, ft.sent())

	assert.NoError(t, s.Close(), "close is idempotent")
}
