package domain

import "time"

// Event is an outbound notification originated by the backend. The core
// emits one canonical event shape per occurrence; adapters render them into
// their own wire formats.
type Event interface {
	EventType() string
}

// PresenceEvent carries the visibility-filtered status of a contact as seen
// by the receiving session's user.
type PresenceEvent struct {
	UserUUID string `json:"user_uuid"`
	Email    string `json:"email"`
	Status   Status `json:"status"`
}

func (PresenceEvent) EventType() string { return "presence" }

// ReverseAddEvent tells a user that somebody added them to a forward list.
type ReverseAddEvent struct {
	UserUUID string `json:"user_uuid"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

func (ReverseAddEvent) EventType() string { return "reverse_add" }

// ChatInviteEvent rings one session of a callee. Token is a one-shot
// invite token redeemed when the callee joins the chat.
type ChatInviteEvent struct {
	InviterUUID  string `json:"inviter_uuid"`
	InviterEmail string `json:"inviter_email"`
	InviterName  string `json:"inviter_name"`
	ChatID       string `json:"chat_id"`
	Token        string `json:"token"`
}

func (ChatInviteEvent) EventType() string { return "chat_invite" }

// ParticipantJoinedEvent is broadcast to existing chat participants when a
// session joins.
type ParticipantJoinedEvent struct {
	ChatID   string `json:"chat_id"`
	UserUUID string `json:"user_uuid"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

func (ParticipantJoinedEvent) EventType() string { return "participant_joined" }

// ParticipantLeftEvent is broadcast to remaining chat participants when a
// session leaves.
type ParticipantLeftEvent struct {
	ChatID   string `json:"chat_id"`
	UserUUID string `json:"user_uuid"`
	Email    string `json:"email"`
}

func (ParticipantLeftEvent) EventType() string { return "participant_left" }

// ChatMessageEvent relays an opaque payload to chat participants. The core
// treats the payload as a transport passthrough and does not inspect it.
type ChatMessageEvent struct {
	ChatID      string `json:"chat_id"`
	SenderUUID  string `json:"sender_uuid"`
	SenderEmail string `json:"sender_email"`
	SenderName  string `json:"sender_name"`
	Payload     []byte `json:"payload"`
}

func (ChatMessageEvent) EventType() string { return "chat_message" }

// ForcedLogoffEvent is sent right before the server closes a session on the
// user's behalf (admin action, duplicate login policy, shutdown).
type ForcedLogoffEvent struct {
	Reason string `json:"reason"`
}

func (ForcedLogoffEvent) EventType() string { return "forced_logoff" }

// Transport is the session transport collaborator. SendEvent may queue or
// flush immediately; Close must be idempotent.
type Transport interface {
	SendEvent(ev Event) error
	Close() error
}

// IdleTransport is implemented by polling-style transports. The idle reaper
// closes sessions whose last contact exceeds their configured timeout; it is
// the only consumer of these two methods.
type IdleTransport interface {
	Transport
	LastContact() time.Time
	IdleTimeout() time.Duration
}
