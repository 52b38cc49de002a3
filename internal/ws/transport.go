// Package ws is the WebSocket bridge adapter: a reference protocol adapter
// that maps a small JSON command set onto backend calls and renders core
// events as JSON envelopes. The historical MSNP/YMSG front-ends consume the
// same backend API through their own wire codecs.
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"retroim/internal/domain"
)

// envelope is the outbound frame shape: {"type": ..., "data": {...}}.
type envelope struct {
	Type string       `json:"type"`
	Data domain.Event `json:"data"`
}

// transport adapts a websocket connection to the session transport
// collaborator. It is a polling-style transport: the idle reaper consults
// its last-contact timestamp.
type transport struct {
	conn        *websocket.Conn
	idleTimeout time.Duration

	writeMu sync.Mutex

	mu          sync.Mutex
	lastContact time.Time
	closed      bool
}

var _ domain.IdleTransport = (*transport)(nil)

func newTransport(conn *websocket.Conn, idleTimeout time.Duration) *transport {
	return &transport{
		conn:        conn,
		idleTimeout: idleTimeout,
		lastContact: time.Now(),
	}
}

func (t *transport) SendEvent(ev domain.Event) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(envelope{Type: ev.EventType(), Data: ev})
}

func (t *transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close()
}

func (t *transport) LastContact() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastContact
}

func (t *transport) IdleTimeout() time.Duration {
	return t.idleTimeout
}

// touch records client activity; called on every inbound frame.
func (t *transport) touch() {
	t.mu.Lock()
	t.lastContact = time.Now()
	t.mu.Unlock()
}
