package session

import (
	"errors"
	"sync"

	"retroim/internal/domain"
)

// fakeTransport records sent events for assertions.
type fakeTransport struct {
	mu     sync.Mutex
	events []domain.Event
	failed bool
	closed bool
}

func (f *fakeTransport) SendEvent(ev domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed {
		return errors.New("transport failed")
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) sent() []domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Event, len(f.events))
	copy(out, f.events)
	return out
}

func newUserSession(uuid, email, name string) (*Session, *fakeTransport) {
	ft := &fakeTransport{}
	s := New(ft)
	s.SetUser(&domain.User{
		UUID:   uuid,
		Email:  email,
		Status: domain.Status{Name: name, Substatus: domain.SubstatusOnline},
		Detail: domain.NewUserDetail(),
	})
	return s, ft
}
