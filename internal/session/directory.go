package session

import "sync"

// Directory is the bidirectional index between logical users and their live
// sessions, plus a token→session map for handoff scenarios. Shared between
// the backend and the ops surface, so it carries its own lock.
type Directory struct {
	mu         sync.RWMutex
	byUser     map[string]map[*Session]struct{}
	byToken    map[string]*Session
	sessTokens map[*Session][]string
}

func NewDirectory() *Directory {
	return &Directory{
		byUser:     make(map[string]map[*Session]struct{}),
		byToken:    make(map[string]*Session),
		sessTokens: make(map[*Session][]string),
	}
}

// AddSession registers a session under its bound user. The session must be
// authenticated (user set) before registration.
func (d *Directory) AddSession(s *Session) {
	u := s.User()
	if u == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	set := d.byUser[u.UUID]
	if set == nil {
		set = make(map[*Session]struct{})
		d.byUser[u.UUID] = set
	}
	set[s] = struct{}{}
}

// RemoveSession deregisters a session and cascades removal of its token
// bindings. removed reports whether the session was registered; last
// reports whether it was the final session for its user.
func (d *Directory) RemoveSession(s *Session) (removed, last bool) {
	u := s.User()
	if u == nil {
		return false, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.byUser[u.UUID]
	if !ok {
		return false, false
	}
	if _, ok := set[s]; !ok {
		return false, false
	}
	delete(set, s)
	if len(set) == 0 {
		delete(d.byUser, u.UUID)
		last = true
	}
	for _, tok := range d.sessTokens[s] {
		delete(d.byToken, tok)
	}
	delete(d.sessTokens, s)
	return true, last
}

// SessionsByUUID returns the live sessions of a user. Always a slice, never
// nil, so callers can range without a presence check.
func (d *Directory) SessionsByUUID(uuid string) []*Session {
	d.mu.RLock()
	defer d.mu.RUnlock()

	set := d.byUser[uuid]
	out := make([]*Session, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// All snapshots every live session. This backs the O(n) presence fan-out
// and is the scalability bound of the design.
func (d *Directory) All() []*Session {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*Session, 0, len(d.sessTokens))
	for _, set := range d.byUser {
		for s := range set {
			out = append(out, s)
		}
	}
	return out
}

// BindToken associates a handoff token with a session. A session may hold
// several tokens over its life (one per switchboard handoff); bindings are
// cleaned up when the session is removed.
func (d *Directory) BindToken(token string, s *Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byToken[token] = s
	d.sessTokens[s] = append(d.sessTokens[s], token)
}

// SessionByToken resolves a bound token, or nil.
func (d *Directory) SessionByToken(token string) *Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byToken[token]
}

// Counts returns the number of distinct online users and live sessions.
func (d *Directory) Counts() (users, sessions int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, set := range d.byUser {
		users++
		sessions += len(set)
	}
	return users, sessions
}
