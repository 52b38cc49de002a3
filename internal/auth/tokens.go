// Package auth implements short-lived, purpose-scoped opaque tokens used to
// decouple login stages and cross-protocol session handoffs.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultLifetime is the standard validity window for handoff tokens.
const DefaultLifetime = 30 * time.Second

type entry struct {
	token   string
	purpose string
	data    any
	expiry  time.Time
}

// TokenService issues and redeems expiring tokens. Expired entries are
// swept lazily on every operation via a binary search over the
// expiry-ordered slice, so no background timer is needed.
type TokenService struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*entry
	order   []*entry // ascending expiry
}

func NewTokenService() *TokenService {
	return &TokenService{
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Create mints a token carrying data, valid for the given lifetime under
// the given purpose. A collision with a live token is a correctness bug and
// panics.
func (s *TokenService) Create(purpose string, data any, lifetime time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()

	token := randomToken()
	if _, exists := s.entries[token]; exists {
		panic(fmt.Sprintf("auth: token collision for purpose %q", purpose))
	}

	e := &entry{
		token:   token,
		purpose: purpose,
		data:    data,
		expiry:  s.now().Add(lifetime),
	}
	s.entries[token] = e

	i := sort.Search(len(s.order), func(i int) bool {
		return s.order[i].expiry.After(e.expiry)
	})
	s.order = append(s.order, nil)
	copy(s.order[i+1:], s.order[i:])
	s.order[i] = e

	return token
}

// Pop redeems a token exactly once. It returns (nil, false) when the token
// is absent, expired, or scoped to a different purpose; that is an expected
// outcome, not a fault.
func (s *TokenService) Pop(purpose, token string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(purpose, token)
	if !ok {
		return nil, false
	}
	delete(s.entries, token)
	return e.data, true
}

// Peek validates a token without consuming it.
func (s *TokenService) Peek(purpose, token string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(purpose, token)
	if !ok {
		return nil, false
	}
	return e.data, true
}

// Expiry returns the expiry time of a live token.
func (s *TokenService) Expiry(purpose, token string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(purpose, token)
	if !ok {
		return time.Time{}, false
	}
	return e.expiry, true
}

// Live returns the number of unexpired tokens.
func (s *TokenService) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	return len(s.entries)
}

func (s *TokenService) lookup(purpose, token string) (*entry, bool) {
	s.sweep()
	e, ok := s.entries[token]
	if !ok || e.purpose != purpose {
		return nil, false
	}
	return e, true
}

// sweep drops every entry with expiry <= now. Popped tokens leave a stale
// pointer in order until their expiry passes; the map comparison below
// keeps them from shadowing a later entry.
func (s *TokenService) sweep() {
	now := s.now()
	i := sort.Search(len(s.order), func(i int) bool {
		return s.order[i].expiry.After(now)
	})
	for _, e := range s.order[:i] {
		if cur, ok := s.entries[e.token]; ok && cur == e {
			delete(s.entries, e.token)
		}
	}
	s.order = s.order[i:]
}

func randomToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic("auth: crypto/rand failed: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
