package service

import (
	"context"
	"fmt"
	"sync"

	"retroim/internal/domain"
)

// UserCache is the in-memory head-record cache over the storage
// collaborator. Entries never evict for the life of the process; the
// working set is bounded by currently-or-recently-active users.
type UserCache struct {
	storage domain.Storage

	mu    sync.RWMutex
	heads map[string]*domain.User
}

func NewUserCache(storage domain.Storage) *UserCache {
	return &UserCache{
		storage: storage,
		heads:   make(map[string]*domain.User),
	}
}

// Get returns the cached head record, loading and caching it on first
// lookup. Unknown uuids return nil with a nil error.
func (c *UserCache) Get(ctx context.Context, uuid string) (*domain.User, error) {
	c.mu.RLock()
	u, ok := c.heads[uuid]
	c.mu.RUnlock()
	if ok {
		return u, nil
	}

	u, err := c.storage.GetUser(ctx, uuid)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", uuid, err)
	}
	if u == nil {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// another caller may have raced the load; keep the first pointer so
	// everyone shares one live record
	if cached, ok := c.heads[uuid]; ok {
		return cached, nil
	}
	c.heads[uuid] = u
	return u, nil
}

// Peek returns the cached head record without touching storage. Used on
// hot paths (presence recomputation) where a miss just means offline.
func (c *UserCache) Peek(uuid string) *domain.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.heads[uuid]
}

// GetUUID resolves an email to a uuid via storage. Case handling lives in
// the storage collaborator so every contact-resolution path agrees.
func (c *UserCache) GetUUID(ctx context.Context, email string) (string, error) {
	return c.storage.GetUUID(ctx, email)
}

// GetDetail loads the full contact/group/settings graph. Details are not
// cached here: the backend attaches them to User.Detail and owns their
// lifetime.
func (c *UserCache) GetDetail(ctx context.Context, uuid string) (*domain.UserDetail, error) {
	d, err := c.storage.GetDetail(ctx, uuid)
	if err != nil {
		return nil, fmt.Errorf("load detail %s: %w", uuid, err)
	}
	return d, nil
}

// Login verifies credentials against storage. No session side effects.
func (c *UserCache) Login(ctx context.Context, email, password string) (string, error) {
	return c.storage.Login(ctx, email, password)
}

// SaveBatch flushes dirty pairs through to storage.
func (c *UserCache) SaveBatch(ctx context.Context, entries []domain.BatchEntry) error {
	return c.storage.SaveBatch(ctx, entries)
}

// Size returns the number of cached head records.
func (c *UserCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.heads)
}
