// Package redis exports presence into a Redis side-store for external
// dashboards and tooling. The export is best effort and TTL'd; the
// in-memory session directory stays the single authority.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"retroim/internal/domain"
)

const (
	presenceKeyPrefix = "presence:user:"
	onlineSetKey      = "presence:online"
	presenceTTL       = 2 * time.Minute
)

type presenceRecord struct {
	UUID      string    `json:"uuid"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Substatus string    `json:"substatus"`
	LastSeen  time.Time `json:"last_seen"`
}

// PresenceMirror publishes per-user presence records with a TTL plus an
// online-users set.
type PresenceMirror struct {
	client *redis.Client
}

func NewPresenceMirror(addr, password string, db int) (*PresenceMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &PresenceMirror{client: client}, nil
}

// Publish writes the user's current presence. Offlineish states are
// published as removals so hidden users do not leak into the online set.
func (m *PresenceMirror) Publish(ctx context.Context, user *domain.User) error {
	if user.Status.Substatus.IsOfflineish() {
		return m.Remove(ctx, user.UUID)
	}

	rec := presenceRecord{
		UUID:      user.UUID,
		Email:     user.Email,
		Name:      user.Status.Name,
		Substatus: user.Status.Substatus.String(),
		LastSeen:  time.Now(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode presence: %w", err)
	}

	if err := m.client.Set(ctx, presenceKeyPrefix+user.UUID, data, presenceTTL).Err(); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	if err := m.client.SAdd(ctx, onlineSetKey, user.UUID).Err(); err != nil {
		return fmt.Errorf("add to online set: %w", err)
	}
	return nil
}

// Remove drops a user's presence record and online-set membership.
func (m *PresenceMirror) Remove(ctx context.Context, uuid string) error {
	if err := m.client.Del(ctx, presenceKeyPrefix+uuid).Err(); err != nil {
		return fmt.Errorf("del presence: %w", err)
	}
	if err := m.client.SRem(ctx, onlineSetKey, uuid).Err(); err != nil {
		return fmt.Errorf("remove from online set: %w", err)
	}
	return nil
}

func (m *PresenceMirror) Close() error {
	return m.client.Close()
}
