// Package settings provides a small named-value configuration store backed
// by redis. The scheduling engine uses it to remember the provisioned
// calendar id across process restarts.
package settings

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// KeyCalendarID names the entry holding the provisioned Google Calendar id.
const KeyCalendarID = "gcal_calendar_id"

// Store persists named string values.
type Store struct {
	redis *redis.Client
}

// NewStore creates a settings store over the given redis client.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) key(name string) string {
	return fmt.Sprintf("settings:%s", name)
}

// Get retrieves a named value. A missing entry returns "" with no error.
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	val, err := s.redis.Get(ctx, s.key(name)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("settings: get %s: %w", name, err)
	}
	return val, nil
}

// Set upserts a named value.
func (s *Store) Set(ctx context.Context, name, value string) error {
	if err := s.redis.Set(ctx, s.key(name), value, 0).Err(); err != nil {
		return fmt.Errorf("settings: set %s: %w", name, err)
	}
	return nil
}
