package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"user-notifier/internal/model"
)

// DefaultRedisKeyPrefix namespaces preference records in a shared Redis.
const DefaultRedisKeyPrefix = "notifier:prefs:"

// RedisStore keeps each user's preferences as a JSON string value.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*model.UserPreferences, error) {
	data, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", userID, err)
	}

	var prefs model.UserPreferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return nil, fmt.Errorf("decode preferences %q: %w", userID, err)
	}
	return &prefs, nil
}

func (s *RedisStore) Put(ctx context.Context, prefs *model.UserPreferences) error {
	if err := validate(prefs); err != nil {
		return err
	}

	data, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(prefs.UserID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", prefs.UserID, err)
	}
	return nil
}

// Ping checks the connection for health reporting.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
