// Package session exposes the effective user id produced by identity
// resolution to the rest of the application.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoSession indicates no cached resolution exists for the external uid.
var ErrNoSession = errors.New("no session for external uid")

// Entry is the cached outcome of one identity resolution.
type Entry struct {
	RecordID   string    `json:"record_id"`
	Email      string    `json:"email,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// RedisStore caches resolved effective ids keyed by external uid.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient wraps an existing client. The caller keeps ownership
// of the client unless Close is used.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: "effective_id:", ttl: ttl}
}

// Client exposes the underlying Redis client for shared use (rate limiting).
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) key(externalUID string) string {
	return s.prefix + externalUID
}

// Save caches a resolution outcome with the store TTL.
func (s *RedisStore) Save(ctx context.Context, externalUID string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal session entry: %w", err)
	}
	if err := s.client.Set(ctx, s.key(externalUID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session entry: %w", err)
	}
	return nil
}

// Lookup returns the cached resolution for the external uid, or ErrNoSession.
func (s *RedisStore) Lookup(ctx context.Context, externalUID string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.key(externalUID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session entry: %w", err)
	}

	var e Entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("unmarshal session entry: %w", err)
	}
	return &e, nil
}

// Clear removes the cached resolution. Clearing an absent entry is not an
// error.
func (s *RedisStore) Clear(ctx context.Context, externalUID string) error {
	if err := s.client.Del(ctx, s.key(externalUID)).Err(); err != nil {
		return fmt.Errorf("clear session entry: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
