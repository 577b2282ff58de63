package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by RedisStore.
const DefaultRedisPrefix = "gochef"

// RedisStore implements Store on Redis string keys "<prefix>:<scope>:<key>".
// It lets several client processes on one host share a sign-in.
type RedisStore struct {
	client *redis.Client
	prefix string
	owns   bool
	logger *slog.Logger
}

// NewRedisStore connects to Redis at addr and returns a Store for the given scope.
func NewRedisStore(ctx context.Context, addr, scope string, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	s := NewRedisStoreWithClient(client, scope, logger)
	s.owns = true
	return s, nil
}

// NewRedisStoreWithClient wraps an existing client. Close leaves the client open.
func NewRedisStoreWithClient(client *redis.Client, scope string, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: DefaultRedisPrefix + ":" + scope + ":",
		logger: logger.With("component", "store", "backend", "redis", "scope", scope),
	}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Clear deletes every key under this store's prefix using SCAN, never KEYS.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis clear: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis clear: %w", err)
		}
	}
	s.logger.Debug("redis", "op", "clear", "prefix", s.prefix)
	return nil
}

func (s *RedisStore) Close() error {
	if !s.owns {
		return nil
	}
	return s.client.Close()
}
