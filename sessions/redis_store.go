package sessions

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jrsteele09/go-habit-session/internal/errors"
)

// DefaultRedisPrefix namespaces session keys in a shared redis
const DefaultRedisPrefix = "habits"

// RedisStore keeps records as plain strings under "<prefix>:<key>"
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ Backend = (*RedisStore)(nil)

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, errors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from redis: %w", s.redisKey(key), err)
	}
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.redisKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s in redis: %w", s.redisKey(key), err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s from redis: %w", s.redisKey(key), err)
	}
	return nil
}
