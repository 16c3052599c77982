package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "autohead:session:"

const (
	accessKey     = "access"
	refreshKey    = "refresh"
	privilegedKey = "is_superuser"
)

var _ Store = (*RedisStore)(nil)

// RedisStore persists the session in Redis so it outlives the process.
// Writes go through MULTI/EXEC so readers never observe half a record.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore builds a store under prefix. A zero ttl keeps the keys
// until Clear.
func NewRedisStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

func (s *RedisStore) keys() []string {
	return []string{s.key(accessKey), s.key(refreshKey), s.key(privilegedKey)}
}

func (s *RedisStore) Load(ctx context.Context) (Tokens, error) {
	vals, err := s.rdb.MGet(ctx, s.keys()...).Result()
	if err != nil {
		return Tokens{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	var t Tokens
	t.Access = stringValue(vals[0])
	t.Refresh = stringValue(vals[1])
	if priv := stringValue(vals[2]); priv != "" {
		t.Privileged, _ = strconv.ParseBool(priv)
	}
	return t, nil
}

func (s *RedisStore) Save(ctx context.Context, t Tokens) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(accessKey), t.Access, s.ttl)
		pipe.Set(ctx, s.key(refreshKey), t.Refresh, s.ttl)
		pipe.Set(ctx, s.key(privilegedKey), strconv.FormatBool(t.Privileged), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Rotate(ctx context.Context, access, refresh string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(accessKey), access, s.ttl)
		if refresh != "" {
			pipe.Set(ctx, s.key(refreshKey), refresh, s.ttl)
		} else if s.ttl > 0 {
			pipe.Expire(ctx, s.key(refreshKey), s.ttl)
		}
		if s.ttl > 0 {
			pipe.Expire(ctx, s.key(privilegedKey), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.keys()...).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
