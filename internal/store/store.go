package store

import (
	"context"
	"time"
)

// Store is the TTL-bounded key-value persistence used for room info, match
// snapshots, locks and liveness keys. The production implementation is Redis;
// tests use the in-memory implementation.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SPop(ctx context.Context, key string) (string, bool, error)
	SCard(ctx context.Context, key string) (int64, error)
	SRem(ctx context.Context, key string, members ...string) error

	Scan(ctx context.Context, pattern string) ([]string, error)
}
