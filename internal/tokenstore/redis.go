package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces session keys in Redis.
const keyPrefix = "mailsearch:session:"

// Redis is a Store backed by Redis, for multi-process deployments where
// sessions must survive restarts.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis creates a Redis-backed store and verifies connectivity.
func NewRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Redis{rdb: rdb, ttl: ttl}, nil
}

func (r *Redis) Set(ctx context.Context, token string, userID int64) error {
	if err := r.rdb.Set(ctx, keyPrefix+token, userID, r.ttl).Err(); err != nil {
		return fmt.Errorf("session SET: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, token string) (int64, bool, error) {
	userID, err := r.rdb.Get(ctx, keyPrefix+token).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("session GET: %w", err)
	}
	return userID, true, nil
}

func (r *Redis) Revoke(ctx context.Context, token string) error {
	if err := r.rdb.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("session DEL: %w", err)
	}
	return nil
}

// RevokeAll scans and deletes every session key.
func (r *Redis) RevokeAll(ctx context.Context) error {
	iter := r.rdb.Scan(ctx, 0, keyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		if err := r.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("session DEL: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("session SCAN: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
