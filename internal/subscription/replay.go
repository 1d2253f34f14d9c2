package subscription

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard remembers consumed confirmation tokens.
type ReplayGuard interface {
	// Consume records token and reports whether this is its first use.
	Consume(ctx context.Context, token string, ttl time.Duration) (bool, error)
	// Release forgets a consumed token so it can be used again.
	Release(ctx context.Context, token string) error
}

// RedisReplayGuard keeps consumed tokens in Redis until they would have
// expired anyway.
type RedisReplayGuard struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisReplayGuard(rdb *redis.Client, prefix string) *RedisReplayGuard {
	if prefix == "" {
		prefix = "herald:token:"
	}
	return &RedisReplayGuard{rdb: rdb, prefix: prefix}
}

func (g *RedisReplayGuard) Consume(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	return g.rdb.SetNX(ctx, g.key(token), 1, ttl).Result()
}

func (g *RedisReplayGuard) Release(ctx context.Context, token string) error {
	return g.rdb.Del(ctx, g.key(token)).Err()
}

func (g *RedisReplayGuard) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return g.prefix + hex.EncodeToString(sum[:])
}
