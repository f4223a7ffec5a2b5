package kvstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis is a Store backed by a Redis server. A nil client is legal and
// behaves as an always-absent store, so callers can wire Redis optionally
// without branching.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	lg     *zap.Logger
}

// NewRedis wraps an existing client. ttl bounds how long entries survive;
// zero means no expiry.
func NewRedis(client *redis.Client, ttl time.Duration, lg *zap.Logger) *Redis {
	return &Redis{client: client, ttl: ttl, lg: lg}
}

// DialRedis connects to addr and verifies the connection with a short ping.
// It returns nil on failure so the caller can degrade to another store.
func DialRedis(addr, password string, db int) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil
	}
	return client
}

func (r *Redis) TryGet(ctx context.Context, key string) (string, bool) {
	if r.client == nil {
		return "", false
	}
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			r.lg.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return val, true
}

func (r *Redis) TrySet(ctx context.Context, key, value string) bool {
	if r.client == nil {
		return false
	}
	if err := r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		r.lg.Warn("redis set failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (r *Redis) TryDelete(ctx context.Context, key string) bool {
	if r.client == nil {
		return false
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.lg.Warn("redis del failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}
