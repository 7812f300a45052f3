package tilecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vk/tilegate/internal/tile"
)

const keyPrefix = "tilegate:tile:"

// Redis stores tiles in Redis so several gateway replicas share renders.
type Redis struct {
	rdb goredis.Cmdable
}

// NewRedis wraps an existing client.
func NewRedis(rdb goredis.Cmdable) *Redis {
	return &Redis{rdb: rdb}
}

// NewRedisClient creates a client from a URL (e.g. "redis://localhost:6379/0")
// and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// Get returns a cached tile on hit.
func (r *Redis) Get(ctx context.Context, key string) (*tile.Result, bool, error) {
	data, err := r.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis tile cache GET failed: %w", err)
	}
	res, err := decode(data)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

// Set stores a tile for ttl.
func (r *Redis) Set(ctx context.Context, key string, res *tile.Result, ttl time.Duration) error {
	data, err := encode(res)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis tile cache SET failed: %w", err)
	}
	return nil
}
