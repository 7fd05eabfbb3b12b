package redisstore

import (
	"context"

	redis "github.com/redis/go-redis/v9"
)

// Client abstracts the minimal surface the store needs from a Redis client.
// GoRedisClient wraps github.com/redis/go-redis/v9; tests use an in-memory
// fake.
type Client interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) (any, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, values map[string]string) error
	Del(ctx context.Context, keys ...string) error
}

// GoRedisClient implements Client with go-redis.
// Use NewGoRedisClient to construct it with an address like "127.0.0.1:6379".
type GoRedisClient struct{ c *redis.Client }

// NewGoRedisClient connects lazily to addr.
func NewGoRedisClient(addr string) *GoRedisClient {
	return &GoRedisClient{c: redis.NewClient(&redis.Options{Addr: addr})}
}

// Eval runs a Lua script.
func (g *GoRedisClient) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}

// HGetAll returns every field of a hash, empty if the key is missing.
func (g *GoRedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return g.c.HGetAll(ctx, key).Result()
}

// HSet writes hash fields.
func (g *GoRedisClient) HSet(ctx context.Context, key string, values map[string]string) error {
	args := make([]any, 0, len(values)*2)
	for k, v := range values {
		args = append(args, k, v)
	}
	return g.c.HSet(ctx, key, args...).Err()
}

// Del removes keys.
func (g *GoRedisClient) Del(ctx context.Context, keys ...string) error {
	return g.c.Del(ctx, keys...).Err()
}

// Ping checks connectivity.
func (g *GoRedisClient) Ping(ctx context.Context) error {
	return g.c.Ping(ctx).Err()
}

// Close releases the connection pool.
func (g *GoRedisClient) Close() error {
	return g.c.Close()
}
