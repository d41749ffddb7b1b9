package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient implementa Client usando Redis.
type redisClient struct {
	client redis.UniversalClient
	prefix string
	owned  bool
}

// NewRedis abre una conexión propia y verifica con PING.
func NewRedis(ctx context.Context, cfg Config) (*redisClient, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}
	return &redisClient{client: rdb, prefix: cfg.Prefix, owned: true}, nil
}

// FromRedis envuelve un cliente existente (p.ej. el mismo que usa el rate limiter).
// Close no cierra el cliente subyacente.
func FromRedis(client redis.UniversalClient, prefix string) *redisClient {
	return &redisClient{client: client, prefix: prefix}
}

func (c *redisClient) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, prefixed(c.prefix, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("cache: get: %w", err)
	}
	return val, nil
}

func (c *redisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, prefixed(c.prefix, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

func (c *redisClient) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, prefixed(c.prefix, key)).Err(); err != nil {
		return fmt.Errorf("cache: del: %w", err)
	}
	return nil
}

func (c *redisClient) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, prefixed(c.prefix, key)).Result()
	if err != nil {
		return false, fmt.Errorf("cache: exists: %w", err)
	}
	return n > 0, nil
}

func (c *redisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *redisClient) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}

func (c *redisClient) Stats(ctx context.Context) (Stats, error) {
	info, err := c.client.Info(ctx, "memory", "stats").Result()
	if err != nil {
		return Stats{}, fmt.Errorf("cache: info: %w", err)
	}
	keys, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("cache: dbsize: %w", err)
	}

	st := Stats{Driver: "redis", Keys: keys}
	for _, line := range strings.Split(info, "\r\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch k {
		case "used_memory_human":
			st.UsedMemory = v
		case "keyspace_hits":
			st.Hits, _ = strconv.ParseInt(v, 10, 64)
		case "keyspace_misses":
			st.Misses, _ = strconv.ParseInt(v, 10, 64)
		}
	}
	return st, nil
}
