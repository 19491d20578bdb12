package cache

import (
	"context"
	"errors"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// redisClient implementa Client sobre go-redis. Pensado para cuando el
// gateway corre con más de una réplica y conviene compartir el cache de
// validaciones (una revocación invalida en todas).
type redisClient struct {
	prefix     string
	defaultTTL time.Duration
	inner      *rdb.Client
}

// NewRedis crea un cliente de cache Redis.
func NewRedis(cfg Config) (Client, error) {
	inner := rdb.NewClient(&rdb.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &redisClient{prefix: cfg.Prefix, defaultTTL: ttl, inner: inner}, nil
}

func (c *redisClient) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

func (c *redisClient) Get(ctx context.Context, key string) (string, error) {
	v, err := c.inner.Get(ctx, c.key(key)).Result()
	if err != nil {
		if errors.Is(err, rdb.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	return v, nil
}

func (c *redisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	return c.inner.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *redisClient) Delete(ctx context.Context, key string) error {
	return c.inner.Del(ctx, c.key(key)).Err()
}

func (c *redisClient) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx).Err()
}

func (c *redisClient) Close() error {
	return c.inner.Close()
}
