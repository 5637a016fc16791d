package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/shpitdev/contact-enricher/internal/resilience/retry"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
}

// Redis is a Store shared between enricher instances.
type Redis struct {
	rdb    *redis.Client
	prefix string
	exec   *retry.Executor
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig, exec *retry.Executor) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisFromClient(rdb, cfg.Prefix, exec), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(rdb *redis.Client, prefix string, exec *retry.Executor) *Redis {
	if prefix == "" {
		prefix = "enricher:"
	}
	if exec == nil {
		exec = retry.NewExecutor()
	}
	return &Redis{rdb: rdb, prefix: prefix, exec: exec}
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := retry.Execute(ctx, r.exec, retry.Database(), "cache.get", retry.Idempotent(func(ctx context.Context) ([]byte, error) {
		b, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return b, err
	}))
	if err != nil {
		return false, err
	}
	if b == nil {
		return false, nil
	}
	if err := msgpack.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("cache: decode %q: %w", key, err)
	}
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	_, err = retry.Execute(ctx, r.exec, retry.Database(), "cache.set", retry.Idempotent(func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.rdb.Set(ctx, r.prefix+key, b, ttl).Err()
	}))
	return err
}
