package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig addresses the Redis instance holding the token cache.
type RedisConfig struct {
	Addr     string
	DB       int
	Password string
	// Prefix namespaces the keys, "moneta" when empty.
	Prefix string
	// EntryTTL bounds how long blacklist and live-token entries survive.
	// Entries older than the token lifetime can never matter again.
	EntryTTL time.Duration
}

// RedisBackend stores each cache table under "<prefix>:<table>:<key>".
type RedisBackend struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisBackend dials lazily; call Ping to check connectivity.
func NewRedisBackend(cfg RedisConfig) *RedisBackend {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	return NewRedisBackendFromClient(rdb, cfg.Prefix, cfg.EntryTTL)
}

func NewRedisBackendFromClient(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = "moneta"
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisBackend{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func (b *RedisBackend) Close() error {
	if b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

// Table always succeeds: Redis tables are key prefixes and exist implicitly.
func (b *RedisBackend) Table(name string) Table {
	if b == nil || b.rdb == nil {
		return nil
	}
	return &redisTable{rdb: b.rdb, prefix: b.prefix + ":" + name + ":", ttl: b.ttl}
}

type redisTable struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func (t *redisTable) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := t.rdb.Get(ctx, t.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (t *redisTable) Put(ctx context.Context, key, value string) error {
	return t.rdb.Set(ctx, t.prefix+key, value, t.ttl).Err()
}

func (t *redisTable) Delete(ctx context.Context, key string) error {
	return t.rdb.Del(ctx, t.prefix+key).Err()
}

// Swap uses SET ... GET so replacement and read of the old value are one command.
func (t *redisTable) Swap(ctx context.Context, key, value string) (string, bool, error) {
	old, err := t.rdb.SetArgs(ctx, t.prefix+key, value, redis.SetArgs{TTL: t.ttl, Get: true}).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return old, true, nil
}
