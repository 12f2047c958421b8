package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces cache keys in a shared Redis database.
const DefaultRedisPrefix = "nftdash:dataset:"

// RedisBackend stores each entry as a JSON string under a prefixed key.
type RedisBackend struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisBackend connects to Redis and pings it.
func NewRedisBackend(ctx context.Context, addr, password string, db int) (*RedisBackend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBackend{rdb: rdb, prefix: DefaultRedisPrefix}, nil
}

// Close releases the Redis connection pool.
func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}

func (b *RedisBackend) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := b.rdb.Get(ctx, b.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting cache entry %s: %w", key, err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("parsing cache entry %s: %w", key, err)
	}
	return &e, nil
}

func (b *RedisBackend) Put(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", entry.Key, err)
	}
	if err := b.rdb.Set(ctx, b.prefix+entry.Key, data, 0).Err(); err != nil {
		return fmt.Errorf("saving cache entry %s: %w", entry.Key, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	n, err := b.rdb.Del(ctx, b.prefix+key).Result()
	if err != nil {
		return fmt.Errorf("deleting cache entry %s: %w", key, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *RedisBackend) List(ctx context.Context) ([]Info, error) {
	var infos []Info
	iter := b.rdb.Scan(ctx, 0, b.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		redisKey := iter.Val()
		data, err := b.rdb.Get(ctx, redisKey).Bytes()
		if err != nil {
			continue
		}
		info := Info{Key: strings.TrimPrefix(redisKey, b.prefix), Size: int64(len(data))}
		var e Entry
		if json.Unmarshal(data, &e) == nil {
			info.ModifiedAt = e.WrittenAt
			info.RecordCount = recordCount(e.Payload)
		}
		infos = append(infos, info)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning cache keys: %w", err)
	}
	return infos, nil
}
