package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "studycal:cache:"

// Redis stores entries as JSON strings with a TTL. Each user has an index
// set of their keys so InvalidateUser does not need SCAN.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to redisURL and pings it.
func NewRedis(redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: connect redis: %w", err)
	}
	return NewRedisClient(client, ttl), nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func redisKey(k Key) string { return keyPrefix + k.String() }
func indexKey(user string) string { return keyPrefix + user + ":keys" }

func (r *Redis) Get(ctx context.Context, key Key, dst any) (bool, error) {
	data, err := r.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	pipe := r.client.TxPipeline()
	r.queueSet(ctx, pipe, key, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// queueSet queues the entry write and its index update. The index set
// expires with the newest entry so it never outlives the keys it lists.
func (r *Redis) queueSet(ctx context.Context, pipe redis.Pipeliner, key Key, data []byte) []redis.Cmder {
	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}
	idx := indexKey(key.UserID)
	cmds := []redis.Cmder{
		pipe.Set(ctx, redisKey(key), data, ttl),
		pipe.SAdd(ctx, idx, redisKey(key)),
	}
	if ttl > 0 {
		cmds = append(cmds, pipe.Expire(ctx, idx, ttl))
	}
	return cmds
}

func (r *Redis) Invalidate(ctx context.Context, key Key) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, redisKey(key))
	pipe.SRem(ctx, indexKey(key.UserID), redisKey(key))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: invalidate %s: %w", key, err)
	}
	return nil
}

func (r *Redis) InvalidateUser(ctx context.Context, userID string) error {
	idx := indexKey(userID)
	keys, err := r.client.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("cache: list keys for %s: %w", userID, err)
	}
	keys = append(keys, idx)
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: invalidate user %s: %w", userID, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
