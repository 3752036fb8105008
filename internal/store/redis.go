package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultDialTimeout = 5 * time.Second

// RedisConfig configures a topology-agnostic Redis connection.
type RedisConfig struct {
	Addrs    []string
	Password string
	DB       int
}

// incrementCappedScript checks and increments in one round trip so two
// instances cannot both admit the request that crosses the limit.
// Returns {count, allowed, pttl_ms}.
var incrementCappedScript = goredis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
if count >= limit then
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl < 0 then
    redis.call('PEXPIRE', KEYS[1], window)
    ttl = window
  end
  return {count, 0, ttl}
end
count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], window)
  ttl = window
end
return {count, 1, ttl}
`)

// Redis is a Store backed by a Redis deployment.
type Redis struct {
	client goredis.UniversalClient
}

// NewRedisClient connects to Redis and verifies the connection.
// A single address yields a standalone client, several a cluster client.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (goredis.UniversalClient, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("at least one redis address is required")
	}

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        cfg.Addrs,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultDialTimeout,
		WriteTimeout: defaultDialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// NewRedis wraps an existing client.
func NewRedis(client goredis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// DeletePrefix scans for matching keys and deletes them. On a cluster every
// master is scanned, and keys are deleted one per command since a multi-key
// DEL must stay within a single hash slot.
func (r *Redis) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	cluster, ok := r.client.(*goredis.ClusterClient)
	if !ok {
		return deleteMatching(ctx, r.client, prefix, false)
	}

	var mu sync.Mutex
	removed := 0
	err := cluster.ForEachMaster(ctx, func(ctx context.Context, node *goredis.Client) error {
		n, err := deleteMatching(ctx, node, prefix, true)
		mu.Lock()
		removed += n
		mu.Unlock()
		return err
	})
	return removed, err
}

// deleteMatching scans one node for prefix* and deletes in batches of 200,
// as a single DEL or as pipelined single-key DELs when perKey is set.
func deleteMatching(ctx context.Context, client goredis.UniversalClient, prefix string, perKey bool) (int, error) {
	iter := client.Scan(ctx, 0, prefix+"*", 200).Iterator()

	removed := 0
	batch := make([]string, 0, 200)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		defer func() { batch = batch[:0] }()

		if !perKey {
			n, err := client.Del(ctx, batch...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
			removed += int(n)
			return nil
		}

		cmds, err := client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
			for _, key := range batch {
				pipe.Del(ctx, key)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to delete keys: %w", err)
		}
		for _, cmd := range cmds {
			if del, ok := cmd.(*goredis.IntCmd); ok {
				removed += int(del.Val())
			}
		}
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan %s*: %w", prefix, err)
	}
	if err := flush(); err != nil {
		return removed, err
	}
	return removed, nil
}

func (r *Redis) IncrementCapped(ctx context.Context, key string, limit int, window time.Duration) (Hit, error) {
	vals, err := incrementCappedScript.Run(ctx, r.client, []string{key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Hit{}, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	if len(vals) != 3 {
		return Hit{}, fmt.Errorf("unexpected script reply for %s: %v", key, vals)
	}
	return Hit{
		Count:   int(vals[0]),
		Allowed: vals[1] == 1,
		ResetIn: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
