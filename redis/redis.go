package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis holds client state in Redis.
type Redis struct {
	cli *redis.Client
}

// Connect connects to the Redis server and pings the server to ensure the
// connection is working.
func Connect(ctx context.Context, addr, password string, db int) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{
		cli: cli,
	}, nil
}

// Close closes the connection.
func (r *Redis) Close() error {
	return r.cli.Close()
}

// KV returns a tier storing keys under namespace. A positive ttl makes
// entries expire that long after their last write, which suits the
// ephemeral tier.
func (r *Redis) KV(namespace string, ttl time.Duration) *KV {
	return &KV{cli: r.cli, namespace: namespace, ttl: ttl}
}

const keyPrefix = "chatsync"

// KV is a key-value tier in Redis. Each key is a hash holding the value and
// its write time, indexed by a sorted set per namespace.
type KV struct {
	cli       *redis.Client
	namespace string
	ttl       time.Duration
}

func (kv *KV) index() string {
	return fmt.Sprintf("%s:%s", keyPrefix, kv.namespace)
}

func (kv *KV) key(k string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, kv.namespace, k)
}

// Get returns the value stored at key.
func (kv *KV) Get(ctx context.Context, key string) (string, bool, error) {
	var e entry
	res := kv.cli.HGetAll(ctx, kv.key(key))
	if err := res.Err(); err != nil {
		return "", false, fmt.Errorf("hgetall: %w", err)
	}
	if len(res.Val()) == 0 {
		return "", false, nil
	}
	if err := res.Scan(&e); err != nil {
		return "", false, fmt.Errorf("scan %s: %w", key, err)
	}
	return e.Value, true, nil
}

// Set stores value at key and records the key in the namespace index.
func (kv *KV) Set(ctx context.Context, key, value string) error {
	e := &entry{Value: value, UpdatedAt: time.Now().UnixNano()}
	k := kv.key(key)

	err := kv.cli.Watch(ctx, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, e)
			if kv.ttl > 0 {
				pipe.Expire(ctx, k, kv.ttl)
			}
			pipe.ZAdd(ctx, kv.index(), redis.Z{
				Score:  float64(e.UpdatedAt),
				Member: key,
			})
			return nil
		})
		return err
	}, k)
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (kv *KV) Delete(ctx context.Context, key string) error {
	_, err := kv.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, kv.key(key))
		pipe.ZRem(ctx, kv.index(), key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Keys lists the keys of the namespace, oldest write first. Index entries
// whose hash has expired are pruned on the way.
func (kv *KV) Keys(ctx context.Context) ([]string, error) {
	members, err := kv.cli.ZRange(ctx, kv.index(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange: %w", err)
	}

	out := make([]string, 0, len(members))
	for _, m := range members {
		n, err := kv.cli.Exists(ctx, kv.key(m)).Result()
		if err != nil {
			return nil, fmt.Errorf("exists: %w", err)
		}
		if n == 0 {
			_ = kv.cli.ZRem(ctx, kv.index(), m).Err()
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
