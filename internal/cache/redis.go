package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatch bounds how many keys one SCAN round and one DEL carry.
const scanBatch = 200

// Redis is a cache shared by every dashboard instance.
type Redis struct {
	Client    *redis.Client
	Namespace string
}

// NewRedis connects to redis with short timeouts. Keys are stored under namespace.
func NewRedis(addr, namespace string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	if namespace == "" {
		namespace = "schooladmin"
	}
	return &Redis{Client: client, Namespace: namespace}
}

func (r *Redis) key(k string) string {
	return r.Namespace + ":" + k
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.Client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: redis get: %w", err)
	}
	return val, nil
}

func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := r.Client.Set(ctx, r.key(key), val, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

// Invalidate walks the prefix with SCAN and deletes matches in batches.
func (r *Redis) Invalidate(ctx context.Context, prefix string) error {
	iter := r.Client.Scan(ctx, 0, r.key(prefix)+":*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.Client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("cache: redis del: %w", err)
		}
		batch = batch[:0]
		return nil
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache: redis scan: %w", err)
	}
	return flush()
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

func (r *Redis) Close() error {
	return r.Client.Close()
}
