package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"schooladmin/internal/metrics"
)

// DefaultLoadTimeout bounds a shared load when Query.LoadTimeout is unset.
const DefaultLoadTimeout = 30 * time.Second

// Query is a read-through layer over a Cache. Concurrent loads of the same
// key collapse into one upstream request.
type Query struct {
	Cache Cache
	TTL   time.Duration
	Log   *zap.Logger
	// LoadTimeout bounds a shared load. The load outlives the caller that
	// started it, so a cancelled caller never fails the others waiting on it.
	LoadTimeout time.Duration

	group singleflight.Group
}

// NewQuery wraps c. A nil c disables caching.
func NewQuery(c Cache, ttl time.Duration, log *zap.Logger) *Query {
	if log == nil {
		log = zap.NewNop()
	}
	return &Query{Cache: c, TTL: ttl, Log: log}
}

// Invalidate drops everything cached under prefix.
func (q *Query) Invalidate(ctx context.Context, prefix string) error {
	if q == nil || q.Cache == nil {
		return nil
	}
	metrics.CacheInvalidations.Inc()
	q.Log.Debug("cache invalidated", zap.String("prefix", prefix))
	return q.Cache.Invalidate(ctx, prefix)
}

// Remember returns the cached value for key or calls load and caches its
// result. Errors from load are never cached.
func Remember[T any](ctx context.Context, q *Query, key string, load func(context.Context) (T, error)) (T, error) {
	if q == nil || q.Cache == nil {
		return load(ctx)
	}

	raw, err := q.Cache.Get(ctx, key)
	switch {
	case err == nil:
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return v, nil
		}
		q.Log.Warn("cache entry undecodable", zap.String("key", key))
	case errors.Is(err, ErrMiss):
	default:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		q.Log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	ch := q.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.loadTimeout())
		defer cancel()
		v, err := load(lctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(v); err == nil {
			if err := q.Cache.Set(lctx, key, raw, q.TTL); err != nil {
				q.Log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
			}
		}
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (q *Query) loadTimeout() time.Duration {
	if q.LoadTimeout > 0 {
		return q.LoadTimeout
	}
	return DefaultLoadTimeout
}
