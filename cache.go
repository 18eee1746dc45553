package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// cacheStore wraps an optional Redis client. With no client every read is a
// miss and writes are dropped, so the API works without Redis.
type cacheStore struct {
	rdb   *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

// newCacheStore connects to Redis when addr is set. A failed ping disables
// the cache instead of failing startup.
func newCacheStore(addr, password string, ttl time.Duration) *cacheStore {
	s := &cacheStore{ttl: ttl}
	if addr == "" {
		logger.Info("redis not configured, stats cache and token revocation disabled")
		return s
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis connection failed, cache disabled", zap.String("addr", addr), zap.Error(err))
		_ = rdb.Close()
		return s
	}
	logger.Info("redis connected", zap.String("addr", addr))
	s.rdb = rdb
	return s
}

func (s *cacheStore) enabled() bool { return s.rdb != nil }

func (s *cacheStore) close() error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// sharedFetchTimeout bounds a coalesced fetch, which no longer follows any
// single caller's context.
const sharedFetchTimeout = 15 * time.Second

// loadCached returns the value cached under key, or runs fetch and caches the
// result. Concurrent misses for the same key share one fetch. The shared fetch
// runs detached from the caller that started it, so one caller going away
// does not fail the others; each caller still stops waiting on its own ctx.
func loadCached[T any](ctx context.Context, s *cacheStore, key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if s.rdb != nil {
		data, err := s.rdb.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var v T
			if jsonErr := json.Unmarshal(data, &v); jsonErr == nil {
				return v, nil
			}
			logger.Warn("discarding undecodable cache entry", zap.String("key", key))
		case !errors.Is(err, redis.Nil):
			logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	ch := s.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		v, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		s.store(fctx, key, v)
		return v, nil
	})
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

// store writes v under key as JSON. Failures only cost a later cache miss.
func (s *cacheStore) store(ctx context.Context, key string, v any) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(v)
	if err == nil {
		err = s.rdb.Set(ctx, key, data, s.ttl).Err()
	}
	if err != nil {
		logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// invalidate deletes keys. Failures are logged; stale entries expire with the TTL.
func (s *cacheStore) invalidate(ctx context.Context, keys ...string) {
	if s.rdb == nil || len(keys) == 0 {
		return
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		logger.Warn("cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func trainerStatsKey(trainerID int) string {
	return fmt.Sprintf("dashboard:trainer:%d", trainerID)
}

func revokedTokenKey(jti string) string {
	return "auth:revoked:" + jti
}

// revokeToken marks a token ID as revoked until the token would have expired anyway.
func (s *cacheStore) revokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if s.rdb == nil || jti == "" {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, revokedTokenKey(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// isTokenRevoked reports whether jti was revoked. Redis errors are returned
// so the caller decides how to treat an unavailable cache.
func (s *cacheStore) isTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if s.rdb == nil || jti == "" {
		return false, nil
	}
	n, err := s.rdb.Exists(ctx, revokedTokenKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}
