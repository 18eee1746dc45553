package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheStore_DisabledWithoutAddr(t *testing.T) {
	s := newCacheStore("", "", time.Minute)
	assert.False(t, s.enabled())
	assert.NoError(t, s.close())
}

func TestLoadCached_DisabledAlwaysFetches(t *testing.T) {
	s := &cacheStore{}
	calls := 0
	fetch := func(context.Context) (trainerStats, error) {
		calls++
		return trainerStats{TotalClients: calls}, nil
	}

	first, err := loadCached(context.Background(), s, trainerStatsKey(1), fetch)
	require.NoError(t, err)
	second, err := loadCached(context.Background(), s, trainerStatsKey(1), fetch)
	require.NoError(t, err)

	assert.Equal(t, 1, first.TotalClients)
	assert.Equal(t, 2, second.TotalClients)
	assert.Equal(t, 2, calls)
}

func TestLoadCached_PropagatesFetchError(t *testing.T) {
	s := &cacheStore{}
	boom := errors.New("boom")

	v, err := loadCached(context.Background(), s, "k", func(context.Context) (int, error) {
		return 7, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, v)
}

func TestCacheStore_DisabledRevocation(t *testing.T) {
	s := &cacheStore{}
	ctx := context.Background()

	require.NoError(t, s.revokeToken(ctx, "jti-1", time.Now().Add(time.Hour)))
	revoked, err := s.isTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	// invalidate on a disabled cache is a no-op
	s.invalidate(ctx, trainerStatsKey(1))
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "dashboard:trainer:12", trainerStatsKey(12))
	assert.Equal(t, "auth:revoked:abc", revokedTokenKey("abc"))
}

// newRedisCache returns a cache backed by an in-process Redis.
func newRedisCache(t *testing.T) (*cacheStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := newCacheStore(mr.Addr(), "", time.Minute)
	require.True(t, s.enabled())
	t.Cleanup(func() { _ = s.close() })
	return s, mr
}

func TestCacheStore_UnreachableRedisDisables(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	s := newCacheStore(addr, "", time.Minute)
	assert.False(t, s.enabled())
}

func TestLoadCached_HitSkipsFetch(t *testing.T) {
	s, mr := newRedisCache(t)
	ctx := context.Background()
	key := trainerStatsKey(3)
	calls := 0
	fetch := func(context.Context) (trainerStats, error) {
		calls++
		return trainerStats{TotalClients: 5, RecentClients: []user{}}, nil
	}

	first, err := loadCached(ctx, s, key, fetch)
	require.NoError(t, err)
	second, err := loadCached(ctx, s, key, fetch)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 5, second.TotalClients)
	assert.Equal(t, first.TotalClients, second.TotalClients)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))
}

func TestLoadCached_InvalidateForcesRefetch(t *testing.T) {
	s, mr := newRedisCache(t)
	ctx := context.Background()
	key := trainerStatsKey(4)
	calls := 0
	fetch := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	v, err := loadCached(ctx, s, key, fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	s.invalidate(ctx, key)
	assert.False(t, mr.Exists(key))

	v, err = loadCached(ctx, s, key, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, calls)
}

func TestLoadCached_UndecodableEntryRefetches(t *testing.T) {
	s, mr := newRedisCache(t)
	key := trainerStatsKey(5)
	require.NoError(t, mr.Set(key, "{not json"))

	v, err := loadCached(context.Background(), s, key, func(context.Context) (trainerStats, error) {
		return trainerStats{TotalClients: 9}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 9, v.TotalClients)

	// The bad entry is replaced with a decodable one.
	stored, err := mr.Get(key)
	require.NoError(t, err)
	assert.Contains(t, stored, `"total_clients":9`)
}

func TestLoadCached_SharedFetchSurvivesFirstCaller(t *testing.T) {
	s := &cacheStore{}
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		<-release
		return 42, ctx.Err()
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := loadCached(ctxA, s, "shared", fetch)
		errA <- err
	}()
	<-started

	// The first caller gives up; its fetch keeps running for everyone else.
	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	time.AfterFunc(20*time.Millisecond, func() { close(release) })
	v, err := loadCached(context.Background(), s, "shared", fetch)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoadCached_CallerStopsWaitingOnOwnContext(t *testing.T) {
	s := &cacheStore{}
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := loadCached(ctx, s, "slow", func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCacheStore_Revocation(t *testing.T) {
	s, mr := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, s.revokeToken(ctx, "jti-2", time.Now().Add(30*time.Minute)))
	revoked, err := s.isTokenRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl := mr.TTL(revokedTokenKey("jti-2"))
	assert.Greater(t, ttl, 29*time.Minute)
	assert.LessOrEqual(t, ttl, 30*time.Minute)

	// Already-expired tokens need no entry.
	require.NoError(t, s.revokeToken(ctx, "jti-3", time.Now().Add(-time.Minute)))
	assert.False(t, mr.Exists(revokedTokenKey("jti-3")))

	// Entries lapse with the token.
	mr.FastForward(31 * time.Minute)
	revoked, err = s.isTokenRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestTrainerStatsKeys(t *testing.T) {
	assert.Empty(t, trainerStatsKeys())
	assert.Empty(t, trainerStatsKeys(nil, nil))
	assert.Equal(t, []string{"dashboard:trainer:2", "dashboard:trainer:7"},
		trainerStatsKeys(ptr(2), nil, ptr(7), ptr(2)))
}
