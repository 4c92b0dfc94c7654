package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/pkg/circuitbreaker"
)

// unreachableCache points at a closed port so every call fails quickly.
func unreachableCache(t *testing.T, threshold int) *Cache {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	cb := circuitbreaker.CacheBreaker("redis", threshold, time.Minute, isCacheOutcome, nil)
	return NewCacheFromClient(client, "test:").WithBreaker(cb)
}

func TestCache_Key(t *testing.T) {
	c := NewCacheFromClient(nil, "progression:")
	assert.Equal(t, "progression:snapshot:s1", c.Key(PrefixSnapshot, "s1"))
	assert.Equal(t, "progression:leaderboard:xp:ready", NewLeaderboardCache(c).readyKey(progression.MetricXP))
}

func TestCache_EmptyKey(t *testing.T) {
	c := unreachableCache(t, 1)
	var v string
	assert.ErrorIs(t, c.Get(context.Background(), "", &v), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Set(context.Background(), "", "x", time.Minute), ErrCacheKeyEmpty)
	assert.NoError(t, c.Delete(context.Background()))
}

func TestCache_BreakerFailsFast(t *testing.T) {
	ctx := context.Background()
	c := unreachableCache(t, 2)

	var v string
	for i := 0; i < 2; i++ {
		err := c.Get(ctx, c.Key("k"), &v)
		require.Error(t, err)
		assert.False(t, circuitbreaker.IsRejected(err), "attempt %d reaches redis", i)
	}

	assert.ErrorIs(t, c.Get(ctx, c.Key("k"), &v), circuitbreaker.ErrCircuitOpen)

	_, err := NewSnapshotCache(c, 0).GetSnapshot(ctx, "s1")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)

	boards := NewLeaderboardCache(c)
	_, err = boards.Top(ctx, progression.MetricXP, 10)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	_, err = boards.Rank(ctx, progression.MetricXP, "s1")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.ErrorIs(t, boards.Rebuild(ctx, progression.MetricXP, nil), circuitbreaker.ErrCircuitOpen)
}

func TestIsCacheOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrCacheMiss, true},
		{ErrCacheKeyEmpty, true},
		{ErrCacheSerialization, true},
		{redis.Nil, true},
		{context.Canceled, true},
		{ErrCacheConnection, false},
		{context.DeadlineExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, isCacheOutcome(tt.err))
		})
	}
}
