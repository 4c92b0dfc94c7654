package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache keeps the all-time rankings in Redis sorted sets.
//
// Layout:
//   - Sorted set "leaderboard:{metric}" stores studentID -> -value
//   - String "leaderboard:{metric}:ready" marks a fully built set
//   - Hash "leaderboard:info" stores studentID -> display name and level
//
// Scores are negated so that ZRANGE yields the highest value first and
// breaks ties by ascending student id, the same order the store uses.
// Windowed periods are not cached.
type LeaderboardCache struct {
	cache *Cache
}

// NewLeaderboardCache creates a new LeaderboardCache instance.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{cache: cache}
}

type leaderboardInfo struct {
	DisplayName string `json:"display_name"`
	Level       int    `json:"level"`
}

func (l *LeaderboardCache) setKey(metric progression.LeaderboardMetric) string {
	return l.cache.Key(PrefixLeaderboard, string(metric))
}

func (l *LeaderboardCache) readyKey(metric progression.LeaderboardMetric) string {
	return l.cache.Key(PrefixLeaderboard, string(metric), ":ready")
}

func (l *LeaderboardCache) infoKey() string {
	return l.cache.Key(PrefixLeaderboard, "info")
}

func metricValue(s *progression.Student, metric progression.LeaderboardMetric) int64 {
	switch metric {
	case progression.MetricXP:
		return s.XP
	case progression.MetricCoins:
		return s.LifetimeCoins
	case progression.MetricLevel:
		return int64(s.Level)
	case progression.MetricStreak:
		return int64(s.CurrentStreak)
	default:
		return 0
	}
}

var allMetrics = []progression.LeaderboardMetric{
	progression.MetricXP,
	progression.MetricCoins,
	progression.MetricLevel,
	progression.MetricStreak,
}

// ──────────────────────────────────────────────────────────────────────────────
// Writes
// ──────────────────────────────────────────────────────────────────────────────

// UpdateStudent writes a student's current values into every metric set.
func (l *LeaderboardCache) UpdateStudent(ctx context.Context, s *progression.Student) error {
	if s == nil || s.ID == "" {
		return ErrCacheKeyEmpty
	}

	info, err := json.Marshal(leaderboardInfo{DisplayName: s.DisplayName, Level: s.Level})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	pipe := l.cache.Client().Pipeline()
	for _, m := range allMetrics {
		pipe.ZAdd(ctx, l.setKey(m), redis.Z{Score: -float64(metricValue(s, m)), Member: s.ID})
	}
	pipe.HSet(ctx, l.infoKey(), s.ID, info)
	return l.exec(ctx, pipe)
}

func (l *LeaderboardCache) exec(ctx context.Context, pipe redis.Pipeliner) error {
	return l.cache.Do(ctx, func(ctx context.Context) error {
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Rebuild replaces the set of a metric with a full ranking and marks it ready.
func (l *LeaderboardCache) Rebuild(ctx context.Context, metric progression.LeaderboardMetric, entries []progression.LeaderboardEntry) error {
	setKey := l.setKey(metric)

	pipe := l.cache.Client().TxPipeline()
	pipe.Del(ctx, setKey)

	if len(entries) > 0 {
		members := make([]redis.Z, 0, len(entries))
		info := make(map[string]interface{}, len(entries))
		for _, e := range entries {
			if e.StudentID == "" {
				continue
			}
			members = append(members, redis.Z{Score: -float64(e.Value), Member: e.StudentID})
			data, err := json.Marshal(leaderboardInfo{DisplayName: e.DisplayName, Level: e.Level})
			if err != nil {
				return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
			}
			info[e.StudentID] = data
		}
		if len(members) > 0 {
			pipe.ZAdd(ctx, setKey, members...)
			pipe.HSet(ctx, l.infoKey(), info)
			pipe.Expire(ctx, setKey, TTLLeaderboard)
			pipe.Expire(ctx, l.infoKey(), TTLLeaderboard)
		}
	}
	pipe.Set(ctx, l.readyKey(metric), "1", TTLLeaderboard)
	return l.exec(ctx, pipe)
}

// Invalidate drops the ready markers so the next read rebuilds from the store.
func (l *LeaderboardCache) Invalidate(ctx context.Context) error {
	keys := make([]string, 0, len(allMetrics))
	for _, m := range allMetrics {
		keys = append(keys, l.readyKey(m))
	}
	return l.cache.Delete(ctx, keys...)
}

// ──────────────────────────────────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────────────────────────────────

func (l *LeaderboardCache) ready(ctx context.Context, metric progression.LeaderboardMetric) (bool, error) {
	n, err := l.cache.Client().Exists(ctx, l.readyKey(metric)).Result()
	return n > 0, err
}

// Top returns the first limit entries of a metric. limit <= 0 returns all.
// Returns ErrCacheMiss when the set has not been built.
func (l *LeaderboardCache) Top(ctx context.Context, metric progression.LeaderboardMetric, limit int) ([]progression.LeaderboardEntry, error) {
	var entries []progression.LeaderboardEntry
	err := l.cache.Do(ctx, func(ctx context.Context) error {
		var err error
		entries, err = l.top(ctx, metric, limit)
		return err
	})
	return entries, err
}

func (l *LeaderboardCache) top(ctx context.Context, metric progression.LeaderboardMetric, limit int) ([]progression.LeaderboardEntry, error) {
	ok, err := l.ready(ctx, metric)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCacheMiss
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	members, err := l.cache.Client().ZRangeWithScores(ctx, l.setKey(metric), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []progression.LeaderboardEntry{}, nil
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i], _ = m.Member.(string)
	}
	infos, err := l.cache.Client().HMGet(ctx, l.infoKey(), ids...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]progression.LeaderboardEntry, len(members))
	for i, m := range members {
		entries[i] = progression.LeaderboardEntry{
			Rank:      i + 1,
			StudentID: ids[i],
			Value:     int64(-m.Score),
		}
		if raw, ok := infos[i].(string); ok {
			var info leaderboardInfo
			if json.Unmarshal([]byte(raw), &info) == nil {
				entries[i].DisplayName = info.DisplayName
				entries[i].Level = info.Level
			}
		}
	}
	return entries, nil
}

// Rank returns the 1-based position of a student, 0 if absent.
// Returns ErrCacheMiss when the set has not been built.
func (l *LeaderboardCache) Rank(ctx context.Context, metric progression.LeaderboardMetric, studentID string) (int, error) {
	var rank int
	err := l.cache.Do(ctx, func(ctx context.Context) error {
		var err error
		rank, err = l.rank(ctx, metric, studentID)
		return err
	})
	return rank, err
}

func (l *LeaderboardCache) rank(ctx context.Context, metric progression.LeaderboardMetric, studentID string) (int, error) {
	ok, err := l.ready(ctx, metric)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrCacheMiss
	}

	rank, err := l.cache.Client().ZRank(ctx, l.setKey(metric), studentID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int(rank) + 1, nil
}
