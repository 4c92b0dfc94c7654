package redis

import (
	"context"
	"errors"
	"time"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
)

// SnapshotCache stores progression snapshots keyed by student id.
type SnapshotCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewSnapshotCache creates a SnapshotCache. A non-positive ttl selects TTLSnapshot.
func NewSnapshotCache(cache *Cache, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = TTLSnapshot
	}
	return &SnapshotCache{cache: cache, ttl: ttl}
}

func (s *SnapshotCache) key(studentID string) string {
	return s.cache.Key(PrefixSnapshot, studentID)
}

// GetSnapshot returns the cached snapshot, or nil on a miss.
func (s *SnapshotCache) GetSnapshot(ctx context.Context, studentID string) (*progression.Snapshot, error) {
	var snap progression.Snapshot
	err := s.cache.Get(ctx, s.key(studentID), &snap)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// SetSnapshot stores a snapshot.
func (s *SnapshotCache) SetSnapshot(ctx context.Context, snap *progression.Snapshot) error {
	if snap == nil {
		return nil
	}
	return s.cache.Set(ctx, s.key(snap.StudentID), snap, s.ttl)
}

// InvalidateSnapshot drops the cached snapshot of a student.
func (s *SnapshotCache) InvalidateSnapshot(ctx context.Context, studentID string) error {
	return s.cache.Delete(ctx, s.key(studentID))
}
