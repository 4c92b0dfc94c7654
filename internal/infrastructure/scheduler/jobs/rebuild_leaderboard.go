// Package jobs contains the scheduled maintenance jobs of the progression service.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardRebuilder replaces the cached ranking of a metric.
type LeaderboardRebuilder interface {
	Rebuild(ctx context.Context, metric progression.LeaderboardMetric, entries []progression.LeaderboardEntry) error
}

// RebuildLeaderboardJob recomputes the all-time rankings from the store and
// overwrites the cached sorted sets, correcting drift left by missed events.
type RebuildLeaderboardJob struct {
	reader  progression.Reader
	cache   LeaderboardRebuilder
	metrics []progression.LeaderboardMetric
	log     *logger.Logger
}

// NewRebuildLeaderboardJob creates the job. An empty metrics list rebuilds
// every metric.
func NewRebuildLeaderboardJob(
	reader progression.Reader,
	cache LeaderboardRebuilder,
	log *logger.Logger,
	metrics ...progression.LeaderboardMetric,
) *RebuildLeaderboardJob {
	if log == nil {
		log = logger.Nop()
	}
	if len(metrics) == 0 {
		metrics = []progression.LeaderboardMetric{
			progression.MetricXP,
			progression.MetricCoins,
			progression.MetricLevel,
			progression.MetricStreak,
		}
	}
	return &RebuildLeaderboardJob{
		reader:  reader,
		cache:   cache,
		metrics: metrics,
		log:     log,
	}
}

// Name returns the job name.
func (j *RebuildLeaderboardJob) Name() string {
	return "rebuild_leaderboard"
}

// Description returns a human-readable description.
func (j *RebuildLeaderboardJob) Description() string {
	return "Recomputes all-time leaderboard caches from the progression store"
}

// Run rebuilds each metric. A failing metric does not stop the others.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	var errs []error
	for _, metric := range j.metrics {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		entries, err := j.reader.Leaderboard(ctx, progression.LeaderboardQuery{Metric: metric})
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", metric, err))
			continue
		}
		if err := j.cache.Rebuild(ctx, metric, entries); err != nil {
			errs = append(errs, fmt.Errorf("rebuild %s: %w", metric, err))
			continue
		}

		j.log.Debug("leaderboard rebuilt",
			logger.String("metric", string(metric)),
			logger.Int("entries", len(entries)),
			logger.Latency(time.Since(start)),
		)
	}
	return errors.Join(errs...)
}
