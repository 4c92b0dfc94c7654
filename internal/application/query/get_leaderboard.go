package query

import (
	"context"
	"time"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/domain/shared"
	"github.com/codequest-jr/progression-hub/pkg/logger"
	"github.com/codequest-jr/progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Ranks students by xp, coins, level or streak. XP and coins can be ranked
// over the current week or month; those windows sum the rewards of the
// completions made since the window started.
// ══════════════════════════════════════════════════════════════════════════════

// Leaderboard limits.
const (
	DefaultLeaderboardLimit = 20
	MaxLeaderboardLimit     = 100
)

// GetLeaderboardQuery contains the parameters of a leaderboard request.
type GetLeaderboardQuery struct {
	// Metric defaults to xp.
	Metric progression.LeaderboardMetric

	// Period defaults to all_time.
	Period progression.LeaderboardPeriod

	// Limit defaults to 20, at most 100.
	Limit int

	// StudentID, when set, also reports that student's rank.
	StudentID string
}

// Validate checks the parameters and applies defaults.
func (q *GetLeaderboardQuery) Validate() error {
	const op = "GetLeaderboard"
	if q.Metric == "" {
		q.Metric = progression.MetricXP
	}
	if q.Period == "" {
		q.Period = progression.PeriodAllTime
	}
	if !q.Metric.Valid() {
		return shared.NewDomainError("query", op, shared.ErrValidation, "unknown metric "+string(q.Metric))
	}
	if !q.Period.Valid() {
		return shared.NewDomainError("query", op, shared.ErrValidation, "unknown period "+string(q.Period))
	}
	if q.Period != progression.PeriodAllTime && !q.Metric.Windowed() {
		return shared.NewDomainError("query", op, shared.ErrValidation,
			"metric "+string(q.Metric)+" is only ranked all time")
	}
	if q.Limit < 0 {
		return shared.NewDomainError("query", op, shared.ErrValidation, "limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = DefaultLeaderboardLimit
	}
	if q.Limit > MaxLeaderboardLimit {
		q.Limit = MaxLeaderboardLimit
	}
	return nil
}

// GetLeaderboardResult contains the ranked rows.
type GetLeaderboardResult struct {
	Metric progression.LeaderboardMetric `json:"metric"`
	Period progression.LeaderboardPeriod `json:"period"`

	// Since is the window start, nil for all time.
	Since *time.Time `json:"since,omitempty"`

	Entries []progression.LeaderboardEntry `json:"entries"`

	// StudentRank is the requesting student's position, 0 when unranked.
	StudentRank int `json:"student_rank,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

// LeaderboardCache holds all-time rankings.
type LeaderboardCache interface {
	// Top and Rank return an error when the metric is not cached.
	Top(ctx context.Context, metric progression.LeaderboardMetric, limit int) ([]progression.LeaderboardEntry, error)
	Rank(ctx context.Context, metric progression.LeaderboardMetric, studentID string) (int, error)

	// Rebuild replaces the cached ranking of a metric.
	Rebuild(ctx context.Context, metric progression.LeaderboardMetric, entries []progression.LeaderboardEntry) error
}

// GetLeaderboardHandler handles leaderboard queries.
type GetLeaderboardHandler struct {
	reader  progression.Reader
	cache   LeaderboardCache
	enabled func() bool
	clock   timeutil.Clock
	loc     *time.Location
	log     *logger.Logger
}

// NewGetLeaderboardHandler creates a new handler. cache may be nil; enabled,
// when set, decides per call whether it is used. loc sets where weeks and
// months start.
func NewGetLeaderboardHandler(
	reader progression.Reader,
	cache LeaderboardCache,
	enabled func() bool,
	clock timeutil.Clock,
	loc *time.Location,
	log *logger.Logger,
) *GetLeaderboardHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Default()
	}
	return &GetLeaderboardHandler{
		reader:  reader,
		cache:   cache,
		enabled: enabled,
		clock:   clock,
		loc:     loc,
		log:     log.With(logger.Component("leaderboard")),
	}
}

// Handle executes the query.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	now := h.clock.Now()
	result := &GetLeaderboardResult{
		Metric:      q.Metric,
		Period:      q.Period,
		Since:       h.windowStart(q.Period, now),
		GeneratedAt: now,
	}

	if result.Since == nil && h.cacheOn() {
		if entries, rank, ok := h.fromCache(ctx, q); ok {
			result.Entries = entries
			result.StudentRank = rank
			return result, nil
		}
		return h.rebuild(ctx, q, result)
	}

	lq := progression.LeaderboardQuery{Metric: q.Metric, Since: result.Since, Limit: q.Limit}
	entries, err := h.reader.Leaderboard(ctx, lq)
	if err != nil {
		return nil, readError(err)
	}
	result.Entries = nonNil(entries)

	if q.StudentID != "" {
		rank, err := h.reader.StudentRank(ctx, lq, q.StudentID)
		if err != nil {
			return nil, readError(err)
		}
		result.StudentRank = rank
	}
	return result, nil
}

func (h *GetLeaderboardHandler) cacheOn() bool {
	return h.cache != nil && (h.enabled == nil || h.enabled())
}

// windowStart returns the first instant of the period, nil for all time.
func (h *GetLeaderboardHandler) windowStart(p progression.LeaderboardPeriod, now time.Time) *time.Time {
	var start time.Time
	switch p {
	case progression.PeriodThisWeek:
		start = timeutil.StartOfWeek(now, h.loc)
	case progression.PeriodThisMonth:
		start = timeutil.StartOfMonth(now, h.loc)
	default:
		return nil
	}
	return &start
}

// fromCache serves an all-time ranking from the cache. Any cache error is a miss.
func (h *GetLeaderboardHandler) fromCache(ctx context.Context, q GetLeaderboardQuery) ([]progression.LeaderboardEntry, int, bool) {
	entries, err := h.cache.Top(ctx, q.Metric, q.Limit)
	if err != nil {
		return nil, 0, false
	}
	rank := 0
	if q.StudentID != "" {
		if rank, err = h.cache.Rank(ctx, q.Metric, q.StudentID); err != nil {
			return nil, 0, false
		}
	}
	return nonNil(entries), rank, true
}

// rebuild reads the full all-time ranking, refills the cache and answers
// from it.
func (h *GetLeaderboardHandler) rebuild(ctx context.Context, q GetLeaderboardQuery, result *GetLeaderboardResult) (*GetLeaderboardResult, error) {
	all, err := h.reader.Leaderboard(ctx, progression.LeaderboardQuery{Metric: q.Metric})
	if err != nil {
		return nil, readError(err)
	}
	if err := h.cache.Rebuild(ctx, q.Metric, all); err != nil {
		h.log.Warn("leaderboard cache rebuild failed", logger.String("metric", string(q.Metric)), logger.Err(err))
	}

	for _, e := range all {
		if e.StudentID == q.StudentID {
			result.StudentRank = e.Rank
			break
		}
	}
	if len(all) > q.Limit {
		all = all[:q.Limit]
	}
	result.Entries = nonNil(all)
	return result, nil
}

func nonNil(entries []progression.LeaderboardEntry) []progression.LeaderboardEntry {
	if entries == nil {
		return []progression.LeaderboardEntry{}
	}
	return entries
}
