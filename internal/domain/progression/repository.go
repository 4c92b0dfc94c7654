package progression

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Contracts for the durable store. Implementations live in
// infrastructure/persistence (postgres for production, memory for tests and
// local runs).
// ══════════════════════════════════════════════════════════════════════════════

// Store is the durable store of progression state.
type Store interface {
	Catalog
	Reader
	BadgeRepository

	// WithTx runs fn inside one atomic transaction. If fn returns an error,
	// or panics, nothing it did is visible afterwards.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

// Tx is the set of operations available inside a transaction. Mutations of a
// student's economic fields must follow LockStudent for that student.
type Tx interface {
	// CreateStudent inserts a new student. Returns ErrStudentExists on conflict.
	CreateStudent(ctx context.Context, s *Student) error

	// LockStudent loads the student and holds its row lock until the
	// transaction ends. Returns ErrStudentNotFound.
	LockStudent(ctx context.Context, id string) (*Student, error)

	// SaveStudent writes the mutable fields of a locked student and bumps
	// its version. The stored version must equal s.Version, otherwise
	// shared.ErrConcurrentModification is returned.
	SaveStudent(ctx context.Context, s *Student) error

	// SpendCoins decrements the balance with a single conditional update and
	// returns the new balance. Returns ErrInsufficientFunds when the balance
	// is too small; nothing changes in that case.
	SpendCoins(ctx context.Context, studentID string, amount int64) (int64, error)

	// GetCompletion returns the completion of (student, activity), or nil.
	GetCompletion(ctx context.Context, studentID, activityID string) (*Completion, error)

	// InsertCompletion stores a completion if none exists for the pair.
	InsertCompletion(ctx context.Context, c Completion) (inserted bool, err error)

	// HighestHintLevel returns the highest unlocked hint tier, 0 if none.
	HighestHintLevel(ctx context.Context, studentID, lessonID string) (int, error)

	// InsertHintUnlock records a hint tier if not yet recorded.
	InsertHintUnlock(ctx context.Context, h HintUnlock) (inserted bool, err error)

	// OwnsCosmetic reports whether the student owns the cosmetic.
	OwnsCosmetic(ctx context.Context, studentID, cosmeticID string) (bool, error)

	// InsertOwnership records ownership if not yet recorded.
	InsertOwnership(ctx context.Context, o Ownership) (inserted bool, err error)

	// AppendLedger appends coin movement records.
	AppendLedger(ctx context.Context, entries ...LedgerEntry) error
}

// Catalog exposes the static content the engine prices and evaluates.
type Catalog interface {
	// GetActivity returns a lesson or challenge. Returns ErrInvalidActivity.
	GetActivity(ctx context.Context, id string) (*Activity, error)

	// GetCosmetic returns a shop entry. Returns ErrInvalidActivity.
	GetCosmetic(ctx context.Context, id string) (*Cosmetic, error)

	// ListBadges returns the badge catalog.
	ListBadges(ctx context.Context) ([]Badge, error)

	// WorldLessons maps each world to its lesson ids.
	WorldLessons(ctx context.Context) (map[string][]string, error)
}

// Reader exposes the read-only projections outside of transactions.
type Reader interface {
	// GetStudent returns a student. Returns ErrStudentNotFound.
	GetStudent(ctx context.Context, id string) (*Student, error)

	// ListCompletions returns every completion of the student.
	ListCompletions(ctx context.Context, studentID string) ([]Completion, error)

	// CountOwnedCosmetics counts owned shop entries of any kind.
	CountOwnedCosmetics(ctx context.Context, studentID string) (int, error)

	// ListLedger returns the most recent ledger entries, newest first.
	ListLedger(ctx context.Context, studentID string, limit int) ([]LedgerEntry, error)

	// Leaderboard ranks students for a query.
	Leaderboard(ctx context.Context, q LeaderboardQuery) ([]LeaderboardEntry, error)

	// StudentRank returns the 1-based position of a student for a query,
	// or 0 when the student has no score in the window.
	StudentRank(ctx context.Context, q LeaderboardQuery, studentID string) (int, error)
}

// BadgeRepository stores badge unlocks.
type BadgeRepository interface {
	// ListStudentBadges returns the unlocks of a student, oldest first.
	ListStudentBadges(ctx context.Context, studentID string) ([]StudentBadge, error)

	// InsertStudentBadge inserts an unlock unless one exists for the pair.
	InsertStudentBadge(ctx context.Context, sb StudentBadge) (inserted bool, err error)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardMetric is the value students are ranked by.
type LeaderboardMetric string

const (
	MetricXP     LeaderboardMetric = "xp"
	MetricCoins  LeaderboardMetric = "coins"
	MetricLevel  LeaderboardMetric = "level"
	MetricStreak LeaderboardMetric = "streak"
)

// Valid reports whether m is a known metric.
func (m LeaderboardMetric) Valid() bool {
	switch m {
	case MetricXP, MetricCoins, MetricLevel, MetricStreak:
		return true
	default:
		return false
	}
}

// Windowed reports whether the metric can be aggregated over a time window.
// Only earned XP and coins are; level and streak are point-in-time values.
func (m LeaderboardMetric) Windowed() bool {
	return m == MetricXP || m == MetricCoins
}

// LeaderboardPeriod selects the aggregation window.
type LeaderboardPeriod string

const (
	PeriodAllTime   LeaderboardPeriod = "all_time"
	PeriodThisWeek  LeaderboardPeriod = "this_week"
	PeriodThisMonth LeaderboardPeriod = "this_month"
)

// Valid reports whether p is a known period.
func (p LeaderboardPeriod) Valid() bool {
	switch p {
	case PeriodAllTime, PeriodThisWeek, PeriodThisMonth:
		return true
	default:
		return false
	}
}

// LeaderboardQuery describes a ranking. A nil Since means all time; otherwise
// XP and coins are summed from completions at or after Since.
type LeaderboardQuery struct {
	Metric LeaderboardMetric
	Since  *time.Time
	Limit  int
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	StudentID   string `json:"student_id"`
	DisplayName string `json:"display_name"`
	Value       int64  `json:"value"`
	Level       int    `json:"level"`
}
