package progression

import (
	"time"

	"github.com/codequest-jr/progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

// ConditionType names a badge predicate.
type ConditionType string

const (
	ConditionLessonsCompleted ConditionType = "lessons_completed"
	ConditionTotalXP          ConditionType = "total_xp"
	ConditionTotalCoins       ConditionType = "total_coins"
	ConditionLevelReached     ConditionType = "level_reached"
	ConditionWorldCompleted   ConditionType = "world_completed"
	ConditionPerfectLessons   ConditionType = "perfect_lessons"
	ConditionLessonSpeed      ConditionType = "lesson_speed"
	ConditionStreak           ConditionType = "streak"
	ConditionTimeBased        ConditionType = "time_based"
	ConditionWeekendLessons   ConditionType = "weekend_lessons"
	ConditionWorldsExplored   ConditionType = "worlds_explored"
	ConditionShopPurchases    ConditionType = "shop_purchases"
)

// Condition is the unlock predicate of a badge. Only the fields relevant to
// Type are read.
type Condition struct {
	Type       ConditionType `json:"type"`
	Count      int           `json:"count,omitempty"`
	Amount     int64         `json:"amount,omitempty"`
	Level      int           `json:"level,omitempty"`
	WorldID    string        `json:"world_id,omitempty"`
	Minutes    int           `json:"minutes,omitempty"`
	Days       int           `json:"days,omitempty"`
	HourAfter  *int          `json:"hour_after,omitempty"`
	HourBefore *int          `json:"hour_before,omitempty"`
}

// Badge is a catalog achievement.
type Badge struct {
	ID          string
	Name        string
	Description string
	Icon        string
	Condition   Condition
}

// StudentBadge is an unlock record; at most one per (student, badge).
type StudentBadge struct {
	StudentID  string
	BadgeID    string
	UnlockedAt time.Time
}

// BadgeStats is the aggregate view a badge pass evaluates against.
type BadgeStats struct {
	XP            int64
	Coins         int64
	LifetimeCoins int64
	Level         int
	CurrentStreak int

	// Completions holds every completed activity of the student.
	Completions []Completion

	// WorldLessons maps each world to the ids of its lessons.
	WorldLessons map[string][]string

	// OwnedCosmetics counts owned shop entries of any kind.
	OwnedCosmetics int

	// Location is the timezone used for hour and weekday predicates.
	Location *time.Location
}

// StatsFor seeds BadgeStats from the student's counters.
func StatsFor(s *Student) BadgeStats {
	return BadgeStats{
		XP:            s.XP,
		Coins:         s.Coins,
		LifetimeCoins: s.LifetimeCoins,
		Level:         s.Level,
		CurrentStreak: s.CurrentStreak,
	}
}

// Met evaluates the condition. known is false for unsupported types.
func (c Condition) Met(st BadgeStats) (met bool, known bool) {
	switch c.Type {
	case ConditionLessonsCompleted:
		return countCompletions(st, nil) >= c.Count, true

	case ConditionTotalXP:
		return st.XP >= c.Amount, true

	case ConditionTotalCoins:
		return st.LifetimeCoins >= c.Amount, true

	case ConditionLevelReached:
		return st.Level >= c.Level, true

	case ConditionWorldCompleted:
		return worldCompleted(st, c.WorldID), true

	case ConditionPerfectLessons:
		return countCompletions(st, Completion.Perfect) >= c.Count, true

	case ConditionLessonSpeed:
		if c.Minutes <= 0 {
			return false, true
		}
		limit := c.Minutes * 60
		return countCompletions(st, func(cp Completion) bool {
			return cp.TimeSpentSeconds > 0 && cp.TimeSpentSeconds < limit
		}) > 0, true

	case ConditionStreak:
		return st.CurrentStreak >= c.Days, true

	case ConditionTimeBased:
		if c.HourAfter == nil && c.HourBefore == nil {
			return false, true
		}
		return countCompletions(st, func(cp Completion) bool {
			hour := timeutil.HourIn(cp.CompletedAt, st.Location)
			if c.HourAfter != nil {
				return hour >= *c.HourAfter
			}
			return hour < *c.HourBefore
		}) >= c.Count, true

	case ConditionWeekendLessons:
		return countCompletions(st, func(cp Completion) bool {
			return timeutil.IsWeekend(cp.CompletedAt, st.Location)
		}) >= c.Count, true

	case ConditionWorldsExplored:
		return worldsExplored(st) >= c.Count, true

	case ConditionShopPurchases:
		return st.OwnedCosmetics >= c.Count, true

	default:
		return false, false
	}
}

func countCompletions(st BadgeStats, pred func(Completion) bool) int {
	n := 0
	for _, cp := range st.Completions {
		if !cp.Completed {
			continue
		}
		if pred == nil || pred(cp) {
			n++
		}
	}
	return n
}

func worldCompleted(st BadgeStats, worldID string) bool {
	lessons := st.WorldLessons[worldID]
	if worldID == "" || len(lessons) == 0 {
		return false
	}
	done := make(map[string]bool, len(st.Completions))
	for _, cp := range st.Completions {
		if cp.Completed {
			done[cp.ActivityID] = true
		}
	}
	for _, id := range lessons {
		if !done[id] {
			return false
		}
	}
	return true
}

func worldsExplored(st BadgeStats) int {
	worlds := make(map[string]struct{})
	for _, cp := range st.Completions {
		if cp.Completed && cp.WorldID != "" {
			worlds[cp.WorldID] = struct{}{}
		}
	}
	return len(worlds)
}

// ──────────────────────────────────────────────────────────────────────────────
// Evaluator
// ──────────────────────────────────────────────────────────────────────────────

// BadgeEvaluator checks a badge catalog against a student's aggregates.
type BadgeEvaluator struct {
	catalog []Badge
}

// NewBadgeEvaluator creates an evaluator over a catalog.
func NewBadgeEvaluator(catalog []Badge) *BadgeEvaluator {
	c := make([]Badge, len(catalog))
	copy(c, catalog)
	return &BadgeEvaluator{catalog: c}
}

// Catalog returns the badges known to the evaluator.
func (e *BadgeEvaluator) Catalog() []Badge {
	return e.catalog
}

// Evaluate returns the badges that qualify and are not in unlocked, in
// catalog order. Unknown condition types are skipped.
func (e *BadgeEvaluator) Evaluate(st BadgeStats, unlocked map[string]bool) []Badge {
	var qualified []Badge
	for _, b := range e.catalog {
		if unlocked[b.ID] {
			continue
		}
		if met, known := b.Condition.Met(st); known && met {
			qualified = append(qualified, b)
		}
	}
	return qualified
}

// UnknownConditions lists badges whose condition type is not supported.
func (e *BadgeEvaluator) UnknownConditions() []Badge {
	var unknown []Badge
	for _, b := range e.catalog {
		if _, known := b.Condition.Met(BadgeStats{}); !known {
			unknown = append(unknown, b)
		}
	}
	return unknown
}
