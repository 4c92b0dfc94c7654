package progression

import (
	"time"

	"github.com/codequest-jr/progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// StreakOutcome classifies how a streak changed.
type StreakOutcome string

const (
	// StreakStarted - first ever qualifying activity.
	StreakStarted StreakOutcome = "started"

	// StreakUnchanged - another activity on the same calendar day.
	StreakUnchanged StreakOutcome = "unchanged"

	// StreakExtended - activity on the day after the last one.
	StreakExtended StreakOutcome = "extended"

	// StreakReset - one or more days were skipped.
	StreakReset StreakOutcome = "reset"

	// StreakClockSkew - today is before the last activity date.
	// The streak is kept as is and the caller should log an anomaly.
	StreakClockSkew StreakOutcome = "clock_skew"
)

// StreakUpdate is the result of NextStreak.
type StreakUpdate struct {
	Value   int
	Outcome StreakOutcome
	GapDays int
}

// Anomalous reports whether the update came from inconsistent dates.
func (u StreakUpdate) Anomalous() bool {
	return u.Outcome == StreakClockSkew
}

// NextStreak computes the new daily streak. lastActivity and today are
// calendar dates (see timeutil.DateOf). It has no side effects and never
// reads the clock.
func NextStreak(lastActivity *time.Time, today time.Time, current int) StreakUpdate {
	if current < 0 {
		current = 0
	}
	if lastActivity == nil {
		return StreakUpdate{Value: 1, Outcome: StreakStarted}
	}

	gap := timeutil.DaysBetween(*lastActivity, today)
	switch {
	case gap == 0:
		return StreakUpdate{Value: current, Outcome: StreakUnchanged}
	case gap == 1:
		return StreakUpdate{Value: current + 1, Outcome: StreakExtended, GapDays: gap}
	case gap > 1:
		return StreakUpdate{Value: 1, Outcome: StreakReset, GapDays: gap}
	default:
		return StreakUpdate{Value: current, Outcome: StreakClockSkew, GapDays: gap}
	}
}

// RecordStreak applies a StreakUpdate to the student: current and longest
// streak plus the last activity date. Clock-skewed updates leave the last
// activity date untouched.
func (s *Student) RecordStreak(update StreakUpdate, today time.Time) {
	s.CurrentStreak = update.Value
	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	if update.Outcome != StreakClockSkew {
		d := today
		s.LastActivityDate = &d
	}
}
