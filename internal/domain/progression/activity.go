package progression

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITIES & COMPLETIONS
// ══════════════════════════════════════════════════════════════════════════════

// ActivityKind distinguishes lessons from daily challenges.
type ActivityKind string

const (
	ActivityLesson    ActivityKind = "lesson"
	ActivityChallenge ActivityKind = "challenge"
)

// Valid reports whether k is a known kind.
func (k ActivityKind) Valid() bool {
	return k == ActivityLesson || k == ActivityChallenge
}

// LedgerSource maps the kind to its ledger source.
func (k ActivityKind) LedgerSource() EntrySource {
	if k == ActivityChallenge {
		return SourceChallenge
	}
	return SourceLesson
}

// Activity is a rewardable lesson or challenge from the catalog.
type Activity struct {
	ID      string
	Kind    ActivityKind
	WorldID string
	Title   string

	CoinReward int64
	XPReward   int64

	// BonusXP is granted when TimeLimitSeconds > 0 and the student finishes within it.
	BonusXP          int64
	TimeLimitSeconds int
}

// EarnsBonus reports whether timeSpent qualifies for the speed bonus.
func (a Activity) EarnsBonus(timeSpentSeconds int) bool {
	return a.TimeLimitSeconds > 0 && timeSpentSeconds <= a.TimeLimitSeconds
}

// Rewards returns the coin and XP deltas for completing the activity.
func (a Activity) Rewards(earnedBonus bool) (coins, xp int64) {
	xp = a.XPReward
	if earnedBonus {
		xp += a.BonusXP
	}
	return a.CoinReward, xp
}

// PerfectScore is the score recorded for a passing submission.
const PerfectScore = 100

// Completion is the single record of a student finishing an activity.
// Once stored it is never re-rewarded.
type Completion struct {
	StudentID        string
	ActivityID       string
	ActivityKind     ActivityKind
	WorldID          string
	Completed        bool
	Score            int
	Attempts         int
	CoinsEarned      int64
	XPEarned         int64
	TimeSpentSeconds int
	EarnedBonus      bool
	HintsUsed        int
	LeveledUp        bool
	NewLevel         int
	StreakAfter      int
	CompletedAt      time.Time
}

// Perfect reports whether the completion counts toward perfect_lessons.
func (c Completion) Perfect() bool {
	return c.Completed && c.Score == PerfectScore && c.HintsUsed == 0
}
