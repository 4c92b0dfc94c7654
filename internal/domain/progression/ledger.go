package progression

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// REWARD LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// LevelUpBonusPerLevel is the coin bonus granted for every level gained.
const LevelUpBonusPerLevel int64 = 50

// RewardResult describes one applied reward.
type RewardResult struct {
	// CoinsEarned includes the level-up bonus.
	CoinsEarned  int64
	XPEarned     int64
	LevelUpBonus int64
	LeveledUp    bool
	OldLevel     int
	NewLevel     int
}

// LevelsGained returns NewLevel - OldLevel.
func (r RewardResult) LevelsGained() int {
	return r.NewLevel - r.OldLevel
}

// ApplyReward adds coins and XP to the student, recomputes the level and
// grants LevelUpBonusPerLevel coins per level gained. The caller persists the
// mutated student in the same transaction as whatever caused the reward.
func ApplyReward(s *Student, coinsDelta, xpDelta int64) (RewardResult, error) {
	if coinsDelta < 0 || xpDelta < 0 {
		return RewardResult{}, ErrNegativeDelta
	}
	if xpDelta > math.MaxInt64-s.XP {
		return RewardResult{}, ErrRewardOverflow
	}

	oldLevel := LevelFromXP(s.XP)
	newXP := s.XP + xpDelta
	newLevel := LevelFromXP(newXP)

	levelsGained := newLevel - oldLevel
	bonus := int64(0)
	if levelsGained > 0 {
		bonus = LevelUpBonusPerLevel * int64(levelsGained)
	}
	total := coinsDelta + bonus
	if coinsDelta > math.MaxInt64-bonus || total > math.MaxInt64-s.LifetimeCoins {
		return RewardResult{}, ErrRewardOverflow
	}

	s.XP = newXP
	s.Level = newLevel
	s.Coins += total
	s.LifetimeCoins += total

	return RewardResult{
		CoinsEarned:  total,
		XPEarned:     xpDelta,
		LevelUpBonus: bonus,
		LeveledUp:    levelsGained > 0,
		OldLevel:     oldLevel,
		NewLevel:     newLevel,
	}, nil
}

// Spend removes coins from the balance. It never lets the balance go negative
// and leaves LifetimeCoins untouched.
func Spend(s *Student, amount int64) error {
	if amount < 0 {
		return ErrNegativeDelta
	}
	if s.Coins < amount {
		return ErrInsufficientFunds
	}
	s.Coins -= amount
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Ledger entries
// ──────────────────────────────────────────────────────────────────────────────

// EntryType is the direction of a ledger entry.
type EntryType string

const (
	EntryEarn  EntryType = "earn"
	EntrySpend EntryType = "spend"
)

// EntrySource is what caused a ledger entry.
type EntrySource string

const (
	SourceLesson    EntrySource = "lesson"
	SourceChallenge EntrySource = "challenge"
	SourceLevelUp   EntrySource = "level_up"
	SourceHint      EntrySource = "hint"
	SourcePurchase  EntrySource = "purchase"
)

// LedgerEntry is an append-only record of a coin movement.
type LedgerEntry struct {
	ID          string
	StudentID   string
	Amount      int64
	Type        EntryType
	Source      EntrySource
	ReferenceID string
	CreatedAt   time.Time
}

// NewLedgerEntry builds an entry with a fresh id.
func NewLedgerEntry(studentID string, amount int64, typ EntryType, source EntrySource, ref string, at time.Time) LedgerEntry {
	return LedgerEntry{
		ID:          uuid.NewString(),
		StudentID:   studentID,
		Amount:      amount,
		Type:        typ,
		Source:      source,
		ReferenceID: ref,
		CreatedAt:   at,
	}
}

// RewardEntries returns the ledger entries describing a completion reward:
// the base coins under the activity source and the level-up bonus separately.
func RewardEntries(studentID string, a Activity, r RewardResult, at time.Time) []LedgerEntry {
	entries := make([]LedgerEntry, 0, 2)
	base := r.CoinsEarned - r.LevelUpBonus
	if base > 0 {
		entries = append(entries, NewLedgerEntry(studentID, base, EntryEarn, a.Kind.LedgerSource(), a.ID, at))
	}
	if r.LevelUpBonus > 0 {
		entries = append(entries, NewLedgerEntry(studentID, r.LevelUpBonus, EntryEarn, SourceLevelUp, a.ID, at))
	}
	return entries
}
