package progression

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// HINT SHOP
// ══════════════════════════════════════════════════════════════════════════════

// MaxHintLevel is the last hint tier of a lesson.
const MaxHintLevel = 3

// HintCosts holds the coin price of tiers 1..3.
type HintCosts [MaxHintLevel]int64

// DefaultHintCosts returns the standard tier prices.
func DefaultHintCosts() HintCosts {
	return HintCosts{5, 10, 15}
}

// Cost returns the price of a tier.
func (c HintCosts) Cost(level int) int64 {
	if level < 1 || level > MaxHintLevel {
		return 0
	}
	return c[level-1]
}

// HintUnlock records that a student bought a hint tier for a lesson.
type HintUnlock struct {
	StudentID  string
	LessonID   string
	Level      int
	Cost       int64
	UnlockedAt time.Time
}

// NextHintLevel returns the tier following highest, or ErrNoMoreHints.
func NextHintLevel(highest int) (int, error) {
	if highest >= MaxHintLevel {
		return 0, ErrNoMoreHints
	}
	if highest < 0 {
		highest = 0
	}
	return highest + 1, nil
}

// CheckHintOrder verifies that level directly follows highest.
func CheckHintOrder(highest, level int) error {
	if level < 1 || level > MaxHintLevel {
		return ErrNoMoreHints
	}
	if level > highest+1 {
		return ErrHintOutOfOrder
	}
	return nil
}
