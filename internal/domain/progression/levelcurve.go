// Package progression holds the rules of the rewards engine: the level curve,
// streak accounting, the reward ledger, badge conditions, hint tiers and the
// cosmetic shop. Everything here is pure; persistence lives behind Store.
package progression

import "math"

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CURVE
// ══════════════════════════════════════════════════════════════════════════════

// XPPerLevelStep is the coefficient of the quadratic level curve.
const XPPerLevelStep int64 = 50

// XPThreshold returns the XP required to reach level: 50 * level * (level-1).
// Levels below 1 are treated as level 1. Thresholds that do not fit in an
// int64 saturate at math.MaxInt64, which no real threshold can equal.
func XPThreshold(level int) int64 {
	if level <= 1 {
		return 0
	}
	l := int64(level)
	if l > math.MaxInt64/XPPerLevelStep || l-1 > math.MaxInt64/(XPPerLevelStep*l) {
		return math.MaxInt64
	}
	return XPPerLevelStep * l * (l - 1)
}

// reachable reports whether level has a representable threshold no greater
// than xp.
func reachable(level int, xp int64) bool {
	t := XPThreshold(level)
	return t != math.MaxInt64 && t <= xp
}

// LevelFromXP returns the largest level whose threshold is <= xp.
// Negative xp is clamped to zero.
func LevelFromXP(xp int64) int {
	if xp <= 0 {
		return 1
	}

	// Start near the closed-form root of 50*L*(L-1) = xp and settle by scanning,
	// so very large balances do not walk every level.
	level := int((1 + math.Sqrt(1+float64(xp)/12.5)) / 2)
	if level < 1 {
		level = 1
	}
	for level > 1 && !reachable(level, xp) {
		level--
	}
	for reachable(level+1, xp) {
		level++
	}
	return level
}

// LevelProgress describes how far a student is into the current level.
type LevelProgress struct {
	Level        int   `json:"level"`
	LevelFloorXP int64 `json:"level_floor_xp"`
	NextLevelXP  int64 `json:"next_level_xp"`
	XPIntoLevel  int64 `json:"xp_into_level"`
	XPToNext     int64 `json:"xp_to_next"`
}

// ProgressForXP computes the LevelProgress of an XP total.
func ProgressForXP(xp int64) LevelProgress {
	if xp < 0 {
		xp = 0
	}
	level := LevelFromXP(xp)
	floor := XPThreshold(level)
	next := XPThreshold(level + 1)
	return LevelProgress{
		Level:        level,
		LevelFloorXP: floor,
		NextLevelXP:  next,
		XPIntoLevel:  xp - floor,
		XPToNext:     next - xp,
	}
}
