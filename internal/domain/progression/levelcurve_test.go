package progression

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestXPThreshold(t *testing.T) {
	assert.Equal(t, int64(0), XPThreshold(0))
	assert.Equal(t, int64(0), XPThreshold(1))
	assert.Equal(t, int64(100), XPThreshold(2))
	assert.Equal(t, int64(300), XPThreshold(3))
	assert.Equal(t, int64(600), XPThreshold(4))
	assert.Equal(t, int64(4950), XPThreshold(10))
}

func TestXPThreshold_StrictlyIncreasing(t *testing.T) {
	for level := 1; level < 500; level++ {
		assert.Less(t, XPThreshold(level), XPThreshold(level+1), "level %d", level)
	}
}

func TestLevelFromXP(t *testing.T) {
	tests := []struct {
		xp   int64
		want int
	}{
		{-20, 1},
		{0, 1},
		{50, 1},
		{99, 1},
		{100, 2},
		{110, 2},
		{299, 2},
		{300, 3},
		{4949, 9},
		{4950, 10},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFromXP(tt.xp), "xp=%d", tt.xp)
	}
}

func TestLevelFromXP_BracketsEveryXP(t *testing.T) {
	for xp := int64(0); xp <= 20000; xp += 7 {
		level := LevelFromXP(xp)
		assert.LessOrEqual(t, XPThreshold(level), xp, "xp=%d", xp)
		assert.Less(t, xp, XPThreshold(level+1), "xp=%d", xp)
	}
}

func TestLevelFromXP_LargeValues(t *testing.T) {
	for _, xp := range []int64{1_000_000, 123_456_789, 9_999_999_999} {
		level := LevelFromXP(xp)
		assert.LessOrEqual(t, XPThreshold(level), xp)
		assert.Less(t, xp, XPThreshold(level+1))
	}
}

func TestXPThreshold_Saturates(t *testing.T) {
	assert.Equal(t, int64(math.MaxInt64), XPThreshold(math.MaxInt))
	assert.Equal(t, int64(math.MaxInt64), XPThreshold(math.MaxInt32))
}

func TestLevelFromXP_MaxXPTerminates(t *testing.T) {
	for _, xp := range []int64{math.MaxInt64, math.MaxInt64 - 1, math.MaxInt64 / 2} {
		level := LevelFromXP(xp)
		assert.LessOrEqual(t, XPThreshold(level), xp, "xp=%d", xp)
		assert.Less(t, XPThreshold(level), int64(math.MaxInt64), "xp=%d", xp)
	}

	top := LevelFromXP(math.MaxInt64)
	assert.Equal(t, int64(math.MaxInt64), XPThreshold(top+1))

	p := ProgressForXP(math.MaxInt64)
	assert.Equal(t, top, p.Level)
	assert.Equal(t, int64(0), p.XPToNext)
}

func TestProgressForXP(t *testing.T) {
	p := ProgressForXP(150)

	assert.Equal(t, 2, p.Level)
	assert.Equal(t, int64(100), p.LevelFloorXP)
	assert.Equal(t, int64(300), p.NextLevelXP)
	assert.Equal(t, int64(50), p.XPIntoLevel)
	assert.Equal(t, int64(150), p.XPToNext)
}
