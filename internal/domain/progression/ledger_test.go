package progression

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codequest-jr/progression-hub/internal/domain/shared"
)

func TestApplyReward_NoLevelUp(t *testing.T) {
	s := &Student{ID: "s1", Level: 1}

	r, err := ApplyReward(s, 10, 50)
	require.NoError(t, err)

	assert.Equal(t, int64(10), r.CoinsEarned)
	assert.Equal(t, int64(50), r.XPEarned)
	assert.False(t, r.LeveledUp)
	assert.Equal(t, 1, r.NewLevel)
	assert.Equal(t, int64(10), s.Coins)
	assert.Equal(t, int64(10), s.LifetimeCoins)
	assert.Equal(t, int64(50), s.XP)
	assert.Equal(t, 1, s.Level)
}

func TestApplyReward_LevelUpBonus(t *testing.T) {
	s := &Student{ID: "s1", Coins: 10, LifetimeCoins: 10, XP: 50, Level: 1}

	r, err := ApplyReward(s, 15, 60)
	require.NoError(t, err)

	assert.True(t, r.LeveledUp)
	assert.Equal(t, 1, r.OldLevel)
	assert.Equal(t, 2, r.NewLevel)
	assert.Equal(t, int64(50), r.LevelUpBonus)
	assert.Equal(t, int64(65), r.CoinsEarned)
	assert.Equal(t, int64(75), s.Coins)
	assert.Equal(t, int64(110), s.XP)
	assert.Equal(t, 2, s.Level)
}

func TestApplyReward_MultipleLevels(t *testing.T) {
	s := &Student{ID: "s1", Level: 1}

	r, err := ApplyReward(s, 0, 600)
	require.NoError(t, err)

	assert.Equal(t, 3, r.LevelsGained())
	assert.Equal(t, int64(150), r.CoinsEarned)
	assert.Equal(t, 4, s.Level)
}

func TestApplyReward_RejectsNegativeDeltas(t *testing.T) {
	s := &Student{ID: "s1", Coins: 5, Level: 1}

	_, err := ApplyReward(s, -1, 10)
	assert.ErrorIs(t, err, ErrNegativeDelta)
	_, err = ApplyReward(s, 1, -10)
	assert.True(t, errors.Is(err, shared.ErrNegativeValue))
	assert.Equal(t, int64(5), s.Coins)
}

func TestApplyReward_RejectsOverflow(t *testing.T) {
	tests := []struct {
		name    string
		student Student
		coins   int64
		xp      int64
	}{
		{"xp", Student{ID: "s1", XP: math.MaxInt64 - 10, Level: LevelFromXP(math.MaxInt64 - 10)}, 0, 11},
		{"coins", Student{ID: "s1", Coins: 1, LifetimeCoins: math.MaxInt64 - 5, Level: 1}, 6, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.student
			_, err := ApplyReward(&s, tt.coins, tt.xp)
			assert.ErrorIs(t, err, ErrRewardOverflow)
			assert.Equal(t, tt.student, s)
		})
	}
}

func TestApplyReward_ReachesMaxXP(t *testing.T) {
	s := &Student{ID: "s1", Level: 1}

	r, err := ApplyReward(s, 0, math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), s.XP)
	assert.Equal(t, LevelFromXP(math.MaxInt64), r.NewLevel)
}

func TestSpend(t *testing.T) {
	s := &Student{ID: "s1", Coins: 20, LifetimeCoins: 20}

	require.NoError(t, Spend(s, 15))
	assert.Equal(t, int64(5), s.Coins)
	assert.Equal(t, int64(20), s.LifetimeCoins)

	assert.ErrorIs(t, Spend(s, 6), ErrInsufficientFunds)
	assert.ErrorIs(t, Spend(s, -1), ErrNegativeDelta)
	assert.Equal(t, int64(5), s.Coins)
}

func TestRewardEntries(t *testing.T) {
	now := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	a := Activity{ID: "c1", Kind: ActivityChallenge}
	r := RewardResult{CoinsEarned: 70, LevelUpBonus: 50}

	entries := RewardEntries("s1", a, r, now)

	require.Len(t, entries, 2)
	assert.Equal(t, int64(20), entries[0].Amount)
	assert.Equal(t, SourceChallenge, entries[0].Source)
	assert.Equal(t, EntryEarn, entries[0].Type)
	assert.Equal(t, int64(50), entries[1].Amount)
	assert.Equal(t, SourceLevelUp, entries[1].Source)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
}

func TestStudentInvariants(t *testing.T) {
	s, err := NewStudent(" s1 ", "Ada", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
	assert.NoError(t, s.CheckInvariants())

	s.XP = 120
	assert.ErrorIs(t, s.CheckInvariants(), ErrCorruptState)

	_, err = NewStudent("  ", "", time.Now())
	assert.ErrorIs(t, err, ErrInvalidStudentID)
}
