package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecidePurchase(t *testing.T) {
	rich := &Student{Coins: 500, Level: 5}
	poor := &Student{Coins: 10, Level: 1}

	tests := []struct {
		name    string
		student *Student
		item    Cosmetic
		owned   bool
		want    PurchaseAction
		wantErr error
	}{
		{"owned is equip only", poor, Cosmetic{Cost: 999, RequiredLevel: 9}, true, PurchaseEquipOnly, nil},
		{"free item", poor, Cosmetic{Cost: 0, RequiredLevel: 9}, false, PurchaseClaimFree, nil},
		{"affordable", rich, Cosmetic{Cost: 200, RequiredLevel: 5}, false, PurchaseCharge, nil},
		{"too expensive", poor, Cosmetic{Cost: 11}, false, "", ErrInsufficientFunds},
		{"funds checked before level", poor, Cosmetic{Cost: 50, RequiredLevel: 3}, false, "", ErrInsufficientFunds},
		{"level too low", poor, Cosmetic{Cost: 10, RequiredLevel: 2}, false, "", ErrLevelTooLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecidePurchase(tt.student, tt.item, tt.owned)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStudentEquip(t *testing.T) {
	s := &Student{}

	assert.True(t, s.Equip(Cosmetic{ID: "robot", Kind: CosmeticAvatar}))
	assert.True(t, s.Equip(Cosmetic{ID: "night", Kind: CosmeticTheme}))
	assert.False(t, s.Equip(Cosmetic{ID: "hat", Kind: CosmeticItem}))

	assert.Equal(t, "robot", s.SelectedAvatarID)
	assert.Equal(t, "night", s.SelectedThemeID)
}

func TestHintTiers(t *testing.T) {
	costs := DefaultHintCosts()
	assert.Equal(t, int64(5), costs.Cost(1))
	assert.Equal(t, int64(10), costs.Cost(2))
	assert.Equal(t, int64(15), costs.Cost(3))
	assert.Equal(t, int64(0), costs.Cost(4))

	next, err := NextHintLevel(0)
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	next, err = NextHintLevel(2)
	require.NoError(t, err)
	assert.Equal(t, 3, next)

	_, err = NextHintLevel(MaxHintLevel)
	assert.ErrorIs(t, err, ErrNoMoreHints)
}

func TestCheckHintOrder(t *testing.T) {
	assert.NoError(t, CheckHintOrder(0, 1))
	assert.NoError(t, CheckHintOrder(1, 2))
	assert.NoError(t, CheckHintOrder(2, 1))
	assert.ErrorIs(t, CheckHintOrder(0, 2), ErrHintOutOfOrder)
	assert.ErrorIs(t, CheckHintOrder(3, 4), ErrNoMoreHints)
	assert.ErrorIs(t, CheckHintOrder(0, 0), ErrNoMoreHints)
}

func TestActivityRewards(t *testing.T) {
	a := Activity{CoinReward: 10, XPReward: 40, BonusXP: 15, TimeLimitSeconds: 120}

	assert.True(t, a.EarnsBonus(120))
	assert.False(t, a.EarnsBonus(121))
	assert.False(t, Activity{BonusXP: 15}.EarnsBonus(1))

	coins, xp := a.Rewards(true)
	assert.Equal(t, int64(10), coins)
	assert.Equal(t, int64(55), xp)

	_, xp = a.Rewards(false)
	assert.Equal(t, int64(40), xp)
}
