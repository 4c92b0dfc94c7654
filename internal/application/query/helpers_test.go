package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/infrastructure/persistence/memory"
)

// Thursday 2026-10-15, noon UTC.
var now = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.SeedCatalog(context.Background(), progression.CatalogContent{
		Activities: []progression.Activity{
			{ID: "lesson-a", Kind: progression.ActivityLesson, Title: "A", CoinReward: 10, XPReward: 50},
		},
		Badges: []progression.Badge{
			{ID: "first-steps", Name: "First Steps", Icon: "👣", Condition: progression.Condition{Type: progression.ConditionLessonsCompleted, Count: 1}},
		},
		Cosmetics: []progression.Cosmetic{
			{ID: "avatar-cat", Kind: progression.CosmeticAvatar, Name: "Cat", Cost: 50},
		},
	}))
	return store
}

type studentSpec struct {
	id      string
	xp      int64
	coins   int64
	streak  int
	created time.Time
}

func putStudent(t *testing.T, store *memory.Store, s studentSpec) *progression.Student {
	t.Helper()
	st, err := progression.NewStudent(s.id, "Name "+s.id, now)
	require.NoError(t, err)
	st.XP = s.xp
	st.Level = progression.LevelFromXP(s.xp)
	st.Coins = s.coins
	st.LifetimeCoins = s.coins
	st.CurrentStreak = s.streak
	st.LongestStreak = s.streak
	require.NoError(t, store.WithTx(context.Background(), func(tx progression.Tx) error {
		return tx.CreateStudent(context.Background(), st)
	}))
	return st
}

func putCompletion(t *testing.T, store *memory.Store, studentID, activityID string, coins, xp int64, at time.Time) {
	t.Helper()
	require.NoError(t, store.WithTx(context.Background(), func(tx progression.Tx) error {
		_, err := tx.InsertCompletion(context.Background(), progression.Completion{
			StudentID:    studentID,
			ActivityID:   activityID,
			ActivityKind: progression.ActivityLesson,
			Completed:    true,
			Score:        progression.PerfectScore,
			CoinsEarned:  coins,
			XPEarned:     xp,
			CompletedAt:  at,
		})
		return err
	}))
}
