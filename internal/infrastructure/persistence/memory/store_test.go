package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/domain/shared"
)

func seedStudent(t *testing.T, s *Store, id string, coins int64) {
	t.Helper()
	err := s.WithTx(context.Background(), func(tx progression.Tx) error {
		st, err := progression.NewStudent(id, id, time.Now())
		if err != nil {
			return err
		}
		st.Coins = coins
		st.LifetimeCoins = coins
		return tx.CreateStudent(context.Background(), st)
	})
	require.NoError(t, err)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedStudent(t, s, "s1", 100)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx progression.Tx) error {
		if _, err := tx.SpendCoins(ctx, "s1", 40); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	st, err := s.GetStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), st.Coins)
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedStudent(t, s, "s1", 100)

	assert.Panics(t, func() {
		_ = s.WithTx(ctx, func(tx progression.Tx) error {
			_, _ = tx.SpendCoins(ctx, "s1", 40)
			panic("unexpected")
		})
	})

	st, err := s.GetStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), st.Coins)
}

func TestSpendCoins_Conditional(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedStudent(t, s, "s1", 10)

	err := s.WithTx(ctx, func(tx progression.Tx) error {
		_, err := tx.SpendCoins(ctx, "s1", 11)
		return err
	})
	assert.ErrorIs(t, err, progression.ErrInsufficientFunds)

	var balance int64
	err = s.WithTx(ctx, func(tx progression.Tx) error {
		var err error
		balance, err = tx.SpendCoins(ctx, "s1", 10)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestSaveStudent_VersionCheck(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedStudent(t, s, "s1", 0)

	err := s.WithTx(ctx, func(tx progression.Tx) error {
		st, err := tx.LockStudent(ctx, "s1")
		if err != nil {
			return err
		}
		stale := st.Clone()
		if err := tx.SaveStudent(ctx, st); err != nil {
			return err
		}
		assert.Equal(t, int64(1), st.Version)
		return tx.SaveStudent(ctx, stale)
	})
	assert.ErrorIs(t, err, shared.ErrConcurrentModification)
}

func TestFailOn(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedStudent(t, s, "s1", 0)

	injected := errors.New("injected")
	s.FailOn(OpLockStudent, injected, 1)

	lock := func() error {
		return s.WithTx(ctx, func(tx progression.Tx) error {
			_, err := tx.LockStudent(ctx, "s1")
			return err
		})
	}
	assert.ErrorIs(t, lock(), injected)
	assert.NoError(t, lock())

	s.FailOn(OpCommit, injected, 0)
	assert.ErrorIs(t, lock(), injected)
	assert.ErrorIs(t, lock(), injected)
	s.ClearFailures()
	assert.NoError(t, lock())
}

func TestInsertStudentBadge_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	sb := progression.StudentBadge{StudentID: "s1", BadgeID: "b1", UnlockedAt: time.Now()}
	inserted, err := s.InsertStudentBadge(ctx, sb)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertStudentBadge(ctx, sb)
	require.NoError(t, err)
	assert.False(t, inserted)

	badges, err := s.ListStudentBadges(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, badges, 1)
}

func TestCatalogAndWorldLessons(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.SeedCatalog(ctx, progression.CatalogContent{
		Worlds: []progression.World{{ID: "w1"}, {ID: "w2"}},
		Activities: []progression.Activity{
			{ID: "l2", Kind: progression.ActivityLesson, WorldID: "w1"},
			{ID: "l1", Kind: progression.ActivityLesson, WorldID: "w1"},
			{ID: "c1", Kind: progression.ActivityChallenge},
		},
		Cosmetics: []progression.Cosmetic{{ID: "robot", Kind: progression.CosmeticAvatar, Cost: 100}},
		Badges:    []progression.Badge{{ID: "b1"}},
	}))

	worlds, err := s.WorldLessons(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"l1", "l2"}, worlds["w1"])
	assert.Empty(t, worlds["w2"])

	_, err = s.GetActivity(ctx, "missing")
	assert.ErrorIs(t, err, progression.ErrInvalidActivity)

	item, err := s.GetCosmetic(ctx, "robot")
	require.NoError(t, err)
	assert.Equal(t, int64(100), item.Cost)
}

func TestLeaderboard_Windows(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedStudent(t, s, "a", 0)
	seedStudent(t, s, "b", 0)

	old := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	err := s.WithTx(ctx, func(tx progression.Tx) error {
		for _, c := range []progression.Completion{
			{StudentID: "a", ActivityID: "l1", Completed: true, XPEarned: 500, CompletedAt: old},
			{StudentID: "b", ActivityID: "l1", Completed: true, XPEarned: 100, CompletedAt: recent},
		} {
			if _, err := tx.InsertCompletion(ctx, c); err != nil {
				return err
			}
		}
		a, _ := tx.LockStudent(ctx, "a")
		a.XP = 500
		a.Level = progression.LevelFromXP(500)
		if err := tx.SaveStudent(ctx, a); err != nil {
			return err
		}
		b, _ := tx.LockStudent(ctx, "b")
		b.XP = 100
		b.Level = progression.LevelFromXP(100)
		return tx.SaveStudent(ctx, b)
	})
	require.NoError(t, err)

	all, err := s.Leaderboard(ctx, progression.LeaderboardQuery{Metric: progression.MetricXP})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].StudentID)
	assert.Equal(t, 1, all[0].Rank)

	since := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	q := progression.LeaderboardQuery{Metric: progression.MetricXP, Since: &since}
	week, err := s.Leaderboard(ctx, q)
	require.NoError(t, err)
	require.Len(t, week, 1)
	assert.Equal(t, "b", week[0].StudentID)
	assert.Equal(t, int64(100), week[0].Value)

	rank, err := s.StudentRank(ctx, q, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, rank)
}
