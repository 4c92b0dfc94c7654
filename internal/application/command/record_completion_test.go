package command

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/domain/shared"
	"github.com/codequest-jr/progression-hub/internal/infrastructure/persistence/memory"
	"github.com/codequest-jr/progression-hub/pkg/timeutil"
)

func TestRecordCompletion_FirstTwoDays(t *testing.T) {
	f := newFixture(t)
	f.newStudent(t, "s1")

	res := f.completeActivity(t, "s1", "lesson-a", 300)
	assert.True(t, res.Success)
	assert.False(t, res.AlreadyCompleted)
	assert.Equal(t, int64(10), res.CoinsEarned)
	assert.Equal(t, int64(50), res.XPEarned)
	assert.False(t, res.LeveledUp)
	assert.Equal(t, 1, res.NewLevel)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, []string{"first-steps"}, badgeIDs(res.NewBadges))

	st := f.student(t, "s1")
	assert.Equal(t, int64(10), st.Coins)
	assert.Equal(t, int64(50), st.XP)
	assert.Equal(t, 1, st.Level)
	assert.Equal(t, 1, st.CurrentStreak)
	require.NotNil(t, st.LastActivityDate)
	assert.Equal(t, timeutil.Date(2026, 10, 12), *st.LastActivityDate)

	f.clock.Advance(24 * time.Hour)
	res = f.completeActivity(t, "s1", "lesson-b", 300)
	assert.Equal(t, int64(65), res.CoinsEarned, "15 base + 50 level-up bonus")
	assert.Equal(t, int64(60), res.XPEarned)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 2, res.NewLevel)
	assert.Equal(t, 2, res.Streak)
	assert.Equal(t, []string{"on-fire"}, badgeIDs(res.NewBadges))

	st = f.student(t, "s1")
	assert.Equal(t, int64(75), st.Coins)
	assert.Equal(t, int64(75), st.LifetimeCoins)
	assert.Equal(t, int64(110), st.XP)
	assert.Equal(t, 2, st.Level)
	assert.Equal(t, 2, st.CurrentStreak)
	assert.Equal(t, 2, st.LongestStreak)
	assert.NoError(t, st.CheckInvariants())

	ledger, err := f.store.ListLedger(f.ctx, "s1", 0)
	require.NoError(t, err)
	type row struct {
		amount int64
		source progression.EntrySource
	}
	var rows []row
	for _, e := range ledger {
		assert.Equal(t, progression.EntryEarn, e.Type)
		rows = append(rows, row{e.Amount, e.Source})
	}
	assert.ElementsMatch(t, []row{
		{10, progression.SourceLesson},
		{15, progression.SourceLesson},
		{50, progression.SourceLevelUp},
	}, rows)

	assert.Equal(t, 2, f.events.count(progression.EventCompletionRecorded))
	assert.Equal(t, 1, f.events.count(progression.EventLevelUp))
	assert.Equal(t, 2, f.events.count(progression.EventBadgeUnlocked))
}

func TestRecordCompletion_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.newStudent(t, "s1")

	first := f.completeActivity(t, "s1", "lesson-a", 30)
	before := f.student(t, "s1")

	f.clock.Advance(time.Hour)
	second := f.completeActivity(t, "s1", "lesson-a", 30)

	assert.True(t, second.Success)
	assert.True(t, second.AlreadyCompleted)
	assert.Equal(t, first.CoinsEarned, second.CoinsEarned)
	assert.Equal(t, first.XPEarned, second.XPEarned)
	assert.Equal(t, first.LeveledUp, second.LeveledUp)
	assert.Equal(t, first.NewLevel, second.NewLevel)
	assert.Equal(t, first.Streak, second.Streak)
	assert.Equal(t, first.EarnedBonus, second.EarnedBonus)
	assert.Empty(t, second.NewBadges)

	after := f.student(t, "s1")
	assert.Equal(t, before.Coins, after.Coins)
	assert.Equal(t, before.XP, after.XP)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, 1, f.events.count(progression.EventCompletionRecorded))
}

func TestRecordCompletion_ConcurrentDuplicatesRewardOnce(t *testing.T) {
	f := newFixture(t)
	f.newStudent(t, "s1")

	const workers = 16
	results := make([]*RecordCompletionResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.complete.Handle(f.ctx, RecordCompletionCommand{StudentID: "s1", ActivityID: "lesson-a", Passed: true})
			if err == nil {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()

	fresh := 0
	for _, res := range results {
		require.NotNil(t, res)
		if !res.AlreadyCompleted {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, int64(10), f.student(t, "s1").Coins)
}

func TestRecordCompletion_NotPassed(t *testing.T) {
	f := newFixture(t)
	f.newStudent(t, "s1")

	res, err := f.complete.Handle(f.ctx, RecordCompletionCommand{StudentID: "s1", ActivityID: "lesson-a", Passed: false})
	require.NoError(t, err)
	assert.False(t, res.Success)

	st := f.student(t, "s1")
	assert.Zero(t, st.Coins)
	assert.Zero(t, st.XP)
	assert.Nil(t, st.LastActivityDate)
}

func TestRecordCompletion_Rejections(t *testing.T) {
	f := newFixture(t)
	f.newStudent(t, "s1")

	tests := []struct {
		name string
		cmd  RecordCompletionCommand
		want error
	}{
		{"unknown activity", RecordCompletionCommand{StudentID: "s1", ActivityID: "nope", Passed: true}, progression.ErrInvalidActivity},
		{"unknown student", RecordCompletionCommand{StudentID: "ghost", ActivityID: "lesson-a", Passed: true}, progression.ErrStudentNotFound},
		{"missing student id", RecordCompletionCommand{ActivityID: "lesson-a", Passed: true}, shared.ErrValidation},
		{"negative time", RecordCompletionCommand{StudentID: "s1", ActivityID: "lesson-a", Passed: true, TimeSpentSeconds: -1}, shared.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.complete.Handle(f.ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRecordCompletion_LevelUpBonusFromZero(t *testing.T) {
	f := newFixture(t)
	f.newStudent(t, "s1")

	res := f.completeActivity(t, "s1", "challenge-c", 0)

	level := progression.LevelFromXP(100)
	assert.Equal(t, 2, level)
	assert.Equal(t, level, res.NewLevel)
	assert.Equal(t, int64(20)+progression.LevelUpBonusPerLevel*int64(level-1), res.CoinsEarned)
	assert.Equal(t, int64(70), f.student(t, "s1").Coins)
}

func TestRecordCompletion_SpeedBonus(t *testing.T) {
	tests := []struct {
		name      string
		timeSpent int
		wantBonus bool
		wantXP    int64
	}{
		{"within limit", 60, true, 30},
		{"exactly at limit", 120, true, 30},
		{"over limit", 121, false, 20},
		{"not measured", 0, true, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.newStudent(t, "s1")

			res := f.completeActivity(t, "s1", "lesson-timed", tt.timeSpent)
			assert.Equal(t, tt.wantBonus, res.EarnedBonus)
			assert.Equal(t, tt.wantXP, res.XPEarned)
			assert.Equal(t, int64(5), res.CoinsEarned)
		})
	}
}

func TestRecordCompletion_StreakReset(t *testing.T) {
	f := newFixture(t)
	f.newStudent(t, "s1")

	f.completeActivity(t, "s1", "lesson-a", 0)
	f.clock.Advance(24 * time.Hour)
	f.completeActivity(t, "s1", "lesson-b", 0)

	f.clock.Advance(3 * 24 * time.Hour)
	res := f.completeActivity(t, "s1", "lesson-timed", 500)

	assert.Equal(t, 1, res.Streak)
	st := f.student(t, "s1")
	assert.Equal(t, 1, st.CurrentStreak)
	assert.Equal(t, 2, st.LongestStreak)
	assert.Equal(t, 1, f.events.count(progression.EventStreakBroken))
}

func TestRecordCompletion_SameDayKeepsStreak(t *testing.T) {
	f := newFixture(t)
	f.newStudent(t, "s1")

	f.completeActivity(t, "s1", "lesson-a", 0)
	f.clock.Advance(5 * time.Hour)
	res := f.completeActivity(t, "s1", "lesson-b", 0)

	assert.Equal(t, 1, res.Streak)
}

func TestRecordCompletion_ClockSkewKeepsState(t *testing.T) {
	f := newFixture(t)
	f.newStudent(t, "s1")

	f.clock.Set(day1.Add(48 * time.Hour))
	f.completeActivity(t, "s1", "lesson-a", 0)

	f.clock.Set(day1)
	res := f.completeActivity(t, "s1", "lesson-b", 0)

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Streak)
	st := f.student(t, "s1")
	require.NotNil(t, st.LastActivityDate)
	assert.Equal(t, timeutil.Date(2026, 10, 14), *st.LastActivityDate)
}

func TestRecordCompletion_StreakUsesConfiguredTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	f := newFixture(t)
	cfg := DefaultRecordCompletionHandlerConfig()
	cfg.Location = loc
	handler := NewRecordCompletionHandler(f.store, nil, f.events, f.clock, nil, cfg)
	f.newStudent(t, "s1")

	// 20:00 UTC on Monday is already Tuesday at UTC+5.
	f.clock.Set(time.Date(2026, 10, 12, 20, 0, 0, 0, time.UTC))
	_, err := handler.Handle(f.ctx, RecordCompletionCommand{StudentID: "s1", ActivityID: "lesson-a", Passed: true})
	require.NoError(t, err)

	st := f.student(t, "s1")
	require.NotNil(t, st.LastActivityDate)
	assert.Equal(t, timeutil.Date(2026, 10, 13), *st.LastActivityDate)
}

func TestRecordCompletion_RecordsHintsUsed(t *testing.T) {
	f := newFixture(t)
	f.richStudent(t, "s1", 100)

	_, err := f.hint.Handle(f.ctx, UnlockHintCommand{StudentID: "s1", LessonID: "lesson-a"})
	require.NoError(t, err)
	_, err = f.hint.Handle(f.ctx, UnlockHintCommand{StudentID: "s1", LessonID: "lesson-a"})
	require.NoError(t, err)

	f.completeActivity(t, "s1", "lesson-a", 0)
	f.completeActivity(t, "s1", "lesson-b", 0)

	completions, err := f.store.ListCompletions(f.ctx, "s1")
	require.NoError(t, err)
	hints := map[string]int{}
	for _, c := range completions {
		hints[c.ActivityID] = c.HintsUsed
		assert.Equal(t, progression.PerfectScore, c.Score)
	}
	assert.Equal(t, map[string]int{"lesson-a": 2, "lesson-b": 0}, hints)
}

func TestRecordCompletion_PersistenceFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.newStudent(t, "s1")
	f.store.FailOn(memory.OpAppendLedger, errors.New("disk full"), 0)

	_, err := f.complete.Handle(f.ctx, RecordCompletionCommand{StudentID: "s1", ActivityID: "lesson-a", Passed: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, progression.ErrPersistence)
	assert.True(t, shared.IsRetryable(err))

	st := f.student(t, "s1")
	assert.Zero(t, st.Coins)
	assert.Zero(t, st.XP)
	completions, err := f.store.ListCompletions(f.ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, completions)

	f.store.ClearFailures()
	res := f.completeActivity(t, "s1", "lesson-a", 0)
	assert.False(t, res.AlreadyCompleted)
}

func TestRecordCompletion_RetriesTransientFailure(t *testing.T) {
	f := newFixture(t)
	f.newStudent(t, "s1")
	f.store.FailOn(memory.OpCommit, fmt.Errorf("lock timeout: %w", shared.ErrTimeout), 1)

	res := f.completeActivity(t, "s1", "lesson-a", 0)
	assert.True(t, res.Success)
	assert.Equal(t, int64(10), f.student(t, "s1").Coins)
}

func TestRecordCompletion_BadgePassFailureKeepsReward(t *testing.T) {
	f := newFixture(t)
	f.newStudent(t, "s1")
	f.store.FailOn(memory.OpInsertBadge, errors.New("badge table offline"), 0)

	res := f.completeActivity(t, "s1", "lesson-a", 0)
	assert.True(t, res.Success)
	assert.Empty(t, res.NewBadges)
	assert.Equal(t, int64(10), f.student(t, "s1").Coins)
}

func TestRecordCompletion_ReplayFinishesFailedBadgePass(t *testing.T) {
	f := newFixture(t)
	f.newStudent(t, "s1")
	f.store.FailOn(memory.OpInsertBadge, errors.New("badge table offline"), 1)

	first := f.completeActivity(t, "s1", "lesson-a", 0)
	assert.Empty(t, first.NewBadges)

	replay := f.completeActivity(t, "s1", "lesson-a", 0)
	assert.True(t, replay.AlreadyCompleted)
	assert.Equal(t, []string{"first-steps"}, badgeIDs(replay.NewBadges))
	assert.Equal(t, int64(10), f.student(t, "s1").Coins)
	assert.Equal(t, 1, f.events.count(progression.EventCompletionRecorded))
	assert.Equal(t, 1, f.events.count(progression.EventBadgeUnlocked))
}

func TestBadgeAwarder_SecondPassIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.newStudent(t, "s1")
	f.completeActivity(t, "s1", "lesson-a", 0)

	again, err := f.awarder.Award(f.ctx, "s1", f.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, again)

	badges, err := f.store.ListStudentBadges(f.ctx, "s1")
	require.NoError(t, err)
	require.Len(t, badges, 1)
	assert.Equal(t, "first-steps", badges[0].BadgeID)
	assert.Equal(t, day1, badges[0].UnlockedAt)
}

func TestBadgeAwarder_Disabled(t *testing.T) {
	f := newFixture(t)
	f.newStudent(t, "s1")
	awarder := NewBadgeAwarder(f.store, f.events, nil, BadgeAwarderConfig{Enabled: func() bool { return false }})
	handler := NewRecordCompletionHandler(f.store, awarder, f.events, f.clock, nil, DefaultRecordCompletionHandlerConfig())

	res, err := handler.Handle(f.ctx, RecordCompletionCommand{StudentID: "s1", ActivityID: "lesson-a", Passed: true})
	require.NoError(t, err)
	assert.Empty(t, res.NewBadges)
}
