package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/domain/shared"
	"github.com/codequest-jr/progression-hub/internal/infrastructure/persistence/memory"
	"github.com/codequest-jr/progression-hub/pkg/logger"
	"github.com/codequest-jr/progression-hub/pkg/timeutil"
)

// Monday 2026-10-12, mid-morning UTC.
var day1 = time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)

func testCatalog() progression.CatalogContent {
	return progression.CatalogContent{
		Worlds: []progression.World{{ID: "w1", Name: "World One", Order: 1}},
		Activities: []progression.Activity{
			{ID: "lesson-a", Kind: progression.ActivityLesson, WorldID: "w1", Title: "A", CoinReward: 10, XPReward: 50},
			{ID: "lesson-b", Kind: progression.ActivityLesson, WorldID: "w1", Title: "B", CoinReward: 15, XPReward: 60},
			{ID: "lesson-timed", Kind: progression.ActivityLesson, WorldID: "w1", Title: "Timed", CoinReward: 5, XPReward: 20, BonusXP: 10, TimeLimitSeconds: 120},
			{ID: "challenge-c", Kind: progression.ActivityChallenge, Title: "C", CoinReward: 20, XPReward: 100},
		},
		Badges: []progression.Badge{
			{ID: "first-steps", Name: "First Steps", Condition: progression.Condition{Type: progression.ConditionLessonsCompleted, Count: 1}},
			{ID: "on-fire", Name: "On Fire", Condition: progression.Condition{Type: progression.ConditionStreak, Days: 2}},
			{ID: "shopper", Name: "Shopper", Condition: progression.Condition{Type: progression.ConditionShopPurchases, Count: 1}},
		},
		Cosmetics: []progression.Cosmetic{
			{ID: "avatar-robot", Kind: progression.CosmeticAvatar, Name: "Robot", Cost: 0},
			{ID: "avatar-cat", Kind: progression.CosmeticAvatar, Name: "Cat", Cost: 50},
			{ID: "theme-pro", Kind: progression.CosmeticTheme, Name: "Pro", Cost: 30, RequiredLevel: 3},
			{ID: "item-duck", Kind: progression.CosmeticItem, Name: "Duck", Cost: 20},
		},
	}
}

type recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recorder) Publish(e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) count(t shared.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType() == t {
			n++
		}
	}
	return n
}

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	clock    *timeutil.FixedClock
	events   *recorder
	awarder  *BadgeAwarder
	complete *RecordCompletionHandler
	purchase *PurchaseCosmeticHandler
	hint     *UnlockHintHandler
	create   *CreateStudentHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.SeedCatalog(ctx, testCatalog()))

	clock := timeutil.NewFixedClock(day1)
	events := &recorder{}
	log := logger.Nop()
	awarder := NewBadgeAwarder(store, events, log, BadgeAwarderConfig{Location: time.UTC})

	return &fixture{
		ctx:      ctx,
		store:    store,
		clock:    clock,
		events:   events,
		awarder:  awarder,
		complete: NewRecordCompletionHandler(store, awarder, events, clock, log, DefaultRecordCompletionHandlerConfig()),
		purchase: NewPurchaseCosmeticHandler(store, awarder, events, clock, log, DefaultPurchaseCosmeticHandlerConfig()),
		hint:     NewUnlockHintHandler(store, events, clock, log, DefaultUnlockHintHandlerConfig()),
		create:   NewCreateStudentHandler(store, events, clock, log),
	}
}

// newStudent registers a student with zeroed counters.
func (f *fixture) newStudent(t *testing.T, id string) {
	t.Helper()
	_, err := f.create.Handle(f.ctx, CreateStudentCommand{StudentID: id, DisplayName: id})
	require.NoError(t, err)
}

// richStudent inserts a level-1 student holding coins.
func (f *fixture) richStudent(t *testing.T, id string, coins int64) {
	t.Helper()
	st, err := progression.NewStudent(id, id, day1)
	require.NoError(t, err)
	st.Coins = coins
	st.LifetimeCoins = coins
	require.NoError(t, f.store.WithTx(f.ctx, func(tx progression.Tx) error {
		return tx.CreateStudent(f.ctx, st)
	}))
}

func (f *fixture) student(t *testing.T, id string) *progression.Student {
	t.Helper()
	st, err := f.store.GetStudent(f.ctx, id)
	require.NoError(t, err)
	return st
}

func (f *fixture) completeActivity(t *testing.T, studentID, activityID string, timeSpent int) *RecordCompletionResult {
	t.Helper()
	res, err := f.complete.Handle(f.ctx, RecordCompletionCommand{
		StudentID:        studentID,
		ActivityID:       activityID,
		Passed:           true,
		TimeSpentSeconds: timeSpent,
	})
	require.NoError(t, err)
	return res
}

func badgeIDs(badges []progression.Badge) []string {
	ids := make([]string, 0, len(badges))
	for _, b := range badges {
		ids = append(ids, b.ID)
	}
	return ids
}
