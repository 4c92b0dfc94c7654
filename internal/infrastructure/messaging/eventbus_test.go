package messaging

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/domain/shared"
	"github.com/codequest-jr/progression-hub/pkg/logger"
)

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{Logger: logger.Nop()})
}

func levelUp(studentID string) shared.Event {
	r := progression.RewardResult{OldLevel: 1, NewLevel: 2, LevelUpBonus: 50}
	return progression.NewLevelUpEvent(studentID, r, time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC))
}

func TestInMemoryEventBus_RoutesByType(t *testing.T) {
	bus := syncBus()

	var levelUps, all []string
	require.NoError(t, bus.Subscribe(progression.EventLevelUp, func(e shared.Event) error {
		levelUps = append(levelUps, e.AggregateID())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, string(e.EventType()))
		return nil
	}))

	require.NoError(t, bus.Publish(levelUp("s1")))
	require.NoError(t, bus.Publish(progression.NewHintUnlockedEvent(progression.HintUnlock{StudentID: "s1", LessonID: "l1", Level: 1, Cost: 5})))

	assert.Equal(t, []string{"s1"}, levelUps)
	assert.Equal(t, []string{string(progression.EventLevelUp), string(progression.EventHintUnlocked)}, all)
}

func TestInMemoryEventBus_HandlerFailuresAreContained(t *testing.T) {
	bus := syncBus()

	calls := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("bad handler") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { calls++; return nil }))

	require.NoError(t, bus.Publish(levelUp("s1")))

	assert.Equal(t, 1, calls)
	stats := bus.Stats()
	assert.Equal(t, int64(1), stats.Published)
	assert.Equal(t, int64(1), stats.Succeeded)
	assert.Equal(t, int64(2), stats.Failed)
}

func TestInMemoryEventBus_Validation(t *testing.T) {
	bus := syncBus()

	assert.ErrorIs(t, bus.Subscribe(progression.EventLevelUp, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.SubscribeAll(nil), ErrNilHandler)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(levelUp("s1")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_AsyncCloseWaitsForHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Async: true, Workers: 2, Logger: logger.Nop()})

	var handled atomic.Int64
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		time.Sleep(5 * time.Millisecond)
		handled.Add(1)
		return nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bus.Publish(levelUp("s1"))
		}()
	}
	wg.Wait()

	require.NoError(t, bus.Close())
	assert.Equal(t, int64(10), handled.Load())
}

func TestEnvelope_RoundTrip(t *testing.T) {
	event := levelUp("s7")

	env, err := NewEnvelope(event)
	require.NoError(t, err)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, progression.EventLevelUp, env.Type)
	assert.Equal(t, "s7", env.AggregateID)
	assert.Equal(t, 1, env.Version)

	data, err := json.Marshal(wireMessage{Origin: "a", Envelope: env})
	require.NoError(t, err)

	var wm wireMessage
	require.NoError(t, json.Unmarshal(data, &wm))
	rebuilt := EnvelopeEvent{Envelope: wm.Envelope}

	assert.Equal(t, event.EventType(), rebuilt.EventType())
	assert.True(t, event.OccurredAt().Equal(rebuilt.OccurredAt()))
	payload := rebuilt.Payload()
	assert.EqualValues(t, 2, payload["new_level"])
	assert.EqualValues(t, 50, payload["bonus"])
}

func TestEnvelope_CarriesCorrelationID(t *testing.T) {
	env, err := NewEnvelope(shared.WithCorrelation(levelUp("s7"), "req-42"))
	require.NoError(t, err)
	assert.Equal(t, "req-42", env.CorrelationID)
	assert.Equal(t, progression.EventLevelUp, env.Type)

	env, err = NewEnvelope(shared.WithCorrelation(levelUp("s7"), ""))
	require.NoError(t, err)
	assert.Empty(t, env.CorrelationID)
}

func TestRedisEventBus_SkipsOwnMessages(t *testing.T) {
	local := syncBus()
	b := &RedisEventBus{local: local, instance: "me", log: logger.Nop()}

	var got []string
	require.NoError(t, local.SubscribeAll(func(e shared.Event) error {
		got = append(got, e.AggregateID())
		return nil
	}))

	own, err := NewEnvelope(levelUp("mine"))
	require.NoError(t, err)
	remote, err := NewEnvelope(levelUp("theirs"))
	require.NoError(t, err)

	for _, wm := range []wireMessage{{Origin: "me", Envelope: own}, {Origin: "other", Envelope: remote}} {
		data, err := json.Marshal(wm)
		require.NoError(t, err)
		b.handleMessage(string(data))
	}
	b.handleMessage("not json")

	assert.Equal(t, []string{"theirs"}, got)
}
