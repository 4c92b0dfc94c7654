package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errDown = errors.New("connection refused")
	errMiss = errors.New("miss")
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func call(cb *CircuitBreaker, err error) error {
	return cb.Execute(context.Background(), func(context.Context) error { return err })
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)}
	var transitions []string
	cb := New("cache",
		WithFailureThreshold(3),
		WithCooldown(10*time.Second),
		WithClock(clock.now),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, call(cb, errDown), errDown)
	}
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, call(cb, errDown), errDown)
	assert.Equal(t, StateOpen, cb.State())

	ran := false
	err := cb.Execute(context.Background(), func(context.Context) error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejected(err))
	assert.False(t, ran)
	assert.Equal(t, int64(1), cb.Rejected())

	clock.advance(10 * time.Second)
	require.NoError(t, call(cb, nil))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreaker_FailedHalfOpenCallReopens(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)}
	cb := New("cache", WithFailureThreshold(1), WithCooldown(time.Second), WithClock(clock.now))

	_ = call(cb, errDown)
	require.Equal(t, StateOpen, cb.State())

	clock.advance(time.Second)
	assert.ErrorIs(t, call(cb, errDown), errDown)
	assert.Equal(t, StateOpen, cb.State())

	assert.ErrorIs(t, call(cb, nil), ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := New("cache", WithFailureThreshold(2))

	_ = call(cb, errDown)
	_ = call(cb, nil)
	_ = call(cb, errDown)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCacheBreaker_IgnoresMisses(t *testing.T) {
	cb := CacheBreaker("cache", 2, time.Minute, func(err error) bool { return errors.Is(err, errMiss) }, nil)

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, call(cb, errMiss), errMiss)
	}
	assert.Equal(t, StateClosed, cb.State())

	_ = call(cb, errDown)
	_ = call(cb, errDown)
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.Rejected())
	assert.Equal(t, "cache", cb.Name())
}
