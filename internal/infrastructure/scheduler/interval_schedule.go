package scheduler

import (
	"fmt"
	"time"
)

// ErrInvalidInterval is returned for a zero or negative interval, which would
// make a job due on every tick.
var ErrInvalidInterval = fmt.Errorf("interval must be positive")

// IntervalSchedule runs a job a fixed duration after the previous dispatch.
type IntervalSchedule struct {
	interval time.Duration
}

// NewIntervalSchedule creates an IntervalSchedule. It rejects non-positive
// intervals.
func NewIntervalSchedule(interval time.Duration) (*IntervalSchedule, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}
	return &IntervalSchedule{interval: interval}, nil
}

// Interval returns the configured interval.
func (s *IntervalSchedule) Interval() time.Duration {
	return s.interval
}

// Next returns t plus the interval.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.interval)
}

// String renders the schedule as "@every <interval>".
func (s *IntervalSchedule) String() string {
	return "@every " + s.interval.String()
}
