package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job every Interval, optionally delaying the first
// run by FirstDelay.
type IntervalSchedule struct {
	Interval   time.Duration
	FirstDelay time.Duration

	started bool
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// WithFirstDelay overrides the delay before the first run.
func (s *IntervalSchedule) WithFirstDelay(d time.Duration) *IntervalSchedule {
	s.FirstDelay = d
	return s
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	if !s.started && s.FirstDelay > 0 {
		s.started = true
		return t.Add(s.FirstDelay)
	}
	s.started = true
	return t.Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}
