package tracker

import "time"

// DefaultPollInterval is the minimum spacing of backend polls in milliseconds.
const DefaultPollInterval uint32 = 30_000

// Clock is a millisecond counter that wraps at 2^32.
type Clock interface {
	Millis() uint32
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() uint32

// Millis calls f.
func (f ClockFunc) Millis() uint32 {
	return f()
}

// MonotonicClock counts milliseconds since it was created.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock starts a clock at zero.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// Millis returns elapsed milliseconds truncated to 32 bits.
func (c *MonotonicClock) Millis() uint32 {
	return uint32(time.Since(c.start).Milliseconds()) //nolint:gosec // wraparound intended
}

// Scheduler gates polls to at most one per interval.
// The elapsed time is computed with unsigned subtraction, so a clock wrap
// between polls does not stall or hurry the schedule.
type Scheduler struct {
	interval uint32
	last     uint32
}

// NewScheduler creates a scheduler whose last poll is at time zero.
func NewScheduler(interval uint32) *Scheduler {
	if interval == 0 {
		interval = DefaultPollInterval
	}
	return &Scheduler{interval: interval}
}

// DueForPoll reports whether at least one interval has elapsed since the last poll.
func (s *Scheduler) DueForPoll(now uint32) bool {
	return now-s.last >= s.interval
}

// MarkPolled records now as the time of the latest poll.
func (s *Scheduler) MarkPolled(now uint32) {
	s.last = now
}

// LastPoll returns the time of the latest poll.
func (s *Scheduler) LastPoll() uint32 {
	return s.last
}

// Interval returns the poll interval in milliseconds.
func (s *Scheduler) Interval() uint32 {
	return s.interval
}
