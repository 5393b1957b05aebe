package tracker

import (
	"sync"
	"time"
)

// Stats tracks tick statistics for the ops endpoints.
type Stats struct {
	mu sync.RWMutex

	totalTicks  uint64
	outcomes    map[Outcome]uint64
	lastTickAt  time.Time
	lastOutcome Outcome

	fetches           uint64
	failedFetches     uint64
	lastFetchAt       time.Time
	lastFetchDuration time.Duration
	lastFetchError    string
	lastUpdatedAt     time.Time
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	TotalTicks        uint64
	Outcomes          map[string]uint64
	LastTickAt        time.Time
	LastOutcome       string
	Fetches           uint64
	FailedFetches     uint64
	LastFetchAt       time.Time
	LastFetchDuration time.Duration
	LastFetchError    string
	LastUpdatedAt     time.Time
}

func newStats() *Stats {
	return &Stats{outcomes: make(map[Outcome]uint64)}
}

func (s *Stats) record(outcome Outcome, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalTicks++
	s.outcomes[outcome]++
	s.lastTickAt = at
	s.lastOutcome = outcome
	if outcome == OutcomeUpdated {
		s.lastUpdatedAt = at
	}
}

func (s *Stats) recordFetch(d time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetches++
	s.lastFetchAt = time.Now()
	s.lastFetchDuration = d
	s.lastFetchError = ""
	if err != nil {
		s.failedFetches++
		s.lastFetchError = err.Error()
	}
}

func (s *Stats) snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	outcomes := make(map[string]uint64, len(s.outcomes))
	for o, n := range s.outcomes {
		outcomes[o.String()] = n
	}

	snap := StatsSnapshot{
		TotalTicks:        s.totalTicks,
		Outcomes:          outcomes,
		LastTickAt:        s.lastTickAt,
		Fetches:           s.fetches,
		FailedFetches:     s.failedFetches,
		LastFetchAt:       s.lastFetchAt,
		LastFetchDuration: s.lastFetchDuration,
		LastFetchError:    s.lastFetchError,
		LastUpdatedAt:     s.lastUpdatedAt,
	}
	if s.totalTicks > 0 {
		snap.LastOutcome = s.lastOutcome.String()
	}
	return snap
}
