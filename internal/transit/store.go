package transit

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of departures kept per snapshot.
const DefaultCapacity = 8

// Snapshot is a complete, internally consistent copy of the store contents.
type Snapshot struct {
	// Departures holds exactly Count entries in decode order.
	Departures []Departure

	// Count is the number of populated entries.
	Count int

	// Capacity is the fixed capacity of the store.
	Capacity int

	// Generation increments on every Replace or Clear.
	Generation uint64

	// UpdatedAt is when the store was last written (zero if never).
	UpdatedAt time.Time
}

// Store is a fixed-capacity, last-write-wins departure buffer.
// Writers replace the whole contents; readers always observe a complete generation.
type Store struct {
	mu         sync.RWMutex
	slots      []Departure
	count      int
	generation uint64
	updatedAt  time.Time
	now        func() time.Time
}

// NewStore creates an empty store. A non-positive capacity uses DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		slots: make([]Departure, capacity),
		now:   time.Now,
	}
}

// Capacity returns the fixed number of slots.
func (s *Store) Capacity() int {
	return len(s.slots)
}

// Replace overwrites the store with entries. Entries beyond capacity are dropped.
// Returns the number of entries stored.
func (s *Store) Replace(entries []Departure) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.slots)
	n := copy(s.slots, entries)
	s.count = n
	s.generation++
	s.updatedAt = s.now()
	return n
}

// Clear empties the store.
func (s *Store) Clear() {
	s.Replace(nil)
}

// Len returns the number of populated entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Snapshot returns a copy of the current contents.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	departures := make([]Departure, s.count)
	copy(departures, s.slots[:s.count])

	return Snapshot{
		Departures: departures,
		Count:      s.count,
		Capacity:   len(s.slots),
		Generation: s.generation,
		UpdatedAt:  s.updatedAt,
	}
}
