package location

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/rs/zerolog"
)

// ErrNoPosition is returned by Feed for sentences that carry no usable fix.
var ErrNoPosition = errors.New("sentence carries no position fix")

// ReceiverConfig holds configuration for the NMEA receiver.
type ReceiverConfig struct {
	// MaxAge marks a fix stale once it is older than this (0 = never stale).
	MaxAge time.Duration

	// Logger for receiver operations.
	Logger zerolog.Logger
}

// Receiver keeps the last valid fix decoded from NMEA sentences.
// It is safe for concurrent use: a source goroutine feeds it while the
// tracker reads the location each tick.
type Receiver struct {
	maxAge time.Duration
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	last      Location
	fixedAt   time.Time
	sentences uint64
	rejected  uint64
}

// NewReceiver creates a receiver with no fix.
func NewReceiver(cfg ReceiverConfig) *Receiver {
	return &Receiver{
		maxAge: cfg.MaxAge,
		logger: cfg.Logger,
		now:    time.Now,
	}
}

// Feed parses a single NMEA sentence and updates the fix when it carries a valid position.
// RMC and GGA sentences are used; other sentence types are ignored.
func (r *Receiver) Feed(sentence string) error {
	s, err := nmea.Parse(sentence)
	if err != nil {
		r.countRejected()
		return fmt.Errorf("parsing nmea sentence: %w", err)
	}

	var lat, lon float64
	switch m := s.(type) {
	case nmea.RMC:
		if m.Validity != nmea.ValidRMC {
			r.countSentence()
			return ErrNoPosition
		}
		lat, lon = m.Latitude, m.Longitude
	case nmea.GGA:
		if m.FixQuality == nmea.Invalid {
			r.countSentence()
			return ErrNoPosition
		}
		lat, lon = m.Latitude, m.Longitude
	default:
		r.countSentence()
		return nil
	}

	r.mu.Lock()
	first := !r.last.Valid
	r.last = Location{Latitude: lat, Longitude: lon, Valid: true}
	r.fixedAt = r.now()
	r.sentences++
	r.mu.Unlock()

	if first {
		r.logger.Info().
			Float64("lat", lat).
			Float64("lon", lon).
			Str("sentence", s.DataType()).
			Msg("gps fix acquired")
	}
	return nil
}

// Location returns the last valid fix. The fix stays valid once acquired
// unless MaxAge is set and the fix has aged out.
func (r *Receiver) Location() Location {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loc := r.last
	if loc.Valid && r.maxAge > 0 && r.now().Sub(r.fixedAt) > r.maxAge {
		loc.Valid = false
	}
	return loc
}

// Stats returns the number of parsed and rejected sentences.
func (r *Receiver) Stats() (parsed, rejected uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sentences, r.rejected
}

func (r *Receiver) countSentence() {
	r.mu.Lock()
	r.sentences++
	r.mu.Unlock()
}

func (r *Receiver) countRejected() {
	r.mu.Lock()
	r.rejected++
	r.mu.Unlock()
}
