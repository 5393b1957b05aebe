// Package tracker drives the departure pipeline: connectivity, poll pacing,
// location, fetch, decode and storage, one tick at a time.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tramboard/tramboard/internal/location"
	"github.com/tramboard/tramboard/internal/transit"
	"github.com/tramboard/tramboard/internal/transit/backend"
)

// DefaultTickPeriod is how often Run calls Tick.
const DefaultTickPeriod = time.Second

// Outcome is the result of a single tick.
type Outcome int

// Tick outcomes.
const (
	OutcomeOffline Outcome = iota
	OutcomeNotDue
	OutcomeInvalidLocation
	OutcomeFetchFailed
	OutcomeParseFailed
	OutcomeUpdated
)

var outcomeNames = [...]string{
	OutcomeOffline:         "offline",
	OutcomeNotDue:          "not_due",
	OutcomeInvalidLocation: "invalid_location",
	OutcomeFetchFailed:     "fetch_failed",
	OutcomeParseFailed:     "parse_failed",
	OutcomeUpdated:         "updated",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// OfflinePolicy decides what happens to held departures while the link is down.
type OfflinePolicy string

// Offline policies.
const (
	// OfflineRetain keeps the last departures on display.
	OfflineRetain OfflinePolicy = "retain"

	// OfflineClear empties the store on every offline tick.
	OfflineClear OfflinePolicy = "clear"
)

// Fetcher retrieves the departures document for a request path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (*backend.Response, error)
}

// Config holds the collaborators and settings of a Tracker.
type Config struct {
	// Link reports connectivity. Default: AlwaysOnline
	Link Link

	// Location supplies the current fix (required).
	Location location.Provider

	// Fetcher retrieves departure documents (required).
	Fetcher Fetcher

	// Clock drives the poll scheduler. Default: a MonotonicClock
	Clock Clock

	// Store receives decoded departures. Default: a store of DefaultCapacity
	Store *transit.Store

	// Decoder parses response bodies. Default: a decoder sized to Store
	Decoder *transit.Decoder

	// Paths formats request paths. Default: 30 minute window
	Paths backend.PathBuilder

	// PollInterval in milliseconds. Default: 30000
	PollInterval uint32

	// OfflinePolicy applies while offline. Default: OfflineRetain
	OfflinePolicy OfflinePolicy

	// Metrics records tick metrics. Optional.
	Metrics *Metrics

	// Logger for tracker operations.
	Logger zerolog.Logger
}

// Tracker owns the departure store and refreshes it from the backend.
type Tracker struct {
	conn      *Connectivity
	scheduler *Scheduler
	clock     Clock
	location  location.Provider
	fetcher   Fetcher
	store     *transit.Store
	decoder   *transit.Decoder
	paths     backend.PathBuilder
	offline   OfflinePolicy
	metrics   *Metrics
	tracer    trace.Tracer
	logger    zerolog.Logger

	// mu serializes ticks; the store has its own lock for readers.
	mu    sync.Mutex
	stats *Stats
}

// New creates a tracker.
func New(cfg Config) *Tracker {
	clock := cfg.Clock
	if clock == nil {
		clock = NewMonotonicClock()
	}

	store := cfg.Store
	if store == nil {
		store = transit.NewStore(transit.DefaultCapacity)
	}

	decoder := cfg.Decoder
	if decoder == nil {
		decoder = transit.NewDecoder(store.Capacity())
	}

	offline := cfg.OfflinePolicy
	if offline == "" {
		offline = OfflineRetain
	}

	return &Tracker{
		conn:      NewConnectivity(cfg.Link),
		scheduler: NewScheduler(cfg.PollInterval),
		clock:     clock,
		location:  cfg.Location,
		fetcher:   cfg.Fetcher,
		store:     store,
		decoder:   decoder,
		paths:     cfg.Paths,
		offline:   offline,
		metrics:   cfg.Metrics,
		tracer:    otel.Tracer(tracerName),
		logger:    cfg.Logger,
		stats:     newStats(),
	}
}

// Tick runs one pass of the pipeline. Failures are absorbed into the outcome.
func (t *Tracker) Tick(ctx context.Context) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx, span := t.tracer.Start(ctx, "tracker.tick")
	defer span.End()

	outcome := t.tick(ctx, span)

	span.SetAttributes(attribute.String("tracker.outcome", outcome.String()))
	if outcome == OutcomeFetchFailed || outcome == OutcomeParseFailed {
		span.SetStatus(codes.Error, outcome.String())
	}
	t.metrics.recordTick(ctx, outcome)
	t.stats.record(outcome, time.Now())

	return outcome
}

func (t *Tracker) tick(ctx context.Context, span trace.Span) Outcome {
	wasOnline := t.conn.IsOnline()
	online := t.conn.Refresh()
	if online != wasOnline {
		t.logger.Info().Bool("online", online).Msg("connectivity changed")
	}

	if !online {
		if t.offline == OfflineClear {
			t.clear(ctx)
		}
		return OutcomeOffline
	}

	now := t.clock.Millis()
	if !t.scheduler.DueForPoll(now) {
		return OutcomeNotDue
	}
	t.scheduler.MarkPolled(now)

	loc := t.location.Location()
	if !loc.Valid {
		t.logger.Warn().Str("outcome", OutcomeInvalidLocation.String()).Msg("no location fix, skipping poll")
		t.clear(ctx)
		return OutcomeInvalidLocation
	}

	path := t.paths.Build(loc)
	span.SetAttributes(attribute.String("tracker.path", path))

	start := time.Now()
	resp, err := t.fetcher.Fetch(ctx, path)
	duration := time.Since(start)
	t.metrics.recordFetch(ctx, duration, err == nil)
	t.stats.recordFetch(duration, err)

	if err != nil {
		t.logger.Warn().
			Err(err).
			Str("outcome", OutcomeFetchFailed.String()).
			Dur("duration", duration).
			Msg("fetching departures failed")
		span.RecordError(err)
		t.clear(ctx)
		return OutcomeFetchFailed
	}

	departures, err := t.decoder.Decode(resp.Body)
	if err != nil {
		event := t.logger.Warn()
		if errors.Is(err, transit.ErrDocumentTooLarge) {
			event = t.logger.Error()
		}
		event.Err(err).
			Str("outcome", OutcomeParseFailed.String()).
			Int("status_code", resp.StatusCode).
			Int("bytes", len(resp.Body)).
			Msg("decoding departures failed")
		span.RecordError(err)
		t.clear(ctx)
		return OutcomeParseFailed
	}

	count := t.store.Replace(departures)
	t.metrics.recordDepartures(ctx, count)
	t.logger.Info().
		Str("outcome", OutcomeUpdated.String()).
		Int("count", count).
		Int("status_code", resp.StatusCode).
		Dur("duration", duration).
		Msg("departures updated")

	return OutcomeUpdated
}

func (t *Tracker) clear(ctx context.Context) {
	t.store.Clear()
	t.metrics.recordDepartures(ctx, 0)
}

// Run ticks immediately and then every period until ctx is done.
func (t *Tracker) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		period = DefaultTickPeriod
	}

	t.logger.Info().
		Dur("tick_period", period).
		Uint32("poll_interval_ms", t.scheduler.Interval()).
		Str("offline_policy", string(t.offline)).
		Msg("tracker started")

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	t.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("tracker stopped")
			return ctx.Err()
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Departures returns a copy of the held departures.
func (t *Tracker) Departures() transit.Snapshot {
	return t.store.Snapshot()
}

// IsOnline returns the connectivity observed by the latest tick.
func (t *Tracker) IsOnline() bool {
	return t.conn.IsOnline()
}

// Stats returns a copy of the tick statistics.
func (t *Tracker) Stats() StatsSnapshot {
	return t.stats.snapshot()
}
