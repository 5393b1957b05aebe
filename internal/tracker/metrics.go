package tracker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName  = "github.com/tramboard/tramboard/internal/tracker"
	tracerName = "github.com/tramboard/tramboard/internal/tracker"
)

// Metrics holds the OpenTelemetry instruments of the tick pipeline.
// A nil *Metrics records nothing.
type Metrics struct {
	ticks         metric.Int64Counter
	fetchDuration metric.Float64Histogram
	departures    metric.Int64Gauge
}

// NewMetrics creates the tracker instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	ticks, err := meter.Int64Counter(
		"tracker.tick.total",
		metric.WithDescription("Number of tracker ticks by outcome"),
		metric.WithUnit("{tick}"),
	)
	if err != nil {
		return nil, err
	}

	fetchDuration, err := meter.Float64Histogram(
		"tracker.fetch.duration",
		metric.WithDescription("Duration of backend fetches in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	departures, err := meter.Int64Gauge(
		"tracker.departures.count",
		metric.WithDescription("Number of departures currently held"),
		metric.WithUnit("{departure}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ticks:         ticks,
		fetchDuration: fetchDuration,
		departures:    departures,
	}, nil
}

func (m *Metrics) recordTick(ctx context.Context, outcome Outcome) {
	if m == nil {
		return
	}
	m.ticks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome.String())))
}

func (m *Metrics) recordFetch(ctx context.Context, d time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.fetchDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("success", ok)))
}

func (m *Metrics) recordDepartures(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.departures.Record(ctx, int64(n))
}
