package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/tramboard/tramboard/internal/transit/backend"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Fetcher fetches a departures document for a request path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (*backend.Response, error)
}

// FetcherConfig holds configuration for the breaker-guarded fetcher.
type FetcherConfig struct {
	// Name identifies the provider in the registry and in logs.
	Name string

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry receives health updates. Optional.
	Registry *Registry

	// Logger for breaker state changes.
	Logger zerolog.Logger
}

// BreakerFetcher wraps a Fetcher with a circuit breaker.
//
// A transport failure counts against the breaker and is returned. A 5xx
// response also counts against the breaker but is still handed to the caller,
// since the body may decode. While the circuit is open, Fetch fails fast with
// ErrCircuitOpen without touching the network.
type BreakerFetcher struct {
	name     string
	next     Fetcher
	cb       *gobreaker.CircuitBreaker[*backend.Response]
	registry *Registry
	logger   zerolog.Logger
}

// NewBreakerFetcher creates a breaker around next and registers it when a registry is configured.
func NewBreakerFetcher(next Fetcher, cfg FetcherConfig) *BreakerFetcher {
	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
		if cbConfig.Name == "" {
			cbConfig.Name = cfg.Name
		}
	}

	logger := cfg.Logger
	if cbConfig.OnStateChange == nil {
		cbConfig.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		}
	}

	f := &BreakerFetcher{
		name:     cfg.Name,
		next:     next,
		cb:       NewCircuitBreaker[*backend.Response](cbConfig),
		registry: cfg.Registry,
		logger:   logger,
	}

	if f.registry != nil {
		f.registry.Register(f.name, f)
	}
	return f
}

// Name returns the provider name.
func (f *BreakerFetcher) Name() string {
	return f.name
}

// Fetch executes the wrapped fetch through the circuit breaker.
func (f *BreakerFetcher) Fetch(ctx context.Context, path string) (*backend.Response, error) {
	resp, err := f.cb.Execute(func() (*backend.Response, error) {
		r, err := f.next.Fetch(ctx, path)
		if err != nil {
			return r, err
		}
		if r != nil && r.StatusCode >= 500 {
			return r, &ServerError{StatusCode: r.StatusCode}
		}
		return r, nil
	})

	var serverErr *ServerError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, f.name)
	case errors.As(err, &serverErr):
		f.recordFailure(err)
		return resp, nil
	case err != nil:
		f.recordFailure(err)
		return resp, err
	}

	if f.registry != nil {
		f.registry.RecordSuccess(f.name)
	}
	return resp, nil
}

func (f *BreakerFetcher) recordFailure(err error) {
	if f.registry != nil {
		f.registry.RecordFailure(f.name, err)
	}
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (f *BreakerFetcher) CircuitBreakerState() gobreaker.State {
	return f.cb.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (f *BreakerFetcher) CircuitBreakerCounts() gobreaker.Counts {
	return f.cb.Counts()
}

// ServerError represents an HTTP 5xx server error.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}
