// Package main provides the entrypoint of the tramboard departure tracker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tramboard/tramboard/internal/api"
	"github.com/tramboard/tramboard/internal/api/middleware"
	"github.com/tramboard/tramboard/internal/config"
	"github.com/tramboard/tramboard/internal/location"
	"github.com/tramboard/tramboard/internal/provider/resilience"
	"github.com/tramboard/tramboard/internal/render"
	"github.com/tramboard/tramboard/internal/telemetry"
	"github.com/tramboard/tramboard/internal/tracker"
	"github.com/tramboard/tramboard/internal/transit"
	"github.com/tramboard/tramboard/internal/transit/backend"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "tramboard"

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := newLogger(cfg.Log)
	log.Info().
		Str("build_time", BuildTime).
		Str("backend", cfg.Backend.Host).
		Msg("starting tramboard")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.Endpoint,
		Enabled:        cfg.Telemetry.Enabled,
		ExportInterval: cfg.Telemetry.ExportInterval(),
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shut down telemetry")
		}
	}()
	if cfg.Telemetry.Enabled {
		log.Info().Str("otlp_endpoint", cfg.Telemetry.Endpoint).Msg("OpenTelemetry initialized")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("tramboard stopped with error")
		return
	}
	log.Info().Msg("tramboard stopped")
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	var log zerolog.Logger
	if cfg.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	} else {
		log = zerolog.New(os.Stdout)
	}
	return log.Level(cfg.ZerologLevel()).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()
}

// run wires the pipeline and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := resilience.NewRegistry()

	fetcher, err := newBackendFetcher(cfg, registry, log)
	if err != nil {
		return err
	}

	loc := newLocationProvider(cfg.Location, log)

	var link tracker.Link = tracker.AlwaysOnline{}
	if cfg.Link.Interface != "" {
		link = tracker.InterfaceLink{Name: cfg.Link.Interface}
	}

	trackerMetrics, err := tracker.NewMetrics()
	if err != nil {
		return err
	}

	store := transit.NewStore(cfg.Poll.Capacity)
	decoder := transit.NewDecoder(store.Capacity())
	if cfg.Poll.DocumentBudget > 0 {
		decoder.Budget = cfg.Poll.DocumentBudget
	}

	trk := tracker.New(tracker.Config{
		Link:          link,
		Location:      loc.provider,
		Fetcher:       fetcher,
		Clock:         tracker.NewMonotonicClock(),
		Store:         store,
		Decoder:       decoder,
		Paths:         backend.PathBuilder{Minutes: cfg.Backend.WindowMinutes},
		PollInterval:  cfg.Poll.IntervalMS,
		OfflinePolicy: tracker.OfflinePolicy(cfg.Poll.OfflinePolicy),
		Metrics:       trackerMetrics,
		Logger:        log.With().Str("component", "tracker").Logger(),
	})

	var wg sync.WaitGroup
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("component", name).Msg("component stopped")
			}
		}()
	}

	if loc.run != nil {
		spawn("location", loc.run)
	}
	spawn("tracker", func(ctx context.Context) error {
		return trk.Run(ctx, cfg.Poll.TickPeriod())
	})
	if cfg.Display.Console {
		console := render.NewConsole(render.ConsoleConfig{
			Out:    os.Stdout,
			Logger: log.With().Str("component", "console").Logger(),
		})
		spawn("console", func(ctx context.Context) error {
			return console.Run(ctx, trk)
		})
	}

	var serveErr error
	if cfg.API.Enabled {
		serveErr = serveAPI(ctx, cfg, trk, loc.provider, registry, log)
	} else {
		<-ctx.Done()
	}

	cancel()
	wg.Wait()
	return serveErr
}

func newBackendFetcher(cfg *config.Config, registry *resilience.Registry, log zerolog.Logger) (*resilience.BreakerFetcher, error) {
	trust, err := backend.NewTrustPolicy(backend.TrustConfig{
		Mode:        cfg.Trust.Mode,
		Fingerprint: cfg.Trust.Fingerprint,
		CAFile:      cfg.Trust.CAFile,
	})
	if err != nil {
		return nil, err
	}

	backendLog := log.With().Str("component", "backend").Logger()
	client := backend.NewClient(backend.ClientConfig{
		Host:    cfg.Backend.Host,
		Port:    cfg.Backend.Port,
		Timeout: cfg.Backend.Timeout(),
		Fetcher: backend.NewFetcher(backend.FetcherConfig{
			TLSEnabled:       cfg.Backend.TLS,
			Trust:            trust,
			MaxResponseBytes: cfg.Backend.MaxResponseBytes,
			Logger:           backendLog,
		}),
		Logger: backendLog,
	})
	if !cfg.Backend.TLS {
		log.Warn().Msg("backend TLS is disabled, every poll will fail")
	}

	breaker := resilience.DefaultCircuitBreakerConfig(client.Name())
	breaker.Timeout = cfg.Breaker.OpenTimeout()
	if cfg.Breaker.Enabled {
		breaker.ReadyToTrip = resilience.TripAfter(cfg.Breaker.ConsecutiveFailures)
	} else {
		breaker.ReadyToTrip = resilience.NeverTrip
	}

	return resilience.NewBreakerFetcher(client, resilience.FetcherConfig{
		Name:           client.Name(),
		CircuitBreaker: &breaker,
		Registry:       registry,
		Logger:         backendLog,
	}), nil
}

type locationSource struct {
	provider location.Provider
	run      func(context.Context) error
}

func newLocationProvider(cfg config.LocationConfig, log zerolog.Logger) locationSource {
	if cfg.Source == "static" {
		return locationSource{provider: location.Static{Latitude: cfg.Latitude, Longitude: cfg.Longitude}}
	}

	receiver := location.NewReceiver(location.ReceiverConfig{
		MaxAge: cfg.MaxAge(),
		Logger: log.With().Str("component", "location").Logger(),
	})

	src := locationSource{provider: receiver}
	switch cfg.Source {
	case "serial":
		src.run = func(ctx context.Context) error {
			return receiver.RunSerial(ctx, location.SerialConfig{Device: cfg.Device, Baud: cfg.Baud})
		}
	case "tcp":
		src.run = func(ctx context.Context) error {
			return receiver.RunTCP(ctx, location.TCPConfig{Address: cfg.Address})
		}
	}
	return src
}

func serveAPI(
	ctx context.Context,
	cfg *config.Config,
	trk *tracker.Tracker,
	loc location.Provider,
	registry *resilience.Registry,
	log zerolog.Logger,
) error {
	metrics, err := middleware.NewMetrics()
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr: cfg.API.Addr,
		Handler: api.NewRouter(api.RouterConfig{
			Version:           Version,
			BuildTime:         BuildTime,
			Logger:            log.With().Str("component", "api").Logger(),
			ServiceName:       serviceName,
			Metrics:           metrics,
			Tracker:           trk,
			Location:          loc,
			Registry:          registry,
			RequestsPerMinute: cfg.API.RequestsPerMinute,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
