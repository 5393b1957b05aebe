package backend

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	// ProviderName identifies the departures backend.
	ProviderName = "departures-backend"

	// DefaultPort is the HTTPS port.
	DefaultPort = 443
)

// Getter performs a single GET against a host.
type Getter interface {
	Get(ctx context.Context, host string, port int, path string, timeout time.Duration) (*Response, error)
}

// ClientConfig holds configuration for the backend client.
type ClientConfig struct {
	// Host is the backend host name (required).
	Host string

	// Port is the backend TLS port. Default: 443
	Port int

	// Timeout bounds each fetch. Default: 8 seconds
	Timeout time.Duration

	// Fetcher performs the request (required).
	Fetcher Getter

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches departure documents from the configured backend.
type Client struct {
	host    string
	port    int
	timeout time.Duration
	fetcher Getter
	logger  zerolog.Logger
}

// NewClient creates a new backend client.
func NewClient(cfg ClientConfig) *Client {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		host:    cfg.Host,
		port:    port,
		timeout: timeout,
		fetcher: cfg.Fetcher,
		logger:  cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Fetch requests path from the backend.
func (c *Client) Fetch(ctx context.Context, path string) (*Response, error) {
	start := time.Now()
	resp, err := c.fetcher.Get(ctx, c.host, c.port, path, c.timeout)

	event := c.logger.Debug()
	if err != nil {
		event = c.logger.Warn().Err(err)
	}
	if resp != nil {
		event = event.Int("status_code", resp.StatusCode).
			Int("bytes", len(resp.Body)).
			Bool("timed_out", resp.TimedOut)
	}
	event.Str("host", c.host).
		Str("path", path).
		Dur("duration", time.Since(start)).
		Msg("backend fetch")

	return resp, err
}
