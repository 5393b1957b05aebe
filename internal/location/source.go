package location

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tarm/serial"
)

// Consume reads NMEA sentences line by line from r and feeds them to the receiver
// until r is exhausted or ctx is done. Unparseable sentences are skipped.
func (r *Receiver) Consume(ctx context.Context, src io.Reader) error {
	scanner := bufio.NewScanner(src)
	scanner.Split(scanNMEALines)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}
		if err := r.Feed(line); err != nil && !errors.Is(err, ErrNoPosition) {
			r.logger.Debug().Err(err).Str("sentence", line).Msg("skipping nmea sentence")
		}
	}
	return scanner.Err()
}

// scanNMEALines splits on '\n' or '\r' so both CRLF and bare-CR devices work.
func scanNMEALines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// SerialConfig describes a GPS module attached to a UART.
type SerialConfig struct {
	// Device is the serial device path (e.g. /dev/ttyS1, /dev/ttyUSB0).
	Device string

	// Baud is the line speed. Default: 9600
	Baud int

	// Retry controls reopening the port after it fails.
	Retry RetryConfig

	// Open opens the port. Default: OpenSerial
	Open func(SerialConfig) (io.ReadCloser, error)
}

// OpenSerial opens the serial port of a GPS module.
func OpenSerial(cfg SerialConfig) (io.ReadCloser, error) {
	baud := cfg.Baud
	if baud == 0 {
		baud = 9600
	}

	port, err := serial.OpenPort(&serial.Config{
		Name: cfg.Device,
		Baud: baud,
	})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", cfg.Device, err)
	}
	return port, nil
}

// RunSerial feeds the receiver from a serial GPS, reopening the port with
// exponential backoff when it fails or disappears. It returns when ctx is done.
func (r *Receiver) RunSerial(ctx context.Context, cfg SerialConfig) error {
	open := cfg.Open
	if open == nil {
		open = OpenSerial
	}

	return r.runStream(ctx, cfg.Retry, func(context.Context) (io.ReadCloser, string, error) {
		port, err := open(cfg)
		if err != nil {
			return nil, cfg.Device, err
		}
		r.logger.Info().Str("device", cfg.Device).Msg("reading gps from serial port")
		return port, cfg.Device, nil
	})
}

// TCPConfig describes a network NMEA source, such as a GPS forwarder.
type TCPConfig struct {
	// Address is host:port of the NMEA stream.
	Address string

	// DialTimeout bounds each connection attempt. Default: 5 seconds
	DialTimeout time.Duration

	// InitialInterval is the first reconnect delay. Default: 1 second
	InitialInterval time.Duration

	// MaxInterval caps the reconnect delay. Default: 60 seconds
	MaxInterval time.Duration
}

// RunTCP feeds the receiver from a TCP NMEA stream, reconnecting with
// exponential backoff whenever the stream drops. It returns when ctx is done.
func (r *Receiver) RunTCP(ctx context.Context, cfg TCPConfig) error {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}

	retry := RetryConfig{InitialInterval: cfg.InitialInterval, MaxInterval: cfg.MaxInterval}
	return r.runStream(ctx, retry, func(ctx context.Context) (io.ReadCloser, string, error) {
		conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
		if err != nil {
			return nil, cfg.Address, err
		}
		r.logger.Info().Str("addr", cfg.Address).Msg("network gps connected")
		return conn, cfg.Address, nil
	})
}

// RetryConfig controls how a dropped NMEA stream is reopened.
type RetryConfig struct {
	// InitialInterval is the first reopen delay. Default: 1 second
	InitialInterval time.Duration

	// MaxInterval caps the reopen delay. Default: 60 seconds
	MaxInterval time.Duration
}

// runStream opens a stream, consumes it until it ends and reopens it with
// backoff, forever, until ctx is done.
func (r *Receiver) runStream(
	ctx context.Context,
	cfg RetryConfig,
	open func(context.Context) (io.ReadCloser, string, error),
) error {
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 1 * time.Second
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 60 * time.Second
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.MaxInterval = cfg.MaxInterval
	bo.MaxElapsedTime = 0 // Reopen forever

	operation := func() error {
		stream, name, err := open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer stream.Close()

		stop := context.AfterFunc(ctx, func() { stream.Close() })
		defer stop()

		bo.Reset()

		err = r.Consume(ctx, stream)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err == nil {
			err = io.EOF
		}
		return fmt.Errorf("nmea stream from %s ended: %w", name, err)
	}

	notify := func(err error, next time.Duration) {
		r.logger.Warn().Err(err).Dur("retry_in", next).Msg("gps unavailable")
	}

	return backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify)
}
