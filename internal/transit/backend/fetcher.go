// Package backend talks to the departures backend over a raw TLS connection.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http/httputil"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds the connect of a single fetch, and separately its
	// request and read.
	DefaultTimeout = 8 * time.Second

	// DefaultMaxResponseBytes caps how much of a response is buffered.
	DefaultMaxResponseBytes = 64 << 10
)

// Fetch errors.
var (
	// ErrTLSDisabled is returned when encryption is turned off. Plaintext is never used.
	ErrTLSDisabled = errors.New("tls is disabled")

	// ErrConnect is returned when the connection or handshake cannot be established.
	ErrConnect = errors.New("connecting to backend")

	// ErrEmptyResponse is returned when no body could be extracted.
	ErrEmptyResponse = errors.New("empty response body")
)

var headerDelimiter = []byte("\r\n\r\n")

// Dialer opens the transport connection to the backend.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// TLSDialer dials TCP and performs a TLS handshake under a trust policy.
type TLSDialer struct {
	Trust TrustPolicy
}

// DialContext connects to addr and completes the handshake before returning.
func (d *TLSDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	trust := d.Trust
	if trust == nil {
		trust = AcceptAll{}
	}
	cfg, err := trust.TLSConfig(host)
	if err != nil {
		return nil, err
	}

	dialer := &tls.Dialer{Config: cfg}
	return dialer.DialContext(ctx, network, addr)
}

// FetcherConfig holds configuration for the secure fetcher.
type FetcherConfig struct {
	// TLSEnabled must be true; a fetcher with TLS disabled refuses every request.
	TLSEnabled bool

	// Dialer opens connections. If nil, a TLSDialer with Trust is used.
	Dialer Dialer

	// Trust is the certificate policy for the default dialer. Default: AcceptAll
	Trust TrustPolicy

	// MaxResponseBytes caps the buffered response. Default: 64 KiB
	MaxResponseBytes int64

	// Logger for fetch operations.
	Logger zerolog.Logger
}

// Response is what came back from a single GET.
type Response struct {
	// StatusCode is parsed from the status line, 0 when there was none.
	StatusCode int

	// Header holds the response headers, empty when there were none.
	Header textproto.MIMEHeader

	// Body is the payload after the header block.
	Body []byte

	// TimedOut is true when reading stopped at the deadline rather than at close.
	TimedOut bool
}

// Fetcher performs one-shot HTTP/1.1 GETs over TLS.
type Fetcher struct {
	tlsEnabled bool
	dialer     Dialer
	maxBytes   int64
	logger     zerolog.Logger
}

// NewFetcher creates a new secure fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &TLSDialer{Trust: cfg.Trust}
	}

	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}

	return &Fetcher{
		tlsEnabled: cfg.TLSEnabled,
		dialer:     dialer,
		maxBytes:   maxBytes,
		logger:     cfg.Logger,
	}
}

// Get sends a single GET for path to host:port and returns the body.
// A response with an empty body is returned together with ErrEmptyResponse.
//
// timeout bounds the connect and handshake. A fresh timeout window then starts
// once the connection is up and covers writing the request and reading the
// response. Reading stops when the peer closes the connection or the deadline
// passes; whatever arrived before the deadline is kept. The connection is
// always closed before Get returns.
func (f *Fetcher) Get(ctx context.Context, host string, port int, path string, timeout time.Duration) (*Response, error) {
	if !f.tlsEnabled {
		return nil, ErrTLSDisabled
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialCtx, cancelDial := context.WithTimeout(ctx, timeout)
	conn, err := f.dialer.DialContext(dialCtx, "tcp", addr)
	cancelDial()
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrConnect, addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("%w %s: setting deadline: %w", ErrConnect, addr, err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	request := "GET " + path + " HTTP/1.1\r\nHost: " + host + "\r\nConnection: close\r\n\r\n"
	if _, err := io.WriteString(conn, request); err != nil {
		return nil, fmt.Errorf("%w %s: writing request: %w", ErrConnect, addr, err)
	}

	raw, err := io.ReadAll(io.LimitReader(conn, f.maxBytes))
	timedOut := errors.Is(err, os.ErrDeadlineExceeded)
	if err != nil && !timedOut {
		f.logger.Debug().Err(err).Str("addr", addr).Int("bytes", len(raw)).Msg("read ended with error")
	}

	resp := splitResponse(raw)
	resp.TimedOut = timedOut

	if len(resp.Body) == 0 {
		return resp, ErrEmptyResponse
	}
	return resp, nil
}

// splitResponse separates the header block from the body. Without a header
// delimiter the whole payload is the body.
func splitResponse(raw []byte) *Response {
	idx := bytes.Index(raw, headerDelimiter)
	if idx < 0 {
		return &Response{Header: textproto.MIMEHeader{}, Body: raw}
	}

	resp := &Response{Body: raw[idx+len(headerDelimiter):]}
	resp.StatusCode, resp.Header = parseHeader(raw[:idx+len(headerDelimiter)])

	if strings.EqualFold(resp.Header.Get("Transfer-Encoding"), "chunked") {
		if body, err := io.ReadAll(httputil.NewChunkedReader(bytes.NewReader(resp.Body))); err == nil {
			resp.Body = body
		}
	}
	return resp
}

func parseHeader(block []byte) (int, textproto.MIMEHeader) {
	r := textproto.NewReader(bufio.NewReader(bytes.NewReader(block)))

	line, err := r.ReadLine()
	if err != nil {
		return 0, textproto.MIMEHeader{}
	}

	status := 0
	if fields := strings.Fields(line); len(fields) >= 2 && strings.HasPrefix(fields[0], "HTTP/") {
		status, _ = strconv.Atoi(fields[1])
	}

	// A malformed header line still yields the fields read before it.
	header, _ := r.ReadMIMEHeader()
	if header == nil {
		header = textproto.MIMEHeader{}
	}
	return status, header
}
