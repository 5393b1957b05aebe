package location_test

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tramboard/tramboard/internal/location"
)

const (
	rmcValid   = "$GPRMC,123519,A,5231.2004,N,01324.2972,E,022.4,084.4,230394,003.1,W*61"
	rmcVoid    = "$GPRMC,123519,V,5231.2004,N,01324.2972,E,022.4,084.4,230394,003.1,W*76"
	ggaFix     = "$GPGGA,123520,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*4D"
	ggaNoFix   = "$GPGGA,123519,,,,,0,00,99.9,,M,,M,,*7C"
	vtgCourse  = "$GPVTG,054.7,T,034.4,M,005.5,N,010.2,K*48"
	badChecksm = "$GPRMC,123519,A,5231.2004,N,01324.2972,E,022.4,084.4,230394,003.1,W*00"
)

func newReceiver() *location.Receiver {
	return location.NewReceiver(location.ReceiverConfig{Logger: zerolog.Nop()})
}

func TestReceiver_NoFixInitially(t *testing.T) {
	r := newReceiver()

	loc := r.Location()
	assert.False(t, loc.Valid)
	assert.Equal(t, "no fix", loc.String())
}

func TestReceiver_RMCFix(t *testing.T) {
	r := newReceiver()

	require.NoError(t, r.Feed(rmcValid))

	loc := r.Location()
	require.True(t, loc.Valid)
	assert.InDelta(t, 52.520007, loc.Latitude, 1e-6)
	assert.InDelta(t, 13.404953, loc.Longitude, 1e-6)
}

func TestReceiver_GGAFix(t *testing.T) {
	r := newReceiver()

	require.NoError(t, r.Feed(ggaFix))

	loc := r.Location()
	require.True(t, loc.Valid)
	assert.InDelta(t, 48.1173, loc.Latitude, 1e-6)
	assert.InDelta(t, 11.516667, loc.Longitude, 1e-6)
}

func TestReceiver_VoidRMCDoesNotSetFix(t *testing.T) {
	r := newReceiver()

	err := r.Feed(rmcVoid)
	assert.ErrorIs(t, err, location.ErrNoPosition)
	assert.False(t, r.Location().Valid)
}

func TestReceiver_InvalidGGADoesNotSetFix(t *testing.T) {
	r := newReceiver()

	assert.Error(t, r.Feed(ggaNoFix))
	assert.False(t, r.Location().Valid)
}

func TestReceiver_KeepsLastFixWhenSignalLost(t *testing.T) {
	r := newReceiver()

	require.NoError(t, r.Feed(rmcValid))
	_ = r.Feed(rmcVoid)

	loc := r.Location()
	assert.True(t, loc.Valid)
	assert.InDelta(t, 52.520007, loc.Latitude, 1e-6)
}

func TestReceiver_IgnoresOtherSentences(t *testing.T) {
	r := newReceiver()

	require.NoError(t, r.Feed(vtgCourse))
	assert.False(t, r.Location().Valid)

	parsed, rejected := r.Stats()
	assert.Equal(t, uint64(1), parsed)
	assert.Equal(t, uint64(0), rejected)
}

func TestReceiver_RejectsBadChecksum(t *testing.T) {
	r := newReceiver()

	assert.Error(t, r.Feed(badChecksm))
	assert.False(t, r.Location().Valid)

	_, rejected := r.Stats()
	assert.Equal(t, uint64(1), rejected)
}

func TestReceiver_MaxAge(t *testing.T) {
	r := location.NewReceiver(location.ReceiverConfig{
		MaxAge: 20 * time.Millisecond,
		Logger: zerolog.Nop(),
	})

	require.NoError(t, r.Feed(rmcValid))
	assert.True(t, r.Location().Valid)

	assert.Eventually(t, func() bool {
		return !r.Location().Valid
	}, time.Second, 5*time.Millisecond)
}

func TestReceiver_Consume(t *testing.T) {
	r := newReceiver()

	stream := strings.Join([]string{
		"garbage line",
		vtgCourse,
		badChecksm,
		rmcVoid,
		ggaFix,
	}, "\r\n") + "\r\n"

	err := r.Consume(context.Background(), strings.NewReader(stream))
	require.NoError(t, err)

	loc := r.Location()
	require.True(t, loc.Valid)
	assert.InDelta(t, 48.1173, loc.Latitude, 1e-6)
}

func TestReceiver_ConsumeBareCarriageReturns(t *testing.T) {
	r := newReceiver()

	err := r.Consume(context.Background(), strings.NewReader(rmcVoid+"\r"+rmcValid+"\r"))
	require.NoError(t, err)
	assert.True(t, r.Location().Valid)
}

func TestReceiver_RunTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte(rmcValid + "\r\n"))
		time.Sleep(200 * time.Millisecond)
	}()

	r := newReceiver()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- r.RunTCP(ctx, location.TCPConfig{
			Address:         ln.Addr().String(),
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     20 * time.Millisecond,
		})
	}()

	assert.Eventually(t, func() bool {
		return r.Location().Valid
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("RunTCP did not return after cancel")
	}
}

// unpluggedPort delivers its sentences and then fails like a removed USB device.
type unpluggedPort struct {
	r io.Reader
}

func (p *unpluggedPort) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if errors.Is(err, io.EOF) {
		return n, errors.New("read /dev/ttyUSB0: input/output error")
	}
	return n, err
}

func (p *unpluggedPort) Close() error { return nil }

func TestReceiver_RunSerialReopensAfterReadError(t *testing.T) {
	var opens atomic.Int32
	open := func(location.SerialConfig) (io.ReadCloser, error) {
		switch opens.Add(1) {
		case 1:
			return &unpluggedPort{r: strings.NewReader(ggaNoFix + "\r\n")}, nil
		case 2:
			return nil, errors.New("open /dev/ttyUSB0: no such file or directory")
		default:
			return &unpluggedPort{r: strings.NewReader(rmcValid + "\r\n")}, nil
		}
	}

	r := newReceiver()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- r.RunSerial(ctx, location.SerialConfig{
			Device: "/dev/ttyUSB0",
			Open:   open,
			Retry: location.RetryConfig{
				InitialInterval: 5 * time.Millisecond,
				MaxInterval:     10 * time.Millisecond,
			},
		})
	}()

	assert.Eventually(t, func() bool {
		return r.Location().Valid
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, opens.Load(), int32(3))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("RunSerial did not return after cancel")
	}
}

func TestStatic(t *testing.T) {
	s := location.Static{Latitude: 52.520007, Longitude: 13.404954}

	loc := s.Location()
	assert.True(t, loc.Valid)
	assert.Equal(t, "52.520007,13.404954", loc.String())
}

func TestProviderFunc(t *testing.T) {
	p := location.ProviderFunc(func() location.Location {
		return location.Location{Latitude: 1, Longitude: 2, Valid: true}
	})

	assert.Equal(t, 1.0, p.Location().Latitude)
}
