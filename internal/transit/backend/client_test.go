package backend_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tramboard/tramboard/internal/transit/backend"
)

type recordingGetter struct {
	host    string
	port    int
	path    string
	timeout time.Duration
	resp    *backend.Response
	err     error
}

func (g *recordingGetter) Get(_ context.Context, host string, port int, path string, timeout time.Duration) (*backend.Response, error) {
	g.host, g.port, g.path, g.timeout = host, port, path, timeout
	return g.resp, g.err
}

func TestClient_Defaults(t *testing.T) {
	getter := &recordingGetter{resp: &backend.Response{StatusCode: 200, Body: []byte("[]")}}
	client := backend.NewClient(backend.ClientConfig{
		Host:    "departures.example.org",
		Fetcher: getter,
		Logger:  zerolog.Nop(),
	})

	resp, err := client.Fetch(context.Background(), "/v1/departures?lat=1.000000&lon=2.000000&minutes=30")
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), resp.Body)

	assert.Equal(t, "departures.example.org", getter.host)
	assert.Equal(t, backend.DefaultPort, getter.port)
	assert.Equal(t, backend.DefaultTimeout, getter.timeout)
	assert.Equal(t, "/v1/departures?lat=1.000000&lon=2.000000&minutes=30", getter.path)
	assert.Equal(t, backend.ProviderName, client.Name())
}

func TestClient_PassesConfiguredValues(t *testing.T) {
	getter := &recordingGetter{err: backend.ErrConnect}
	client := backend.NewClient(backend.ClientConfig{
		Host:    "localhost",
		Port:    8443,
		Timeout: 2 * time.Second,
		Fetcher: getter,
		Logger:  zerolog.Nop(),
	})

	_, err := client.Fetch(context.Background(), "/x")
	assert.ErrorIs(t, err, backend.ErrConnect)
	assert.Equal(t, 8443, getter.port)
	assert.Equal(t, 2*time.Second, getter.timeout)
}
