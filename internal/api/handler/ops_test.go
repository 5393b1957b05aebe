package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tramboard/tramboard/internal/api/handler"
	"github.com/tramboard/tramboard/internal/api/models"
	"github.com/tramboard/tramboard/internal/location"
	"github.com/tramboard/tramboard/internal/provider/resilience"
	"github.com/tramboard/tramboard/internal/tracker"
	"github.com/tramboard/tramboard/internal/transit"
)

var fixedNow = time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC)

type fakeTracker struct {
	snap   transit.Snapshot
	online bool
	stats  tracker.StatsSnapshot
}

func (f *fakeTracker) Departures() transit.Snapshot { return f.snap }
func (f *fakeTracker) IsOnline() bool               { return f.online }
func (f *fakeTracker) Stats() tracker.StatsSnapshot { return f.stats }

type breakerState struct {
	state  gobreaker.State
	counts gobreaker.Counts
}

func (b breakerState) CircuitBreakerState() gobreaker.State   { return b.state }
func (b breakerState) CircuitBreakerCounts() gobreaker.Counts { return b.counts }

func newOps(tr *fakeTracker, loc location.Provider, reg handler.HealthRegistry) *handler.OpsHandler {
	return handler.NewOpsHandler(handler.OpsConfig{
		Version:  "1.2.3",
		Tracker:  tr,
		Location: loc,
		Registry: reg,
		Now:      func() time.Time { return fixedNow },
	})
}

func systemStatus(t *testing.T, h *handler.OpsHandler) models.SystemStatus {
	t.Helper()
	rec := httptest.NewRecorder()
	h.SystemStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	return status
}

func TestSystemStatus_Healthy(t *testing.T) {
	tr := &fakeTracker{
		snap: transit.Snapshot{
			Departures: []transit.Departure{transit.NewDeparture("M4", "Hbf", 3)},
			Count:      1,
			Capacity:   8,
			Generation: 3,
			UpdatedAt:  fixedNow.Add(-2 * time.Minute),
		},
		online: true,
		stats: tracker.StatsSnapshot{
			TotalTicks:        90,
			Outcomes:          map[string]uint64{"updated": 3, "not_due": 87},
			LastOutcome:       "not_due",
			Fetches:           3,
			LastFetchDuration: 420 * time.Millisecond,
			LastUpdatedAt:     fixedNow.Add(-2 * time.Minute),
		},
	}

	reg := resilience.NewRegistry()
	reg.Register("departures-backend", breakerState{state: gobreaker.StateClosed, counts: gobreaker.Counts{Requests: 3}})
	reg.RecordSuccess("departures-backend")

	status := systemStatus(t, newOps(tr, location.Static{Latitude: 52.5, Longitude: 13.4}, reg))

	assert.Equal(t, models.HealthStatusOK, status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	assert.Equal(t, "0s", status.Uptime)

	require.Len(t, status.Subsystems, 3)
	assert.Equal(t, "1 of 8, updated 2 minutes ago", status.Subsystems[2].Detail)

	require.Len(t, status.Providers, 1)
	assert.Equal(t, "departures-backend", status.Providers[0].Provider)
	assert.Equal(t, "closed", status.Providers[0].CircuitState)
	assert.Equal(t, uint32(3), status.Providers[0].Requests)
	assert.NotNil(t, status.Providers[0].LastSuccessAt)

	assert.Equal(t, uint64(90), status.Tracker.TotalTicks)
	assert.Equal(t, int64(420), status.Tracker.LastFetchMS)
	assert.Equal(t, "2 minutes ago", status.Tracker.LastUpdatedAgo)
}

func TestSystemStatus_Degraded(t *testing.T) {
	tests := []struct {
		name string
		loc  location.Provider
		reg  func() handler.HealthRegistry
	}{
		{
			name: "no fix",
			loc:  location.ProviderFunc(func() location.Location { return location.Location{} }),
			reg:  func() handler.HealthRegistry { return resilience.NewRegistry() },
		},
		{
			name: "breaker open",
			loc:  location.Static{Latitude: 1, Longitude: 1},
			reg: func() handler.HealthRegistry {
				reg := resilience.NewRegistry()
				reg.Register("departures-backend", breakerState{state: gobreaker.StateOpen})
				reg.RecordFailure("departures-backend", errors.New("connect failed"))
				return reg
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTracker{
				snap:   transit.Snapshot{Capacity: 8, Generation: 1, UpdatedAt: fixedNow},
				online: true,
			}
			status := systemStatus(t, newOps(tr, tt.loc, tt.reg()))
			assert.Equal(t, models.HealthStatusDegraded, status.Status)
		})
	}
}

func TestSystemStatus_OfflineFails(t *testing.T) {
	status := systemStatus(t, newOps(&fakeTracker{}, nil, nil))

	assert.Equal(t, models.HealthStatusFail, status.Status)
	require.Len(t, status.Subsystems, 2, "no location provider configured")
	assert.Equal(t, "link", status.Subsystems[0].Name)
	assert.Equal(t, "offline", status.Subsystems[0].Detail)
	assert.Equal(t, "never updated", status.Subsystems[1].Detail)
	assert.NotNil(t, status.Providers)
	assert.NotNil(t, status.Tracker.Outcomes)
}

func TestReadinessCheck(t *testing.T) {
	tests := []struct {
		name   string
		tr     *fakeTracker
		code   int
		reason string
	}{
		{name: "before first tick", tr: &fakeTracker{online: true}, code: 503, reason: "tracker has not ticked yet"},
		{
			name:   "ticked but offline",
			tr:     &fakeTracker{stats: tracker.StatsSnapshot{TotalTicks: 1}},
			code:   503,
			reason: "network link is down",
		},
		{name: "ticked and online", tr: &fakeTracker{online: true, stats: tracker.StatsSnapshot{TotalTicks: 1}}, code: 200},
		{name: "offline with retained data", tr: &fakeTracker{snap: transit.Snapshot{Generation: 2}}, code: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newOps(tt.tr, nil, nil).ReadinessCheck(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody))

			assert.Equal(t, tt.code, rec.Code)

			var health models.Health
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
			assert.Equal(t, tt.reason, health.Details["reason"])
		})
	}
}

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	newOps(&fakeTracker{}, nil, nil).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK","time":"2026-03-14T08:30:00Z","details":{"version":"1.2.3","buildTime":""}}`, rec.Body.String())
}
