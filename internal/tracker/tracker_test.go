package tracker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tramboard/tramboard/internal/location"
	"github.com/tramboard/tramboard/internal/tracker"
	"github.com/tramboard/tramboard/internal/transit"
	"github.com/tramboard/tramboard/internal/transit/backend"
)

const exampleBody = `[{"line":"M4","destination":"Hackescher Markt","eta_min":3},
 {"line":"M5","destination":"Hauptbahnhof","eta_min":8}]`

var berlin = location.Location{Latitude: 52.520007, Longitude: 13.404954, Valid: true}

type fakeFetcher struct {
	mu    sync.Mutex
	paths []string
	resp  *backend.Response
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, path string) (*backend.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	return f.resp, f.err
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paths)
}

type harness struct {
	online  bool
	now     uint32
	loc     location.Location
	fetcher *fakeFetcher
	store   *transit.Store
	tracker *tracker.Tracker
}

func newHarness(t *testing.T, policy tracker.OfflinePolicy) *harness {
	t.Helper()

	h := &harness{
		online:  true,
		now:     30_000,
		loc:     berlin,
		fetcher: &fakeFetcher{resp: &backend.Response{StatusCode: 200, Body: []byte(exampleBody)}},
		store:   transit.NewStore(transit.DefaultCapacity),
	}
	h.tracker = tracker.New(tracker.Config{
		Link:          tracker.LinkFunc(func() bool { return h.online }),
		Location:      location.ProviderFunc(func() location.Location { return h.loc }),
		Fetcher:       h.fetcher,
		Clock:         tracker.ClockFunc(func() uint32 { return h.now }),
		Store:         h.store,
		OfflinePolicy: policy,
		Logger:        zerolog.Nop(),
	})
	return h
}

func assertExampleDepartures(t *testing.T, snap transit.Snapshot) {
	t.Helper()

	require.Equal(t, 2, snap.Count)
	assert.Equal(t, "M4", snap.Departures[0].Line.String())
	assert.Equal(t, "Hackescher Markt", snap.Departures[0].Destination.String())
	assert.Equal(t, uint8(3), snap.Departures[0].ETAMinutes)
	assert.Equal(t, "M5", snap.Departures[1].Line.String())
	assert.Equal(t, "Hauptbahnhof", snap.Departures[1].Destination.String())
	assert.Equal(t, uint8(8), snap.Departures[1].ETAMinutes)
}

func TestTracker_ScenarioA_OfflineLeavesStoreUnchanged(t *testing.T) {
	h := newHarness(t, tracker.OfflineRetain)
	require.Equal(t, tracker.OutcomeUpdated, h.tracker.Tick(context.Background()))

	h.online = false
	h.now += 60_000

	assert.Equal(t, tracker.OutcomeOffline, h.tracker.Tick(context.Background()))
	assert.False(t, h.tracker.IsOnline())
	assertExampleDepartures(t, h.tracker.Departures())
	assert.Equal(t, 1, h.fetcher.calls(), "offline tick must not fetch")
}

func TestTracker_ScenarioA_OfflineFromStart(t *testing.T) {
	h := newHarness(t, tracker.OfflineRetain)
	h.online = false

	assert.Equal(t, tracker.OutcomeOffline, h.tracker.Tick(context.Background()))
	assert.False(t, h.tracker.IsOnline())
	assert.Equal(t, 0, h.tracker.Departures().Count)
	assert.Equal(t, uint64(0), h.tracker.Departures().Generation)
}

func TestTracker_OfflineClearPolicy(t *testing.T) {
	h := newHarness(t, tracker.OfflineClear)
	require.Equal(t, tracker.OutcomeUpdated, h.tracker.Tick(context.Background()))

	h.online = false
	assert.Equal(t, tracker.OutcomeOffline, h.tracker.Tick(context.Background()))
	assert.Equal(t, 0, h.tracker.Departures().Count)
}

func TestTracker_ScenarioB_FetchFailureClearsStore(t *testing.T) {
	h := newHarness(t, tracker.OfflineRetain)
	require.Equal(t, tracker.OutcomeUpdated, h.tracker.Tick(context.Background()))

	h.fetcher.resp, h.fetcher.err = nil, backend.ErrConnect
	h.now += 30_000

	assert.Equal(t, tracker.OutcomeFetchFailed, h.tracker.Tick(context.Background()))
	assert.Equal(t, 0, h.tracker.Departures().Count)
	assert.True(t, h.tracker.IsOnline())
}

func TestTracker_ScenarioC_Updated(t *testing.T) {
	h := newHarness(t, tracker.OfflineRetain)

	assert.Equal(t, tracker.OutcomeUpdated, h.tracker.Tick(context.Background()))
	assertExampleDepartures(t, h.tracker.Departures())
	assert.Equal(t, []string{"/v1/departures?lat=52.520007&lon=13.404954&minutes=30"}, h.fetcher.paths)
	assert.True(t, h.tracker.IsOnline())
}

func TestTracker_ScenarioD_InvalidLocationClearsStore(t *testing.T) {
	h := newHarness(t, tracker.OfflineRetain)
	require.Equal(t, tracker.OutcomeUpdated, h.tracker.Tick(context.Background()))

	h.loc = location.Location{}
	h.now += 30_000

	assert.Equal(t, tracker.OutcomeInvalidLocation, h.tracker.Tick(context.Background()))
	assert.Equal(t, 0, h.tracker.Departures().Count)
	assert.Equal(t, 1, h.fetcher.calls())
}

func TestTracker_ParseFailureClearsStore(t *testing.T) {
	h := newHarness(t, tracker.OfflineRetain)
	require.Equal(t, tracker.OutcomeUpdated, h.tracker.Tick(context.Background()))

	h.fetcher.resp = &backend.Response{StatusCode: 502, Body: []byte("<html>Bad Gateway</html>")}
	h.now += 30_000

	assert.Equal(t, tracker.OutcomeParseFailed, h.tracker.Tick(context.Background()))
	assert.Equal(t, 0, h.tracker.Departures().Count)
}

func TestTracker_NotDueDoesNothing(t *testing.T) {
	h := newHarness(t, tracker.OfflineRetain)
	h.now = 29_999

	assert.Equal(t, tracker.OutcomeNotDue, h.tracker.Tick(context.Background()))
	assert.Equal(t, 0, h.fetcher.calls())
	assert.Equal(t, uint64(0), h.tracker.Departures().Generation)

	h.now = 30_000
	assert.Equal(t, tracker.OutcomeUpdated, h.tracker.Tick(context.Background()))

	h.now = 59_999
	assert.Equal(t, tracker.OutcomeNotDue, h.tracker.Tick(context.Background()))
	assertExampleDepartures(t, h.tracker.Departures())
}

func TestTracker_FailedPollStillAdvancesSchedule(t *testing.T) {
	h := newHarness(t, tracker.OfflineRetain)
	h.fetcher.resp, h.fetcher.err = nil, errors.New("boom")

	assert.Equal(t, tracker.OutcomeFetchFailed, h.tracker.Tick(context.Background()))

	h.now += 1_000
	assert.Equal(t, tracker.OutcomeNotDue, h.tracker.Tick(context.Background()))
	assert.Equal(t, 1, h.fetcher.calls())
}

func TestTracker_InvalidLocationStillAdvancesSchedule(t *testing.T) {
	h := newHarness(t, tracker.OfflineRetain)
	h.loc = location.Location{}

	assert.Equal(t, tracker.OutcomeInvalidLocation, h.tracker.Tick(context.Background()))

	h.loc = berlin
	h.now += 29_999
	assert.Equal(t, tracker.OutcomeNotDue, h.tracker.Tick(context.Background()))
	h.now++
	assert.Equal(t, tracker.OutcomeUpdated, h.tracker.Tick(context.Background()))
}

func TestTracker_EmptyArrayIsAnUpdate(t *testing.T) {
	h := newHarness(t, tracker.OfflineRetain)
	h.fetcher.resp = &backend.Response{StatusCode: 200, Body: []byte("[]")}

	assert.Equal(t, tracker.OutcomeUpdated, h.tracker.Tick(context.Background()))
	snap := h.tracker.Departures()
	assert.Equal(t, 0, snap.Count)
	assert.Equal(t, uint64(1), snap.Generation)
}

func TestTracker_Stats(t *testing.T) {
	h := newHarness(t, tracker.OfflineRetain)

	h.tracker.Tick(context.Background())
	h.now += 10
	h.tracker.Tick(context.Background())

	stats := h.tracker.Stats()
	assert.Equal(t, uint64(2), stats.TotalTicks)
	assert.Equal(t, uint64(1), stats.Outcomes["updated"])
	assert.Equal(t, uint64(1), stats.Outcomes["not_due"])
	assert.Equal(t, "not_due", stats.LastOutcome)
	assert.Equal(t, uint64(1), stats.Fetches)
	assert.False(t, stats.LastUpdatedAt.IsZero())
}

func TestTracker_Run(t *testing.T) {
	h := newHarness(t, tracker.OfflineRetain)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.tracker.Run(ctx, 5*time.Millisecond)
	}()

	assert.Eventually(t, func() bool {
		return h.tracker.Stats().TotalTicks >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}

	assertExampleDepartures(t, h.tracker.Departures())
	assert.Equal(t, 1, h.fetcher.calls(), "clock did not advance, only one poll")
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "offline", tracker.OutcomeOffline.String())
	assert.Equal(t, "updated", tracker.OutcomeUpdated.String())
	assert.Equal(t, "unknown", tracker.Outcome(42).String())
}

func TestNewMetrics(t *testing.T) {
	m, err := tracker.NewMetrics()
	require.NoError(t, err)
	assert.NotNil(t, m)
}
