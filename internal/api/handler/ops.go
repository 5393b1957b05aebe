package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sony/gobreaker/v2"

	"github.com/tramboard/tramboard/internal/api/models"
	"github.com/tramboard/tramboard/internal/api/response"
	"github.com/tramboard/tramboard/internal/location"
	"github.com/tramboard/tramboard/internal/provider/resilience"
	"github.com/tramboard/tramboard/internal/tracker"
	"github.com/tramboard/tramboard/internal/transit"
)

// TrackerSource is everything the ops endpoints read from the tracker.
type TrackerSource interface {
	DepartureSource
	Stats() tracker.StatsSnapshot
}

// HealthRegistry lists provider health, normally a *resilience.Registry.
type HealthRegistry interface {
	GetAllHealth() []*resilience.ProviderHealth
}

// OpsConfig configures an OpsHandler.
type OpsConfig struct {
	Version   string
	BuildTime string
	Tracker   TrackerSource

	// Location and Registry are optional.
	Location location.Provider
	Registry HealthRegistry

	// Now defaults to time.Now.
	Now func() time.Time
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg     OpsConfig
	started time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &OpsHandler{cfg: cfg, started: cfg.Now()}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.cfg.Now()),
		Details: map[string]string{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The device is ready once the
// tracker has ticked and the link is up, or a snapshot has been stored.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	stats := h.cfg.Tracker.Stats()
	snap := h.cfg.Tracker.Departures()

	var reason string
	switch {
	case snap.Generation > 0:
	case stats.TotalTicks == 0:
		reason = "tracker has not ticked yet"
	case !h.cfg.Tracker.IsOnline():
		reason = "network link is down"
	}

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.cfg.Now()),
	}
	status := http.StatusOK
	if reason != "" {
		health.Status = models.HealthStatusFail
		health.Details = map[string]string{"reason": reason}
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - link, fix, store and provider state.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := h.cfg.Now()
	snap := h.cfg.Tracker.Departures()
	stats := h.cfg.Tracker.Stats()

	subsystems := []models.SubsystemStatus{h.linkStatus()}
	if h.cfg.Location != nil {
		subsystems = append(subsystems, locationStatus(h.cfg.Location.Location()))
	}
	subsystems = append(subsystems, storeStatus(snap, now))

	providers := h.providerStatuses()

	response.JSON(w, r, http.StatusOK, models.SystemStatus{
		Status:     overallStatus(subsystems, providers),
		Time:       models.Timestamp(now),
		Version:    h.cfg.Version,
		Uptime:     now.Sub(h.started).Truncate(time.Second).String(),
		Subsystems: subsystems,
		Providers:  providers,
		Tracker:    trackerStatus(stats, now),
	})
}

func (h *OpsHandler) linkStatus() models.SubsystemStatus {
	if h.cfg.Tracker.IsOnline() {
		return models.SubsystemStatus{Name: "link", Status: models.HealthStatusOK}
	}
	return models.SubsystemStatus{Name: "link", Status: models.HealthStatusFail, Detail: "offline"}
}

func locationStatus(loc location.Location) models.SubsystemStatus {
	if !loc.Valid {
		return models.SubsystemStatus{Name: "location", Status: models.HealthStatusDegraded, Detail: loc.String()}
	}
	return models.SubsystemStatus{Name: "location", Status: models.HealthStatusOK, Detail: loc.String()}
}

func storeStatus(snap transit.Snapshot, now time.Time) models.SubsystemStatus {
	if snap.Generation == 0 || snap.UpdatedAt.IsZero() {
		return models.SubsystemStatus{Name: "departures", Status: models.HealthStatusDegraded, Detail: "never updated"}
	}
	return models.SubsystemStatus{
		Name:   "departures",
		Status: models.HealthStatusOK,
		Detail: fmt.Sprintf("%d of %d, updated %s", snap.Count, snap.Capacity, humanize.RelTime(snap.UpdatedAt, now, "ago", "from now")),
	}
}

func (h *OpsHandler) providerStatuses() []models.ProviderStatus {
	if h.cfg.Registry == nil {
		return []models.ProviderStatus{}
	}

	all := h.cfg.Registry.GetAllHealth()
	statuses := make([]models.ProviderStatus, 0, len(all))
	for _, p := range all {
		ps := models.ProviderStatus{
			Provider:     p.Name,
			Status:       circuitHealth(p.CircuitState),
			CircuitState: p.CircuitState.String(),
			Requests:     p.Counts.Requests,
			Failures:     p.Counts.ConsecutiveFailures,
			Message:      p.LastError,
		}
		if p.LastSuccessAt != nil {
			ps.LastSuccessAt = models.TimestampPtr(*p.LastSuccessAt)
		}
		if p.LastFailureAt != nil {
			ps.LastFailureAt = models.TimestampPtr(*p.LastFailureAt)
		}
		statuses = append(statuses, ps)
	}
	return statuses
}

func circuitHealth(state gobreaker.State) models.HealthStatus {
	switch state {
	case gobreaker.StateClosed:
		return models.HealthStatusOK
	case gobreaker.StateHalfOpen:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusFail
	}
}

func trackerStatus(stats tracker.StatsSnapshot, now time.Time) models.TrackerStatus {
	ts := models.TrackerStatus{
		TotalTicks:     stats.TotalTicks,
		Outcomes:       stats.Outcomes,
		LastOutcome:    stats.LastOutcome,
		LastTickAt:     models.TimestampPtr(stats.LastTickAt),
		Fetches:        stats.Fetches,
		FailedFetches:  stats.FailedFetches,
		LastFetchMS:    stats.LastFetchDuration.Milliseconds(),
		LastFetchError: stats.LastFetchError,
		LastUpdatedAt:  models.TimestampPtr(stats.LastUpdatedAt),
	}
	if ts.Outcomes == nil {
		ts.Outcomes = map[string]uint64{}
	}
	if !stats.LastUpdatedAt.IsZero() {
		ts.LastUpdatedAgo = humanize.RelTime(stats.LastUpdatedAt, now, "ago", "from now")
	}
	return ts
}

// overallStatus is FAIL when the link is down, DEGRADED when anything else
// is not OK.
func overallStatus(subsystems []models.SubsystemStatus, providers []models.ProviderStatus) models.HealthStatus {
	status := models.HealthStatusOK
	for _, s := range subsystems {
		if s.Status == models.HealthStatusFail {
			return models.HealthStatusFail
		}
		if s.Status != models.HealthStatusOK {
			status = models.HealthStatusDegraded
		}
	}
	for _, p := range providers {
		if p.Status != models.HealthStatusOK {
			status = models.HealthStatusDegraded
		}
	}
	return status
}
