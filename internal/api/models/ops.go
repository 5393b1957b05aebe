package models

// Health is the body of the liveness and readiness checks.
type Health struct {
	Status  HealthStatus      `json:"status"`
	Time    Timestamp         `json:"time"`
	Details map[string]string `json:"details,omitempty"`
}

// SystemStatus is the body of GET /v1/ops/status.
type SystemStatus struct {
	Status     HealthStatus      `json:"status"`
	Time       Timestamp         `json:"time"`
	Version    string            `json:"version"`
	Uptime     string            `json:"uptime"`
	Subsystems []SubsystemStatus `json:"subsystems"`
	Providers  []ProviderStatus  `json:"providers"`
	Tracker    TrackerStatus     `json:"tracker"`
}

// SubsystemStatus is the state of one local dependency (link, location, store).
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail string       `json:"detail,omitempty"`
}

// ProviderStatus is the state of one remote provider, from the breaker registry.
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	Requests      uint32       `json:"requests"`
	Failures      uint32       `json:"consecutiveFailures"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       string       `json:"message,omitempty"`
}

// TrackerStatus summarizes the tick loop.
type TrackerStatus struct {
	TotalTicks     uint64            `json:"totalTicks"`
	Outcomes       map[string]uint64 `json:"outcomes"`
	LastOutcome    string            `json:"lastOutcome,omitempty"`
	LastTickAt     *Timestamp        `json:"lastTickAt,omitempty"`
	Fetches        uint64            `json:"fetches"`
	FailedFetches  uint64            `json:"failedFetches"`
	LastFetchMS    int64             `json:"lastFetchMs"`
	LastFetchError string            `json:"lastFetchError,omitempty"`
	LastUpdatedAt  *Timestamp        `json:"lastUpdatedAt,omitempty"`
	LastUpdatedAgo string            `json:"lastUpdatedAgo,omitempty"`
}
