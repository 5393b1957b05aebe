package models

import "github.com/tramboard/tramboard/internal/transit"

// Departure is one row of GET /v1/departures.
type Departure struct {
	Line        string `json:"line"`
	Destination string `json:"destination"`
	ETAMinutes  uint8  `json:"etaMinutes"`
}

// DepartureList is the body of GET /v1/departures.
type DepartureList struct {
	Online     bool        `json:"online"`
	Count      int         `json:"count"`
	Capacity   int         `json:"capacity"`
	Generation uint64      `json:"generation"`
	UpdatedAt  *Timestamp  `json:"updatedAt,omitempty"`
	Departures []Departure `json:"departures"`
}

// NewDepartureList converts a store snapshot, keeping at most limit entries
// when limit is positive.
func NewDepartureList(snap transit.Snapshot, online bool, limit int) DepartureList {
	n := snap.Count
	if limit > 0 && limit < n {
		n = limit
	}

	deps := make([]Departure, 0, n)
	for _, d := range snap.Departures[:n] {
		deps = append(deps, Departure{
			Line:        d.Line.String(),
			Destination: d.Destination.String(),
			ETAMinutes:  d.ETAMinutes,
		})
	}

	return DepartureList{
		Online:     online,
		Count:      len(deps),
		Capacity:   snap.Capacity,
		Generation: snap.Generation,
		UpdatedAt:  TimestampPtr(snap.UpdatedAt),
		Departures: deps,
	}
}
