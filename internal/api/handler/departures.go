// Package handler provides HTTP handlers for the tramboard read API.
package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/tramboard/tramboard/internal/api/models"
	"github.com/tramboard/tramboard/internal/api/response"
	"github.com/tramboard/tramboard/internal/render"
	"github.com/tramboard/tramboard/internal/transit"
)

// DepartureSource is the read side of the tracker.
type DepartureSource interface {
	Departures() transit.Snapshot
	IsOnline() bool
}

// DeparturesHandler serves the current departure snapshot.
type DeparturesHandler struct {
	source DepartureSource
}

// NewDeparturesHandler creates a new DeparturesHandler.
func NewDeparturesHandler(source DepartureSource) *DeparturesHandler {
	return &DeparturesHandler{source: source}
}

// ListDepartures handles GET /v1/departures.
// The optional limit query parameter caps the number of entries returned.
func (h *DeparturesHandler) ListDepartures(w http.ResponseWriter, r *http.Request) {
	snap := h.source.Departures()

	limit, fieldErr := parseLimit(r.URL.Query().Get("limit"), snap.Capacity)
	if fieldErr != nil {
		response.BadRequest(w, r, "invalid query parameters", []models.FieldError{*fieldErr})
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewDepartureList(snap, h.source.IsOnline(), limit))
}

// Board handles GET /v1/departures/board - the 20x4 character board as text.
func (h *DeparturesHandler) Board(w http.ResponseWriter, r *http.Request) {
	response.Text(w, r, http.StatusOK, render.Text(h.source.Departures()))
}

func parseLimit(raw string, capacity int) (int, *models.FieldError) {
	if raw == "" {
		return 0, nil
	}
	if capacity <= 0 {
		capacity = transit.DefaultCapacity
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &models.FieldError{Field: "limit", Message: "must be an integer", Code: "INVALID_TYPE"}
	}
	if n < 1 || n > capacity {
		return 0, &models.FieldError{
			Field:   "limit",
			Message: fmt.Sprintf("must be between 1 and %d", capacity),
			Code:    "OUT_OF_RANGE",
		}
	}
	return n, nil
}
