// Package http exposes the engine over a JSON API. Handlers stay thin:
// they parse, call the engine, and map the error taxonomy onto status
// codes; all domain rules live below.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"bilancio/internal/core"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError maps the engine's error taxonomy onto HTTP status codes:
// validation 400, missing 404, conflicts 409, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrAlreadyTombstoned),
		errors.Is(err, core.ErrImportConflict),
		errors.Is(err, core.ErrBudgetActive),
		errors.Is(err, core.ErrTemplateEnded),
		errors.Is(err, core.ErrCategoryReferenced):
		status = http.StatusConflict
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrDescriptionTooLong),
		errors.Is(err, core.ErrInvalidSource),
		errors.Is(err, core.ErrUnknownCategory),
		errors.Is(err, core.ErrKindMismatch),
		errors.Is(err, core.ErrInvalidSchedule),
		errors.Is(err, core.ErrInvalidThresholds),
		errors.Is(err, core.ErrInvalidPeriod),
		errors.Is(err, core.ErrInvalidSweep),
		errors.Is(err, core.ErrNotLeaf),
		errors.Is(err, core.ErrOutsidePeriod),
		errors.Is(err, core.ErrCategoryDeleted),
		errors.Is(err, core.ErrCycle),
		errors.Is(err, core.ErrReserved):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}
