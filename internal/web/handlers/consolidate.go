package handlers

import (
	"net/http"

	"github.com/listing-matcher/internal/app"
)

// ConsolidateHandler handles duplicate consolidation
type ConsolidateHandler struct {
	App    *app.App
	Config *Config
}

// ConsolidateRequest is the body of POST /api/consolidate. A zero radius uses the configured one.
type ConsolidateRequest struct {
	RadiusMeters float64 `json:"radius_meters"`
	Apply        bool    `json:"apply"`
}

// Consolidate groups stored listings and, with apply, merges them into canonical objects
func (h *ConsolidateHandler) Consolidate(w http.ResponseWriter, r *http.Request) {
	var req ConsolidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.RadiusMeters < 0 {
		writeError(w, http.StatusBadRequest, "radius_meters must be >= 0")
		return
	}

	report, err := h.App.Consolidate(r.Context(), req.RadiusMeters, req.Apply)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetObjects returns the canonical objects of the last applied consolidation
func (h *ConsolidateHandler) GetObjects(w http.ResponseWriter, r *http.Request) {
	objects, err := h.App.LoadObjects(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	if objects == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, objects)
}
