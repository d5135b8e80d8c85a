package handlers

import (
	"net/http"
	"time"

	"github.com/listing-matcher/internal/app"
)

// APIHandler handles general API endpoints
type APIHandler struct {
	App    *app.App
	Config *Config
}

// Health reports liveness and the active model version
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":       "listing-matcher",
		"model_version": h.App.Model().Version,
		"time":          time.Now().UTC(),
	})
}

// GetStats returns listing, training and model statistics
func (h *APIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.App.Stats(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// CheckRequest is the body of POST /api/check
type CheckRequest struct {
	Apply bool `json:"apply"`
}

// Check recomputes match distances and reports proximity violations
func (h *APIHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	result, err := h.App.Check(r.Context(), req.Apply)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
