package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/listing-matcher/internal/app"
	"github.com/listing-matcher/internal/export"
)

// ExportHandler handles data export endpoints
type ExportHandler struct {
	App    *app.App
	Config *Config
}

// ExportData streams stored listings with their match columns as CSV.
// The optional source query parameter filters by listing source.
func (h *ExportHandler) ExportData(w http.ResponseWriter, r *http.Request) {
	if !h.Config.Features.ExportEnabled {
		writeError(w, http.StatusForbidden, "export feature disabled")
		return
	}

	listings, err := h.App.Listings.List(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}

	if source := strings.TrimSpace(r.URL.Query().Get("source")); source != "" {
		filtered := listings[:0]
		for _, l := range listings {
			if strings.EqualFold(l.Source, source) {
				filtered = append(filtered, l)
			}
		}
		listings = filtered
	}

	filename := fmt.Sprintf("listings_%s.csv", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if _, err := export.NewExporter(h.App.Addresses).WriteListings(r.Context(), w, listings); err != nil {
		h.App.Logger().Error().Err(err).Msg("export failed mid-stream")
	}
}
