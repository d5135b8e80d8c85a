package handlers

import (
	"net/http"

	"github.com/listing-matcher/internal/app"
	"github.com/listing-matcher/internal/match"
)

// ModelHandler handles model inspection and retraining
type ModelHandler struct {
	App    *app.App
	Config *Config
}

// ModelResponse is the active model with the training store counts
type ModelResponse struct {
	Model    match.Model       `json:"model"`
	Training app.TrainingStats `json:"training"`
}

// GetModel returns the active model
func (h *ModelHandler) GetModel(w http.ResponseWriter, r *http.Request) {
	resp := ModelResponse{Model: h.App.Model()}
	resp.Training.Positive, resp.Training.Negative, resp.Training.Total = h.App.Training.Counts()
	resp.Training.Ready = h.App.Training.ReadyForRetrain()
	writeJSON(w, http.StatusOK, resp)
}

// Retrain retrains from the stored examples. A skipped retrain still answers 200 with its reason.
func (h *ModelHandler) Retrain(w http.ResponseWriter, r *http.Request) {
	report, err := h.App.Retrain(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
