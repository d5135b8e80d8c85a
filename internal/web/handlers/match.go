package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/listing-matcher/internal/app"
	"github.com/listing-matcher/internal/audit"
	"github.com/listing-matcher/internal/match"
)

// MatchHandler handles matching and feedback endpoints
type MatchHandler struct {
	App    *app.App
	Config *Config
}

// MatchRequest is the body of POST /api/match. Without listings every pending stored listing is matched.
type MatchRequest struct {
	Listings []match.Listing `json:"listings"`
	Rematch  bool            `json:"rematch"`
}

// MatchResponse carries the batch summary and per-listing outcomes in input order
type MatchResponse struct {
	Summary  match.BatchSummary `json:"summary"`
	Outcomes []match.Outcome    `json:"outcomes"`
}

// Match matches posted listings, or the stored pending ones
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	var (
		summary  match.BatchSummary
		outcomes []match.Outcome
		err      error
	)
	if len(req.Listings) > 0 {
		for _, l := range req.Listings {
			if l.ID == "" {
				writeError(w, http.StatusBadRequest, "every listing needs an id")
				return
			}
		}
		summary, outcomes, err = h.App.MatchListings(r.Context(), false, req.Listings)
	} else {
		summary, outcomes, err = h.App.MatchPending(r.Context(), false, req.Rematch)
	}
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MatchResponse{Summary: summary, Outcomes: outcomes})
}

// FeedbackRequest is the body of POST /api/feedback
type FeedbackRequest struct {
	ListingID   string `json:"listing_id"`
	AddressID   string `json:"address_id"`
	Correct     *bool  `json:"correct"`
	AutoRetrain *bool  `json:"auto_retrain"`
}

// Feedback records an operator verdict on a listing-address pair
func (h *MatchHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Correct == nil {
		writeError(w, http.StatusBadRequest, "correct is required")
		return
	}

	autoRetrain := h.Config.Features.AutoRetrain
	if req.AutoRetrain != nil {
		autoRetrain = *req.AutoRetrain
	}

	result, err := h.App.Feedback(r.Context(), req.ListingID, req.AddressID, *req.Correct, autoRetrain)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// GetListing returns one stored listing
func (h *MatchHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	listing, err := h.App.Listings.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if listing == nil {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// GetHistory returns the audit trail of one listing
func (h *MatchHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.App.Audit == nil {
		writeError(w, http.StatusNotFound, "audit trail disabled")
		return
	}

	history, err := h.App.Audit.History(r.Context(), false, mux.Vars(r)["id"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	if history == nil {
		history = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, history)
}
