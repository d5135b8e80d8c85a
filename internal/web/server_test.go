package web

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listing-matcher/internal/app"
	"github.com/listing-matcher/internal/config"
	"github.com/listing-matcher/internal/geo"
	"github.com/listing-matcher/internal/match"
	"github.com/listing-matcher/internal/repository"
	"github.com/listing-matcher/internal/store"
	"github.com/listing-matcher/internal/web/handlers"
)

var origin = geo.Coordinate{Lat: 55.7000, Lng: 37.5000}

func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *app.App) {
	t.Helper()

	tunables := config.DefaultTunables()
	tunables.MinPositiveExamples = 1
	tunables.MinNegativeExamples = 1
	tunables.MinTotalExamples = 2

	a := app.New(app.Deps{
		Tunables: tunables,
		Addresses: repository.NewMemoryAddressRepository(
			match.AddressRecord{ID: "A", Text: "ул. Тестовая, 10", Coordinates: origin},
			match.AddressRecord{ID: "B", Text: "проспект Мира, 77", Coordinates: geo.Coordinate{Lat: 55.7027, Lng: 37.5}},
		),
		Listings: repository.NewMemoryListingRepository(
			match.Listing{ID: "L1", AddressText: "ул. Тестовая, 10", Coordinates: origin, Source: "avito"},
		),
		KV: store.NewMemoryKV(),
	})

	cfg := DefaultConfig()
	cfg.Features.AutoRetrain = false
	if mutate != nil {
		mutate(cfg)
	}
	return NewServer(cfg, a), a
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), `"model_version":1`)
}

func TestMatchEndpoint_Pending(t *testing.T) {
	s, a := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/match", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handlers.MatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Summary.Total)
	assert.Equal(t, 1, resp.Summary.Matched)
	require.Len(t, resp.Outcomes, 1)
	assert.Equal(t, "A", resp.Outcomes[0].Result.AddressID)

	stored, err := a.Listings.Get(context.Background(), "L1")
	require.NoError(t, err)
	assert.True(t, stored.IsMatched())
}

func TestMatchEndpoint_PostedListings(t *testing.T) {
	s, _ := newTestServer(t, nil)

	body := handlers.MatchRequest{Listings: []match.Listing{
		{ID: "N1", AddressText: "проспект Мира, 77", Coordinates: geo.Coordinate{Lat: 55.7027, Lng: 37.5}},
		{ID: "N2", AddressText: "ул. Тестовая, 10", Coordinates: geo.Coordinate{Lat: 91, Lng: 0}},
	}}
	rec := do(t, s, http.MethodPost, "/api/match", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handlers.MatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Outcomes, 2)
	assert.Equal(t, "B", resp.Outcomes[0].Result.AddressID)
	assert.Nil(t, resp.Outcomes[1].Result)
	assert.NotEmpty(t, resp.Outcomes[1].Error)
	assert.Equal(t, 1, resp.Summary.Errored)
}

func TestMatchEndpoint_BadRequests(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/match", map[string]any{"listings": []map[string]any{{"address_text": "x"}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/match", map[string]any{"unknown": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/match", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFeedbackAndRetrain(t *testing.T) {
	s, a := newTestServer(t, nil)
	yes, no := true, false

	rec := do(t, s, http.MethodPost, "/api/feedback", handlers.FeedbackRequest{ListingID: "L1", AddressID: "A", Correct: &yes})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/feedback", handlers.FeedbackRequest{ListingID: "L1", AddressID: "B", Correct: &no})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var fb app.FeedbackResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fb))
	assert.Equal(t, 2, fb.Total)
	assert.Nil(t, fb.Retrain, "auto retrain is off")

	rec = do(t, s, http.MethodGet, "/api/model", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var model handlers.ModelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &model))
	assert.True(t, model.Training.Ready)
	assert.Equal(t, int64(1), model.Model.Version)

	rec = do(t, s, http.MethodPost, "/api/retrain", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report match.RetrainReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Applied)
	assert.Equal(t, int64(2), a.Model().Version)
}

func TestFeedbackErrors(t *testing.T) {
	s, _ := newTestServer(t, nil)
	yes := true

	rec := do(t, s, http.MethodPost, "/api/feedback", handlers.FeedbackRequest{ListingID: "L1", AddressID: "A"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/feedback", handlers.FeedbackRequest{ListingID: "missing", AddressID: "A", Correct: &yes})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/feedback", handlers.FeedbackRequest{AddressID: "A", Correct: &yes})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetrainSkipped(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodPost, "/api/retrain", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), match.ReasonInsufficientPositive)
}

func TestConsolidateAndStats(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/consolidate", map[string]any{"radius_meters": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/consolidate", map[string]any{"apply": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/objects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats app.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Listings)
	assert.Equal(t, 1, stats.Pending)

	rec = do(t, s, http.MethodPost, "/api/check", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListingEndpoints(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/listings/L1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"L1"`)

	rec = do(t, s, http.MethodGet, "/api/listings/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/listings/L1/history", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no audit tracker configured")
}

func TestExport(t *testing.T) {
	s, _ := newTestServer(t, nil)
	do(t, s, http.MethodPost, "/api/match", nil)

	rec := do(t, s, http.MethodGet, "/api/export?source=AVITO", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "L1", rows[1][0])
	assert.Equal(t, "ул. Тестовая, 10", rows[1][10])

	disabled, _ := newTestServer(t, func(c *Config) { c.Features.ExportEnabled = false })
	rec = do(t, disabled, http.MethodGet, "/api/export", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthentication(t *testing.T) {
	s, _ := newTestServer(t, func(c *Config) { c.Auth.APIKey = "secret" })

	rec := do(t, s, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("X-API-Key", "secret")
	ok := httptest.NewRecorder()
	s.Handler().ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)

	rec = do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health stays public")
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, func(c *Config) { c.Server.CORSAllowedOrigins = []string{"https://ui.example"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/match", nil)
	req.Header.Set("Origin", "https://ui.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ui.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, func(c *Config) {
		c.Server.RateLimitRPS = 0.001
		c.Server.RateLimitBurst = 2
	})

	for i := 0; i < 2; i++ {
		rec := do(t, s, http.MethodGet, "/api/stats", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, s, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is not throttled")
}
