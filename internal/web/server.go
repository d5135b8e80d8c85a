package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/listing-matcher/internal/app"
	"github.com/listing-matcher/internal/web/handlers"
	"github.com/listing-matcher/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config     *Config
	app        *app.App
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
}

// NewServer creates a new web server instance
func NewServer(config *Config, a *app.App) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	server := &Server{
		config: config,
		app:    a,
	}

	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      server.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	handlerConfig := &handlers.Config{}
	handlerConfig.Features.ExportEnabled = s.config.Features.ExportEnabled
	handlerConfig.Features.AutoRetrain = s.config.Features.AutoRetrain

	apiHandler := &handlers.APIHandler{App: s.app, Config: handlerConfig}
	matchHandler := &handlers.MatchHandler{App: s.app, Config: handlerConfig}
	modelHandler := &handlers.ModelHandler{App: s.app, Config: handlerConfig}
	consolidateHandler := &handlers.ConsolidateHandler{App: s.app, Config: handlerConfig}
	exportHandler := &handlers.ExportHandler{App: s.app, Config: handlerConfig}

	api := s.router.PathPrefix("/api").Subrouter()

	// Matching
	api.HandleFunc("/match", matchHandler.Match).Methods("POST")
	api.HandleFunc("/feedback", matchHandler.Feedback).Methods("POST")
	api.HandleFunc("/listings/{id}", matchHandler.GetListing).Methods("GET")
	api.HandleFunc("/listings/{id}/history", matchHandler.GetHistory).Methods("GET")

	// Model
	api.HandleFunc("/model", modelHandler.GetModel).Methods("GET")
	api.HandleFunc("/retrain", modelHandler.Retrain).Methods("POST")

	// Consolidation
	api.HandleFunc("/consolidate", consolidateHandler.Consolidate).Methods("POST")
	api.HandleFunc("/objects", consolidateHandler.GetObjects).Methods("GET")
	api.HandleFunc("/check", apiHandler.Check).Methods("POST")

	// Statistics
	api.HandleFunc("/stats", apiHandler.GetStats).Methods("GET")

	if s.config.Features.ExportEnabled {
		api.HandleFunc("/export", exportHandler.ExportData).Methods("GET")
	}

	s.router.HandleFunc("/health", apiHandler.Health).Methods("GET")

	api.Use(middleware.Authentication(s.config.Auth.APIKey))
	api.Use(middleware.RateLimit(s.config.Server.RateLimitRPS, s.config.Server.RateLimitBurst))

	// Preflight requests must reach CORS before mux method matching
	logger := *s.app.Logger()
	var h http.Handler = s.router
	h = middleware.CORS(s.config.Server.CORSAllowedOrigins)(h)
	h = middleware.RequestLogging(logger)(h)
	h = middleware.RequestID(h)
	s.handler = middleware.Recover(logger)(h)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	logger := s.app.Logger()

	go func() {
		<-ctx.Done()
		timeout := s.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	logger.Info().Str("addr", s.httpServer.Addr).Msg("web server started")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info().Msg("web server stopped")
	return nil
}
