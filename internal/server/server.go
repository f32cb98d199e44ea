// Package server provides the HTTP server and routing for vaultd.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/config"
	"github.com/absfi/vaultd/internal/engine"
	"github.com/absfi/vaultd/internal/events"
	"github.com/absfi/vaultd/internal/modules/ledger"
	"github.com/absfi/vaultd/internal/modules/optimization"
	"github.com/absfi/vaultd/internal/modules/registry"
)

// Config holds server dependencies.
type Config struct {
	Log        zerolog.Logger
	Config     *config.Config
	Engine     *engine.Engine
	Registry   *registry.Service
	Reconciler *ledger.Reconciler
	Optimizer  *optimization.WeightOptimizer
	Manager    *events.Manager
	Port       int
	DevMode    bool
}

// Server is the HTTP API surface.
type Server struct {
	router     *chi.Mux
	server     *http.Server
	log        zerolog.Logger
	cfg        *config.Config
	engine     *engine.Engine
	registry   *registry.Service
	reconciler *ledger.Reconciler
	optimizer  *optimization.WeightOptimizer
	manager    *events.Manager
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		cfg:        cfg.Config,
		engine:     cfg.Engine,
		registry:   cfg.Registry,
		reconciler: cfg.Reconciler,
		optimizer:  cfg.Optimizer,
		manager:    cfg.Manager,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// SSE stream, registered before the other routes.
		outcomesStream := NewOutcomesStreamHandler(s.manager.Bus(), s.log)
		r.Get("/outcomes/stream", outcomesStream.ServeHTTP)

		r.Get("/health", s.handleHealth)

		r.Post("/market-data", s.handleIngestMarketData)
		r.Post("/ledger", s.handleIngestLedgerEntry)

		r.Route("/vaults", func(r chi.Router) {
			r.Get("/", s.handleListVaults)
			r.Put("/{id}", s.handlePutVault)
			r.Get("/{id}", s.handleGetVault)
			r.Get("/{id}/utilization", s.handleGetUtilization)
			r.Post("/{id}/reallocate", s.handleReallocate)
		})
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the chi mux, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "vaultd",
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeData wraps a payload in the standard data/metadata envelope.
func (s *Server) writeData(w http.ResponseWriter, status int, data interface{}) {
	s.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
