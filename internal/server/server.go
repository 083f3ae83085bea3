package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/database"
	"github.com/aristath/insider-trader/internal/events"
	"github.com/aristath/insider-trader/internal/modules/allocation"
	"github.com/aristath/insider-trader/internal/modules/audit"
	"github.com/aristath/insider-trader/internal/modules/backup"
	"github.com/aristath/insider-trader/internal/modules/cycles"
	"github.com/aristath/insider-trader/internal/modules/orders"
	"github.com/aristath/insider-trader/internal/modules/philosophy"
	"github.com/aristath/insider-trader/internal/modules/positions"
	"github.com/aristath/insider-trader/internal/modules/scenarios"
	"github.com/aristath/insider-trader/internal/modules/signals"
)

// Handlers collects every module's HTTP surface
type Handlers struct {
	Signals    *signals.Handlers
	Positions  *positions.Handlers
	Orders     *orders.Handlers
	Cycles     *cycles.Handlers
	Allocation *allocation.Handlers
	Philosophy *philosophy.Handlers
	Scenarios  *scenarios.Handlers
	Backup     *backup.Handlers
	Audit      *audit.Handlers
}

// Config holds server configuration
type Config struct {
	Port     int
	Log      zerolog.Logger
	DB       *database.DB
	Events   *events.Manager
	Handlers Handlers
	DevMode  bool
}

// Server is the HTTP front of the engine
type Server struct {
	router   *chi.Mux
	server   *http.Server
	log      zerolog.Logger
	db       *database.DB
	events   *events.Manager
	handlers Handlers
	started  time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		log:      cfg.Log.With().Str("component", "server").Logger(),
		db:       cfg.DB,
		events:   cfg.Events,
		handlers: cfg.Handlers,
		started:  time.Now(),
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
	s.router.Use(middleware.Timeout(60 * time.Second))

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
	h := s.handlers

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ws", s.handleWebSocket)

		r.Route("/signals", func(r chi.Router) {
			r.Get("/", h.Signals.HandleList)
			r.Get("/stats", h.Signals.HandleStats)
			r.Get("/{id}", h.Signals.HandleGet)
		})

		r.Route("/positions", func(r chi.Router) {
			r.Get("/", h.Positions.HandleList)
			r.Get("/stats", h.Positions.HandleStats)
			r.Get("/{id}", h.Positions.HandleGet)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.Orders.HandleList)
			r.Get("/{id}", h.Orders.HandleGet)
		})

		r.Route("/cycle", func(r chi.Router) {
			r.Get("/current", h.Cycles.HandleCurrent)
			r.Post("/start", h.Cycles.HandleStart)
			r.Post("/settle", h.Cycles.HandleSettle)
			r.Get("/history", h.Cycles.HandleHistory)
			r.Get("/metrics/{id}", h.Cycles.HandleMetrics)
		})

		r.Route("/allocation", func(r chi.Router) {
			r.Post("/trigger", h.Allocation.HandleTrigger)
		})

		r.Route("/philosophy", func(r chi.Router) {
			r.Get("/current", h.Philosophy.HandleCurrent)
			r.Get("/state", h.Philosophy.HandleState)
			r.Post("/update", h.Philosophy.HandleUpdate)
			r.Post("/reset", h.Philosophy.HandleReset)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/positions", h.Scenarios.HandlePositions)
			r.Post("/execute", h.Scenarios.HandleExecute)
			r.Post("/reset", h.Scenarios.HandleReset)
			r.Get("/performance", h.Scenarios.HandlePerformance)
		})

		r.Route("/backup", func(r chi.Router) {
			r.Post("/create", h.Backup.HandleCreate)
			r.Get("/list", h.Backup.HandleList)
			r.Post("/restore", h.Backup.HandleRestore)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/verify", h.Audit.HandleVerify)
			r.Get("/recent", h.Audit.HandleRecent)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
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
