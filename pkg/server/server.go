// Package server exposes the query engine over HTTP: a meeting-point
// endpoint plus the health, readiness and version probes the deployment
// expects.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/midpoint-labs/midpoint/pkg/query"
	"github.com/midpoint-labs/midpoint/pkg/tfl"
)

// VersionInfo is reported by the /version endpoint.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Config holds HTTP server configuration.
type Config struct {
	Logger     *slog.Logger
	Engine     *query.Engine
	ListenAddr string
	Version    VersionInfo

	// CORSOrigins lists allowed browser origins; empty disables CORS.
	CORSOrigins []string

	ReadHeaderTimeout time.Duration // default 5s
	ShutdownTimeout   time.Duration // default 10s
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen addr is required")
	}
	return nil
}

// Server is the query API server. The engine may be attached after startup
// once the graph artifact is loaded; until then /readyz reports unavailable
// and queries are rejected.
type Server struct {
	log     *slog.Logger
	cfg     Config
	router  *chi.Mux
	httpSrv *http.Server

	mu     sync.RWMutex
	engine *query.Engine
}

// New builds a server from the configuration.
func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		log:    cfg.Logger,
		cfg:    cfg,
		router: chi.NewRouter(),
		engine: cfg.Engine,
	}
	s.setupRoutes()

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	if len(s.cfg.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)
	s.router.Get("/version", s.handleVersion)
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/meet", s.handleMeet)
	})
}

// SetEngine attaches (or replaces) the query engine, flipping readiness.
func (s *Server) SetEngine(e *query.Engine) {
	s.mu.Lock()
	s.engine = e
	s.mu.Unlock()
}

func (s *Server) currentEngine() *query.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Handler returns the server's HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- fmt.Errorf("listen and serve: %w", err)
		}
	}()

	s.log.Info("http listening", "address", s.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		s.log.Info("http stopping", "reason", ctx.Err())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-serveErrCh:
		s.log.Error("http server error", "error", err)
		return err
	}
}

// MeetRequest is the body of POST /api/meet.
type MeetRequest struct {
	People []MeetPerson `json:"people"`
}

// MeetPerson is one participant in a meeting request. Hub is a hub ID or an
// exact station name; StartStationID optionally picks one constituent when
// the hub has several.
type MeetPerson struct {
	Hub            string  `json:"hub"`
	WalkMinutes    float64 `json:"walk_minutes"`
	StartStationID string  `json:"start_station_id,omitempty"`
}

func (s *Server) handleMeet(w http.ResponseWriter, r *http.Request) {
	engine := s.currentEngine()
	if engine == nil {
		s.writeError(w, http.StatusServiceUnavailable, "graph not loaded")
		return
	}

	var req MeetRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(req.People) < 2 {
		s.writeError(w, http.StatusBadRequest, "need at least 2 people")
		return
	}

	people := make([]query.Person, 0, len(req.People))
	for _, p := range req.People {
		person, err := engine.ResolveStart(p.Hub, p.WalkMinutes)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if p.StartStationID != "" {
			person.StartStationID = p.StartStationID
		}
		people = append(people, person)
	}

	result, err := engine.Meet(r.Context(), people)
	if err != nil {
		switch {
		case errors.Is(err, query.ErrNoMeetingPoint):
			s.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, tfl.ErrAuth):
			s.writeError(w, http.StatusBadGateway, "provider rejected credentials")
		case errors.Is(err, context.Canceled):
			// Client went away; nothing useful to write.
		default:
			s.log.Error("meet query failed", "error", err)
			s.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("failed to write healthz response", "error", err)
	}
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.currentEngine() == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("graph not loaded\n")); err != nil {
			s.log.Error("failed to write readyz response", "error", err)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("failed to write readyz response", "error", err)
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Version)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
