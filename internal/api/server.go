package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/elabx-org/partscout/internal/audit"
	"github.com/elabx-org/partscout/internal/catalog"
	"github.com/elabx-org/partscout/internal/config"
	"github.com/elabx-org/partscout/internal/credential"
	"github.com/elabx-org/partscout/internal/processor"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

const healthCacheTTL = 60 * time.Second

// Fetcher runs part queries.
type Fetcher interface {
	Fetch(ctx context.Context, q catalog.Query) (*catalog.Result, error)
}

// CredentialRepo persists per-user credential sets.
type CredentialRepo interface {
	Put(key credential.Key, set credential.Set) error
	Delete(key credential.Key) error
	Users() ([]credential.Key, error)
}

// CredentialCache is the in-memory credential cache fronting the repository.
type CredentialCache interface {
	Invalidate(key credential.Key)
	Stats() (loads, hits int64)
}

// SecretsCheck probes the secret backend and reports its latency.
type SecretsCheck func(ctx context.Context) (bool, time.Duration, error)

type Server struct {
	cfg      *config.Config
	router   *chi.Mux
	fetcher  Fetcher
	registry *processor.Registry
	auditor  *audit.Logger
	repo     CredentialRepo
	cache    CredentialCache
	metrics  http.Handler
	secrets  SecretsCheck

	healthMu        sync.RWMutex
	healthCached    *ComponentStatus
	healthCheckedAt time.Time
}

func NewServer(cfg *config.Config, fetcher Fetcher, registry *processor.Registry) *Server {
	s := &Server{
		cfg:      cfg,
		fetcher:  fetcher,
		registry: registry,
	}
	s.router = chi.NewRouter()
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.mountRoutes()
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) SetAuditor(a *audit.Logger) {
	s.auditor = a
}

func (s *Server) SetCredentials(repo CredentialRepo, cache CredentialCache) {
	s.repo = repo
	s.cache = cache
}

func (s *Server) SetMetrics(h http.Handler) {
	s.metrics = h
}

func (s *Server) SetSecretsCheck(fn SecretsCheck) {
	s.secrets = fn
}

func (s *Server) mountRoutes() {
	// Public (no auth)
	s.router.Get("/v1/health", s.handleHealth)
	s.router.Get("/metrics", s.handleMetrics)

	// Protected routes (bearer token required when APIToken is set)
	s.router.Group(func(r chi.Router) {
		r.Use(s.bearerAuth)
		r.Post("/v1/parts/search", s.handleSearch)
		r.Get("/v1/audit", s.handleAudit)
		r.Get("/v1/credentials", s.handleCredentialUsers)
		r.Put("/v1/credentials/{user}", s.handleCredentialsPut)
		r.Delete("/v1/credentials/{user}", s.handleCredentialsDelete)
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.NotFound(w, r)
		return
	}
	s.metrics.ServeHTTP(w, r)
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	// Writes may wait for the slowest provider of a fetch.
	writeTimeout := 15 * time.Second
	if t := s.cfg.Fetch.DefaultTimeout + 5*time.Second; t > writeTimeout {
		writeTimeout = t
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("partscout listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}
