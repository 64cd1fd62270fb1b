// SPDX-License-Identifier: MIT

// Package api exposes the daemon's HTTP surface: health and readiness
// probes, run status, manual scan triggering, and Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xchem/eventmaphdr/internal/config"
	"github.com/xchem/eventmaphdr/internal/health"
	"github.com/xchem/eventmaphdr/internal/jobs"
	"github.com/xchem/eventmaphdr/internal/journal"
)

// Server handles HTTP requests for the daemon mode.
type Server struct {
	cfg config.AppConfig
	jnl *journal.Journal

	// updateFn runs one scan cycle. Indirected for tests.
	updateFn func(ctx context.Context, cfg config.AppConfig, jnl *journal.Journal) (*jobs.Status, error)

	// scanning guards against concurrent manual scans.
	scanning atomic.Bool

	mu     sync.RWMutex
	status jobs.Status
}

// New creates a Server for the given configuration.
func New(cfg config.AppConfig, jnl *journal.Journal) *Server {
	return &Server{
		cfg:      cfg,
		jnl:      jnl,
		updateFn: jobs.Update,
	}
}

// Status returns a copy of the last run status.
func (s *Server) Status() jobs.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus records the outcome of a scan cycle, wherever it ran
// (manual trigger, watcher rescan, or startup scan).
func (s *Server) SetStatus(st jobs.Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// LastRun reports when the last run finished and its error, for the
// readiness checker.
func (s *Server) LastRun() (time.Time, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.LastRun, s.status.Error
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router(hm *health.Manager) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	if s.cfg.RateLimitEnabled {
		r.Use(httprate.Limit(
			s.cfg.RateLimitRPS,
			time.Second,
			httprate.WithKeyFuncs(httprate.KeyByIP),
		))
	}

	r.Get("/healthz", hm.ServeHealth)
	r.Get("/readyz", hm.ServeReady)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/api/status", s.handleStatus)
		r.Get("/api/history", s.handleHistory)
		r.Post("/api/scan", s.handleScan)
	})

	if s.cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	if s.cfg.OTELEnabled {
		return otelhttp.NewHandler(r, "eventmaphdr.http")
	}
	return r
}
