// SPDX-License-Identifier: MIT

// Package health provides health and readiness checks for the daemon
// mode. It supports Docker HEALTHCHECK and Kubernetes probes with
// per-component status.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/xchem/eventmaphdr/internal/journal"
	"github.com/xchem/eventmaphdr/internal/log"
	"github.com/xchem/eventmaphdr/internal/pandda"
)

// Status represents the overall health/readiness status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the result of a single component check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the full health check response.
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse is the readiness check response.
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker is a single component health check.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager runs registered checkers and aggregates their results.
type Manager struct {
	version  string
	checkers []Checker
}

func NewManager(version string) *Manager {
	return &Manager{version: version}
}

func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// Health is the liveness probe. It always reports alive; component
// checks are included only in verbose mode.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
	}

	if verbose && len(m.checkers) > 0 {
		resp.Checks = make(map[string]CheckResult)
		for _, checker := range m.checkers {
			result := checker.Check(ctx)
			resp.Checks[checker.Name()] = result
			resp.Status = worse(resp.Status, result.Status)
		}
	}

	return resp
}

// Ready is the readiness probe. Any unhealthy component makes the
// service not ready.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	resp := ReadinessResponse{
		Ready:     true,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	if len(m.checkers) == 0 {
		return resp
	}

	resp.Checks = make(map[string]CheckResult)
	for _, checker := range m.checkers {
		result := checker.Check(ctx)
		resp.Checks[checker.Name()] = result
		resp.Status = worse(resp.Status, result.Status)
		if result.Status == StatusUnhealthy {
			resp.Ready = false
		}
	}

	return resp
}

func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// ServeHealth handles HTTP health check requests.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK) // always 200 for liveness

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "health.encode_error").Msg("failed to encode health response")
	}
}

// ServeReady handles HTTP readiness check requests.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")

	resp := m.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "readiness.encode_error").Msg("failed to encode readiness response")
	}

	logger.Debug().
		Str("event", "readiness.checked").
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("readiness check performed")
}

// PanDDAChecker verifies the PanDDA analysis root is present and holds
// a processed_datasets directory.
type PanDDAChecker struct {
	root string
}

func NewPanDDAChecker(root string) *PanDDAChecker {
	return &PanDDAChecker{root: root}
}

func (c *PanDDAChecker) Name() string {
	return "pandda_root"
}

func (c *PanDDAChecker) Check(ctx context.Context) CheckResult {
	info, err := os.Stat(c.root)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   err.Error(),
			Message: c.root,
		}
	}
	if !info.IsDir() {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  "expected directory, got file",
		}
	}

	pd := filepath.Join(c.root, pandda.ProcessedDatasetsDir)
	if info, err := os.Stat(pd); err != nil || !info.IsDir() {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "no processed_datasets directory yet",
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "analysis root readable",
	}
}

// JournalChecker verifies the journal database passes a quick
// integrity check. A missing journal is healthy: journalling is
// optional.
type JournalChecker struct {
	path string
}

func NewJournalChecker(path string) *JournalChecker {
	return &JournalChecker{path: path}
}

func (c *JournalChecker) Name() string {
	return "journal"
}

func (c *JournalChecker) Check(ctx context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{
			Status:  StatusHealthy,
			Message: "not configured (optional)",
		}
	}
	if _, err := os.Stat(c.path); os.IsNotExist(err) {
		return CheckResult{
			Status:  StatusHealthy,
			Message: "not created yet",
		}
	}

	if probs, err := journal.VerifyIntegrity(c.path, "quick"); err != nil {
		return CheckResult{
			Status: StatusDegraded,
			Error:  err.Error(),
		}
	} else if len(probs) > 0 {
		return CheckResult{
			Status:  StatusDegraded,
			Message: probs[0],
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "integrity check passed",
	}
}

// LastRunChecker reports the outcome and age of the last update run.
type LastRunChecker struct {
	getLastRun func() (time.Time, string)
}

func NewLastRunChecker(getLastRun func() (time.Time, string)) *LastRunChecker {
	return &LastRunChecker{getLastRun: getLastRun}
}

func (c *LastRunChecker) Name() string {
	return "last_run"
}

func (c *LastRunChecker) Check(ctx context.Context) CheckResult {
	lastRun, lastError := c.getLastRun()

	if lastRun.IsZero() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "no update run yet",
		}
	}

	if lastError != "" {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   lastError,
			Message: "last update run failed",
		}
	}

	if time.Since(lastRun) > 24*time.Hour {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "last successful run over 24h ago",
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "last update run successful",
	}
}
