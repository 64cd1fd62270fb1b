// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/xchem/eventmaphdr/internal/jobs"
	"github.com/xchem/eventmaphdr/internal/log"
)

const scanTimeout = 30 * time.Minute

type statusResponse struct {
	jobs.Status
	JournalEntries int `json:"journal_entries,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: s.Status()}
	if s.jnl != nil {
		if n, err := s.jnl.Count(r.Context()); err == nil {
			resp.JournalEntries = n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.jnl == nil {
		writeJSONError(w, http.StatusNotFound, "journalling disabled")
		return
	}

	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 1000 {
			writeJSONError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	entries, err := s.jnl.History(r.Context(), limit)
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).Str("event", "history.query_failed").Msg("journal history query failed")
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleScan triggers one update run. At most one scan runs at a time;
// a second trigger gets 409 with a Retry-After hint.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	if !s.scanning.CompareAndSwap(false, true) {
		logger.Warn().Str("event", "scan.conflict").Msg("scan already in progress")
		w.Header().Set("Retry-After", "30")
		writeJSONError(w, http.StatusConflict, "a scan is already in progress")
		return
	}
	defer s.scanning.Store(false)

	// Detached from the request context: a dropped client must not
	// abandon half-written maps.
	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	start := time.Now()
	st, err := s.updateFn(ctx, s.cfg, s.jnl)
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "scan.failed").
			Dur("duration", time.Since(start)).
			Msg("manual scan failed")

		s.mu.Lock()
		s.status.Error = "scan failed"
		s.mu.Unlock()

		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.SetStatus(*st)
	logger.Info().
		Str("event", "scan.complete").
		Str("run_id", st.RunID).
		Int("updated", st.Updated).
		Int("failed", st.Failed).
		Dur("duration", st.Duration).
		Msg("manual scan completed")

	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"error": http.StatusText(code), "detail": detail})
}
