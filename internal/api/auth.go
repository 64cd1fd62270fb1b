// SPDX-License-Identifier: MIT

package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/xchem/eventmaphdr/internal/log"
)

// authMiddleware enforces bearer token authentication on the /api
// routes. With no token configured the API is open; the probes and
// metrics endpoints are never authenticated.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		logger := log.WithComponentFromContext(r.Context(), "auth")

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			logger.Warn().Str("event", "auth.missing_header").Msg("authorization header missing")
			writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIToken)) != 1 {
			logger.Warn().Str("event", "auth.invalid_token").Msg("invalid api token")
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
