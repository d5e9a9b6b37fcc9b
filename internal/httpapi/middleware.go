// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authio/authio/internal/auth"
)

// sessionHandler is a handler that runs with an authenticated identity.
type sessionHandler func(w http.ResponseWriter, r *http.Request, id ulid.ULID)

// requireSession rejects requests without a valid bearer session.
func (h *Handler) requireSession(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, id, ok := h.authenticate(w, r); ok {
			next(w, r, id)
		}
	})
}

// requireAdmin additionally rejects sessions minted for non-admin
// identities.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, id, ok := h.authenticate(w, r)
		if !ok {
			return
		}
		if !claims.Admin {
			writeError(r.Context(), w, h.logger,
				oops.Code("ADMIN_REQUIRED").With("identity_id", id.String()).Wrap(auth.ErrForbidden))
			return
		}
		next(w, r)
	})
}

// authenticate parses the bearer session and writes a 401 when it is
// missing or invalid.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (*auth.SessionClaims, ulid.ULID, bool) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(r.Context(), w, h.logger, oops.Code("SESSION_MISSING").Wrap(auth.ErrInvalidSession))
		return nil, ulid.ULID{}, false
	}
	claims, err := h.sessions.Parse(token)
	if err != nil {
		h.logger.DebugContext(r.Context(), "session rejected", "error", err)
		writeError(r.Context(), w, h.logger, err)
		return nil, ulid.ULID{}, false
	}
	id, err := claims.IdentityID()
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return nil, ulid.ULID{}, false
	}
	return claims, id, true
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// logRequests logs one line per request. Paths carrying a reset token are
// logged by route, not by value.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if strings.HasPrefix(path, "/api/users/reset-password/") {
			path = "/api/users/reset-password/{token}"
		}
		h.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
