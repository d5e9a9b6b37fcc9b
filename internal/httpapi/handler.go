// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

// Package httpapi exposes the credential services as JSON over HTTP under
// /api/users.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authio/authio/internal/auth"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Authenticator signs identities in and serves profiles.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*auth.Session, error)
	Register(ctx context.Context, name, email, password string) (*auth.Session, error)
	Profile(ctx context.Context, id ulid.ULID) (*auth.PublicIdentity, error)
	UpdateProfile(ctx context.Context, id ulid.ULID, update auth.ProfileUpdate) (*auth.Session, error)
}

// Resetter runs the password reset flow.
type Resetter interface {
	RequestReset(ctx context.Context, email string) error
	RedeemReset(ctx context.Context, token, newPassword string) error
}

// Verifier runs the email verification flow.
type Verifier interface {
	IssueOtp(ctx context.Context, id ulid.ULID) error
	RedeemOtp(ctx context.Context, id ulid.ULID, code string) error
}

// Administrator lists and edits identities on behalf of admin sessions.
type Administrator interface {
	List(ctx context.Context) ([]auth.PublicIdentity, error)
	Get(ctx context.Context, id ulid.ULID) (*auth.PublicIdentity, error)
	Update(ctx context.Context, id ulid.ULID, update auth.IdentityUpdate) (*auth.PublicIdentity, error)
}

// SessionParser validates bearer credentials.
type SessionParser interface {
	Parse(token string) (*auth.SessionClaims, error)
}

// Deps are the collaborators of a Handler. Logger may be nil.
type Deps struct {
	Auth     Authenticator
	Resets   Resetter
	Verify   Verifier
	Admin    Administrator
	Sessions SessionParser
	Logger   *slog.Logger
}

// Handler serves the /api/users routes.
type Handler struct {
	auth     Authenticator
	resets   Resetter
	verify   Verifier
	admin    Administrator
	sessions SessionParser
	logger   *slog.Logger
}

// New validates deps and returns a Handler.
func New(deps Deps) (*Handler, error) {
	switch {
	case deps.Auth == nil:
		return nil, oops.Code("HTTPAPI_INVALID").Errorf("authenticator is required")
	case deps.Resets == nil:
		return nil, oops.Code("HTTPAPI_INVALID").Errorf("reset service is required")
	case deps.Verify == nil:
		return nil, oops.Code("HTTPAPI_INVALID").Errorf("verification service is required")
	case deps.Admin == nil:
		return nil, oops.Code("HTTPAPI_INVALID").Errorf("admin service is required")
	case deps.Sessions == nil:
		return nil, oops.Code("HTTPAPI_INVALID").Errorf("session parser is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		auth:     deps.Auth,
		resets:   deps.Resets,
		verify:   deps.Verify,
		admin:    deps.Admin,
		sessions: deps.Sessions,
		logger:   logger,
	}, nil
}

// Routes returns the mux with request logging applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/users/login", h.login)
	mux.HandleFunc("POST /api/users/register", h.register)
	mux.HandleFunc("POST /api/users/forgot-password", h.forgotPassword)
	mux.HandleFunc("POST /api/users/reset-password/{token}", h.resetPassword)
	mux.Handle("GET /api/users/profile", h.requireSession(h.profile))
	mux.Handle("PUT /api/users/profile", h.requireSession(h.updateProfile))
	mux.Handle("POST /api/users/send-otp", h.requireSession(h.sendOtp))
	mux.Handle("POST /api/users/verify-otp", h.requireSession(h.verifyOtp))
	mux.Handle("GET /api/users", h.requireAdmin(h.listIdentities))
	mux.Handle("GET /api/users/{id}", h.requireAdmin(h.getIdentity))
	mux.Handle("PUT /api/users/{id}", h.requireAdmin(h.updateIdentity))
	return h.logRequests(mux)
}

type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	auth.PublicIdentity
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.resets.RequestReset(r.Context(), req.Email); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{"Password reset link sent to email"})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.resets.RedeemReset(r.Context(), r.PathValue("token"), req.Password); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{"Password has been reset successfully"})
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request, id ulid.ULID) {
	profile, err := h.auth.Profile(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request, id ulid.ULID) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.auth.UpdateProfile(r.Context(), id, auth.ProfileUpdate{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *Handler) sendOtp(w http.ResponseWriter, r *http.Request, id ulid.ULID) {
	if err := h.verify.IssueOtp(r.Context(), id); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{"OTP sent to your email address"})
}

func (h *Handler) verifyOtp(w http.ResponseWriter, r *http.Request, id ulid.ULID) {
	var req struct {
		OTP string `json:"otp"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.verify.RedeemOtp(r.Context(), id, req.OTP); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{"Account verified successfully"})
}

func (h *Handler) listIdentities(w http.ResponseWriter, r *http.Request) {
	identities, err := h.admin.List(r.Context())
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, identities)
}

func (h *Handler) getIdentity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	identity, err := h.admin.Get(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

func (h *Handler) updateIdentity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		IsAdmin *bool  `json:"isAdmin"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	identity, err := h.admin.Update(r.Context(), id, auth.IdentityUpdate{
		Name:    req.Name,
		Email:   req.Email,
		IsAdmin: req.IsAdmin,
	})
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

// pathID parses the {id} segment. An id that is not a ULID names no
// identity, so it is reported as not found.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (ulid.ULID, bool) {
	id, err := ulid.ParseStrict(r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, h.logger, oops.Code("IDENTITY_ID_INVALID").With("id", r.PathValue("id")).Wrap(auth.ErrNotFound))
		return ulid.ULID{}, false
	}
	return id, true
}

func toSessionResponse(s *auth.Session) sessionResponse {
	return sessionResponse{PublicIdentity: s.Identity, Token: s.Token, ExpiresAt: s.ExpiresAt}
}

// decode reads a JSON body into dst and writes a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: kindBadRequest, Message: "Request body too large"})
		return false
	}
	writeKind(r.Context(), w, h.logger, kindBadRequest, err)
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson // client may disconnect
	json.NewEncoder(w).Encode(body)
}
