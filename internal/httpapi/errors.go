// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/authio/authio/internal/auth"
	"github.com/authio/authio/pkg/errutil"
)

// kindBadRequest marks malformed request bodies; it is not an auth kind.
const kindBadRequest = "bad_request"

type errorMapping struct {
	status  int
	message string
}

var errorMappings = map[string]errorMapping{
	"not_found":                {http.StatusNotFound, "User not found"},
	"invalid_credentials":      {http.StatusUnauthorized, "Invalid email or password"},
	"invalid_session":          {http.StatusUnauthorized, "Not authorized"},
	"forbidden":                {http.StatusForbidden, "Not authorized as an admin"},
	"invalid_or_expired_token": {http.StatusBadRequest, "Invalid or expired token"},
	"otp_expired_or_missing":   {http.StatusBadRequest, "OTP is invalid or has expired"},
	"otp_mismatch":             {http.StatusBadRequest, "Incorrect OTP"},
	"already_verified":         {http.StatusBadRequest, "User is already verified"},
	"invalid_identity":         {http.StatusBadRequest, "Invalid user data"},
	"invalid_password":         {http.StatusBadRequest, "Password is required"},
	"email_taken":              {http.StatusConflict, "User already exists"},
	"conflict":                 {http.StatusConflict, "User was modified concurrently, try again"},
	"delivery_failed":          {http.StatusBadGateway, "Email could not be sent"},
	"store_unavailable":        {http.StatusServiceUnavailable, "Service temporarily unavailable"},
	kindBadRequest:             {http.StatusBadRequest, "Malformed request body"},
}

var internalError = errorMapping{http.StatusInternalServerError, "Internal server error"}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps err to a status and a body that names only its kind.
// Server-side failures are logged with the full chain.
func writeError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	writeKind(ctx, w, logger, auth.Kind(err), err)
}

func writeKind(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, kind string, err error) {
	mapping, ok := errorMappings[kind]
	if !ok {
		kind, mapping = "internal", internalError
	}
	if mapping.status >= http.StatusInternalServerError {
		errutil.LogError(ctx, logger, "request failed", err)
	}
	writeJSON(w, mapping.status, errorBody{Error: kind, Message: mapping.message})
}
