// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Error kinds returned by the credential services. Callers match them with
// errors.Is; the oops code attached by each service is diagnostic only.
var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrOtpExpiredOrMissing   = errors.New("otp is invalid or has expired")
	ErrOtpMismatch           = errors.New("incorrect otp")
	ErrAlreadyVerified       = errors.New("identity is already verified")
	ErrDeliveryFailed        = errors.New("notification delivery failed")
	ErrStoreUnavailable      = errors.New("credential store unavailable")

	ErrEmailTaken      = errors.New("email already registered")
	ErrInvalidSession  = errors.New("invalid session")
	ErrForbidden       = errors.New("admin privileges required")
	ErrConflict        = errors.New("identity modified concurrently")
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrEmptyPassword   = errors.New("password cannot be empty")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrNotFound, "not_found"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrInvalidOrExpiredToken, "invalid_or_expired_token"},
	{ErrOtpExpiredOrMissing, "otp_expired_or_missing"},
	{ErrOtpMismatch, "otp_mismatch"},
	{ErrAlreadyVerified, "already_verified"},
	{ErrDeliveryFailed, "delivery_failed"},
	{ErrEmailTaken, "email_taken"},
	{ErrInvalidSession, "invalid_session"},
	{ErrForbidden, "forbidden"},
	{ErrInvalidIdentity, "invalid_identity"},
	{ErrEmptyPassword, "invalid_password"},
	// StoreUnavailable is checked after the domain kinds so a lookup
	// failure inside a lifecycle step reports as infrastructure.
	{ErrStoreUnavailable, "store_unavailable"},
	{ErrConflict, "conflict"},
}

// Kind returns a stable, transport-friendly name for the error kind in err's
// chain, or "internal" when err matches none of the package's kinds.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// unavailable wraps an infrastructure failure from a store or other
// collaborator so it carries ErrStoreUnavailable. Errors that already carry
// a kind, such as ErrEmailTaken from a Save, are returned with only the
// added context.
func unavailable(code, operation string, err error) error {
	b := oops.Code(code).With("operation", operation)
	if Kind(err) != "internal" {
		return b.Wrap(err)
	}
	return b.Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
}
