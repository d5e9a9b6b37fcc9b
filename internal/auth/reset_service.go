// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// PasswordResetService issues and redeems single-use password-reset tokens.
type PasswordResetService struct {
	store    CredentialStore
	hasher   PasswordHasher
	notifier Notifier
	opts     options
}

// NewPasswordResetService creates a PasswordResetService.
func NewPasswordResetService(store CredentialStore, hasher PasswordHasher, notifier Notifier, opts ...Option) (*PasswordResetService, error) {
	if store == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("credential store is required")
	}
	if hasher == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if notifier == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("notifier is required")
	}
	return &PasswordResetService{
		store:    store,
		hasher:   hasher,
		notifier: notifier,
		opts:     newOptions(opts),
	}, nil
}

// RequestReset binds a fresh token to the identity with the given email,
// replacing any earlier one, and mails a reset link.
//
// ErrDeliveryFailed means the token was stored but the mail was not sent;
// calling RequestReset again issues a new token.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) (err error) {
	defer func() { s.opts.recorder.RecordOperation("request_reset", outcome(err)) }()

	email = NormalizeEmail(email)

	token, err := s.opts.secrets.Token()
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "generate token").Wrap(err)
	}
	tokenHash := HashSecret(token)

	identity, err := compareAndSave(ctx, s.store, s.opts.saveBackoff,
		func(ctx context.Context) (*Identity, error) {
			identity, err := s.store.FindByEmail(ctx, email)
			if errors.Is(err, ErrNotFound) {
				return nil, oops.Code("RESET_IDENTITY_NOT_FOUND").Wrap(ErrNotFound)
			}
			if err != nil {
				return nil, unavailable("RESET_REQUEST_FAILED", "find identity by email", err)
			}
			return identity, nil
		},
		func(identity *Identity) error {
			identity.Reset = &ResetCredential{
				TokenHash: tokenHash,
				ExpiresAt: s.opts.now().Add(s.opts.resetTTL).UTC(),
			}
			return nil
		},
	)
	if err != nil {
		return err
	}

	s.opts.logger.InfoContext(ctx, "reset token issued",
		"operation", "request_reset",
		"identity_id", identity.ID.String(),
		"expires_at", identity.Reset.ExpiresAt)

	subject, body := resetMessage(resetLink(s.opts.resetBaseURL, token), s.opts.resetTTL)
	if err := s.notifier.Send(ctx, identity.Email, subject, body); err != nil {
		s.opts.recorder.RecordNotification("reset", "failed")
		s.opts.logger.WarnContext(ctx, "reset notification failed",
			"operation", "request_reset",
			"identity_id", identity.ID.String(),
			"error", err)
		return oops.Code("RESET_DELIVERY_FAILED").
			With("identity_id", identity.ID.String()).
			Wrap(fmt.Errorf("%w: %w", ErrDeliveryFailed, err))
	}
	s.opts.recorder.RecordNotification("reset", "sent")
	return nil
}

// RedeemReset replaces the password of the identity holding token and
// clears the token in the same save. Wrong, consumed and expired tokens all
// fail with ErrInvalidOrExpiredToken.
func (s *PasswordResetService) RedeemReset(ctx context.Context, token, newPassword string) (err error) {
	defer func() { s.opts.recorder.RecordOperation("redeem_reset", outcome(err)) }()

	if token == "" {
		return invalidToken()
	}
	if newPassword == "" {
		return oops.Code("RESET_PASSWORD_EMPTY").Wrap(ErrEmptyPassword)
	}
	tokenHash := HashSecret(token)

	var digest string
	identity, err := compareAndSave(ctx, s.store, s.opts.saveBackoff,
		func(ctx context.Context) (*Identity, error) {
			identity, err := s.store.FindByResetToken(ctx, tokenHash, s.opts.now())
			if errors.Is(err, ErrNotFound) {
				return nil, invalidToken()
			}
			if err != nil {
				return nil, unavailable("RESET_REDEEM_FAILED", "find identity by reset token", err)
			}
			return identity, nil
		},
		func(identity *Identity) error {
			if !identity.Reset.LiveAt(s.opts.now()) || !identity.Reset.Matches(token) {
				return invalidToken()
			}
			if digest == "" {
				var err error
				if digest, err = s.hasher.Hash(newPassword); err != nil {
					return oops.Code("RESET_REDEEM_FAILED").With("operation", "hash password").Wrap(err)
				}
			}
			identity.PasswordHash = digest
			identity.Reset = nil
			return nil
		},
	)
	if err != nil {
		return err
	}

	s.opts.logger.InfoContext(ctx, "password reset",
		"operation", "redeem_reset",
		"identity_id", identity.ID.String())
	return nil
}

func invalidToken() error {
	return oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidOrExpiredToken)
}
