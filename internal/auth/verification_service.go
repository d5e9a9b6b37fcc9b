// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package auth

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// VerificationService issues and redeems email verification passcodes.
type VerificationService struct {
	store    CredentialStore
	notifier Notifier
	opts     options
}

// NewVerificationService creates a VerificationService.
func NewVerificationService(store CredentialStore, notifier Notifier, opts ...Option) (*VerificationService, error) {
	if store == nil {
		return nil, oops.Code("VERIFY_SERVICE_INVALID").Errorf("credential store is required")
	}
	if notifier == nil {
		return nil, oops.Code("VERIFY_SERVICE_INVALID").Errorf("notifier is required")
	}
	return &VerificationService{
		store:    store,
		notifier: notifier,
		opts:     newOptions(opts),
	}, nil
}

// IssueOtp binds a fresh 6-digit code to an unverified identity, replacing
// any earlier one, and mails it. Verified identities fail with
// ErrAlreadyVerified and are left untouched.
func (s *VerificationService) IssueOtp(ctx context.Context, id ulid.ULID) (err error) {
	defer func() { s.opts.recorder.RecordOperation("issue_otp", outcome(err)) }()

	code, err := s.opts.secrets.Code()
	if err != nil {
		return oops.Code("VERIFY_ISSUE_FAILED").With("operation", "generate code").Wrap(err)
	}

	identity, err := compareAndSave(ctx, s.store, s.opts.saveBackoff,
		loadByID(s.store, id, "VERIFY"),
		func(identity *Identity) error {
			if identity.IsVerified {
				return oops.Code("VERIFY_ALREADY_VERIFIED").
					With("identity_id", id.String()).
					Wrap(ErrAlreadyVerified)
			}
			identity.Verification = &VerificationCredential{
				CodeHash:  HashSecret(code),
				ExpiresAt: s.opts.now().Add(s.opts.otpTTL).UTC(),
			}
			return nil
		},
	)
	if err != nil {
		return err
	}

	s.opts.logger.InfoContext(ctx, "verification code issued",
		"operation", "issue_otp",
		"identity_id", id.String(),
		"expires_at", identity.Verification.ExpiresAt)

	subject, body := verificationMessage(identity.Name, code, s.opts.otpTTL)
	if err := s.notifier.Send(ctx, identity.Email, subject, body); err != nil {
		s.opts.recorder.RecordNotification("verification", "failed")
		s.opts.logger.WarnContext(ctx, "verification notification failed",
			"operation", "issue_otp",
			"identity_id", id.String(),
			"error", err)
		return oops.Code("VERIFY_DELIVERY_FAILED").
			With("identity_id", id.String()).
			Wrap(fmt.Errorf("%w: %w", ErrDeliveryFailed, err))
	}
	s.opts.recorder.RecordNotification("verification", "sent")
	return nil
}

// RedeemOtp marks the identity verified if code matches its live passcode,
// clearing the passcode in the same save.
func (s *VerificationService) RedeemOtp(ctx context.Context, id ulid.ULID, code string) (err error) {
	defer func() { s.opts.recorder.RecordOperation("redeem_otp", outcome(err)) }()

	_, err = compareAndSave(ctx, s.store, s.opts.saveBackoff,
		loadByID(s.store, id, "VERIFY"),
		func(identity *Identity) error {
			if !identity.Verification.LiveAt(s.opts.now()) {
				return oops.Code("VERIFY_OTP_EXPIRED").
					With("identity_id", id.String()).
					Wrap(ErrOtpExpiredOrMissing)
			}
			if !identity.Verification.Matches(code) {
				return oops.Code("VERIFY_OTP_MISMATCH").
					With("identity_id", id.String()).
					Wrap(ErrOtpMismatch)
			}
			identity.IsVerified = true
			identity.Verification = nil
			return nil
		},
	)
	if err != nil {
		return err
	}

	s.opts.logger.InfoContext(ctx, "identity verified",
		"operation", "redeem_otp",
		"identity_id", id.String())
	return nil
}
