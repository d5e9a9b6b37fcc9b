// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package auth

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Service signs identities in, registers them and serves profiles.
type Service struct {
	store    CredentialStore
	hasher   PasswordHasher
	sessions SessionSigner
	opts     options
}

// NewAuthService creates a Service.
func NewAuthService(store CredentialStore, hasher PasswordHasher, sessions SessionSigner, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("credential store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("session signer is required")
	}
	return &Service{
		store:    store,
		hasher:   hasher,
		sessions: sessions,
		opts:     newOptions(opts),
	}, nil
}

// dummyPasswordHash is verified when the email is unknown so that both
// failure paths cost one argon2 evaluation. It matches no password.
//
//nolint:gosec // G101: not a credential
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Authenticate checks email and password and mints a session credential.
// An unknown email and a wrong password both fail with ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (session *Session, err error) {
	defer func() { s.opts.recorder.RecordOperation("authenticate", authOutcome(err)) }()

	email = NormalizeEmail(email)
	identity, lookupErr := s.store.FindByEmail(ctx, email)

	target := dummyPasswordHash
	exists := false
	switch {
	case lookupErr == nil:
		target = identity.PasswordHash
		exists = true
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, unavailable("AUTH_LOGIN_FAILED", "find identity by email", lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(password, target)
	if verifyErr != nil && exists {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("identity_id", identity.ID.String()).
			Wrap(verifyErr)
	}

	if !exists {
		s.opts.logger.InfoContext(ctx, "authentication failed",
			"operation", "authenticate",
			"reason", reasonUnknownEmail)
		return nil, invalidCredentials(reasonUnknownEmail)
	}
	if !valid {
		s.opts.logger.InfoContext(ctx, "authentication failed",
			"operation", "authenticate",
			"reason", reasonBadPassword,
			"identity_id", identity.ID.String())
		return nil, invalidCredentials(reasonBadPassword)
	}

	if s.hasher.NeedsUpgrade(identity.PasswordHash) {
		s.upgradeDigest(ctx, identity, password)
	}

	return s.mint(ctx, identity)
}

// Register creates an unverified identity and signs it in.
func (s *Service) Register(ctx context.Context, name, email, password string) (session *Session, err error) {
	defer func() { s.opts.recorder.RecordOperation("register", outcome(err)) }()

	if password == "" {
		return nil, oops.Code("REGISTER_PASSWORD_EMPTY").Wrap(ErrEmptyPassword)
	}
	email = NormalizeEmail(email)

	switch _, err := s.store.FindByEmail(ctx, email); {
	case err == nil:
		return nil, oops.Code("REGISTER_EMAIL_TAKEN").With("email", email).Wrap(ErrEmailTaken)
	case !errors.Is(err, ErrNotFound):
		return nil, unavailable("REGISTER_FAILED", "find identity by email", err)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	identity, err := NewIdentity(name, email, digest, s.opts.now())
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, identity); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, oops.Code("REGISTER_EMAIL_TAKEN").With("email", email).Wrap(ErrEmailTaken)
		}
		return nil, unavailable("REGISTER_FAILED", "create identity", err)
	}

	s.opts.logger.InfoContext(ctx, "identity registered",
		"operation", "register",
		"identity_id", identity.ID.String())

	return s.mint(ctx, identity)
}

// Profile returns the public view of the identity.
func (s *Service) Profile(ctx context.Context, id ulid.ULID) (*PublicIdentity, error) {
	identity, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("PROFILE_NOT_FOUND").With("identity_id", id.String()).Wrap(ErrNotFound)
		}
		return nil, unavailable("PROFILE_FAILED", "find identity by id", err)
	}
	p := identity.Public()
	return &p, nil
}

// ProfileUpdate holds the fields an identity may change on itself. Blank
// fields are left unchanged.
type ProfileUpdate struct {
	Name     string
	Email    string
	Password string
}

// UpdateProfile applies update to the identity and signs it in again so the
// returned session reflects the change. An email held by another identity
// fails with ErrEmailTaken.
func (s *Service) UpdateProfile(ctx context.Context, id ulid.ULID, update ProfileUpdate) (session *Session, err error) {
	defer func() { s.opts.recorder.RecordOperation("update_profile", outcome(err)) }()

	var digest string
	if update.Password != "" {
		if digest, err = s.hasher.Hash(update.Password); err != nil {
			return nil, oops.Code("PROFILE_UPDATE_FAILED").With("operation", "hash password").Wrap(err)
		}
	}

	identity, err := compareAndSave(ctx, s.store, s.opts.saveBackoff,
		loadByID(s.store, id, "PROFILE"),
		func(identity *Identity) error {
			if err := identity.rename(update.Name, update.Email); err != nil {
				return err
			}
			if digest != "" {
				identity.PasswordHash = digest
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	s.opts.logger.InfoContext(ctx, "profile updated",
		"operation", "update_profile",
		"identity_id", id.String(),
		"password_changed", digest != "")
	return s.mint(ctx, identity)
}

func (s *Service) mint(ctx context.Context, identity *Identity) (*Session, error) {
	token, expiresAt, err := s.sessions.Issue(identity)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "issue session").Wrap(err)
	}
	s.opts.logger.DebugContext(ctx, "session issued",
		"identity_id", identity.ID.String(),
		"expires_at", expiresAt)
	return &Session{
		Identity:  identity.Public(),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// upgradeDigest rehashes with current parameters. Failures only log: the
// sign-in already succeeded and the old digest still verifies.
func (s *Service) upgradeDigest(ctx context.Context, identity *Identity, password string) {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		s.opts.logger.WarnContext(ctx, "password digest upgrade failed",
			"identity_id", identity.ID.String(), "error", err)
		return
	}
	next := identity.Clone()
	next.PasswordHash = digest
	if err := s.store.Save(ctx, next); err != nil {
		s.opts.logger.WarnContext(ctx, "password digest upgrade not saved",
			"identity_id", identity.ID.String(), "error", err)
	}
}

const (
	reasonUnknownEmail = "unknown_email"
	reasonBadPassword  = "bad_password"
)

// credentialFailure keeps the internal reason next to the public kind.
type credentialFailure struct{ reason string }

func (e credentialFailure) Error() string { return ErrInvalidCredentials.Error() }
func (e credentialFailure) Unwrap() error { return ErrInvalidCredentials }

func invalidCredentials(reason string) error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(credentialFailure{reason: reason})
}

// authOutcome labels the two invalid-credential reasons separately.
func authOutcome(err error) string {
	var cf credentialFailure
	if errors.As(err, &cf) {
		return cf.reason
	}
	return outcome(err)
}
