// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session credential defaults.
const (
	SessionExpiry        = 30 * 24 * time.Hour
	DefaultSessionIssuer = "authio"
	MinSessionSecretLen  = 32
	maxSessionLeeway     = 2 * time.Minute
)

// SessionConfig configures a SessionManager.
type SessionConfig struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	Leeway time.Duration
	Now    func() time.Time
}

// SessionClaims is the payload of a session credential. The subject is the
// identity ULID.
type SessionClaims struct {
	Admin bool `json:"adm"`
	jwt.RegisteredClaims
}

// IdentityID parses the subject claim.
func (c *SessionClaims) IdentityID() (ulid.ULID, error) {
	id, err := ulid.ParseStrict(c.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code("SESSION_SUBJECT_INVALID").Wrap(ErrInvalidSession)
	}
	return id, nil
}

// Session is the result of a successful sign-in.
type Session struct {
	Identity  PublicIdentity
	Token     string
	ExpiresAt time.Time
}

// SessionSigner mints session credentials for an identity.
type SessionSigner interface {
	Issue(identity *Identity) (token string, expiresAt time.Time, err error)
}

// SessionManager mints and validates stateless HS256 session tokens.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	parser *jwt.Parser
	now    func() time.Time
}

var _ SessionSigner = (*SessionManager)(nil)

// NewSessionManager validates cfg and returns a manager.
func NewSessionManager(cfg SessionConfig) (*SessionManager, error) {
	if len(cfg.Secret) < MinSessionSecretLen {
		return nil, oops.Code("SESSION_CONFIG_INVALID").
			Errorf("session secret must be at least %d bytes", MinSessionSecretLen)
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxSessionLeeway {
		return nil, oops.Code("SESSION_CONFIG_INVALID").
			With("leeway", cfg.Leeway).
			Errorf("session leeway must be between 0 and %s", maxSessionLeeway)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = SessionExpiry
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultSessionIssuer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &SessionManager{
		secret: secret,
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    cfg.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(cfg.Leeway),
			jwt.WithTimeFunc(cfg.Now),
		),
	}, nil
}

// Issue signs a credential for identity that expires after the configured TTL.
func (m *SessionManager) Issue(identity *Identity) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl).Truncate(time.Second)

	claims := SessionClaims{
		Admin: identity.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID.String(),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        ulid.Make().String(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("SESSION_SIGN_FAILED").
			With("identity_id", identity.ID.String()).
			Wrap(err)
	}
	return token, expiresAt, nil
}

// Parse validates signature, algorithm, issuer and expiry. Any failure
// wraps ErrInvalidSession.
func (m *SessionManager) Parse(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := m.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, oops.Code("SESSION_INVALID").Wrapf(ErrInvalidSession, "%v", err)
	}
	if _, err := claims.IdentityID(); err != nil {
		return nil, err
	}
	return claims, nil
}
