// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package auth

import (
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Identity is one account record as held by a CredentialStore.
type Identity struct {
	ID           ulid.ULID
	Name         string
	Email        string
	PasswordHash string
	IsAdmin      bool
	IsVerified   bool

	// Reset and Verification are nil when no credential of that kind has
	// been issued or the last one was redeemed.
	Reset        *ResetCredential
	Verification *VerificationCredential

	// Version is the compare-and-update token. Stores bump it on every
	// successful Save; callers never set it directly.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublicIdentity is the profile view of an Identity.
type PublicIdentity struct {
	ID         ulid.ULID `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	IsAdmin    bool      `json:"isAdmin"`
	IsVerified bool      `json:"isVerified"`
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewIdentity creates an unverified, non-admin identity.
func NewIdentity(name, email, passwordHash string, now time.Time) (*Identity, error) {
	name, err := validName(name)
	if err != nil {
		return nil, err
	}
	email, err = validEmail(email)
	if err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("IDENTITY_INVALID").With("field", "password_hash").Wrapf(ErrInvalidIdentity, "password hash is required")
	}

	now = now.UTC()
	return &Identity{
		ID:           ulid.Make(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", oops.Code("IDENTITY_INVALID").With("field", "name").Wrapf(ErrInvalidIdentity, "name is required")
	}
	return name, nil
}

func validEmail(email string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", oops.Code("IDENTITY_INVALID").With("field", "email").Wrapf(ErrInvalidIdentity, "email is required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "", oops.Code("IDENTITY_INVALID").With("field", "email").Wrapf(ErrInvalidIdentity, "email %q is malformed", email)
	}
	return email, nil
}

// rename applies a non-blank name and email. A new email address has not
// been verified and any reset or verification secret was mailed to the old
// one, so changing it clears the verification flag and both credentials.
func (i *Identity) rename(name, email string) error {
	if strings.TrimSpace(name) != "" {
		valid, err := validName(name)
		if err != nil {
			return err
		}
		i.Name = valid
	}
	if strings.TrimSpace(email) == "" {
		return nil
	}
	valid, err := validEmail(email)
	if err != nil {
		return err
	}
	if valid != i.Email {
		i.Email = valid
		i.IsVerified = false
		i.Reset = nil
		i.Verification = nil
	}
	return nil
}

// Public returns the profile view, which never includes the digest or any
// credential.
func (i *Identity) Public() PublicIdentity {
	return PublicIdentity{
		ID:         i.ID,
		Name:       i.Name,
		Email:      i.Email,
		IsAdmin:    i.IsAdmin,
		IsVerified: i.IsVerified,
	}
}

// Clone returns a deep copy.
func (i *Identity) Clone() *Identity {
	c := *i
	if i.Reset != nil {
		r := *i.Reset
		c.Reset = &r
	}
	if i.Verification != nil {
		v := *i.Verification
		c.Verification = &v
	}
	return &c
}
