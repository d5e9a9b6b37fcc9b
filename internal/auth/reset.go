// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// Credential lifetimes.
const (
	ResetTokenExpiry   = time.Hour
	VerificationExpiry = 10 * time.Minute
)

// ResetCredential binds a password-reset token to an identity. Only the
// SHA-256 digest of the token is stored.
type ResetCredential struct {
	TokenHash string
	ExpiresAt time.Time
}

// LiveAt reports whether the credential exists and has not expired at now.
func (c *ResetCredential) LiveAt(now time.Time) bool {
	return c != nil && now.Before(c.ExpiresAt)
}

// Matches compares the stored digest with the digest of token in constant time.
func (c *ResetCredential) Matches(token string) bool {
	return c != nil && secretsEqual(c.TokenHash, HashSecret(token))
}

// VerificationCredential binds a one-time passcode to an identity. Only the
// SHA-256 digest of the code is stored.
type VerificationCredential struct {
	CodeHash  string
	ExpiresAt time.Time
}

// LiveAt reports whether the credential exists and has not expired at now.
func (c *VerificationCredential) LiveAt(now time.Time) bool {
	return c != nil && now.Before(c.ExpiresAt)
}

// Matches compares the stored digest with the digest of code in constant time.
func (c *VerificationCredential) Matches(code string) bool {
	return c != nil && secretsEqual(c.CodeHash, HashSecret(code))
}

// HashSecret returns the hex SHA-256 of a token or code, the form in which
// secrets are persisted and looked up.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func secretsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
