// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"math/big"
	"strconv"

	"github.com/samber/oops"
)

// ResetTokenBytes is the entropy of a reset token; it renders as twice as
// many hex characters.
const ResetTokenBytes = 32

// OTP codes are drawn uniformly from [codeFloor, codeFloor+codeSpan).
const (
	codeFloor = 100000
	codeSpan  = 900000
)

// SecretGenerator produces the secrets bound to reset and verification
// credentials.
type SecretGenerator interface {
	// Token returns a 64-character lowercase hex string.
	Token() (string, error)
	// Code returns a 6-digit decimal string in [100000, 999999].
	Code() (string, error)
}

// CryptoSecrets draws secrets from a cryptographically secure source.
type CryptoSecrets struct {
	// Rand defaults to crypto/rand.Reader.
	Rand io.Reader
}

var _ SecretGenerator = CryptoSecrets{}

func (g CryptoSecrets) source() io.Reader {
	if g.Rand == nil {
		return rand.Reader
	}
	return g.Rand
}

// Token returns ResetTokenBytes random bytes hex-encoded.
func (g CryptoSecrets) Token() (string, error) {
	b := make([]byte, ResetTokenBytes)
	if _, err := io.ReadFull(g.source(), b); err != nil {
		return "", oops.Code("SECRET_TOKEN_FAILED").Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// Code returns a uniformly distributed 6-digit code.
func (g CryptoSecrets) Code() (string, error) {
	n, err := rand.Int(g.source(), big.NewInt(codeSpan))
	if err != nil {
		return "", oops.Code("SECRET_CODE_FAILED").Wrap(err)
	}
	return strconv.FormatInt(codeFloor+n.Int64(), 10), nil
}
