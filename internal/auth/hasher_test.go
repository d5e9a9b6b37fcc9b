// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package auth_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authio/authio/internal/auth"
	"github.com/authio/authio/pkg/errutil"
)

func TestArgon2idHasher_Hash(t *testing.T) {
	hasher := newTestHasher(t)

	t.Run("produces PHC digest with configured params", func(t *testing.T) {
		digest, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(digest, "$argon2id$v=19$m=64,t=1,p=1$"), digest)
	})

	t.Run("same password produces different digests", func(t *testing.T) {
		d1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		d2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, d1, d2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrEmptyPassword))
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
	})
}

func TestArgon2idHasher_Verify(t *testing.T) {
	hasher := newTestHasher(t)

	digest, err := hasher.Hash("correctpassword")
	require.NoError(t, err)

	t.Run("correct password verifies", func(t *testing.T) {
		ok, err := hasher.Verify("correctpassword", digest)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incorrect password fails without error", func(t *testing.T) {
		ok, err := hasher.Verify("wrongpassword", digest)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("verifies digests made with other params", func(t *testing.T) {
		other, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 2, Memory: 128, Threads: 2, SaltLen: 8, KeyLen: 16})
		require.NoError(t, err)
		d, err := other.Hash("pw")
		require.NoError(t, err)

		ok, err := hasher.Verify("pw", d)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	malformed := []struct {
		name   string
		digest string
		errMsg string
	}{
		{"not a digest", "not-a-valid-hash", "invalid hash format"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA", "unsupported hash algorithm"},
		{"bad version", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA", ""},
		{"bad params", "$argon2id$v=19$invalid$c2FsdA$aGFzaA", ""},
		{"bad salt", "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaA", ""},
		{"bad key", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!invalid!!!", ""},
		{"threads overflow", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA", "threads value"},
	}
	for _, tt := range malformed {
		t.Run(tt.name, func(t *testing.T) {
			_, err := hasher.Verify("password", tt.digest)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
			if tt.errMsg != "" {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}

func TestArgon2idHasher_NeedsUpgrade(t *testing.T) {
	hasher := newTestHasher(t)

	t.Run("bcrypt digest needs upgrade", func(t *testing.T) {
		assert.True(t, hasher.NeedsUpgrade("$2a$10$N9qo8uLOickgx2ZMRZoMyeIvNq.Uf3hE9tQALNP1Qn9sNp5x5x5x5"))
	})

	t.Run("own digest does not", func(t *testing.T) {
		d, err := hasher.Hash("password")
		require.NoError(t, err)
		assert.False(t, hasher.NeedsUpgrade(d))
	})

	t.Run("digest with weaker params does", func(t *testing.T) {
		assert.True(t, auth.NewArgon2idHasher().NeedsUpgrade("$argon2id$v=19$m=64,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA"))
	})
}

func TestNewArgon2idHasherWithParams_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		params auth.Argon2Params
	}{
		{"zero time", auth.Argon2Params{Time: 0, Memory: 64, Threads: 1, SaltLen: 16, KeyLen: 32}},
		{"zero threads", auth.Argon2Params{Time: 1, Memory: 64, Threads: 0, SaltLen: 16, KeyLen: 32}},
		{"memory below floor", auth.Argon2Params{Time: 1, Memory: 8, Threads: 4, SaltLen: 16, KeyLen: 32}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := auth.NewArgon2idHasherWithParams(tt.params)
			require.Error(t, err)
			assert.Nil(t, h)
			errutil.AssertErrorCode(t, err, "AUTH_HASHER_PARAMS_INVALID")
		})
	}
}
