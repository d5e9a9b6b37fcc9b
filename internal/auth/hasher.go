// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// Argon2Params are the argon2id cost parameters encoded into every digest.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params follow the OWASP recommendation for argon2id.
var DefaultArgon2Params = Argon2Params{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

// PasswordHasher turns plaintext passwords into digests and checks them.
type PasswordHasher interface {
	// Hash produces a self-describing digest of the password.
	Hash(password string) (string, error)

	// Verify reports whether password matches digest. A malformed digest is
	// an error, a mismatch is not.
	Verify(password, digest string) (bool, error)

	// NeedsUpgrade reports whether digest was produced with different
	// parameters than the hasher currently uses.
	NeedsUpgrade(digest string) bool
}

// Argon2idHasher implements PasswordHasher with argon2id in PHC string format.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher returns a hasher using DefaultArgon2Params.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultArgon2Params}
}

// NewArgon2idHasherWithParams returns a hasher with explicit cost parameters.
func NewArgon2idHasherWithParams(p Argon2Params) (*Argon2idHasher, error) {
	if p.Time == 0 || p.Threads == 0 || p.SaltLen == 0 || p.KeyLen == 0 {
		return nil, oops.Code("AUTH_HASHER_PARAMS_INVALID").
			With("params", p).
			Errorf("argon2 time, threads, salt and key length must be positive")
	}
	if p.Memory < 8*uint32(p.Threads) {
		return nil, oops.Code("AUTH_HASHER_PARAMS_INVALID").
			With("memory", p.Memory).
			Errorf("argon2 memory must be at least 8 KiB per thread")
	}
	return &Argon2idHasher{params: p}, nil
}

// Hash produces an argon2id digest: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", oops.Code("AUTH_EMPTY_PASSWORD").Wrap(ErrEmptyPassword)
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks password against an argon2id digest in constant time.
func (h *Argon2idHasher) Verify(password, digest string) (bool, error) {
	d, err := parseArgon2Digest(digest)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), d.salt, d.params.Time, d.params.Memory, d.params.Threads, d.params.KeyLen)
	return subtle.ConstantTimeCompare(computed, d.key) == 1, nil
}

// NeedsUpgrade reports true for non-argon2id digests and for argon2id
// digests whose cost parameters differ from the hasher's.
func (h *Argon2idHasher) NeedsUpgrade(digest string) bool {
	d, err := parseArgon2Digest(digest)
	if err != nil {
		return true
	}
	return d.version != argon2.Version ||
		d.params.Time != h.params.Time ||
		d.params.Memory != h.params.Memory ||
		d.params.Threads != h.params.Threads ||
		d.params.KeyLen != h.params.KeyLen
}

type argon2Digest struct {
	version int
	params  Argon2Params
	salt    []byte
	key     []byte
}

func parseArgon2Digest(encoded string) (*argon2Digest, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	d := &argon2Digest{}
	if _, err := fmt.Sscanf(parts[2], "v=%d", &d.version); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &d.params.Memory, &d.params.Time, &threads); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}
	d.params.Threads = uint8(threads)

	var err error
	if d.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if d.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if len(d.key) == 0 || len(d.key) > 1<<10 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", len(d.key))
	}
	d.params.SaltLen = uint32(len(d.salt))
	d.params.KeyLen = uint32(len(d.key))
	return d, nil
}
