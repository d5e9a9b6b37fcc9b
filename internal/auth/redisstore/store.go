// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

// Package redisstore implements auth.CredentialStore on Redis.
//
// Each identity is one JSON value under {prefix}:identity:{id}. Email and
// reset-token digests are secondary keys pointing at the id. Save watches
// the identity key and writes inside MULTI/EXEC, so a concurrent writer
// aborts the transaction and the caller sees auth.ErrConflict.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/authio/authio/internal/auth"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "authio"

// maxTxRetries bounds retries of create and purge transactions aborted by
// a concurrent write.
const maxTxRetries = 4

// Store is a Redis-backed credential store.
type Store struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ auth.CredentialStore = (*Store)(nil)

// New returns a Store writing under prefix, or DefaultPrefix if empty.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, now: time.Now}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return failure("REDIS_PING_FAILED", "ping", err)
	}
	return nil
}

func (s *Store) identityKey(id string) string     { return s.prefix + ":identity:" + id }
func (s *Store) emailKey(email string) string     { return s.prefix + ":email:" + email }
func (s *Store) resetKey(tokenHash string) string { return s.prefix + ":reset:" + tokenHash }

// record is the stored JSON shape of an identity.
type record struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"passwordHash"`
	IsAdmin        bool       `json:"isAdmin"`
	IsVerified     bool       `json:"isVerified"`
	ResetTokenHash string     `json:"resetTokenHash,omitempty"`
	ResetExpiresAt *time.Time `json:"resetExpiresAt,omitempty"`
	OtpHash        string     `json:"otpHash,omitempty"`
	OtpExpiresAt   *time.Time `json:"otpExpiresAt,omitempty"`
	Version        int64      `json:"version"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func toRecord(identity *auth.Identity) record {
	r := record{
		ID:           identity.ID.String(),
		Name:         identity.Name,
		Email:        identity.Email,
		PasswordHash: identity.PasswordHash,
		IsAdmin:      identity.IsAdmin,
		IsVerified:   identity.IsVerified,
		Version:      identity.Version,
		CreatedAt:    identity.CreatedAt.UTC(),
		UpdatedAt:    identity.UpdatedAt.UTC(),
	}
	if identity.Reset != nil {
		expires := identity.Reset.ExpiresAt.UTC()
		r.ResetTokenHash = identity.Reset.TokenHash
		r.ResetExpiresAt = &expires
	}
	if identity.Verification != nil {
		expires := identity.Verification.ExpiresAt.UTC()
		r.OtpHash = identity.Verification.CodeHash
		r.OtpExpiresAt = &expires
	}
	return r
}

func (r record) identity() (*auth.Identity, error) {
	id, err := ulid.Parse(r.ID)
	if err != nil {
		return nil, oops.Code("IDENTITY_INVALID_ID").With("id", r.ID).Wrap(err)
	}
	identity := &auth.Identity{
		ID:           id,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		IsAdmin:      r.IsAdmin,
		IsVerified:   r.IsVerified,
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.ResetTokenHash != "" && r.ResetExpiresAt != nil {
		identity.Reset = &auth.ResetCredential{TokenHash: r.ResetTokenHash, ExpiresAt: *r.ResetExpiresAt}
	}
	if r.OtpHash != "" && r.OtpExpiresAt != nil {
		identity.Verification = &auth.VerificationCredential{CodeHash: r.OtpHash, ExpiresAt: *r.OtpExpiresAt}
	}
	return identity, nil
}

// getter is satisfied by both the client and a watched *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// load returns redis.Nil unwrapped when the key is absent.
func load(ctx context.Context, c getter, key string) (*record, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err //nolint:wrapcheck // callers map redis.Nil
	}
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, oops.Code("IDENTITY_DECODE_FAILED").With("key", key).Wrap(err)
	}
	return &r, nil
}

func (s *Store) find(ctx context.Context, id string, by string, key any) (*auth.Identity, error) {
	r, err := load(ctx, s.client, s.identityKey(id))
	if errors.Is(err, redis.Nil) {
		return nil, notFound(by, key)
	}
	if err != nil {
		return nil, failure("IDENTITY_FIND_FAILED", "load identity", err)
	}
	identity, err := r.identity()
	if err != nil {
		return nil, failure("IDENTITY_FIND_FAILED", "decode identity", err)
	}
	return identity, nil
}

// lookup resolves a secondary index key to an identity id.
func (s *Store) lookup(ctx context.Context, indexKey, by string, key any) (string, error) {
	id, err := s.client.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", notFound(by, key)
	}
	if err != nil {
		return "", failure("IDENTITY_FIND_FAILED", "resolve "+by, err)
	}
	return id, nil
}

// FindByID loads an identity.
func (s *Store) FindByID(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	return s.find(ctx, id.String(), "identity_id", id.String())
}

// FindByEmail resolves the email index, then loads the identity.
func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	id, err := s.lookup(ctx, s.emailKey(email), "email", email)
	if err != nil {
		return nil, err
	}
	identity, err := s.find(ctx, id, "email", email)
	if err != nil {
		return nil, err
	}
	if identity.Email != email {
		return nil, notFound("email", email)
	}
	return identity, nil
}

// FindByResetToken resolves the reset index and checks the digest and
// expiry on the loaded identity, so stale index entries never match.
func (s *Store) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*auth.Identity, error) {
	id, err := s.lookup(ctx, s.resetKey(tokenHash), "by", "reset token")
	if err != nil {
		return nil, err
	}
	identity, err := s.find(ctx, id, "by", "reset token")
	if err != nil {
		return nil, err
	}
	if identity.Reset == nil || identity.Reset.TokenHash != tokenHash || !identity.Reset.LiveAt(now) {
		return nil, notFound("by", "reset token")
	}
	return identity, nil
}

// Create writes identity at version 1 and claims its email.
func (s *Store) Create(ctx context.Context, identity *auth.Identity) error {
	key := s.identityKey(identity.ID.String())
	emailKey := s.emailKey(identity.Email)

	r := toRecord(identity)
	r.Version = 1
	data, err := json.Marshal(r)
	if err != nil {
		return oops.Code("IDENTITY_ENCODE_FAILED").Wrap(err)
	}

	for range maxTxRetries {
		err = s.client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, emailKey, key).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				taken, err := tx.Exists(ctx, emailKey).Result()
				if err != nil {
					return err
				}
				if taken > 0 {
					return oops.Code("IDENTITY_EMAIL_TAKEN").With("email", identity.Email).Wrap(auth.ErrEmailTaken)
				}
				return oops.Code("IDENTITY_EXISTS").With("identity_id", identity.ID.String()).Errorf("identity already exists")
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				pipe.Set(ctx, emailKey, identity.ID.String(), 0)
				if identity.Reset != nil {
					pipe.Set(ctx, s.resetKey(identity.Reset.TokenHash), identity.ID.String(), 0)
				}
				return nil
			})
			return err
		}, emailKey, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		break
	}
	switch {
	case err == nil:
		identity.Version = 1
		return nil
	case errors.Is(err, auth.ErrEmailTaken), isCode(err, "IDENTITY_EXISTS"):
		return err
	default:
		return failure("IDENTITY_CREATE_FAILED", "create identity", err)
	}
}

// Save writes identity if the stored version still equals identity.Version.
func (s *Store) Save(ctx context.Context, identity *auth.Identity) error {
	key := s.identityKey(identity.ID.String())
	watched := []string{key, s.emailKey(identity.Email)}

	var next record
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := load(ctx, tx, key)
		if errors.Is(err, redis.Nil) {
			return stale(identity)
		}
		if err != nil {
			return err
		}
		if current.Version != identity.Version {
			return stale(identity)
		}
		if current.Email != identity.Email {
			owner, err := tx.Get(ctx, s.emailKey(identity.Email)).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil && owner != current.ID {
				return oops.Code("IDENTITY_EMAIL_TAKEN").With("email", identity.Email).Wrap(auth.ErrEmailTaken)
			}
		}

		next = toRecord(identity)
		next.Version = current.Version + 1
		next.UpdatedAt = s.now().UTC()
		data, err := json.Marshal(next)
		if err != nil {
			return oops.Code("IDENTITY_ENCODE_FAILED").Wrap(err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if current.Email != next.Email {
				pipe.Del(ctx, s.emailKey(current.Email))
				pipe.Set(ctx, s.emailKey(next.Email), next.ID, 0)
			}
			if current.ResetTokenHash != "" && current.ResetTokenHash != next.ResetTokenHash {
				pipe.Del(ctx, s.resetKey(current.ResetTokenHash))
			}
			if next.ResetTokenHash != "" {
				pipe.Set(ctx, s.resetKey(next.ResetTokenHash), next.ID, 0)
			}
			return nil
		})
		return err
	}, watched...)

	switch {
	case err == nil:
		identity.Version = next.Version
		identity.UpdatedAt = next.UpdatedAt
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return stale(identity)
	case errors.Is(err, auth.ErrConflict), errors.Is(err, auth.ErrEmailTaken):
		return err
	default:
		return failure("IDENTITY_SAVE_FAILED", "save identity", err)
	}
}

// List scans every identity key and returns the identities ordered by id.
func (s *Store) List(ctx context.Context) ([]*auth.Identity, error) {
	var identities []*auth.Identity
	iter := s.client.Scan(ctx, 0, s.identityKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		r, err := load(ctx, s.client, iter.Val())
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, failure("IDENTITY_LIST_FAILED", "load identity", err)
		}
		identity, err := r.identity()
		if err != nil {
			return nil, failure("IDENTITY_LIST_FAILED", "decode identity", err)
		}
		identities = append(identities, identity)
	}
	if err := iter.Err(); err != nil {
		return nil, failure("IDENTITY_LIST_FAILED", "scan identities", err)
	}
	slices.SortFunc(identities, func(a, b *auth.Identity) int { return a.ID.Compare(b.ID) })
	return identities, nil
}

// PurgeExpired scans every identity and clears credentials that expired at
// or before now. Identities changed concurrently are retried.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var purged int64
	iter := s.client.Scan(ctx, 0, s.identityKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		changed, err := s.purgeOne(ctx, iter.Val(), now)
		if err != nil {
			return purged, failure("IDENTITY_PURGE_FAILED", "purge identity", err)
		}
		if changed {
			purged++
		}
	}
	if err := iter.Err(); err != nil {
		return purged, failure("IDENTITY_PURGE_FAILED", "scan identities", err)
	}
	return purged, nil
}

func (s *Store) purgeOne(ctx context.Context, key string, now time.Time) (changed bool, err error) {
	for range maxTxRetries {
		changed = false
		err = s.client.Watch(ctx, func(tx *redis.Tx) error {
			r, err := load(ctx, tx, key)
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}

			var staleReset string
			if r.ResetExpiresAt != nil && !now.Before(*r.ResetExpiresAt) {
				staleReset = r.ResetTokenHash
				r.ResetTokenHash, r.ResetExpiresAt = "", nil
				changed = true
			}
			if r.OtpExpiresAt != nil && !now.Before(*r.OtpExpiresAt) {
				r.OtpHash, r.OtpExpiresAt = "", nil
				changed = true
			}
			if !changed {
				return nil
			}

			r.Version++
			r.UpdatedAt = s.now().UTC()
			data, err := json.Marshal(r)
			if err != nil {
				return oops.Code("IDENTITY_ENCODE_FAILED").Wrap(err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				if staleReset != "" {
					pipe.Del(ctx, s.resetKey(staleReset))
				}
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return changed, err
		}
	}
	return false, err
}

func notFound(by string, key any) error {
	return oops.Code("IDENTITY_NOT_FOUND").With(by, key).Wrap(auth.ErrNotFound)
}

func stale(identity *auth.Identity) error {
	return oops.Code("IDENTITY_STALE").
		With("identity_id", identity.ID.String()).
		With("version", identity.Version).
		Wrap(auth.ErrConflict)
}

func isCode(err error, code string) bool {
	oopsErr, ok := oops.AsOops(err)
	return ok && oopsErr.Code() == code
}

func failure(code, operation string, err error) error {
	return oops.Code(code).
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", auth.ErrStoreUnavailable, err))
}
