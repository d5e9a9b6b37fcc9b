// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

// Package memory provides an in-process auth.CredentialStore.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authio/authio/internal/auth"
)

// Store keeps identities in maps guarded by a single mutex. Every Save
// checks the version under the write lock, which makes it the
// compare-and-update primitive the services rely on.
type Store struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.Identity
	byEmail map[string]ulid.ULID
	byReset map[string]ulid.ULID
	now     func() time.Time
}

var _ auth.CredentialStore = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		byID:    make(map[ulid.ULID]*auth.Identity),
		byEmail: make(map[string]ulid.ULID),
		byReset: make(map[string]ulid.ULID),
		now:     time.Now,
	}
}

func canceled(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("MEMORY_STORE_CANCELED").
			With("operation", op).
			Wrap(fmt.Errorf("%w: %w", auth.ErrStoreUnavailable, err))
	}
	return nil
}

func notFound(by string, key any) error {
	return oops.Code("IDENTITY_NOT_FOUND").With(by, key).Wrap(auth.ErrNotFound)
}

// FindByID returns a copy of the identity.
func (s *Store) FindByID(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	if err := canceled(ctx, "find by id"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.byID[id]
	if !ok {
		return nil, notFound("identity_id", id.String())
	}
	return identity.Clone(), nil
}

// FindByEmail returns a copy of the identity with the given email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	if err := canceled(ctx, "find by email"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, notFound("email", email)
	}
	return s.byID[id].Clone(), nil
}

// FindByResetToken returns a copy of the identity holding a live reset
// credential with the given digest.
func (s *Store) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*auth.Identity, error) {
	if err := canceled(ctx, "find by reset token"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byReset[tokenHash]
	if !ok {
		return nil, notFound("token", "reset")
	}
	identity := s.byID[id]
	if identity.Reset == nil || identity.Reset.TokenHash != tokenHash || !identity.Reset.LiveAt(now) {
		return nil, notFound("token", "reset")
	}
	return identity.Clone(), nil
}

// Create inserts identity with Version 1.
func (s *Store) Create(ctx context.Context, identity *auth.Identity) error {
	if err := canceled(ctx, "create"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[identity.Email]; taken {
		return oops.Code("IDENTITY_EMAIL_TAKEN").With("email", identity.Email).Wrap(auth.ErrEmailTaken)
	}
	if _, exists := s.byID[identity.ID]; exists {
		return oops.Code("IDENTITY_EXISTS").With("identity_id", identity.ID.String()).Errorf("identity already exists")
	}

	identity.Version = 1
	s.put(identity.Clone())
	return nil
}

// Save writes identity if its Version matches the stored one.
func (s *Store) Save(ctx context.Context, identity *auth.Identity) error {
	if err := canceled(ctx, "save"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[identity.ID]
	if !ok || current.Version != identity.Version {
		return oops.Code("IDENTITY_STALE").
			With("identity_id", identity.ID.String()).
			With("version", identity.Version).
			Wrap(auth.ErrConflict)
	}
	if identity.Email != current.Email {
		if _, taken := s.byEmail[identity.Email]; taken {
			return oops.Code("IDENTITY_EMAIL_TAKEN").With("email", identity.Email).Wrap(auth.ErrEmailTaken)
		}
	}

	s.drop(current)
	identity.Version++
	identity.UpdatedAt = s.now().UTC()
	s.put(identity.Clone())
	return nil
}

// List returns copies of every identity ordered by id.
func (s *Store) List(ctx context.Context) ([]*auth.Identity, error) {
	if err := canceled(ctx, "list"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	identities := make([]*auth.Identity, 0, len(s.byID))
	for _, identity := range s.byID {
		identities = append(identities, identity.Clone())
	}
	slices.SortFunc(identities, func(a, b *auth.Identity) int { return a.ID.Compare(b.ID) })
	return identities, nil
}

// PurgeExpired clears credentials that expired at or before now.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := canceled(ctx, "purge expired"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, identity := range s.byID {
		changed := false
		if identity.Reset != nil && !identity.Reset.LiveAt(now) {
			delete(s.byReset, identity.Reset.TokenHash)
			identity.Reset = nil
			changed = true
		}
		if identity.Verification != nil && !identity.Verification.LiveAt(now) {
			identity.Verification = nil
			changed = true
		}
		if changed {
			identity.Version++
			identity.UpdatedAt = s.now().UTC()
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored identities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Store) put(identity *auth.Identity) {
	s.byID[identity.ID] = identity
	s.byEmail[identity.Email] = identity.ID
	if identity.Reset != nil {
		s.byReset[identity.Reset.TokenHash] = identity.ID
	}
}

func (s *Store) drop(identity *auth.Identity) {
	delete(s.byEmail, identity.Email)
	if identity.Reset != nil {
		delete(s.byReset, identity.Reset.TokenHash)
	}
}
