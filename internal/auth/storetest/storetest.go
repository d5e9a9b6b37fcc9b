// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

// Package storetest holds behavioural tests shared by every
// auth.CredentialStore implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authio/authio/internal/auth"
)

// Factory returns an empty store for one test.
type Factory func(t *testing.T) auth.CredentialStore

// base is a fixed instant so expiry comparisons are exact across stores.
var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NewIdentity builds a valid identity with a unique email.
func NewIdentity(t *testing.T, email string) *auth.Identity {
	t.Helper()
	identity, err := auth.NewIdentity("Test User", email, "$argon2id$v=19$m=64,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA", base)
	require.NoError(t, err)
	return identity
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%s@example.com", prefix, ulid.Make().String())
}

func assertSameInstant(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s, got %s", want, got)
}

// Run exercises the CredentialStore contract against stores from newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		store := newStore(t)
		identity := NewIdentity(t, uniqueEmail("create"))
		identity.IsAdmin = true

		require.NoError(t, store.Create(ctx, identity))
		assert.Equal(t, int64(1), identity.Version)

		byID, err := store.FindByID(ctx, identity.ID)
		require.NoError(t, err)
		assert.Equal(t, identity.ID, byID.ID)
		assert.Equal(t, identity.Email, byID.Email)
		assert.Equal(t, identity.Name, byID.Name)
		assert.Equal(t, identity.PasswordHash, byID.PasswordHash)
		assert.True(t, byID.IsAdmin)
		assert.False(t, byID.IsVerified)
		assert.Nil(t, byID.Reset)
		assert.Nil(t, byID.Verification)
		assert.Equal(t, int64(1), byID.Version)

		byEmail, err := store.FindByEmail(ctx, identity.Email)
		require.NoError(t, err)
		assert.Equal(t, identity.ID, byEmail.ID)
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		store := newStore(t)
		email := uniqueEmail("dup")
		require.NoError(t, store.Create(ctx, NewIdentity(t, email)))

		err := store.Create(ctx, NewIdentity(t, email))
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrEmailTaken), "got %v", err)
	})

	t.Run("missing identity is not found", func(t *testing.T) {
		store := newStore(t)

		_, err := store.FindByID(ctx, ulid.Make())
		assert.True(t, errors.Is(err, auth.ErrNotFound), "got %v", err)

		_, err = store.FindByEmail(ctx, uniqueEmail("nobody"))
		assert.True(t, errors.Is(err, auth.ErrNotFound), "got %v", err)

		_, err = store.FindByResetToken(ctx, auth.HashSecret("nothing"), base)
		assert.True(t, errors.Is(err, auth.ErrNotFound), "got %v", err)
	})

	t.Run("save persists credentials and bumps version", func(t *testing.T) {
		store := newStore(t)
		identity := NewIdentity(t, uniqueEmail("save"))
		require.NoError(t, store.Create(ctx, identity))

		expires := base.Add(time.Hour)
		identity.Reset = &auth.ResetCredential{TokenHash: auth.HashSecret("tok"), ExpiresAt: expires}
		identity.Verification = &auth.VerificationCredential{CodeHash: auth.HashSecret("123456"), ExpiresAt: base.Add(10 * time.Minute)}
		require.NoError(t, store.Save(ctx, identity))
		assert.Equal(t, int64(2), identity.Version)

		got, err := store.FindByID(ctx, identity.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
		require.NotNil(t, got.Reset)
		assert.Equal(t, auth.HashSecret("tok"), got.Reset.TokenHash)
		assertSameInstant(t, expires, got.Reset.ExpiresAt)
		require.NotNil(t, got.Verification)
		assert.Equal(t, auth.HashSecret("123456"), got.Verification.CodeHash)
		assertSameInstant(t, base.Add(10*time.Minute), got.Verification.ExpiresAt)
	})

	t.Run("reset token lookup honours expiry", func(t *testing.T) {
		store := newStore(t)
		identity := NewIdentity(t, uniqueEmail("lookup"))
		require.NoError(t, store.Create(ctx, identity))

		hash := auth.HashSecret("lookup-token")
		expires := base.Add(time.Hour)
		identity.Reset = &auth.ResetCredential{TokenHash: hash, ExpiresAt: expires}
		require.NoError(t, store.Save(ctx, identity))

		got, err := store.FindByResetToken(ctx, hash, expires.Add(-time.Second))
		require.NoError(t, err)
		assert.Equal(t, identity.ID, got.ID)

		_, err = store.FindByResetToken(ctx, hash, expires)
		assert.True(t, errors.Is(err, auth.ErrNotFound), "expired at the boundary, got %v", err)

		_, err = store.FindByResetToken(ctx, auth.HashSecret("other"), base)
		assert.True(t, errors.Is(err, auth.ErrNotFound), "got %v", err)
	})

	t.Run("overwritten reset token no longer resolves", func(t *testing.T) {
		store := newStore(t)
		identity := NewIdentity(t, uniqueEmail("supersede"))
		require.NoError(t, store.Create(ctx, identity))

		first, second := auth.HashSecret("first"), auth.HashSecret("second")
		identity.Reset = &auth.ResetCredential{TokenHash: first, ExpiresAt: base.Add(time.Hour)}
		require.NoError(t, store.Save(ctx, identity))
		identity.Reset = &auth.ResetCredential{TokenHash: second, ExpiresAt: base.Add(time.Hour)}
		require.NoError(t, store.Save(ctx, identity))

		_, err := store.FindByResetToken(ctx, first, base)
		assert.True(t, errors.Is(err, auth.ErrNotFound), "got %v", err)
		_, err = store.FindByResetToken(ctx, second, base)
		assert.NoError(t, err)

		identity.Reset = nil
		require.NoError(t, store.Save(ctx, identity))
		_, err = store.FindByResetToken(ctx, second, base)
		assert.True(t, errors.Is(err, auth.ErrNotFound), "got %v", err)
	})

	t.Run("stale save is rejected", func(t *testing.T) {
		store := newStore(t)
		identity := NewIdentity(t, uniqueEmail("stale"))
		require.NoError(t, store.Create(ctx, identity))

		first, err := store.FindByID(ctx, identity.ID)
		require.NoError(t, err)
		second, err := store.FindByID(ctx, identity.ID)
		require.NoError(t, err)

		first.IsVerified = true
		require.NoError(t, store.Save(ctx, first))

		second.PasswordHash = "replaced"
		err = store.Save(ctx, second)
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrConflict), "got %v", err)
		assert.Equal(t, int64(1), second.Version, "failed save leaves version untouched")

		got, err := store.FindByID(ctx, identity.ID)
		require.NoError(t, err)
		assert.True(t, got.IsVerified)
		assert.Equal(t, identity.PasswordHash, got.PasswordHash)
	})

	t.Run("concurrent saves from one version admit one writer", func(t *testing.T) {
		store := newStore(t)
		identity := NewIdentity(t, uniqueEmail("race"))
		require.NoError(t, store.Create(ctx, identity))

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			conflicts int
		)
		for i := range writers {
			snapshot, err := store.FindByID(ctx, identity.ID)
			require.NoError(t, err)
			wg.Add(1)
			go func() {
				defer wg.Done()
				snapshot.Name = fmt.Sprintf("writer-%d", i)
				err := store.Save(ctx, snapshot)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, auth.ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, writers-1, conflicts)
	})

	t.Run("email change moves the email index", func(t *testing.T) {
		store := newStore(t)
		identity := NewIdentity(t, uniqueEmail("before"))
		other := NewIdentity(t, uniqueEmail("other"))
		require.NoError(t, store.Create(ctx, identity))
		require.NoError(t, store.Create(ctx, other))
		oldEmail := identity.Email

		identity.Email = uniqueEmail("after")
		require.NoError(t, store.Save(ctx, identity))

		moved, err := store.FindByEmail(ctx, identity.Email)
		require.NoError(t, err)
		assert.Equal(t, identity.ID, moved.ID)
		_, err = store.FindByEmail(ctx, oldEmail)
		assert.True(t, errors.Is(err, auth.ErrNotFound), "old email still resolves: %v", err)

		identity.Email = other.Email
		err = store.Save(ctx, identity)
		assert.True(t, errors.Is(err, auth.ErrEmailTaken), "got %v", err)
		still, err := store.FindByEmail(ctx, other.Email)
		require.NoError(t, err)
		assert.Equal(t, other.ID, still.ID)
	})

	t.Run("list returns identities in creation order", func(t *testing.T) {
		store := newStore(t)
		first := NewIdentity(t, uniqueEmail("first"))
		second := NewIdentity(t, uniqueEmail("second"))
		require.NoError(t, store.Create(ctx, first))
		require.NoError(t, store.Create(ctx, second))

		identities, err := store.List(ctx)
		require.NoError(t, err)

		positions := map[ulid.ULID]int{}
		for i, identity := range identities {
			positions[identity.ID] = i
		}
		require.Contains(t, positions, first.ID)
		require.Contains(t, positions, second.ID)
		assert.Less(t, positions[first.ID], positions[second.ID])
		assert.Equal(t, second.Email, identities[positions[second.ID]].Email)
	})

	t.Run("purge clears only expired credentials", func(t *testing.T) {
		store := newStore(t)
		expired := NewIdentity(t, uniqueEmail("expired"))
		live := NewIdentity(t, uniqueEmail("live"))
		require.NoError(t, store.Create(ctx, expired))
		require.NoError(t, store.Create(ctx, live))

		expired.Reset = &auth.ResetCredential{TokenHash: auth.HashSecret("old"), ExpiresAt: base.Add(-time.Minute)}
		expired.Verification = &auth.VerificationCredential{CodeHash: auth.HashSecret("111111"), ExpiresAt: base.Add(-time.Second)}
		require.NoError(t, store.Save(ctx, expired))
		live.Reset = &auth.ResetCredential{TokenHash: auth.HashSecret("new"), ExpiresAt: base.Add(time.Hour)}
		require.NoError(t, store.Save(ctx, live))

		n, err := store.PurgeExpired(ctx, base)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		got, err := store.FindByID(ctx, expired.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Reset)
		assert.Nil(t, got.Verification)
		assert.Greater(t, got.Version, expired.Version, "purge bumps version")

		got, err = store.FindByID(ctx, live.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Reset)
		assert.Equal(t, live.Version, got.Version)

		err = store.Save(ctx, expired)
		assert.True(t, errors.Is(err, auth.ErrConflict), "writer that read before purge must reload, got %v", err)
	})
}
