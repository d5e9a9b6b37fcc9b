// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authio/authio/internal/auth"
	"github.com/authio/authio/pkg/errutil"
)

var columns = []string{
	"id", "name", "email", "password_hash", "is_admin", "is_verified",
	"reset_token_hash", "reset_expires_at", "otp_hash", "otp_expires_at",
	"version", "created_at", "updated_at",
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func identityRow(id ulid.ULID, resetHash *string, resetExpires *time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(columns).AddRow(
		id.String(), "Ada", "ada@example.com", "digest", false, true,
		resetHash, resetExpires, (*string)(nil), (*time.Time)(nil),
		int64(3), now, now,
	)
}

func TestIdentityRepository_FindByID(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()

	t.Run("found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`(?s)SELECT .+ FROM identities WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnRows(identityRow(id, nil, nil))

		got, err := NewIdentityRepository(mock).FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, "ada@example.com", got.Email)
		assert.True(t, got.IsVerified)
		assert.Equal(t, int64(3), got.Version)
		assert.Nil(t, got.Reset)
		assert.Nil(t, got.Verification)
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`(?s)SELECT .+ FROM identities WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(columns))

		_, err := NewIdentityRepository(mock).FindByID(ctx, id)
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrNotFound))
		errutil.AssertErrorCode(t, err, "IDENTITY_NOT_FOUND")
	})

	t.Run("connection failure", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`(?s)SELECT .+ FROM identities WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnError(errors.New("connection refused"))

		_, err := NewIdentityRepository(mock).FindByID(ctx, id)
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrStoreUnavailable))
		assert.False(t, errors.Is(err, auth.ErrNotFound))
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestIdentityRepository_FindByResetToken(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	hash := auth.HashSecret("token")
	expires := now.Add(time.Hour)

	t.Run("live token", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`WHERE reset_token_hash = \$1 AND reset_expires_at > \$2`).
			WithArgs(hash, now).
			WillReturnRows(identityRow(id, &hash, &expires))

		got, err := NewIdentityRepository(mock).FindByResetToken(ctx, hash, now)
		require.NoError(t, err)
		require.NotNil(t, got.Reset)
		assert.Equal(t, hash, got.Reset.TokenHash)
		assert.True(t, got.Reset.ExpiresAt.Equal(expires))
	})

	t.Run("expired or unknown token", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`WHERE reset_token_hash = \$1 AND reset_expires_at > \$2`).
			WithArgs(hash, now).
			WillReturnRows(pgxmock.NewRows(columns))

		_, err := NewIdentityRepository(mock).FindByResetToken(ctx, hash, now)
		assert.True(t, errors.Is(err, auth.ErrNotFound))
	})
}

func TestIdentityRepository_Create(t *testing.T) {
	ctx := context.Background()

	newIdentity := func(t *testing.T) *auth.Identity {
		identity, err := auth.NewIdentity("Ada", "ada@example.com", "digest", now)
		require.NoError(t, err)
		return identity
	}

	t.Run("inserts at version one", func(t *testing.T) {
		mock := newMock(t)
		identity := newIdentity(t)
		mock.ExpectExec(`INSERT INTO identities`).
			WithArgs(identity.ID.String(), "Ada", "ada@example.com", "digest", false, false,
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				now, now).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, NewIdentityRepository(mock).Create(ctx, identity))
		assert.Equal(t, int64(1), identity.Version)
	})

	t.Run("duplicate email", func(t *testing.T) {
		mock := newMock(t)
		identity := newIdentity(t)
		mock.ExpectExec(`INSERT INTO identities`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "idx_identities_email"})

		err := NewIdentityRepository(mock).Create(ctx, identity)
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrEmailTaken))
		errutil.AssertErrorCode(t, err, "IDENTITY_EMAIL_TAKEN")
	})
}

func TestIdentityRepository_Save(t *testing.T) {
	ctx := context.Background()
	hash := auth.HashSecret("token")
	expires := now.Add(time.Hour)

	identity := func() *auth.Identity {
		return &auth.Identity{
			ID:           ulid.Make(),
			Name:         "Ada",
			Email:        "ada@example.com",
			PasswordHash: "digest",
			Reset:        &auth.ResetCredential{TokenHash: hash, ExpiresAt: expires},
			Version:      4,
		}
	}

	t.Run("bumps version", func(t *testing.T) {
		mock := newMock(t)
		i := identity()
		later := now.Add(time.Minute)
		mock.ExpectQuery(`(?s)UPDATE identities SET .+ WHERE id = \$1 AND version = \$2`).
			WithArgs(i.ID.String(), int64(4), "Ada", "ada@example.com", "digest", false, false,
				&hash, &expires, (*string)(nil), (*time.Time)(nil)).
			WillReturnRows(pgxmock.NewRows([]string{"version", "updated_at"}).AddRow(int64(5), later))

		require.NoError(t, NewIdentityRepository(mock).Save(ctx, i))
		assert.Equal(t, int64(5), i.Version)
		assert.Equal(t, later, i.UpdatedAt)
	})

	t.Run("stale version", func(t *testing.T) {
		mock := newMock(t)
		i := identity()
		mock.ExpectQuery(`UPDATE identities SET`).
			WithArgs(pgxmock.AnyArg(), int64(4), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"version", "updated_at"}))

		err := NewIdentityRepository(mock).Save(ctx, i)
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrConflict))
		errutil.AssertErrorCode(t, err, "IDENTITY_STALE")
		assert.Equal(t, int64(4), i.Version, "version must not change on conflict")
	})

	t.Run("database failure", func(t *testing.T) {
		mock := newMock(t)
		i := identity()
		mock.ExpectQuery(`UPDATE identities SET`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("deadlock detected"))

		err := NewIdentityRepository(mock).Save(ctx, i)
		assert.True(t, errors.Is(err, auth.ErrStoreUnavailable))
		assert.False(t, errors.Is(err, auth.ErrConflict))
	})
}

func TestIdentityRepository_List(t *testing.T) {
	ctx := context.Background()

	t.Run("returns every row in id order", func(t *testing.T) {
		mock := newMock(t)
		first, second := ulid.Make(), ulid.Make()
		rows := pgxmock.NewRows(columns).
			AddRow(first.String(), "Ada", "ada@example.com", "digest", true, true,
				(*string)(nil), (*time.Time)(nil), (*string)(nil), (*time.Time)(nil), int64(1), now, now).
			AddRow(second.String(), "Bob", "bob@example.com", "digest", false, false,
				(*string)(nil), (*time.Time)(nil), (*string)(nil), (*time.Time)(nil), int64(2), now, now)
		mock.ExpectQuery(`(?s)SELECT .+ FROM identities ORDER BY id`).WillReturnRows(rows)

		got, err := NewIdentityRepository(mock).List(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, first, got[0].ID)
		assert.True(t, got[0].IsAdmin)
		assert.Equal(t, "bob@example.com", got[1].Email)
	})

	t.Run("query failure", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM identities ORDER BY id`).WillReturnError(errors.New("connection refused"))

		_, err := NewIdentityRepository(mock).List(ctx)
		assert.True(t, errors.Is(err, auth.ErrStoreUnavailable))
		errutil.AssertErrorCode(t, err, "IDENTITY_LIST_FAILED")
	})
}

func TestIdentityRepository_PurgeExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("reports affected rows", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`(?s)UPDATE identities SET .+ WHERE reset_expires_at <= \$1 OR otp_expires_at <= \$1`).
			WithArgs(now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 7))

		n, err := NewIdentityRepository(mock).PurgeExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
	})

	t.Run("failure", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE identities SET`).
			WithArgs(now).
			WillReturnError(errors.New("read-only transaction"))

		_, err := NewIdentityRepository(mock).PurgeExpired(ctx, now)
		assert.True(t, errors.Is(err, auth.ErrStoreUnavailable))
		errutil.AssertErrorCode(t, err, "IDENTITY_PURGE_FAILED")
	})
}
