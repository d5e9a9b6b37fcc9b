// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

// Package postgres implements auth.CredentialStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authio/authio/internal/auth"
	"github.com/authio/authio/internal/store"
)

const identityColumns = `id, name, email, password_hash, is_admin, is_verified,
	reset_token_hash, reset_expires_at, otp_hash, otp_expires_at,
	version, created_at, updated_at`

// IdentityRepository stores identities in the identities table.
type IdentityRepository struct {
	pool store.Pool
}

// NewIdentityRepository creates an IdentityRepository.
func NewIdentityRepository(pool store.Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// FindByID loads an identity by primary key.
func (r *IdentityRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id.String())
	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").With("identity_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, failure("IDENTITY_FIND_FAILED", "find identity by id", err)
	}
	return identity, nil
}

// FindByEmail loads an identity by normalized email.
func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE email = $1`, email)
	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, failure("IDENTITY_FIND_FAILED", "find identity by email", err)
	}
	return identity, nil
}

// FindByResetToken loads the identity holding a reset digest that is still
// live at now.
func (r *IdentityRepository) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*auth.Identity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE reset_token_hash = $1 AND reset_expires_at > $2
	`, tokenHash, now)
	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").With("by", "reset token").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, failure("IDENTITY_FIND_FAILED", "find identity by reset token", err)
	}
	return identity, nil
}

// Create inserts identity at version 1.
func (r *IdentityRepository) Create(ctx context.Context, identity *auth.Identity) error {
	resetHash, resetExpires := resetColumns(identity)
	otpHash, otpExpires := otpColumns(identity)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO identities (
			id, name, email, password_hash, is_admin, is_verified,
			reset_token_hash, reset_expires_at, otp_hash, otp_expires_at,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $12)
	`,
		identity.ID.String(),
		identity.Name,
		identity.Email,
		identity.PasswordHash,
		identity.IsAdmin,
		identity.IsVerified,
		resetHash,
		resetExpires,
		otpHash,
		otpExpires,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if isUniqueViolation(err, "idx_identities_email") {
		return oops.Code("IDENTITY_EMAIL_TAKEN").With("email", identity.Email).Wrap(auth.ErrEmailTaken)
	}
	if err != nil {
		return failure("IDENTITY_CREATE_FAILED", "insert identity", err)
	}
	identity.Version = 1
	return nil
}

// Save updates every mutable column in one conditional statement keyed on
// id and version. Zero rows means another writer won.
func (r *IdentityRepository) Save(ctx context.Context, identity *auth.Identity) error {
	resetHash, resetExpires := resetColumns(identity)
	otpHash, otpExpires := otpColumns(identity)

	var (
		version   int64
		updatedAt time.Time
	)
	err := r.pool.QueryRow(ctx, `
		UPDATE identities SET
			name = $3,
			email = $4,
			password_hash = $5,
			is_admin = $6,
			is_verified = $7,
			reset_token_hash = $8,
			reset_expires_at = $9,
			otp_hash = $10,
			otp_expires_at = $11,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`,
		identity.ID.String(),
		identity.Version,
		identity.Name,
		identity.Email,
		identity.PasswordHash,
		identity.IsAdmin,
		identity.IsVerified,
		resetHash,
		resetExpires,
		otpHash,
		otpExpires,
	).Scan(&version, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("IDENTITY_STALE").
			With("identity_id", identity.ID.String()).
			With("version", identity.Version).
			Wrap(auth.ErrConflict)
	}
	if isUniqueViolation(err, "idx_identities_email") {
		return oops.Code("IDENTITY_EMAIL_TAKEN").With("email", identity.Email).Wrap(auth.ErrEmailTaken)
	}
	if err != nil {
		return failure("IDENTITY_SAVE_FAILED", "update identity", err)
	}

	identity.Version = version
	identity.UpdatedAt = updatedAt.UTC()
	return nil
}

// List returns every identity ordered by id.
func (r *IdentityRepository) List(ctx context.Context) ([]*auth.Identity, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY id`)
	if err != nil {
		return nil, failure("IDENTITY_LIST_FAILED", "list identities", err)
	}
	defer rows.Close()

	var identities []*auth.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, failure("IDENTITY_LIST_FAILED", "scan identity", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, failure("IDENTITY_LIST_FAILED", "iterate identities", err)
	}
	return identities, nil
}

// PurgeExpired nulls out reset and verification columns whose expiry is at
// or before now.
func (r *IdentityRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE identities SET
			reset_token_hash = CASE WHEN reset_expires_at <= $1 THEN NULL ELSE reset_token_hash END,
			reset_expires_at = CASE WHEN reset_expires_at <= $1 THEN NULL ELSE reset_expires_at END,
			otp_hash         = CASE WHEN otp_expires_at <= $1 THEN NULL ELSE otp_hash END,
			otp_expires_at   = CASE WHEN otp_expires_at <= $1 THEN NULL ELSE otp_expires_at END,
			version = version + 1,
			updated_at = NOW()
		WHERE reset_expires_at <= $1 OR otp_expires_at <= $1
	`, now)
	if err != nil {
		return 0, failure("IDENTITY_PURGE_FAILED", "purge expired credentials", err)
	}
	return tag.RowsAffected(), nil
}

func resetColumns(identity *auth.Identity) (*string, *time.Time) {
	if identity.Reset == nil {
		return nil, nil
	}
	expires := identity.Reset.ExpiresAt.UTC()
	return &identity.Reset.TokenHash, &expires
}

func otpColumns(identity *auth.Identity) (*string, *time.Time) {
	if identity.Verification == nil {
		return nil, nil
	}
	expires := identity.Verification.ExpiresAt.UTC()
	return &identity.Verification.CodeHash, &expires
}

// scanIdentity returns pgx.ErrNoRows unwrapped so callers can map it.
func scanIdentity(row pgx.Row) (*auth.Identity, error) {
	var (
		idStr        string
		identity     auth.Identity
		resetHash    *string
		resetExpires *time.Time
		otpHash      *string
		otpExpires   *time.Time
	)
	err := row.Scan(
		&idStr,
		&identity.Name,
		&identity.Email,
		&identity.PasswordHash,
		&identity.IsAdmin,
		&identity.IsVerified,
		&resetHash,
		&resetExpires,
		&otpHash,
		&otpExpires,
		&identity.Version,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with lookup context
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("IDENTITY_INVALID_ID").With("id", idStr).Wrap(err)
	}
	identity.ID = id
	identity.CreatedAt = identity.CreatedAt.UTC()
	identity.UpdatedAt = identity.UpdatedAt.UTC()

	if resetHash != nil && resetExpires != nil {
		identity.Reset = &auth.ResetCredential{TokenHash: *resetHash, ExpiresAt: resetExpires.UTC()}
	}
	if otpHash != nil && otpExpires != nil {
		identity.Verification = &auth.VerificationCredential{CodeHash: *otpHash, ExpiresAt: otpExpires.UTC()}
	}
	return &identity, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgerrcode.UniqueViolation &&
		pgErr.ConstraintName == constraint
}

func failure(code, operation string, err error) error {
	return oops.Code(code).
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", auth.ErrStoreUnavailable, err))
}

var _ auth.CredentialStore = (*IdentityRepository)(nil)
