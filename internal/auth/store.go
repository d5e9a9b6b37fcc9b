// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// CredentialStore persists identities and their credentials.
//
// Lookups return an error wrapping ErrNotFound when nothing matches.
// Infrastructure failures wrap ErrStoreUnavailable.
type CredentialStore interface {
	FindByID(ctx context.Context, id ulid.ULID) (*Identity, error)

	// FindByEmail expects an address already passed through NormalizeEmail.
	FindByEmail(ctx context.Context, email string) (*Identity, error)

	// FindByResetToken returns the identity whose reset credential has the
	// given digest and expires after now.
	FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*Identity, error)

	// Create inserts a new identity and sets its Version to 1. A duplicate
	// email yields ErrEmailTaken.
	Create(ctx context.Context, identity *Identity) error

	// Save writes identity only if the stored version still equals
	// identity.Version, then increments identity.Version. A stale version
	// yields ErrConflict and writes nothing.
	Save(ctx context.Context, identity *Identity) error

	// List returns every identity ordered by id, which is creation order.
	List(ctx context.Context) ([]*Identity, error)

	// PurgeExpired clears reset and verification credentials that expired
	// at or before now and returns how many identities changed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Bounds for the reload loop when Save reports ErrConflict. Each failed
// attempt means another writer saved first, so a caller competing with
// fewer than maxSaveAttempts writers on one identity always gets through.
const (
	maxSaveAttempts     = 16
	defaultSaveBackoff  = 2 * time.Millisecond
	maxSaveBackoffDelay = 100 * time.Millisecond
)

// compareAndSave loads an identity, applies a mutation and saves it with
// a version check, reloading and re-applying after a jittered backoff when
// another writer got there first. load and apply return errors already
// shaped for the caller.
func compareAndSave(
	ctx context.Context,
	store CredentialStore,
	base time.Duration,
	load func(context.Context) (*Identity, error),
	apply func(*Identity) error,
) (*Identity, error) {
	if base <= 0 {
		base = defaultSaveBackoff
	}
	backoff := retry.NewExponential(base)
	backoff = retry.WithJitterPercent(50, backoff)
	backoff = retry.WithCappedDuration(maxSaveBackoffDelay, backoff)
	backoff = retry.WithMaxRetries(maxSaveAttempts-1, backoff)

	var (
		saved    *Identity
		attempts int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		identity, err := load(ctx)
		if err != nil {
			return err
		}
		if err := apply(identity); err != nil {
			return err
		}

		err = store.Save(ctx, identity)
		switch {
		case err == nil:
			saved = identity
			return nil
		case errors.Is(err, ErrConflict):
			return retry.RetryableError(err)
		default:
			return unavailable("IDENTITY_SAVE_FAILED", "save identity", err)
		}
	})
	switch {
	case err == nil:
		return saved, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, oops.Code("IDENTITY_SAVE_FAILED").With("attempts", attempts).Wrap(err)
	case errors.Is(err, ErrConflict):
		return nil, oops.Code("IDENTITY_CONTENDED").With("attempts", attempts).Wrap(err)
	default:
		return nil, err
	}
}

// loadByID returns a compareAndSave loader for id. Codes are prefixed so
// each service reports its own.
func loadByID(store CredentialStore, id ulid.ULID, prefix string) func(context.Context) (*Identity, error) {
	return func(ctx context.Context) (*Identity, error) {
		identity, err := store.FindByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(prefix+"_IDENTITY_NOT_FOUND").With("identity_id", id.String()).Wrap(ErrNotFound)
		}
		if err != nil {
			return nil, unavailable(prefix+"_LOAD_FAILED", "find identity by id", err)
		}
		return identity, nil
	}
}
