// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// Sweeper clears expired reset and verification credentials. Expiry is
// already enforced at redemption time, so sweeping only reclaims storage.
type Sweeper struct {
	store CredentialStore
	opts  options
}

// NewSweeper creates a Sweeper.
func NewSweeper(store CredentialStore, opts ...Option) (*Sweeper, error) {
	if store == nil {
		return nil, oops.Code("SWEEPER_INVALID").Errorf("credential store is required")
	}
	return &Sweeper{store: store, opts: newOptions(opts)}, nil
}

// Sweep runs one pass and returns the number of identities cleaned.
func (s *Sweeper) Sweep(ctx context.Context) (n int64, err error) {
	defer func() { s.opts.recorder.RecordOperation("sweep", outcome(err)) }()

	n, err = s.store.PurgeExpired(ctx, s.opts.now())
	if err != nil {
		return 0, unavailable("SWEEP_FAILED", "purge expired credentials", err)
	}
	if n > 0 {
		s.opts.logger.InfoContext(ctx, "expired credentials purged", "operation", "sweep", "identities", n)
	}
	return n, nil
}

// Run sweeps every interval until ctx is done. Failed passes are logged and
// the loop continues.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return oops.Code("SWEEPER_INVALID").With("interval", interval).Errorf("sweep interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.opts.logger.WarnContext(ctx, "sweep failed", "error", err)
			}
		}
	}
}
