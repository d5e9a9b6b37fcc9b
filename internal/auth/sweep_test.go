// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/authio/authio/internal/auth"
	"github.com/authio/authio/internal/auth/mocks"
	"github.com/authio/authio/pkg/errutil"
)

func TestSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.register(t, "a@x.com", "pw")
	f.register(t, "b@x.com", "pw")

	require.NoError(t, f.verify.IssueOtp(ctx, a.Identity.ID))
	require.NoError(t, f.resets.RequestReset(ctx, "b@x.com"))

	sweeper, err := auth.NewSweeper(f.store, auth.WithClock(f.clock.Now))
	require.NoError(t, err)

	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "live credentials are kept")

	f.clock.Advance(11 * time.Minute)
	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Nil(t, f.identity(t, "a@x.com").Verification)
	assert.NotNil(t, f.identity(t, "b@x.com").Reset)

	f.clock.Advance(time.Hour)
	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Nil(t, f.identity(t, "b@x.com").Reset)
}

func TestSweeper_StoreFailure(t *testing.T) {
	store := mocks.NewMockCredentialStore(t)
	store.On("PurgeExpired", mock.Anything, mock.Anything).Return(int64(0), errors.New("connection refused"))
	sweeper, err := auth.NewSweeper(store)
	require.NoError(t, err)

	_, err = sweeper.Sweep(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrStoreUnavailable))
	errutil.AssertErrorCode(t, err, "SWEEP_FAILED")
}

func TestSweeper_Run(t *testing.T) {
	t.Run("rejects non-positive interval", func(t *testing.T) {
		sweeper, err := auth.NewSweeper(mocks.NewMockCredentialStore(t))
		require.NoError(t, err)
		err = sweeper.Run(context.Background(), 0)
		errutil.AssertErrorCode(t, err, "SWEEPER_INVALID")
	})

	t.Run("sweeps until canceled", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		store := mocks.NewMockCredentialStore(t)
		swept := make(chan struct{}, 1)
		store.On("PurgeExpired", mock.Anything, mock.Anything).
			Return(int64(0), nil).
			Run(func(mock.Arguments) {
				select {
				case swept <- struct{}{}:
				default:
				}
			})
		sweeper, err := auth.NewSweeper(store)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- sweeper.Run(ctx, 5*time.Millisecond) }()

		select {
		case <-swept:
		case <-time.After(2 * time.Second):
			t.Fatal("sweeper never ran")
		}
		cancel()
		require.NoError(t, <-done)
	})

	t.Run("nil store", func(t *testing.T) {
		_, err := auth.NewSweeper(nil)
		assert.ErrorContains(t, err, "credential store is required")
	})
}
