// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

// Package mocks provides testify mocks for the auth collaborator interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/authio/authio/internal/auth"
)

// TestingT is satisfied by *testing.T.
type TestingT interface {
	mock.TestingT
	Cleanup(func())
}

var (
	_ auth.CredentialStore = (*MockCredentialStore)(nil)
	_ auth.PasswordHasher  = (*MockPasswordHasher)(nil)
	_ auth.Notifier        = (*MockNotifier)(nil)
	_ auth.SessionSigner   = (*MockSessionSigner)(nil)
)

// MockCredentialStore mocks auth.CredentialStore.
type MockCredentialStore struct {
	mock.Mock
}

// NewMockCredentialStore registers expectation checks on t.Cleanup.
func NewMockCredentialStore(t TestingT) *MockCredentialStore {
	m := &MockCredentialStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func identityResult(ret mock.Arguments) (*auth.Identity, error) {
	var identity *auth.Identity
	if v, ok := ret.Get(0).(*auth.Identity); ok && v != nil {
		identity = v.Clone()
	}
	return identity, ret.Error(1)
}

func (m *MockCredentialStore) FindByID(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	return identityResult(m.Called(ctx, id))
}

func (m *MockCredentialStore) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	return identityResult(m.Called(ctx, email))
}

func (m *MockCredentialStore) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*auth.Identity, error) {
	return identityResult(m.Called(ctx, tokenHash, now))
}

func (m *MockCredentialStore) Create(ctx context.Context, identity *auth.Identity) error {
	return m.Called(ctx, identity).Error(0)
}

func (m *MockCredentialStore) Save(ctx context.Context, identity *auth.Identity) error {
	err := m.Called(ctx, identity).Error(0)
	if err == nil {
		identity.Version++
	}
	return err
}

func (m *MockCredentialStore) List(ctx context.Context) ([]*auth.Identity, error) {
	ret := m.Called(ctx)
	var identities []*auth.Identity
	if v, ok := ret.Get(0).([]*auth.Identity); ok {
		for _, identity := range v {
			identities = append(identities, identity.Clone())
		}
	}
	return identities, ret.Error(1)
}

func (m *MockCredentialStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	ret := m.Called(ctx, now)
	return ret.Get(0).(int64), ret.Error(1)
}

// MockPasswordHasher mocks auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher registers expectation checks on t.Cleanup.
func NewMockPasswordHasher(t TestingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	ret := m.Called(password)
	return ret.String(0), ret.Error(1)
}

func (m *MockPasswordHasher) Verify(password, digest string) (bool, error) {
	ret := m.Called(password, digest)
	return ret.Bool(0), ret.Error(1)
}

func (m *MockPasswordHasher) NeedsUpgrade(digest string) bool {
	return m.Called(digest).Bool(0)
}

// MockNotifier mocks auth.Notifier.
type MockNotifier struct {
	mock.Mock
}

// NewMockNotifier registers expectation checks on t.Cleanup.
func NewMockNotifier(t TestingT) *MockNotifier {
	m := &MockNotifier{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockNotifier) Send(ctx context.Context, to, subject, body string) error {
	return m.Called(ctx, to, subject, body).Error(0)
}

// MockSessionSigner mocks auth.SessionSigner.
type MockSessionSigner struct {
	mock.Mock
}

// NewMockSessionSigner registers expectation checks on t.Cleanup.
func NewMockSessionSigner(t TestingT) *MockSessionSigner {
	m := &MockSessionSigner{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSessionSigner) Issue(identity *auth.Identity) (string, time.Time, error) {
	ret := m.Called(identity)
	return ret.String(0), ret.Get(1).(time.Time), ret.Error(2)
}
