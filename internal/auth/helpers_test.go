// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package auth_test

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/authio/authio/internal/auth"
	"github.com/authio/authio/internal/auth/memory"
)

// testParams keep argon2 cheap in tests.
var testParams = auth.Argon2Params{Time: 1, Memory: 64, Threads: 1, SaltLen: 16, KeyLen: 32}

func newTestHasher(t require.TestingT) *auth.Argon2idHasher {
	h, err := auth.NewArgon2idHasherWithParams(testParams)
	require.NoError(t, err)
	return h
}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMessage struct {
	To      string
	Subject string
	Body    string
}

// outbox records every message and fails with err when set.
type outbox struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (o *outbox) Send(_ context.Context, to, subject, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, sentMessage{To: to, Subject: subject, Body: body})
	return o.err
}

func (o *outbox) failWith(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

func (o *outbox) last(t require.TestingT) sentMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent, "no message sent")
	return o.sent[len(o.sent)-1]
}

var (
	resetLinkPattern = regexp.MustCompile(`/reset-password/([0-9a-f]{64})`)
	otpPattern       = regexp.MustCompile(`<strong>(\d{6})</strong>`)
)

func (o *outbox) lastResetToken(t require.TestingT) string {
	m := resetLinkPattern.FindStringSubmatch(o.last(t).Body)
	require.Len(t, m, 2, "no reset link in message")
	return m[1]
}

func (o *outbox) lastCode(t require.TestingT) string {
	m := otpPattern.FindStringSubmatch(o.last(t).Body)
	require.Len(t, m, 2, "no code in message")
	return m[1]
}

// fixture wires the three services over a memory store.
type fixture struct {
	store    *memory.Store
	hasher   *auth.Argon2idHasher
	clock    *testClock
	outbox   *outbox
	sessions *auth.SessionManager
	auth     *auth.Service
	resets   *auth.PasswordResetService
	verify   *auth.VerificationService
	admin    *auth.AdminService
}

func newFixture(t require.TestingT, extra ...auth.Option) *fixture {
	f := &fixture{
		store:  memory.New(),
		hasher: newTestHasher(t),
		clock:  newTestClock(),
		outbox: &outbox{},
	}
	opts := append([]auth.Option{auth.WithClock(f.clock.Now)}, extra...)

	var err error
	f.sessions, err = auth.NewSessionManager(auth.SessionConfig{Secret: testSecret, Now: f.clock.Now})
	require.NoError(t, err)
	f.auth, err = auth.NewAuthService(f.store, f.hasher, f.sessions, opts...)
	require.NoError(t, err)
	f.resets, err = auth.NewPasswordResetService(f.store, f.hasher, f.outbox, opts...)
	require.NoError(t, err)
	f.verify, err = auth.NewVerificationService(f.store, f.outbox, opts...)
	require.NoError(t, err)
	f.admin, err = auth.NewAdminService(f.store, opts...)
	require.NoError(t, err)
	return f
}

func (f *fixture) register(t require.TestingT, email, password string) *auth.Session {
	session, err := f.auth.Register(context.Background(), "Test User", email, password)
	require.NoError(t, err)
	return session
}

func (f *fixture) identity(t require.TestingT, email string) *auth.Identity {
	identity, err := f.store.FindByEmail(context.Background(), auth.NormalizeEmail(email))
	require.NoError(t, err)
	return identity
}
