// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authio/authio/internal/auth"
	"github.com/authio/authio/internal/auth/memory"
	"github.com/authio/authio/internal/auth/redisstore"
	"github.com/authio/authio/internal/config"
	"github.com/authio/authio/internal/logging"
	"github.com/authio/authio/internal/notify"
	"github.com/authio/authio/pkg/errutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestOpenStore_Memory(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = config.StoreMemory

	be, err := openStore(context.Background(), &cfg, discard)
	require.NoError(t, err)
	defer be.close()
	assert.IsType(t, &memory.Store{}, be.store)
	assert.Nil(t, be.ready)
}

func TestOpenStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Store.Driver = config.StoreRedis
	cfg.Store.Redis.Addr = mr.Addr()
	cfg.Store.Redis.Prefix = "test"

	be, err := openStore(context.Background(), &cfg, discard)
	require.NoError(t, err)
	defer be.close()
	assert.IsType(t, &redisstore.Store{}, be.store)
	assert.True(t, be.ready(context.Background()))

	identity, err := auth.NewIdentity("Ada", "ada@example.com", "digest", time.Now())
	require.NoError(t, err)
	require.NoError(t, be.store.Create(context.Background(), identity))
	assert.True(t, mr.Exists("test:email:ada@example.com"))

	mr.Close()
	assert.False(t, be.ready(context.Background()))
}

func TestOpenStore_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.Default()
	cfg.Store.Driver = config.StoreRedis
	cfg.Store.Redis.Addr = addr

	_, err := openStore(context.Background(), &cfg, discard)
	errutil.AssertErrorCode(t, err, "STORE_CONNECT_FAILED")
}

func TestOpenStore_PostgresBadURL(t *testing.T) {
	cfg := config.Default()
	cfg.Store.DatabaseURL = "postgres://%zz"

	_, err := openStore(context.Background(), &cfg, discard)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "sqlite"

	_, err := openStore(context.Background(), &cfg, discard)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestNewNotifier(t *testing.T) {
	cfg := config.Default()

	n, err := newNotifier(&cfg, discard)
	require.NoError(t, err)
	assert.IsType(t, &notify.LogNotifier{}, n)

	cfg.Mail.Driver = config.MailSMTP
	cfg.Mail.Host = "smtp.example.com"
	cfg.Mail.From = "noreply@example.com"
	cfg.Mail.Password = "key"
	n, err = newNotifier(&cfg, discard)
	require.NoError(t, err)
	assert.IsType(t, &notify.SMTPNotifier{}, n)

	cfg.Mail.Host = ""
	_, err = newNotifier(&cfg, discard)
	errutil.AssertErrorCode(t, err, "SMTP_CONFIG_INVALID")

	cfg.Mail.Driver = "pigeon"
	_, err = newNotifier(&cfg, discard)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

type fixedSecrets struct{ token, code string }

func (s fixedSecrets) Token() (string, error) { return s.token, nil }
func (s fixedSecrets) Code() (string, error)  { return s.code, nil }

func TestNewNotifier_DefaultConfigKeepsSecretsOutOfLogs(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()

	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Service: "authio", Format: "json", Level: "debug", Writer: &buf})
	require.NoError(t, err)

	n, err := newNotifier(&cfg, logger)
	require.NoError(t, err)

	store := memory.New()
	identity, err := auth.NewIdentity("Ada", "ada@example.com", "digest", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, identity))

	secrets := fixedSecrets{token: "feedface" + strings.Repeat("0", 56), code: "314159"}
	opts := []auth.Option{auth.WithLogger(logger), auth.WithSecretGenerator(secrets)}
	resets, err := auth.NewPasswordResetService(store, auth.NewArgon2idHasher(), n, opts...)
	require.NoError(t, err)
	verify, err := auth.NewVerificationService(store, n, opts...)
	require.NoError(t, err)

	require.NoError(t, resets.RequestReset(ctx, "ada@example.com"))
	require.NoError(t, verify.IssueOtp(ctx, identity.ID))

	out := buf.String()
	assert.Contains(t, out, "mail not sent")
	assert.NotContains(t, out, secrets.token)
	assert.NotContains(t, out, secrets.code)
}
