// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

//go:build integration

package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/authio/authio/internal/auth"
	"github.com/authio/authio/internal/auth/postgres"
	"github.com/authio/authio/internal/auth/storetest"
	"github.com/authio/authio/internal/store"
)

// testPool is shared by every integration test in this package.
var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("authio_test"),
		tcpostgres.WithUsername("authio"),
		tcpostgres.WithPassword("authio"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		panic("failed to start postgres container: " + err.Error())
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to get connection string: " + err.Error())
	}

	migrator, err := store.NewMigrator(dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to create migrator: " + err.Error())
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		_ = container.Terminate(ctx)
		panic("failed to run migrations: " + err.Error())
	}
	_ = migrator.Close()

	testPool, err = store.Connect(ctx, dsn, store.PoolConfig{MaxConns: 20})
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to create pool: " + err.Error())
	}

	code := m.Run()

	testPool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestIdentityRepository_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) auth.CredentialStore {
		_, err := testPool.Exec(context.Background(), `TRUNCATE identities`)
		if err != nil {
			t.Fatalf("truncate identities: %v", err)
		}
		return postgres.NewIdentityRepository(testPool)
	})
}
