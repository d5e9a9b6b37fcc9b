// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package store

import (
	"errors"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authio/authio/pkg/errutil"
)

// fakeDriver implements schemaDriver for unit tests.
type fakeDriver struct {
	upErr, downErr, stepsErr, forceErr error
	version                            uint
	dirty                              bool
	versionErr                         error
	closeSourceErr, closeDBErr         error

	steps  []int
	forced []int
}

func (d *fakeDriver) Up() error   { return d.upErr }
func (d *fakeDriver) Down() error { return d.downErr }
func (d *fakeDriver) Steps(n int) error {
	d.steps = append(d.steps, n)
	return d.stepsErr
}
func (d *fakeDriver) Version() (uint, bool, error) { return d.version, d.dirty, d.versionErr }
func (d *fakeDriver) Force(v int) error {
	d.forced = append(d.forced, v)
	return d.forceErr
}
func (d *fakeDriver) Close() (error, error) { return d.closeSourceErr, d.closeDBErr }

func TestNewMigrator_RejectsUnknownScheme(t *testing.T) {
	_, err := NewMigrator("badscheme://localhost:5432/authio")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@db:5432/authio":   "pgx5://u:p@db:5432/authio",
		"postgresql://u:p@db:5432/authio": "pgx5://u:p@db:5432/authio",
		"pgx5://db/authio":                "pgx5://db/authio",
	}
	for in, want := range tests {
		assert.Equal(t, want, migrateURL(in), in)
	}
}

func TestMigrator_Operations(t *testing.T) {
	tests := []struct {
		name     string
		driver   *fakeDriver
		run      func(*Migrator) error
		wantCode string
	}{
		{"up", &fakeDriver{}, (*Migrator).Up, ""},
		{"up no change", &fakeDriver{upErr: migrate.ErrNoChange}, (*Migrator).Up, ""},
		{"up failure", &fakeDriver{upErr: errors.New("database locked")}, (*Migrator).Up, "MIGRATION_UP_FAILED"},
		{"down", &fakeDriver{}, (*Migrator).Down, ""},
		{"down no change", &fakeDriver{downErr: migrate.ErrNoChange}, (*Migrator).Down, ""},
		{"down failure", &fakeDriver{downErr: errors.New("lock timeout")}, (*Migrator).Down, "MIGRATION_DOWN_FAILED"},
		{"steps failure", &fakeDriver{stepsErr: errors.New("syntax error")}, func(m *Migrator) error { return m.Steps(1) }, "MIGRATION_STEPS_FAILED"},
		{"force failure", &fakeDriver{forceErr: errors.New("no table")}, func(m *Migrator) error { return m.Force(1) }, "MIGRATION_FORCE_FAILED"},
		{"force negative", &fakeDriver{}, func(m *Migrator) error { return m.Force(-1) }, "INVALID_VERSION"},
		{"close source", &fakeDriver{closeSourceErr: errors.New("src")}, (*Migrator).Close, "MIGRATION_CLOSE_FAILED"},
		{"close database", &fakeDriver{closeDBErr: errors.New("db")}, (*Migrator).Close, "MIGRATION_CLOSE_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(&Migrator{m: tt.driver})
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestMigrator_StepsZeroSkipsDriver(t *testing.T) {
	d := &fakeDriver{}
	require.NoError(t, (&Migrator{m: d}).Steps(0))
	assert.Empty(t, d.steps)
}

func TestMigrator_CloseBothErrors(t *testing.T) {
	m := &Migrator{m: &fakeDriver{closeSourceErr: errors.New("src gone"), closeDBErr: errors.New("conn reset")}}
	err := m.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "src gone")
	assert.Contains(t, err.Error(), "conn reset")
	errutil.AssertErrorContext(t, err, "component", "both")
}

func TestMigrator_Version(t *testing.T) {
	v, dirty, err := (&Migrator{m: &fakeDriver{versionErr: migrate.ErrNilVersion}}).Version()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	v, dirty, err = (&Migrator{m: &fakeDriver{version: 2, dirty: true}}).Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.True(t, dirty)

	_, _, err = (&Migrator{m: &fakeDriver{versionErr: errors.New("boom")}}).Version()
	errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
}

func TestMigrator_PendingMigrations(t *testing.T) {
	all, err := migrationVersions(migrationsFS)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	latest := all[len(all)-1]

	pending, err := (&Migrator{m: &fakeDriver{versionErr: migrate.ErrNilVersion}}).PendingMigrations()
	require.NoError(t, err)
	assert.Equal(t, all, pending)

	pending, err = (&Migrator{m: &fakeDriver{version: latest}}).PendingMigrations()
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = (&Migrator{m: &fakeDriver{versionErr: errors.New("boom")}}).PendingMigrations()
	assert.Error(t, err)
}

func TestMigrator_Status(t *testing.T) {
	status, err := (&Migrator{m: &fakeDriver{version: 1}}).Status()
	require.NoError(t, err)
	assert.Equal(t, uint(1), status.Version)
	assert.Equal(t, "000001_create_identities", status.Name)
	assert.False(t, status.Dirty)
	assert.Equal(t, []uint{2}, status.Pending)
}

func TestMigrationName(t *testing.T) {
	name, err := MigrationName(2)
	require.NoError(t, err)
	assert.Equal(t, "000002_add_credentials", name)

	name, err = MigrationName(999)
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestMigrationVersions_RejectsMalformedNames(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/000001_ok.up.sql":   {Data: []byte("SELECT 1;")},
		"migrations/000001_ok.down.sql": {Data: []byte("SELECT 1;")},
		"migrations/oops.up.sql":        {Data: []byte("SELECT 1;")},
	}
	_, err := migrationVersions(fsys)
	errutil.AssertErrorCode(t, err, "MIGRATION_LIST_FAILED")
}

func TestEmbeddedMigrations_NamingAndPairs(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^(\d{6}_\w+)\.(up|down)\.sql$`)
	pairs := map[string]int{}
	for _, entry := range entries {
		m := pattern.FindStringSubmatch(entry.Name())
		require.NotNil(t, m, "unexpected migration file %s", entry.Name())
		pairs[m[1]]++
	}
	for stem, n := range pairs {
		assert.Equal(t, 2, n, "%s needs both up and down files", stem)
	}
}
