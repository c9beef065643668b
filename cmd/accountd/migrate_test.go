// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/store"
	"github.com/holomush/accounts/pkg/errutil"
)

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErr     bool
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero is valid", input: "0", wantVersion: 0},
		{name: "non-numeric returns error", input: "abc", wantErr: true},
		{name: "trailing chars are ignored", input: "3abc", wantVersion: 3},
		{name: "negative passes through", input: "-1", wantVersion: -1},
		{name: "empty string returns error", input: "", wantErr: true},
		{name: "whitespace only returns error", input: "   ", wantErr: true},
		{name: "leading whitespace is handled", input: "  42", wantVersion: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)

			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "INVALID_VERSION")
				assert.Equal(t, 0, version)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

func TestGetDatabaseURL(t *testing.T) {
	_, err := getDatabaseURL(func() string { return "" })
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")

	url, err := getDatabaseURL(func() string { return "postgres://localhost:5432/accounts" })
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost:5432/accounts", url)
}

type fakeMigrator struct {
	calls   []string
	version uint
	dirty   bool
	status  store.Status
	err     error
	closed  bool
}

func (m *fakeMigrator) record(call string) error {
	m.calls = append(m.calls, call)
	return m.err
}

func (m *fakeMigrator) Up() error   { return m.record("up") }
func (m *fakeMigrator) Down() error { return m.record("down") }

func (m *fakeMigrator) Steps(int) error { return m.record("steps") }

func (m *fakeMigrator) Version() (uint, bool, error) {
	return m.version, m.dirty, m.record("version")
}

func (m *fakeMigrator) Force(int) error { return m.record("force") }

func (m *fakeMigrator) Status() (store.Status, error) {
	return m.status, m.record("status")
}

func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}

func runMigrate(t *testing.T, m *fakeMigrator, url string, args ...string) (string, error) {
	t.Helper()
	cmd := newMigrateCmd(&MigrateDeps{
		MigratorFactory:   func(string) (Migrator, error) { return m, nil },
		DatabaseURLGetter: func() string { return url },
	})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestMigrateCmd(t *testing.T) {
	const url = "postgres://localhost/accounts"

	t.Run("default applies pending migrations", func(t *testing.T) {
		m := &fakeMigrator{version: 1}
		out, err := runMigrate(t, m, url)
		require.NoError(t, err)
		assert.Equal(t, []string{"up", "version"}, m.calls)
		assert.Contains(t, out, "Migrations completed successfully (version 1)")
		assert.True(t, m.closed)
	})

	t.Run("up", func(t *testing.T) {
		m := &fakeMigrator{version: 1}
		_, err := runMigrate(t, m, url, "up")
		require.NoError(t, err)
		assert.Equal(t, []string{"up", "version"}, m.calls)
	})

	t.Run("down requires confirmation", func(t *testing.T) {
		m := &fakeMigrator{}
		_, err := runMigrate(t, m, url, "down")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIRMATION_REQUIRED")
		assert.Empty(t, m.calls)
	})

	t.Run("down with yes", func(t *testing.T) {
		m := &fakeMigrator{}
		out, err := runMigrate(t, m, url, "down", "--yes")
		require.NoError(t, err)
		assert.Equal(t, []string{"down"}, m.calls)
		assert.Contains(t, out, "All migrations rolled back")
	})

	t.Run("version on empty database", func(t *testing.T) {
		m := &fakeMigrator{}
		out, err := runMigrate(t, m, url, "version")
		require.NoError(t, err)
		assert.Contains(t, out, "no migrations applied")
	})

	t.Run("version dirty", func(t *testing.T) {
		m := &fakeMigrator{version: 1, dirty: true}
		out, err := runMigrate(t, m, url, "version")
		require.NoError(t, err)
		assert.Contains(t, out, "version 1 (dirty)")
	})

	t.Run("status", func(t *testing.T) {
		m := &fakeMigrator{status: store.Status{Version: 1, Name: "000001_create_accounts", Pending: []uint{2, 3}}}
		out, err := runMigrate(t, m, url, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "Current: version 1 [000001_create_accounts]")
		assert.Contains(t, out, "Pending: 000002, 000003")
	})

	t.Run("force", func(t *testing.T) {
		m := &fakeMigrator{}
		out, err := runMigrate(t, m, url, "force", "1")
		require.NoError(t, err)
		assert.Equal(t, []string{"force"}, m.calls)
		assert.Contains(t, out, "Forced schema version to 1")
	})

	t.Run("force rejects non-numeric", func(t *testing.T) {
		m := &fakeMigrator{}
		_, err := runMigrate(t, m, url, "force", "latest")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "INVALID_VERSION")
		assert.Empty(t, m.calls)
	})

	t.Run("migrator error is returned", func(t *testing.T) {
		m := &fakeMigrator{err: oops.Code("MIGRATION_UP_FAILED").Wrap(errors.New("boom"))}
		_, err := runMigrate(t, m, url, "up")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "MIGRATION_UP_FAILED")
		assert.True(t, m.closed)
	})

	t.Run("missing database url", func(t *testing.T) {
		m := &fakeMigrator{}
		_, err := runMigrate(t, m, "", "up")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})

	t.Run("factory failure", func(t *testing.T) {
		cmd := newMigrateCmd(&MigrateDeps{
			MigratorFactory:   func(string) (Migrator, error) { return nil, errors.New("dial failed") },
			DatabaseURLGetter: func() string { return url },
		})
		cmd.SetOut(new(bytes.Buffer))
		cmd.SetErr(new(bytes.Buffer))
		cmd.SetArgs([]string{"up"})
		err := cmd.Execute()
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
	})
}
