// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/credential"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/internal/session"
	"github.com/holomush/accounts/internal/store"
	"github.com/holomush/accounts/pkg/errutil"
)

const testSigningKey = "abcdefghijklmnopqrstuvwxyz123456"

type tableResolver map[string][]string

func (r tableResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if addrs, ok := r[host]; ok {
		return addrs, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

type fakeObservabilityServer struct {
	startErr error
	started  bool
	stopped  bool
	metrics  *observability.Metrics
	errCh    chan error
}

func (s *fakeObservabilityServer) Start() (<-chan error, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.started = true
	s.errCh = make(chan error, 1)
	return s.errCh, nil
}

func (s *fakeObservabilityServer) Stop(context.Context) error {
	s.stopped = true
	return nil
}

func (s *fakeObservabilityServer) Addr() string { return "127.0.0.1:0" }

func (s *fakeObservabilityServer) Metrics() *observability.Metrics { return s.metrics }

func serveCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	configFile = ""
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cmd := NewServeCmd()
	cmd.SetOut(new(bytes.Buffer))
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func testEnviron() map[string]string {
	return map[string]string{"ACCOUNTS_SIGNING_KEY": testSigningKey}
}

func TestRunServe_MemoryStoreEndToEnd(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	obs := &fakeObservabilityServer{}

	cmd := serveCmd(t, "--store=memory", "--log-level=error", "--metrics-addr=127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- runServeWithDeps(ctx, cmd, &ServeDeps{
			ListenerFactory: func(string, string) (net.Listener, error) { return ln, nil },
			ObservabilityServerFactory: func(_ string, opts ...observability.ServerOption) ObservabilityServer {
				assert.Len(t, opts, 3)
				return obs
			},
			Resolver: tableResolver{"holomush.dev": {"192.0.2.10"}},
			Environ:  testEnviron(),
		})
	}()

	base := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/users")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusUnauthorized
	}, 5*time.Second, 20*time.Millisecond)

	post := func(path, body string) (int, map[string]any) {
		resp, err := http.Post(base+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		var out map[string]any
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
		return resp.StatusCode, out
	}

	status, _ := post("/auth/signup",
		`{"first_name":"Ada","last_name":"Lovelace","email":"ada@holomush.dev","location":"London","password":"Tr0ub4dor&3"}`)
	assert.Equal(t, http.StatusCreated, status)

	status, out := post("/auth/login", `{"email":"ada@holomush.dev","password":"Tr0ub4dor&3"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 9999, out["code"])

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
	assert.True(t, obs.started)
	assert.True(t, obs.stopped)
}

func TestRunServe_InvalidConfig(t *testing.T) {
	cmd := serveCmd(t, "--store=memory")
	err := runServeWithDeps(context.Background(), cmd, &ServeDeps{Environ: map[string]string{}})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestRunServe_ObservabilityStartFailure(t *testing.T) {
	cmd := serveCmd(t, "--store=memory", "--log-level=error")
	err := runServeWithDeps(context.Background(), cmd, &ServeDeps{
		ObservabilityServerFactory: func(string, ...observability.ServerOption) ObservabilityServer {
			return &fakeObservabilityServer{startErr: errors.New("address in use")}
		},
		Environ: testEnviron(),
	})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_START_FAILED")
}

func TestRunServe_ListenFailureStopsObservability(t *testing.T) {
	obs := &fakeObservabilityServer{}
	cmd := serveCmd(t, "--store=memory", "--log-level=error")
	err := runServeWithDeps(context.Background(), cmd, &ServeDeps{
		ObservabilityServerFactory: func(string, ...observability.ServerOption) ObservabilityServer { return obs },
		ListenerFactory: func(string, string) (net.Listener, error) {
			return nil, errors.New("permission denied")
		},
		Environ: testEnviron(),
	})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "HTTP_LISTEN_FAILED")
	assert.True(t, obs.stopped)
}

func TestRunServe_DatabaseConnectFailure(t *testing.T) {
	cmd := serveCmd(t, "--log-level=error", "--metrics-addr=")
	env := testEnviron()
	env["DATABASE_URL"] = "postgres://localhost/accounts"

	err := runServeWithDeps(context.Background(), cmd, &ServeDeps{
		PoolFactory: func(context.Context, string, store.ConnectOptions) (Pool, error) {
			return nil, oops.Code("DB_CONNECT_FAILED").Errorf("connection refused")
		},
		Environ: env,
	})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
}

func TestOpenBackend_PostgresReadiness(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)

	cfg := &config.Config{Store: config.StorePostgres, DBMaxConns: 8}
	cfg.Secrets.DatabaseURL = "postgres://localhost/accounts"

	var gotOpts store.ConnectOptions
	be, err := openBackend(context.Background(), cfg, &ServeDeps{
		PoolFactory: func(_ context.Context, url string, opts store.ConnectOptions) (Pool, error) {
			assert.Equal(t, cfg.Secrets.DatabaseURL, url)
			gotOpts = opts
			return mock, nil
		},
	}, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, int32(8), gotOpts.MaxConns)
	assert.NotNil(t, gotOpts.Logger)

	mock.ExpectPing()
	assert.NoError(t, be.check(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, be.check(context.Background()))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenRevocationSet(t *testing.T) {
	t.Run("memory without redis url", func(t *testing.T) {
		rev, err := openRevocationSet(context.Background(), &config.Config{}, &ServeDeps{})
		require.NoError(t, err)
		defer rev.close()
		assert.IsType(t, &session.MemoryRevocationSet{}, rev.set)
		assert.Nil(t, rev.check)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := &config.Config{RedisPrefix: "test:revoked"}
		cfg.Secrets.RedisURL = "redis://" + mr.Addr()

		deps := &ServeDeps{}
		setServeDefaults(deps)
		rev, err := openRevocationSet(context.Background(), cfg, deps)
		require.NoError(t, err)
		defer rev.close()
		require.IsType(t, &session.RedisRevocationSet{}, rev.set)

		ctx := context.Background()
		require.NoError(t, rev.set.Add(ctx, "01JTESTJTI", time.Now().Add(time.Minute)))
		assert.True(t, mr.Exists("test:revoked:01JTESTJTI"))
		require.NoError(t, rev.check(ctx))

		mr.Close()
		assert.Error(t, rev.check(ctx))
	})

	t.Run("redis unreachable", func(t *testing.T) {
		cfg := &config.Config{RedisPrefix: "test:revoked"}
		cfg.Secrets.RedisURL = "redis://127.0.0.1:1"
		deps := &ServeDeps{RedisFactory: func(string) (redis.UniversalClient, error) {
			return redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond}), nil
		}}
		_, err := openRevocationSet(context.Background(), cfg, deps)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "REDIS_CONNECT_FAILED")
	})

	t.Run("bad redis url", func(t *testing.T) {
		cfg := &config.Config{RedisPrefix: "test:revoked"}
		cfg.Secrets.RedisURL = "mongodb://nope"
		deps := &ServeDeps{}
		setServeDefaults(deps)
		_, err := openRevocationSet(context.Background(), cfg, deps)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "REDIS_CONFIG_INVALID")
	})
}

func TestBuildHasher(t *testing.T) {
	legacySecrets := config.Secrets{
		SigningKey:    testSigningKey,
		CredentialKey: "0123456789abcdef",
		CredentialIV:  "fedcba9876543210",
	}

	t.Run("argon2id", func(t *testing.T) {
		h, err := buildHasher(&config.Config{Hasher: config.HasherArgon2id})
		require.NoError(t, err)
		assert.IsType(t, &credential.Argon2idHasher{}, h)
	})

	t.Run("argon2id with legacy key upgrades", func(t *testing.T) {
		h, err := buildHasher(&config.Config{Hasher: config.HasherArgon2id, Secrets: legacySecrets})
		require.NoError(t, err)
		assert.IsType(t, &credential.UpgradingHasher{}, h)
	})

	t.Run("keystream", func(t *testing.T) {
		h, err := buildHasher(&config.Config{Hasher: config.HasherKeystream, Secrets: legacySecrets})
		require.NoError(t, err)
		assert.IsType(t, &credential.KeystreamHasher{}, h)
	})
}

func TestMonitorServerErrors(t *testing.T) {
	t.Run("error is returned", func(t *testing.T) {
		ch := make(chan error, 1)
		ch <- errors.New("listener closed")
		err := monitorServerErrors(context.Background(), ch, "observability")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "SERVER_FAILED")
		errutil.AssertErrorContext(t, err, "server", "observability")
	})

	t.Run("closed channel", func(t *testing.T) {
		ch := make(chan error)
		close(ch)
		assert.NoError(t, monitorServerErrors(context.Background(), ch, "observability"))
	})

	t.Run("context done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.NoError(t, monitorServerErrors(ctx, make(chan error), "observability"))
	})
}
