// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/holomush/accounts/internal/account"
	"github.com/holomush/accounts/internal/account/memstore"
	"github.com/holomush/accounts/internal/account/postgres"
	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/credential"
	"github.com/holomush/accounts/internal/httpapi"
	"github.com/holomush/accounts/internal/logging"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/internal/reset"
	"github.com/holomush/accounts/internal/session"
	"github.com/holomush/accounts/internal/store"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the accounts HTTP API",
		Long: `Start the accounts HTTP API and the metrics/health server.
Secrets are read from the environment: ACCOUNTS_SIGNING_KEY, DATABASE_URL,
ACCOUNTS_CREDENTIAL_KEY, ACCOUNTS_CREDENTIAL_IV and REDIS_URL.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// backend is the account persistence selected by configuration.
type backend struct {
	repo  account.Repository
	tx    account.Transactor
	check observability.Check
	close func()
}

// revocation is the revoked-token store selected by configuration.
type revocation struct {
	set   session.RevocationSet
	check observability.Check
	close func()
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	setServeDefaults(deps)

	cfg, err := config.Load(cmd.Flags(), config.Discover(configFile), deps.Environ)
	if err != nil {
		return oops.With("operation", "load configuration").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.SetDefault("accountd", version, cfg.LogFormat, level)
	logger.Info("starting accountd",
		"http_addr", cfg.HTTPAddr,
		"store", cfg.Store,
		"hasher", cfg.Hasher,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer be.close()

	rev, err := openRevocationSet(ctx, cfg, deps)
	if err != nil {
		return err
	}
	defer rev.close()

	hasher, err := buildHasher(cfg)
	if err != nil {
		return err
	}

	policy := credential.NewPolicy(
		credential.WithResolver(deps.Resolver),
		credential.WithLookupTimeout(cfg.LookupTimeout),
		credential.WithLogger(logger),
	)
	accounts, err := account.NewService(be.repo, be.tx, policy, hasher, account.WithLogger(logger))
	if err != nil {
		return oops.With("operation", "create account service").Wrap(err)
	}

	signingKey := []byte(cfg.Secrets.SigningKey)
	sessions, err := session.NewIssuer(session.Config{
		SigningKey: signingKey,
		Issuer:     cfg.TokenIssuer,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}, rev.set, session.WithLogger(logger))
	if err != nil {
		return oops.With("operation", "create session issuer").Wrap(err)
	}
	resets, err := reset.NewIssuer(signingKey, reset.WithMaxAge(cfg.ResetMaxAge))
	if err != nil {
		return oops.With("operation", "create reset issuer").Wrap(err)
	}
	authSvc, err := auth.NewService(be.repo, be.tx, accounts, hasher, sessions, resets,
		auth.WithResetURL(cfg.ResetURL),
		auth.WithLogger(logger),
	)
	if err != nil {
		return oops.With("operation", "create auth service").Wrap(err)
	}

	var (
		obsServer ObservabilityServer
		obsErrCh  <-chan error
		metrics   *observability.Metrics
	)
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr,
			observability.WithLogger(logger),
			observability.WithCheck("database", be.check),
			observability.WithCheck("redis", rev.check),
		)
		obsErrCh, err = obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.MetricsAddr).Wrap(err)
		}
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	listener, err := deps.ListenerFactory("tcp", cfg.HTTPAddr)
	if err != nil {
		stopObservability(obsServer, logger)
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTPAddr).Wrap(err)
	}

	httpServer := &http.Server{
		Handler: httpapi.NewRouter(httpapi.Dependencies{
			Accounts: accounts,
			Auth:     authSvc,
			Sessions: sessions,
			Metrics:  metrics,
			Logger:   logger,
			Tracing:  true,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http api listening", "addr", listener.Addr().String())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return oops.Code("HTTP_SERVE_FAILED").Wrap(err)
		}
		return nil
	})
	if obsErrCh != nil {
		g.Go(func() error {
			return monitorServerErrors(gctx, obsErrCh, "observability")
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error stopping http api", "error", err)
		}
		stopObservability(obsServer, logger)
		return nil
	})

	cmd.Println("accountd started")
	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

func setServeDefaults(deps *ServeDeps) {
	if deps.PoolFactory == nil {
		deps.PoolFactory = func(ctx context.Context, url string, opts store.ConnectOptions) (Pool, error) {
			pool, err := store.Connect(ctx, url, opts)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if deps.RedisFactory == nil {
		deps.RedisFactory = func(url string) (redis.UniversalClient, error) {
			opts, err := redis.ParseURL(url)
			if err != nil {
				return nil, oops.Code("REDIS_CONFIG_INVALID").Wrap(err)
			}
			return redis.NewClient(opts), nil
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, opts ...observability.ServerOption) ObservabilityServer {
			return observability.NewServer(addr, opts...)
		}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}
	if deps.Resolver == nil {
		deps.Resolver = net.DefaultResolver
	}
}

// openBackend selects the account store.
func openBackend(ctx context.Context, cfg *config.Config, deps *ServeDeps, logger *slog.Logger) (*backend, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory account store; data is lost on exit")
		mem := memstore.New()
		return &backend{repo: mem, tx: mem, close: func() {}}, nil
	}

	opts := cfg.ConnectOptions()
	opts.Logger = logger
	pool, err := deps.PoolFactory(ctx, cfg.Secrets.DatabaseURL, opts)
	if err != nil {
		return nil, oops.With("operation", "connect to database").Wrap(err)
	}
	logger.Info("connected to database")

	return &backend{
		repo:  postgres.NewRepository(pool),
		tx:    postgres.NewTransactor(pool),
		check: pool.Ping,
		close: pool.Close,
	}, nil
}

// openRevocationSet uses Redis when REDIS_URL is set and process memory
// otherwise.
func openRevocationSet(ctx context.Context, cfg *config.Config, deps *ServeDeps) (*revocation, error) {
	if cfg.Secrets.RedisURL == "" {
		return &revocation{set: session.NewMemoryRevocationSet(), close: func() {}}, nil
	}

	client, err := deps.RedisFactory(cfg.Secrets.RedisURL)
	if err != nil {
		return nil, err
	}
	closeClient := func() {
		if err := client.Close(); err != nil {
			slog.Debug("error closing redis client", "error", err)
		}
	}
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }

	if err := ping(ctx); err != nil {
		closeClient()
		return nil, oops.Code("REDIS_CONNECT_FAILED").Wrap(err)
	}
	set, err := session.NewRedisRevocationSet(client, cfg.RedisPrefix)
	if err != nil {
		closeClient()
		return nil, err
	}
	return &revocation{set: set, check: ping, close: closeClient}, nil
}

// buildHasher returns the configured hasher. With argon2id selected and a
// keystream key present, legacy hashes still verify and are upgraded on
// login.
func buildHasher(cfg *config.Config) (credential.PasswordHasher, error) {
	var legacy *credential.KeystreamHasher
	if cfg.LegacyCredentials() {
		var err error
		legacy, err = credential.NewKeystreamHasher([]byte(cfg.Secrets.CredentialKey), []byte(cfg.Secrets.CredentialIV))
		if err != nil {
			return nil, err
		}
	}

	switch {
	case cfg.Hasher == config.HasherKeystream:
		return legacy, nil
	case legacy != nil:
		return credential.NewUpgradingHasher(legacy)
	default:
		return credential.NewArgon2idHasher(), nil
	}
}

// monitorServerErrors returns the first error a server reports. It returns
// nil when the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, errCh <-chan error, serverName string) error {
	select {
	case err, ok := <-errCh:
		if !ok || err == nil {
			return nil
		}
		slog.Error("server error, triggering shutdown", "server", serverName, "error", err)
		return oops.Code("SERVER_FAILED").With("server", serverName).Wrap(err)
	case <-ctx.Done():
		return nil
	}
}

func stopObservability(s ObservabilityServer, logger *slog.Logger) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}
