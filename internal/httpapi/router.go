// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the account and auth services over HTTP.
//
// Every response body is an account.Result encoded as JSON. The HTTP
// status is derived from the result code.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/holomush/accounts/internal/account"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/internal/session"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// AccountService is the lifecycle surface the API serves.
// *account.Service satisfies it.
type AccountService interface {
	Signup(ctx context.Context, actorID int64, in account.SignupInput) account.Result
	Get(ctx context.Context, id int64) account.Result
	List(ctx context.Context) account.Result
	Update(ctx context.Context, actorID, id int64, in account.UpdateInput) account.Result
	Delete(ctx context.Context, actorID, id int64) account.Result
}

// AuthService is the login and reset surface the API serves.
// *auth.Service satisfies it.
type AuthService interface {
	Login(ctx context.Context, email, password string) account.Result
	Refresh(ctx context.Context, refreshToken string) account.Result
	Logout(ctx context.Context, claims *session.Claims) account.Result
	ForgotPassword(ctx context.Context, email string) account.Result
	ResetPassword(ctx context.Context, token, newPassword string) account.Result
}

// Authenticator verifies bearer tokens. *session.Issuer satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string, want session.Kind) (*session.Claims, error)
}

// Dependencies wires the router.
type Dependencies struct {
	Accounts AccountService
	Auth     AuthService
	Sessions Authenticator
	// Metrics is optional; request metrics are skipped when nil.
	Metrics *observability.Metrics
	Logger  *slog.Logger
	// Tracing wraps the router in an OpenTelemetry server handler.
	Tracing bool
}

// NewRouter builds the HTTP handler.
func NewRouter(dep Dependencies) http.Handler {
	logger := dep.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{accounts: dep.Accounts, auth: dep.Auth, logger: logger}
	requireAccess := bearer(dep.Sessions, session.KindAccess, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(logger))
	if dep.Metrics != nil {
		r.Use(requestMetrics(dep.Metrics))
	}
	r.Use(bodyLimit(maxBodyBytes))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.signup)
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.With(requireAccess).Post("/logout", h.logout)
		r.Post("/forgot", h.forgot)
		r.Post("/reset/{token}", h.reset)
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(requireAccess)
		r.Get("/", h.listUsers)
		r.Post("/", h.createUser)
		r.Get("/{id}", h.getUser)
		r.Put("/{id}", h.updateUser)
		r.Delete("/{id}", h.deleteUser)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, r, http.StatusNotFound, account.Failure(account.CodeNotFound, MsgRouteNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, r, http.StatusMethodNotAllowed, account.Failure(account.CodeMissingInput, MsgMethodNotAllowed))
	})

	if dep.Tracing {
		return otelhttp.NewHandler(r, "accounts.http")
	}
	return r
}
