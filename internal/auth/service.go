// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/accounts/internal/account"
	"github.com/holomush/accounts/internal/credential"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/internal/reset"
	"github.com/holomush/accounts/internal/session"
	"github.com/holomush/accounts/pkg/errutil"
)

var tracer = otel.Tracer("accounts/auth")

// DefaultResetURL is the path reset tokens are appended to when no public
// base URL is configured.
const DefaultResetURL = "/auth/reset"

// Messages used in results.
const (
	MsgCredentialsRequired = "Email and password are required"
	MsgInvalidCredentials  = "Invalid credentials"
	MsgLoggedIn            = "Login successful"
	MsgRefreshed           = "Token refreshed"
	MsgTokenExpired        = "Token has expired"
	MsgTokenInvalid        = "Invalid token"
	MsgLoggedOut           = "Logged out successfully"
	MsgEmailRequired       = "Email is required"
	MsgResetSent           = "Password reset link sent"
	MsgResetExpired        = "Reset link has expired"
	MsgResetInvalid        = "Invalid reset link"
	MsgPasswordRequired    = "New password is required"
	MsgPasswordReset       = "Password reset successfully"
)

// AccountStore is the subset of account.Repository the auth flows use.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*account.Account, error)
	UpdateFields(ctx context.Context, id int64, changes account.Changes, actorID int64, at time.Time) (int64, error)
}

// AccountUpdater applies validated account updates. *account.Service
// satisfies it.
type AccountUpdater interface {
	Update(ctx context.Context, actorID, id int64, in account.UpdateInput) account.Result
}

// AccessToken is the data payload of a successful refresh.
type AccessToken struct {
	AccessToken string `json:"access_token"`
}

// ResetLink is the data payload of a successful forgot-password request.
type ResetLink struct {
	URL string `json:"reset_url"`
}

// Service runs the login, token and password reset flows.
type Service struct {
	accounts  AccountStore
	tx        account.Transactor
	updater   AccountUpdater
	hasher    credential.PasswordHasher
	sessions  *session.Issuer
	resets    *reset.Issuer
	mailer    Mailer
	resetURL  string
	dummyHash string
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMailer sets the reset link delivery.
func WithMailer(m Mailer) Option {
	return func(s *Service) {
		if m != nil {
			s.mailer = m
		}
	}
}

// WithResetURL sets the base URL reset tokens are appended to.
func WithResetURL(base string) Option {
	return func(s *Service) {
		if base != "" {
			s.resetURL = base
		}
	}
}

// WithClock overrides the clock used for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service. All dependencies are required.
func NewService(
	accounts AccountStore,
	tx account.Transactor,
	updater AccountUpdater,
	hasher credential.PasswordHasher,
	sessions *session.Issuer,
	resets *reset.Issuer,
	opts ...Option,
) (*Service, error) {
	if accounts == nil {
		return nil, oops.Errorf("account store is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	if updater == nil {
		return nil, oops.Errorf("account updater is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session issuer is required")
	}
	if resets == nil {
		return nil, oops.Errorf("reset issuer is required")
	}

	s := &Service{
		accounts: accounts,
		tx:       tx,
		updater:  updater,
		hasher:   hasher,
		sessions: sessions,
		resets:   resets,
		resetURL: DefaultResetURL,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mailer == nil {
		s.mailer = LogMailer{Logger: s.logger}
	}

	// Unknown emails are verified against this hash so login takes the same
	// time whether or not the account exists.
	dummy, err := hasher.Hash(ulid.Make().String())
	if err != nil {
		return nil, oops.Code("AUTH_DUMMY_HASH_FAILED").Wrap(err)
	}
	s.dummyHash = dummy
	return s, nil
}

// Login verifies email and password and issues a session token pair.
func (s *Service) Login(ctx context.Context, email, password string) (res account.Result) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer func() { s.finish(span, "login", res) }()

	if strings.TrimSpace(email) == "" || password == "" {
		return account.Failure(account.CodeMissingInput, MsgCredentialsRequired)
	}

	acct, lookupErr := s.accounts.FindByEmail(ctx, email)
	if lookupErr != nil && !errors.Is(lookupErr, account.ErrNotFound) {
		return s.internal(ctx, span, "login lookup failed", lookupErr)
	}
	exists := lookupErr == nil

	target := s.dummyHash
	if exists {
		target = acct.PasswordHash
	}

	valid, err := s.hasher.Verify(password, target)
	if err != nil {
		if !exists {
			return account.Failure(account.CodeNotFound, MsgInvalidCredentials)
		}
		return s.internal(ctx, span, "login verify failed", oops.With("account_id", acct.ID).Wrap(err))
	}
	if !exists || !valid || !acct.IsActive {
		return account.Failure(account.CodeNotFound, MsgInvalidCredentials)
	}

	span.SetAttributes(attribute.Int64("account.id", acct.ID))
	if s.hasher.NeedsUpgrade(acct.PasswordHash) {
		s.upgrade(ctx, acct.ID, password)
	}

	pair, err := s.sessions.IssuePair(acct.ID)
	if err != nil {
		return s.internal(ctx, span, "login token issue failed", err)
	}
	s.logger.InfoContext(ctx, "account logged in", "account_id", acct.ID)
	return account.Success(MsgLoggedIn, pair)
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (res account.Result) {
	ctx, span := tracer.Start(ctx, "auth.refresh")
	defer func() { s.finish(span, "refresh", res) }()

	access, err := s.sessions.Refresh(ctx, refreshToken)
	switch {
	case err == nil:
		return account.Success(MsgRefreshed, AccessToken{AccessToken: access})
	case errors.Is(err, session.ErrExpired):
		return account.Failure(account.CodeExpired, MsgTokenExpired)
	case errors.Is(err, session.ErrInvalid),
		errors.Is(err, session.ErrRevoked),
		errors.Is(err, session.ErrWrongKind):
		s.logger.DebugContext(ctx, "refresh rejected", "code", errutil.Code(err))
		return account.Failure(account.CodeNotFound, MsgTokenInvalid)
	default:
		return s.internal(ctx, span, "refresh failed", err)
	}
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, claims *session.Claims) (res account.Result) {
	ctx, span := tracer.Start(ctx, "auth.logout")
	defer func() { s.finish(span, "logout", res) }()

	if claims == nil || claims.ID == "" {
		return account.Failure(account.CodeMissingInput, MsgTokenInvalid)
	}
	if err := s.sessions.Revoke(ctx, claims); err != nil {
		return s.internal(ctx, span, "logout revoke failed", err)
	}
	s.logger.InfoContext(ctx, "account logged out", "subject", claims.Subject)
	return account.Success(MsgLoggedOut, nil)
}

// ForgotPassword issues a reset token for an existing account and hands the
// reset link to the mailer.
func (s *Service) ForgotPassword(ctx context.Context, email string) (res account.Result) {
	ctx, span := tracer.Start(ctx, "auth.forgot_password")
	defer func() { s.finish(span, "forgot_password", res) }()

	if strings.TrimSpace(email) == "" {
		return account.Failure(account.CodeMissingInput, MsgEmailRequired)
	}

	acct, err := s.accounts.FindByEmail(ctx, email)
	if errors.Is(err, account.ErrNotFound) {
		return account.Failure(account.CodeNotFound, account.MsgNotFound)
	}
	if err != nil {
		return s.internal(ctx, span, "forgot password lookup failed", err)
	}

	token, err := s.resets.Issue(acct.Email)
	if err != nil {
		return s.internal(ctx, span, "reset token issue failed", err)
	}
	link := strings.TrimRight(s.resetURL, "/") + "/" + url.PathEscape(token)

	if err := s.mailer.SendReset(ctx, acct.Email, link); err != nil {
		return s.internal(ctx, span, "reset link delivery failed", err)
	}
	return account.Success(MsgResetSent, ResetLink{URL: link})
}

// ResetPassword sets a new password for the account named by token. The
// password goes through the same validation as any other update.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (res account.Result) {
	ctx, span := tracer.Start(ctx, "auth.reset_password")
	defer func() { s.finish(span, "reset_password", res) }()

	email, err := s.resets.Validate(token)
	switch {
	case errors.Is(err, reset.ErrExpired):
		return account.Failure(account.CodeExpired, MsgResetExpired)
	case err != nil:
		s.logger.DebugContext(ctx, "reset token rejected", "code", errutil.Code(err))
		return account.Failure(account.CodeNotFound, MsgResetInvalid)
	}
	if newPassword == "" {
		return account.Failure(account.CodeMissingInput, MsgPasswordRequired)
	}

	acct, err := s.accounts.FindByEmail(ctx, email)
	if errors.Is(err, account.ErrNotFound) {
		return account.Failure(account.CodeNotFound, account.MsgNotFound)
	}
	if err != nil {
		return s.internal(ctx, span, "reset lookup failed", err)
	}

	res = s.updater.Update(ctx, acct.ID, acct.ID, account.UpdateInput{Password: &newPassword})
	if res.OK() {
		s.logger.InfoContext(ctx, "password reset", "account_id", acct.ID)
		res.Message = MsgPasswordReset
	}
	return res
}

// upgrade re-hashes a legacy credential. Failure leaves the old hash in
// place; login still succeeds.
func (s *Service) upgrade(ctx context.Context, id int64, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "credential upgrade hash failed", "account_id", id, "error", err)
		return
	}
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		_, updateErr := s.accounts.UpdateFields(ctx, id, account.Changes{PasswordHash: &hash}, id, s.now())
		return updateErr
	})
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "credential upgrade write failed", err)
		return
	}
	s.logger.InfoContext(ctx, "credential upgraded", "account_id", id)
}

func (s *Service) finish(span trace.Span, operation string, res account.Result) {
	span.SetAttributes(attribute.Int("account.result_code", int(res.Code)))
	observability.RecordAccountOperation(operation, res.Code.String())
	span.End()
}

func (s *Service) internal(ctx context.Context, span trace.Span, msg string, err error) account.Result {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	errutil.LogErrorContext(ctx, s.logger, msg, err)
	return account.Failure(account.CodeInternal, account.MsgInternal)
}
