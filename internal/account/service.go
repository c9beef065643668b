// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/accounts/internal/credential"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/pkg/errutil"
)

var tracer = otel.Tracer("accounts/account")

// CredentialPolicy validates email addresses and password strength.
// *credential.Policy satisfies it.
type CredentialPolicy interface {
	ValidateEmail(ctx context.Context, candidate string) bool
	ValidatePassword(candidate string) (bool, string)
}

// SignupInput carries the fields required to create an account.
type SignupInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Location  string `json:"location"`
	Password  string `json:"password"`
}

// UpdateInput carries optional replacements. Nil or blank names, email and
// location are ignored; a password is ignored only when nil or empty.
type UpdateInput struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Location  *string `json:"location,omitempty"`
	Password  *string `json:"password,omitempty"`
}

// Created is the data payload of a successful signup.
type Created struct {
	ID int64 `json:"id"`
}

// Service coordinates account lifecycle operations. Every operation returns
// a Result; infrastructure errors are logged and reported as CodeInternal.
type Service struct {
	repo   Repository
	tx     Transactor
	policy CredentialPolicy
	hasher credential.PasswordHasher
	now    func() time.Time
	logger *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the clock used for audit timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service. All dependencies are required.
func NewService(
	repo Repository,
	tx Transactor,
	policy CredentialPolicy,
	hasher credential.PasswordHasher,
	opts ...ServiceOption,
) (*Service, error) {
	if repo == nil {
		return nil, oops.Errorf("account repository is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	if policy == nil {
		return nil, oops.Errorf("credential policy is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	s := &Service{
		repo:   repo,
		tx:     tx,
		policy: policy,
		hasher: hasher,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Signup validates in and creates an active account attributed to actorID.
// actorID is SelfRegistration for self-service signup.
func (s *Service) Signup(ctx context.Context, actorID int64, in SignupInput) (res Result) {
	ctx, span := s.start(ctx, "account.signup", attribute.Int64("account.actor_id", actorID))
	defer func() { s.finish(span, "signup", res) }()

	if actorID < 0 {
		return Failure(CodeMissingInput, MsgInvalidActor)
	}
	if blank(in.FirstName) || blank(in.LastName) || blank(in.Email) || blank(in.Location) || in.Password == "" {
		return Failure(CodeMissingInput, MsgRequiredFields)
	}

	if !s.policy.ValidateEmail(ctx, in.Email) {
		return Invalid(credential.ReasonBadAddress, map[string]string{"email": credential.ReasonBadAddress})
	}
	if ok, reason := s.policy.ValidatePassword(in.Password); !ok {
		return Invalid(reason, map[string]string{"password": reason})
	}

	taken, err := s.repo.ExistsNonDeleted(ctx, FieldEmail, in.Email)
	if err != nil {
		return s.internal(ctx, span, "signup uniqueness check failed", err)
	}
	if taken {
		return Failure(CodeConflict, MsgEmailTaken)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.WarnContext(ctx, "password hashing failed", "error", err)
		return Failure(CodeHashFailed, MsgHashFailed)
	}

	acct := &Account{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		FullName:     FullNameOf(in.FirstName, in.LastName),
		Location:     in.Location,
		Email:        in.Email,
		PasswordHash: hash,
		CreatedBy:    actorID,
		CreatedAt:    s.now(),
		IsActive:     true,
	}

	var id int64
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		var insertErr error
		id, insertErr = s.repo.Insert(ctx, acct)
		return insertErr
	})
	if errors.Is(err, ErrEmailTaken) {
		return Failure(CodeConflict, MsgEmailTaken)
	}
	if err != nil {
		return s.internal(ctx, span, "signup insert failed", err)
	}

	span.SetAttributes(attribute.Int64("account.id", id))
	s.logger.InfoContext(ctx, "account created", "account_id", id, "actor_id", actorID)
	return Success(MsgSignedUp, Created{ID: id})
}

// Get returns the profile of a non-deleted account.
func (s *Service) Get(ctx context.Context, id int64) (res Result) {
	ctx, span := s.start(ctx, "account.get", attribute.Int64("account.id", id))
	defer func() { s.finish(span, "get", res) }()

	acct, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Failure(CodeNotFound, MsgNotFound)
	}
	if err != nil {
		return s.internal(ctx, span, "get account failed", err)
	}
	return Success(MsgUserFetched, acct.Profile())
}

// List returns summaries of every non-deleted account.
func (s *Service) List(ctx context.Context) (res Result) {
	ctx, span := s.start(ctx, "account.list")
	defer func() { s.finish(span, "list", res) }()

	accts, err := s.repo.ListActive(ctx)
	if err != nil {
		return s.internal(ctx, span, "list accounts failed", err)
	}
	out := make([]Summary, 0, len(accts))
	for _, a := range accts {
		out = append(out, a.Summary())
	}
	return Success(MsgUsersFetched, out)
}

// Update applies the supplied fields that differ from the stored account.
// Field validation failures are collected and reported together; a
// conflicting email is reported only when every field is otherwise valid.
func (s *Service) Update(ctx context.Context, actorID, id int64, in UpdateInput) (res Result) {
	ctx, span := s.start(ctx, "account.update",
		attribute.Int64("account.id", id),
		attribute.Int64("account.actor_id", actorID),
	)
	defer func() { s.finish(span, "update", res) }()

	if actorID < 0 {
		return Failure(CodeMissingInput, MsgInvalidActor)
	}

	current, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Failure(CodeNotFound, MsgNotFound)
	}
	if err != nil {
		return s.internal(ctx, span, "update lookup failed", err)
	}

	var changes Changes
	fieldErrors := make(map[string]string)
	conflict := false

	first, last := current.FirstName, current.LastName
	if v, ok := supplied(in.FirstName); ok && v != current.FirstName {
		changes.FirstName = &v
		first = v
	}
	if v, ok := supplied(in.LastName); ok && v != current.LastName {
		changes.LastName = &v
		last = v
	}
	if changes.FirstName != nil || changes.LastName != nil {
		full := FullNameOf(first, last)
		changes.FullName = &full
	}
	if v, ok := supplied(in.Location); ok && v != current.Location {
		changes.Location = &v
	}

	if v, ok := supplied(in.Email); ok && v != current.Email {
		switch {
		case !s.policy.ValidateEmail(ctx, v):
			fieldErrors["email"] = credential.ReasonBadAddress
		case NormalizeEmail(v) == NormalizeEmail(current.Email):
			// Case-only change; the account already owns this address.
			changes.Email = &v
		default:
			taken, err := s.repo.ExistsNonDeleted(ctx, FieldEmail, v)
			if err != nil {
				return s.internal(ctx, span, "update uniqueness check failed", err)
			}
			if taken {
				conflict = true
			} else {
				changes.Email = &v
			}
		}
	}

	var newPassword string
	if v := in.Password; v != nil && *v != "" {
		if valid, reason := s.policy.ValidatePassword(*v); !valid {
			fieldErrors["password"] = reason
		} else if !s.sameCredential(ctx, *v, current.PasswordHash) {
			newPassword = *v
		}
	}

	if len(fieldErrors) > 0 {
		return Invalid(MsgInvalidFields, fieldErrors)
	}
	if conflict {
		return Failure(CodeConflict, MsgEmailTaken)
	}
	if changes.Empty() && newPassword == "" {
		return Failure(CodeNoChanges, MsgNoChanges)
	}

	if newPassword != "" {
		hash, err := s.hasher.Hash(newPassword)
		if err != nil {
			s.logger.WarnContext(ctx, "password hashing failed", "account_id", id, "error", err)
			return Failure(CodeHashFailed, MsgHashFailed)
		}
		changes.PasswordHash = &hash
	}

	var rows int64
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		var updateErr error
		rows, updateErr = s.repo.UpdateFields(ctx, id, changes, actorID, s.now())
		return updateErr
	})
	if errors.Is(err, ErrEmailTaken) {
		return Failure(CodeConflict, MsgEmailTaken)
	}
	if err != nil {
		return s.internal(ctx, span, "update write failed", err)
	}
	if rows == 0 {
		// Deleted between the lookup and the write.
		return Failure(CodeNotFound, MsgNotFound)
	}

	s.logger.InfoContext(ctx, "account updated", "account_id", id, "actor_id", actorID)
	return Success(MsgUpdated, nil)
}

// Delete soft-deletes a non-deleted account on behalf of actorID.
func (s *Service) Delete(ctx context.Context, actorID, id int64) (res Result) {
	ctx, span := s.start(ctx, "account.delete",
		attribute.Int64("account.id", id),
		attribute.Int64("account.actor_id", actorID),
	)
	defer func() { s.finish(span, "delete", res) }()

	if actorID < 0 {
		return Failure(CodeMissingInput, MsgInvalidActor)
	}

	var rows int64
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		var deleteErr error
		rows, deleteErr = s.repo.SoftDelete(ctx, id, actorID, s.now())
		return deleteErr
	})
	if err != nil {
		return s.internal(ctx, span, "delete failed", err)
	}
	if rows == 0 {
		return Failure(CodeNotFound, MsgDeleteNotFound)
	}

	s.logger.InfoContext(ctx, "account deleted", "account_id", id, "actor_id", actorID)
	return Success(MsgDeleted, nil)
}

// sameCredential reports whether password already matches hash. An
// unverifiable stored hash counts as different so the update replaces it.
func (s *Service) sameCredential(ctx context.Context, password, hash string) bool {
	if hash == "" {
		return false
	}
	ok, err := s.hasher.Verify(password, hash)
	if err != nil {
		s.logger.DebugContext(ctx, "stored credential could not be verified", "error", err)
		return false
	}
	return ok
}

func (s *Service) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service) finish(span trace.Span, operation string, res Result) {
	span.SetAttributes(attribute.Int("account.result_code", int(res.Code)))
	observability.RecordAccountOperation(operation, res.Code.String())
	span.End()
}

func (s *Service) internal(ctx context.Context, span trace.Span, msg string, err error) Result {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	errutil.LogErrorContext(ctx, s.logger, msg, err)
	return Failure(CodeInternal, MsgInternal)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func supplied(p *string) (string, bool) {
	if p == nil || blank(*p) {
		return "", false
	}
	return *p, true
}
