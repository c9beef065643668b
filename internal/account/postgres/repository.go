// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements account persistence on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/account"
)

const accountColumns = `id, first_name, last_name, full_name, location, email, password_hash,
		       created_by, modified_by, deleted_by, created_at, modified_at, deleted_at,
		       is_active, is_deleted`

// existsQueries whitelists the columns ExistsNonDeleted may search.
var existsQueries = map[account.Field]string{
	account.FieldEmail: `SELECT EXISTS (
		SELECT 1 FROM accounts WHERE LOWER(email) = LOWER($1) AND NOT is_deleted
	)`,
}

// Repository implements account.Repository using PostgreSQL.
type Repository struct {
	pool poolIface
}

// NewRepository creates a new Repository.
func NewRepository(pool poolIface) *Repository {
	return &Repository{pool: pool}
}

// FindByID returns the non-deleted account with id.
func (r *Repository) FindByID(ctx context.Context, id int64) (*account.Account, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1 AND NOT is_deleted
	`, id)

	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("id", id).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by id").
			With("id", id).
			Wrap(err)
	}
	return a, nil
}

// FindByEmail returns the non-deleted account with email (case-insensitive).
func (r *Repository) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE LOWER(email) = LOWER($1) AND NOT is_deleted
	`, email)

	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("email", email).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by email").
			With("email", email).
			Wrap(err)
	}
	return a, nil
}

// ListActive returns every non-deleted account ordered by id.
func (r *Repository) ListActive(ctx context.Context) ([]*account.Account, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE NOT is_deleted
		ORDER BY id
	`)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "list accounts").Wrap(err)
	}
	defer rows.Close()

	out := make([]*account.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "scan account row").Wrap(err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "iterate accounts").Wrap(err)
	}
	return out, nil
}

// ExistsNonDeleted reports whether a non-deleted account holds value in field.
func (r *Repository) ExistsNonDeleted(ctx context.Context, field account.Field, value string) (bool, error) {
	query, ok := existsQueries[field]
	if !ok {
		return false, oops.Code("ACCOUNT_FIELD_UNSUPPORTED").With("field", string(field)).
			Errorf("uniqueness is not tracked for field %q", field)
	}

	var exists bool
	if err := conn(ctx, r.pool).QueryRow(ctx, query, value).Scan(&exists); err != nil {
		return false, oops.Code("ACCOUNT_EXISTS_FAILED").
			With("operation", "uniqueness probe").
			With("field", string(field)).
			Wrap(err)
	}
	return exists, nil
}

// Insert stores a new account and returns its generated id.
func (r *Repository) Insert(ctx context.Context, a *account.Account) (int64, error) {
	var id int64
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO accounts (
			first_name, last_name, full_name, location, email, password_hash,
			created_by, created_at, is_active, is_deleted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)
		RETURNING id
	`,
		a.FirstName,
		a.LastName,
		a.FullName,
		a.Location,
		a.Email,
		a.PasswordHash,
		a.CreatedBy,
		a.CreatedAt,
		a.IsActive,
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, oops.Code("ACCOUNT_EMAIL_TAKEN").With("email", a.Email).Wrap(account.ErrEmailTaken)
	}
	if err != nil {
		return 0, oops.Code("ACCOUNT_INSERT_FAILED").
			With("operation", "insert account").
			With("email", a.Email).
			Wrap(err)
	}
	return id, nil
}

// UpdateFields writes the staged columns and the modification stamp.
func (r *Repository) UpdateFields(ctx context.Context, id int64, changes account.Changes, actorID int64, at time.Time) (int64, error) {
	args := []any{id}
	var sets []string
	stage := func(column string, v *string) {
		if v == nil {
			return
		}
		args = append(args, *v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	stage("first_name", changes.FirstName)
	stage("last_name", changes.LastName)
	stage("full_name", changes.FullName)
	stage("location", changes.Location)
	stage("email", changes.Email)
	stage("password_hash", changes.PasswordHash)

	args = append(args, actorID, at)
	sets = append(sets,
		fmt.Sprintf("modified_by = $%d", len(args)-1),
		fmt.Sprintf("modified_at = $%d", len(args)),
	)

	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE accounts SET `+strings.Join(sets, ", ")+` WHERE id = $1 AND NOT is_deleted`,
		args...)
	if isUniqueViolation(err) {
		return 0, oops.Code("ACCOUNT_EMAIL_TAKEN").With("id", id).Wrap(account.ErrEmailTaken)
	}
	if err != nil {
		return 0, oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update account").
			With("id", id).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// SoftDelete marks a non-deleted account deleted.
func (r *Repository) SoftDelete(ctx context.Context, id int64, actorID int64, at time.Time) (int64, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE accounts SET is_deleted = TRUE, deleted_by = $2, deleted_at = $3
		WHERE id = $1 AND NOT is_deleted
	`, id, actorID, at)
	if err != nil {
		return 0, oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "soft delete account").
			With("id", id).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// scanAccount scans a single row. Callers handle pgx.ErrNoRows.
func scanAccount(row pgx.Row) (*account.Account, error) {
	var a account.Account
	err := row.Scan(
		&a.ID,
		&a.FirstName,
		&a.LastName,
		&a.FullName,
		&a.Location,
		&a.Email,
		&a.PasswordHash,
		&a.CreatedBy,
		&a.ModifiedBy,
		&a.DeletedBy,
		&a.CreatedAt,
		&a.ModifiedAt,
		&a.DeletedAt,
		&a.IsActive,
		&a.IsDeleted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").With("operation", "scan account").Wrap(err)
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

var _ account.Repository = (*Repository)(nil)
