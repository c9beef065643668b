// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"time"
)

// Field names a column that may be probed for uniqueness.
type Field string

// FieldEmail is the only field uniqueness is enforced on.
const FieldEmail Field = "email"

// Changes stages column updates. Nil fields are left untouched.
type Changes struct {
	FirstName    *string
	LastName     *string
	FullName     *string
	Location     *string
	Email        *string
	PasswordHash *string
}

// Empty reports whether no column is staged.
func (c Changes) Empty() bool {
	return c.FirstName == nil && c.LastName == nil && c.FullName == nil &&
		c.Location == nil && c.Email == nil && c.PasswordHash == nil
}

// Repository persists accounts. Every read filters out soft-deleted rows.
type Repository interface {
	// FindByID returns the non-deleted account with id or ErrNotFound.
	FindByID(ctx context.Context, id int64) (*Account, error)

	// FindByEmail returns the non-deleted account with email
	// (case-insensitive) or ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// ListActive returns every non-deleted account ordered by id.
	ListActive(ctx context.Context) ([]*Account, error)

	// ExistsNonDeleted reports whether a non-deleted account has value in field.
	ExistsNonDeleted(ctx context.Context, field Field, value string) (bool, error)

	// Insert stores a new account and returns its id. A duplicate email
	// among non-deleted accounts yields ErrEmailTaken.
	Insert(ctx context.Context, a *Account) (int64, error)

	// UpdateFields writes the staged columns plus modified_by/modified_at on
	// a non-deleted account and returns the number of rows changed.
	UpdateFields(ctx context.Context, id int64, changes Changes, actorID int64, at time.Time) (int64, error)

	// SoftDelete marks a non-deleted account deleted and returns the number
	// of rows changed.
	SoftDelete(ctx context.Context, id int64, actorID int64, at time.Time) (int64, error)
}

// Transactor runs fn inside a unit of work. Repository calls made with the
// context passed to fn participate in it; if fn returns an error every write
// is rolled back.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
