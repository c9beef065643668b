// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memstore provides an in-process account.Repository for tests and
// single-node development. Uniqueness is enforced under the store mutex, so
// it gives the same guarantee as the database's partial unique index.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/account"
)

var (
	_ account.Repository = (*Store)(nil)
	_ account.Transactor = (*Store)(nil)
)

// Store is a mutex-guarded map of accounts keyed by id.
type Store struct {
	mu     sync.Mutex
	rows   map[int64]*account.Account
	nextID int64

	// txMu is held by an open transaction. Writes outside it wait, so a
	// rollback never discards them.
	txMu sync.Mutex
}

type txKey struct{}

// New creates an empty Store.
func New() *Store {
	return &Store{rows: make(map[int64]*account.Account), nextID: 1}
}

// InTransaction runs fn with exclusive access to the store and restores the
// prior state if fn returns an error or panics. A nested call joins the
// outer transaction.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTransaction(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	ctx = context.WithValue(ctx, txKey{}, s)

	snapshot, nextID := s.snapshot()
	committed := false
	defer func() {
		if !committed {
			s.restore(snapshot, nextID)
		}
	}()

	if err := fn(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

// FindByID returns the non-deleted account with id.
func (s *Store) FindByID(_ context.Context, id int64) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok || row.IsDeleted {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("id", id).Wrap(account.ErrNotFound)
	}
	return clone(row), nil
}

// FindByEmail returns the non-deleted account with email, compared case-insensitively.
func (s *Store) FindByEmail(_ context.Context, email string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row := s.byEmailLocked(email); row != nil {
		return clone(row), nil
	}
	return nil, oops.Code("ACCOUNT_NOT_FOUND").With("email", email).Wrap(account.ErrNotFound)
}

// ListActive returns every non-deleted account ordered by id.
func (s *Store) ListActive(_ context.Context) ([]*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*account.Account, 0, len(s.rows))
	for _, row := range s.rows {
		if !row.IsDeleted {
			out = append(out, clone(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ExistsNonDeleted reports whether a non-deleted account holds value in field.
func (s *Store) ExistsNonDeleted(_ context.Context, field account.Field, value string) (bool, error) {
	if field != account.FieldEmail {
		return false, oops.Code("ACCOUNT_FIELD_UNSUPPORTED").With("field", string(field)).
			Errorf("uniqueness is not tracked for field %q", field)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byEmailLocked(value) != nil, nil
}

// Insert stores a copy of a and assigns its id.
func (s *Store) Insert(ctx context.Context, a *account.Account) (int64, error) {
	defer s.exclusive(ctx)()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byEmailLocked(a.Email) != nil {
		return 0, oops.Code("ACCOUNT_EMAIL_TAKEN").With("email", a.Email).Wrap(account.ErrEmailTaken)
	}

	row := clone(a)
	row.ID = s.nextID
	s.nextID++
	s.rows[row.ID] = row
	return row.ID, nil
}

// UpdateFields applies the staged columns to a non-deleted account.
func (s *Store) UpdateFields(ctx context.Context, id int64, changes account.Changes, actorID int64, at time.Time) (int64, error) {
	defer s.exclusive(ctx)()
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok || row.IsDeleted {
		return 0, nil
	}
	if changes.Email != nil {
		if other := s.byEmailLocked(*changes.Email); other != nil && other.ID != id {
			return 0, oops.Code("ACCOUNT_EMAIL_TAKEN").With("email", *changes.Email).Wrap(account.ErrEmailTaken)
		}
	}

	apply(&row.FirstName, changes.FirstName)
	apply(&row.LastName, changes.LastName)
	apply(&row.FullName, changes.FullName)
	apply(&row.Location, changes.Location)
	apply(&row.Email, changes.Email)
	apply(&row.PasswordHash, changes.PasswordHash)
	row.ModifiedBy = &actorID
	row.ModifiedAt = &at
	return 1, nil
}

// SoftDelete marks a non-deleted account deleted.
func (s *Store) SoftDelete(ctx context.Context, id int64, actorID int64, at time.Time) (int64, error) {
	defer s.exclusive(ctx)()
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok || row.IsDeleted {
		return 0, nil
	}
	row.IsDeleted = true
	row.DeletedBy = &actorID
	row.DeletedAt = &at
	return 1, nil
}

// Raw returns a copy of the row with id including soft-deleted rows. It is
// intended for assertions in tests.
func (s *Store) Raw(id int64) (*account.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, false
	}
	return clone(row), true
}

func (s *Store) inTransaction(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// exclusive waits for any open transaction unless ctx belongs to it, and
// returns the matching release.
func (s *Store) exclusive(ctx context.Context) func() {
	if s.inTransaction(ctx) {
		return func() {}
	}
	s.txMu.Lock()
	return s.txMu.Unlock
}

func (s *Store) byEmailLocked(email string) *account.Account {
	want := account.NormalizeEmail(email)
	for _, row := range s.rows {
		if !row.IsDeleted && account.NormalizeEmail(row.Email) == want {
			return row
		}
	}
	return nil
}

func (s *Store) snapshot() (map[int64]*account.Account, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[int64]*account.Account, len(s.rows))
	for id, row := range s.rows {
		cp[id] = clone(row)
	}
	return cp, s.nextID
}

func (s *Store) restore(rows map[int64]*account.Account, nextID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
	s.nextID = nextID
}

func apply(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func clone(a *account.Account) *account.Account {
	cp := *a
	cp.ModifiedBy = clonePtr(a.ModifiedBy)
	cp.DeletedBy = clonePtr(a.DeletedBy)
	cp.ModifiedAt = clonePtr(a.ModifiedAt)
	cp.DeletedAt = clonePtr(a.DeletedAt)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
