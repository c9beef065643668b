// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package account manages the lifecycle of user accounts: signup, profile
// reads, field updates and soft deletion.
package account

import (
	"strings"
	"time"
)

// SelfRegistration is the actor ID recorded for accounts created by their
// own holder rather than by another account.
const SelfRegistration int64 = 0

// Account is the persisted user record.
type Account struct {
	ID           int64
	FirstName    string
	LastName     string
	FullName     string
	Location     string
	Email        string
	PasswordHash string
	CreatedBy    int64
	ModifiedBy   *int64
	DeletedBy    *int64
	CreatedAt    time.Time
	ModifiedAt   *time.Time
	DeletedAt    *time.Time
	IsActive     bool
	IsDeleted    bool
}

// Profile is the single-account read projection. It never carries the
// credential hash.
type Profile struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
}

// Summary is the list projection.
type Summary struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Location  string `json:"location"`
}

// Profile returns the read projection of a.
func (a *Account) Profile() Profile {
	return Profile{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		FullName:  a.FullName,
		Email:     a.Email,
		Location:  a.Location,
		CreatedAt: a.CreatedAt,
		IsActive:  a.IsActive,
	}
}

// Summary returns the list projection of a.
func (a *Account) Summary() Summary {
	return Summary{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Location:  a.Location,
	}
}

// FullNameOf joins first and last name with a single space.
func FullNameOf(first, last string) string {
	return first + " " + last
}

// NormalizeEmail returns the form used for uniqueness comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(email)
}
