// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import "errors"

// ErrNotFound is returned when no non-deleted account matches.
var ErrNotFound = errors.New("account not found")

// ErrEmailTaken is returned when a write would give two non-deleted
// accounts the same email.
var ErrEmailTaken = errors.New("email already in use")
