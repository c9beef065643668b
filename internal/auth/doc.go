// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements the credential-facing account flows: login,
// token refresh, logout, and the forgot/reset password exchange.
//
// Service composes the account store, the account lifecycle service, the
// session token issuer and the reset token issuer. Like account.Service it
// reports every outcome as an account.Result and never returns errors.
package auth
