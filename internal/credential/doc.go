// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package credential holds the rules an account's email and password must
// satisfy and the hashers that turn a password into a stored credential.
//
// # Policy
//
// Policy is pure apart from the DNS lookup used by ValidateEmail. The lookup
// goes through an injected Resolver so tests never touch the network, and any
// resolver failure is treated as an invalid address.
//
// # Hashers
//
// Three PasswordHasher implementations are provided:
//   - Argon2idHasher - salted argon2id in PHC string form (default)
//   - KeystreamHasher - deterministic AES-CTR hex encoding kept for rows
//     written by older deployments
//   - UpgradingHasher - hashes with a primary hasher and verifies legacy
//     credentials so they can be re-hashed on the next login
package credential
