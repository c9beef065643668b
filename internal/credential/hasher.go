// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// argon2Params are the cost settings recorded in every argon2id hash.
type argon2Params struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
	keyLen  uint32
}

// defaultArgon2 follows the OWASP argon2id baseline.
var defaultArgon2 = argon2Params{memory: 64 * 1024, time: 1, threads: 4, keyLen: 32}

const (
	argon2SaltLen = 16
	argon2Prefix  = "$argon2id$"
	maxArgon2Key  = 1 << 10
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("CREDENTIAL_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces the stored form of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash should be replaced by a fresh Hash call.
	NeedsUpgrade(hash string) bool
}

var (
	_ PasswordHasher = (*Argon2idHasher)(nil)
	_ PasswordHasher = (*KeystreamHasher)(nil)
	_ PasswordHasher = (*UpgradingHasher)(nil)
)

// weaker reports whether p costs less than want on any axis.
func (p argon2Params) weaker(want argon2Params) bool {
	return p.memory < want.memory || p.time < want.time ||
		p.threads < want.threads || p.keyLen < want.keyLen
}

func (p argon2Params) derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLen)
}

// argon2Hash is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type argon2Hash struct {
	params argon2Params
	salt   []byte
	key    []byte
}

func (a argon2Hash) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version,
		a.params.memory, a.params.time, a.params.threads,
		base64.RawStdEncoding.EncodeToString(a.salt),
		base64.RawStdEncoding.EncodeToString(a.key),
	)
}

func parseArgon2Hash(encoded string) (argon2Hash, error) {
	invalid := oops.Code("CREDENTIAL_INVALID_HASH")

	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return argon2Hash{}, invalid.Errorf("invalid hash format")
	}
	if fields[1] != "argon2id" {
		return argon2Hash{}, invalid.Errorf("unsupported hash algorithm: %s", fields[1])
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return argon2Hash{}, invalid.Wrap(err)
	}
	if version != argon2.Version {
		return argon2Hash{}, invalid.With("version", version).Errorf("unsupported argon2 version %d", version)
	}

	var (
		p       argon2Params
		threads uint32
	)
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &threads); err != nil {
		return argon2Hash{}, invalid.Wrap(err)
	}
	if threads == 0 || threads > math.MaxUint8 {
		return argon2Hash{}, invalid.Errorf("threads value %d out of range", threads)
	}
	if p.time == 0 {
		return argon2Hash{}, invalid.Errorf("time cost must be positive")
	}
	p.threads = uint8(threads)

	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return argon2Hash{}, invalid.With("field", "salt").Wrap(err)
	}
	key, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil {
		return argon2Hash{}, invalid.With("field", "key").Wrap(err)
	}
	if len(key) == 0 || len(key) > maxArgon2Key {
		return argon2Hash{}, invalid.Errorf("invalid hash key length: %d", len(key))
	}
	p.keyLen = uint32(len(key))

	return argon2Hash{params: p, salt: salt, key: key}, nil
}

// Argon2idHasher hashes with argon2id under fixed cost parameters.
type Argon2idHasher struct {
	params argon2Params
}

// NewArgon2idHasher creates an Argon2idHasher with the default cost.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: defaultArgon2}
}

// Hash produces a salted argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("CREDENTIAL_SALT_FAILED").Wrap(err)
	}
	return argon2Hash{params: h.params, salt: salt, key: h.params.derive(password, salt)}.String(), nil
}

// Verify recomputes the key with the salt and cost recorded in
// encodedHash and compares it in constant time.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	stored, err := parseArgon2Hash(encodedHash)
	if err != nil {
		return false, err
	}
	computed := stored.params.derive(password, stored.salt)
	return subtle.ConstantTimeCompare(computed, stored.key) == 1, nil
}

// NeedsUpgrade reports true for hashes that are not argon2id, cannot be
// parsed, or were made with a lower cost than this hasher uses.
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	stored, err := parseArgon2Hash(hash)
	return err != nil || stored.params.weaker(h.params)
}

// IsArgon2idHash reports whether hash is in argon2id PHC form.
func IsArgon2idHash(hash string) bool {
	return strings.HasPrefix(hash, argon2Prefix)
}

// UpgradingHasher hashes with Primary and verifies hashes produced by either
// Primary or Legacy. Hashes not in argon2id form are routed to Legacy and
// reported by NeedsUpgrade.
type UpgradingHasher struct {
	Primary *Argon2idHasher
	Legacy  PasswordHasher
}

// NewUpgradingHasher creates an UpgradingHasher. legacy must not be nil.
func NewUpgradingHasher(legacy PasswordHasher) (*UpgradingHasher, error) {
	if legacy == nil {
		return nil, oops.Errorf("legacy hasher is required")
	}
	return &UpgradingHasher{Primary: NewArgon2idHasher(), Legacy: legacy}, nil
}

// Hash produces an argon2id hash.
func (h *UpgradingHasher) Hash(password string) (string, error) {
	return h.Primary.Hash(password)
}

// Verify dispatches on the hash form.
func (h *UpgradingHasher) Verify(password, hash string) (bool, error) {
	if IsArgon2idHash(hash) {
		return h.Primary.Verify(password, hash)
	}
	return h.Legacy.Verify(password, hash)
}

// NeedsUpgrade returns true for legacy hashes and for argon2id hashes the
// primary hasher would now make stronger.
func (h *UpgradingHasher) NeedsUpgrade(hash string) bool {
	return h.Primary.NeedsUpgrade(hash)
}
