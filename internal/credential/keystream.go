// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/hex"

	"github.com/samber/oops"
)

// KeystreamHasher encodes passwords as hex(AES-CTR(key, iv, password)).
//
// The key and counter block are fixed for the life of the process, so the
// output is deterministic and reversible by anyone holding the key. It exists
// to verify credentials stored by deployments that predate argon2id; new
// deployments should wrap it in an UpgradingHasher.
type KeystreamHasher struct {
	block cipher.Block
	iv    []byte
}

// NewKeystreamHasher creates a KeystreamHasher. key must be 16, 24 or 32
// bytes and iv must be one AES block.
func NewKeystreamHasher(key, iv []byte) (*KeystreamHasher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, oops.Code("CREDENTIAL_KEY_INVALID").With("key_len", len(key)).Wrap(err)
	}
	if len(iv) != aes.BlockSize {
		return nil, oops.Code("CREDENTIAL_IV_INVALID").
			With("iv_len", len(iv)).
			Errorf("iv must be %d bytes", aes.BlockSize)
	}
	ivCopy := make([]byte, len(iv))
	copy(ivCopy, iv)
	return &KeystreamHasher{block: block, iv: ivCopy}, nil
}

// Hash returns the hex keystream encoding of password.
func (h *KeystreamHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	// A fresh stream per call; cipher.Stream is stateful.
	stream := cipher.NewCTR(h.block, h.iv)
	out := make([]byte, len(password))
	stream.XORKeyStream(out, []byte(password))
	return hex.EncodeToString(out), nil
}

// Verify recomputes the encoding of password and compares it in constant time.
func (h *KeystreamHasher) Verify(password, hash string) (bool, error) {
	if _, err := hex.DecodeString(hash); err != nil {
		return false, oops.Code("CREDENTIAL_INVALID_HASH").Wrap(err)
	}
	if password == "" {
		return false, nil
	}
	computed, err := h.Hash(password)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1, nil
}

// NeedsUpgrade always returns false; when the keystream scheme is the
// configured scheme there is nothing to upgrade to.
func (h *KeystreamHasher) NeedsUpgrade(string) bool {
	return false
}
