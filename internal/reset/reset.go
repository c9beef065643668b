// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package reset issues and validates stateless password reset tokens.
//
// A reset token is an HS256 JWT carrying the account email and its issue
// time, signed with a key derived from the service secret and the reset
// purpose so it can never be confused with a session token. Tokens are not
// stored; they stop working once older than the maximum age.
package reset

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Purpose separates reset tokens from every other token signed with the
// same secret.
const Purpose = "pw-reset"

// DefaultMaxAge is how long a reset token stays valid.
const DefaultMaxAge = time.Hour

// MinSecretLen is the minimum secret length accepted.
const MinSecretLen = 32

// maxClockSkew tolerates issuers whose clocks run slightly ahead.
const maxClockSkew = time.Minute

// Sentinel errors; returned errors wrap one of these with an oops code.
var (
	ErrInvalid = errors.New("reset token invalid")
	ErrExpired = errors.New("reset token expired")
)

// Claims is the signed payload of a reset token.
type Claims struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Issuer signs and validates reset tokens.
type Issuer struct {
	key    []byte
	maxAge time.Duration
	now    func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithMaxAge overrides the token lifetime. Non-positive values are ignored.
func WithMaxAge(d time.Duration) Option {
	return func(i *Issuer) {
		if d > 0 {
			i.maxAge = d
		}
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer creates an Issuer keyed from secret.
func NewIssuer(secret []byte, opts ...Option) (*Issuer, error) {
	if len(secret) < MinSecretLen {
		return nil, oops.Code("RESET_CONFIG_INVALID").
			With("secret_len", len(secret)).
			Errorf("reset secret must be at least %d bytes", MinSecretLen)
	}
	i := &Issuer{
		key:    deriveKey(secret),
		maxAge: DefaultMaxAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// MaxAge returns the configured token lifetime.
func (i *Issuer) MaxAge() time.Duration {
	return i.maxAge
}

// Issue returns a reset token for email.
func (i *Issuer) Issue(email string) (string, error) {
	if email == "" {
		return "", oops.Code("RESET_EMAIL_REQUIRED").Errorf("email is required")
	}
	claims := Claims{
		Email:   email,
		Purpose: Purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(i.now()),
			ID:       ulid.Make().String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", oops.Code("RESET_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Validate returns the email carried by token. A bad signature or malformed
// token yields RESET_TOKEN_INVALID; a well-signed token older than the
// maximum age yields RESET_TOKEN_EXPIRED.
func (i *Issuer) Validate(token string) (string, error) {
	if token == "" {
		return "", oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalid)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		// Age is checked below so expiry is distinguishable from tampering.
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", oops.Code("RESET_TOKEN_INVALID").Wrap(errors.Join(ErrInvalid, err))
	}
	if claims.Purpose != Purpose || claims.Email == "" || claims.IssuedAt == nil {
		return "", oops.Code("RESET_TOKEN_INVALID").With("purpose", claims.Purpose).Wrap(ErrInvalid)
	}

	now := i.now()
	issued := claims.IssuedAt.Time
	if issued.After(now.Add(maxClockSkew)) {
		return "", oops.Code("RESET_TOKEN_INVALID").With("issued_at", issued).Wrap(ErrInvalid)
	}
	if now.Sub(issued) > i.maxAge {
		return "", oops.Code("RESET_TOKEN_EXPIRED").
			With("issued_at", issued).
			With("max_age", i.maxAge.String()).
			Wrap(ErrExpired)
	}
	return claims.Email, nil
}

// deriveKey binds the signing key to Purpose.
func deriveKey(secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(Purpose))
	return mac.Sum(nil)
}
