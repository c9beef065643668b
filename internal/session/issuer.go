// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package session issues, verifies, refreshes and revokes signed session
// tokens. Tokens are self-contained; the only server-side state is the set
// of revoked token IDs.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/observability"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 12 * time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// MinSigningKeyLen is the minimum HMAC key length accepted.
const MinSigningKeyLen = 32

// Kind distinguishes access tokens from refresh tokens.
type Kind string

// Token kinds.
const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Sentinel errors; returned errors wrap one of these with an oops code.
var (
	ErrInvalid   = errors.New("session token invalid")
	ErrExpired   = errors.New("session token expired")
	ErrRevoked   = errors.New("session token revoked")
	ErrWrongKind = errors.New("session token has wrong kind")
)

// Claims is the signed payload of a session token.
type Claims struct {
	Kind  Kind `json:"kind"`
	Fresh bool `json:"fresh"`
	jwt.RegisteredClaims
}

// AccountID parses the subject claim.
func (c *Claims) AccountID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, oops.Code("SESSION_INVALID").With("subject", c.Subject).Wrap(ErrInvalid)
	}
	return id, nil
}

// TokenPair is issued on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Config holds the issuer settings.
type Config struct {
	SigningKey []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Issuer signs and verifies session tokens with HS256.
type Issuer struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	revoked    RevocationSet
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the clock used for issuing and verifying tokens.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// WithLogger sets the issuer logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Issuer) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewIssuer creates an Issuer. Zero TTLs take the defaults.
func NewIssuer(cfg Config, revoked RevocationSet, opts ...Option) (*Issuer, error) {
	if len(cfg.SigningKey) < MinSigningKeyLen {
		return nil, oops.Code("SESSION_CONFIG_INVALID").
			With("key_len", len(cfg.SigningKey)).
			Errorf("signing key must be at least %d bytes", MinSigningKeyLen)
	}
	if revoked == nil {
		return nil, oops.Code("SESSION_CONFIG_INVALID").Errorf("revocation set is required")
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, oops.Code("SESSION_CONFIG_INVALID").Errorf("token lifetimes must be positive")
	}

	i := &Issuer{
		key:        append([]byte(nil), cfg.SigningKey...),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		revoked:    revoked,
		now:        time.Now,
		logger:     slog.Default(),
	}
	if i.accessTTL == 0 {
		i.accessTTL = DefaultAccessTTL
	}
	if i.refreshTTL == 0 {
		i.refreshTTL = DefaultRefreshTTL
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// IssuePair issues a fresh access token and a refresh token for accountID.
func (i *Issuer) IssuePair(accountID int64) (TokenPair, error) {
	access, err := i.sign(accountID, KindAccess, true, i.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := i.sign(accountID, KindRefresh, false, i.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh exchanges a valid, unrevoked refresh token for a new non-fresh
// access token.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := i.Authenticate(ctx, refreshToken, KindRefresh)
	if err != nil {
		return "", err
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return "", err
	}
	return i.sign(accountID, KindAccess, false, i.accessTTL)
}

// Authenticate verifies raw and checks that it has the wanted kind and has
// not been revoked.
func (i *Issuer) Authenticate(ctx context.Context, raw string, want Kind) (*Claims, error) {
	claims, err := i.parse(raw)
	if err != nil {
		return nil, err
	}
	if claims.Kind != want {
		return nil, oops.Code("SESSION_WRONG_KIND").
			With("want", string(want)).
			With("got", string(claims.Kind)).
			Wrap(ErrWrongKind)
	}

	revoked, err := i.revoked.Contains(ctx, claims.ID)
	if err != nil {
		return nil, oops.Code("SESSION_REVOCATION_CHECK_FAILED").With("jti", claims.ID).Wrap(err)
	}
	if revoked {
		return nil, oops.Code("SESSION_REVOKED").With("jti", claims.ID).Wrap(ErrRevoked)
	}
	return claims, nil
}

// Revoke adds the token's ID to the revocation set until the token expires.
func (i *Issuer) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ID == "" {
		return oops.Code("SESSION_INVALID").Wrap(ErrInvalid)
	}
	until := i.now().Add(i.refreshTTL)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if err := i.revoked.Add(ctx, claims.ID, until); err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").With("jti", claims.ID).Wrap(err)
	}
	observability.RecordTokenRevoked()
	i.logger.DebugContext(ctx, "session token revoked", "jti", claims.ID, "kind", string(claims.Kind))
	return nil
}

func (i *Issuer) sign(accountID int64, kind Kind, fresh bool, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		Kind:  kind,
		Fresh: fresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   strconv.FormatInt(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        ulid.Make().String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", oops.Code("SESSION_SIGN_FAILED").With("kind", string(kind)).Wrap(err)
	}
	observability.RecordTokenIssued(string(kind))
	return signed, nil
}

func (i *Issuer) parse(raw string) (*Claims, error) {
	if raw == "" {
		return nil, oops.Code("SESSION_INVALID").Wrap(ErrInvalid)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	}, opts...)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, oops.Code("SESSION_EXPIRED").Wrap(errors.Join(ErrExpired, err))
	}
	if err != nil {
		return nil, oops.Code("SESSION_INVALID").Wrap(errors.Join(ErrInvalid, err))
	}
	if claims.ID == "" {
		return nil, oops.Code("SESSION_INVALID").With("reason", "missing jti").Wrap(ErrInvalid)
	}
	return claims, nil
}
