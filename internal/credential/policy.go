// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package credential

import (
	"context"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// MinPasswordLength is the minimum number of characters in a password.
const MinPasswordLength = 8

// DefaultLookupTimeout bounds the DNS lookup performed by ValidateEmail.
const DefaultLookupTimeout = 3 * time.Second

// Password rejection reasons, in the order the rules are checked.
const (
	ReasonTooShort   = "Password must be at least 8 characters long."
	ReasonTooCommon  = "Password is too common. Choose a stronger password."
	ReasonNoUpper    = "Password must contain at least one uppercase letter."
	ReasonNoLower    = "Password must contain at least one lowercase letter."
	ReasonNoDigit    = "Password must contain at least one digit."
	ReasonNoSpecial  = "Password must contain at least one special character."
	ReasonBadAddress = "Invalid or unreachable email domain."
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// reservedDomains never receive mail and are rejected without a lookup.
var reservedDomains = map[string]struct{}{
	"example.com": {},
	"example.net": {},
	"example.org": {},
	"localhost":   {},
	"test":        {},
	"invalid":     {},
}

var weakPasswords = map[string]struct{}{
	"password": {},
	"123456":   {},
	"12345678": {},
	"qwerty":   {},
	"abc123":   {},
	"111111":   {},
	"123123":   {},
	"admin":    {},
	"letmein":  {},
	"welcome":  {},
}

// Resolver resolves a host name. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Policy validates email addresses and password strength.
type Policy struct {
	resolver Resolver
	timeout  time.Duration
	logger   *slog.Logger
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithResolver sets the resolver used for domain lookups.
func WithResolver(r Resolver) PolicyOption {
	return func(p *Policy) {
		if r != nil {
			p.resolver = r
		}
	}
}

// WithLookupTimeout sets the per-lookup DNS timeout. Non-positive values are ignored.
func WithLookupTimeout(d time.Duration) PolicyOption {
	return func(p *Policy) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the logger lookup failures are reported to.
func WithLogger(l *slog.Logger) PolicyOption {
	return func(p *Policy) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPolicy creates a Policy using the system resolver unless overridden.
func NewPolicy(opts ...PolicyOption) *Policy {
	p := &Policy{
		resolver: net.DefaultResolver,
		timeout:  DefaultLookupTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ValidateEmail reports whether candidate is shaped like local@domain.tld,
// its domain is not reserved, and the domain resolves. Lookup failures of
// any kind yield false.
func (p *Policy) ValidateEmail(ctx context.Context, candidate string) bool {
	if !emailPattern.MatchString(candidate) {
		return false
	}

	domain := strings.ToLower(candidate[strings.LastIndexByte(candidate, '@')+1:])
	if _, reserved := reservedDomains[domain]; reserved {
		return false
	}

	lookupCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addrs, err := p.resolver.LookupHost(lookupCtx, domain)
	if err != nil {
		p.logger.DebugContext(ctx, "email domain lookup failed", "domain", domain, "error", err)
		return false
	}
	return len(addrs) > 0
}

// ValidatePassword reports whether candidate meets the strength rules. On
// rejection the reason names the first rule violated.
func (p *Policy) ValidatePassword(candidate string) (bool, string) {
	return ValidatePassword(candidate)
}

// ValidatePassword applies the password strength rules without a Policy.
func ValidatePassword(candidate string) (bool, string) {
	if utf8.RuneCountInString(candidate) < MinPasswordLength {
		return false, ReasonTooShort
	}
	if _, weak := weakPasswords[strings.ToLower(candidate)]; weak {
		return false, ReasonTooCommon
	}

	var upper, lower, digit, special bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}

	switch {
	case !upper:
		return false, ReasonNoUpper
	case !lower:
		return false, ReasonNoLower
	case !digit:
		return false, ReasonNoDigit
	case !special:
		return false, ReasonNoSpecial
	}
	return true, ""
}
