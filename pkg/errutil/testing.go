// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
)

// TB is the subset of testing.TB the assertions need.
type TB interface {
	Helper()
	Errorf(format string, args ...any)
}

// AssertErrorCode asserts that err carries the oops code code anywhere in
// its chain. The failure message includes the code that was found.
func AssertErrorCode(t TB, err error, code string) bool {
	t.Helper()
	if !assert.Error(t, err, "expected an error coded %s", code) {
		return false
	}
	return assert.Equal(t, code, Code(err), "unexpected code for error: %v", err)
}

// AssertErrorContext asserts that err carries key in its oops context with
// the given value.
func AssertErrorContext(t TB, err error, key string, value any) bool {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	if !assert.True(t, ok, "expected oops error, got %T", err) {
		return false
	}
	attrs := oopsErr.Context()
	got, found := attrs[key]
	if !assert.True(t, found, "context has no %q: %v", key, attrs) {
		return false
	}
	return assert.Equal(t, value, got)
}
