// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/holomush/accounts/internal/account"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code account.Code
		want int
	}{
		{account.CodeSuccess, http.StatusOK},
		{account.CodeNoChanges, http.StatusOK},
		{account.CodeInternal, http.StatusInternalServerError},
		{account.CodeMissingInput, http.StatusBadRequest},
		{account.CodeValidationError, http.StatusBadRequest},
		{account.CodeNotFound, http.StatusNotFound},
		{account.CodeExpired, http.StatusUnauthorized},
		{account.CodeHashFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(account.Result{Code: tt.code}))
		})
	}
}

func TestStatusOverrides(t *testing.T) {
	assert.Equal(t, http.StatusCreated, created(account.Success("", nil)))
	assert.Equal(t, http.StatusBadRequest, created(account.Failure(account.CodeConflict, "")))

	for _, code := range []account.Code{account.CodeNotFound, account.CodeValidationError, account.CodeMissingInput, account.CodeInternal} {
		assert.Equal(t, http.StatusOK, inBody(account.Failure(code, "")), code.String())
	}

	assert.Equal(t, http.StatusUnauthorized, unauthorizedOnFailure(account.Failure(account.CodeNotFound, "")))
	assert.Equal(t, http.StatusUnauthorized, unauthorizedOnFailure(account.Failure(account.CodeExpired, "")))
	assert.Equal(t, http.StatusBadRequest, unauthorizedOnFailure(account.Failure(account.CodeMissingInput, "")))

	assert.Equal(t, http.StatusBadRequest, badRequestOnFailure(account.Failure(account.CodeNotFound, "")))
	assert.Equal(t, http.StatusBadRequest, badRequestOnFailure(account.Failure(account.CodeExpired, "")))
	assert.Equal(t, http.StatusInternalServerError, badRequestOnFailure(account.Failure(account.CodeInternal, "")))
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"Bearer":       "",
		"Basic abc":    "",
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"BEARER a.b.c": "a.b.c",
		"Bearerabc":    "",
	}
	for header, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		assert.Equal(t, want, bearerToken(req), header)
	}
}
