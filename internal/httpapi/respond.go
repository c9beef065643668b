// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/holomush/accounts/internal/account"
)

// Messages for failures raised by the transport itself.
const (
	MsgInvalidBody      = "Malformed request body"
	MsgInvalidID        = "Invalid user id"
	MsgUnauthorized     = "Missing or invalid token"
	MsgRouteNotFound    = "Route not found"
	MsgMethodNotAllowed = "Method not allowed"
)

// statusFor maps a result code to an HTTP status.
func statusFor(res account.Result) int {
	switch res.Code {
	case account.CodeSuccess, account.CodeNoChanges:
		return http.StatusOK
	case account.CodeMissingInput, account.CodeValidationError:
		return http.StatusBadRequest
	case account.CodeNotFound:
		return http.StatusNotFound
	case account.CodeExpired:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// created maps success to 201.
func created(res account.Result) int {
	if res.OK() {
		return http.StatusCreated
	}
	return statusFor(res)
}

// inBody answers 200 for every result. Callers read the outcome from the
// result code.
func inBody(account.Result) int {
	return http.StatusOK
}

// unauthorizedOnFailure maps client failures to 401 for flows where any
// rejected credential must look the same.
func unauthorizedOnFailure(res account.Result) int {
	switch res.Code {
	case account.CodeNotFound, account.CodeExpired:
		return http.StatusUnauthorized
	default:
		return statusFor(res)
	}
}

// badRequestOnFailure maps token failures to 400.
func badRequestOnFailure(res account.Result) int {
	switch res.Code {
	case account.CodeNotFound, account.CodeExpired:
		return http.StatusBadRequest
	default:
		return statusFor(res)
	}
}

func writeResult(w http.ResponseWriter, _ *http.Request, status int, res account.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res) //nolint:errcheck // client went away
}

// decode reads a JSON body into dst. Unknown fields are rejected.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON body")
	}
	return nil
}
