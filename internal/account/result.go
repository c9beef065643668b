// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

// Code is the numeric outcome of a service operation.
type Code int

// Result codes shared by every service boundary.
const (
	CodeSuccess         Code = 9999
	CodeInternal        Code = 9998
	CodeMissingInput    Code = 9997
	CodeNotFound        Code = 9996
	CodeExpired         Code = 9995
	CodeNoChanges       Code = 9994
	CodeHashFailed      Code = 9992
	CodeValidationError Code = 9991
)

// Conflict and missing input share a code.
const CodeConflict = CodeMissingInput

// String returns the code's label for metrics and logs.
func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeInternal:
		return "internal"
	case CodeMissingInput:
		return "missing_or_conflict"
	case CodeNotFound:
		return "not_found"
	case CodeExpired:
		return "expired"
	case CodeNoChanges:
		return "no_changes"
	case CodeHashFailed:
		return "hash_failed"
	case CodeValidationError:
		return "validation_failed"
	default:
		return "unknown"
	}
}

// Result is returned by every service operation in place of an error.
type Result struct {
	Code    Code              `json:"code"`
	Message string            `json:"message,omitempty"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool {
	return r.Code == CodeSuccess
}

// Success builds a success result.
func Success(message string, data any) Result {
	return Result{Code: CodeSuccess, Message: message, Data: data}
}

// Failure builds a failure result with a message.
func Failure(code Code, message string) Result {
	return Result{Code: code, Message: message}
}

// Invalid builds a validation failure carrying per-field errors.
func Invalid(message string, fieldErrors map[string]string) Result {
	return Result{Code: CodeValidationError, Message: message, Errors: fieldErrors}
}

// Messages used in results.
const (
	MsgRequiredFields = "All fields are required"
	MsgEmailTaken     = "Email already exists"
	MsgHashFailed     = "Password encryption failed."
	MsgSignedUp       = "User saved successfully"
	MsgNotFound       = "User not found"
	MsgDeleteNotFound = "User not found or already deleted"
	MsgDeleted        = "User deleted successfully"
	MsgUpdated        = "User updated successfully"
	MsgNoChanges      = "No changes detected"
	MsgInvalidFields  = "Invalid fields"
	MsgInternal       = "Internal server error"
	MsgInvalidActor   = "Invalid acting user"
	MsgUserFetched    = "User fetched successfully"
	MsgUsersFetched   = "Users fetched successfully"
)
