// Package domainerrors provides coded domain errors shared by services and
// the HTTP layer. Services attach a Code so transports can map failures to
// responses without string matching; callers test with HasCode. Import as
// dErrors by convention.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error. The set is closed: every failure a service
// can surface maps to exactly one code.
type Code string

const (
	// Generic codes.
	CodeInvalidInput       Code = "invalid_input"
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_failed"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeInternal           Code = "internal_error"
	CodeInvariantViolation Code = "invariant_violation"

	// State-precondition codes for the trust engine. These correspond to
	// rejected operations, not trust-decision outcomes (outcomes are result
	// variants, never errors).
	CodeIdentityNotApproved Code = "identity_not_approved"
	CodeAlreadyApproved     Code = "already_approved"
	CodeMissingRemarks      Code = "missing_remarks"
	CodeNoPrivateKey        Code = "no_private_key"
)

// Error is a coded domain error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with a human-readable message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap annotates an underlying error with a code and message. The cause stays
// reachable through errors.Is / errors.As.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, cause: cause}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is mirrors errors.Is so callers don't need both imports.
func Is(err, target error) bool { return errors.Is(err, target) }

// CodeOf extracts the code from err, defaulting to CodeInternal for uncoded
// errors so infrastructure failures never leak detail to clients.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the message from err. Empty for uncoded errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// ToHTTPStatus maps a code to the HTTP status the transport layer should emit.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeBadRequest, CodeValidation, CodeMissingRemarks:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeAlreadyApproved:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeIdentityNotApproved, CodeNoPrivateKey:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
