// Package apperr centralizes the error taxonomy used across Loom's core
// and the mapping from those errors to the
// uniform HTTP JSON envelope `{"error": "<code>", "message": "<text>"}`.
// Errors dispatch to HTTP status via errors.As/Is, generalized to the
// full taxonomy Loom's handlers need.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error code returned in the envelope's
// "error" field. Clients may match on these; they must not change meaning
// once shipped.
type Code string

const (
	CodeNotFound            Code = "not_found"
	CodeForbidden            Code = "forbidden"
	CodeUnauthorized         Code = "unauthorized"
	CodeInvalidID            Code = "invalid_id"
	CodeInvalidInput         Code = "invalid_input"
	CodeSlugExists           Code = "slug_exists"
	CodeSlugReserved         Code = "slug_reserved"
	CodeAlreadyMember        Code = "already_member"
	CodeLastOwner            Code = "last_owner"
	CodeLastMaintainer       Code = "last_maintainer"
	CodeInvitationInvalid    Code = "invitation_invalid"
	CodeInvalidSlugLength    Code = "invalid_slug_length"
	CodeInvalidSlugFormat    Code = "invalid_slug_format"
	CodeConflict             Code = "conflict"
	CodeRateLimited          Code = "rate_limited"
	CodeUpstreamUnavailable  Code = "upstream_unavailable"
	CodeInternal             Code = "internal_error"
)

// Error is the typed error carried through service layers. Handlers map it
// to an HTTP response via Respond/StatusFor. Validation/not-found/conflict
// errors are never retried by the system; transient upstream errors
// may be retried by callers that choose to.
type Error struct {
	Code    Code
	Message string
	Status  int
	// Err is the wrapped underlying cause, if any (for %w chains / logging).
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(code Code, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// NotFound builds a 404 error with the given human message.
func NotFound(message string) *Error { return newErr(CodeNotFound, http.StatusNotFound, message) }

// Forbidden builds a 403 error. Per, forbidden is always 403, never 404,
// and the message must stay generic regardless of whether the resource
// exists — callers should not interpolate resource details into message.
func Forbidden(rule string) *Error {
	return newErr(CodeForbidden, http.StatusForbidden, "you do not have permission to perform this action")
}

// Unauthorized builds a 401 error (missing/invalid credential).
func Unauthorized(message string) *Error {
	return newErr(CodeUnauthorized, http.StatusUnauthorized, message)
}

// InvalidInput builds a 400 error for a specific field/reason.
func InvalidInput(field, reason string) *Error {
	return newErr(CodeInvalidInput, http.StatusBadRequest, fmt.Sprintf("%s: %s", field, reason))
}

// InvalidID builds a 400 error for a malformed identifier.
func InvalidID(message string) *Error { return newErr(CodeInvalidID, http.StatusBadRequest, message) }

// Conflict builds a 409 error (version mismatch, duplicate slug, already-member).
func Conflict(code Code, message string) *Error {
	if code == "" {
		code = CodeConflict
	}
	return newErr(code, http.StatusConflict, message)
}

// RateLimited builds a 429 error.
func RateLimited(message string) *Error {
	return newErr(CodeRateLimited, http.StatusTooManyRequests, message)
}

// UpstreamUnavailable builds a 502 error wrapping a named upstream source.
func UpstreamUnavailable(source string, err error) *Error {
	return &Error{Code: CodeUpstreamUnavailable, Status: http.StatusBadGateway,
		Message: fmt.Sprintf("%s is unavailable", source), Err: err}
}

// StorageFailure builds a 500 error for a persistence-layer failure,
// preserving the underlying cause for logging (not for the client message).
func StorageFailure(requestID string, err error) *Error {
	msg := "internal error"
	if requestID != "" {
		msg = fmt.Sprintf("internal error (request_id=%s)", requestID)
	}
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: msg, Err: err}
}

// Internal builds a generic 500 error with a wrapped cause.
func Internal(context string, err error) *Error {
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: context, Err: err}
}

// As extracts an *Error from err, if any link in its chain is one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StatusAndBody renders the envelope body and HTTP status for any error,
// falling back to 500/internal_error for errors that never went through
// this package (e.g. a bare fmt.Errorf leaking out of a repository call).
func StatusAndBody(err error) (status int, body map[string]string) {
	if e, ok := As(err); ok {
		return e.Status, map[string]string{"error": string(e.Code), "message": e.Message}
	}
	return http.StatusInternalServerError, map[string]string{"error": string(CodeInternal), "message": "internal error"}
}
