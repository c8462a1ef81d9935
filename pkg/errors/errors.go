package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
	CodeTimeout       Code = "TIMEOUT"
	CodeStorage       Code = "STORAGE_ERROR"
)

// Metadata describes how a code is surfaced over the local HTTP API and
// whether a delivery that failed with it may be attempted again.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// Remote responses are mapped onto the same codes, so Retryable here is the
// upload queue's transient/permanent split.
var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, false, "invalid draft input", true},
	CodeUnauthorized:  {http.StatusUnauthorized, false, "remote rejected credentials", false},
	CodeForbidden:     {http.StatusForbidden, false, "remote denied access", false},
	CodeNotFound:      {http.StatusNotFound, false, "not found", false},
	CodeConflict:      {http.StatusConflict, false, "conflicting request", false},
	CodeStateConflict: {http.StatusUnprocessableEntity, false, "draft state does not allow this", true},
	CodeIdempotency:   {http.StatusConflict, false, "client id already delivered", true},
	CodeRateLimit:     {http.StatusTooManyRequests, true, "remote rate limited", false},
	CodeInternal:      {http.StatusInternalServerError, true, "internal error", false},
	CodeDependency:    {http.StatusServiceUnavailable, true, "remote unavailable", true},
	CodeTimeout:       {http.StatusGatewayTimeout, true, "remote timed out", false},
	CodeStorage:       {http.StatusInternalServerError, false, "local storage failure", false},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error. The message is safe to show locally; the cause
// is only logged.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Retryable reports whether the code attached to err allows another attempt.
func (e *Error) Retryable() bool {
	return MetadataFor(e.Code()).Retryable
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether any typed error in the chain carries code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
