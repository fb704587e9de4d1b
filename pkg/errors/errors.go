package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code classifies a failure for API clients. Handlers never pick HTTP
// statuses directly; they return a typed Error and the response writer maps
// its Code through Metadata.
type Code string

const (
	// CodeValidation covers malformed bodies, bad line items and out of range
	// tax rates or thresholds.
	CodeValidation Code = "VALIDATION_ERROR"
	// CodeUnauthorized means no valid bearer token for an org member.
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodeForbidden means the member's role lacks the permission.
	CodeForbidden Code = "FORBIDDEN"
	// CodeNotFound is also returned for records owned by another organization.
	CodeNotFound Code = "NOT_FOUND"
	// CodeConflict reports status transitions, duplicate PO numbers and
	// decisions on requests that are no longer pending.
	CodeConflict Code = "CONFLICT"
	// CodeGone marks an expired invoice upload link.
	CodeGone      Code = "GONE"
	CodeRateLimit Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal  Code = "INTERNAL_ERROR"
	// CodeDependency wraps database, Redis, storage and broker failures.
	CodeDependency Code = "DEPENDENCY_ERROR"
)

// Metadata is the public face of a Code. PublicMessage replaces the error's
// own message for codes whose messages may carry internal context.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:   {HTTPStatus: http.StatusBadRequest, PublicMessage: "request failed validation", DetailsAllowed: true},
	CodeUnauthorized: {HTTPStatus: http.StatusUnauthorized, PublicMessage: "a valid organization session is required"},
	CodeForbidden:    {HTTPStatus: http.StatusForbidden, PublicMessage: "your role does not permit this action"},
	CodeNotFound:     {HTTPStatus: http.StatusNotFound, PublicMessage: "record not found in this organization"},
	CodeConflict:     {HTTPStatus: http.StatusConflict, PublicMessage: "record is not in a state that allows this change", DetailsAllowed: true},
	CodeGone:         {HTTPStatus: http.StatusGone, PublicMessage: "upload link is no longer valid", DetailsAllowed: true},
	CodeRateLimit:    {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "too many requests, retry after the window resets"},
	CodeInternal:     {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "unexpected server error"},
	CodeDependency:   {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "a backing service is unavailable, retry shortly", DetailsAllowed: true},
}

// MetadataFor returns the mapping for code, falling back to CodeInternal.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded failure with an optional client-safe detail payload and an
// internal cause that is never serialized.
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

// WithDetails attaches a payload such as the failing fields, the current
// status or the expiry time. It is only emitted for codes that allow details.
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
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As finds the first typed Error in err's chain.
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

// IsCode reports whether err carries the provided typed code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
