// internal/types/errors.go
package types

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable machine-readable classification carried on every
// error the service reports. Values appear verbatim in error envelopes,
// so they never change once shipped.
type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindUnknownModel       Kind = "unknown_model"
	KindEmptyRequest       Kind = "empty_request"
	KindSessionNotFound    Kind = "session_not_found"
	KindUnknownTool        Kind = "unknown_tool"
	KindAuthentication     Kind = "authentication_error"
	KindRuntimeTimeout     Kind = "runtime_timeout"
	KindRuntimeUnavailable Kind = "runtime_unavailable"
	KindRuntimeProtocol    Kind = "runtime_protocol_error"
)

// Error pairs a kind with a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a classified error with a formatted message.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies an underlying error without losing it.
func WrapError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the classification from an error chain. Unclassified
// errors report as runtime protocol failures, the conservative bucket.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindRuntimeProtocol
}

// HTTPStatus maps a kind to the response status for the error envelope.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindUnknownModel, KindEmptyRequest, KindUnknownTool:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindSessionNotFound:
		return http.StatusNotFound
	case KindRuntimeTimeout, KindRuntimeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
