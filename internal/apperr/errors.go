// Package apperr defines the typed error model shared by every transport
// surface of the auth service.
//
// Each recoverable failure carries a Kind that machine-routes the error on
// the wire (`{"error": {"type": ..., "message": ...}}`) and maps to an HTTP
// status or AMQP error reply. Store connectivity failures are deliberately
// not modelled here; they bubble up as plain errors and hit the generic
// internal-error path.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the category of a recoverable request failure.
type Kind string

const (
	// KindValidation groups aggregated field-level validation failures.
	KindValidation Kind = "ValidationError"
	// KindNotFound marks an absent entity. It intentionally also covers bad
	// credentials so that callers cannot enumerate usernames.
	KindNotFound Kind = "NotFoundError"
	// KindToken marks signature, expiry and refresh-token-mismatch failures.
	KindToken Kind = "TokenError"
	// KindAuthorization marks a missing authorization header.
	KindAuthorization Kind = "AuthorizationError"
	// KindHeader marks a malformed authorization header prefix.
	KindHeader Kind = "HeaderError"
)

// Error is the recoverable error type returned by the core services.
//
// Fields is populated only for KindValidation and holds the full aggregated
// map of field name to messages; validation never fails fast on the first
// broken field.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string][]string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %v", e.Kind, e.Fields)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an error of the given kind with a plain message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind that records its cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NotFound creates a NotFoundError with the given message.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Token creates a TokenError with the given message.
func Token(message string) *Error {
	return New(KindToken, message)
}

// Validation creates a ValidationError from an aggregated field error map.
func Validation(fields map[string][]string) *Error {
	return &Error{Kind: KindValidation, Fields: fields}
}

// AsError extracts an *Error from err, or nil when err is not one.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// Body is the wire form of an error: `{"type": ..., "message": ...}`.
//
// Message is a string for single-message errors and a field map for
// validation failures.
type Body struct {
	Type    Kind `json:"type"`
	Message any  `json:"message"`
}

// WireBody projects the error into its envelope body. Bare string messages
// gain a trailing period when they lack one, matching the service's
// historical wire contract.
func (e *Error) WireBody() Body {
	if len(e.Fields) > 0 {
		return Body{Type: e.Kind, Message: e.Fields}
	}
	message := e.Message
	if message != "" && !strings.HasSuffix(message, ".") {
		message += "."
	}
	return Body{Type: e.Kind, Message: message}
}

// FieldErrors accumulates validation failures per field and converts into a
// single aggregated ValidationError.
type FieldErrors map[string][]string

// Add appends a message to the named field.
func (f FieldErrors) Add(field, message string) {
	f[field] = append(f[field], message)
}

// Err returns the aggregated ValidationError, or nil when no field failed.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return Validation(f)
}
