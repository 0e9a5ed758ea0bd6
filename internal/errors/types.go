// Package errors defines the structured error type shared by the volki
// packages. Every error carries a Kind that maps onto exactly one HTTP
// status, so the connection layer can turn any failure into a response
// without inspecting message text.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error at the core boundary.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindBadRequest
	KindURITooLong
	KindPayloadTooLarge
	KindNotImplemented
	KindRequestTimeout
	KindNoRoute
	KindMethodNotAllowed
	KindBadPattern
	KindHandlerFailed
	KindIOClosed
	KindHeaderFieldsTooLarge
	KindTooManyRequests
	KindConfig
)

var kindNames = [...]string{
	KindUnknown:              "unknown",
	KindBadRequest:           "bad_request",
	KindURITooLong:           "uri_too_long",
	KindPayloadTooLarge:      "payload_too_large",
	KindNotImplemented:       "not_implemented",
	KindRequestTimeout:       "request_timeout",
	KindNoRoute:              "no_route",
	KindMethodNotAllowed:     "method_not_allowed",
	KindBadPattern:           "bad_pattern",
	KindHandlerFailed:        "handler_failed",
	KindIOClosed:             "io_closed",
	KindHeaderFieldsTooLarge: "header_fields_too_large",
	KindTooManyRequests:      "too_many_requests",
	KindConfig:               "config",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return "unknown"
}

// Status returns the HTTP status code a client sees for this kind.
// Oversized header blocks surface as a plain 400.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest, KindHeaderFieldsTooLarge:
		return 400
	case KindURITooLong:
		return 414
	case KindPayloadTooLarge:
		return 413
	case KindNotImplemented:
		return 501
	case KindRequestTimeout:
		return 408
	case KindNoRoute:
		return 404
	case KindMethodNotAllowed:
		return 405
	case KindTooManyRequests:
		return 429
	default:
		return 500
	}
}

// Error is the structured error used across volki.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
	File    string
	Context map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, e.Op+":")
	}

	if e.File != "" {
		parts = append(parts, e.File+":")
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else {
		parts = append(parts, strings.ReplaceAll(e.Kind.String(), "_", " "))
	}

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports kind equality, so sentinels match any error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}

	return false
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value

	return e
}

// WithFile records the file the error refers to.
func (e *Error) WithFile(file string) *Error {
	e.File = file

	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrBadRequest           = &Error{Kind: KindBadRequest}
	ErrURITooLong           = &Error{Kind: KindURITooLong}
	ErrPayloadTooLarge      = &Error{Kind: KindPayloadTooLarge}
	ErrNotImplemented       = &Error{Kind: KindNotImplemented}
	ErrRequestTimeout       = &Error{Kind: KindRequestTimeout}
	ErrNoRoute              = &Error{Kind: KindNoRoute}
	ErrMethodNotAllowed     = &Error{Kind: KindMethodNotAllowed}
	ErrBadPattern           = &Error{Kind: KindBadPattern}
	ErrHandlerFailed        = &Error{Kind: KindHandlerFailed}
	ErrIOClosed             = &Error{Kind: KindIOClosed}
	ErrHeaderFieldsTooLarge = &Error{Kind: KindHeaderFieldsTooLarge}
	ErrTooManyRequests      = &Error{Kind: KindTooManyRequests}
	ErrConfig               = &Error{Kind: KindConfig}
)

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps cause with a kind and message. A nil cause yields nil.
func Wrap(kind Kind, op string, cause error, message string) error {
	if cause == nil {
		return nil
	}

	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

// ContextValue returns a context value from the first *Error in err's chain.
func ContextValue(err error, key string) string {
	var e *Error
	if errors.As(err, &e) && e.Context != nil {
		return e.Context[key]
	}

	return ""
}

// Is and As re-export the standard library helpers so callers importing
// this package do not need both.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
