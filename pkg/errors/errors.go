// Package errors provides structured error handling for the server. It
// defines an error type that carries a machine-readable kind mapped to a
// JSON-RPC error code, so every failure path resolves to exactly one
// correlated error response.
package errors

import (
	"errors"
	"fmt"

	"github.com/pgexec/postgres-mcp/pkg/protocol"
)

// Kind classifies an error for protocol-level handling and diagnostics.
type Kind string

const (
	KindMalformedRequest  Kind = "malformed_request"
	KindNotInitialized    Kind = "not_initialized"
	KindUnknownMethod     Kind = "unknown_method"
	KindUnknownTool       Kind = "unknown_tool"
	KindInvalidParameters Kind = "invalid_parameters"
	KindConnectionLost    Kind = "connection_lost"
	KindEngineRejected    Kind = "engine_rejected"
	KindInternal          Kind = "internal"
)

// kindCodes maps each kind to the JSON-RPC code it is reported under.
var kindCodes = map[Kind]protocol.ErrorCode{
	KindMalformedRequest:  protocol.ParseError,
	KindNotInitialized:    protocol.NotInitialized,
	KindUnknownMethod:     protocol.MethodNotFound,
	KindUnknownTool:       protocol.InvalidParams,
	KindInvalidParameters: protocol.InvalidParams,
	KindConnectionLost:    protocol.ExecutionError,
	KindEngineRejected:    protocol.ExecutionError,
	KindInternal:          protocol.InternalError,
}

// Error is the structured error used throughout the server.
type Error struct {
	kind    Kind
	message string
	detail  string
	cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.detail != "" {
		return fmt.Sprintf("%s: %s", e.message, e.detail)
	}
	return e.message
}

// Kind returns the error classification
func (e *Error) Kind() Kind {
	return e.kind
}

// Code returns the JSON-RPC error code for the kind
func (e *Error) Code() protocol.ErrorCode {
	if code, ok := kindCodes[e.kind]; ok {
		return code
	}
	return protocol.InternalError
}

// Message returns the caller-facing error message
func (e *Error) Message() string {
	return e.message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetail returns a copy of the error with additional diagnostic detail.
// Detail is for the diagnostic channel; the caller-facing message is Message.
func (e *Error) WithDetail(detail string) *Error {
	out := *e
	if out.detail != "" {
		out.detail = fmt.Sprintf("%s; %s", out.detail, detail)
	} else {
		out.detail = detail
	}
	return &out
}

// New creates an error with the given kind and message
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Newf creates an error with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an underlying error under the given kind
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{kind: kind, message: message, cause: err}
}

// MalformedRequest creates an error for undecodable messages
func MalformedRequest(cause error) *Error {
	return &Error{
		kind:    KindMalformedRequest,
		message: "Parse error",
		cause:   cause,
	}
}

// SessionNotInitialized creates an error for tool calls before the handshake
func SessionNotInitialized(method string) *Error {
	return Newf(KindNotInitialized, "Method %s requires an initialized session", method)
}

// AlreadyInitialized creates an error for repeated handshake attempts
func AlreadyInitialized() *Error {
	return New(KindNotInitialized, "Session already initialized")
}

// UnknownMethod creates an error for unregistered methods
func UnknownMethod(method string) *Error {
	return Newf(KindUnknownMethod, "Method %s not found", method)
}

// UnknownTool creates an error for unregistered tool names
func UnknownTool(name string) *Error {
	return Newf(KindUnknownTool, "Unknown tool: %s", name)
}

// MissingParameter creates an error for an absent required argument
func MissingParameter(name string) *Error {
	return Newf(KindInvalidParameters, "Missing required parameter: %s", name)
}

// InvalidParameter creates an error for an argument whose value does not
// match the declared schema type
func InvalidParameter(name, expected string) *Error {
	return Newf(KindInvalidParameters, "Invalid parameter %q: expected %s", name, expected)
}

// UnexpectedParameter creates an error for an argument the schema does not
// declare. Unknown arguments are rejected rather than ignored.
func UnexpectedParameter(name string) *Error {
	return Newf(KindInvalidParameters, "Unexpected parameter: %s", name)
}

// InvalidParameters creates a generic parameter validation error
func InvalidParameters(message string) *Error {
	return New(KindInvalidParameters, message)
}

// ConnectionLost creates an error for a broken database connection that
// could not be re-established
func ConnectionLost(cause error) *Error {
	return &Error{
		kind:    KindConnectionLost,
		message: "Database connection lost",
		cause:   cause,
	}
}

// EngineRejected surfaces a database engine error verbatim to the caller
func EngineRejected(cause error) *Error {
	return &Error{
		kind:    KindEngineRejected,
		message: fmt.Sprintf("Database error: %v", cause),
		cause:   cause,
	}
}

// Internal creates an error for unanticipated failures. The caller-facing
// message stays generic; full detail belongs on the diagnostic channel.
func Internal(cause error) *Error {
	return &Error{
		kind:    KindInternal,
		message: "Internal error",
		cause:   cause,
	}
}

// FromError converts any error into an *Error, falling back to KindInternal
// for errors produced outside this package.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kind == kind
	}
	return false
}
