// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error
// kinds and human-friendly messages. The harness uses kinds to decide whether a
// failure aborts the session (process-level) or is reported and absorbed at the
// call boundary (per-call).
//
// The package supports wrapping underlying errors while maintaining error kind
// information, making it easier to handle different types of failures appropriately.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// ProcessStartFailed indicates the server executable is missing or failed to launch.
	ProcessStartFailed Kind = "process_start_failed"
	// ServerUnavailable indicates the server's stream closed before a response arrived.
	ServerUnavailable Kind = "server_unavailable"
	// ProtocolViolation indicates a malformed or unmatched JSON-RPC response.
	ProtocolViolation Kind = "protocol_violation"
	// HandshakeFailed indicates MCP initialize failed or was never performed.
	HandshakeFailed Kind = "handshake_failed"
	// ToolFailed indicates the server returned a well-formed JSON-RPC error object.
	ToolFailed Kind = "tool_failed"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// HasKind reports whether err (or any error it wraps) carries the given kind.
func HasKind(err error, kind Kind) bool {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
