package gameserver

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Error is a structured session-runtime error with enough context to
// trace back to the socket/session involved.
type Error struct {
	Op        string        // operation that failed (e.g. "Socket.Send", "Pool.Acquire")
	SessionID uint64        // session id (0 if not applicable)
	SocketID  string        // diagnostic socket id (see internal xid-tagged ids), empty if n/a
	Code      SessionErrorCode
	Errno     syscall.Errno // kernel errno (0 if not applicable)
	Msg       string
	Inner     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.SessionID != 0 {
		parts = append(parts, fmt.Sprintf("session=%d", e.SessionID))
	}
	if e.SocketID != "" {
		parts = append(parts, fmt.Sprintf("socket=%s", e.SocketID))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("gameserver: %s (%s)", msg, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("gameserver: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support comparing by error code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// SessionErrorCode enumerates the failure taxonomy the core surfaces, per
// spec.md §7.
type SessionErrorCode string

const (
	// ErrCodeTransientIO: async read/write completion with a non-fatal
	// code. Closes the socket and propagates to the session's disconnect
	// handler.
	ErrCodeTransientIO SessionErrorCode = "transient I/O error"

	// ErrCodeProtocol: invalid packet size or framing. Closes the socket;
	// remaining bytes are not parsed further.
	ErrCodeProtocol SessionErrorCode = "protocol error"

	// ErrCodeResourceExhausted: pool empty after expansion retries. The
	// caller drops that specific packet; the session is not closed.
	ErrCodeResourceExhausted SessionErrorCode = "resource exhausted"

	// ErrCodeBackpressure: send queue reached the monitor's current
	// limit. The socket is closed; the caller releases the failing
	// buffer.
	ErrCodeBackpressure SessionErrorCode = "backpressure close"

	// ErrCodeDoubleRelease: observed at the pool via CAS; silently
	// absorbed, never propagated as a failure to the caller, but
	// available here for callers that want to assert it never fired.
	ErrCodeDoubleRelease SessionErrorCode = "double release"

	// ErrCodeInvariant: should not occur in a correct caller — e.g. a
	// second bind_socket without unbind, or a worker-only API invoked
	// off its owning worker.
	ErrCodeInvariant SessionErrorCode = "invariant violation"
)

// Error constructors, mirroring the shape used throughout the pool,
// socket, and session packages.

func NewError(op string, code SessionErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

func NewSessionError(op string, sessionID uint64, code SessionErrorCode, msg string) *Error {
	return &Error{Op: op, SessionID: sessionID, Code: code, Msg: msg}
}

func NewSocketError(op, socketID string, code SessionErrorCode, msg string) *Error {
	return &Error{Op: op, SocketID: socketID, Code: code, Msg: msg}
}

// WrapError wraps an existing error with gameserver context, mapping
// syscall errnos onto ErrCodeTransientIO.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ge, ok := inner.(*Error); ok {
		return &Error{
			Op: op, SessionID: ge.SessionID, SocketID: ge.SocketID,
			Code: ge.Code, Errno: ge.Errno, Msg: ge.Msg, Inner: ge.Inner,
		}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Code: ErrCodeTransientIO, Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: ErrCodeTransientIO, Msg: inner.Error(), Inner: inner}
}

// IsCode checks if err matches a specific error code.
func IsCode(err error, code SessionErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
