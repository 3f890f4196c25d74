package citron

import (
	"errors"
	"fmt"
)

// Error is a structured kernel error carrying the operation that failed, the
// process it belongs to (if any), and a recoverable error code.
type Error struct {
	Op    string          // Operation that failed (e.g., "fork", "read", "map_window")
	Pid   int             // Process id (-1 if not applicable)
	Code  CitronErrorCode // High-level error category
	Msg   string          // Human-readable message
	Inner error           // Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Pid >= 0 {
		return fmt.Sprintf("citron: %s (op=%s pid=%d)", msg, e.Op, e.Pid)
	}
	if e.Op != "" {
		return fmt.Sprintf("citron: %s (op=%s)", msg, e.Op)
	}
	return fmt.Sprintf("citron: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is comparison against either a CitronErrorCode or
// another *Error with the same code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if code, ok := target.(CitronErrorCode); ok {
		return e.Code == code
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// CitronErrorCode enumerates the recoverable error categories the kernel's
// syscall layer can return to a user process instead of panicking. It
// implements error itself so a code doubles as a sentinel for errors.Is.
type CitronErrorCode string

// Error implements the error interface.
func (c CitronErrorCode) Error() string {
	return string(c)
}

const (
	ErrProcessNotFound     CitronErrorCode = "process not found"
	ErrSemaphoreNotFound   CitronErrorCode = "semaphore not found"
	ErrFileNotOpen         CitronErrorCode = "file not open"
	ErrFileNotExist        CitronErrorCode = "file does not exist"
	ErrUnknownSeekOption   CitronErrorCode = "unknown seek option"
	ErrDeviceUninitialised CitronErrorCode = "device uninitialised"
	ErrLoaderFailure       CitronErrorCode = "loader failure"
)

// NewError creates a new structured error not tied to a process.
func NewError(op string, code CitronErrorCode, msg string) *Error {
	return &Error{Op: op, Pid: -1, Code: code, Msg: msg}
}

// NewProcessError creates a new structured error tied to a process id.
func NewProcessError(op string, pid int, code CitronErrorCode, msg string) *Error {
	return &Error{Op: op, Pid: pid, Code: code, Msg: msg}
}

// WrapError wraps an existing error with kernel operation context. If inner
// is already a *Error, its code and pid are preserved and only Op is
// updated.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ce, ok := inner.(*Error); ok {
		return &Error{
			Op:    op,
			Pid:   ce.Pid,
			Code:  ce.Code,
			Msg:   ce.Msg,
			Inner: ce.Inner,
		}
	}
	return &Error{
		Op:    op,
		Pid:   -1,
		Code:  ErrLoaderFailure,
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// IsCode reports whether err is a *Error carrying the given code.
func IsCode(err error, code CitronErrorCode) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// FatalError panics with a "citron: fatal: <op>: <msg>" string (not a
// *citron.Error value), marking a non-recoverable kernel condition. Used
// for invariant violations the spec treats as unrecoverable (a corrupt
// page table, a descriptor-bitmap double free) rather than a user-facing
// syscall failure.
func FatalError(op, msg string) {
	panic(fmt.Sprintf("citron: fatal: %s: %s", op, msg))
}
