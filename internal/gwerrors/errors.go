// Package gwerrors provides a structured error type shared by every
// ingress/egress component, mirroring the per-operation, per-component
// error shape used throughout the gateway instead of bare sentinel values.
package gwerrors

import (
	"errors"
	"fmt"
	"syscall"
)

// Error carries the context needed to diagnose a failure without string
// parsing: which operation, which component/shard, and the underlying
// errno when the failure originated in a syscall.
type Error struct {
	Op        string // operation that failed, e.g. "accept", "extract", "route"
	Component string // "tcp-listener", "udp-receiver", "processor-0", "output-router", ...
	Shard     int    // shard index, -1 if not applicable
	Code      Code
	Errno     syscall.Errno // 0 if not applicable
	Msg       string
	Inner     error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("component=%s", e.Component))
	}
	if e.Shard >= 0 {
		parts = append(parts, fmt.Sprintf("shard=%d", e.Shard))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("gateway: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("gateway: %s", msg)
}

// Unwrap supports errors.Is/As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is comparison by error Code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// Code is a high-level error category.
type Code string

const (
	ErrCodeTransportFault    Code = "transport fault"
	ErrCodeClientIOError     Code = "client I/O error"
	ErrCodeFrameError        Code = "frame error"
	ErrCodeParseError        Code = "parse error"
	ErrCodeAdmissionRejected Code = "admission rejected"
	ErrCodeQueueFull         Code = "queue full"
	ErrCodeTableFull         Code = "table full"
	ErrCodeShuttingDown      Code = "shutdown in progress"
)

// New creates a bare structured error.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Shard: -1, Code: code, Msg: msg}
}

// NewWithErrno creates a structured error carrying a syscall errno.
func NewWithErrno(op string, code Code, errno syscall.Errno) *Error {
	return &Error{Op: op, Shard: -1, Code: code, Errno: errno, Msg: errno.Error()}
}

// NewComponentError creates a structured error scoped to a named component.
func NewComponentError(op, component string, code Code, msg string) *Error {
	return &Error{Op: op, Component: component, Shard: -1, Code: code, Msg: msg}
}

// NewShardError creates a structured error scoped to a matching shard.
func NewShardError(op, component string, shard int, code Code, msg string) *Error {
	return &Error{Op: op, Component: component, Shard: shard, Code: code, Msg: msg}
}

// Wrap attaches gateway context to an arbitrary error, mapping syscall
// errnos to a Code where possible.
func Wrap(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ge, ok := inner.(*Error); ok {
		return &Error{
			Op: op, Component: ge.Component, Shard: ge.Shard,
			Code: ge.Code, Errno: ge.Errno, Msg: ge.Msg, Inner: ge.Inner,
		}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Shard: -1, Code: mapErrno(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Shard: -1, Code: ErrCodeClientIOError, Msg: inner.Error(), Inner: inner}
}

func mapErrno(errno syscall.Errno) Code {
	switch errno {
	case syscall.EADDRINUSE, syscall.EACCES, syscall.EPERM:
		return ErrCodeTransportFault
	case syscall.ECONNRESET, syscall.EPIPE, syscall.ETIMEDOUT:
		return ErrCodeClientIOError
	default:
		return ErrCodeClientIOError
	}
}

// IsCode reports whether err is a *Error with the given Code.
func IsCode(err error, code Code) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code == code
	}
	return false
}

// IsErrno reports whether err is a *Error wrapping the given errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Errno == errno
	}
	return false
}
