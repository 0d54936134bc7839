package matchcore

import (
	"syscall"

	"github.com/ehrlich-b/matchcore-gateway/internal/gwerrors"
)

// Error is the gateway's structured error type, re-exported from
// internal/gwerrors so callers outside this module can match on Code
// without importing an internal package.
type Error = gwerrors.Error

// Code categorizes a gateway error by failure kind.
type Code = gwerrors.Code

const (
	ErrCodeTransportFault    = gwerrors.ErrCodeTransportFault
	ErrCodeClientIOError     = gwerrors.ErrCodeClientIOError
	ErrCodeFrameError        = gwerrors.ErrCodeFrameError
	ErrCodeParseError        = gwerrors.ErrCodeParseError
	ErrCodeAdmissionRejected = gwerrors.ErrCodeAdmissionRejected
	ErrCodeQueueFull         = gwerrors.ErrCodeQueueFull
	ErrCodeTableFull         = gwerrors.ErrCodeTableFull
	ErrCodeShuttingDown      = gwerrors.ErrCodeShuttingDown
)

// IsCode reports whether err is a *Error with the given Code.
func IsCode(err error, code Code) bool {
	return gwerrors.IsCode(err, code)
}

// IsErrno reports whether err is a *Error wrapping the given errno.
func IsErrno(err error, errno syscall.Errno) bool {
	return gwerrors.IsErrno(err, errno)
}
