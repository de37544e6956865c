// Package exitcode maps restore failures to process exit codes following
// BSD sysexits.h conventions (https://man.freebsd.org/cgi/man.cgi?query=sysexits)
package exitcode

import (
	"context"
	stderrors "errors"
	"strings"

	"dbrestore/internal/errors"
)

const (
	Success = 0
	General = 1

	// PartialFailure - the run finished but some statements, rows or
	// objects failed
	PartialFailure = 3

	UsageError  = 2
	DataError   = 65
	NoInput     = 66
	Unavailable = 69
	Software    = 70
	CantCreate  = 73
	IOError     = 74
	TempFail    = 75
	NoPerm      = 77
	Config      = 78
	Timeout     = 124
	Cancelled   = 130
)

var byCode = map[errors.ErrorCode]int{
	errors.ErrCodeInvalidConfig:  Config,
	errors.ErrCodeMissingConfig:  Config,
	errors.ErrCodeInvalidRequest: UsageError,
	errors.ErrCodeFatalIO:        IOError,
	errors.ErrCodeDatabaseDown:   Unavailable,
	errors.ErrCodeDiskFull:       CantCreate,
	errors.ErrCodeStorage:        TempFail,
	errors.ErrCodeInvalidBackup:  DataError,
	errors.ErrCodeTruncation:     DataError,
	errors.ErrCodeRowData:        DataError,
	errors.ErrCodeInvalidState:   Software,
}

// ExitWithCode returns the exit code for err. Structured errors map by code;
// anything else falls back to message patterns.
func ExitWithCode(err error) int {
	if err == nil {
		return Success
	}
	if stderrors.Is(err, context.Canceled) {
		return Cancelled
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	if code, ok := byCode[errors.GetCode(err)]; ok {
		return code
	}

	msg := strings.ToLower(err.Error())
	switch {
	case contains(msg, "permission denied", "access denied", "password authentication failed"):
		return NoPerm
	case contains(msg, "connection refused", "could not connect", "no such host"):
		return Unavailable
	case contains(msg, "no such file", "file not found", "does not exist"):
		return NoInput
	case contains(msg, "no space left", "i/o error", "read-only file system"):
		return IOError
	case contains(msg, "timeout", "timed out"):
		return Timeout
	}
	return General
}

func contains(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
