// Package errors provides structured error types for dbrestore
// with error codes, categories, and remediation guidance
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error codes for dbrestore
// Format: DBRESTORE-<CATEGORY><NUMBER>
// Categories: C=Config, E=Environment, D=Data, S=Statement, B=Bug
const (
	ErrCodeInvalidConfig  ErrorCode = "DBRESTORE-C001"
	ErrCodeMissingConfig  ErrorCode = "DBRESTORE-C002"
	ErrCodeInvalidRequest ErrorCode = "DBRESTORE-C003"

	ErrCodeFatalIO      ErrorCode = "DBRESTORE-E001"
	ErrCodeDatabaseDown ErrorCode = "DBRESTORE-E002"
	ErrCodeDiskFull     ErrorCode = "DBRESTORE-E003"
	ErrCodeStorage      ErrorCode = "DBRESTORE-E004"

	ErrCodeInvalidBackup ErrorCode = "DBRESTORE-D001"
	ErrCodeTruncation    ErrorCode = "DBRESTORE-D002"
	ErrCodeRowData       ErrorCode = "DBRESTORE-D003"

	ErrCodeStatementFailed  ErrorCode = "DBRESTORE-S001"
	ErrCodeSyntaxUnrepaired ErrorCode = "DBRESTORE-S002"

	ErrCodeInvalidState ErrorCode = "DBRESTORE-B001"
)

// Category represents error categories
type Category string

const (
	CategoryConfig      Category = "configuration"
	CategoryEnvironment Category = "environment"
	CategoryData        Category = "data"
	CategoryStatement   Category = "statement"
	CategoryInternal    Category = "internal"
)

// RestoreError is a structured error with code, category, and remediation
type RestoreError struct {
	Code        ErrorCode
	Category    Category
	Message     string
	Details     string
	Remediation string
	Cause       error
}

// Error implements error interface
func (e *RestoreError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += fmt.Sprintf(": %s", e.Details)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *RestoreError) Unwrap() error {
	return e.Cause
}

// Is matches on error code so callers can use errors.Is with a template error
func (e *RestoreError) Is(target error) bool {
	if t, ok := target.(*RestoreError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetails adds details to an error
func (e *RestoreError) WithDetails(details string) *RestoreError {
	e.Details = details
	return e
}

// WithCause adds an underlying cause
func (e *RestoreError) WithCause(cause error) *RestoreError {
	e.Cause = cause
	return e
}

// NewConfigError creates a configuration error
func NewConfigError(code ErrorCode, message, remediation string) *RestoreError {
	return &RestoreError{
		Code:        code,
		Category:    CategoryConfig,
		Message:     message,
		Remediation: remediation,
	}
}

// FatalIO wraps a missing or unreadable file, or a lost connection.
// It aborts only the sub-step (one table, one bucket) that hit it.
func FatalIO(what string, cause error) *RestoreError {
	return &RestoreError{
		Code:     ErrCodeFatalIO,
		Category: CategoryEnvironment,
		Message:  fmt.Sprintf("I/O failure: %s", what),
		Cause:    cause,
	}
}

// DatabaseUnavailable reports a connection failure to the target database
func DatabaseUnavailable(target string, cause error) *RestoreError {
	return &RestoreError{
		Code:        ErrCodeDatabaseDown,
		Category:    CategoryEnvironment,
		Message:     fmt.Sprintf("target database %q is unreachable", target),
		Remediation: "check the connection string or managed service URL for this target",
		Cause:       cause,
	}
}

// DiskFull reports insufficient space in the staging directory
func DiskFull(path string, required, available uint64) *RestoreError {
	return &RestoreError{
		Code:     ErrCodeDiskFull,
		Category: CategoryEnvironment,
		Message:  "insufficient disk space for staging",
		Details: fmt.Sprintf("path %s needs %d MB, %d MB available",
			path, required/(1024*1024), available/(1024*1024)),
		Remediation: "point WORK_DIR at a larger volume",
	}
}

// InvalidBackup reports a staged directory that holds no restorable content
func InvalidBackup(path, details string) *RestoreError {
	return &RestoreError{
		Code:        ErrCodeInvalidBackup,
		Category:    CategoryData,
		Message:     fmt.Sprintf("backup at %s is not restorable", path),
		Details:     details,
		Remediation: "a backup must contain manifest.json, at least one .sql file, or a storage/ directory",
	}
}

// Truncation wraps a failed overwrite pre-step. The restore proceeds and
// later duplicate-key errors are skipped, leaving a partially merged result.
func Truncation(cause error) *RestoreError {
	return &RestoreError{
		Code:     ErrCodeTruncation,
		Category: CategoryData,
		Message:  "truncate before overwrite failed",
		Cause:    cause,
	}
}

// StorageFailure wraps a bucket-level storage error
func StorageFailure(bucket string, cause error) *RestoreError {
	return &RestoreError{
		Code:     ErrCodeStorage,
		Category: CategoryEnvironment,
		Message:  fmt.Sprintf("storage sync failed for bucket %q", bucket),
		Cause:    cause,
	}
}

// InvalidState reports a programming error
func InvalidState(message string) *RestoreError {
	return &RestoreError{
		Code:     ErrCodeInvalidState,
		Category: CategoryInternal,
		Message:  message,
	}
}

// GetCode returns the error code if available
func GetCode(err error) ErrorCode {
	var restoreErr *RestoreError
	if errors.As(err, &restoreErr) {
		return restoreErr.Code
	}
	return ""
}

// GetCategory returns the error category if available
func GetCategory(err error) Category {
	var restoreErr *RestoreError
	if errors.As(err, &restoreErr) {
		return restoreErr.Category
	}
	return ""
}
