// Package errors provides error codes and wrapping for the write-back queue.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a class of failure in a machine-readable way.
// Codes are stable: the admin API and host applications key off them.
type ErrorCode string

const (
	// Queue errors
	ErrInvalidOperation ErrorCode = "INVALID_OPERATION"
	ErrStore            ErrorCode = "STORE_ERROR"
	ErrTransport        ErrorCode = "TRANSPORT_FAILURE"
	ErrRetryExhausted   ErrorCode = "RETRY_EXHAUSTED"

	// Supporting surfaces
	ErrNotFound ErrorCode = "NOT_FOUND"
	ErrConfig   ErrorCode = "CONFIG_ERROR"
	ErrAuth     ErrorCode = "AUTH_ERROR"
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError carries an ErrorCode alongside a human-readable message and an
// optional wrapped cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error so stdlib errors.Is/As see the cause.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError without a cause.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches a code and message to an existing error.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	for stderrors.As(err, &appErr) {
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
		appErr = nil
	}
	return false
}

// CodeOf returns the outermost code carried by err, or ErrInternal when err
// carries none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
