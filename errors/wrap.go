package errors

import (
	"context"
	"errors"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// If err is already an *Error, the code, category, metadata and fatal flag are kept.
// Otherwise, it creates a new Internal error wrapping the original.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var hwErr *Error
	if errors.As(err, &hwErr) {
		wrapped := &Error{
			code:     hwErr.code,
			category: hwErr.category,
			message:  message,
			cause:    err,
			metadata: hwErr.Metadata(),
			fatal:    hwErr.fatal,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// As extracts an *Error from an error chain, or nil.
func As(err error) *Error {
	var hwErr *Error
	if errors.As(err, &hwErr) {
		return hwErr
	}
	return nil
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	if hwErr := As(err); hwErr != nil {
		return hwErr.code == code
	}
	return false
}

// IsFatal checks if the error chain carries a fatal error.
func IsFatal(err error) bool {
	if hwErr := As(err); hwErr != nil {
		return hwErr.fatal
	}
	return false
}

// IsRetryable checks if the error is retryable.
func IsRetryable(err error) bool {
	if hwErr := As(err); hwErr != nil {
		return hwErr.Retryable()
	}
	return false
}

// Code extracts the error code from an error, if available.
func Code(err error) ErrorCode {
	if hwErr := As(err); hwErr != nil {
		return hwErr.code
	}
	return ""
}

// GetMetadata extracts metadata from an error.
// Returns nil if err is not an *Error.
func GetMetadata(err error) map[string]string {
	if hwErr := As(err); hwErr != nil {
		return hwErr.Metadata()
	}
	return nil
}

// ExitCode maps an error returned to an entry point onto a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if Is(err, ErrCodeConfig) {
		return ExitConfig
	}
	return ExitFatal
}
