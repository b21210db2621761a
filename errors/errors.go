package errors

import "fmt"

// Exit codes returned by ExitCode.
const (
	ExitOK     = 0
	ExitFatal  = 1
	ExitConfig = 2
)

// Error is the structured error used across hostwatch.
type Error struct {
	code     ErrorCode
	category ErrorCategory
	message  string
	cause    error
	metadata map[string]string
	fatal    bool
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() ErrorCategory {
	return e.category
}

// Message returns the message without the cause.
func (e *Error) Message() string {
	return e.message
}

// Fatal reports whether the process cannot continue after this error.
func (e *Error) Fatal() bool {
	return e.fatal
}

// Retryable returns whether this error is retryable.
// Fatal errors are never retryable.
func (e *Error) Retryable() bool {
	if e.fatal {
		return false
	}
	return e.category.IsRetryable()
}

// Metadata returns a copy of the error metadata.
func (e *Error) Metadata() map[string]string {
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithMetadata adds a metadata key-value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithMetadataMap adds multiple metadata key-value pairs.
func WithMetadataMap(m map[string]string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		for k, v := range m {
			e.metadata[k] = v
		}
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// WithFatal marks the error as unrecoverable.
func WithFatal() Option {
	return func(e *Error) {
		e.fatal = true
	}
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:     code,
		category: code.DefaultCategory(),
		message:  message,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config creates a configuration error. Configuration errors are always fatal.
func Config(message string, opts ...Option) *Error {
	return New(ErrCodeConfig, message, append([]Option{WithFatal()}, opts...)...)
}

// Configf creates a configuration error with a formatted message.
func Configf(format string, args ...interface{}) *Error {
	return Config(fmt.Sprintf(format, args...))
}

// Resolution creates an address resolution error.
func Resolution(message string, opts ...Option) *Error {
	return New(ErrCodeResolution, message, opts...)
}

// Connect creates a connection error.
func Connect(message string, opts ...Option) *Error {
	return New(ErrCodeConnect, message, opts...)
}

// ProtocolParse creates a malformed-message error.
func ProtocolParse(message string, opts ...Option) *Error {
	return New(ErrCodeProtocolParse, message, opts...)
}

// Conflict creates a conflict error.
func Conflict(message string, opts ...Option) *Error {
	return New(ErrCodeConflict, message, opts...)
}

// Internal creates an internal error.
func Internal(message string, opts ...Option) *Error {
	return New(ErrCodeInternal, message, opts...)
}
