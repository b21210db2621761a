package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates unexpected errors or bugs.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

const (
	ErrCodeConfig        ErrorCode = "CONFIG"         // Invalid or missing configuration
	ErrCodeResolution    ErrorCode = "RESOLUTION"     // Broker address could not be resolved
	ErrCodeConnect       ErrorCode = "CONNECT"        // Transport failure talking to the broker
	ErrCodeProtocolParse ErrorCode = "PROTOCOL_PARSE" // Inbound payload could not be decoded
	ErrCodeConflict      ErrorCode = "CONFLICT"       // Registration conflicts with existing state
	ErrCodeCanceled      ErrorCode = "CANCELED"       // Operation was canceled
	ErrCodeInternal      ErrorCode = "INTERNAL"       // Unexpected internal error
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeConnect:
		return CategoryTransient
	case ErrCodeConfig, ErrCodeResolution, ErrCodeProtocolParse, ErrCodeConflict, ErrCodeCanceled:
		return CategoryPermanent
	default:
		return CategoryInternal
	}
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeConfig:        "configuration error",
	ErrCodeResolution:    "address resolution failed",
	ErrCodeConnect:       "connection failed",
	ErrCodeProtocolParse: "malformed message",
	ErrCodeConflict:      "conflicting registration",
	ErrCodeCanceled:      "operation canceled",
	ErrCodeInternal:      "internal error",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
