package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryConnection indicates the channel to the agent failed or is
	// gone. Examples: subprocess exit, pipe closed, HTTP exchange failure.
	// A retry against a freshly constructed transport may succeed.
	CategoryConnection ErrorCategory = "connection"

	// CategoryProtocol indicates the peer violated the wire format.
	// Examples: a request id that is neither string nor integer.
	CategoryProtocol ErrorCategory = "protocol"

	// CategoryUsage indicates the caller misused the API.
	// Examples: sending before connect, reusing a live request id.
	CategoryUsage ErrorCategory = "usage"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
// Connection failures are retryable against a new transport instance;
// protocol and usage errors are not.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryConnection
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for transport failure scenarios.
const (
	// Connection errors
	ErrCodeDisconnected     ErrorCode = "DISCONNECTED"      // Backend closed with requests in flight
	ErrCodeFailedToLaunch   ErrorCode = "FAILED_TO_LAUNCH"  // Subprocess spawn failed
	ErrCodeSendFailed       ErrorCode = "SEND_FAILED"       // Write-path failure on a live connection
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED" // HTTP/WebSocket exchange failure
	ErrCodeRequestTimeout   ErrorCode = "REQUEST_TIMEOUT"   // Configured per-request deadline elapsed

	// Protocol errors
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH" // JSON value has the wrong shape for the target type

	// Usage errors
	ErrCodeNotConnected       ErrorCode = "NOT_CONNECTED"        // Operation before/without an active backend
	ErrCodeAlreadyConnected   ErrorCode = "ALREADY_CONNECTED"    // Duplicate connect attempt
	ErrCodeDuplicateRequestID ErrorCode = "DUPLICATE_REQUEST_ID" // Caller reused an id with a live pending request
	ErrCodeCanceled           ErrorCode = "CANCELED"             // Caller abandoned the operation
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeDisconnected, ErrCodeFailedToLaunch, ErrCodeSendFailed,
		ErrCodeConnectionFailed, ErrCodeRequestTimeout:
		return CategoryConnection

	case ErrCodeTypeMismatch:
		return CategoryProtocol

	case ErrCodeNotConnected, ErrCodeAlreadyConnected,
		ErrCodeDuplicateRequestID, ErrCodeCanceled:
		return CategoryUsage

	default:
		return CategoryUsage
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
func (c ErrorCode) DefaultRetryable() bool {
	return c.DefaultCategory().IsRetryable()
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodeDisconnected:       "transport disconnected",
	ErrCodeFailedToLaunch:     "failed to launch agent process",
	ErrCodeSendFailed:         "failed to send message",
	ErrCodeConnectionFailed:   "connection failed",
	ErrCodeRequestTimeout:     "request timed out",
	ErrCodeTypeMismatch:       "unexpected JSON type",
	ErrCodeNotConnected:       "transport not connected",
	ErrCodeAlreadyConnected:   "transport already connected",
	ErrCodeDuplicateRequestID: "request id already in flight",
	ErrCodeCanceled:           "operation canceled",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
