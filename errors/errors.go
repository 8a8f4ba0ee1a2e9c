package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// TransportError is the interface for all structured errors in agentwire.
// It extends the standard error interface with the context callers need to
// decide whether to rebuild a transport, fix their usage, or give up.
type TransportError interface {
	error

	// Code returns the specific error code identifying the failure type.
	Code() ErrorCode

	// Category returns the error category for retry/handling decisions.
	Category() ErrorCategory

	// Retryable returns true if the operation may succeed on retry.
	Retryable() bool

	// Metadata returns additional context as key-value pairs.
	Metadata() map[string]string

	// Unwrap returns the underlying error, if any.
	Unwrap() error
}

// Error is the concrete implementation of TransportError.
type Error struct {
	code      ErrorCode
	category  ErrorCategory
	message   string
	cause     error
	metadata  map[string]string
	retryable *bool // nil means use default based on category
	timestamp time.Time
	transport string // transport instance id, if applicable
	method    string // JSON-RPC method, if applicable
}

// Ensure Error implements TransportError and json.Marshaler/Unmarshaler.
var (
	_ TransportError   = (*Error)(nil)
	_ json.Marshaler   = (*Error)(nil)
	_ json.Unmarshaler = (*Error)(nil)
)

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

// Retryable returns whether this error is retryable.
func (e *Error) Retryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	return e.category.IsRetryable()
}

// Metadata returns the error metadata.
func (e *Error) Metadata() map[string]string {
	if e.metadata == nil {
		return make(map[string]string)
	}
	// Return a copy to prevent modification
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

// Timestamp returns when the error occurred.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

// TransportID returns the transport instance id, if set.
func (e *Error) TransportID() string {
	return e.transport
}

// Method returns the related JSON-RPC method, if set.
func (e *Error) Method() string {
	return e.method
}

// errorJSON is the JSON representation of an Error.
type errorJSON struct {
	Code      ErrorCode         `json:"code"`
	Category  ErrorCategory     `json:"category"`
	Message   string            `json:"message"`
	Cause     string            `json:"cause,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Retryable bool              `json:"retryable"`
	Timestamp string            `json:"timestamp,omitempty"`
	Transport string            `json:"transport_id,omitempty"`
	Method    string            `json:"method,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *Error) MarshalJSON() ([]byte, error) {
	j := errorJSON{
		Code:      e.code,
		Category:  e.category,
		Message:   e.message,
		Metadata:  e.metadata,
		Retryable: e.Retryable(),
		Transport: e.transport,
		Method:    e.method,
	}
	if e.cause != nil {
		j.Cause = e.cause.Error()
	}
	if !e.timestamp.IsZero() {
		j.Timestamp = e.timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(j)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Error) UnmarshalJSON(data []byte) error {
	var j errorJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	e.code = j.Code
	e.category = j.Category
	e.message = j.Message
	e.metadata = j.Metadata
	e.transport = j.Transport
	e.method = j.Method
	r := j.Retryable
	e.retryable = &r
	if j.Cause != "" {
		e.cause = fmt.Errorf("%s", j.Cause)
	}
	if j.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, j.Timestamp); err == nil {
			e.timestamp = t
		}
	}
	return nil
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithCategory overrides the default category.
func WithCategory(cat ErrorCategory) Option {
	return func(e *Error) {
		e.category = cat
	}
}

// WithRetryable explicitly sets whether the error is retryable.
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// WithMetadata adds a metadata key-value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithTransportID sets the transport instance id.
func WithTransportID(id string) Option {
	return func(e *Error) {
		e.transport = id
	}
}

// WithMethod sets the related JSON-RPC method.
func WithMethod(method string) Option {
	return func(e *Error) {
		e.method = method
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// FromCode creates an error with the default description for the code.
func FromCode(code ErrorCode, opts ...Option) *Error {
	return New(code, code.Description(), opts...)
}

// NotConnected creates a not-connected error.
func NotConnected(message string, opts ...Option) *Error {
	return New(ErrCodeNotConnected, message, opts...)
}

// AlreadyConnected creates an already-connected error.
func AlreadyConnected(message string, opts ...Option) *Error {
	return New(ErrCodeAlreadyConnected, message, opts...)
}

// Disconnected creates a disconnected error.
func Disconnected(message string, opts ...Option) *Error {
	return New(ErrCodeDisconnected, message, opts...)
}

// FailedToLaunch creates a spawn-failure error wrapping the OS error.
func FailedToLaunch(command string, cause error, opts ...Option) *Error {
	opts = append([]Option{WithCause(cause), WithMetadata("command", command)}, opts...)
	return New(ErrCodeFailedToLaunch, fmt.Sprintf("failed to launch %q", command), opts...)
}

// SendFailed creates a write-path error.
func SendFailed(message string, cause error, opts ...Option) *Error {
	opts = append([]Option{WithCause(cause)}, opts...)
	return New(ErrCodeSendFailed, message, opts...)
}

// ConnectionFailed creates an HTTP/WebSocket exchange error.
func ConnectionFailed(message string, cause error, opts ...Option) *Error {
	opts = append([]Option{WithCause(cause)}, opts...)
	return New(ErrCodeConnectionFailed, message, opts...)
}

// TypeMismatch creates a wire-type error.
func TypeMismatch(message string, opts ...Option) *Error {
	return New(ErrCodeTypeMismatch, message, opts...)
}

// RequestTimeout creates a request-timeout error.
func RequestTimeout(method string, opts ...Option) *Error {
	opts = append([]Option{WithMethod(method)}, opts...)
	return New(ErrCodeRequestTimeout, fmt.Sprintf("request %q timed out", method), opts...)
}

// DuplicateRequestID creates a duplicate-id usage error.
func DuplicateRequestID(id string, opts ...Option) *Error {
	opts = append([]Option{WithMetadata("request_id", id)}, opts...)
	return New(ErrCodeDuplicateRequestID, fmt.Sprintf("request id %s already in flight", id), opts...)
}
