package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// If err is already a TransportError, its code and category are preserved.
// Context cancellation and deadline errors map to CANCELED and REQUEST_TIMEOUT.
// Anything else becomes a CONNECTION_FAILED wrapping the original.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	// If it's already a TransportError, preserve its properties
	var terr *Error
	if errors.As(err, &terr) {
		wrapped := &Error{
			code:      terr.code,
			category:  terr.category,
			message:   message,
			cause:     err,
			metadata:  terr.Metadata(),
			retryable: terr.retryable,
			transport: terr.transport,
			method:    terr.method,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	// Check for context errors
	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeRequestTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeConnectionFailed, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// AsTransportError attempts to extract a TransportError from an error chain.
// Returns nil if no TransportError is found.
func AsTransportError(err error) TransportError {
	var terr *Error
	if errors.As(err, &terr) {
		return terr
	}
	return nil
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.code == code
	}
	return false
}

// IsCategory checks if any error in the chain has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.category == category
	}
	return false
}

// IsRetryable checks if the error is retryable.
func IsRetryable(err error) bool {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.Retryable()
	}
	// Default to not retryable for non-TransportErrors
	return false
}

// IsConnection checks if the error is connection-related.
func IsConnection(err error) bool {
	return IsCategory(err, CategoryConnection)
}

// IsUsage checks if the error is a caller mistake.
func IsUsage(err error) bool {
	return IsCategory(err, CategoryUsage)
}

// Code extracts the error code from an error, if available.
// Returns empty string if err is not a TransportError.
func Code(err error) ErrorCode {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.code
	}
	return ""
}

// Category extracts the error category from an error, if available.
// Returns empty string if err is not a TransportError.
func Category(err error) ErrorCategory {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.category
	}
	return ""
}

// Cause returns the root cause of the error chain.
func Cause(err error) error {
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := unwrapper.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}
