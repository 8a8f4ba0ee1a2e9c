package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vinayprograms/agentwire/logging"
)

// ConnectionState tracks the lifecycle of a transport.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateClosing
)

// String returns the state name for logs and diagnostics.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// MessageHandler receives unsolicited inbound traffic: agent-initiated
// requests and notifications. Handlers run on a dedicated dispatch
// goroutine, one message at a time, in arrival order. A handler must not
// block indefinitely or it stalls delivery of later messages.
type MessageHandler func(msg *Message)

// Transport is the channel backend contract. Exactly one backend instance
// sits behind each Client for the client's lifetime; once a backend reports
// disconnection it cannot be reused.
type Transport interface {
	// Connect establishes the channel. Register the message handler first:
	// inbound traffic may arrive as soon as Connect returns.
	Connect(ctx context.Context) error

	// Disconnect tears the channel down, failing every pending request with
	// a DISCONNECTED error. It is idempotent.
	Disconnect(ctx context.Context) error

	// IsConnected reports whether the channel can currently carry traffic.
	IsConnected() bool

	// SendRequest transmits a request with a freshly minted id and suspends
	// the caller until the matching response arrives, the context ends, the
	// configured request timeout elapses, or the transport disconnects.
	// A peer-reported RPC error is returned as a *Error.
	SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error)

	// SendRequestWithID is SendRequest with a caller-supplied id. Reusing an
	// id while a request with that id is still in flight fails fast with a
	// DUPLICATE_REQUEST_ID error.
	SendRequestWithID(ctx context.Context, id RequestID, method string, params interface{}) (json.RawMessage, error)

	// SendNotification transmits fire-and-forget; only transmission errors
	// are surfaced, never a semantic RPC error.
	SendNotification(ctx context.Context, method string, params interface{}) error

	// SendResponse replies to an agent-initiated request.
	SendResponse(ctx context.Context, id RequestID, result interface{}) error

	// SendErrorResponse replies to an agent-initiated request with an error.
	SendErrorResponse(ctx context.Context, id RequestID, code int, message string, data interface{}) error

	// SetMessageHandler registers the inbound handler. Call before Connect.
	SetMessageHandler(h MessageHandler)

	// NextRequestID mints the next id from this transport's counter.
	NextRequestID() RequestID
}

// Config holds settings shared by all backends.
type Config struct {
	// RequestTimeout bounds how long SendRequest waits for a response.
	// Zero disables the timeout; context cancellation always applies.
	RequestTimeout time.Duration

	// MaxFrameSize limits the size of a single inbound frame.
	// Default: 1MB.
	MaxFrameSize int

	// HandlerBuffer is the size of the inbound dispatch queue.
	// Default: 100.
	HandlerBuffer int

	// Logger receives transport diagnostics. Defaults to a silent logger.
	Logger *logging.Logger
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxFrameSize:  1024 * 1024,
		HandlerBuffer: 100,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = def.MaxFrameSize
	}
	if c.HandlerBuffer <= 0 {
		c.HandlerBuffer = def.HandlerBuffer
	}
	if c.Logger == nil {
		c.Logger = logging.Nop()
	}
	return c
}
