package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/agentwire/errors"
	"github.com/vinayprograms/agentwire/logging"
	"github.com/vinayprograms/agentwire/telemetry"
)

// Client is the application-facing facade over one transport backend. It
// owns the connection state machine; backends only report whether their
// channel is live. The backend is fixed at construction and serves for the
// client's whole life: after a disconnect, build a new Client.
type Client struct {
	id      string
	backend Transport
	log     *logging.Logger
	tel     telemetry.Exporter

	mu    sync.Mutex
	state ConnectionState
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithLogger sets the client's logger.
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// WithTelemetry sets the exporter that receives request timing events.
func WithTelemetry(exp telemetry.Exporter) ClientOption {
	return func(c *Client) { c.tel = exp }
}

// NewClient wraps a backend. The backend must not be connected yet.
func NewClient(backend Transport, opts ...ClientOption) *Client {
	c := &Client{
		id:      uuid.NewString(),
		backend: backend,
		log:     logging.Nop(),
		tel:     telemetry.Noop(),
		state:   StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithComponent("client").WithTraceID(c.id)
	return c
}

// NewStdioClient builds a client over a spawned agent subprocess.
func NewStdioClient(cfg StdioConfig, opts ...ClientOption) *Client {
	return NewClient(NewStdioTransport(cfg), opts...)
}

// NewHTTPClient builds a client over a stateless HTTP endpoint.
func NewHTTPClient(cfg HTTPConfig, opts ...ClientOption) *Client {
	return NewClient(NewHTTPTransport(cfg), opts...)
}

// NewWebSocketClient builds a client over a WebSocket endpoint.
func NewWebSocketClient(cfg WebSocketConfig, opts ...ClientOption) *Client {
	return NewClient(NewWebSocketTransport(cfg), opts...)
}

// ID returns the client's unique instance id.
func (c *Client) ID() string {
	return c.id
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetMessageHandler registers the inbound handler on the backend. It must
// be called before Connect; the agent may start talking the moment the
// channel opens.
func (c *Client) SetMessageHandler(h MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateDisconnected {
		return errors.AlreadyConnected("message handler must be registered before Connect",
			errors.WithTransportID(c.id))
	}
	c.backend.SetMessageHandler(h)
	return nil
}

// Connect brings the backend up. Calling Connect on a client that is
// already connected or mid-connect fails with ALREADY_CONNECTED.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.backend == nil {
		c.mu.Unlock()
		return errors.NotConnected("no transport backend configured", errors.WithTransportID(c.id))
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return errors.AlreadyConnected("client already connected", errors.WithTransportID(c.id))
	}
	c.state = StateConnecting
	c.mu.Unlock()

	err := c.backend.Connect(ctx)

	c.mu.Lock()
	if err != nil {
		c.state = StateDisconnected
	} else {
		c.state = StateConnected
	}
	c.mu.Unlock()

	if err != nil {
		c.tel.LogEvent("connect_failed", map[string]interface{}{"error": err.Error()})
		return errors.Wrap(err, "connect failed", errors.WithTransportID(c.id))
	}
	c.tel.LogEvent("connected", map[string]interface{}{"client_id": c.id})
	c.log.Info("connected")
	return nil
}

// Disconnect tears the backend down. Idempotent; disconnecting an already
// disconnected client is a no-op.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateDisconnected || c.state == StateClosing {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	c.mu.Unlock()

	err := c.backend.Disconnect(ctx)

	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()

	c.tel.LogEvent("disconnected", map[string]interface{}{"client_id": c.id})
	c.log.Info("disconnected")
	return err
}

// IsConnected reports whether both the client and its backend consider the
// channel live. A backend that dropped out from under us flips this false
// even though Disconnect was never called.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	return state == StateConnected && c.backend.IsConnected()
}

// NextRequestID mints an id from the backend's counter.
func (c *Client) NextRequestID() RequestID {
	return c.backend.NextRequestID()
}

// SendRequest sends a request and suspends until its response resolves.
func (c *Client) SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if err := c.checkConnected(); err != nil {
		return nil, err
	}
	start := time.Now()
	result, err := c.backend.SendRequest(ctx, method, params)
	c.emitRequestEvent(method, time.Since(start), err)
	return result, err
}

// SendRequestWithID is SendRequest under a caller-supplied id.
func (c *Client) SendRequestWithID(ctx context.Context, id RequestID, method string, params interface{}) (json.RawMessage, error) {
	if err := c.checkConnected(); err != nil {
		return nil, err
	}
	start := time.Now()
	result, err := c.backend.SendRequestWithID(ctx, id, method, params)
	c.emitRequestEvent(method, time.Since(start), err)
	return result, err
}

// SendNotification sends fire-and-forget.
func (c *Client) SendNotification(ctx context.Context, method string, params interface{}) error {
	if err := c.checkConnected(); err != nil {
		return err
	}
	return c.backend.SendNotification(ctx, method, params)
}

// SendResponse replies to an agent-initiated request.
func (c *Client) SendResponse(ctx context.Context, id RequestID, result interface{}) error {
	if err := c.checkConnected(); err != nil {
		return err
	}
	return c.backend.SendResponse(ctx, id, result)
}

// SendErrorResponse replies to an agent-initiated request with an error.
func (c *Client) SendErrorResponse(ctx context.Context, id RequestID, code int, message string, data interface{}) error {
	if err := c.checkConnected(); err != nil {
		return err
	}
	return c.backend.SendErrorResponse(ctx, id, code, message, data)
}

// checkConnected translates any non-connected state into NOT_CONNECTED so
// callers see one error regardless of which lifecycle phase they hit.
func (c *Client) checkConnected() error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state != StateConnected {
		return errors.NotConnected("client not connected", errors.WithTransportID(c.id))
	}
	return nil
}

func (c *Client) emitRequestEvent(method string, elapsed time.Duration, err error) {
	ex := telemetry.Exchange{
		TransportID: c.id,
		Kind:        "request",
		Method:      method,
		Latency:     elapsed,
	}
	if err != nil {
		ex.Error = err.Error()
	}
	c.tel.LogExchange(ex)
}
