package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vinayprograms/agentwire/errors"
	"github.com/vinayprograms/agentwire/logging"
)

// WebSocketConfig configures a WebSocket transport.
type WebSocketConfig struct {
	Config

	// URL is the agent's WebSocket endpoint (ws:// or wss://).
	URL string

	// Headers are sent with the handshake request.
	Headers http.Header

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration

	// PingInterval for keepalive pings (0 = disabled).
	PingInterval time.Duration
}

// DefaultWebSocketConfig returns configuration with sensible defaults.
func DefaultWebSocketConfig(url string) WebSocketConfig {
	return WebSocketConfig{
		Config:       DefaultConfig(),
		URL:          url,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// WebSocketTransport is the full-duplex remote channel: requests are
// correlated through the same pending-table discipline as the stdio
// transport, and the agent can push requests and notifications at any
// time. Use this instead of HTTPTransport when server-initiated traffic
// matters.
type WebSocketTransport struct {
	cfg WebSocketConfig
	log *logging.Logger

	conn *websocket.Conn

	writeMu  sync.Mutex
	pending  *pendingTable
	handler  MessageHandler
	seq      atomic.Int64
	inbox    chan *Message
	done     chan struct{}
	closing  sync.Once
	teardown sync.Once

	connected atomic.Bool
	finished  atomic.Bool
}

var _ Transport = (*WebSocketTransport)(nil)

// NewWebSocketTransport creates a WebSocket transport. Nothing is dialed
// until Connect.
func NewWebSocketTransport(cfg WebSocketConfig) *WebSocketTransport {
	cfg.Config = cfg.Config.withDefaults()
	return &WebSocketTransport{
		cfg:     cfg,
		log:     cfg.Logger.WithComponent("websocket"),
		pending: newPendingTable(),
		inbox:   make(chan *Message, cfg.HandlerBuffer),
		done:    make(chan struct{}),
	}
}

// SetMessageHandler registers the inbound handler. Must be called before
// Connect; the agent may push messages as soon as the handshake completes.
func (t *WebSocketTransport) SetMessageHandler(h MessageHandler) {
	t.handler = h
}

// Connect dials the endpoint and starts the read loop.
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	if t.finished.Load() {
		return errors.Disconnected("websocket transport cannot reconnect; construct a new one")
	}
	if t.connected.Load() {
		return errors.AlreadyConnected("websocket already connected")
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, t.cfg.URL, t.cfg.Headers)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return errors.ConnectionFailed("websocket dial failed", err)
	}
	conn.SetReadLimit(int64(t.cfg.MaxFrameSize))

	t.conn = conn
	t.connected.Store(true)
	t.log.StateChange(StateConnecting.String(), StateConnected.String())
	go t.dispatchLoop()
	go t.readLoop()
	if t.cfg.PingInterval > 0 {
		go t.pingLoop()
	}
	return nil
}

// IsConnected reports whether the socket is still live.
func (t *WebSocketTransport) IsConnected() bool {
	return t.connected.Load()
}

// Disconnect sends a close frame, tears the socket down, and fails every
// pending request with DISCONNECTED. Safe to call more than once.
func (t *WebSocketTransport) Disconnect(ctx context.Context) error {
	t.shutdown(errors.Disconnected("transport disconnected"))
	t.teardown.Do(func() {
		if t.conn == nil {
			return
		}
		t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		t.conn.Close()
	})
	return nil
}

func (t *WebSocketTransport) shutdown(reason error) {
	t.closing.Do(func() {
		wasConnected := t.connected.Swap(false)
		t.finished.Store(true)
		close(t.done)
		t.pending.failAll(reason)
		if wasConnected {
			t.log.StateChange(StateConnected.String(), StateDisconnected.String())
		}
	})
}

func (t *WebSocketTransport) readLoop() {
	defer close(t.inbox)

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			reason := errors.Disconnected("websocket closed")
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = errors.Disconnected("websocket read error", errors.WithCause(err))
			}
			t.shutdown(reason)
			return
		}
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}

		msg, perr := ParseMessage(data)
		if perr != nil {
			t.log.FrameDropped(perr, len(data))
			continue
		}

		switch {
		case msg.Response != nil:
			t.log.Received("response", "", msg.Response.ID.String())
			if !t.pending.resolve(msg.Response) {
				t.log.ResponseDiscarded(msg.Response.ID.String())
			}
		case msg.Request != nil:
			t.log.Received("request", msg.Request.Method, msg.Request.ID.String())
			t.deliver(msg)
		case msg.Notification != nil:
			t.log.Received("notification", msg.Notification.Method, "")
			t.deliver(msg)
		}
	}
}

func (t *WebSocketTransport) deliver(msg *Message) {
	select {
	case t.inbox <- msg:
	case <-t.done:
	}
}

func (t *WebSocketTransport) dispatchLoop() {
	for msg := range t.inbox {
		h := t.handler
		if h == nil {
			t.log.Warn("inbound message dropped: no handler registered")
			continue
		}
		h(msg)
	}
}

func (t *WebSocketTransport) pingLoop() {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
		}
	}
}

// NextRequestID atomically increments the per-transport counter.
func (t *WebSocketTransport) NextRequestID() RequestID {
	return NumberID(t.seq.Add(1))
}

// SendRequest transmits a request and suspends until resolution.
func (t *WebSocketTransport) SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return t.SendRequestWithID(ctx, t.NextRequestID(), method, params)
}

// SendRequestWithID transmits a request under a caller-supplied id.
func (t *WebSocketTransport) SendRequestWithID(ctx context.Context, id RequestID, method string, params interface{}) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, errors.NotConnected("websocket not connected")
	}

	req, err := newRequest(id, method, params)
	if err != nil {
		return nil, errors.SendFailed("failed to encode request params", err, errors.WithMethod(method))
	}

	entry, err := t.pending.insert(id)
	if err != nil {
		return nil, err
	}

	if err := t.send(req); err != nil {
		t.pending.remove(id)
		return nil, err
	}
	t.log.Sent("request", method, id.String())

	start := time.Now()
	result, err := t.pending.await(ctx, entry, t.cfg.RequestTimeout, method)
	t.log.RequestDone(method, time.Since(start), err)
	return result, err
}

// SendNotification transmits fire-and-forget.
func (t *WebSocketTransport) SendNotification(ctx context.Context, method string, params interface{}) error {
	if !t.connected.Load() {
		return errors.NotConnected("websocket not connected")
	}
	notif, err := newNotification(method, params)
	if err != nil {
		return errors.SendFailed("failed to encode notification params", err, errors.WithMethod(method))
	}
	if err := t.send(notif); err != nil {
		return err
	}
	t.log.Sent("notification", method, "")
	return nil
}

// SendResponse replies to an agent-initiated request.
func (t *WebSocketTransport) SendResponse(ctx context.Context, id RequestID, result interface{}) error {
	resp, err := newResult(id, result)
	if err != nil {
		return errors.SendFailed("failed to encode response result", err)
	}
	return t.send(resp)
}

// SendErrorResponse replies to an agent-initiated request with an error.
func (t *WebSocketTransport) SendErrorResponse(ctx context.Context, id RequestID, code int, message string, data interface{}) error {
	resp, err := newError(id, code, message, data)
	if err != nil {
		return errors.SendFailed("failed to encode error data", err)
	}
	return t.send(resp)
}

// send writes one envelope as a single text frame under the write mutex.
func (t *WebSocketTransport) send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.SendFailed("failed to encode message", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if !t.connected.Load() {
		return errors.NotConnected("websocket not connected")
	}
	if t.cfg.WriteTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.SendFailed("websocket write failed", err)
	}
	return nil
}
