package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/agentwire/errors"
	"github.com/vinayprograms/agentwire/logging"
)

// HTTPConfig configures a stateless HTTP transport.
type HTTPConfig struct {
	Config

	// BaseURL is the agent endpoint every message is POSTed to.
	BaseURL string

	// Headers are added to every outbound exchange.
	Headers map[string]string

	// Client overrides the default HTTP client.
	Client *http.Client
}

// HTTPTransport maps JSON-RPC onto stateless HTTP exchanges: each request
// is one POST whose response body carries the correlated JSON-RPC response,
// and notifications are fire-and-forget POSTs.
//
// This transport is simplex. The agent cannot initiate traffic, so a
// registered message handler never fires; use WebSocketTransport when the
// remote agent needs a push channel.
type HTTPTransport struct {
	cfg    HTTPConfig
	log    *logging.Logger
	client *http.Client

	handler MessageHandler
	seq     atomic.Int64
	closed  atomic.Bool
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates an HTTP transport for the given base URL.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	cfg.Config = cfg.Config.withDefaults()
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTransport{
		cfg:    cfg,
		log:    cfg.Logger.WithComponent("http"),
		client: client,
	}
}

// SetMessageHandler registers the inbound handler. Accepted for contract
// symmetry, but inert: HTTP carries no server-initiated traffic.
func (t *HTTPTransport) SetMessageHandler(h MessageHandler) {
	t.handler = h
}

// Connect is a no-op success: there is no persistent connection to
// establish and no liveness probe is performed. The first SendRequest is
// where an unreachable endpoint shows up.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	if t.closed.Load() {
		return errors.Disconnected("http transport closed")
	}
	return nil
}

// IsConnected is true from construction until Disconnect; there is no
// persistent connection to lose.
func (t *HTTPTransport) IsConnected() bool {
	return !t.closed.Load()
}

// Disconnect marks the transport closed and releases idle connections.
func (t *HTTPTransport) Disconnect(ctx context.Context) error {
	if t.closed.Swap(true) {
		return nil
	}
	t.client.CloseIdleConnections()
	t.log.StateChange(StateConnected.String(), StateDisconnected.String())
	return nil
}

// NextRequestID atomically increments this instance's counter.
func (t *HTTPTransport) NextRequestID() RequestID {
	return NumberID(t.seq.Add(1))
}

// SendRequest performs one POST exchange; the HTTP response body is the
// JSON-RPC response. Correlation is trivial because the exchange is
// synchronous, but the returned id is still verified.
func (t *HTTPTransport) SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return t.SendRequestWithID(ctx, t.NextRequestID(), method, params)
}

// SendRequestWithID is SendRequest with a caller-supplied id.
func (t *HTTPTransport) SendRequestWithID(ctx context.Context, id RequestID, method string, params interface{}) (json.RawMessage, error) {
	if t.closed.Load() {
		return nil, errors.NotConnected("http transport closed")
	}

	req, err := newRequest(id, method, params)
	if err != nil {
		return nil, errors.SendFailed("failed to encode request params", err, errors.WithMethod(method))
	}

	start := time.Now()
	body, err := t.post(ctx, req)
	if err != nil {
		t.log.RequestDone(method, time.Since(start), err)
		return nil, err
	}
	t.log.Sent("request", method, id.String())

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		err = errors.ConnectionFailed("agent returned an unparseable response body", err, errors.WithMethod(method))
		t.log.RequestDone(method, time.Since(start), err)
		return nil, err
	}
	if resp.ID != id {
		err = errors.ConnectionFailed(
			fmt.Sprintf("response id %s does not match request id %s", resp.ID, id), nil,
			errors.WithMethod(method))
		t.log.RequestDone(method, time.Since(start), err)
		return nil, err
	}

	if resp.Error != nil {
		t.log.RequestDone(method, time.Since(start), resp.Error)
		return nil, resp.Error
	}
	t.log.RequestDone(method, time.Since(start), nil)
	return resp.Result, nil
}

// SendNotification POSTs fire-and-forget; the response body is discarded.
func (t *HTTPTransport) SendNotification(ctx context.Context, method string, params interface{}) error {
	if t.closed.Load() {
		return errors.NotConnected("http transport closed")
	}
	notif, err := newNotification(method, params)
	if err != nil {
		return errors.SendFailed("failed to encode notification params", err, errors.WithMethod(method))
	}
	if _, err := t.post(ctx, notif); err != nil {
		return err
	}
	t.log.Sent("notification", method, "")
	return nil
}

// SendResponse POSTs a response envelope. Only meaningful when the endpoint
// accepts replayed responses; with a plain request/response endpoint it is
// a fire-and-forget post like a notification.
func (t *HTTPTransport) SendResponse(ctx context.Context, id RequestID, result interface{}) error {
	if t.closed.Load() {
		return errors.NotConnected("http transport closed")
	}
	resp, err := newResult(id, result)
	if err != nil {
		return errors.SendFailed("failed to encode response result", err)
	}
	_, err = t.post(ctx, resp)
	return err
}

// SendErrorResponse POSTs an error response envelope; see SendResponse.
func (t *HTTPTransport) SendErrorResponse(ctx context.Context, id RequestID, code int, message string, data interface{}) error {
	if t.closed.Load() {
		return errors.NotConnected("http transport closed")
	}
	resp, err := newError(id, code, message, data)
	if err != nil {
		return errors.SendFailed("failed to encode error data", err)
	}
	_, err = t.post(ctx, resp)
	return err
}

// post performs one exchange and returns the response body. Any transport
// failure or non-2xx status surfaces as CONNECTION_FAILED.
func (t *HTTPTransport) post(ctx context.Context, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.SendFailed("failed to encode message", err)
	}

	if t.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.RequestTimeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL, bytes.NewReader(data))
	if err != nil {
		return nil, errors.ConnectionFailed("failed to build http request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, errors.ConnectionFailed("http exchange failed", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, int64(t.cfg.MaxFrameSize)))
	if err != nil {
		return nil, errors.ConnectionFailed("failed to read response body", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, errors.ConnectionFailed(
			fmt.Sprintf("agent endpoint returned status %d", httpResp.StatusCode), nil,
			errors.WithMetadata("status", fmt.Sprintf("%d", httpResp.StatusCode)))
	}
	return body, nil
}
