package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/agentwire/errors"
	"github.com/vinayprograms/agentwire/logging"
)

// StdioConfig configures a subprocess stream transport.
type StdioConfig struct {
	Config

	// Command is the agent executable to spawn.
	Command string

	// Args are passed to the agent process.
	Args []string

	// Dir is the working directory for the process. Empty means inherit.
	Dir string

	// Env entries are appended to the inherited environment.
	Env map[string]string
}

// StdioTransport drives an agent subprocess's stdin/stdout as a
// newline-delimited JSON-RPC stream. One goroutine reads continuously;
// writes are serialized behind a mutex so concurrent senders never
// interleave partial frames. Disconnection is irreversible: once the stream
// ends, a new transport must be constructed.
type StdioTransport struct {
	cfg StdioConfig
	log *logging.Logger

	cmd *exec.Cmd
	in  io.Writer
	out io.Reader

	inClose  func() error
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

var _ Transport = (*StdioTransport)(nil)

// NewStdioTransport creates a stream transport for the given agent command.
// Nothing is spawned until Connect.
func NewStdioTransport(cfg StdioConfig) *StdioTransport {
	cfg.Config = cfg.Config.withDefaults()
	return &StdioTransport{
		cfg:     cfg,
		log:     cfg.Logger.WithComponent("stdio"),
		pending: newPendingTable(),
		inbox:   make(chan *Message, cfg.HandlerBuffer),
		done:    make(chan struct{}),
	}
}

// newStdioPipeTransport builds an already-connected transport over arbitrary
// streams. Used by tests to stand in for a real subprocess.
func newStdioPipeTransport(out io.Reader, in io.Writer, cfg Config) *StdioTransport {
	t := NewStdioTransport(StdioConfig{Config: cfg})
	t.in = in
	t.out = out
	if c, ok := in.(io.Closer); ok {
		t.inClose = c.Close
	}
	t.start()
	return t
}

// SetMessageHandler registers the inbound handler. Must be called before
// Connect; messages arriving with no handler registered are dropped.
func (t *StdioTransport) SetMessageHandler(h MessageHandler) {
	t.handler = h
}

// Connect spawns the agent subprocess and starts the read loop.
func (t *StdioTransport) Connect(ctx context.Context) error {
	if t.finished.Load() {
		return errors.Disconnected("stdio transport cannot reconnect; construct a new one")
	}
	if t.connected.Load() {
		return errors.AlreadyConnected("agent process already running")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "connect aborted")
	}
	if t.cfg.Command == "" {
		return errors.FailedToLaunch("", fmt.Errorf("no command configured"))
	}

	cmd := exec.Command(t.cfg.Command, t.cfg.Args...)
	cmd.Dir = t.cfg.Dir
	cmd.Env = os.Environ()
	for k, v := range t.cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.FailedToLaunch(t.cfg.Command, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.FailedToLaunch(t.cfg.Command, err)
	}
	// Agent diagnostics pass through; stdout is reserved for JSON-RPC.
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return errors.FailedToLaunch(t.cfg.Command, err)
	}

	t.cmd = cmd
	t.in = stdin
	t.out = stdout
	t.inClose = stdin.Close
	t.start()
	return nil
}

func (t *StdioTransport) start() {
	t.connected.Store(true)
	t.log.StateChange(StateConnecting.String(), StateConnected.String())
	go t.dispatchLoop()
	go t.readLoop()
}

// IsConnected reports whether the stream is still live.
func (t *StdioTransport) IsConnected() bool {
	return t.connected.Load()
}

// Disconnect closes the agent's stdin, signals the process, and fails every
// pending request with DISCONNECTED. Safe to call more than once.
func (t *StdioTransport) Disconnect(ctx context.Context) error {
	t.shutdown(errors.Disconnected("transport disconnected"))

	t.teardown.Do(func() {
		if t.inClose != nil {
			t.inClose()
		}
		if t.cmd == nil || t.cmd.Process == nil {
			return
		}
		// Best-effort graceful stop; the read loop observes EOF either way.
		t.cmd.Process.Signal(os.Interrupt)

		waited := make(chan struct{})
		go func() {
			t.cmd.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-ctx.Done():
			t.cmd.Process.Kill()
			<-waited
		}
	})
	return nil
}

// shutdown performs the single irreversible transition to Disconnected.
// Every read-loop exit path ends here, so the loop can never die silently.
func (t *StdioTransport) shutdown(reason error) {
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

// readLoop consumes the stream one line at a time until EOF or a stream
// error. Unparseable lines are logged and dropped; the loop keeps going.
func (t *StdioTransport) readLoop() {
	defer close(t.inbox)

	scanner := bufio.NewScanner(t.out)
	scanner.Buffer(make([]byte, 64*1024), t.cfg.MaxFrameSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		msg, err := ParseMessage(line)
		if err != nil {
			t.log.FrameDropped(err, len(line))
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

	reason := errors.Disconnected("agent stream closed")
	if err := scanner.Err(); err != nil {
		reason = errors.Disconnected("agent stream error", errors.WithCause(err))
	}
	t.shutdown(reason)
}

// deliver hands an unsolicited message to the dispatch queue without
// letting a stalled handler wedge the read loop past shutdown.
func (t *StdioTransport) deliver(msg *Message) {
	select {
	case t.inbox <- msg:
	case <-t.done:
	}
}

// dispatchLoop forwards queued inbound messages to the handler in arrival
// order so response resolution never waits on handler code.
func (t *StdioTransport) dispatchLoop() {
	for msg := range t.inbox {
		h := t.handler
		if h == nil {
			t.log.Warn("inbound message dropped: no handler registered")
			continue
		}
		h(msg)
	}
}

// NextRequestID atomically increments the per-transport counter.
func (t *StdioTransport) NextRequestID() RequestID {
	return NumberID(t.seq.Add(1))
}

// SendRequest transmits a request and suspends until resolution.
func (t *StdioTransport) SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return t.SendRequestWithID(ctx, t.NextRequestID(), method, params)
}

// SendRequestWithID transmits a request under a caller-supplied id.
func (t *StdioTransport) SendRequestWithID(ctx context.Context, id RequestID, method string, params interface{}) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, errors.NotConnected("agent process not running")
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
func (t *StdioTransport) SendNotification(ctx context.Context, method string, params interface{}) error {
	if !t.connected.Load() {
		return errors.NotConnected("agent process not running")
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
func (t *StdioTransport) SendResponse(ctx context.Context, id RequestID, result interface{}) error {
	resp, err := newResult(id, result)
	if err != nil {
		return errors.SendFailed("failed to encode response result", err)
	}
	if err := t.send(resp); err != nil {
		return err
	}
	t.log.Sent("response", "", id.String())
	return nil
}

// SendErrorResponse replies to an agent-initiated request with an error.
func (t *StdioTransport) SendErrorResponse(ctx context.Context, id RequestID, code int, message string, data interface{}) error {
	resp, err := newError(id, code, message, data)
	if err != nil {
		return errors.SendFailed("failed to encode error data", err)
	}
	if err := t.send(resp); err != nil {
		return err
	}
	t.log.Sent("error_response", "", id.String())
	return nil
}

// send serializes one envelope and writes it as a single line. The mutex
// plus single Write call keep frames whole under concurrent senders.
func (t *StdioTransport) send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.SendFailed("failed to encode message", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if !t.connected.Load() {
		return errors.NotConnected("agent process not running")
	}
	if _, err := t.in.Write(append(data, '\n')); err != nil {
		return errors.SendFailed("write to agent stdin failed", err)
	}
	return nil
}
