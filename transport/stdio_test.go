package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/agentwire/errors"
)

// fakeAgent speaks newline-delimited JSON-RPC over in-memory pipes, standing
// in for a real subprocess.
type fakeAgent struct {
	t *testing.T

	transport *StdioTransport
	toAgent   *bufio.Scanner // frames the host wrote
	fromAgent *io.PipeWriter // frames the agent sends back
}

func newFakeAgent(t *testing.T, cfg Config) *fakeAgent {
	t.Helper()

	fromAgentR, fromAgentW := io.Pipe()
	toAgentR, toAgentW := io.Pipe()

	tr := newStdioPipeTransport(fromAgentR, toAgentW, cfg)
	t.Cleanup(func() {
		tr.Disconnect(context.Background())
		fromAgentW.Close()
	})

	return &fakeAgent{
		t:         t,
		transport: tr,
		toAgent:   bufio.NewScanner(toAgentR),
		fromAgent: fromAgentW,
	}
}

// readFrame returns the next host-sent frame, decoded.
func (a *fakeAgent) readFrame() map[string]interface{} {
	a.t.Helper()
	if !a.toAgent.Scan() {
		a.t.Fatalf("host stream ended: %v", a.toAgent.Err())
	}
	var frame map[string]interface{}
	if err := json.Unmarshal(a.toAgent.Bytes(), &frame); err != nil {
		a.t.Fatalf("host sent invalid JSON: %v", err)
	}
	return frame
}

// writeLine pushes one raw line to the transport's read loop.
func (a *fakeAgent) writeLine(line string) {
	a.t.Helper()
	if _, err := io.WriteString(a.fromAgent, line+"\n"); err != nil {
		a.t.Fatalf("agent write failed: %v", err)
	}
}

func (a *fakeAgent) respond(id interface{}, result string) {
	idJSON, _ := json.Marshal(id)
	a.writeLine(fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":%s}`, idJSON, result))
}

func TestStdioRequestResponse(t *testing.T) {
	agent := newFakeAgent(t, Config{})

	go func() {
		frame := agent.readFrame()
		if frame["method"] != "ping" {
			t.Errorf("expected method ping, got %v", frame["method"])
		}
		agent.respond(frame["id"], `"pong"`)
	}()

	result, err := agent.transport.SendRequest(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if string(result) != `"pong"` {
		t.Errorf("expected pong, got %s", result)
	}
}

func TestStdioConcurrentRequestsResolveOutOfOrder(t *testing.T) {
	agent := newFakeAgent(t, Config{})
	const n = 5

	// Collect all requests first, then answer in reverse arrival order so
	// responses land out of order relative to the sends.
	go func() {
		ids := make([]interface{}, 0, n)
		for i := 0; i < n; i++ {
			frame := agent.readFrame()
			ids = append(ids, frame["id"])
		}
		for i := len(ids) - 1; i >= 0; i-- {
			agent.respond(ids[i], fmt.Sprintf(`"answer-%v"`, ids[i]))
		}
	}()

	var wg sync.WaitGroup
	failures := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := agent.transport.NextRequestID()
			result, err := agent.transport.SendRequestWithID(context.Background(), id, "work", nil)
			if err != nil {
				failures <- err
				return
			}
			want := fmt.Sprintf(`"answer-%s"`, id)
			if string(result) != want {
				failures <- fmt.Errorf("request %s got someone else's answer: %s", id, result)
			}
		}()
	}
	wg.Wait()
	close(failures)

	for err := range failures {
		t.Error(err)
	}
}

func TestStdioMalformedLineIsSkipped(t *testing.T) {
	agent := newFakeAgent(t, Config{})

	idA := agent.transport.NextRequestID()
	idC := agent.transport.NextRequestID()

	go func() {
		agent.readFrame()
		agent.readFrame()
		agent.respond(idA.Number(), `"first"`)
		agent.writeLine("{this is not json")
		agent.respond(idC.Number(), `"third"`)
	}()

	var wg sync.WaitGroup
	var resA, resC json.RawMessage
	var errA, errC error
	wg.Add(2)
	go func() {
		defer wg.Done()
		resA, errA = agent.transport.SendRequestWithID(context.Background(), idA, "a", nil)
	}()
	go func() {
		defer wg.Done()
		resC, errC = agent.transport.SendRequestWithID(context.Background(), idC, "c", nil)
	}()
	wg.Wait()

	if errA != nil || string(resA) != `"first"` {
		t.Errorf("request a: result %s err %v", resA, errA)
	}
	if errC != nil || string(resC) != `"third"` {
		t.Errorf("request c: result %s err %v", resC, errC)
	}
	if !agent.transport.IsConnected() {
		t.Error("one bad frame must not kill the connection")
	}
}

func TestStdioUnmatchedResponseDiscarded(t *testing.T) {
	agent := newFakeAgent(t, Config{})

	agent.respond(999, `"orphan"`)

	go func() {
		frame := agent.readFrame()
		agent.respond(frame["id"], `"real"`)
	}()

	result, err := agent.transport.SendRequest(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("request after orphan response failed: %v", err)
	}
	if string(result) != `"real"` {
		t.Errorf("expected real, got %s", result)
	}
}

func TestStdioNotificationHasNoID(t *testing.T) {
	agent := newFakeAgent(t, Config{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		frame := agent.readFrame()
		if frame["method"] != "log" {
			t.Errorf("expected method log, got %v", frame["method"])
		}
		if _, hasID := frame["id"]; hasID {
			t.Error("notification must not carry an id")
		}
	}()

	if err := agent.transport.SendNotification(context.Background(), "log", map[string]string{"line": "hi"}); err != nil {
		t.Fatalf("notification failed: %v", err)
	}
	<-done

	if agent.transport.pending.size() != 0 {
		t.Error("notification must not create a pending entry")
	}
}

func TestStdioDisconnectFailsAllPending(t *testing.T) {
	agent := newFakeAgent(t, Config{})

	go func() {
		agent.readFrame()
		// Simulate the agent dying mid-request.
		agent.fromAgent.Close()
	}()

	_, err := agent.transport.SendRequest(context.Background(), "ping", nil)
	if err == nil {
		t.Fatal("expected failure when the stream closes")
	}
	if !errors.Is(err, errors.ErrCodeDisconnected) {
		t.Errorf("expected DISCONNECTED, got %v", err)
	}

	waitFor(t, func() bool { return !agent.transport.IsConnected() })

	_, err = agent.transport.SendRequest(context.Background(), "ping", nil)
	if !errors.Is(err, errors.ErrCodeNotConnected) {
		t.Errorf("expected NOT_CONNECTED after disconnect, got %v", err)
	}
}

func TestStdioInboundRequestsReachHandlerInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string
	received := make(chan struct{}, 3)

	fromAgentR, fromAgentW := io.Pipe()
	toAgentR, toAgentW := io.Pipe()
	go io.Copy(io.Discard, toAgentR)

	tr := NewStdioTransport(StdioConfig{})
	tr.SetMessageHandler(func(msg *Message) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case msg.Request != nil:
			got = append(got, "request:"+msg.Request.Method)
		case msg.Notification != nil:
			got = append(got, "notification:"+msg.Notification.Method)
		}
		received <- struct{}{}
	})
	tr.in = toAgentW
	tr.out = fromAgentR
	tr.start()
	defer tr.Disconnect(context.Background())
	defer fromAgentW.Close()

	io.WriteString(fromAgentW, `{"jsonrpc":"2.0","id":1,"method":"confirm"}`+"\n")
	io.WriteString(fromAgentW, `{"jsonrpc":"2.0","method":"progress"}`+"\n")
	io.WriteString(fromAgentW, `{"jsonrpc":"2.0","id":2,"method":"confirm2"}`+"\n")

	for i := 0; i < 3; i++ {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for inbound messages")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"request:confirm", "notification:progress", "request:confirm2"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestStdioSendResponseWireShape(t *testing.T) {
	agent := newFakeAgent(t, Config{})

	go func() {
		if err := agent.transport.SendResponse(context.Background(), NumberID(7), map[string]bool{"ok": true}); err != nil {
			t.Errorf("send response failed: %v", err)
		}
		if err := agent.transport.SendErrorResponse(context.Background(), NumberID(8), InvalidParams, "bad params", nil); err != nil {
			t.Errorf("send error response failed: %v", err)
		}
	}()

	frame := agent.readFrame()
	if frame["id"] != float64(7) {
		t.Errorf("expected id 7, got %v", frame["id"])
	}
	if frame["result"] == nil {
		t.Error("expected result field")
	}

	frame = agent.readFrame()
	if frame["id"] != float64(8) {
		t.Errorf("expected id 8, got %v", frame["id"])
	}
	errObj, ok := frame["error"].(map[string]interface{})
	if !ok {
		t.Fatal("expected error object")
	}
	if errObj["code"] != float64(InvalidParams) {
		t.Errorf("expected code %d, got %v", InvalidParams, errObj["code"])
	}
}

func TestStdioConnectFailures(t *testing.T) {
	t.Run("missing command", func(t *testing.T) {
		tr := NewStdioTransport(StdioConfig{})
		err := tr.Connect(context.Background())
		if !errors.Is(err, errors.ErrCodeFailedToLaunch) {
			t.Errorf("expected FAILED_TO_LAUNCH, got %v", err)
		}
	})

	t.Run("nonexistent command", func(t *testing.T) {
		tr := NewStdioTransport(StdioConfig{Command: "/nonexistent/agent-binary"})
		err := tr.Connect(context.Background())
		if !errors.Is(err, errors.ErrCodeFailedToLaunch) {
			t.Errorf("expected FAILED_TO_LAUNCH, got %v", err)
		}
	})

	t.Run("double connect", func(t *testing.T) {
		agent := newFakeAgent(t, Config{})
		err := agent.transport.Connect(context.Background())
		if !errors.Is(err, errors.ErrCodeAlreadyConnected) {
			t.Errorf("expected ALREADY_CONNECTED, got %v", err)
		}
	})

	t.Run("reconnect after disconnect", func(t *testing.T) {
		agent := newFakeAgent(t, Config{})
		agent.transport.Disconnect(context.Background())
		err := agent.transport.Connect(context.Background())
		if !errors.Is(err, errors.ErrCodeDisconnected) {
			t.Errorf("expected DISCONNECTED, got %v", err)
		}
	})
}

func TestStdioRequestTimeout(t *testing.T) {
	agent := newFakeAgent(t, Config{RequestTimeout: 20 * time.Millisecond})

	go func() {
		agent.readFrame() // swallow the request, never answer
	}()

	_, err := agent.transport.SendRequest(context.Background(), "slow", nil)
	if !errors.Is(err, errors.ErrCodeRequestTimeout) {
		t.Errorf("expected REQUEST_TIMEOUT, got %v", err)
	}
	if agent.transport.pending.size() != 0 {
		t.Error("timed-out request should not leak a pending entry")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
