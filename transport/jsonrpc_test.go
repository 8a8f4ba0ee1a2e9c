package transport

import (
	"encoding/json"
	"testing"

	"github.com/vinayprograms/agentwire/errors"
)

func TestRequestIDRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		id   RequestID
		wire string
	}{
		{"number", NumberID(42), "42"},
		{"negative number", NumberID(-7), "-7"},
		{"string", StringID("req-abc"), `"req-abc"`},
		{"numeric-looking string", StringID("42"), `"42"`},
		{"empty string", StringID(""), `""`},
		{"zero", RequestID{}, "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.id)
			if err != nil {
				t.Fatalf("marshal failed: %v", err)
			}
			if string(data) != tt.wire {
				t.Errorf("expected wire form %s, got %s", tt.wire, data)
			}

			var decoded RequestID
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if decoded != tt.id {
				t.Errorf("round trip changed id: sent %v, got %v", tt.id, decoded)
			}
		})
	}
}

func TestRequestIDRejectsOtherShapes(t *testing.T) {
	tests := []struct {
		name string
		wire string
	}{
		{"bool", "true"},
		{"float", "1.5"},
		{"object", `{"a":1}`},
		{"array", "[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id RequestID
			err := json.Unmarshal([]byte(tt.wire), &id)
			if err == nil {
				t.Fatal("expected decode error")
			}
			if !errors.Is(err, errors.ErrCodeTypeMismatch) {
				t.Errorf("expected TYPE_MISMATCH, got %v", err)
			}
		})
	}
}

func TestRequestIDNullIsZero(t *testing.T) {
	var id RequestID
	if err := json.Unmarshal([]byte("null"), &id); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !id.IsZero() {
		t.Error("null should decode to the zero id")
	}
}

func TestRequestIDAsMapKey(t *testing.T) {
	m := map[RequestID]string{
		NumberID(1):    "one",
		StringID("1"):  "string one",
		StringID("ok"): "ok",
	}
	if m[NumberID(1)] != "one" {
		t.Error("numeric key lookup failed")
	}
	if m[StringID("1")] != "string one" {
		t.Error("numeric id and string id with same digits must be distinct keys")
	}
}

func TestRequestIDString(t *testing.T) {
	if got := NumberID(7).String(); got != "7" {
		t.Errorf("expected 7, got %q", got)
	}
	if got := StringID("abc").String(); got != "abc" {
		t.Errorf("expected abc, got %q", got)
	}
	if got := (RequestID{}).String(); got != "<none>" {
		t.Errorf("expected <none>, got %q", got)
	}
}

func TestParseMessageClassification(t *testing.T) {
	tests := []struct {
		name string
		wire string
		kind string
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, "request"},
		{"request with string id", `{"jsonrpc":"2.0","id":"a","method":"ping","params":{}}`, "request"},
		{"notification", `{"jsonrpc":"2.0","method":"progress","params":{"pct":50}}`, "notification"},
		{"response", `{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`, "response"},
		{"error response", `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"no such method"}}`, "response"},
		{"null id notification", `{"jsonrpc":"2.0","id":null,"method":"progress"}`, "notification"},
		{"missing jsonrpc field tolerated", `{"id":3,"result":"ok"}`, "response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.wire))
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}

			var kind string
			switch {
			case msg.Request != nil:
				kind = "request"
			case msg.Response != nil:
				kind = "response"
			case msg.Notification != nil:
				kind = "notification"
			}
			if kind != tt.kind {
				t.Errorf("expected %s, got %s", tt.kind, kind)
			}
		})
	}
}

func TestParseMessageRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		wire string
		code int
	}{
		{"not json", "this is not json", ParseError},
		{"truncated", `{"jsonrpc":"2.0","id":1`, ParseError},
		{"no id no method", `{"jsonrpc":"2.0"}`, InvalidRequest},
		{"boolean id", `{"jsonrpc":"2.0","id":true,"result":"ok"}`, ParseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.wire))
			if err == nil {
				t.Fatal("expected parse error")
			}
			rpcErr, ok := err.(*Error)
			if !ok {
				t.Fatalf("expected *Error, got %T", err)
			}
			if rpcErr.Code != tt.code {
				t.Errorf("expected code %d, got %d", tt.code, rpcErr.Code)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	e := &Error{Code: MethodNotFound, Message: "no such method"}
	want := "RPC error -32601: no such method"
	if e.Error() != want {
		t.Errorf("expected %q, got %q", want, e.Error())
	}
}

func TestNewRequestOmitsNilParams(t *testing.T) {
	req, err := newRequest(NumberID(1), "ping", nil)
	if err != nil {
		t.Fatalf("newRequest failed: %v", err)
	}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"jsonrpc":"2.0","id":1,"method":"ping"}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}

func TestNewRequestPassesRawParams(t *testing.T) {
	raw := json.RawMessage(`{"x":1}`)
	req, err := newRequest(StringID("a"), "do", raw)
	if err != nil {
		t.Fatalf("newRequest failed: %v", err)
	}
	if string(req.Params) != `{"x":1}` {
		t.Errorf("raw params should pass through untouched, got %s", req.Params)
	}
}
