package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/vinayprograms/agentwire/errors"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// idKind tags the variant held by a RequestID.
type idKind uint8

const (
	idNone idKind = iota
	idNumber
	idString
)

// RequestID is a JSON-RPC correlation id: a bare JSON string or integer.
// The zero value is "no id" and encodes as null. RequestID is comparable,
// so it can key the pending-request table directly.
type RequestID struct {
	kind idKind
	num  int64
	str  string
}

// NumberID returns a numeric RequestID.
func NumberID(n int64) RequestID {
	return RequestID{kind: idNumber, num: n}
}

// StringID returns a textual RequestID.
func StringID(s string) RequestID {
	return RequestID{kind: idString, str: s}
}

// IsZero reports whether the id is unset.
func (id RequestID) IsZero() bool {
	return id.kind == idNone
}

// IsNumber reports whether the id holds an integer.
func (id RequestID) IsNumber() bool {
	return id.kind == idNumber
}

// Number returns the integer value; zero unless IsNumber.
func (id RequestID) Number() int64 {
	return id.num
}

// Text returns the string value; empty unless the id holds a string.
func (id RequestID) Text() string {
	return id.str
}

// String returns a display form for diagnostics.
func (id RequestID) String() string {
	switch id.kind {
	case idNumber:
		return strconv.FormatInt(id.num, 10)
	case idString:
		return id.str
	default:
		return "<none>"
	}
}

// MarshalJSON encodes the id as a bare string or number, or null when unset.
func (id RequestID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idNumber:
		return strconv.AppendInt(nil, id.num, 10), nil
	case idString:
		return json.Marshal(id.str)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a bare JSON string or integer. null yields the zero
// id. Any other JSON shape fails with a TYPE_MISMATCH error, so a round trip
// through encode/decode always returns an equal value.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return errors.TypeMismatch(fmt.Sprintf("request id is not valid JSON: %v", err))
	}
	switch t := v.(type) {
	case nil:
		*id = RequestID{}
	case string:
		*id = StringID(t)
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return errors.TypeMismatch(fmt.Sprintf("request id %s is not an integer", t))
		}
		*id = NumberID(n)
	default:
		return errors.TypeMismatch(fmt.Sprintf("request id must be a string or integer, got %T", v))
	}
	return nil
}

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Notification represents a JSON-RPC 2.0 notification (no id).
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Error represents a JSON-RPC 2.0 error object. A peer-reported Error is the
// caller's semantic result, not a transport failure: it satisfies the error
// interface and is returned as-is from SendRequest.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Message is one decoded inbound frame. Exactly one of the three fields
// is set.
type Message struct {
	// Request is set for an agent-initiated request (has method and id).
	Request *Request

	// Response is set for a reply to one of our requests (id, no method).
	Response *Response

	// Notification is set for an unsolicited notification (method, no id).
	Notification *Notification

	// Raw contains the original bytes for passthrough scenarios.
	Raw json.RawMessage
}

// ParseMessage classifies and decodes a single wire frame. A missing or
// foreign jsonrpc field is tolerated; the shape of id/method decides the
// message kind.
func ParseMessage(data []byte) (*Message, error) {
	var probe struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &Error{Code: ParseError, Message: "Parse error", Data: rawString(err.Error())}
	}

	msg := &Message{Raw: append(json.RawMessage(nil), data...)}
	hasID := len(probe.ID) > 0 && string(probe.ID) != "null"

	switch {
	case probe.Method != "" && hasID:
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, &Error{Code: InvalidRequest, Message: "Invalid Request", Data: rawString(err.Error())}
		}
		msg.Request = &req

	case probe.Method != "":
		var notif Notification
		if err := json.Unmarshal(data, &notif); err != nil {
			return nil, &Error{Code: InvalidRequest, Message: "Invalid Request", Data: rawString(err.Error())}
		}
		msg.Notification = &notif

	case hasID:
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, &Error{Code: ParseError, Message: "Parse error", Data: rawString(err.Error())}
		}
		msg.Response = &resp

	default:
		return nil, &Error{Code: InvalidRequest, Message: "Invalid Request", Data: rawString("no id and no method")}
	}

	return msg, nil
}

// marshalParams converts arbitrary params into a raw payload. nil stays nil
// so the params field is omitted entirely.
func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func rawString(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}

// newRequest builds an outbound request envelope.
func newRequest(id RequestID, method string, params interface{}) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{JSONRPC: "2.0", ID: id, Method: method, Params: raw}, nil
}

// newNotification builds an outbound notification envelope.
func newNotification(method string, params interface{}) (*Notification, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Notification{JSONRPC: "2.0", Method: method, Params: raw}, nil
}

// newResult builds a success response envelope.
func newResult(id RequestID, result interface{}) (*Response, error) {
	raw, err := marshalParams(result)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: "2.0", ID: id, Result: raw}, nil
}

// newError builds an error response envelope.
func newError(id RequestID, code int, message string, data interface{}) (*Response, error) {
	raw, err := marshalParams(data)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message, Data: raw}}, nil
}
