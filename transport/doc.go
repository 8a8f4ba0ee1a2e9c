// Package transport provides JSON-RPC 2.0 transports for talking to an
// external AI-agent process.
//
// Three channel backends implement the same Transport contract:
//
//   - StdioTransport drives a subprocess's stdin/stdout as a
//     newline-delimited JSON-RPC stream
//   - HTTPTransport maps each request onto one HTTP POST exchange
//   - WebSocketTransport provides a full-duplex remote channel
//
// The Client façade owns exactly one backend for its lifetime and is the
// single object the rest of a host application depends on. Responses are
// correlated to in-flight requests by id, so any number of callers can have
// requests outstanding over one connection; unsolicited inbound messages
// (notifications, agent-initiated requests) are delivered to a handler
// registered before connecting.
package transport
