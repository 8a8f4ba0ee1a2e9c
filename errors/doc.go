// Package errors provides a structured error taxonomy for agentwire
// transports. Every failure a transport can surface carries a code, a
// category, and retry semantics, so callers can branch on what happened
// instead of matching message strings.
//
// # Error Categories
//
// Errors are classified into three categories:
//
//   - Connection: the channel to the agent failed or is gone (a new
//     transport may succeed)
//   - Protocol: the peer sent something the wire format does not allow
//   - Usage: the caller misused the API (retrying the same call will not help)
//
// # Error Codes
//
// Each error has a specific code identifying the failure:
//
//   - NOT_CONNECTED: operation attempted without an active backend
//   - ALREADY_CONNECTED: duplicate connect attempt
//   - DISCONNECTED: the backend closed while requests were in flight
//   - FAILED_TO_LAUNCH: the agent subprocess could not be spawned
//   - SEND_FAILED: a write on a live connection failed
//   - CONNECTION_FAILED: an HTTP/WebSocket exchange failed
//   - And more...
//
// # Usage
//
// Create a new error:
//
//	err := errors.NotConnected("transport not connected")
//
// Check what happened:
//
//	if errors.Is(err, errors.ErrCodeDisconnected) {
//	    // rebuild the transport
//	}
//
// # JSON Serialization
//
// Errors serialize to JSON so they can be logged or forwarded:
//
//	data, err := json.Marshal(transportErr)
package errors
