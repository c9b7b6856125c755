// Package ws implements the broker's transport gateway: WebSocket
// termination, wire-protocol decoding, and frame routing.
//
// The package implements:
//   - Frame: the JSON wire envelope for every protocol frame
//   - Client: one connected peer with a buffered outbound queue
//   - Gateway: routes inbound frames to the session registry and fans
//     session events back out as frames
//
// Key behaviors:
//   - Malformed or unrecognized frames produce an error frame on the
//     offending connection only; the connection stays open
//   - create_session auto-subscribes the creating connection
//   - A disconnect triggers exactly one subscription sweep; sessions
//     outlive the connections that created them
package ws
