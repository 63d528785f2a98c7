// Package radio defines the transport contract the link layer runs over.
// Adapters (tcp, quic, mem) implement it; the link layer treats endpoint
// strings as opaque tokens and never imports an adapter.
package radio

import "io"

// Service identifies the local listening endpoint of a device.
type Service struct {
	Name string
	UUID string
}

// Stream is one bidirectional byte channel to a remote device.
//
// Outbound streams are created unconnected: Connect performs the blocking
// link handshake. Accepted streams are already established and Connect is a
// no-op. Close is idempotent and safe to call concurrently with a blocked
// Connect, Read, or Write; the blocked call then fails promptly.
type Stream interface {
	Connect() error
	io.ReadWriteCloser

	// RemoteEndpoint identifies the remote side in the adapter's own
	// addressing scheme.
	RemoteEndpoint() string
}

// Listener produces inbound streams bound to a local service identity.
// Close is idempotent and unblocks a pending Accept.
type Listener interface {
	Accept() (Stream, error)
	Close() error
}

// Transport opens outbound and listening endpoints on one radio medium.
type Transport interface {
	// OpenOutbound creates an unconnected stream toward endpoint. Creation
	// failures (bad endpoint, unusable security config) surface here;
	// handshake failures surface from Stream.Connect.
	OpenOutbound(endpoint string, secure bool) (Stream, error)

	// OpenListener binds the local service identity for inbound streams.
	OpenListener(service Service, secure bool) (Listener, error)
}
