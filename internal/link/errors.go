package link

import "errors"

var (
	// ErrNoTransport is returned by New when no radio transport is supplied.
	ErrNoTransport = errors.New("link: transport is required")
	// ErrNotConnected is returned by Send when no framed channel is live.
	ErrNotConnected = errors.New("link: not connected")
)

// errHalted is reported by a worker that was halted before it could
// publish its blocking resource. The manager always drops it as stale.
var errHalted = errors.New("link: worker halted before start")

const (
	roleConnector = "connector"
	roleAcceptor  = "acceptor"
	roleChannel   = "channel"
)
