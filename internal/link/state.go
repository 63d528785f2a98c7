package link

// State is the lifecycle position of the link.
type State int

const (
	// StateIdle means no worker is active.
	StateIdle State = iota
	// StateConnecting means an outbound attempt is in flight.
	StateConnecting
	// StateListening means the acceptor is waiting for an inbound peer.
	StateListening
	// StateConnected means a framed channel is live.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
