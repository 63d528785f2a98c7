package link

import (
	"sync"

	"github.com/nearwire/tether/internal/radio"
)

// connector performs one outbound connection attempt. It holds the stream
// only while the handshake is in flight; the reference is detached before
// the success report so a concurrent halt can no longer close it.
type connector struct {
	mgr      *Manager
	endpoint string
	secure   bool

	mu     sync.Mutex
	stream radio.Stream
	halted bool
}

func (c *connector) run() {
	s, err := c.mgr.transport.OpenOutbound(c.endpoint, c.secure)
	if err != nil {
		c.mgr.workerFailed(c, roleConnector, err)
		return
	}

	c.mu.Lock()
	if c.halted {
		c.mu.Unlock()
		s.Close()
		c.mgr.workerFailed(c, roleConnector, errHalted)
		return
	}
	c.stream = s
	c.mu.Unlock()

	if err := s.Connect(); err != nil {
		c.detach()
		s.Close()
		c.mgr.workerFailed(c, roleConnector, err)
		return
	}

	c.detach()
	c.mgr.workerConnected(c, s)
}

func (c *connector) detach() {
	c.mu.Lock()
	c.stream = nil
	c.mu.Unlock()
}

// halt closes the in-flight stream, which fails a blocked handshake on the
// connector's own goroutine. A no-op once the stream has been handed off.
func (c *connector) halt() {
	c.mu.Lock()
	s := c.stream
	c.stream = nil
	c.halted = true
	c.mu.Unlock()
	if s != nil {
		s.Close()
	}
}
