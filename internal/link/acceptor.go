package link

import (
	"sync"

	"github.com/nearwire/tether/internal/radio"
)

// acceptor owns the listening endpoint and hands every accepted stream to
// the manager. It keeps accepting until the listener fails, which is also
// how it is cancelled: halt closes the listener and the blocked accept
// returns an error on this goroutine.
type acceptor struct {
	mgr     *Manager
	service radio.Service
	secure  bool

	mu       sync.Mutex
	listener radio.Listener
	halted   bool
}

func (a *acceptor) run() {
	ln, err := a.mgr.transport.OpenListener(a.service, a.secure)
	if err != nil {
		a.mgr.workerFailed(a, roleAcceptor, err)
		return
	}

	a.mu.Lock()
	if a.halted {
		a.mu.Unlock()
		ln.Close()
		a.mgr.workerFailed(a, roleAcceptor, errHalted)
		return
	}
	a.listener = ln
	a.mu.Unlock()

	for {
		s, err := ln.Accept()
		if err != nil {
			a.closeListener()
			a.mgr.workerFailed(a, roleAcceptor, err)
			return
		}
		// Promotion halts this acceptor, so the next Accept fails and the
		// loop exits through the stale-failure path above.
		a.mgr.workerConnected(a, s)
	}
}

func (a *acceptor) closeListener() {
	a.mu.Lock()
	ln := a.listener
	a.listener = nil
	a.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
}

// halt closes the listening endpoint. Idempotent and non-blocking.
func (a *acceptor) halt() {
	a.mu.Lock()
	ln := a.listener
	a.listener = nil
	a.halted = true
	a.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
}
