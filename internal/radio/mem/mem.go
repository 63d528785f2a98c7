// Package mem is an in-process radio. Listeners register under their
// service name in a shared Network and dialers rendezvous with them over
// net.Pipe, so two link stacks can run against each other inside one test
// binary with real blocking semantics.
package mem

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/nearwire/tether/internal/radio"
)

var (
	ErrNameInUse      = errors.New("mem: service name already registered")
	ErrListenerClosed = errors.New("mem: listener closed")
	ErrStreamClosed   = errors.New("mem: stream closed")
	ErrNotConnected   = errors.New("mem: stream not connected")
)

// Network is an isolated namespace of in-process listeners. The zero value
// is not usable; call NewNetwork.
type Network struct {
	mu        sync.Mutex
	listeners map[string]*listener
}

func NewNetwork() *Network {
	return &Network{listeners: make(map[string]*listener)}
}

// OpenOutbound returns an unconnected stream toward the listener registered
// under endpoint. The rendezvous happens in Connect. The secure flag is
// accepted and ignored; pipes never leave the process.
func (n *Network) OpenOutbound(endpoint string, secure bool) (radio.Stream, error) {
	return &stream{
		network:  n,
		endpoint: endpoint,
		done:     make(chan struct{}),
	}, nil
}

// OpenListener registers the service name. The name stays taken until the
// listener is closed.
func (n *Network) OpenListener(service radio.Service, secure bool) (radio.Listener, error) {
	if service.Name == "" {
		return nil, errors.New("mem: service name is required")
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.listeners[service.Name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrNameInUse, service.Name)
	}
	l := &listener{
		network: n,
		name:    service.Name,
		inbound: make(chan net.Conn),
		done:    make(chan struct{}),
	}
	n.listeners[service.Name] = l
	return l, nil
}

// HasListener reports whether a listener is currently registered under
// name. Dials do not retry, so callers racing a fresh listener can poll
// this before connecting.
func (n *Network) HasListener(name string) bool {
	return n.lookup(name) != nil
}

func (n *Network) lookup(name string) *listener {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.listeners[name]
}

func (n *Network) remove(l *listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listeners[l.name] == l {
		delete(n.listeners, l.name)
	}
}

type listener struct {
	network *Network
	name    string
	inbound chan net.Conn
	done    chan struct{}

	closeOnce sync.Once
}

func (l *listener) Accept() (radio.Stream, error) {
	select {
	case conn := <-l.inbound:
		return &stream{
			endpoint: "mem://" + l.name,
			conn:     conn,
			done:     make(chan struct{}),
		}, nil
	case <-l.done:
		return nil, ErrListenerClosed
	}
}

func (l *listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.network.remove(l)
	})
	return nil
}

type stream struct {
	network  *Network
	endpoint string

	mu   sync.Mutex
	conn net.Conn

	done      chan struct{}
	closeOnce sync.Once
}

// Connect hands the far half of a fresh pipe to the listener. The inbound
// channel is unbuffered, so the handshake genuinely blocks until the peer
// accepts, is torn down, or this stream is closed.
func (s *stream) Connect() error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	ln := s.network.lookup(s.endpoint)
	if ln == nil {
		return fmt.Errorf("mem: no listener for %q", s.endpoint)
	}

	local, remote := net.Pipe()
	select {
	case ln.inbound <- remote:
	case <-ln.done:
		local.Close()
		remote.Close()
		return ErrListenerClosed
	case <-s.done:
		local.Close()
		remote.Close()
		return ErrStreamClosed
	}

	s.mu.Lock()
	s.conn = local
	s.mu.Unlock()

	// Close may have raced the handoff; make sure the pipe dies with it.
	select {
	case <-s.done:
		local.Close()
		return ErrStreamClosed
	default:
	}
	return nil
}

func (s *stream) Read(p []byte) (int, error) {
	conn := s.current()
	if conn == nil {
		return 0, ErrNotConnected
	}
	return conn.Read(p)
}

func (s *stream) Write(p []byte) (int, error) {
	conn := s.current()
	if conn == nil {
		return 0, ErrNotConnected
	}
	return conn.Write(p)
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	conn := s.current()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *stream) RemoteEndpoint() string { return s.endpoint }

func (s *stream) current() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}
