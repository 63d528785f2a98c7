// Package tcp adapts plain and TLS TCP sockets to the radio contract.
package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nearwire/tether/internal/radio"
)

const DefaultDialTimeout = 10 * time.Second

var (
	ErrNoListenAddr = errors.New("tcp: listen address not configured")
	ErrNoClientTLS  = errors.New("tcp: client tls not configured")
	ErrNoServerTLS  = errors.New("tcp: server tls not configured")
	ErrStreamClosed = errors.New("tcp: stream closed")
	ErrNotConnected = errors.New("tcp: stream not connected")
)

// Options configure a Transport.
type Options struct {
	// ListenAddr is the bind address for inbound links, host:port.
	ListenAddr string
	// DialTimeout bounds the dial phase of outbound connects. Zero means
	// DefaultDialTimeout.
	DialTimeout time.Duration
	// ServerTLS terminates secure listeners.
	ServerTLS *tls.Config
	// ClientTLS authenticates secure outbound links.
	ClientTLS *tls.Config
}

type Transport struct {
	opts Options
}

func New(opts Options) *Transport {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	return &Transport{opts: opts}
}

// OpenOutbound returns an unconnected stream toward endpoint. Dial and TLS
// handshake run inside Connect; Close aborts them at any point.
func (t *Transport) OpenOutbound(endpoint string, secure bool) (radio.Stream, error) {
	if secure && t.opts.ClientTLS == nil {
		return nil, ErrNoClientTLS
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &stream{
		endpoint: endpoint,
		secure:   secure,
		tlsConf:  t.opts.ClientTLS,
		timeout:  t.opts.DialTimeout,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// OpenListener binds the configured listen address. The service identity is
// not carried on the wire here; peers find the station by address.
func (t *Transport) OpenListener(service radio.Service, secure bool) (radio.Listener, error) {
	if t.opts.ListenAddr == "" {
		return nil, ErrNoListenAddr
	}
	base, err := net.Listen("tcp", t.opts.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("tcp: listen %s: %w", t.opts.ListenAddr, err)
	}
	if secure {
		if t.opts.ServerTLS == nil {
			base.Close()
			return nil, ErrNoServerTLS
		}
		base = tls.NewListener(base, t.opts.ServerTLS)
	}
	return &listener{ln: base}, nil
}

type listener struct {
	ln net.Listener
}

func (l *listener) Accept() (radio.Stream, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("tcp: accept: %w", err)
	}
	return newAccepted(conn), nil
}

func (l *listener) Close() error { return l.ln.Close() }

// Addr is the bound address, useful when listening on port 0.
func (l *listener) Addr() string { return l.ln.Addr().String() }

type stream struct {
	endpoint string
	secure   bool
	tlsConf  *tls.Config
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	conn   net.Conn
	halted bool
}

func newAccepted(conn net.Conn) *stream {
	ctx, cancel := context.WithCancel(context.Background())
	return &stream{
		endpoint: conn.RemoteAddr().String(),
		ctx:      ctx,
		cancel:   cancel,
		conn:     conn,
	}
}

// Connect dials the endpoint and, in secure mode, completes the TLS
// handshake before returning. Already-connected streams return nil.
func (s *stream) Connect() error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	if s.halted {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	s.mu.Unlock()

	d := net.Dialer{Timeout: s.timeout}
	conn, err := d.DialContext(s.ctx, "tcp", s.endpoint)
	if err != nil {
		return fmt.Errorf("tcp: dial %s: %w", s.endpoint, err)
	}
	if s.secure {
		tlsConn := tls.Client(conn, s.tlsConf)
		if err := tlsConn.HandshakeContext(s.ctx); err != nil {
			conn.Close()
			return fmt.Errorf("tcp: tls handshake with %s: %w", s.endpoint, err)
		}
		conn = tlsConn
	}

	s.mu.Lock()
	s.conn = conn
	halted := s.halted
	s.mu.Unlock()
	if halted {
		conn.Close()
		return ErrStreamClosed
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

// Close aborts an in-flight dial or handshake and closes the socket. Safe
// to call from any goroutine, any number of times.
func (s *stream) Close() error {
	s.cancel()
	s.mu.Lock()
	s.halted = true
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *stream) RemoteEndpoint() string {
	if conn := s.current(); conn != nil {
		return conn.RemoteAddr().String()
	}
	return s.endpoint
}

func (s *stream) current() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}
