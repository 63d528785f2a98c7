// Package quic adapts QUIC connections to the radio contract. Each link
// rides one connection carrying a pair of unidirectional streams: both
// sides open their send stream eagerly and resolve the peer's stream on
// first read, so a write never waits on the remote application.
package quic

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/nearwire/tether/internal/radio"
)

const alpnTether = "tether/1"

const (
	codeClosed   quic.ApplicationErrorCode = 0
	codeInternal quic.ApplicationErrorCode = 1
)

var (
	ErrNoListenAddr = errors.New("quic: listen address not configured")
	ErrNoClientTLS  = errors.New("quic: client tls not configured")
	ErrNoServerTLS  = errors.New("quic: server tls not configured")
	ErrStreamClosed = errors.New("quic: stream closed")
	ErrNotConnected = errors.New("quic: stream not connected")
)

// Options configure a Transport.
type Options struct {
	// ListenAddr is the UDP bind address for inbound links, host:port.
	ListenAddr string
	// ServerTLS terminates inbound connections. When nil, insecure
	// listeners run on an ephemeral self-signed certificate; secure
	// listeners refuse to start.
	ServerTLS *tls.Config
	// ClientTLS verifies secure outbound links. Insecure outbound links
	// still encrypt but skip certificate verification.
	ClientTLS *tls.Config
	// DialTimeout bounds outbound connection establishment. Zero means
	// DefaultDialTimeout.
	DialTimeout time.Duration
	// MaxIdleTimeout and KeepAlivePeriod tune the QUIC session; zero
	// values take the package defaults.
	MaxIdleTimeout  time.Duration
	KeepAlivePeriod time.Duration
}

const (
	DefaultDialTimeout     = 10 * time.Second
	defaultMaxIdleTimeout  = 30 * time.Second
	defaultKeepAlivePeriod = 15 * time.Second
)

type Transport struct {
	opts Options
}

func New(opts Options) *Transport {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.MaxIdleTimeout <= 0 {
		opts.MaxIdleTimeout = defaultMaxIdleTimeout
	}
	if opts.KeepAlivePeriod <= 0 {
		opts.KeepAlivePeriod = defaultKeepAlivePeriod
	}
	return &Transport{opts: opts}
}

func (t *Transport) quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  t.opts.MaxIdleTimeout,
		KeepAlivePeriod: t.opts.KeepAlivePeriod,
	}
}

// OpenOutbound returns an unconnected stream toward endpoint. Dialing and
// stream setup run inside Connect; Close aborts them at any point.
func (t *Transport) OpenOutbound(endpoint string, secure bool) (radio.Stream, error) {
	tlsConf, err := t.clientTLS(secure)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &stream{
		endpoint: endpoint,
		tlsConf:  tlsConf,
		quicConf: t.quicConfig(),
		timeout:  t.opts.DialTimeout,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

func (t *Transport) clientTLS(secure bool) (*tls.Config, error) {
	if !secure {
		return &tls.Config{
			InsecureSkipVerify: true,
			NextProtos:         []string{alpnTether},
			MinVersion:         tls.VersionTLS13,
		}, nil
	}
	if t.opts.ClientTLS == nil {
		return nil, ErrNoClientTLS
	}
	conf := t.opts.ClientTLS.Clone()
	if len(conf.NextProtos) == 0 {
		conf.NextProtos = []string{alpnTether}
	}
	return conf, nil
}

func (t *Transport) OpenListener(service radio.Service, secure bool) (radio.Listener, error) {
	if t.opts.ListenAddr == "" {
		return nil, ErrNoListenAddr
	}

	tlsConf := t.opts.ServerTLS
	if tlsConf == nil {
		if secure {
			return nil, ErrNoServerTLS
		}
		generated, err := selfSignedConfig(service.Name)
		if err != nil {
			return nil, fmt.Errorf("quic: self-signed identity: %w", err)
		}
		tlsConf = generated
	} else {
		tlsConf = tlsConf.Clone()
	}
	if len(tlsConf.NextProtos) == 0 {
		tlsConf.NextProtos = []string{alpnTether}
	}

	ln, err := quic.ListenAddr(t.opts.ListenAddr, tlsConf, t.quicConfig())
	if err != nil {
		return nil, fmt.Errorf("quic: listen %s: %w", t.opts.ListenAddr, err)
	}
	return &listener{ln: ln}, nil
}

type listener struct {
	ln *quic.Listener
}

func (l *listener) Accept() (radio.Stream, error) {
	conn, err := l.ln.Accept(context.Background())
	if err != nil {
		return nil, fmt.Errorf("quic: accept: %w", err)
	}
	s := newConnectedStream(conn.RemoteAddr().String())
	if err := s.attach(conn); err != nil {
		conn.CloseWithError(codeInternal, "stream setup failed")
		return nil, err
	}
	return s, nil
}

func (l *listener) Close() error { return l.ln.Close() }

// Addr is the bound address, useful when listening on port 0.
func (l *listener) Addr() string { return l.ln.Addr().String() }

type stream struct {
	endpoint string
	tlsConf  *tls.Config
	quicConf *quic.Config
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	conn quic.Connection
	send quic.SendStream
	recv quic.ReceiveStream
}

func newConnectedStream(endpoint string) *stream {
	ctx, cancel := context.WithCancel(context.Background())
	return &stream{endpoint: endpoint, ctx: ctx, cancel: cancel}
}

// Connect dials the endpoint and opens this side's send stream. Accepted
// streams arrive connected, for them Connect is a no-op.
func (s *stream) Connect() error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	dialCtx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
	}
	conn, err := quic.DialAddr(dialCtx, s.endpoint, s.tlsConf, s.quicConf)
	if err != nil {
		return fmt.Errorf("quic: dial %s: %w", s.endpoint, err)
	}
	if err := s.attach(conn); err != nil {
		conn.CloseWithError(codeInternal, "stream setup failed")
		return err
	}
	return nil
}

func (s *stream) attach(conn quic.Connection) error {
	send, err := conn.OpenUniStreamSync(s.ctx)
	if err != nil {
		return fmt.Errorf("quic: open send stream: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.send = send
	s.mu.Unlock()

	// Close may have raced the attach; do not leave the session alive.
	select {
	case <-s.ctx.Done():
		conn.CloseWithError(codeClosed, "link closed")
		return ErrStreamClosed
	default:
	}
	return nil
}

func (s *stream) Read(p []byte) (int, error) {
	recv, err := s.resolveRecv()
	if err != nil {
		return 0, err
	}
	return recv.Read(p)
}

// resolveRecv accepts the peer's unidirectional stream on first use. The
// stream only becomes visible once the peer has written, which matches
// Read semantics: block until there is something to read.
func (s *stream) resolveRecv() (quic.ReceiveStream, error) {
	s.mu.Lock()
	if s.recv != nil {
		recv := s.recv
		s.mu.Unlock()
		return recv, nil
	}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil, ErrNotConnected
	}
	recv, err := conn.AcceptUniStream(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("quic: accept peer stream: %w", err)
	}

	s.mu.Lock()
	if s.recv == nil {
		s.recv = recv
	}
	recv = s.recv
	s.mu.Unlock()
	return recv, nil
}

func (s *stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	send := s.send
	s.mu.Unlock()
	if send == nil {
		return 0, ErrNotConnected
	}
	return send.Write(p)
}

// Close aborts any in-flight dial or blocked read and tears the whole
// session down. Safe to call from any goroutine, any number of times.
func (s *stream) Close() error {
	s.cancel()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		return conn.CloseWithError(codeClosed, "link closed")
	}
	return nil
}

func (s *stream) RemoteEndpoint() string {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		return conn.RemoteAddr().String()
	}
	return s.endpoint
}

// selfSignedConfig mints a throwaway server identity so insecure listeners
// can come up without provisioned certificates.
func selfSignedConfig(commonName string) (*tls.Config, error) {
	if commonName == "" {
		commonName = "tether"
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(30 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		MinVersion:   tls.VersionTLS13,
		NextProtos:   []string{alpnTether},
	}, nil
}
