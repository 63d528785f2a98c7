package link

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/nearwire/tether/internal/radio"
)

// fakeStream is a scriptable in-memory radio.Stream. Reads are fed through
// the incoming channel; closing the channel plays a clean remote EOF while
// Close plays a local teardown.
type fakeStream struct {
	remote        string
	connectErr    error
	connectBlocks bool

	incoming chan []byte
	done     chan struct{}

	mu       sync.Mutex
	wrote    []byte
	writeErr error

	closeOnce sync.Once
	closes    atomic.Int32
}

func newFakeStream(remote string) *fakeStream {
	return &fakeStream{
		remote:   remote,
		incoming: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
}

func (s *fakeStream) Connect() error {
	if s.connectErr != nil {
		return s.connectErr
	}
	if s.connectBlocks {
		<-s.done
		return errors.New("fake: closed during handshake")
	}
	return nil
}

func (s *fakeStream) Read(p []byte) (int, error) {
	select {
	case b, ok := <-s.incoming:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, b), nil
	case <-s.done:
		return 0, errors.New("fake: stream closed")
	}
}

func (s *fakeStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	select {
	case <-s.done:
		return 0, errors.New("fake: stream closed")
	default:
	}
	s.wrote = append(s.wrote, p...)
	return len(p), nil
}

func (s *fakeStream) Close() error {
	s.closes.Add(1)
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *fakeStream) RemoteEndpoint() string { return s.remote }

func (s *fakeStream) written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.wrote...)
}

func (s *fakeStream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type fakeListener struct {
	inbound chan radio.Stream
	done    chan struct{}

	closeOnce sync.Once
	closes    atomic.Int32
}

func newFakeListener() *fakeListener {
	return &fakeListener{
		inbound: make(chan radio.Stream, 4),
		done:    make(chan struct{}),
	}
}

func (l *fakeListener) Accept() (radio.Stream, error) {
	select {
	case s := <-l.inbound:
		return s, nil
	case <-l.done:
		return nil, errors.New("fake: listener closed")
	}
}

func (l *fakeListener) Close() error {
	l.closes.Add(1)
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

func (l *fakeListener) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// fakeTransport hands out queued streams and listeners, falling back to
// fresh ones, and remembers everything it opened so tests can assert that
// abandoned resources get closed.
type fakeTransport struct {
	mu          sync.Mutex
	outboundErr error
	listenErr   error
	streams     []*fakeStream
	listeners   []*fakeListener

	openedStreams   []*fakeStream
	openedListeners []*fakeListener
}

func (t *fakeTransport) queueStream(s *fakeStream)     { t.mu.Lock(); t.streams = append(t.streams, s); t.mu.Unlock() }
func (t *fakeTransport) queueListener(l *fakeListener) { t.mu.Lock(); t.listeners = append(t.listeners, l); t.mu.Unlock() }

func (t *fakeTransport) OpenOutbound(endpoint string, secure bool) (radio.Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outboundErr != nil {
		return nil, t.outboundErr
	}
	var s *fakeStream
	if len(t.streams) > 0 {
		s, t.streams = t.streams[0], t.streams[1:]
	} else {
		s = newFakeStream(endpoint)
	}
	t.openedStreams = append(t.openedStreams, s)
	return s, nil
}

func (t *fakeTransport) OpenListener(service radio.Service, secure bool) (radio.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listenErr != nil {
		return nil, t.listenErr
	}
	var l *fakeListener
	if len(t.listeners) > 0 {
		l, t.listeners = t.listeners[0], t.listeners[1:]
	} else {
		l = newFakeListener()
	}
	t.openedListeners = append(t.openedListeners, l)
	return l, nil
}
