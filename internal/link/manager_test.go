package link

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nearwire/tether/internal/radio"
	"github.com/nearwire/tether/internal/testutil/testlog"
)

const testServiceUUID = "8e2f17d4-93bd-4e60-9716-2f0c0d3a51b7"

type collector struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *collector) add(p []byte) {
	c.mu.Lock()
	c.msgs = append(c.msgs, append([]byte(nil), p...))
	c.mu.Unlock()
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *collector) at(i int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgs[i]
}

func newTestManager(t *testing.T, ft *fakeTransport, sink *collector) *Manager {
	t.Helper()
	var onMsg func([]byte)
	if sink != nil {
		onMsg = sink.add
	}
	m, err := New(Options{
		Transport: ft,
		Service:   radio.Service{Name: "tether-test", UUID: testServiceUUID},
		OnMessage: onMsg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(m.Stop)
	return m
}

func activeWorker(m *Manager) worker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.worker
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state never reached %s, still %s", want, m.State())
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewRequiresTransport(t *testing.T) {
	testlog.Start(t)

	if _, err := New(Options{}); !errors.Is(err, ErrNoTransport) {
		t.Fatalf("New without transport: %v", err)
	}
}

func TestConnectEstablishesChannel(t *testing.T) {
	testlog.Start(t)

	ft := &fakeTransport{}
	ft.queueStream(newFakeStream("radio://peer-a"))
	m := newTestManager(t, ft, nil)

	m.Connect("radio://peer-a", true)
	waitForState(t, m, StateConnected)

	if _, ok := activeWorker(m).(*channel); !ok {
		t.Fatalf("active worker %T, want *channel", activeWorker(m))
	}
	if st := m.Status(); st.Endpoint != "radio://peer-a" {
		t.Fatalf("status endpoint %q", st.Endpoint)
	}
}

func TestConnectCreationFailureLandsIdle(t *testing.T) {
	testlog.Start(t)

	ft := &fakeTransport{outboundErr: errors.New("no adapter for scheme")}
	m := newTestManager(t, ft, nil)

	m.Connect("radio://nowhere", false)
	waitForState(t, m, StateIdle)

	if w := activeWorker(m); w != nil {
		t.Fatalf("worker still active after failure: %T", w)
	}
}

func TestConnectHandshakeFailureLandsIdle(t *testing.T) {
	testlog.Start(t)

	s := newFakeStream("radio://peer-a")
	s.connectErr = errors.New("peer refused")
	ft := &fakeTransport{}
	ft.queueStream(s)
	m := newTestManager(t, ft, nil)

	m.Connect("radio://peer-a", true)
	waitForState(t, m, StateIdle)
	waitFor(t, "stream closed", s.closed)
}

func TestStopDuringHandshakeClosesStream(t *testing.T) {
	testlog.Start(t)

	s := newFakeStream("radio://peer-a")
	s.connectBlocks = true
	ft := &fakeTransport{}
	ft.queueStream(s)
	m := newTestManager(t, ft, nil)

	m.Connect("radio://peer-a", true)
	if got := m.State(); got != StateConnecting {
		t.Fatalf("state after Connect: %s", got)
	}

	m.Stop()
	if got := m.State(); got != StateIdle {
		t.Fatalf("state after Stop: %s", got)
	}
	waitFor(t, "stream closed", s.closed)

	// The connector's own failure report must be dropped as stale.
	time.Sleep(30 * time.Millisecond)
	if got := m.State(); got != StateIdle {
		t.Fatalf("late report flipped state to %s", got)
	}
	if w := activeWorker(m); w != nil {
		t.Fatalf("worker lingering after Stop: %T", w)
	}
}

func TestListenAcceptPromotesAndClosesListener(t *testing.T) {
	testlog.Start(t)

	ln := newFakeListener()
	ft := &fakeTransport{}
	ft.queueListener(ln)
	m := newTestManager(t, ft, nil)

	m.Listen(true)
	if got := m.State(); got != StateListening {
		t.Fatalf("state after Listen: %s", got)
	}

	ln.inbound <- newFakeStream("radio://peer-b")
	waitForState(t, m, StateConnected)
	waitFor(t, "listener closed", ln.closed)

	if st := m.Status(); st.Endpoint != "radio://peer-b" {
		t.Fatalf("status endpoint %q", st.Endpoint)
	}

	// The acceptor loop exits through a listener error whose report is
	// stale; the link must stay connected.
	time.Sleep(30 * time.Millisecond)
	if got := m.State(); got != StateConnected {
		t.Fatalf("state flipped to %s after promotion", got)
	}
}

func TestListenCreationFailureLandsIdle(t *testing.T) {
	testlog.Start(t)

	ft := &fakeTransport{listenErr: errors.New("adapter busy")}
	m := newTestManager(t, ft, nil)

	m.Listen(false)
	waitForState(t, m, StateIdle)
}

func TestSendFramesExactWireBytes(t *testing.T) {
	testlog.Start(t)

	s := newFakeStream("radio://peer-a")
	ft := &fakeTransport{}
	ft.queueStream(s)
	m := newTestManager(t, ft, nil)

	m.Connect("radio://peer-a", false)
	waitForState(t, m, StateConnected)

	if err := m.Send([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x03, 0x01, 0x02, 0x03}
	if got := s.written(); !bytes.Equal(got, want) {
		t.Fatalf("wire bytes % x, want % x", got, want)
	}

	if err := m.Send(nil); err != nil {
		t.Fatalf("Send empty: %v", err)
	}
	want = append(want, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00)
	if got := s.written(); !bytes.Equal(got, want) {
		t.Fatalf("wire bytes after empty send % x, want % x", got, want)
	}
}

func TestSendWhenIdleFails(t *testing.T) {
	testlog.Start(t)

	m := newTestManager(t, &fakeTransport{}, nil)
	if err := m.Send([]byte("hello")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send while idle: %v", err)
	}
}

func TestSendWriteErrorTearsChannelDown(t *testing.T) {
	testlog.Start(t)

	s := newFakeStream("radio://peer-a")
	ft := &fakeTransport{}
	ft.queueStream(s)
	m := newTestManager(t, ft, nil)

	m.Connect("radio://peer-a", false)
	waitForState(t, m, StateConnected)

	s.mu.Lock()
	s.writeErr = errors.New("broken pipe")
	s.mu.Unlock()

	if err := m.Send([]byte("x")); err == nil {
		t.Fatal("Send on broken stream succeeded")
	}
	waitForState(t, m, StateIdle)
	waitFor(t, "stream closed", s.closed)
}

func TestReceiveReassemblesAcrossChunks(t *testing.T) {
	testlog.Start(t)

	s := newFakeStream("radio://peer-a")
	ft := &fakeTransport{}
	ft.queueStream(s)
	sink := &collector{}
	m := newTestManager(t, ft, sink)

	m.Connect("radio://peer-a", false)
	waitForState(t, m, StateConnected)

	// Header and payload arrive in separate reads.
	s.incoming <- []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x02}
	s.incoming <- []byte{0xAA, 0xBB}
	waitFor(t, "first message", func() bool { return sink.count() == 1 })
	if got := sink.at(0); !bytes.Equal(got, []byte{0xAA, 0xBB}) {
		t.Fatalf("message % x", got)
	}

	// One read carrying an empty message and a one-byte message.
	s.incoming <- []byte{
		0x00, 0x01, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x07,
	}
	waitFor(t, "remaining messages", func() bool { return sink.count() == 3 })
	if got := sink.at(1); len(got) != 0 {
		t.Fatalf("empty message came back as % x", got)
	}
	if got := sink.at(2); !bytes.Equal(got, []byte{0x07}) {
		t.Fatalf("third message % x", got)
	}
}

func TestCorruptLengthTearsChannelDown(t *testing.T) {
	testlog.Start(t)

	s := newFakeStream("radio://peer-a")
	ft := &fakeTransport{}
	ft.queueStream(s)
	sink := &collector{}
	m := newTestManager(t, ft, sink)

	m.Connect("radio://peer-a", false)
	waitForState(t, m, StateConnected)

	s.incoming <- []byte{0x00, 0x01, 0xFF, 0xFF, 0xFF, 0xFF}
	waitForState(t, m, StateIdle)
	waitFor(t, "stream closed", s.closed)
	if sink.count() != 0 {
		t.Fatalf("delivered %d messages from corrupt input", sink.count())
	}
}

func TestRemoteCloseLandsIdle(t *testing.T) {
	testlog.Start(t)

	s := newFakeStream("radio://peer-a")
	ft := &fakeTransport{}
	ft.queueStream(s)
	m := newTestManager(t, ft, nil)

	m.Connect("radio://peer-a", false)
	waitForState(t, m, StateConnected)

	close(s.incoming)
	waitForState(t, m, StateIdle)
	waitFor(t, "stream closed", s.closed)
}

func TestStaleSuccessClosesStream(t *testing.T) {
	testlog.Start(t)

	m := newTestManager(t, &fakeTransport{}, nil)
	stale := &connector{mgr: m}
	s := newFakeStream("radio://late-peer")

	m.workerConnected(stale, s)

	if !s.closed() {
		t.Fatal("stale stream left open")
	}
	if got := m.State(); got != StateIdle {
		t.Fatalf("stale success changed state to %s", got)
	}
}

func TestStaleFailureIgnoredWhenConnected(t *testing.T) {
	testlog.Start(t)

	ft := &fakeTransport{}
	ft.queueStream(newFakeStream("radio://peer-a"))
	m := newTestManager(t, ft, nil)

	m.Connect("radio://peer-a", false)
	waitForState(t, m, StateConnected)

	m.workerFailed(&acceptor{mgr: m}, roleAcceptor, errors.New("late"))
	if got := m.State(); got != StateConnected {
		t.Fatalf("stale failure changed state to %s", got)
	}
}

func TestStopFromEveryState(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		name    string
		arrange func(t *testing.T, ft *fakeTransport, m *Manager)
	}{
		{"idle", func(t *testing.T, ft *fakeTransport, m *Manager) {}},
		{"connecting", func(t *testing.T, ft *fakeTransport, m *Manager) {
			s := newFakeStream("radio://peer")
			s.connectBlocks = true
			ft.queueStream(s)
			m.Connect("radio://peer", false)
		}},
		{"listening", func(t *testing.T, ft *fakeTransport, m *Manager) {
			m.Listen(false)
		}},
		{"connected", func(t *testing.T, ft *fakeTransport, m *Manager) {
			ft.queueStream(newFakeStream("radio://peer"))
			m.Connect("radio://peer", false)
			waitForState(t, m, StateConnected)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ft := &fakeTransport{}
			m := newTestManager(t, ft, nil)
			tc.arrange(t, ft, m)

			m.Stop()
			if got := m.State(); got != StateIdle {
				t.Fatalf("state after Stop: %s", got)
			}
			if w := activeWorker(m); w != nil {
				t.Fatalf("worker survived Stop: %T", w)
			}

			time.Sleep(30 * time.Millisecond)
			if got := m.State(); got != StateIdle {
				t.Fatalf("late report flipped state to %s", got)
			}
		})
	}
}

func TestTransitionsCloseAbandonedResources(t *testing.T) {
	testlog.Start(t)

	ft := &fakeTransport{}
	s1 := newFakeStream("radio://peer-1")
	s1.connectBlocks = true
	s2 := newFakeStream("radio://peer-2")
	s2.connectBlocks = true
	ft.queueStream(s1)
	ft.queueStream(s2)
	m := newTestManager(t, ft, nil)

	m.Connect("radio://peer-1", false)
	waitFor(t, "first stream opened", func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		return len(ft.openedStreams) == 1
	})

	m.Listen(false)
	waitFor(t, "first stream closed", s1.closed)
	waitFor(t, "listener opened", func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		return len(ft.openedListeners) == 1
	})

	m.Connect("radio://peer-2", false)
	ft.mu.Lock()
	ln := ft.openedListeners[0]
	ft.mu.Unlock()
	waitFor(t, "listener closed", ln.closed)

	m.Stop()
	waitFor(t, "second stream closed", s2.closed)
}
