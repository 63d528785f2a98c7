package link

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/nearwire/tether/internal/observability"
	"github.com/nearwire/tether/internal/protocol/frame"
	"github.com/nearwire/tether/internal/radio"
)

// worker is one cancellable unit of link work. halt is fire and forget:
// it closes the worker's blocking resource, returns immediately, and is
// safe to call more than once. The worker notices on its own goroutine.
type worker interface {
	halt()
}

// Options configure a Manager.
type Options struct {
	// Transport opens outbound streams and inbound listeners.
	Transport radio.Transport
	// Service is the identity advertised when listening.
	Service radio.Service
	// OnMessage receives every completed payload in arrival order. It runs
	// on the channel's receive goroutine; a slow handler stalls receiving.
	OnMessage func(payload []byte)
	// Limits bound frame payload sizes. Zero value means frame.DefaultLimits.
	Limits frame.Limits
}

// Status is a point-in-time snapshot of the link.
type Status struct {
	State    State  `json:"state"`
	Endpoint string `json:"endpoint,omitempty"`
}

// Manager is the connection state machine. At most one worker is active at
// any time; every transition happens under one mutex, and no blocking I/O
// ever runs inside the locked region.
type Manager struct {
	transport radio.Transport
	service   radio.Service
	limits    frame.Limits
	onMessage func([]byte)

	mu       sync.Mutex
	state    State
	worker   worker
	endpoint string
}

// New builds an idle Manager.
func New(opts Options) (*Manager, error) {
	if opts.Transport == nil {
		return nil, ErrNoTransport
	}
	limits := opts.Limits
	if limits.MaxPayloadBytes == 0 {
		limits = frame.DefaultLimits()
	}
	return &Manager{
		transport: opts.Transport,
		service:   opts.Service,
		limits:    limits,
		onMessage: opts.OnMessage,
		state:     StateIdle,
	}, nil
}

// Connect abandons any current work and starts an outbound attempt toward
// endpoint. The outcome arrives asynchronously: the link lands in
// StateConnected or back in StateIdle.
func (m *Manager) Connect(endpoint string, secure bool) {
	m.mu.Lock()
	m.haltWorkerLocked()
	c := &connector{mgr: m, endpoint: endpoint, secure: secure}
	m.worker = c
	m.endpoint = endpoint
	m.setStateLocked(StateConnecting)
	go c.run()
	m.mu.Unlock()

	log.Info().Str("endpoint", endpoint).Bool("secure", secure).Msg("link connect requested")
}

// Listen abandons any current work and starts accepting inbound peers under
// the manager's service identity.
func (m *Manager) Listen(secure bool) {
	m.mu.Lock()
	m.haltWorkerLocked()
	a := &acceptor{mgr: m, service: m.service, secure: secure}
	m.worker = a
	m.endpoint = ""
	m.setStateLocked(StateListening)
	go a.run()
	m.mu.Unlock()

	log.Info().Str("service", m.service.Name).Bool("secure", secure).Msg("link listen requested")
}

// Stop halts the active worker, if any, and returns the link to StateIdle.
// Safe to call in every state.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.haltWorkerLocked()
	m.endpoint = ""
	m.setStateLocked(StateIdle)
	m.mu.Unlock()

	log.Info().Msg("link stopped")
}

// State reports the current lifecycle state. It never blocks on I/O: the
// manager's lock is only ever held for pointer swaps.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status reports the current state together with the remote endpoint, the
// dial target while connecting or the peer address once connected.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{State: m.state, Endpoint: m.endpoint}
}

// Send frames payload onto the live channel. Concurrent senders are
// serialized; each call blocks until its frame is fully written. Returns
// ErrNotConnected when no channel is live.
func (m *Manager) Send(payload []byte) error {
	m.mu.Lock()
	var ch *channel
	if m.state == StateConnected {
		ch, _ = m.worker.(*channel)
	}
	m.mu.Unlock()

	if ch == nil {
		return ErrNotConnected
	}
	return ch.send(payload)
}

// workerConnected promotes stream to a live framed channel, provided the
// reporting worker is still the active one. A stale success, reported after
// the caller already stopped or replaced the worker, closes the stream and
// changes nothing.
func (m *Manager) workerConnected(w worker, stream radio.Stream) {
	m.mu.Lock()
	if m.worker != w {
		m.mu.Unlock()
		stream.Close()
		log.Debug().Str("endpoint", stream.RemoteEndpoint()).Msg("stale link success dropped")
		return
	}
	// Halting the reporter here cannot touch the stream being promoted: the
	// connector detaches its stream before reporting, and the acceptor owns
	// only the listener.
	w.halt()
	ch := newChannel(m, stream, m.limits)
	m.worker = ch
	m.endpoint = stream.RemoteEndpoint()
	m.setStateLocked(StateConnected)
	ch.start()
	m.mu.Unlock()

	log.Info().Str("endpoint", stream.RemoteEndpoint()).Msg("link established")
}

// workerFailed retires the active worker and returns the link to StateIdle.
// A report from a worker that is no longer active is stale and dropped.
func (m *Manager) workerFailed(w worker, role string, err error) {
	m.mu.Lock()
	if m.worker != w {
		m.mu.Unlock()
		log.Debug().Str("role", role).AnErr("cause", err).Msg("stale link failure dropped")
		return
	}
	m.worker = nil
	m.endpoint = ""
	m.setStateLocked(StateIdle)
	m.mu.Unlock()

	observability.RecordLinkFailure(role)
	log.Warn().Str("role", role).Err(err).Msg("link worker failed")
}

// deliver hands one received payload to the configured handler.
func (m *Manager) deliver(payload []byte) {
	if m.onMessage != nil {
		m.onMessage(payload)
	}
}

func (m *Manager) haltWorkerLocked() {
	if m.worker == nil {
		return
	}
	m.worker.halt()
	m.worker = nil
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	observability.RecordLinkState(s.String(), int(s))
}
