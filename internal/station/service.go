package station

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nearwire/tether/internal/envelope"
	"github.com/nearwire/tether/internal/link"
	"github.com/nearwire/tether/internal/radio"
)

const DefaultHistoryLimit = 128

var ErrPingTimeout = errors.New("station: ping timed out")

// Direction marks which way a message crossed the link.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Message is one history entry, flattened for the admin API.
type Message struct {
	Direction Direction `json:"direction"`
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}

// Options configure a Service.
type Options struct {
	Name         string
	UUID         string
	Transport    radio.Transport
	HistoryLimit int
}

// Service owns one station: the link to the peer, the envelope pipeline on
// top of it, and the bounded history operators read back.
type Service struct {
	name    string
	uuid    string
	started time.Time

	link    *link.Manager
	history *ring

	mu      sync.Mutex
	pending map[string]chan struct{}
}

func New(opts Options) (*Service, error) {
	if opts.Name == "" {
		return nil, errors.New("station: name is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("station: transport is required")
	}
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	s := &Service{
		name:    opts.Name,
		uuid:    opts.UUID,
		started: time.Now(),
		history: newRing(limit),
		pending: make(map[string]chan struct{}),
	}
	mgr, err := link.New(link.Options{
		Transport: opts.Transport,
		Service:   radio.Service{Name: opts.Name, UUID: opts.UUID},
		OnMessage: s.handleFrame,
	})
	if err != nil {
		return nil, err
	}
	s.link = mgr
	return s, nil
}

func (s *Service) Name() string { return s.name }

func (s *Service) Started() time.Time { return s.started }

func (s *Service) LinkState() link.State {
	return s.link.State()
}

func (s *Service) LinkStatus() link.Status {
	return s.link.Status()
}

// Connect points the link at a remote station. The outcome is visible
// through LinkStatus.
func (s *Service) Connect(endpoint string, secure bool) {
	s.link.Connect(endpoint, secure)
}

// Listen opens the station for one inbound peer.
func (s *Service) Listen(secure bool) {
	s.link.Listen(secure)
}

// StopLink abandons the current link activity.
func (s *Service) StopLink() {
	s.link.Stop()
}

// Close tears the station down.
func (s *Service) Close() {
	s.link.Stop()
}

// SendText sends a text envelope to the peer and records it in history.
func (s *Service) SendText(text string) (Message, error) {
	env := envelope.NewText(s.name, text)
	if err := s.send(env); err != nil {
		return Message{}, err
	}
	msg := Message{
		Direction: DirectionOut,
		ID:        env.ID,
		From:      env.From,
		Text:      env.Text,
		At:        env.Time(),
	}
	s.history.push(msg)
	return msg, nil
}

// Ping probes the peer and reports the round trip time.
func (s *Service) Ping(ctx context.Context) (time.Duration, error) {
	env := envelope.NewPing(s.name)
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	s.pending[env.ID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, env.ID)
		s.mu.Unlock()
	}()

	start := time.Now()
	if err := s.send(env); err != nil {
		return 0, err
	}

	select {
	case <-ch:
		return time.Since(start), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, ErrPingTimeout
		}
		return 0, ctx.Err()
	}
}

// History returns retained messages oldest first, trimmed to the newest
// limit entries when limit is positive.
func (s *Service) History(limit int) []Message {
	return s.history.snapshot(limit)
}

func (s *Service) send(env envelope.Envelope) error {
	data, err := envelope.Marshal(env)
	if err != nil {
		return err
	}
	return s.link.Send(data)
}

// handleFrame runs on the link's receive goroutine. It must never write to
// the link directly: the peer may be mid-write too, and an unbuffered
// transport would deadlock both receive loops.
func (s *Service) handleFrame(payload []byte) {
	env, err := envelope.Unmarshal(payload)
	if err != nil {
		log.Warn().Err(err).Int("bytes", len(payload)).Msg("undecodable envelope dropped")
		return
	}

	switch env.Kind {
	case envelope.KindText:
		s.history.push(Message{
			Direction: DirectionIn,
			ID:        env.ID,
			From:      env.From,
			Text:      env.Text,
			At:        env.Time(),
		})
		log.Info().Str("from", env.From).Int("chars", len(env.Text)).Msg("text received")

	case envelope.KindPing:
		pong := envelope.PongFor(env, s.name)
		go func() {
			if err := s.send(pong); err != nil {
				log.Debug().Err(err).Str("ping", env.ID).Msg("pong not sent")
			}
		}()
		log.Debug().Str("from", env.From).Str("id", env.ID).Msg("ping answered")

	case envelope.KindPong:
		s.mu.Lock()
		ch := s.pending[env.ID]
		s.mu.Unlock()
		if ch != nil {
			select {
			case ch <- struct{}{}:
			default:
			}
		} else {
			log.Debug().Str("id", env.ID).Msg("unmatched pong dropped")
		}
	}
}
