package link

import (
	"sync"

	"github.com/nearwire/tether/internal/observability"
	"github.com/nearwire/tether/internal/protocol/frame"
	"github.com/nearwire/tether/internal/radio"
)

// readBufferSize is the raw read chunk for the receive loop. Reads of any
// size are fine; the decoder reassembles frames across chunk boundaries.
const readBufferSize = 4096

// channel frames traffic over one established stream. Sends run on the
// caller's goroutine, serialized by wmu so frames never interleave.
// Receives run on a dedicated loop feeding the streaming decoder.
type channel struct {
	mgr    *Manager
	stream radio.Stream
	limits frame.Limits

	wmu sync.Mutex

	closeOnce sync.Once
	failOnce  sync.Once
}

func newChannel(m *Manager, s radio.Stream, limits frame.Limits) *channel {
	return &channel{mgr: m, stream: s, limits: limits}
}

func (c *channel) start() {
	go c.run()
}

// run is the receive loop. Payloads completed by a chunk are delivered
// before any error carried by that same read is acted on.
func (c *channel) run() {
	dec := frame.NewDecoder(c.limits)
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.stream.Read(buf)
		if n > 0 {
			msgs, derr := dec.Feed(buf[:n])
			for _, msg := range msgs {
				observability.RecordFrameReceived(len(msg))
				c.mgr.deliver(msg)
			}
			if derr != nil {
				c.fail(derr)
				return
			}
		}
		if err != nil {
			c.fail(err)
			return
		}
	}
}

// send writes one framed message and blocks until it is fully written.
// An oversized payload is rejected without touching the stream; any actual
// write error tears the channel down.
func (c *channel) send(payload []byte) error {
	if c.limits.MaxPayloadBytes > 0 && len(payload) > c.limits.MaxPayloadBytes {
		return frame.ErrPayloadTooLarge
	}

	c.wmu.Lock()
	err := frame.WriteMessage(c.stream, payload, c.limits)
	c.wmu.Unlock()
	if err != nil {
		c.fail(err)
		return err
	}

	observability.RecordFrameSent(len(payload))
	return nil
}

// fail closes the stream and reports the first terminal error exactly once.
func (c *channel) fail(err error) {
	c.closeStream()
	c.failOnce.Do(func() {
		c.mgr.workerFailed(c, roleChannel, err)
	})
}

func (c *channel) closeStream() {
	c.closeOnce.Do(func() {
		c.stream.Close()
	})
}

// halt tears the stream down without reporting. The receive loop observes
// the closed stream and reports on its own goroutine; the manager drops
// that report as stale.
func (c *channel) halt() {
	c.closeStream()
}
