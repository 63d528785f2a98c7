package frame

// Decoder reassembles framed messages from arbitrarily sliced reads. It
// alternates between two phases: awaiting the 6-byte header, then awaiting
// the payload the header announced. Bytes left over after completing a phase
// feed the next one, so a single chunk may finish one message and begin
// another.
type Decoder struct {
	limits Limits
	phase  decodePhase
	need   int
	buf    []byte
	err    error
}

type decodePhase int

const (
	awaitingHeader decodePhase = iota
	awaitingPayload
)

func NewDecoder(limits Limits) *Decoder {
	return &Decoder{
		limits: limits,
		phase:  awaitingHeader,
		need:   HeaderSize,
	}
}

// Feed consumes chunk and returns the payloads of every message it
// completes, in wire order. A header error is terminal: the decoder keeps
// returning it and the stream must be torn down.
func (d *Decoder) Feed(chunk []byte) ([][]byte, error) {
	if d.err != nil {
		return nil, d.err
	}

	var msgs [][]byte
	for {
		if d.need == 0 {
			if err := d.advance(&msgs); err != nil {
				d.err = err
				return msgs, err
			}
			continue
		}
		if len(chunk) == 0 {
			return msgs, nil
		}
		take := d.need
		if take > len(chunk) {
			take = len(chunk)
		}
		d.buf = append(d.buf, chunk[:take]...)
		d.need -= take
		chunk = chunk[take:]
	}
}

// advance completes the current phase: a full header announces the next
// payload length, a full payload becomes one delivered message.
func (d *Decoder) advance(msgs *[][]byte) error {
	switch d.phase {
	case awaitingHeader:
		n, err := ParseHeader(d.buf, d.limits)
		if err != nil {
			return err
		}
		d.phase = awaitingPayload
		d.need = n
		d.buf = make([]byte, 0, n)
	default:
		msg := d.buf
		if msg == nil {
			msg = []byte{}
		}
		*msgs = append(*msgs, msg)
		d.phase = awaitingHeader
		d.need = HeaderSize
		d.buf = nil
	}
	return nil
}
