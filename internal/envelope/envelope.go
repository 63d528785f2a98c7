// Package envelope defines the payloads stations exchange over the link:
// operator text plus a ping/pong liveness pair, encoded as deterministic
// CBOR so a payload has exactly one wire form.
package envelope

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	cbor "github.com/fxamacker/cbor/v2"
)

// Kind discriminates envelope payloads.
type Kind string

const (
	KindText Kind = "text"
	KindPing Kind = "ping"
	KindPong Kind = "pong"
)

var (
	ErrUnknownKind = errors.New("envelope: unknown kind")
	ErrMissingID   = errors.New("envelope: ping and pong require an id")
)

// Envelope is the single payload format carried inside link frames.
type Envelope struct {
	Kind   Kind   `cbor:"1,keyasint"`
	ID     string `cbor:"2,keyasint,omitempty"`
	From   string `cbor:"3,keyasint,omitempty"`
	SentAt int64  `cbor:"4,keyasint,omitempty"`
	Text   string `cbor:"5,keyasint,omitempty"`
}

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// NewText builds a text envelope from the named station.
func NewText(from, text string) Envelope {
	return Envelope{
		Kind:   KindText,
		ID:     newID(),
		From:   from,
		SentAt: time.Now().UnixMilli(),
		Text:   text,
	}
}

// NewPing builds a liveness probe. The id comes back in the matching pong.
func NewPing(from string) Envelope {
	return Envelope{
		Kind:   KindPing,
		ID:     newID(),
		From:   from,
		SentAt: time.Now().UnixMilli(),
	}
}

// PongFor answers a ping, echoing its id so the sender can correlate.
func PongFor(ping Envelope, from string) Envelope {
	return Envelope{
		Kind:   KindPong,
		ID:     ping.ID,
		From:   from,
		SentAt: time.Now().UnixMilli(),
	}
}

// Time is the envelope timestamp as wall-clock time.
func (e Envelope) Time() time.Time {
	return time.UnixMilli(e.SentAt)
}

func (e Envelope) Validate() error {
	switch e.Kind {
	case KindText:
	case KindPing, KindPong:
		if e.ID == "" {
			return ErrMissingID
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	return nil
}

// Marshal encodes a validated envelope.
func Marshal(e Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return encMode.Marshal(e)
}

// Unmarshal decodes and validates a received payload.
func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	if err := decMode.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("envelope: decode: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

func newID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Out of entropy is not a recoverable application state.
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
