// Package frame implements the tether wire framing: a 6-byte header (two
// version bytes and a big-endian signed 32-bit payload length) followed by
// the payload. The header is the atomic unit boundary; payload bytes are
// opaque to this package.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	MajorVersion byte = 0
	MinorVersion byte = 1

	// HeaderSize is two version bytes plus the 4-byte payload length.
	HeaderSize = 6
)

var (
	ErrNegativeLength  = errors.New("frame: negative payload length")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 16 * 1024 * 1024,
	}
}

// EncodeHeader builds the header announcing a payload of length n.
func EncodeHeader(n int) [HeaderSize]byte {
	var b [HeaderSize]byte
	b[0] = MajorVersion
	b[1] = MinorVersion
	binary.BigEndian.PutUint32(b[2:HeaderSize], uint32(n))
	return b
}

// ParseHeader extracts the announced payload length. Version bytes are
// tolerated rather than enforced; the length must be non-negative and within
// limits.
func ParseHeader(b []byte, limits Limits) (int, error) {
	if len(b) != HeaderSize {
		return 0, fmt.Errorf("frame: invalid header length: %d", len(b))
	}
	n := int32(binary.BigEndian.Uint32(b[2:HeaderSize]))
	if n < 0 {
		return 0, ErrNegativeLength
	}
	if limits.MaxPayloadBytes > 0 && int(n) > limits.MaxPayloadBytes {
		return 0, ErrPayloadTooLarge
	}
	return int(n), nil
}

// WriteMessage writes one framed message, header then payload. Callers that
// share w across goroutines must serialize calls; a partially written
// message cannot be recovered from.
func WriteMessage(w io.Writer, payload []byte, limits Limits) error {
	if limits.MaxPayloadBytes > 0 && len(payload) > limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	hdr := EncodeHeader(len(payload))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}
