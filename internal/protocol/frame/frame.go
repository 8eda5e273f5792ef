package frame

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/srvd/internal/protocol"
)

var (
	ErrShortHeader  = errors.New("frame: short packet header")
	ErrShortBody    = errors.New("frame: short packet body")
	ErrBodyTooLarge = errors.New("frame: body too large")
)

// Limits constrains decode/encode memory use.
type Limits struct {
	MaxBodyBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxBodyBytes: 1 << 20,
	}
}

// ReadPacket reads one complete packet from r into p. The declared body
// size is checked against limits before any body buffer is allocated.
func ReadPacket(r io.Reader, p *protocol.Packet, limits Limits) error {
	var head [protocol.HeaderSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %w", ErrShortHeader, protocol.ErrTruncated)
		}
		return err
	}

	h, err := protocol.UnserializeHeader(head[:])
	if err != nil {
		return err
	}
	if h.BodySize > limits.MaxBodyBytes {
		return fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, h.BodySize, limits.MaxBodyBytes)
	}

	body := make([]byte, h.BodySize)
	if h.BodySize > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: %w", ErrShortBody, protocol.ErrTruncated)
			}
			return err
		}
	}
	return protocol.UnserializeBody(body, h, p)
}

// WritePacket serializes p and writes the whole image to w.
func WritePacket(w io.Writer, p *protocol.Packet, limits Limits) error {
	sp, err := protocol.Serialize(p)
	if err != nil {
		return err
	}
	if sp.BodySize > limits.MaxBodyBytes {
		return fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, sp.BodySize, limits.MaxBodyBytes)
	}
	return writeFull(w, sp.Data)
}

func writeFull(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}
