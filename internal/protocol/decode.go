package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog/log"
)

// UnserializeHeader parses the fixed packet header and gates on the
// protocol version.
func UnserializeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrTruncated
	}
	h := Header{
		Version:    binary.BigEndian.Uint16(buf[0:2]),
		FieldCount: binary.BigEndian.Uint16(buf[2:4]),
		BodySize:   binary.BigEndian.Uint32(buf[4:8]),
	}
	if h.Version != Version {
		log.Debug().
			Uint16("got", h.Version).
			Uint16("want", Version).
			Msg("protocol.UnserializeHeader version mismatch")
		return Header{}, fmt.Errorf("%w: got %d want %d", ErrVersionMismatch, h.Version, Version)
	}
	return h, nil
}

// UnserializeBody decodes exactly h.FieldCount fields from the first
// h.BodySize bytes of body and appends them to p. Every length read from
// the wire is checked against the remaining body before it is used. On
// error, fields decoded before the failure stay in p.
func UnserializeBody(body []byte, h Header, p *Packet) error {
	if p == nil {
		return ErrNilPacket
	}
	if uint64(len(body)) < uint64(h.BodySize) {
		return fmt.Errorf("%w: body has %d bytes, header declares %d", ErrTruncated, len(body), h.BodySize)
	}
	body = body[:h.BodySize]

	off := 0
	for i := 0; i < int(h.FieldCount); i++ {
		if err := need(body, off, FieldHeaderSize, "field header"); err != nil {
			return err
		}
		f := NewField(Type(binary.BigEndian.Uint16(body[off : off+2])))
		count := int(binary.BigEndian.Uint16(body[off+2 : off+4]))
		off += FieldHeaderSize

		entries := make([]*Entry, 0, count)
		for j := 0; j < count; j++ {
			if err := need(body, off, EntryHeaderSize, "entry header"); err != nil {
				return err
			}
			size := int(binary.BigEndian.Uint16(body[off : off+2]))
			off += EntryHeaderSize
			if err := need(body, off, size, "entry payload"); err != nil {
				return err
			}
			data := make([]byte, size)
			copy(data, body[off:off+size])
			entries = append(entries, &Entry{data: data})
			off += size
		}
		f.entries = entries

		if err := p.AppendField(f); err != nil {
			return err
		}
	}

	if off != len(body) {
		log.Debug().
			Int("consumed", off).
			Int("declared", len(body)).
			Msg("protocol.UnserializeBody trailing bytes")
		return fmt.Errorf("%w: %w: %d bytes", ErrMalformed, ErrTrailingBytes, len(body)-off)
	}
	return nil
}

func need(body []byte, off, n int, stage string) error {
	if n <= len(body)-off {
		return nil
	}
	err := &BoundsError{Stage: stage, Offset: off, Need: n, Remaining: len(body) - off}
	log.Debug().Err(err).Msg("protocol.UnserializeBody bounds check failed")
	return err
}
