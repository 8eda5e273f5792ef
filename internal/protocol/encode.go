package protocol

import (
	"encoding/binary"
	"math"
)

// SerializedPacket is the complete wire image of a packet.
type SerializedPacket struct {
	Data       []byte
	FieldCount uint16
	BodySize   uint32
}

// Size returns the total number of bytes to transmit.
func (s SerializedPacket) Size() int {
	return len(s.Data)
}

// Serialize produces the version 110 wire image of p. The packet is not
// modified.
func Serialize(p *Packet) (SerializedPacket, error) {
	if p == nil {
		return SerializedPacket{}, ErrNilPacket
	}
	fields := p.Fields()
	if len(fields) > MaxFields {
		return SerializedPacket{}, ErrTooManyFields
	}

	snapshot := make([][]*Entry, len(fields))
	var body uint64
	for i, f := range fields {
		entries := f.Entries()
		if len(entries) > MaxEntries {
			return SerializedPacket{}, ErrTooManyEntries
		}
		snapshot[i] = entries
		body += FieldHeaderSize
		for _, e := range entries {
			body += EntryHeaderSize + uint64(len(e.data))
		}
	}
	if body > math.MaxUint32 {
		return SerializedPacket{}, ErrBodyTooLarge
	}

	head := Header{
		Version:    Version,
		FieldCount: uint16(len(fields)),
		BodySize:   uint32(body),
	}
	buf := make([]byte, head.Size())
	EncodeHeader(buf, head)

	off := HeaderSize
	for i, f := range fields {
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(f.typ))
		binary.BigEndian.PutUint16(buf[off+2:off+4], uint16(len(snapshot[i])))
		off += FieldHeaderSize
		for _, e := range snapshot[i] {
			binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(e.data)))
			off += EntryHeaderSize
			off += copy(buf[off:], e.data)
		}
	}

	return SerializedPacket{
		Data:       buf,
		FieldCount: head.FieldCount,
		BodySize:   head.BodySize,
	}, nil
}

// EncodeHeader writes h into the first HeaderSize bytes of buf.
func EncodeHeader(buf []byte, h Header) {
	binary.BigEndian.PutUint16(buf[0:2], h.Version)
	binary.BigEndian.PutUint16(buf[2:4], h.FieldCount)
	binary.BigEndian.PutUint32(buf[4:8], h.BodySize)
}
