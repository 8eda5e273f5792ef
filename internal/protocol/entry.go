package protocol

import (
	"bytes"
	"encoding/binary"
)

// Entry is one opaque payload attached to a field. Entries are immutable
// once created.
type Entry struct {
	data []byte
}

func newEntry(data []byte) (*Entry, error) {
	if len(data) > MaxEntrySize {
		return nil, ErrEntryTooLarge
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Entry{data: buf}, nil
}

// Size returns the payload length in bytes.
func (e *Entry) Size() int {
	return len(e.data)
}

// Bytes returns a copy of the payload.
func (e *Entry) Bytes() []byte {
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out
}

func (e *Entry) Uint8() (uint8, error) {
	if len(e.data) != 1 {
		return 0, ErrInvalidLength
	}
	return e.data[0], nil
}

func (e *Entry) Uint16() (uint16, error) {
	if len(e.data) != 2 {
		return 0, ErrInvalidLength
	}
	return binary.BigEndian.Uint16(e.data), nil
}

func (e *Entry) Uint32() (uint32, error) {
	if len(e.data) != 4 {
		return 0, ErrInvalidLength
	}
	return binary.BigEndian.Uint32(e.data), nil
}

// String returns the payload up to its first NUL byte. Payloads without a
// terminator are returned whole.
func (e *Entry) String() string {
	if i := bytes.IndexByte(e.data, 0); i >= 0 {
		return string(e.data[:i])
	}
	return string(e.data)
}

// Uint8Bytes encodes v as a single byte.
func Uint8Bytes(v uint8) []byte {
	return []byte{v}
}

// Uint16Bytes encodes v big-endian.
func Uint16Bytes(v uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	return buf
}

// Uint32Bytes encodes v big-endian.
func Uint32Bytes(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}

// StringBytes encodes s with its NUL terminator.
func StringBytes(s string) []byte {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return buf
}
