package protocol

// Type is the 16-bit protocol type tag carried by every field.
type Type uint16

const (
	// TypeNone marks the absence of a protocol type.
	TypeNone Type = 0
	// TypeStatus is reserved for the status field leading every response.
	TypeStatus Type = 65535
)

// Reserved reports whether t can never identify a service.
func (t Type) Reserved() bool {
	return t == TypeNone || t == TypeStatus
}

// Wire layout constants for protocol version 110.
const (
	Version uint16 = 110

	HeaderSize      = 8
	FieldHeaderSize = 4
	EntryHeaderSize = 2
)

// Model limits imposed by the 16-bit wire counters.
const (
	MaxFields    = 1<<16 - 1
	MaxEntries   = 1<<16 - 1
	MaxEntrySize = 1<<16 - 1
)

// Header is the fixed 8-byte packet header.
type Header struct {
	Version    uint16
	FieldCount uint16
	BodySize   uint32
}

// Size returns the full wire size of the packet described by h.
func (h Header) Size() int {
	return HeaderSize + int(h.BodySize)
}
