package protocol

import "sync"

// Packet is an ordered list of fields. Fields are only ever added, never
// removed, until Reset.
type Packet struct {
	mu     sync.RWMutex
	fields []*Field
}

// NewPacket returns an empty packet.
func NewPacket() *Packet {
	return &Packet{}
}

// FieldCount returns the number of fields in the packet.
func (p *Packet) FieldCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.fields)
}

// Field returns the field at index i.
func (p *Packet) Field(i int) (*Field, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i < 0 || i >= len(p.fields) {
		return nil, false
	}
	return p.fields[i], true
}

// First returns the first field, if any.
func (p *Packet) First() (*Field, bool) {
	return p.Field(0)
}

// Lookup returns the first field with type t.
func (p *Packet) Lookup(t Type) (*Field, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, f := range p.fields {
		if f.typ == t {
			return f, true
		}
	}
	return nil, false
}

// Fields returns a snapshot of the field list.
func (p *Packet) Fields() []*Field {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Field, len(p.fields))
	copy(out, p.fields)
	return out
}

// Append creates a field of type t holding one entry with a copy of data,
// and adds it after the existing fields.
func (p *Packet) Append(t Type, data []byte) error {
	f, err := fieldWith(t, data)
	if err != nil {
		return err
	}
	return p.AppendField(f)
}

// Prepend creates a field of type t holding one entry with a copy of data,
// and inserts it before the existing fields.
func (p *Packet) Prepend(t Type, data []byte) error {
	f, err := fieldWith(t, data)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.fields) >= MaxFields {
		return ErrTooManyFields
	}
	p.fields = append(p.fields, nil)
	copy(p.fields[1:], p.fields)
	p.fields[0] = f
	return nil
}

// AppendField adds f after the existing fields.
func (p *Packet) AppendField(f *Field) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.fields) >= MaxFields {
		return ErrTooManyFields
	}
	p.fields = append(p.fields, f)
	return nil
}

// GetOrCreate returns the first field of type t, appending an empty one
// when none exists.
func (p *Packet) GetOrCreate(t Type) (*Field, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.fields {
		if f.typ == t {
			return f, nil
		}
	}
	if len(p.fields) >= MaxFields {
		return nil, ErrTooManyFields
	}
	f := NewField(t)
	p.fields = append(p.fields, f)
	return f, nil
}

// Reset drops every field, leaving the packet reusable.
func (p *Packet) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fields = nil
}

func (p *Packet) AppendUint8(t Type, v uint8) error   { return p.Append(t, Uint8Bytes(v)) }
func (p *Packet) AppendUint16(t Type, v uint16) error { return p.Append(t, Uint16Bytes(v)) }
func (p *Packet) AppendUint32(t Type, v uint32) error { return p.Append(t, Uint32Bytes(v)) }
func (p *Packet) AppendString(t Type, s string) error { return p.Append(t, StringBytes(s)) }

func (p *Packet) PrependUint16(t Type, v uint16) error { return p.Prepend(t, Uint16Bytes(v)) }

func fieldWith(t Type, data []byte) (*Field, error) {
	f := NewField(t)
	if err := f.Add(data); err != nil {
		return nil, err
	}
	return f, nil
}
