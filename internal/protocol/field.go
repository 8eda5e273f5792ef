package protocol

import "sync"

// Field is a typed, ordered list of entries. A field may be shared across
// goroutines; all access goes through its lock.
type Field struct {
	typ Type

	mu      sync.RWMutex
	entries []*Entry
}

// NewField creates an empty field of type t.
func NewField(t Type) *Field {
	return &Field{typ: t}
}

func (f *Field) Type() Type {
	return f.typ
}

// EntryCount returns the number of entries currently attached.
func (f *Field) EntryCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Entry returns the entry at index i.
func (f *Field) Entry(i int) (*Entry, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if i < 0 || i >= len(f.entries) {
		return nil, false
	}
	return f.entries[i], true
}

// First returns the first entry, if any.
func (f *Field) First() (*Entry, bool) {
	return f.Entry(0)
}

// Entries returns a snapshot of the entry list.
func (f *Field) Entries() []*Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Add appends a copy of data as the last entry.
func (f *Field) Add(data []byte) error {
	e, err := newEntry(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) >= MaxEntries {
		return ErrTooManyEntries
	}
	f.entries = append(f.entries, e)
	return nil
}

// Inject inserts a copy of data as the first entry.
func (f *Field) Inject(data []byte) error {
	e, err := newEntry(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) >= MaxEntries {
		return ErrTooManyEntries
	}
	f.entries = append(f.entries, nil)
	copy(f.entries[1:], f.entries)
	f.entries[0] = e
	return nil
}

func (f *Field) AddUint8(v uint8) error   { return f.Add(Uint8Bytes(v)) }
func (f *Field) AddUint16(v uint16) error { return f.Add(Uint16Bytes(v)) }
func (f *Field) AddUint32(v uint32) error { return f.Add(Uint32Bytes(v)) }
func (f *Field) AddString(s string) error { return f.Add(StringBytes(s)) }
