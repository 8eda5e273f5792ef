package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/danmuck/srvd/internal/protocol"
)

var (
	ErrServiceExists   = errors.New("service: type already registered")
	ErrServiceNotFound = errors.New("service: type not registered")
	ErrHandlerNil      = errors.New("service: handler is nil")
	ErrReservedType    = errors.New("service: reserved type")
)

// Handler answers one request. It sets resp.Status and may add fields to
// resp.Packet; the status field itself is added by the dispatcher.
type Handler func(ctx context.Context, req *Request, resp *Response)

// Table stores handlers by protocol type. It is safe for concurrent use.
type Table struct {
	mu    sync.RWMutex
	items map[protocol.Type]Handler
}

func NewTable() *Table {
	return &Table{items: make(map[protocol.Type]Handler)}
}

// Add registers h for type t.
func (t *Table) Add(typ protocol.Type, h Handler) error {
	if typ.Reserved() {
		return fmt.Errorf("%w: %d", ErrReservedType, typ)
	}
	if h == nil {
		return ErrHandlerNil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.items[typ]; ok {
		return fmt.Errorf("%w: %d", ErrServiceExists, typ)
	}
	t.items[typ] = h
	return nil
}

func (t *Table) Remove(typ protocol.Type) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.items[typ]; !ok {
		return fmt.Errorf("%w: %d", ErrServiceNotFound, typ)
	}
	delete(t.items, typ)
	return nil
}

// Lookup returns the handler registered for t.
func (t *Table) Lookup(typ protocol.Type) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.items[typ]
	return h, ok
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// Types returns the registered types in ascending order.
func (t *Table) Types() []protocol.Type {
	t.mu.RLock()
	out := make([]protocol.Type, 0, len(t.items))
	for typ := range t.items {
		out = append(out, typ)
	}
	t.mu.RUnlock()
	slices.Sort(out)
	return out
}
