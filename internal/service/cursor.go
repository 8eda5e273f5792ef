package service

import (
	"context"
	"sync"

	"github.com/danmuck/srvd/internal/protocol"
)

// Cursor tracks an enumeration offset. The zero value is inactive.
type Cursor struct {
	offset uint32
	active bool
}

// Begin resets the cursor to the first record.
func (c *Cursor) Begin() {
	c.offset = 0
	c.active = true
}

// End deactivates the cursor; the next Begin restarts at zero.
func (c *Cursor) End() {
	c.offset = 0
	c.active = false
}

func (c *Cursor) Active() bool   { return c.active }
func (c *Cursor) Offset() uint32 { return c.offset }

func (c *Cursor) advance() {
	c.offset++
}

// Enumerator walks a service's records one query at a time. Each
// enumerator owns its cursor, so concurrent enumerations never share
// progress.
type Enumerator struct {
	querier *Querier
	reqType protocol.Type

	mu     sync.Mutex
	cursor Cursor
}

func NewEnumerator(q *Querier, reqType protocol.Type) *Enumerator {
	return &Enumerator{querier: q, reqType: reqType}
}

func (e *Enumerator) Begin() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cursor.Begin()
}

func (e *Enumerator) End() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cursor.End()
}

// Offset returns the offset the next call to Next will request.
func (e *Enumerator) Offset() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor.Offset()
}

// Next requests the record at the current offset. The cursor advances only
// on a complete StatusSuccess reply. Calling Next before Begin starts at offset zero.
func (e *Enumerator) Next(ctx context.Context) (*Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.cursor.Active() {
		e.cursor.Begin()
	}
	req := NewRequest()
	if err := req.Packet.AppendUint32(e.reqType, e.cursor.Offset()); err != nil {
		resp := NewResponse()
		resp.Status = StatusFail
		return resp, err
	}
	resp, err := e.querier.Query(ctx, req)
	if err == nil && resp.Status == StatusSuccess {
		e.cursor.advance()
	}
	return resp, err
}
