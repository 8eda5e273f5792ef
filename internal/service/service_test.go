package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/danmuck/srvd/internal/client"
	"github.com/danmuck/srvd/internal/protocol"
	"github.com/danmuck/srvd/internal/protocol/frame"
	"github.com/danmuck/srvd/internal/testutil/testlog"
	"golang.org/x/sync/errgroup"
)

func TestTableAddRejectsInvalid(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable()
	h := func(context.Context, *Request, *Response) {}
	if err := tbl.Add(701, h); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := tbl.Add(701, h); !errors.Is(err, ErrServiceExists) {
		t.Fatalf("expected ErrServiceExists, got %v", err)
	}
	if err := tbl.Add(protocol.TypeNone, h); !errors.Is(err, ErrReservedType) {
		t.Fatalf("expected ErrReservedType for none, got %v", err)
	}
	if err := tbl.Add(protocol.TypeStatus, h); !errors.Is(err, ErrReservedType) {
		t.Fatalf("expected ErrReservedType for status, got %v", err)
	}
	if err := tbl.Add(702, nil); !errors.Is(err, ErrHandlerNil) {
		t.Fatalf("expected ErrHandlerNil, got %v", err)
	}
	_ = tbl.Add(101, h)
	if got := tbl.Types(); len(got) != 2 || got[0] != 101 || got[1] != 701 {
		t.Fatalf("types = %v", got)
	}
	if err := tbl.Remove(101); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := tbl.Remove(101); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestDispatchRoutesByFirstFieldType(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable()
	var calledA, calledB bool
	_ = tbl.Add(701, func(_ context.Context, _ *Request, resp *Response) {
		calledA = true
		_ = resp.Packet.AppendString(751, "alice")
		resp.Status = StatusSuccess
	})
	_ = tbl.Add(702, func(_ context.Context, _ *Request, resp *Response) {
		calledB = true
		resp.Status = StatusNotFound
	})

	req := NewRequest()
	_ = req.Packet.AppendString(701, "alice")
	resp := tbl.Dispatch(context.Background(), req)
	if !calledA || calledB {
		t.Fatalf("wrong handler invoked: a=%v b=%v", calledA, calledB)
	}
	if StatusOf(resp.Packet) != StatusSuccess {
		t.Fatalf("status = %v", StatusOf(resp.Packet))
	}
	body := resp.Body()
	if len(body) != 1 || body[0].Type() != 751 {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestDispatchUnknownTypeIsUnavail(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable()
	_ = tbl.Add(701, func(_ context.Context, _ *Request, resp *Response) { resp.Status = StatusSuccess })

	req := NewRequest()
	_ = req.Packet.AppendUint32(999, 1)
	resp := tbl.Dispatch(context.Background(), req)
	if resp.Packet.FieldCount() != 1 || StatusOf(resp.Packet) != StatusUnavail {
		t.Fatalf("expected bare UNAVAIL response, got %d fields status %v", resp.Packet.FieldCount(), StatusOf(resp.Packet))
	}
}

func TestDispatchEmptyTableAndEmptyRequest(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable()
	req := NewRequest()
	_ = req.Packet.AppendString(701, "alice")
	if got := StatusOf(tbl.Dispatch(context.Background(), req).Packet); got != StatusUnavail {
		t.Fatalf("empty table status = %v", got)
	}
	if got := StatusOf(tbl.Dispatch(context.Background(), NewRequest()).Packet); got != StatusUnavail {
		t.Fatalf("empty request status = %v", got)
	}
}

func TestDispatchHandlerPanicIsFail(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable()
	_ = tbl.Add(701, func(_ context.Context, _ *Request, resp *Response) {
		_ = resp.Packet.AppendString(751, "partial")
		panic("boom")
	})
	req := NewRequest()
	_ = req.Packet.AppendString(701, "alice")
	resp := tbl.Dispatch(context.Background(), req)
	if StatusOf(resp.Packet) != StatusFail || resp.Packet.FieldCount() != 1 {
		t.Fatalf("expected bare FAIL, got %v with %d fields", StatusOf(resp.Packet), resp.Packet.FieldCount())
	}
}

func TestStatusOf(t *testing.T) {
	testlog.Start(t)
	if StatusOf(protocol.NewPacket()) != StatusFail {
		t.Fatalf("empty packet must be FAIL")
	}
	wrongType := protocol.NewPacket()
	_ = wrongType.AppendUint16(751, 0)
	if StatusOf(wrongType) != StatusFail {
		t.Fatalf("non-status first field must be FAIL")
	}
	wrongSize := protocol.NewPacket()
	_ = wrongSize.AppendUint32(protocol.TypeStatus, 0)
	if StatusOf(wrongSize) != StatusFail {
		t.Fatalf("4-byte status must be FAIL")
	}
	unknown := protocol.NewPacket()
	_ = unknown.PrependUint16(protocol.TypeStatus, uint16(StatusUnknown))
	if StatusOf(unknown) != StatusUnknown {
		t.Fatalf("UNKNOWN must round trip")
	}
	if StatusNotFound.String() != "NOTFOUND" || Status(42).String() != "STATUS(42)" {
		t.Fatalf("unexpected status strings")
	}
}

func TestQueryResolveFailureIsFail(t *testing.T) {
	testlog.Start(t)
	wantErr := errors.New("no conf")
	q := NewQuerier(func() (client.Client, error) { return nil, wantErr })
	resp, err := q.Query(context.Background(), NewRequest())
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected resolve error, got %v", err)
	}
	if resp == nil || resp.Status != StatusFail {
		t.Fatalf("expected FAIL response, got %+v", resp)
	}
}

func TestQueryOverLoopback(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable()
	_ = tbl.Add(701, func(_ context.Context, _ *Request, resp *Response) {
		_ = resp.Packet.AppendString(751, "alice")
		resp.Status = StatusSuccess
	})
	lb := &loopback{table: tbl}
	q := NewQuerier(lb.resolve)

	req := NewRequest()
	_ = req.Packet.AppendString(701, "alice")
	resp, err := q.Query(context.Background(), req)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.Status != StatusSuccess {
		t.Fatalf("status = %v", resp.Status)
	}
	if lb.connects != 1 || lb.disconnects != 1 || lb.closes != 1 {
		t.Fatalf("transport lifecycle: connect=%d disconnect=%d close=%d", lb.connects, lb.disconnects, lb.closes)
	}

	lb.failRead = true
	resp, err = q.Query(context.Background(), req)
	if err == nil || resp.Status != StatusFail {
		t.Fatalf("expected FAIL on read error, got %v %v", resp.Status, err)
	}
}

func TestEnumeratorsHaveIndependentCursors(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable()
	_ = tbl.Add(703, recordsHandler([]string{"alice", "bob", "carol"}))
	q := NewQuerier((&loopback{table: tbl}).resolve)

	a := NewEnumerator(q, 703)
	b := NewEnumerator(q, 703)
	a.Begin()
	b.Begin()

	names := func(e *Enumerator) string {
		resp, err := e.Next(context.Background())
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if resp.Status != StatusSuccess {
			return resp.Status.String()
		}
		e0, _ := resp.Body()[0].First()
		return e0.String()
	}

	if got := names(a); got != "alice" {
		t.Fatalf("a[0] = %s", got)
	}
	if got := names(a); got != "bob" {
		t.Fatalf("a[1] = %s", got)
	}
	if got := names(b); got != "alice" {
		t.Fatalf("b[0] = %s", got)
	}
	if got := names(a); got != "carol" {
		t.Fatalf("a[2] = %s", got)
	}
	if got := names(a); got != "NOTFOUND" {
		t.Fatalf("a[3] = %s", got)
	}
	if a.Offset() != 3 {
		t.Fatalf("cursor advanced on NOTFOUND: %d", a.Offset())
	}
	a.End()
	if got := names(a); got != "alice" {
		t.Fatalf("restart after End = %s", got)
	}
}

func TestEnumeratorsConcurrentCursors(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable()
	_ = tbl.Add(703, recordsHandler([]string{"alice", "bob", "carol", "dave"}))
	q := NewQuerier((&loopback{table: tbl}).resolve)

	var g errgroup.Group
	for w := 0; w < 4; w++ {
		w := w
		g.Go(func() error {
			e := NewEnumerator(q, 703)
			for pass := 0; pass < 3; pass++ {
				e.Begin()
				var got []string
				for {
					resp, err := e.Next(context.Background())
					if err != nil {
						return err
					}
					if resp.Status != StatusSuccess {
						break
					}
					first, _ := resp.Body()[0].First()
					got = append(got, first.String())
				}
				if fmt.Sprint(got) != "[alice bob carol dave]" {
					return fmt.Errorf("worker %d pass %d saw %v", w, pass, got)
				}
				if e.Offset() != 4 {
					return fmt.Errorf("worker %d pass %d offset %d", w, pass, e.Offset())
				}
				e.End()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestEnumeratorHoldsCursorOnMalformedReply(t *testing.T) {
	testlog.Start(t)
	// Status SUCCESS, then a 751 entry declaring 16 bytes with none left.
	raw := []byte{
		0x00, 0x6E, 0x00, 0x02, 0x00, 0x00, 0x00, 0x0E,
		0xFF, 0xFF, 0x00, 0x01, 0x00, 0x02, 0x00, 0x00,
		0x02, 0xEF, 0x00, 0x01, 0x00, 0x10,
	}
	q := NewQuerier(func() (client.Client, error) { return &cannedClient{reply: raw}, nil })

	e := NewEnumerator(q, 703)
	resp, err := e.Next(context.Background())
	var bounds *protocol.BoundsError
	if !errors.As(err, &bounds) {
		t.Fatalf("expected bounds error, got %v", err)
	}
	if resp.Status != StatusFail {
		t.Fatalf("status = %v, want FAIL", resp.Status)
	}
	if e.Offset() != 0 {
		t.Fatalf("cursor advanced on malformed reply: %d", e.Offset())
	}
}

func recordsHandler(records []string) Handler {
	return func(_ context.Context, req *Request, resp *Response) {
		f, _ := req.Packet.First()
		e, _ := f.First()
		off, err := e.Uint32()
		if err != nil {
			resp.Status = StatusFail
			return
		}
		if int(off) >= len(records) {
			resp.Status = StatusNotFound
			return
		}
		_ = resp.Packet.AppendString(751, records[off])
		resp.Status = StatusSuccess
	}
}

// cannedClient answers every request with the same raw frame.
type cannedClient struct {
	reply     []byte
	connected bool
}

func (c *cannedClient) Connect(context.Context) error { c.connected = true; return nil }
func (c *cannedClient) Disconnect() error             { c.connected = false; return nil }
func (c *cannedClient) Write(*protocol.Packet) error  { return nil }
func (c *cannedClient) Read(p *protocol.Packet) error {
	return frame.ReadPacket(bytes.NewReader(c.reply), p, frame.DefaultLimits())
}
func (c *cannedClient) Connected() bool { return c.connected }
func (c *cannedClient) Close() error    { return nil }

// loopback is an in-memory transport that serializes through the wire
// codec and answers from a Table. It mirrors testutil/loopback, which
// cannot be imported here because it depends on this package.
type loopback struct {
	table    *Table
	failRead bool

	mu                            sync.Mutex
	connects, disconnects, closes int
}

func (l *loopback) resolve() (client.Client, error) {
	return &loopbackClient{lb: l}, nil
}

type loopbackClient struct {
	lb        *loopback
	connected bool
	reply     bytes.Buffer
}

func (c *loopbackClient) Connect(context.Context) error {
	c.lb.mu.Lock()
	c.lb.connects++
	c.lb.mu.Unlock()
	c.connected = true
	return nil
}

func (c *loopbackClient) Disconnect() error {
	if !c.connected {
		return client.ErrNotConnected
	}
	c.lb.mu.Lock()
	c.lb.disconnects++
	c.lb.mu.Unlock()
	c.connected = false
	return nil
}

func (c *loopbackClient) Write(p *protocol.Packet) error {
	var wire bytes.Buffer
	if err := frame.WritePacket(&wire, p, frame.DefaultLimits()); err != nil {
		return err
	}
	req := NewRequest()
	if err := frame.ReadPacket(&wire, req.Packet, frame.DefaultLimits()); err != nil {
		return err
	}
	resp := c.lb.table.Dispatch(context.Background(), req)
	return frame.WritePacket(&c.reply, resp.Packet, frame.DefaultLimits())
}

func (c *loopbackClient) Read(p *protocol.Packet) error {
	if c.lb.failRead {
		return protocol.ErrTruncated
	}
	return frame.ReadPacket(&c.reply, p, frame.DefaultLimits())
}

func (c *loopbackClient) Connected() bool { return c.connected }

func (c *loopbackClient) Close() error {
	c.lb.mu.Lock()
	c.lb.closes++
	c.lb.mu.Unlock()
	return nil
}
