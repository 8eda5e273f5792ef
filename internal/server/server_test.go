package server

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/danmuck/srvd/internal/client"
	"github.com/danmuck/srvd/internal/protocol"
	"github.com/danmuck/srvd/internal/service"
	"github.com/danmuck/srvd/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func startServer(t *testing.T, table *service.Table) (*Server, *service.Querier) {
	t.Helper()
	dir, err := os.MkdirTemp("", "srvd")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	cfg := DefaultConfig()
	cfg.Path = filepath.Join(dir, "srvd.sock")
	cfg.ReadTimeout = time.Second
	cfg.WriteTimeout = time.Second
	srv, err := New(cfg, table)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(context.Background()) }()
	select {
	case <-srv.Started():
	case err := <-errCh:
		t.Fatalf("serve: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not start")
	}
	t.Cleanup(func() {
		require.NoError(t, srv.Shutdown())
		require.NoError(t, <-errCh)
	})

	q := service.NewQuerier(func() (client.Client, error) {
		opts := client.DefaultOptions()
		opts.Timeout = time.Second
		return client.NewUnsock(cfg.Path, opts), nil
	})
	return srv, q
}

func nameTable(t *testing.T) *service.Table {
	t.Helper()
	tbl := service.NewTable()
	require.NoError(t, tbl.Add(701, func(_ context.Context, req *service.Request, resp *service.Response) {
		f, _ := req.Packet.First()
		e, _ := f.First()
		if e.String() != "alice" {
			resp.Status = service.StatusNotFound
			return
		}
		_ = resp.Packet.AppendString(751, "alice")
		_ = resp.Packet.AppendUint32(752, 1000)
		resp.Status = service.StatusSuccess
	}))
	return tbl
}

func TestServeAnswersRegisteredService(t *testing.T) {
	testlog.Start(t)
	srv, q := startServer(t, nameTable(t))
	require.True(t, srv.Ready())
	require.Equal(t, []uint16{701}, srv.Services())

	info, err := os.Stat(srv.Path())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o666), info.Mode().Perm())

	req := service.NewRequest()
	require.NoError(t, req.Packet.AppendString(701, "alice"))
	resp, err := q.Query(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, service.StatusSuccess, resp.Status)

	body := resp.Body()
	require.Len(t, body, 2)
	require.Equal(t, protocol.Type(751), body[0].Type())
	uid, _ := body[1].First()
	v, err := uid.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(1000), v)

	miss := service.NewRequest()
	require.NoError(t, miss.Packet.AppendString(701, "mallory"))
	resp, err = q.Query(context.Background(), miss)
	require.NoError(t, err)
	require.Equal(t, service.StatusNotFound, resp.Status)
}

func TestServeUnknownServiceIsUnavail(t *testing.T) {
	testlog.Start(t)
	_, q := startServer(t, service.NewTable())

	req := service.NewRequest()
	require.NoError(t, req.Packet.AppendUint32(999, 0))
	resp, err := q.Query(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, service.StatusUnavail, resp.Status)
	require.Equal(t, 1, resp.Packet.FieldCount())
}

func TestServeConcurrentClients(t *testing.T) {
	testlog.Start(t)
	_, q := startServer(t, nameTable(t))

	var g errgroup.Group
	for n := 0; n < 32; n++ {
		g.Go(func() error {
			req := service.NewRequest()
			if err := req.Packet.AppendString(701, "alice"); err != nil {
				return err
			}
			resp, err := q.Query(context.Background(), req)
			if err != nil {
				return err
			}
			if resp.Status != service.StatusSuccess {
				return errors.New("unexpected status " + resp.Status.String())
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestServeDropsMalformedRequest(t *testing.T) {
	testlog.Start(t)
	srv, _ := startServer(t, nameTable(t))

	conn, err := net.Dial("unix", srv.Path())
	require.NoError(t, err)
	defer conn.Close()

	head := make([]byte, protocol.HeaderSize)
	protocol.EncodeHeader(head, protocol.Header{Version: protocol.Version, FieldCount: 1, BodySize: 8})
	body := []byte{0x02, 0xBD, 0x00, 0x01, 0x00, 0x10, 'x', 'y'}
	_, err = conn.Write(append(head, body...))
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(make([]byte, 16))
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)
}

func TestServeRejectsOversizedDeclaredBody(t *testing.T) {
	testlog.Start(t)
	srv, _ := startServer(t, nameTable(t))

	conn, err := net.Dial("unix", srv.Path())
	require.NoError(t, err)
	defer conn.Close()

	head := make([]byte, protocol.HeaderSize)
	binary.BigEndian.PutUint16(head[0:2], protocol.Version)
	binary.BigEndian.PutUint16(head[2:4], 1)
	binary.BigEndian.PutUint32(head[4:8], 1<<31)
	_, err = conn.Write(head)
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(make([]byte, 16))
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)
}

func TestShutdownRemovesSocketAndRefusesServe(t *testing.T) {
	testlog.Start(t)
	dir, err := os.MkdirTemp("", "srvd")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	cfg := DefaultConfig()
	cfg.Path = filepath.Join(dir, "srvd.sock")
	srv, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()
	<-srv.Started()
	require.ErrorIs(t, srv.Serve(ctx), ErrAlreadyServing)

	cancel()
	require.NoError(t, <-errCh)
	require.NoError(t, srv.Shutdown())
	require.NoError(t, srv.Shutdown())
	_, err = os.Stat(cfg.Path)
	require.True(t, errors.Is(err, os.ErrNotExist))
	require.False(t, srv.Ready())
	require.ErrorIs(t, srv.Serve(context.Background()), ErrServerClosed)
}

func TestPrepareSocketPath(t *testing.T) {
	testlog.Start(t)
	dir, err := os.MkdirTemp("", "srvd")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	regular := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(regular, []byte("x"), 0o600))
	require.ErrorIs(t, prepareSocketPath(regular), ErrNotSocket)

	live := filepath.Join(dir, "live.sock")
	l, err := net.Listen("unix", live)
	require.NoError(t, err)
	require.ErrorIs(t, prepareSocketPath(live), ErrAddressInUse)

	ul := l.(*net.UnixListener)
	ul.SetUnlinkOnClose(false)
	require.NoError(t, l.Close())
	require.NoError(t, prepareSocketPath(live))
	_, err = os.Stat(live)
	require.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, prepareSocketPath(filepath.Join(dir, "absent.sock")))
}

func TestConfigValidate(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Path = " "
	require.ErrorIs(t, bad.Validate(), ErrMissingPath)

	bad = cfg
	bad.QueueSize = -1
	require.ErrorIs(t, bad.Validate(), ErrInvalidQueueSize)

	bad = cfg
	bad.ReadTimeout = -time.Second
	require.ErrorIs(t, bad.Validate(), ErrInvalidTimeout)

	bad = cfg
	bad.Limits.MaxBodyBytes = 0
	require.ErrorIs(t, bad.Validate(), ErrInvalidBodyLimit)

	bad = cfg
	bad.Path = "/" + string(make([]byte, 200))
	require.ErrorIs(t, bad.Validate(), ErrPathTooLong)
}

// deadlineConn fails the selected deadline call and counts I/O.
type deadlineConn struct {
	net.Conn
	failRead, failWrite bool
	reads, writes       atomic.Int32
}

func (c *deadlineConn) SetReadDeadline(t time.Time) error {
	if c.failRead {
		return os.ErrDeadlineExceeded
	}
	return c.Conn.SetReadDeadline(t)
}

func (c *deadlineConn) SetWriteDeadline(t time.Time) error {
	if c.failWrite {
		return os.ErrDeadlineExceeded
	}
	return c.Conn.SetWriteDeadline(t)
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	c.reads.Add(1)
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	c.writes.Add(1)
	return c.Conn.Write(b)
}

func TestHandleConnStopsOnDeadlineFailure(t *testing.T) {
	testlog.Start(t)
	table := service.NewTable()
	require.NoError(t, table.Add(701, func(_ context.Context, _ *service.Request, resp *service.Response) {
		resp.Status = service.StatusSuccess
	}))
	s, err := New(DefaultConfig(), table)
	require.NoError(t, err)
	defer s.cancel()

	t.Run("read", func(t *testing.T) {
		local, remote := net.Pipe()
		defer remote.Close()
		conn := &deadlineConn{Conn: local, failRead: true}
		s.wg.Add(1)
		s.handleConn(conn)
		require.Zero(t, conn.reads.Load())
		require.Zero(t, conn.writes.Load())
	})

	t.Run("write", func(t *testing.T) {
		local, remote := net.Pipe()
		defer remote.Close()
		req := protocol.NewPacket()
		require.NoError(t, req.AppendString(701, "alice"))
		sp, err := protocol.Serialize(req)
		require.NoError(t, err)
		go func() { _, _ = remote.Write(sp.Data) }()

		conn := &deadlineConn{Conn: local, failWrite: true}
		s.wg.Add(1)
		s.handleConn(conn)
		require.NotZero(t, conn.reads.Load())
		require.Zero(t, conn.writes.Load())
	})
}

func TestAcceptRetryDoublesAndResets(t *testing.T) {
	r := newAcceptRetry(BackoffConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}, nil)
	transient := errors.New("accept: connection aborted")
	require.Equal(t, 10*time.Millisecond, r.fail(transient))
	require.Equal(t, 20*time.Millisecond, r.fail(transient))
	require.Equal(t, 40*time.Millisecond, r.fail(transient))
	require.Equal(t, 50*time.Millisecond, r.fail(transient))
	require.Equal(t, 50*time.Millisecond, r.fail(transient))

	r.reset()
	require.Equal(t, 10*time.Millisecond, r.fail(transient))
}

func TestAcceptRetryDescriptorExhaustion(t *testing.T) {
	r := newAcceptRetry(BackoffConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}, nil)
	err := &net.OpError{Op: "accept", Net: "unix", Err: os.NewSyscallError("accept4", syscall.EMFILE)}
	require.True(t, fdExhausted(err))
	require.Equal(t, 50*time.Millisecond, r.fail(err))
}

func TestAcceptRetryJitterBounds(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 40 * time.Millisecond, MaxDelay: time.Second, Jitter: true}
	r := newAcceptRetry(cfg, rand.New(rand.NewSource(1)))
	for i := 0; i < 50; i++ {
		r.reset()
		d := r.fail(errors.New("transient"))
		require.GreaterOrEqual(t, d, 20*time.Millisecond)
		require.Less(t, d, 60*time.Millisecond)
	}
}

func TestAcceptRetryWaitStopsOnCancel(t *testing.T) {
	r := newAcceptRetry(BackoffConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, r.wait(ctx, time.Millisecond))
	cancel()
	require.False(t, r.wait(ctx, time.Hour))
	require.False(t, r.wait(ctx, 0))
}
