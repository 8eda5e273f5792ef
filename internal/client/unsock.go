package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/danmuck/srvd/internal/protocol"
	"github.com/danmuck/srvd/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// Unsock is a UNIX stream socket transport.
type Unsock struct {
	path string
	opts Options

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

func NewUnsock(path string, opts Options) *Unsock {
	return &Unsock{path: path, opts: opts}
}

func (u *Unsock) Path() string {
	return u.path
}

func (u *Unsock) Connect(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return ErrClosed
	}
	if u.conn != nil {
		return ErrConnected
	}
	d := net.Dialer{Timeout: u.opts.Timeout}
	conn, err := d.DialContext(ctx, "unix", u.path)
	if err != nil {
		log.Debug().Err(err).Str("path", u.path).Msg("client.Unsock.Connect dial failed")
		return err
	}
	u.conn = conn
	return nil
}

func (u *Unsock) Disconnect() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return ErrNotConnected
	}
	err := u.conn.Close()
	u.conn = nil
	return err
}

func (u *Unsock) Connected() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.conn != nil
}

func (u *Unsock) Write(p *protocol.Packet) error {
	conn, err := u.current()
	if err != nil {
		return err
	}
	if u.opts.Timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(u.opts.Timeout)); err != nil {
			log.Debug().Err(err).Str("path", u.path).Msg("client.Unsock.Write set deadline failed")
			return fmt.Errorf("client: set write deadline: %w", err)
		}
	}
	return frame.WritePacket(conn, p, u.opts.Limits)
}

func (u *Unsock) Read(p *protocol.Packet) error {
	conn, err := u.current()
	if err != nil {
		return err
	}
	if u.opts.Timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(u.opts.Timeout)); err != nil {
			log.Debug().Err(err).Str("path", u.path).Msg("client.Unsock.Read set deadline failed")
			return fmt.Errorf("client: set read deadline: %w", err)
		}
	}
	return frame.ReadPacket(conn, p, u.opts.Limits)
}

// Close releases the transport, disconnecting first if needed.
func (u *Unsock) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil
	return err
}

func (u *Unsock) current() (net.Conn, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil, ErrNotConnected
	}
	return u.conn, nil
}
