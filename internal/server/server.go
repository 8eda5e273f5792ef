// Package server runs the srvd daemon loop: accept a connection, read one
// request, dispatch it through a service table, write one response, close.
package server

import (
	"context"
	"errors"
	"io/fs"
	"math/rand"
	"net"
	"os"
	"sync"
	"time"

	"github.com/danmuck/srvd/internal/observability"
	"github.com/danmuck/srvd/internal/protocol/frame"
	"github.com/danmuck/srvd/internal/service"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
)

// Server serves a service table on a UNIX stream socket. Each connection
// carries exactly one request and one response.
type Server struct {
	cfg   Config
	table *service.Table
	rng   *rand.Rand

	mu       sync.Mutex
	listener net.Listener
	serving  bool
	closed   bool
	started  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, table *service.Table) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if table == nil {
		table = service.NewTable()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		table:   table,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		started: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func (s *Server) Path() string {
	return s.cfg.Path
}

// Started is closed once the socket is listening.
func (s *Server) Started() <-chan struct{} {
	return s.started
}

// Ready reports whether the server is accepting connections.
func (s *Server) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serving && !s.closed
}

// Services returns the registered service types.
func (s *Server) Services() []uint16 {
	types := s.table.Types()
	out := make([]uint16, len(types))
	for i, t := range types {
		out[i] = uint16(t)
	}
	return out
}

// Serve listens on the configured path and accepts connections until ctx
// is cancelled or Shutdown is called. Call Shutdown afterwards to drain
// in-flight connections and remove the socket file.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	if s.serving {
		s.mu.Unlock()
		return ErrAlreadyServing
	}
	l, err := s.listen()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.listener = l
	s.serving = true
	s.wg.Add(2)
	close(s.started)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
			s.cancel()
			_ = l.Close()
		case <-s.ctx.Done():
		}
	}()

	log.Info().
		Str("path", s.cfg.Path).
		Int("queue_size", s.cfg.QueueSize).
		Int("services", s.table.Len()).
		Msg("server.Server.Serve listening")

	defer s.wg.Done()
	return s.acceptLoop(l)
}

func (s *Server) listen() (net.Listener, error) {
	if err := prepareSocketPath(s.cfg.Path); err != nil {
		return nil, err
	}
	l, err := listenUnix(s.cfg.Path, s.cfg.QueueSize)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(s.cfg.Path, s.cfg.Mode); err != nil {
		_ = l.Close()
		_ = os.Remove(s.cfg.Path)
		return nil, err
	}
	return l, nil
}

// prepareSocketPath removes a stale socket left by a previous run. A
// socket that still answers is never removed.
func prepareSocketPath(path string) error {
	st, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if st.Mode()&os.ModeSocket == 0 {
		return ErrNotSocket
	}
	conn, err := net.DialTimeout("unix", path, 100*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		return ErrAddressInUse
	}
	log.Debug().Str("path", path).Msg("server.prepareSocketPath removing stale socket")
	return os.Remove(path)
}

func (s *Server) acceptLoop(l net.Listener) error {
	retry := newAcceptRetry(s.cfg.AcceptBackoff, s.rng)
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			delay := retry.fail(err)
			stage := "accept"
			if fdExhausted(err) {
				stage = "accept_fds"
			}
			log.Warn().Err(err).Int("failures", retry.failures).Dur("retry_in", delay).Msg("server.Server.acceptLoop accept failed")
			observability.RecordConnectionError(stage)
			if !retry.wait(s.ctx, delay) {
				return nil
			}
			continue
		}
		retry.reset()
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	observability.ConnectionOpened()
	defer observability.ConnectionClosed()

	done := make(chan struct{})
	defer close(done)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.ctx.Done():
		case <-done:
		}
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Debug().Err(err).Msg("server.Server.handleConn close failed")
		}
	}()

	start := time.Now()
	logger := log.With().Logger()
	if peer, ok := peerCredentials(conn); ok {
		logger = log.With().Uint32("peer_pid", peer.PID).Uint32("peer_uid", peer.UID).Logger()
	}

	req := service.NewRequest()
	if s.cfg.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			logger.Warn().Err(err).Msg("server.Server.handleConn set read deadline failed")
			observability.RecordConnectionError("deadline")
			return
		}
	}
	if err := frame.ReadPacket(conn, req.Packet, s.cfg.Limits); err != nil {
		logger.Warn().Err(err).Msg("server.Server.handleConn read request failed")
		observability.RecordConnectionError("read")
		return
	}

	ctx := s.ctx
	if s.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.HandlerTimeout)
		defer cancel()
	}
	resp := s.table.Dispatch(ctx, req)

	if s.cfg.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			logger.Warn().Err(err).Msg("server.Server.handleConn set write deadline failed")
			observability.RecordConnectionError("deadline")
			return
		}
	}
	if err := frame.WritePacket(conn, resp.Packet, s.cfg.Limits); err != nil {
		logger.Warn().Err(err).Msg("server.Server.handleConn write response failed")
		observability.RecordConnectionError("write")
		return
	}

	typ := req.Type()
	logger.Debug().
		Uint16("type", uint16(typ)).
		Stringer("status", resp.Status).
		Dur("duration", time.Since(start)).
		Msg("server.Server.handleConn answered")
	observability.RecordRequest(uint16(typ), resp.Status.String(), time.Since(start))
}

// Shutdown stops accepting, closes in-flight connections, waits for their
// goroutines and removes the socket file.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	l := s.listener
	s.mu.Unlock()

	s.cancel()
	var result *multierror.Error
	if l != nil {
		if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}
	}
	s.wg.Wait()
	if l != nil {
		if err := os.Remove(s.cfg.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result = multierror.Append(result, err)
		}
	}
	log.Info().Str("path", s.cfg.Path).Msg("server.Server.Shutdown complete")
	return result.ErrorOrNil()
}
