package server

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/srvd/internal/protocol/frame"
)

var (
	ErrMissingPath      = errors.New("server: socket path is required")
	ErrInvalidQueueSize = errors.New("server: invalid queue size")
	ErrInvalidTimeout   = errors.New("server: invalid timeout")
	ErrInvalidBodyLimit = errors.New("server: invalid body limit")
	ErrPathTooLong      = errors.New("server: socket path too long")
	ErrAddressInUse     = errors.New("server: socket already served")
	ErrNotSocket        = errors.New("server: path exists and is not a socket")
	ErrAlreadyServing   = errors.New("server: already serving")
	ErrServerClosed     = errors.New("server: closed")
)

// maxSocketPath is the usable length of sun_path.
const maxSocketPath = 107

// BackoffConfig paces accept retries. The delay doubles per consecutive
// failed accept, capped at MaxDelay; Jitter spreads it over [d/2, 3d/2).
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines the listening socket and per-connection limits.
type Config struct {
	Path           string
	QueueSize      int
	Mode           os.FileMode
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	HandlerTimeout time.Duration
	Limits         frame.Limits
	AcceptBackoff  BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Path:           "/run/srvd.sock",
		QueueSize:      128,
		Mode:           0o666,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		HandlerTimeout: 10 * time.Second,
		Limits:         frame.DefaultLimits(),
		AcceptBackoff: BackoffConfig{
			InitialDelay: 5 * time.Millisecond,
			MaxDelay:     time.Second,
		},
	}
}

// Validate checks the config before any socket is created.
func (c Config) Validate() error {
	path := strings.TrimSpace(c.Path)
	if path == "" {
		return ErrMissingPath
	}
	if len(path) > maxSocketPath {
		return fmt.Errorf("%w: %d bytes", ErrPathTooLong, len(path))
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQueueSize, c.QueueSize)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.HandlerTimeout < 0 {
		return ErrInvalidTimeout
	}
	if c.AcceptBackoff.InitialDelay < 0 || c.AcceptBackoff.MaxDelay < 0 {
		return fmt.Errorf("%w: accept backoff", ErrInvalidTimeout)
	}
	if c.Limits.MaxBodyBytes == 0 {
		return ErrInvalidBodyLimit
	}
	return nil
}
