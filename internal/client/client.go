// Package client implements the transports a query uses to reach srvd.
package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/danmuck/srvd/internal/conf"
	"github.com/danmuck/srvd/internal/protocol"
	"github.com/danmuck/srvd/internal/protocol/frame"
)

const DefaultSocketPath = "/run/srvd.sock"

var (
	ErrConnected             = errors.New("client: already connected")
	ErrNotConnected          = errors.New("client: not connected")
	ErrClosed                = errors.New("client: closed")
	ErrMissingKey            = errors.New("client: missing configuration key")
	ErrUnknownAdapter        = errors.New("client: unknown adapter")
	ErrAdapterNotImplemented = errors.New("client: adapter not implemented")
	ErrInvalidTimeout        = errors.New("client: invalid timeout")
)

// Client is one transport instance. A client carries a single
// request/response exchange per connection.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Write(p *protocol.Packet) error
	Read(p *protocol.Packet) error
	Connected() bool
	Close() error
}

// Options apply to every adapter.
type Options struct {
	Timeout time.Duration
	Limits  frame.Limits
}

func DefaultOptions() Options {
	return Options{
		Timeout: 5 * time.Second,
		Limits:  frame.DefaultLimits(),
	}
}

type adapterFunc func(c conf.Conf, opts Options) (Client, error)

var adapters = map[string]adapterFunc{
	"unsock": func(c conf.Conf, opts Options) (Client, error) {
		path, ok := c.Get(conf.KeyClientPath)
		if !ok || strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingKey, conf.KeyClientPath)
		}
		return NewUnsock(path, opts), nil
	},
	"tcp": func(conf.Conf, Options) (Client, error) {
		return nil, fmt.Errorf("%w: tcp", ErrAdapterNotImplemented)
	},
}

// Adapters returns the adapter names FromConf understands.
func Adapters() []string {
	out := make([]string, 0, len(adapters))
	for name := range adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FromConf builds a disconnected client from the client:* keys of c.
func FromConf(c conf.Conf) (Client, error) {
	name, ok := c.Get(conf.KeyClientAdapter)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, conf.KeyClientAdapter)
	}
	build, ok := adapters[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAdapter, name)
	}
	opts := DefaultOptions()
	if raw, ok := c.Get(conf.KeyClientTimeout); ok {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil || d < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTimeout, raw)
		}
		opts.Timeout = d
	}
	return build(c, opts)
}
