package service

import (
	"context"

	"github.com/danmuck/srvd/internal/client"
	"github.com/danmuck/srvd/internal/conf"
	"github.com/danmuck/srvd/internal/observability"
	"github.com/rs/zerolog/log"
)

// Resolver returns a fresh, disconnected transport for one exchange.
type Resolver func() (client.Client, error)

// ConfResolver builds transports from the configuration returned by load.
func ConfResolver(load func() (conf.Conf, error)) Resolver {
	return func() (client.Client, error) {
		c, err := load()
		if err != nil {
			return nil, err
		}
		return client.FromConf(c)
	}
}

// Querier runs request/response exchanges against the daemon.
type Querier struct {
	resolve Resolver
}

func NewQuerier(r Resolver) *Querier {
	return &Querier{resolve: r}
}

// DefaultQuerier resolves transports from the process-wide configuration
// file.
func DefaultQuerier() *Querier {
	return NewQuerier(ConfResolver(conf.Default))
}

// Query sends req and reads the reply. The returned response is never nil
// and its Status is always set: StatusFail unless a complete reply with a
// well-formed status field was received. A reply that fails to decode is
// StatusFail even when its leading status field was read.
func (q *Querier) Query(ctx context.Context, req *Request) (*Response, error) {
	resp := NewResponse()
	err := q.exchange(ctx, req, resp)
	if err != nil {
		resp.Status = StatusFail
	} else {
		resp.Status = StatusOf(resp.Packet)
	}
	observability.RecordClientQuery(resp.Status.String())
	return resp, err
}

func (q *Querier) exchange(ctx context.Context, req *Request, resp *Response) error {
	c, err := q.resolve()
	if err != nil {
		log.Debug().Err(err).Msg("service.Querier.Query resolve failed")
		return err
	}
	defer c.Close()

	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Disconnect(); err != nil {
			log.Warn().Err(err).Msg("service.Querier.Query disconnect failed")
		}
	}()

	if err := c.Write(req.Packet); err != nil {
		log.Debug().Err(err).Msg("service.Querier.Query write failed")
		return err
	}
	if err := c.Read(resp.Packet); err != nil {
		log.Debug().Err(err).Msg("service.Querier.Query read failed")
		return err
	}
	return nil
}

// Query runs req through the DefaultQuerier.
func Query(ctx context.Context, req *Request) (*Response, error) {
	return DefaultQuerier().Query(ctx, req)
}
