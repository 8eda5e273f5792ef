// Package loopback provides an in-memory client transport that answers
// from a service table through the real wire codec.
package loopback

import (
	"bytes"
	"context"

	"github.com/danmuck/srvd/internal/client"
	"github.com/danmuck/srvd/internal/protocol"
	"github.com/danmuck/srvd/internal/protocol/frame"
	"github.com/danmuck/srvd/internal/service"
)

// Querier returns a querier whose every exchange is dispatched by table.
func Querier(table *service.Table) *service.Querier {
	return service.NewQuerier(func() (client.Client, error) {
		return &conn{table: table}, nil
	})
}

type conn struct {
	table     *service.Table
	connected bool
	reply     bytes.Buffer
}

func (c *conn) Connect(context.Context) error {
	if c.connected {
		return client.ErrConnected
	}
	c.connected = true
	return nil
}

func (c *conn) Disconnect() error {
	if !c.connected {
		return client.ErrNotConnected
	}
	c.connected = false
	return nil
}

func (c *conn) Connected() bool { return c.connected }

func (c *conn) Close() error {
	c.connected = false
	return nil
}

func (c *conn) Write(p *protocol.Packet) error {
	if !c.connected {
		return client.ErrNotConnected
	}
	var wire bytes.Buffer
	if err := frame.WritePacket(&wire, p, frame.DefaultLimits()); err != nil {
		return err
	}
	req := service.NewRequest()
	if err := frame.ReadPacket(&wire, req.Packet, frame.DefaultLimits()); err != nil {
		return err
	}
	resp := c.table.Dispatch(context.Background(), req)
	return frame.WritePacket(&c.reply, resp.Packet, frame.DefaultLimits())
}

func (c *conn) Read(p *protocol.Packet) error {
	if !c.connected {
		return client.ErrNotConnected
	}
	return frame.ReadPacket(&c.reply, p, frame.DefaultLimits())
}
