package service

import (
	"context"

	"github.com/danmuck/srvd/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Dispatch routes req to the handler registered for its first field type
// and returns the response with the status field prepended. Requests with
// no matching handler get a bare StatusUnavail response.
func (t *Table) Dispatch(ctx context.Context, req *Request) *Response {
	resp := NewResponse()
	typ := req.Type()

	h, ok := t.Lookup(typ)
	if !ok {
		log.Debug().Uint16("type", uint16(typ)).Msg("service.Table.Dispatch no handler")
		resp.Status = StatusUnavail
	} else {
		invoke(ctx, h, typ, req, resp)
	}

	if err := resp.Packet.PrependUint16(protocol.TypeStatus, uint16(resp.Status)); err != nil {
		log.Error().Err(err).Uint16("type", uint16(typ)).Msg("service.Table.Dispatch status inject failed")
		resp.Packet.Reset()
		resp.Status = StatusFail
		_ = resp.Packet.PrependUint16(protocol.TypeStatus, uint16(StatusFail))
	}
	return resp
}

func invoke(ctx context.Context, h Handler, typ protocol.Type, req *Request, resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Uint16("type", uint16(typ)).
				Msg("service.Table.Dispatch handler panic")
			resp.Packet.Reset()
			resp.Status = StatusFail
		}
	}()
	h(ctx, req, resp)
}
