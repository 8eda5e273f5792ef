package service

import "github.com/danmuck/srvd/internal/protocol"

// Request wraps the packet sent to the daemon. Its first field selects the
// service.
type Request struct {
	Packet *protocol.Packet
}

func NewRequest() *Request {
	return &Request{Packet: protocol.NewPacket()}
}

// Type returns the type of the first field, or protocol.TypeNone for an
// empty request.
func (r *Request) Type() protocol.Type {
	f, ok := r.Packet.First()
	if !ok {
		return protocol.TypeNone
	}
	return f.Type()
}

// Response wraps the packet returned by the daemon together with the
// status decoded from it (client side) or chosen by the handler (server
// side).
type Response struct {
	Packet *protocol.Packet
	Status Status
}

func NewResponse() *Response {
	return &Response{Packet: protocol.NewPacket(), Status: StatusUnknown}
}

// Body returns the response fields, skipping a leading status field.
func (r *Response) Body() []*protocol.Field {
	fields := r.Packet.Fields()
	if len(fields) > 0 && fields[0].Type() == protocol.TypeStatus {
		return fields[1:]
	}
	return fields
}

// StatusOf extracts the status from a received packet. Anything other than
// a leading status field with a single 2-byte entry yields StatusFail.
func StatusOf(p *protocol.Packet) Status {
	f, ok := p.First()
	if !ok || f.Type() != protocol.TypeStatus {
		return StatusFail
	}
	e, ok := f.First()
	if !ok {
		return StatusFail
	}
	v, err := e.Uint16()
	if err != nil {
		return StatusFail
	}
	return Status(v)
}
