// Package aliases carries mail alias records over the srvd protocol.
package aliases

import (
	"context"
	"fmt"

	"github.com/danmuck/srvd/internal/directory"
	"github.com/danmuck/srvd/internal/protocol"
	"github.com/danmuck/srvd/internal/protocol/schema"
	"github.com/danmuck/srvd/internal/service"
	"github.com/danmuck/srvd/internal/service/nss"
)

// Request types.
const (
	TypeRequestName     protocol.Type = 101
	TypeRequestEntities protocol.Type = 102
)

// Response field types. TypeMember carries one entry per member.
const (
	TypeName   protocol.Type = 151
	TypeMember protocol.Type = 152
	TypeLocal  protocol.Type = 153
)

var requests = schema.Set{
	TypeRequestName:     {{Type: TypeRequestName, Kind: schema.KindString}},
	TypeRequestEntities: {{Type: TypeRequestEntities, Kind: schema.KindUint32}},
}

func NameRequest(name string) (*service.Request, error) {
	req := service.NewRequest()
	return req, req.Packet.AppendString(TypeRequestName, name)
}

// Encode adds the fields of a to resp. Members share a single field.
func Encode(resp *service.Response, a directory.Alias) error {
	p := resp.Packet
	if err := p.AppendString(TypeName, a.Name); err != nil {
		return err
	}
	members, err := p.GetOrCreate(TypeMember)
	if err != nil {
		return err
	}
	for _, m := range a.Members {
		if err := members.AddString(m); err != nil {
			return err
		}
	}
	var local uint8
	if a.Local {
		local = 1
	}
	return p.AppendUint8(TypeLocal, local)
}

// Decode builds an alias record from the body of a successful response.
func Decode(resp *service.Response) (directory.Alias, error) {
	var (
		a       directory.Alias
		hasName bool
	)
	for _, f := range resp.Body() {
		switch f.Type() {
		case TypeName:
			e, ok := f.First()
			if !ok {
				return directory.Alias{}, fmt.Errorf("%w: empty name field", nss.ErrMalformedResponse)
			}
			a.Name, hasName = e.String(), true
		case TypeMember:
			for _, e := range f.Entries() {
				a.Members = append(a.Members, e.String())
			}
		case TypeLocal:
			e, ok := f.First()
			if !ok {
				continue
			}
			v, err := e.Uint8()
			if err != nil {
				return directory.Alias{}, fmt.Errorf("%w: field %d: %w", nss.ErrMalformedResponse, f.Type(), err)
			}
			a.Local = v != 0
		}
	}
	if !hasName {
		return directory.Alias{}, fmt.Errorf("%w: missing name", nss.ErrMalformedResponse)
	}
	return a, nil
}

// ByName looks an alias up by name.
func ByName(ctx context.Context, q *service.Querier, name string) (directory.Alias, error) {
	req, err := NameRequest(name)
	if err != nil {
		return directory.Alias{}, err
	}
	resp, err := q.Query(ctx, req)
	if err != nil {
		return directory.Alias{}, err
	}
	if err := nss.StatusErr(resp.Status); err != nil {
		return directory.Alias{}, err
	}
	return Decode(resp)
}

// Enumerator walks every alias in daemon order.
type Enumerator struct {
	e *service.Enumerator
}

func NewEnumerator(q *service.Querier) *Enumerator {
	return &Enumerator{e: service.NewEnumerator(q, TypeRequestEntities)}
}

func (e *Enumerator) Begin() { e.e.Begin() }
func (e *Enumerator) End()   { e.e.End() }

func (e *Enumerator) Next(ctx context.Context) (directory.Alias, error) {
	resp, err := e.e.Next(ctx)
	if err != nil {
		return directory.Alias{}, err
	}
	if err := nss.StatusErr(resp.Status); err != nil {
		return directory.Alias{}, err
	}
	return Decode(resp)
}
