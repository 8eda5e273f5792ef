// Package passwd carries user account records over the srvd protocol.
package passwd

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
	TypeRequestName     protocol.Type = 701
	TypeRequestUID      protocol.Type = 702
	TypeRequestEntities protocol.Type = 703
)

// Response field types.
const (
	TypeName  protocol.Type = 751
	TypeUID   protocol.Type = 752
	TypeGID   protocol.Type = 753
	TypeDir   protocol.Type = 754
	TypeShell protocol.Type = 755
	TypeGecos protocol.Type = 756
)

var requests = schema.Set{
	TypeRequestName:     {{Type: TypeRequestName, Kind: schema.KindString}},
	TypeRequestUID:      {{Type: TypeRequestUID, Kind: schema.KindUint32}},
	TypeRequestEntities: {{Type: TypeRequestEntities, Kind: schema.KindUint32}},
}

func NameRequest(name string) (*service.Request, error) {
	req := service.NewRequest()
	return req, req.Packet.AppendString(TypeRequestName, name)
}

func UIDRequest(uid uint32) (*service.Request, error) {
	req := service.NewRequest()
	return req, req.Packet.AppendUint32(TypeRequestUID, uid)
}

// Encode adds the fields of u to resp in wire order.
func Encode(resp *service.Response, u directory.User) error {
	p := resp.Packet
	steps := []func() error{
		func() error { return p.AppendString(TypeName, u.Name) },
		func() error { return p.AppendUint32(TypeUID, u.UID) },
		func() error { return p.AppendUint32(TypeGID, u.GID) },
		func() error { return p.AppendString(TypeDir, u.Dir) },
		func() error { return p.AppendString(TypeShell, u.Shell) },
		func() error { return p.AppendString(TypeGecos, u.Gecos) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// Decode builds a user record from the body of a successful response.
// Unknown field types are skipped.
func Decode(resp *service.Response) (directory.User, error) {
	var (
		u       directory.User
		hasName bool
	)
	for _, f := range resp.Body() {
		e, ok := f.First()
		if !ok {
			continue
		}
		var err error
		switch f.Type() {
		case TypeName:
			u.Name, hasName = e.String(), true
		case TypeUID:
			u.UID, err = e.Uint32()
		case TypeGID:
			u.GID, err = e.Uint32()
		case TypeDir:
			u.Dir = e.String()
		case TypeShell:
			u.Shell = e.String()
		case TypeGecos:
			u.Gecos = e.String()
		}
		if err != nil {
			return directory.User{}, fmt.Errorf("%w: field %d: %w", nss.ErrMalformedResponse, f.Type(), err)
		}
	}
	if !hasName {
		return directory.User{}, fmt.Errorf("%w: missing name", nss.ErrMalformedResponse)
	}
	return u, nil
}

// ByName looks a user up by login name.
func ByName(ctx context.Context, q *service.Querier, name string) (directory.User, error) {
	req, err := NameRequest(name)
	if err != nil {
		return directory.User{}, err
	}
	return lookup(ctx, q, req)
}

// ByUID looks a user up by numeric id.
func ByUID(ctx context.Context, q *service.Querier, uid uint32) (directory.User, error) {
	req, err := UIDRequest(uid)
	if err != nil {
		return directory.User{}, err
	}
	return lookup(ctx, q, req)
}

func lookup(ctx context.Context, q *service.Querier, req *service.Request) (directory.User, error) {
	resp, err := q.Query(ctx, req)
	if err != nil {
		return directory.User{}, err
	}
	if err := nss.StatusErr(resp.Status); err != nil {
		return directory.User{}, err
	}
	return Decode(resp)
}

// Enumerator walks every user record in daemon order.
type Enumerator struct {
	e *service.Enumerator
}

func NewEnumerator(q *service.Querier) *Enumerator {
	return &Enumerator{e: service.NewEnumerator(q, TypeRequestEntities)}
}

func (e *Enumerator) Begin() { e.e.Begin() }
func (e *Enumerator) End()   { e.e.End() }

// Next returns the next user. The end of the enumeration is reported as a
// *nss.StatusError with StatusNotFound.
func (e *Enumerator) Next(ctx context.Context) (directory.User, error) {
	resp, err := e.e.Next(ctx)
	if err != nil {
		return directory.User{}, err
	}
	if err := nss.StatusErr(resp.Status); err != nil {
		return directory.User{}, err
	}
	return Decode(resp)
}
