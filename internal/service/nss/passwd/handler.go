package passwd

import (
	"context"

	"github.com/danmuck/srvd/internal/directory"
	"github.com/danmuck/srvd/internal/service"
	"github.com/danmuck/srvd/internal/service/nss"
	"github.com/rs/zerolog/log"
)

// Source answers user lookups on the daemon side.
type Source interface {
	UserByName(name string) (directory.User, bool)
	UserByUID(uid uint32) (directory.User, bool)
	UserAt(offset uint32) (directory.User, bool)
}

// Register adds the passwd services to t.
func Register(t *service.Table, src Source) error {
	h := Handler(src)
	if err := t.Add(TypeRequestName, h); err != nil {
		return err
	}
	if err := t.Add(TypeRequestUID, h); err != nil {
		return err
	}
	return t.Add(TypeRequestEntities, h)
}

// Handler answers all three passwd request types from src.
func Handler(src Source) service.Handler {
	return func(_ context.Context, req *service.Request, resp *service.Response) {
		if err := requests.Validate(req.Packet); err != nil {
			resp.Status = service.StatusFail
			return
		}

		var (
			u  directory.User
			ok bool
		)
		switch req.Type() {
		case TypeRequestName:
			name, err := nss.RequestString(req)
			if err != nil {
				resp.Status = service.StatusFail
				return
			}
			u, ok = src.UserByName(name)
		case TypeRequestUID:
			uid, err := nss.RequestUint32(req)
			if err != nil {
				resp.Status = service.StatusFail
				return
			}
			u, ok = src.UserByUID(uid)
		case TypeRequestEntities:
			off, err := nss.RequestUint32(req)
			if err != nil {
				resp.Status = service.StatusFail
				return
			}
			u, ok = src.UserAt(off)
		default:
			resp.Status = service.StatusUnavail
			return
		}
		if !ok {
			resp.Status = service.StatusNotFound
			return
		}
		if err := Encode(resp, u); err != nil {
			log.Error().Err(err).Str("name", u.Name).Msg("passwd.Handler encode failed")
			resp.Packet.Reset()
			resp.Status = service.StatusFail
			return
		}
		resp.Status = service.StatusSuccess
	}
}

// Plugin installs the passwd services from a directory.
type Plugin struct{}

func (Plugin) Name() string { return "passwd" }

func (Plugin) Install(t *service.Table, dir *directory.Directory) error {
	return Register(t, dir)
}
