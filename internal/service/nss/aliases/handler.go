package aliases

import (
	"context"

	"github.com/danmuck/srvd/internal/directory"
	"github.com/danmuck/srvd/internal/service"
	"github.com/danmuck/srvd/internal/service/nss"
	"github.com/rs/zerolog/log"
)

// Source answers alias lookups on the daemon side.
type Source interface {
	AliasByName(name string) (directory.Alias, bool)
	AliasAt(offset uint32) (directory.Alias, bool)
}

func Register(t *service.Table, src Source) error {
	h := Handler(src)
	if err := t.Add(TypeRequestName, h); err != nil {
		return err
	}
	return t.Add(TypeRequestEntities, h)
}

func Handler(src Source) service.Handler {
	return func(_ context.Context, req *service.Request, resp *service.Response) {
		if err := requests.Validate(req.Packet); err != nil {
			resp.Status = service.StatusFail
			return
		}

		var (
			a  directory.Alias
			ok bool
		)
		switch req.Type() {
		case TypeRequestName:
			name, err := nss.RequestString(req)
			if err != nil {
				resp.Status = service.StatusFail
				return
			}
			a, ok = src.AliasByName(name)
		case TypeRequestEntities:
			off, err := nss.RequestUint32(req)
			if err != nil {
				resp.Status = service.StatusFail
				return
			}
			a, ok = src.AliasAt(off)
		default:
			resp.Status = service.StatusUnavail
			return
		}
		if !ok {
			resp.Status = service.StatusNotFound
			return
		}
		if err := Encode(resp, a); err != nil {
			log.Error().Err(err).Str("alias", a.Name).Msg("aliases.Handler encode failed")
			resp.Packet.Reset()
			resp.Status = service.StatusFail
			return
		}
		resp.Status = service.StatusSuccess
	}
}

// Plugin installs the aliases services from a directory.
type Plugin struct{}

func (Plugin) Name() string { return "aliases" }

func (Plugin) Install(t *service.Table, dir *directory.Directory) error {
	return Register(t, dir)
}
