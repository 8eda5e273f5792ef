package plugins

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/srvd/internal/directory"
	"github.com/danmuck/srvd/internal/service"
	"github.com/rs/zerolog/log"
)

var (
	ErrPluginExists  = errors.New("plugins: plugin already registered")
	ErrPluginNil     = errors.New("plugins: plugin is nil")
	ErrUnknownPlugin = errors.New("plugins: unknown plugin")
)

// Registry stores plugins by name.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Plugin
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Plugin)}
}

func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return ErrPluginNil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[p.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrPluginExists, p.Name())
	}
	r.items[p.Name()] = p
	return nil
}

func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[name]
	return p, ok
}

// Names returns registered plugin names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.items))
	for name := range r.items {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Install installs the named plugins into t. An empty list installs every
// registered plugin.
func (r *Registry) Install(names []string, t *service.Table, dir *directory.Directory) error {
	if len(names) == 0 {
		names = r.Names()
	}
	for _, name := range names {
		p, ok := r.Get(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
		}
		if err := p.Install(t, dir); err != nil {
			return fmt.Errorf("plugins: install %s: %w", name, err)
		}
		log.Info().Str("plugin", name).Msg("plugins.Registry.Install installed")
	}
	return nil
}

var defaultRegistry = NewRegistry()

func Register(p Plugin) error {
	return defaultRegistry.Register(p)
}

func Get(name string) (Plugin, bool) {
	return defaultRegistry.Get(name)
}

func Names() []string {
	return defaultRegistry.Names()
}

func Install(names []string, t *service.Table, dir *directory.Directory) error {
	return defaultRegistry.Install(names, t, dir)
}
