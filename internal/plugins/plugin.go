// Package plugins tracks the name service modules a daemon can install
// into its service table.
package plugins

import (
	"github.com/danmuck/srvd/internal/directory"
	"github.com/danmuck/srvd/internal/service"
)

// Plugin installs one name service's handlers.
type Plugin interface {
	Name() string
	Install(t *service.Table, dir *directory.Directory) error
}
