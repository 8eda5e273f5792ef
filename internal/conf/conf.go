// Package conf loads the client configuration file shared by every srvd
// client in a process. Keys are flattened to "section:key".
package conf

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPath = "/etc/srvd.toml"
	EnvPath     = "SRVD_CONF"

	KeyClientAdapter = "client:adapter"
	KeyClientPath    = "client:path"
	KeyClientTimeout = "client:timeout"
)

var ErrNotParsed = errors.New("conf: file not parsed")

// Conf is an immutable set of flattened configuration items.
type Conf struct {
	items map[string]string
}

// New builds a Conf from explicit items.
func New(items map[string]string) Conf {
	c := Conf{items: make(map[string]string, len(items))}
	for k, v := range items {
		c.items[k] = v
	}
	return c
}

func (c Conf) Get(key string) (string, bool) {
	v, ok := c.items[key]
	return v, ok
}

// Lookup returns the value for key or def when it is absent.
func (c Conf) Lookup(key, def string) string {
	if v, ok := c.items[key]; ok {
		return v
	}
	return def
}

func (c Conf) Len() int {
	return len(c.items)
}

// Keys returns every key in sorted order.
func (c Conf) Keys() []string {
	keys := make([]string, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Parse decodes TOML data and flattens nested tables.
func Parse(data []byte) (Conf, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Conf{}, err
	}
	c := Conf{items: make(map[string]string)}
	flatten("", raw, c.items)
	return c, nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + ":" + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		case time.Time:
			out[key] = val.Format(time.RFC3339)
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// Load reads and parses the file at path.
func Load(path string) (Conf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Conf{}, fmt.Errorf("conf load failed (%s): %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return Conf{}, fmt.Errorf("conf parse failed (%s): %w", path, err)
	}
	return c, nil
}

// File tracks a configuration file and the modification time it was last
// parsed at.
type File struct {
	path string

	mu      sync.Mutex
	conf    Conf
	parsed  bool
	modTime time.Time
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string {
	return f.path
}

// UpToDate reports whether the file was parsed and has not changed since.
func (f *File) UpToDate() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upToDateLocked()
}

func (f *File) upToDateLocked() bool {
	if !f.parsed {
		return false
	}
	st, err := os.Stat(f.path)
	if err != nil {
		return false
	}
	return st.ModTime().Equal(f.modTime)
}

// Conf returns the most recently parsed configuration.
func (f *File) Conf() (Conf, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.parsed {
		return Conf{}, ErrNotParsed
	}
	return f.conf, nil
}

// Refresh reparses the file when it changed since the last parse and
// returns the current configuration.
func (f *File) Refresh() (Conf, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upToDateLocked() {
		return f.conf, nil
	}
	st, err := os.Stat(f.path)
	if err != nil {
		return Conf{}, fmt.Errorf("conf load failed (%s): %w", f.path, err)
	}
	c, err := Load(f.path)
	if err != nil {
		return Conf{}, err
	}
	f.conf = c
	f.parsed = true
	f.modTime = st.ModTime()
	log.Debug().Str("path", f.path).Int("items", c.Len()).Msg("conf.File.Refresh parsed")
	return c, nil
}

var (
	defaultMu   sync.Mutex
	defaultFile *File
)

// DefaultFilePath returns the process-wide configuration path, honoring
// the SRVD_CONF environment variable.
func DefaultFilePath() string {
	if p := strings.TrimSpace(os.Getenv(EnvPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Default returns the process-wide configuration, reparsing the file when
// it changed on disk.
func Default() (Conf, error) {
	defaultMu.Lock()
	path := DefaultFilePath()
	if defaultFile == nil || defaultFile.Path() != path {
		defaultFile = NewFile(path)
	}
	f := defaultFile
	defaultMu.Unlock()
	return f.Refresh()
}
