package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/srvd/internal/directory"
	"github.com/danmuck/srvd/internal/server"
)

type fileConfig struct {
	Plugins []string         `toml:"plugins"`
	Server  serverSection    `toml:"server"`
	Admin   adminSection     `toml:"admin"`
	Passwd  []directory.User `toml:"passwd"`
	Aliases []aliasRecord    `toml:"aliases"`
}

type serverSection struct {
	Path           string `toml:"path"`
	QueueSize      int    `toml:"queue_size"`
	Mode           string `toml:"mode"`
	ReadTimeout    string `toml:"read_timeout"`
	WriteTimeout   string `toml:"write_timeout"`
	HandlerTimeout string `toml:"handler_timeout"`
	MaxBodyBytes   int64  `toml:"max_body_bytes"`
}

type adminSection struct {
	Addr        string   `toml:"addr"`
	Node        string   `toml:"node"`
	CorsOrigins []string `toml:"cors_origins"`
}

type aliasRecord struct {
	Name    string   `toml:"name"`
	Members []string `toml:"members"`
	Local   bool     `toml:"local"`
}

// daemonConfig is everything srvd needs to start.
type daemonConfig struct {
	Server      server.Config
	Plugins     []string
	AdminAddr   string
	AdminNode   string
	CorsOrigins []string
	Users       []directory.User
	Aliases     []directory.Alias
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		Server:    server.DefaultConfig(),
		AdminNode: "srvd",
	}
}

func loadDaemonConfig(path string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("load srvd config: %w", err)
	}

	if meta.IsDefined("plugins") {
		cfg.Plugins = normalizeList(raw.Plugins)
	}

	if meta.IsDefined("server", "path") {
		cfg.Server.Path = strings.TrimSpace(raw.Server.Path)
	}
	if meta.IsDefined("server", "queue_size") {
		cfg.Server.QueueSize = raw.Server.QueueSize
	}
	if meta.IsDefined("server", "mode") {
		mode, err := strconv.ParseUint(strings.TrimSpace(raw.Server.Mode), 8, 32)
		if err != nil {
			return daemonConfig{}, fmt.Errorf("parse server.mode: %w", err)
		}
		cfg.Server.Mode = os.FileMode(mode)
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"read_timeout", raw.Server.ReadTimeout, &cfg.Server.ReadTimeout},
		{"write_timeout", raw.Server.WriteTimeout, &cfg.Server.WriteTimeout},
		{"handler_timeout", raw.Server.HandlerTimeout, &cfg.Server.HandlerTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined("server", d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return daemonConfig{}, fmt.Errorf("parse server.%s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("server", "max_body_bytes") {
		if raw.Server.MaxBodyBytes <= 0 || raw.Server.MaxBodyBytes > 1<<32-1 {
			return daemonConfig{}, fmt.Errorf("server.max_body_bytes out of range: %d", raw.Server.MaxBodyBytes)
		}
		cfg.Server.Limits.MaxBodyBytes = uint32(raw.Server.MaxBodyBytes)
	}

	if meta.IsDefined("admin", "addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.Admin.Addr)
	}
	if meta.IsDefined("admin", "node") {
		if node := strings.TrimSpace(raw.Admin.Node); node != "" {
			cfg.AdminNode = node
		}
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.Admin.CorsOrigins)
	}

	cfg.Users = raw.Passwd
	for _, a := range raw.Aliases {
		cfg.Aliases = append(cfg.Aliases, directory.Alias{
			Name:    strings.TrimSpace(a.Name),
			Members: a.Members,
			Local:   a.Local,
		})
	}

	if err := cfg.Server.Validate(); err != nil {
		return daemonConfig{}, err
	}
	return cfg, nil
}

// buildDirectory loads the configured records.
func buildDirectory(cfg daemonConfig) (*directory.Directory, error) {
	dir := directory.New()
	for i, u := range cfg.Users {
		if err := dir.AddUser(u); err != nil {
			return nil, fmt.Errorf("passwd[%d] invalid: %w", i, err)
		}
	}
	for i, a := range cfg.Aliases {
		if err := dir.AddAlias(a); err != nil {
			return nil, fmt.Errorf("aliases[%d] invalid: %w", i, err)
		}
	}
	return dir, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
