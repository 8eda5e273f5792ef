package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/srvd/internal/logging"
	"github.com/danmuck/srvd/internal/observability"
	"github.com/danmuck/srvd/internal/plugins"
	"github.com/danmuck/srvd/internal/server"
	"github.com/danmuck/srvd/internal/service"
	"github.com/danmuck/srvd/internal/service/nss/aliases"
	"github.com/danmuck/srvd/internal/service/nss/passwd"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

// Version is set by ldflags.
var Version = "snapshot"

func init() {
	for _, p := range []plugins.Plugin{passwd.Plugin{}, aliases.Plugin{}} {
		if err := plugins.Register(p); err != nil {
			panic(err)
		}
	}
}

func main() {
	app := &cli.App{
		Name:    "srvd",
		Usage:   "name service daemon answering passwd and aliases queries on a UNIX socket",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to the srvd TOML config"},
			&cli.StringFlag{Name: "socket", Usage: "override server.path"},
			&cli.StringFlag{Name: "admin", Usage: "override admin.addr (empty disables the admin listener)"},
			&cli.StringFlag{Name: "log-level", Usage: "trace|debug|info|warn|error|off"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "srvd: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logging.ConfigureRuntime()
	if lvl := c.String("log-level"); lvl != "" && !logging.SetLevel(lvl) {
		return fmt.Errorf("unknown log level %q", lvl)
	}

	cfg := defaultDaemonConfig()
	if path := strings.TrimSpace(c.String("config")); path != "" {
		loaded, err := loadDaemonConfig(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if c.IsSet("socket") {
		cfg.Server.Path = strings.TrimSpace(c.String("socket"))
	}
	if c.IsSet("admin") {
		cfg.AdminAddr = strings.TrimSpace(c.String("admin"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg)
}

// serve runs the socket server and the optional admin listener until ctx
// is cancelled or either fails.
func serve(ctx context.Context, cfg daemonConfig) error {
	dir, err := buildDirectory(cfg)
	if err != nil {
		return err
	}
	table := service.NewTable()
	if err := plugins.Install(cfg.Plugins, table, dir); err != nil {
		return err
	}

	srv, err := server.New(cfg.Server, table)
	if err != nil {
		return err
	}

	users, aliasCount := dir.Counts()
	log.Info().
		Str("version", Version).
		Int("users", users).
		Int("aliases", aliasCount).
		Msg("srvd starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})

	var admin *http.Server
	if cfg.AdminAddr != "" {
		admin = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           observability.NewAdminRouter(cfg.AdminNode, cfg.CorsOrigins, srv),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.AdminAddr).Msg("srvd admin listening")
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		var result *multierror.Error
		if err := srv.Shutdown(); err != nil {
			result = multierror.Append(result, err)
		}
		if admin != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := admin.Shutdown(sctx); err != nil {
				result = multierror.Append(result, err)
			}
		}
		return result.ErrorOrNil()
	})

	err = g.Wait()
	log.Info().Err(err).Msg("srvd stopped")
	return err
}
