package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danmuck/srvd/internal/conf"
	"github.com/danmuck/srvd/internal/directory"
	"github.com/danmuck/srvd/internal/logging"
	"github.com/danmuck/srvd/internal/service"
	"github.com/danmuck/srvd/internal/service/nss"
	"github.com/danmuck/srvd/internal/service/nss/aliases"
	"github.com/danmuck/srvd/internal/service/nss/passwd"
	"github.com/urfave/cli/v2"
)

// Version is set by ldflags.
var Version = "snapshot"

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "srvctl: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:    "srvctl",
		Usage:   "query a running srvd",
		Version: Version,
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "conf", Value: conf.DefaultFilePath(), Usage: "client configuration file"},
			&cli.StringFlag{Name: "log-level", Usage: "trace|debug|info|warn|error|off"},
		},
		Before: func(c *cli.Context) error {
			logging.ConfigureRuntime()
			if lvl := c.String("log-level"); lvl != "" && !logging.SetLevel(lvl) {
				return fmt.Errorf("unknown log level %q", lvl)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "passwd",
				Usage: "look up users by name or uid, or list them all",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name"},
					&cli.UintFlag{Name: "uid"},
					&cli.BoolFlag{Name: "all"},
				},
				Action: passwdAction,
			},
			{
				Name:  "aliases",
				Usage: "look up a mail alias by name, or list them all",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name"},
					&cli.BoolFlag{Name: "all"},
				},
				Action: aliasesAction,
			},
			{
				Name:   "conf",
				Usage:  "print the flattened client configuration",
				Action: confAction,
			},
		},
	}
}

func querier(c *cli.Context) *service.Querier {
	path := c.String("conf")
	return service.NewQuerier(service.ConfResolver(func() (conf.Conf, error) {
		return conf.Load(path)
	}))
}

func passwdAction(c *cli.Context) error {
	q := querier(c)
	switch {
	case c.Bool("all"):
		e := passwd.NewEnumerator(q)
		e.Begin()
		defer e.End()
		for {
			u, err := e.Next(c.Context)
			if nss.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, formatUser(u))
		}
	case c.IsSet("uid"):
		uid := c.Uint("uid")
		if uint64(uid) > uint64(^uint32(0)) {
			return fmt.Errorf("uid out of range: %d", uid)
		}
		u, err := passwd.ByUID(c.Context, q, uint32(uid))
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, formatUser(u))
	case c.IsSet("name"):
		u, err := passwd.ByName(c.Context, q, c.String("name"))
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, formatUser(u))
	default:
		return errors.New("one of --name, --uid or --all is required")
	}
	return nil
}

func aliasesAction(c *cli.Context) error {
	q := querier(c)
	switch {
	case c.Bool("all"):
		e := aliases.NewEnumerator(q)
		e.Begin()
		defer e.End()
		for {
			a, err := e.Next(c.Context)
			if nss.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, formatAlias(a))
		}
	case c.IsSet("name"):
		a, err := aliases.ByName(c.Context, q, c.String("name"))
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, formatAlias(a))
	default:
		return errors.New("one of --name or --all is required")
	}
	return nil
}

func confAction(c *cli.Context) error {
	cfg, err := conf.Load(c.String("conf"))
	if err != nil {
		return err
	}
	for _, k := range cfg.Keys() {
		v, _ := cfg.Get(k)
		fmt.Fprintf(c.App.Writer, "%s=%s\n", k, v)
	}
	return nil
}

// formatUser renders u as a passwd(5) line.
func formatUser(u directory.User) string {
	return fmt.Sprintf("%s:x:%d:%d:%s:%s:%s", u.Name, u.UID, u.GID, u.Gecos, u.Dir, u.Shell)
}

// formatAlias renders a as an aliases(5) line.
func formatAlias(a directory.Alias) string {
	line := a.Name + ": " + strings.Join(a.Members, ", ")
	if a.Local {
		line += " (local)"
	}
	return line
}

func exitCode(err error) int {
	if nss.IsNotFound(err) {
		return 2
	}
	return 1
}
