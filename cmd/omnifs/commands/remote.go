// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/omnifs/cmd/omnifs/cli"
	"github.com/bureau-foundation/omnifs/lib/config"
	"github.com/bureau-foundation/omnifs/lib/service"
)

func (a *app) remoteCommand() *cli.Command {
	return &cli.Command{
		Name:    "remote",
		Summary: "Query a running omnifs-server",
		Description: `Query a running omnifs-server over its Unix socket. The socket path
comes from --socket or server.socket in the configuration.`,
		Subcommands: []*cli.Command{
			a.remoteStatusCommand(),
		},
	}
}

func (a *app) remoteStatusCommand() *cli.Command {
	var configPath string
	var socketPath string
	var timeout time.Duration
	return &cli.Command{
		Name:    "status",
		Summary: "Show the server's container state and counters",
		Usage:   "omnifs remote status [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "configuration file (default: $"+config.EnvironmentVariable+")")
			flagSet.StringVar(&socketPath, "socket", "", "server socket (overrides server.socket)")
			flagSet.DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.Usage("usage: omnifs remote status [flags]")
			}
			if socketPath == "" {
				cfg, err := remoteConfig(configPath)
				if err != nil {
					return err
				}
				socketPath = cfg.Server.Socket
			}
			if socketPath == "" {
				return cli.Usage("no server socket: pass --socket or set server.socket")
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			var status service.StatusData
			if err := service.Call(ctx, socketPath, "status", nil, &status); err != nil {
				return err
			}

			s := newStyles(a.stdout)
			fmt.Fprintf(a.stdout, "%s is %s\n", status.Path, s.header.Render(status.State))
			if status.State != "mounted" {
				return nil
			}
			t := s.newTable("counter", "used", "capacity")
			t.Row("blocks", fmt.Sprint(status.TotalBlocks-status.FreeBlocks), fmt.Sprint(status.TotalBlocks))
			t.Row("entries", fmt.Sprint(status.Files+status.Directories), fmt.Sprint(status.MaxEntries))
			t.Row("versions", fmt.Sprint(status.Versions), fmt.Sprint(status.MaxVersions))
			t.Row("changes", fmt.Sprint(status.Changes), fmt.Sprint(status.MaxChanges))
			t.Row("users", fmt.Sprint(status.Users), fmt.Sprint(status.MaxUsers))
			fmt.Fprintln(a.stdout, t.Render())
			return nil
		},
	}
}

func remoteConfig(path string) (*config.Config, error) {
	switch {
	case path != "":
		return config.LoadFile(path)
	case os.Getenv(config.EnvironmentVariable) != "":
		return config.Load()
	default:
		return config.Default(), nil
	}
}
