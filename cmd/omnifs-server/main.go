// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/omnifs/lib/config"
	"github.com/bureau-foundation/omnifs/lib/logging"
	"github.com/bureau-foundation/omnifs/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		showVersion     bool
		configPath      string
		formatIfMissing bool
		listen          string
		socketPath      string
		mountpoint      string
	)
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.StringVar(&configPath, "config", "", "configuration file (default: $"+config.EnvironmentVariable+")")
	pflag.BoolVar(&formatIfMissing, "format-if-missing", false, "format the container if the file does not exist")
	pflag.StringVar(&listen, "listen", "", "line protocol TCP address (overrides server.listen)")
	pflag.StringVar(&socketPath, "socket", "", "query API Unix socket (overrides server.socket)")
	pflag.StringVar(&mountpoint, "mountpoint", "", "read-only FUSE mountpoint (overrides server.mountpoint)")
	pflag.Parse()

	if showVersion {
		fmt.Printf("omnifs-server %s\n", version.Info())
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if socketPath != "" {
		cfg.Server.Socket = socketPath
	}
	if mountpoint != "" {
		cfg.Server.Mountpoint = mountpoint
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.NewServer(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := &daemon{
		config:          cfg,
		formatIfMissing: formatIfMissing,
		logger:          logger,
	}
	return d.run(ctx)
}
