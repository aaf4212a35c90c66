// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/omnifs/cmd/omnifs/cli"
	"github.com/bureau-foundation/omnifs/lib/config"
	"github.com/bureau-foundation/omnifs/lib/engine"
	"github.com/bureau-foundation/omnifs/lib/logging"
	"github.com/bureau-foundation/omnifs/lib/userdir"
)

// containerFlags are the flags shared by every command that opens
// the container.
type containerFlags struct {
	configPath   string
	container    string
	user         string
	passwordFile string
	logLevel     string
}

func (f *containerFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "configuration file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVarP(&f.container, "container", "c", "", "container file (overrides container.path)")
	flagSet.StringVarP(&f.user, "user", "u", "", "account to act as (default: admin.name)")
	flagSet.StringVar(&f.passwordFile, "password-file", "", "file holding the password, - for stdin (default: prompt)")
	flagSet.StringVar(&f.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
}

func (f *containerFlags) newFlagSet(name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	f.register(flagSet)
	return flagSet
}

// load resolves the configuration: --config, then $OMNIFS_CONFIG,
// then the built-in defaults.
func (f *containerFlags) load() (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case f.configPath != "":
		cfg, err = config.LoadFile(f.configPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if f.container != "" {
		cfg.Container.Path = f.container
	}
	if f.user == "" {
		f.user = cfg.Admin.Name
	}
	if err := cfg.Validate(); err != nil {
		return nil, cli.Usage("%v", err)
	}
	return cfg, nil
}

func (f *containerFlags) logger() (*slog.Logger, error) {
	level, err := logging.ParseLevel(f.logLevel)
	if err != nil {
		return nil, cli.Usage("%v", err)
	}
	return logging.NewCommandLogger(level).With("command", "omnifs"), nil
}

// newEngine builds an engine for the configured container without
// mounting it.
func (f *containerFlags) newEngine() (*engine.Engine, *config.Config, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := f.logger()
	if err != nil {
		return nil, nil, err
	}
	e, err := engine.New(engine.Options{
		Path:          cfg.Container.Path,
		BlockSize:     cfg.Container.BlockSize,
		MaxUsers:      cfg.Container.MaxUsers,
		MaxEntries:    cfg.Container.MaxEntries,
		AdminName:     cfg.Admin.Name,
		AdminPassword: cfg.Admin.Password,
		Logger:        logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return e, cfg, nil
}

// mount opens and mounts the container. The caller closes the
// engine.
func (f *containerFlags) mount() (*engine.Engine, error) {
	e, _, err := f.newEngine()
	if err != nil {
		return nil, err
	}
	if err := e.Mount(); err != nil {
		return nil, err
	}
	return e, nil
}

// login authenticates --user against e.
func (f *containerFlags) login(e *engine.Engine) (*userdir.Session, error) {
	password, err := cli.ReadPassword(f.user, f.passwordFile)
	if err != nil {
		return nil, err
	}
	return e.Login(f.user, password)
}

// mountSession mounts the container and logs in.
func (f *containerFlags) mountSession() (*engine.Engine, *userdir.Session, error) {
	e, err := f.mount()
	if err != nil {
		return nil, nil, err
	}
	session, err := f.login(e)
	if err != nil {
		e.Close()
		return nil, nil, err
	}
	return e, session, nil
}

// closeEngine closes e and folds a close failure into err.
func closeEngine(e *engine.Engine, err *error) {
	if closeErr := e.Close(); closeErr != nil {
		*err = errors.Join(*err, fmt.Errorf("closing container: %w", closeErr))
	}
}

// requireArgs returns a usage error unless args has exactly n
// elements.
func requireArgs(args []string, n int, usage string) error {
	if len(args) != n {
		return cli.Usage("usage: %s", usage)
	}
	return nil
}
