// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"

	"github.com/bureau-foundation/omnifs/lib/config"
	"github.com/bureau-foundation/omnifs/lib/engine"
	"github.com/bureau-foundation/omnifs/lib/fuse"
	"github.com/bureau-foundation/omnifs/lib/lineproto"
	"github.com/bureau-foundation/omnifs/lib/service"
)

// daemon owns the mounted engine and its front ends.
type daemon struct {
	config          *config.Config
	formatIfMissing bool
	logger          *slog.Logger

	// ready, if set, receives the line protocol address (nil when
	// disabled) once every front end is serving.
	ready chan<- net.Addr

	// passwordCost overrides the bcrypt cost for tests.
	passwordCost int
}

// run mounts the container, serves until ctx is cancelled or a front
// end fails, then shuts everything down and closes the container.
func (d *daemon) run(ctx context.Context) (err error) {
	e, err := d.openEngine()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := e.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("closing container: %w", closeErr))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverCfg := d.config.Server
	var running int
	failures := make(chan error, 2)

	var lineAddr net.Addr
	if serverCfg.Listen != "" {
		listener, err := net.Listen("tcp", serverCfg.Listen)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", serverCfg.Listen, err)
		}
		lineAddr = listener.Addr()
		lineServer := lineproto.NewServer(e, lineproto.Options{
			IdleTimeout:  serverCfg.IdleTimeout.Duration(),
			FormatBlocks: d.config.Container.TotalBlocks,
			Logger:       d.logger.With("frontend", "lineproto"),
		})
		running++
		go func() {
			failures <- lineServer.Serve(ctx, listener)
		}()
	}

	if serverCfg.Socket != "" {
		socketServer := service.NewSocketServer(serverCfg.Socket, d.logger.With("frontend", "socket"))
		service.RegisterEngine(socketServer, e)
		running++
		go func() {
			failures <- socketServer.Serve(ctx)
		}()
		select {
		case <-socketServer.Ready():
		case serveErr := <-failures:
			running--
			cancel()
			return errors.Join(serveErr, drain(failures, running))
		case <-ctx.Done():
			return drain(failures, running)
		}
	}

	if serverCfg.Mountpoint != "" {
		fuseServer, err := fuse.Mount(fuse.Options{
			Mountpoint: serverCfg.Mountpoint,
			Engine:     e,
			Logger:     d.logger.With("frontend", "fuse"),
		})
		if err != nil {
			cancel()
			drain(failures, running)
			return err
		}
		defer func() {
			if err := fuseServer.Unmount(); err != nil {
				d.logger.Error("failed to unmount FUSE view", "error", err)
			} else {
				d.logger.Info("FUSE view unmounted", "mountpoint", serverCfg.Mountpoint)
			}
		}()
	}

	d.logger.Info("omnifs server running",
		"container", e.Path(),
		"listen", serverCfg.Listen,
		"socket", serverCfg.Socket,
		"mountpoint", serverCfg.Mountpoint,
	)
	if d.ready != nil {
		d.ready <- lineAddr
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-failures:
		running--
		if serveErr != nil {
			d.logger.Error("front end failed", "error", serveErr)
		}
	}
	d.logger.Info("shutting down")
	cancel()
	if drainErr := drain(failures, running); serveErr == nil {
		serveErr = drainErr
	}
	return serveErr
}

// drain waits for n front ends to return and reports the first
// failure.
func drain(failures <-chan error, n int) error {
	var first error
	for range n {
		if err := <-failures; err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openEngine mounts the configured container, formatting it first
// when it does not exist and formatIfMissing is set.
func (d *daemon) openEngine() (*engine.Engine, error) {
	containerCfg := d.config.Container
	e, err := engine.New(engine.Options{
		Path:          containerCfg.Path,
		BlockSize:     containerCfg.BlockSize,
		MaxUsers:      containerCfg.MaxUsers,
		MaxEntries:    containerCfg.MaxEntries,
		AdminName:     d.config.Admin.Name,
		AdminPassword: d.config.Admin.Password,
		PasswordCost:  d.passwordCost,
		Logger:        d.logger,
	})
	if err != nil {
		return nil, err
	}

	_, statErr := os.Stat(containerCfg.Path)
	switch {
	case statErr == nil:
	case errors.Is(statErr, fs.ErrNotExist) && d.formatIfMissing:
		if err := d.format(e); err != nil {
			return nil, err
		}
	case errors.Is(statErr, fs.ErrNotExist):
		return nil, fmt.Errorf("container %s does not exist (use --format-if-missing to create it)", containerCfg.Path)
	default:
		return nil, fmt.Errorf("container %s: %w", containerCfg.Path, statErr)
	}

	if err := e.Mount(); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (d *daemon) format(e *engine.Engine) error {
	session, err := e.Login(d.config.Admin.Name, d.config.Admin.Password)
	if err != nil {
		return fmt.Errorf("bootstrap login: %w", err)
	}
	if err := e.Format(session, d.config.Container.TotalBlocks); err != nil {
		return err
	}
	d.logger.Info("formatted missing container",
		"container", e.Path(),
		"total_blocks", d.config.Container.TotalBlocks,
	)
	return nil
}
