// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lineproto

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/omnifs/lib/engine"
	"github.com/bureau-foundation/omnifs/lib/logging"
	"github.com/bureau-foundation/omnifs/lib/userdir"
)

const (
	// MaxLineSize is the longest command line accepted, newline
	// included. Longer lines close the connection.
	MaxLineSize = 64 * 1024

	// DefaultIdleTimeout applies when Options.IdleTimeout is zero.
	DefaultIdleTimeout = 5 * time.Minute

	// DefaultFormatBlocks is the block count FORMAT uses when the
	// command does not give one.
	DefaultFormatBlocks = 256

	writeTimeout = 10 * time.Second
)

// Options configures a Server.
type Options struct {
	// IdleTimeout closes a connection that sends no complete line for
	// this long.
	IdleTimeout time.Duration

	// FormatBlocks is the default block count for FORMAT.
	FormatBlocks uint32

	// Logger receives connection and command logs. If nil, messages
	// below error level are discarded.
	Logger *slog.Logger
}

// Server serves the line protocol for one engine. Connections share
// the engine; the engine serializes access.
type Server struct {
	engine  *engine.Engine
	options Options
	logger  *slog.Logger

	ready             chan struct{}
	address           net.Addr
	activeConnections sync.WaitGroup
}

// NewServer creates a server for e.
func NewServer(e *engine.Engine, options Options) *Server {
	if options.IdleTimeout == 0 {
		options.IdleTimeout = DefaultIdleTimeout
	}
	if options.FormatBlocks == 0 {
		options.FormatBlocks = DefaultFormatBlocks
	}
	if options.Logger == nil {
		options.Logger = logging.Discard()
	}
	return &Server{
		engine:  e,
		options: options,
		logger:  options.Logger,
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the server is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listening address. Valid after Ready is closed.
func (s *Server) Addr() net.Addr {
	return s.address
}

// ListenAndServe listens on the TCP address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", address, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled, then
// closes the listener and every open connection and waits for the
// connection handlers to return.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	defer listener.Close()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.address = listener.Addr()
	s.logger.Info("line protocol listening", "address", s.address.String())
	close(s.ready)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// connection is the per-client state.
type connection struct {
	id      uuid.UUID
	conn    net.Conn
	session *userdir.Session
	logger  *slog.Logger
	closing bool
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	connectionContext, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connectionContext.Done()
		conn.Close()
	}()

	client := &connection{
		id:   uuid.New(),
		conn: conn,
	}
	client.logger = s.logger.With("connection", client.id.String(), "remote", conn.RemoteAddr().String())
	client.logger.Info("client connected")
	defer func() {
		if client.session != nil {
			client.session.Logout()
		}
		client.logger.Info("client disconnected")
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), MaxLineSize)
	for !client.closing {
		conn.SetReadDeadline(time.Now().Add(s.options.IdleTimeout))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		response := s.execute(client, line)
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := conn.Write([]byte(response + "\n")); err != nil {
			client.logger.Debug("writing reply failed", "error", err)
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		switch {
		case errors.Is(err, os.ErrDeadlineExceeded):
			client.logger.Info("closing idle connection", "idle_timeout", s.options.IdleTimeout)
		case errors.Is(err, bufio.ErrTooLong):
			client.logger.Warn("command line too long, closing connection", "limit", MaxLineSize)
		default:
			client.logger.Debug("reading command failed", "error", err)
		}
	}
}
