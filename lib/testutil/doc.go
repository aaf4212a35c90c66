// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for the OmniFS
// packages that sit above the engine: snapshot, lineproto, service,
// fuse and the binaries.
//
// [MountedEngine] formats and mounts a container in a temporary
// directory and returns the engine with an admin session, using the
// cheapest bcrypt cost and a fake clock so tests stay fast and
// deterministic.
//
// [SocketDir] creates a temporary directory in /tmp suitable for Unix
// domain sockets, whose paths are limited to 108 bytes.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern used when waiting on a server goroutine, so individual
// tests do not call time.After directly.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
