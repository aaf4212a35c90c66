// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// omnifs-server mounts one OmniFS container and serves it until
// SIGINT or SIGTERM.
//
// Three front ends share the mounted engine, each enabled by its
// configuration key:
//
//   - server.listen: the pipe-delimited line protocol over TCP, one
//     command per line, with per-connection login sessions.
//   - server.socket: the CBOR query API on a Unix socket, used by
//     "omnifs remote". Read-only.
//   - server.mountpoint: a read-only FUSE view of the namespace.
//
// The container path and geometry come from the configuration file
// (--config or $OMNIFS_CONFIG). With --format-if-missing, a container
// that does not exist yet is formatted with the configured geometry
// and administrator account before serving.
package main
