// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package namespace holds the in-memory directory tree of an OmniFS
// container and its flat-table serialization.
//
// Nodes live in an arena and refer to each other by index: each
// directory maps child names to arena indices and each node keeps a
// non-owning parent index. A synthetic root at index 0 anchors the
// tree and is never exported. Removing a node returns its slot to a
// free list; nothing holds a pointer into the arena.
//
// The tree has a fixed capacity of live nodes (excluding the root),
// equal to the number of records in the container's metadata table,
// so that [Tree.Export] always fits.
//
// Paths are absolute, '/'-separated, and at most
// container.MaxPathLength bytes. Empty components are ignored, so
// "/a//b/" resolves like "/a/b".
package namespace
