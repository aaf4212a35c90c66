// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package container implements raw binary I/O over an OmniFS
// container: a single flat file holding a fixed header followed by
// the user table, block bitmap, metadata table, data region, version
// records, and change log, in that order.
//
// The package knows the byte layout of every region but nothing about
// what the records mean. Higher layers (allocator, namespace,
// versionlog, engine) decide what to store; this package decides
// where the bytes go and refuses to touch a region before the header
// magic has been checked.
//
// All integers are little-endian. Fixed-length string fields are
// NUL-padded; [SetString] rejects values that do not fit instead of
// truncating them.
//
// A [Store] scopes one OS file handle. Every write is followed by an
// fsync. There is no transaction log: a crash mid-write can leave a
// region partially updated.
//
// [Lock] takes an exclusive advisory flock on the container for the
// lifetime of an engine, so two engines never mutate the same file.
package container
