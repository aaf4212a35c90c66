// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package versionlog manages the two append-only regions at the end
// of a container: version records, which bind a path to the block
// holding one historical copy of its content, and the change log,
// an audit trail of mutating actions.
//
// Both regions are appended at regionOffset + count*recordSize. The
// count is found at load time by scanning until the first empty
// record. A [Log] keeps an in-memory mirror of the version records in
// slot order so that lookups by identifier or path do not touch the
// disk; the mirror is updated only after the corresponding disk write
// succeeds.
//
// Version identifiers are derived from the clock but forced to be
// strictly increasing: max(now in Unix nanoseconds, last + 1).
package versionlog
