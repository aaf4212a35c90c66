// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Every timestamp OmniFS persists (version identifiers, change-log
// entries, metadata modification times, user creation times) comes
// from a Clock. Production code passes Real(); tests pass Fake() so
// that version identifiers and timestamps are deterministic:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	eng, _ := engine.New(engine.Options{Path: path, Clock: c})
//	c.Advance(time.Second)
package clock
