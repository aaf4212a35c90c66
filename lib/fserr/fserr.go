// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fserr classifies OmniFS failures so that callers (the line
// protocol, the CLI, the socket API) can react to the category of a
// failure without parsing message text.
//
// Every package in the storage stack returns errors built with the
// constructors here, wrapped with context via fmt.Errorf("...: %w").
// [KindOf] walks the chain and reports the innermost category.
package fserr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	// KindIO means the container file could not be created, opened,
	// read, or written at the operating-system level.
	KindIO Kind = "io"

	// KindCorruption means on-disk data failed validation: magic
	// mismatch, short read, or records that contradict each other.
	// Header corruption at mount time is unrecoverable for that
	// container.
	KindCorruption Kind = "corruption"

	// KindCapacity means a fixed-size region is exhausted: no free
	// block, or a full metadata table, version region, change log,
	// or user table. Content larger than one block also reports this.
	KindCapacity Kind = "capacity"

	// KindNotFound means a path, version identifier, or user does not
	// exist.
	KindNotFound Kind = "not_found"

	// KindPermission means the caller has no active session, or lacks
	// the admin role the operation requires.
	KindPermission Kind = "permission"

	// KindLayout means computed region offsets overlap, are out of
	// order, or exceed the container's total size.
	KindLayout Kind = "layout"

	// KindNotOpen means a container store was used while closed.
	KindNotOpen Kind = "not_open"

	// KindNotMounted means an engine operation was attempted outside
	// the Mounted state.
	KindNotMounted Kind = "not_mounted"

	// KindValidation means the caller passed a bad argument: a path
	// that does not fit its on-disk field, an empty name, an
	// out-of-range block index.
	KindValidation Kind = "validation"

	// KindConflict means the operation collides with existing state:
	// duplicate name, non-empty directory, container locked by
	// another engine.
	KindConflict Kind = "conflict"
)

// Error is a categorized error. Use the constructors rather than
// building one directly.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

// Unwrap exposes the inner error to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// IO creates a KindIO error.
func IO(format string, args ...any) *Error { return newError(KindIO, format, args...) }

// Corruption creates a KindCorruption error.
func Corruption(format string, args ...any) *Error {
	return newError(KindCorruption, format, args...)
}

// Capacity creates a KindCapacity error.
func Capacity(format string, args ...any) *Error {
	return newError(KindCapacity, format, args...)
}

// NotFound creates a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// Permission creates a KindPermission error.
func Permission(format string, args ...any) *Error {
	return newError(KindPermission, format, args...)
}

// Layout creates a KindLayout error.
func Layout(format string, args ...any) *Error { return newError(KindLayout, format, args...) }

// NotOpen creates a KindNotOpen error.
func NotOpen(format string, args ...any) *Error { return newError(KindNotOpen, format, args...) }

// NotMounted creates a KindNotMounted error.
func NotMounted(format string, args ...any) *Error {
	return newError(KindNotMounted, format, args...)
}

// Validation creates a KindValidation error.
func Validation(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

// Conflict creates a KindConflict error.
func Conflict(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

// KindOf returns the category of the first *Error found in err's chain,
// or the empty Kind if err is nil or uncategorized.
func KindOf(err error) Kind {
	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Kind
	}
	return ""
}

// Is reports whether err carries the given category.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
