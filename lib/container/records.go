// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"bytes"

	"github.com/bureau-foundation/omnifs/lib/fserr"
)

// Record sizes. Each record type below encodes to exactly this many
// bytes with encoding/binary.
const (
	UserRecordSize     = 128
	MetadataRecordSize = 320
	VersionRecordSize  = 320
	ChangeRecordSize   = 320
)

// Fixed string field capacities. A value must be at least one byte
// shorter than its field so that it is always NUL-terminated.
const (
	PathFieldSize   = 256
	NameFieldSize   = 32
	HashFieldSize   = 64
	ActionFieldSize = 16

	// MaxPathLength is the longest absolute path a container can
	// store.
	MaxPathLength = PathFieldSize - 1

	// MaxNameLength is the longest user or owner name.
	MaxNameLength = NameFieldSize - 1
)

// Metadata record kinds.
const (
	KindEmpty     uint8 = 0
	KindFile      uint8 = 1
	KindDirectory uint8 = 2
)

// VersionRetired is set in VersionRecord.Flags once the version's
// path has been deleted and its block returned to the allocator.
const VersionRetired uint32 = 1 << 0

// UserRecord is one slot in the user table. A slot with an empty name
// is unused.
type UserRecord struct {
	Name         [NameFieldSize]byte
	PasswordHash [HashFieldSize]byte
	Admin        uint8
	Active       uint8
	_            [6]byte
	CreatedAt    int64
	_            [16]byte
}

// MetadataRecord is one node of the namespace tree in flattened form.
// A record whose Kind is KindEmpty terminates nothing; it is simply
// skipped.
type MetadataRecord struct {
	Path       [PathFieldSize]byte
	Kind       uint8
	_          uint8
	Permission uint16
	_          [4]byte
	Size       uint64
	Owner      [NameFieldSize]byte
	ID         uint64
	ModifiedAt int64
}

// VersionRecord binds a path to the block holding one historical copy
// of its content. A record with ID zero is empty and marks the end of
// the appended sequence.
type VersionRecord struct {
	Path       [PathFieldSize]byte
	ID         uint64
	StartBlock uint32
	BlockCount uint32
	Size       uint32
	Flags      uint32
	Timestamp  int64
	Digest     [32]byte
}

// ChangeRecord is one audit entry. A record with a zero timestamp is
// empty and marks the end of the log.
type ChangeRecord struct {
	Path      [PathFieldSize]byte
	Actor     [NameFieldSize]byte
	Action    [ActionFieldSize]byte
	Timestamp int64
	VersionID uint64
}

// SetString copies value into a NUL-padded fixed field. A value
// containing NUL or too long to leave a terminating NUL is a
// validation error; the field is left untouched in that case.
func SetString(field []byte, value string) error {
	if len(value) >= len(field) {
		return fserr.Validation("%q is %d bytes, field holds at most %d", value, len(value), len(field)-1)
	}
	if bytes.IndexByte([]byte(value), 0) >= 0 {
		return fserr.Validation("%q contains a NUL byte", value)
	}
	n := copy(field, value)
	clear(field[n:])
	return nil
}

// GetString returns the contents of a NUL-padded fixed field up to
// the first NUL.
func GetString(field []byte) string {
	if end := bytes.IndexByte(field, 0); end >= 0 {
		return string(field[:end])
	}
	return string(field)
}
