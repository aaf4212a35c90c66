// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"encoding/binary"

	"github.com/bureau-foundation/omnifs/lib/fserr"
)

const (
	// FormatVersion is the on-disk format version written into the
	// header and the seventh magic byte.
	FormatVersion = 1

	// HeaderSize is the fixed size of the header at offset 0.
	HeaderSize = 256

	// MaxContainerSize is the largest container Format will create.
	MaxContainerSize = 1 << 40
)

// magic is the 8-byte container signature: "OMNIFS" + format version
// byte + reserved byte.
var magic = [8]byte{'O', 'M', 'N', 'I', 'F', 'S', FormatVersion, 0}

// Header describes the region layout of a container. It is computed
// once at format time and read back verbatim on every mount; region
// offsets are never recomputed from the other fields.
type Header struct {
	// Version is the format version (currently 1).
	Version uint32

	// TotalSize is the byte length of the whole container.
	TotalSize uint64

	// BlockSize is the size of one data block in bytes.
	BlockSize uint32

	// TotalBlocks is the number of blocks in the data region and
	// the number of entries in the bitmap.
	TotalBlocks uint32

	UserTableOffset uint64
	MaxUsers        uint32

	BitmapOffset uint64

	MetadataOffset uint64
	MaxEntries     uint32

	DataOffset uint64

	VersionOffset uint64
	MaxVersions   uint32

	ChangeLogOffset uint64
	MaxChanges      uint32

	// FormattedAt is the format time in Unix nanoseconds.
	FormattedAt int64
}

// Header field offsets within the 256-byte header.
const (
	offMagic           = 0
	offVersion         = 8
	offHeaderSize      = 12
	offTotalSize       = 16
	offBlockSize       = 24
	offTotalBlocks     = 28
	offUserTable       = 32
	offMaxUsers        = 40
	offBitmap          = 48
	offMetadata        = 56
	offMaxEntries      = 64
	offData            = 72
	offVersionRegion   = 80
	offMaxVersions     = 88
	offMaxChanges      = 92
	offChangeLog       = 96
	offFormattedAt     = 104
	headerReservedFrom = 112
)

// Encode serializes the header into its 256-byte on-disk form. The
// reserved tail is zero.
func (h Header) Encode() [HeaderSize]byte {
	var buffer [HeaderSize]byte
	le := binary.LittleEndian
	copy(buffer[offMagic:], magic[:])
	le.PutUint32(buffer[offVersion:], h.Version)
	le.PutUint32(buffer[offHeaderSize:], HeaderSize)
	le.PutUint64(buffer[offTotalSize:], h.TotalSize)
	le.PutUint32(buffer[offBlockSize:], h.BlockSize)
	le.PutUint32(buffer[offTotalBlocks:], h.TotalBlocks)
	le.PutUint64(buffer[offUserTable:], h.UserTableOffset)
	le.PutUint32(buffer[offMaxUsers:], h.MaxUsers)
	le.PutUint64(buffer[offBitmap:], h.BitmapOffset)
	le.PutUint64(buffer[offMetadata:], h.MetadataOffset)
	le.PutUint32(buffer[offMaxEntries:], h.MaxEntries)
	le.PutUint64(buffer[offData:], h.DataOffset)
	le.PutUint64(buffer[offVersionRegion:], h.VersionOffset)
	le.PutUint32(buffer[offMaxVersions:], h.MaxVersions)
	le.PutUint32(buffer[offMaxChanges:], h.MaxChanges)
	le.PutUint64(buffer[offChangeLog:], h.ChangeLogOffset)
	le.PutUint64(buffer[offFormattedAt:], uint64(h.FormattedAt))
	return buffer
}

// DecodeHeader parses a 256-byte header. The magic is checked before
// any other field is looked at; a mismatch or a short buffer is a
// corruption error.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fserr.Corruption("container header is %d bytes, want %d", len(data), HeaderSize)
	}
	if [8]byte(data[offMagic:offMagic+8]) != magic {
		return Header{}, fserr.Corruption("container magic mismatch: got %q", data[offMagic:offMagic+8])
	}

	le := binary.LittleEndian
	if size := le.Uint32(data[offHeaderSize:]); size != HeaderSize {
		return Header{}, fserr.Corruption("container header declares size %d, want %d", size, HeaderSize)
	}

	return Header{
		Version:         le.Uint32(data[offVersion:]),
		TotalSize:       le.Uint64(data[offTotalSize:]),
		BlockSize:       le.Uint32(data[offBlockSize:]),
		TotalBlocks:     le.Uint32(data[offTotalBlocks:]),
		UserTableOffset: le.Uint64(data[offUserTable:]),
		MaxUsers:        le.Uint32(data[offMaxUsers:]),
		BitmapOffset:    le.Uint64(data[offBitmap:]),
		MetadataOffset:  le.Uint64(data[offMetadata:]),
		MaxEntries:      le.Uint32(data[offMaxEntries:]),
		DataOffset:      le.Uint64(data[offData:]),
		VersionOffset:   le.Uint64(data[offVersionRegion:]),
		MaxVersions:     le.Uint32(data[offMaxVersions:]),
		MaxChanges:      le.Uint32(data[offMaxChanges:]),
		ChangeLogOffset: le.Uint64(data[offChangeLog:]),
		FormattedAt:     int64(le.Uint64(data[offFormattedAt:])),
	}, nil
}

// region is one contiguous byte range in the container.
type region struct {
	name   string
	offset uint64
	size   uint64
}

// regions returns the container's regions in on-disk order.
func (h Header) regions() []region {
	return []region{
		{"header", 0, HeaderSize},
		{"user table", h.UserTableOffset, uint64(h.MaxUsers) * UserRecordSize},
		{"bitmap", h.BitmapOffset, uint64(h.TotalBlocks)},
		{"metadata table", h.MetadataOffset, uint64(h.MaxEntries) * MetadataRecordSize},
		{"data region", h.DataOffset, uint64(h.TotalBlocks) * uint64(h.BlockSize)},
		{"version region", h.VersionOffset, uint64(h.MaxVersions) * VersionRecordSize},
		{"change log", h.ChangeLogOffset, uint64(h.MaxChanges) * ChangeRecordSize},
	}
}

// Validate checks the ordering invariant: every region is non-empty,
// regions appear in the fixed order without overlapping, and the last
// one ends within TotalSize, which itself must not exceed
// MaxContainerSize. Violations are layout errors.
func (h Header) Validate() error {
	if h.Version != FormatVersion {
		return fserr.Layout("unsupported container format version %d", h.Version)
	}
	if h.BlockSize == 0 {
		return fserr.Layout("block size is zero")
	}
	if h.TotalSize > MaxContainerSize {
		return fserr.Layout("container size %d exceeds maximum %d", h.TotalSize, uint64(MaxContainerSize))
	}

	var end uint64
	for _, r := range h.regions() {
		if r.size == 0 {
			return fserr.Layout("%s is empty", r.name)
		}
		if r.offset < end {
			return fserr.Layout("%s at offset %d overlaps the previous region ending at %d", r.name, r.offset, end)
		}
		end = r.offset + r.size
		if end < r.offset {
			return fserr.Layout("%s overflows the address space", r.name)
		}
	}
	if end > h.TotalSize {
		return fserr.Layout("regions end at %d, beyond container size %d", end, h.TotalSize)
	}
	return nil
}

// BlockOffset returns the byte offset of the given block within the
// container.
func (h Header) BlockOffset(index uint32) int64 {
	return int64(h.DataOffset) + int64(index)*int64(h.BlockSize)
}
