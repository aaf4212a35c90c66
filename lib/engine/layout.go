// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"math"
	"time"

	"github.com/bureau-foundation/omnifs/lib/container"
	"github.com/bureau-foundation/omnifs/lib/fserr"
)

const (
	// DefaultBlockSize is the block size used when Options leaves it
	// zero.
	DefaultBlockSize = 4096

	// DefaultMaxUsers is the user-table size used when Options leaves
	// it zero.
	DefaultMaxUsers = 64

	// minLogRecords is the floor for both the version region and the
	// change log, however small the data region.
	minLogRecords = 16

	// dataShareTenths is the data region's share, in tenths, of
	// everything after the metadata table.
	dataShareTenths = 9
)

// Geometry is the caller-chosen part of a layout.
type Geometry struct {
	BlockSize   uint32
	TotalBlocks uint32
	MaxUsers    uint32

	// MaxEntries is the metadata table size. Zero selects
	// max(64, 2*TotalBlocks).
	MaxEntries uint32
}

// ComputeLayout places every region for the given geometry and
// returns the resulting header.
//
// The data region holds exactly TotalBlocks blocks and makes up 90%
// of the space after the metadata table; the remaining 10% is split
// evenly between version records and change-log records, each with at
// least 16 records. The container size is the sum of the regions and
// may not exceed container.MaxContainerSize.
func ComputeLayout(geometry Geometry, now time.Time) (container.Header, error) {
	if geometry.BlockSize == 0 {
		return container.Header{}, fserr.Validation("block size is zero")
	}
	if geometry.TotalBlocks == 0 {
		return container.Header{}, fserr.Validation("total blocks is zero")
	}
	if geometry.MaxUsers == 0 {
		return container.Header{}, fserr.Validation("user table size is zero")
	}
	maxEntries := geometry.MaxEntries
	if maxEntries == 0 {
		maxEntries = DefaultMaxEntries(geometry.TotalBlocks)
	}

	dataSize := uint64(geometry.TotalBlocks) * uint64(geometry.BlockSize)
	if dataSize > container.MaxContainerSize {
		return container.Header{}, fserr.Layout("data region of %d bytes exceeds maximum container size %d", dataSize, uint64(container.MaxContainerSize))
	}
	tail := (dataSize + dataShareTenths - 1) / dataShareTenths
	half := tail / 2
	maxVersions := max(half/container.VersionRecordSize, minLogRecords)
	maxChanges := max(half/container.ChangeRecordSize, minLogRecords)
	if maxVersions > 1<<32-1 || maxChanges > 1<<32-1 {
		return container.Header{}, fserr.Layout("log regions too large for %d blocks", geometry.TotalBlocks)
	}

	h := container.Header{
		Version:         container.FormatVersion,
		BlockSize:       geometry.BlockSize,
		TotalBlocks:     geometry.TotalBlocks,
		UserTableOffset: container.HeaderSize,
		MaxUsers:        geometry.MaxUsers,
		MaxEntries:      maxEntries,
		MaxVersions:     uint32(maxVersions),
		MaxChanges:      uint32(maxChanges),
		FormattedAt:     now.UnixNano(),
	}
	h.BitmapOffset = h.UserTableOffset + uint64(h.MaxUsers)*container.UserRecordSize
	h.MetadataOffset = h.BitmapOffset + uint64(h.TotalBlocks)
	h.DataOffset = h.MetadataOffset + uint64(h.MaxEntries)*container.MetadataRecordSize
	h.VersionOffset = h.DataOffset + dataSize
	h.ChangeLogOffset = h.VersionOffset + maxVersions*container.VersionRecordSize
	h.TotalSize = h.ChangeLogOffset + maxChanges*container.ChangeRecordSize

	if err := h.Validate(); err != nil {
		return container.Header{}, err
	}
	return h, nil
}

// DefaultMaxEntries returns the metadata table size used for
// totalBlocks when none is configured.
func DefaultMaxEntries(totalBlocks uint32) uint32 {
	return uint32(min(max(64, 2*uint64(totalBlocks)), math.MaxUint32))
}
