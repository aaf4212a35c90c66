// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package allocator tracks which data blocks of a container are in
// use. It is a plain bitmap with first-fit allocation; the engine
// loads it from and persists it to the container's bitmap region
// around each mutating call. The allocator itself never touches a
// file.
package allocator

import (
	"github.com/bureau-foundation/omnifs/lib/fserr"
)

// Bitmap byte values as persisted in the container.
const (
	blockFree byte = 0
	blockUsed byte = 1
)

// Allocator is a first-fit bitmap allocator over a fixed number of
// blocks. It is not safe for concurrent use; the engine serializes
// access.
type Allocator struct {
	used []bool
}

// New returns an allocator over totalBlocks blocks, all free.
func New(totalBlocks uint32) *Allocator {
	return &Allocator{used: make([]bool, totalBlocks)}
}

// Total returns the number of blocks managed.
func (a *Allocator) Total() uint32 {
	return uint32(len(a.used))
}

// Allocate marks the lowest-index free block used and returns its
// index. When every block is in use it returns a capacity error.
func (a *Allocator) Allocate() (uint32, error) {
	for index, used := range a.used {
		if !used {
			a.used[index] = true
			return uint32(index), nil
		}
	}
	return 0, fserr.Capacity("no free space: all %d blocks in use", len(a.used))
}

// Free marks a block free. Freeing an already free block is a no-op;
// an out-of-range index is a validation error.
func (a *Allocator) Free(index uint32) error {
	if index >= a.Total() {
		return fserr.Validation("block %d out of range [0, %d)", index, a.Total())
	}
	a.used[index] = false
	return nil
}

// IsUsed reports whether a block is allocated. Out-of-range indices
// report false.
func (a *Allocator) IsUsed(index uint32) bool {
	return index < a.Total() && a.used[index]
}

// Reset marks every block free.
func (a *Allocator) Reset() {
	clear(a.used)
}

// FreeCount returns the number of free blocks.
func (a *Allocator) FreeCount() uint32 {
	return a.Total() - a.UsedCount()
}

// UsedCount returns the number of allocated blocks.
func (a *Allocator) UsedCount() uint32 {
	var count uint32
	for _, used := range a.used {
		if used {
			count++
		}
	}
	return count
}

// Bytes returns the bitmap in its persisted form: one byte per block,
// 0 for free and 1 for used.
func (a *Allocator) Bytes() []byte {
	bitmap := make([]byte, len(a.used))
	for index, used := range a.used {
		if used {
			bitmap[index] = blockUsed
		}
	}
	return bitmap
}

// Load replaces the allocator state with a persisted bitmap. The
// bitmap must have exactly one byte per block and contain only 0 and
// 1; anything else is corruption and leaves the state unchanged.
func (a *Allocator) Load(bitmap []byte) error {
	if len(bitmap) != len(a.used) {
		return fserr.Corruption("bitmap has %d entries, want %d", len(bitmap), len(a.used))
	}
	for index, value := range bitmap {
		if value != blockFree && value != blockUsed {
			return fserr.Corruption("bitmap entry %d has invalid value %d", index, value)
		}
	}
	for index, value := range bitmap {
		a.used[index] = value == blockUsed
	}
	return nil
}
