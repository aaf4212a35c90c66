// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/bureau-foundation/omnifs/lib/namespace"
)

// Stats summarizes a mounted container.
type Stats struct {
	TotalBlocks uint32
	FreeBlocks  uint32
	UsedBlocks  uint32
	BlockSize   uint32
	TotalSize   uint64

	Files       int
	Directories int
	MaxEntries  int

	Versions    int
	MaxVersions int
	Changes     int
	MaxChanges  int

	Users    int
	MaxUsers int
}

// Stats returns usage counters for the mounted container.
func (e *Engine) Stats() (Stats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.requireMounted(); err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalBlocks: e.allocator.Total(),
		FreeBlocks:  e.allocator.FreeCount(),
		UsedBlocks:  e.allocator.UsedCount(),
		BlockSize:   e.header.BlockSize,
		TotalSize:   e.header.TotalSize,
		MaxEntries:  e.tree.Capacity(),
		Versions:    e.log.VersionCount(),
		MaxVersions: e.log.MaxVersions(),
		Changes:     e.log.ChangeCount(),
		MaxChanges:  e.log.MaxChanges(),
		Users:       e.users.Len(),
		MaxUsers:    e.users.Capacity(),
	}
	e.tree.Walk("/", func(entry namespace.Entry) error {
		switch {
		case entry.Path == "/":
		case entry.IsDir():
			stats.Directories++
		default:
			stats.Files++
		}
		return nil
	})
	return stats, nil
}
