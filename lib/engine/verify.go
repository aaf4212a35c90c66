// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"maps"
	"slices"

	"github.com/bureau-foundation/omnifs/lib/container"
	"github.com/bureau-foundation/omnifs/lib/namespace"
	"github.com/bureau-foundation/omnifs/lib/versionlog"
)

// Severity grades a verification finding.
type Severity string

const (
	// SeverityError means on-disk state contradicts itself: content
	// is unreachable or does not match its digest.
	SeverityError Severity = "error"

	// SeverityWarning means the container is usable but not as
	// expected: undersized regions, leaked blocks, stale sizes.
	SeverityWarning Severity = "warning"
)

// Issue is one verification finding.
type Issue struct {
	Severity Severity
	Message  string
}

// Report is the result of Verify.
type Report struct {
	Header          container.Header
	FileSize        int64
	CheckedVersions int
	Issues          []Issue
}

// Healthy reports whether the report has no error-severity issues.
func (r Report) Healthy() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return false
		}
	}
	return true
}

func (r *Report) add(severity Severity, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Severity: severity, Message: fmt.Sprintf(format, args...)})
}

// Verify re-reads the container header and checks the container's
// structure against it and against the in-memory state. A header
// that cannot be read (bad magic, short file) is returned as an
// error; every other finding goes into the report.
//
// Checks, in order: the header matches what was mounted, the region
// ordering invariant holds, the file is as long as the header says,
// the log regions are at least as large as the layout calls for,
// every live version's block is allocated and its content matches
// the stored digest, every file's size matches its current version,
// and no allocated block is unreferenced.
func (e *Engine) Verify() (Report, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.requireMounted(); err != nil {
		return Report{}, err
	}
	store, err := e.openStore()
	if err != nil {
		return Report{}, err
	}
	defer store.Close()

	header, err := store.ReadHeader()
	if err != nil {
		return Report{}, fmt.Errorf("verify: %w", err)
	}
	store.Bind(e.header)

	report := Report{Header: header}
	if header.BlockSize != e.header.BlockSize {
		report.add(SeverityError, "block size on disk is %d, mounted with %d", header.BlockSize, e.header.BlockSize)
	}
	if header != e.header {
		report.add(SeverityError, "header changed on disk since mount")
	}
	if err := header.Validate(); err != nil {
		report.add(SeverityError, "region layout: %v", err)
	}

	report.FileSize, err = store.Size()
	if err != nil {
		return Report{}, fmt.Errorf("verify: %w", err)
	}
	if uint64(report.FileSize) != header.TotalSize {
		report.add(SeverityWarning, "file is %d bytes, header declares %d", report.FileSize, header.TotalSize)
	}

	expected, err := ComputeLayout(Geometry{
		BlockSize:   header.BlockSize,
		TotalBlocks: header.TotalBlocks,
		MaxUsers:    header.MaxUsers,
		MaxEntries:  header.MaxEntries,
	}, e.clock.Now())
	if err == nil {
		if header.MaxVersions < expected.MaxVersions {
			report.add(SeverityWarning, "version region holds %d records, layout expects %d", header.MaxVersions, expected.MaxVersions)
		}
		if header.MaxChanges < expected.MaxChanges {
			report.add(SeverityWarning, "change log holds %d records, layout expects %d", header.MaxChanges, expected.MaxChanges)
		}
	}

	versions, err := e.log.Scan(store)
	if err != nil {
		return Report{}, fmt.Errorf("verify: %w", err)
	}
	referenced := make(map[uint32]bool)
	current := make(map[string]versionlog.Version)
	for _, version := range versions {
		if version.Retired {
			continue
		}
		report.CheckedVersions++
		referenced[version.Block] = true
		if latest, ok := current[version.Path]; !ok || version.ID > latest.ID {
			current[version.Path] = version
		}

		if !e.allocator.IsUsed(version.Block) {
			report.add(SeverityError, "version %d of %s uses block %d, which is free in the bitmap", version.ID, version.Path, version.Block)
			continue
		}
		content, err := readVersionContent(store, version)
		if err != nil {
			report.add(SeverityError, "version %d of %s: %v", version.ID, version.Path, err)
			continue
		}
		if digest := versionlog.HashContent(content); digest != version.Digest {
			report.add(SeverityError, "version %d of %s: content digest %s does not match recorded %s",
				version.ID, version.Path, digest.Short(), version.Digest.Short())
		}
	}

	e.tree.Walk("/", func(entry namespace.Entry) error {
		if entry.IsDir() {
			return nil
		}
		version, ok := current[entry.Path]
		switch {
		case !ok && entry.Size != 0:
			report.add(SeverityWarning, "%s has size %d but no live version", entry.Path, entry.Size)
		case ok && entry.Size != uint64(version.Size):
			report.add(SeverityWarning, "%s has size %d, current version %d has %d", entry.Path, entry.Size, version.ID, version.Size)
		}
		return nil
	})
	for _, path := range slices.Sorted(maps.Keys(current)) {
		if _, err := e.tree.Stat(path); err != nil {
			report.add(SeverityWarning, "live version %d refers to missing path %s", current[path].ID, path)
		}
	}

	for block := uint32(0); block < e.allocator.Total(); block++ {
		if e.allocator.IsUsed(block) && !referenced[block] {
			report.add(SeverityWarning, "block %d is allocated but no live version refers to it", block)
		}
	}

	e.logger.Info("container verified", "healthy", report.Healthy(), "issues", len(report.Issues), "versions_checked", report.CheckedVersions)
	return report, nil
}
