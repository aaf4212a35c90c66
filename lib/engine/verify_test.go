// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/omnifs/lib/container"
	"github.com/bureau-foundation/omnifs/lib/fserr"
)

func corruptAt(t *testing.T, path string, offset int64, data []byte) {
	t.Helper()
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	if _, err := file.WriteAt(data, offset); err != nil {
		t.Fatal(err)
	}
}

func TestVerifyHealthyContainer(t *testing.T) {
	te := formattedEngine(t, 16)
	alice := te.addUser(t, "alice")
	te.write(t, alice, "/home/alice/a", "one")
	te.write(t, alice, "/home/alice/a", "two")

	report, err := te.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.Healthy() || len(report.Issues) != 0 {
		t.Errorf("issues on a healthy container: %+v", report.Issues)
	}
	if report.CheckedVersions != 2 {
		t.Errorf("CheckedVersions = %d, want 2", report.CheckedVersions)
	}
	if uint64(report.FileSize) != report.Header.TotalSize {
		t.Errorf("FileSize = %d, TotalSize = %d", report.FileSize, report.Header.TotalSize)
	}
}

func TestVerifyReportsDigestMismatch(t *testing.T) {
	te := formattedEngine(t, 16)
	alice := te.addUser(t, "alice")
	result := te.write(t, alice, "/home/alice/a", "hello")

	header, _ := te.Header()
	corruptAt(t, te.path, header.BlockOffset(result.Block), []byte("jello"))

	report, err := te.Verify()
	if err != nil {
		t.Fatalf("Verify returned an error for soft corruption: %v", err)
	}
	if report.Healthy() {
		t.Fatal("report is healthy despite a corrupted block")
	}
	found := false
	for _, issue := range report.Issues {
		if issue.Severity == SeverityError && strings.Contains(issue.Message, "digest") {
			found = true
		}
	}
	if !found {
		t.Errorf("no digest issue in %+v", report.Issues)
	}
}

func TestVerifyReportsFileSizeMismatch(t *testing.T) {
	te := formattedEngine(t, 8)
	file, err := os.OpenFile(te.path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	info, _ := file.Stat()
	file.Truncate(info.Size() + 100)
	file.Close()

	report, err := te.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(report.Issues) != 1 || report.Issues[0].Severity != SeverityWarning {
		t.Errorf("issues = %+v, want one warning", report.Issues)
	}
	if !report.Healthy() {
		t.Error("size warning made the report unhealthy")
	}
}

func TestVerifyRefusesBadMagic(t *testing.T) {
	te := formattedEngine(t, 8)
	corruptAt(t, te.path, 0, []byte("BADMAGIC"))

	if _, err := te.Verify(); !fserr.Is(err, fserr.KindCorruption) {
		t.Fatalf("Verify with bad magic = %v, want corruption", err)
	}
}

func TestVerifyReportsChangedHeader(t *testing.T) {
	te := formattedEngine(t, 8)
	header, _ := te.Header()
	header.BlockSize = 512
	encoded := header.Encode()
	corruptAt(t, te.path, 0, encoded[:])

	report, err := te.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Healthy() {
		t.Errorf("changed block size not reported: %+v", report.Issues)
	}
}

func TestComputeLayout(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	for _, totalBlocks := range []uint32{1, 8, 256, 10000} {
		header, err := ComputeLayout(Geometry{BlockSize: 4096, TotalBlocks: totalBlocks, MaxUsers: 64}, now)
		if err != nil {
			t.Fatalf("ComputeLayout(%d): %v", totalBlocks, err)
		}
		if err := header.Validate(); err != nil {
			t.Errorf("ComputeLayout(%d) produced invalid header: %v", totalBlocks, err)
		}
		if header.TotalBlocks != totalBlocks {
			t.Errorf("TotalBlocks = %d, want %d", header.TotalBlocks, totalBlocks)
		}
		if header.MaxEntries != DefaultMaxEntries(totalBlocks) {
			t.Errorf("MaxEntries = %d, want %d", header.MaxEntries, DefaultMaxEntries(totalBlocks))
		}
		if header.MaxVersions < 16 || header.MaxChanges < 16 {
			t.Errorf("log regions too small: %d versions, %d changes", header.MaxVersions, header.MaxChanges)
		}
		dataSize := uint64(totalBlocks) * 4096
		if got := header.VersionOffset - header.DataOffset; got != dataSize {
			t.Errorf("data region = %d bytes, want %d", got, dataSize)
		}
		if header.TotalSize != header.ChangeLogOffset+uint64(header.MaxChanges)*container.ChangeRecordSize {
			t.Errorf("TotalSize %d does not end at the change log", header.TotalSize)
		}
	}

	// 256 blocks: the log tail is ceil(1 MiB / 9) split in two.
	header, _ := ComputeLayout(Geometry{BlockSize: 4096, TotalBlocks: 256, MaxUsers: 64}, now)
	tail := (uint64(256*4096) + 8) / 9
	if want := uint32(tail / 2 / container.VersionRecordSize); header.MaxVersions != want {
		t.Errorf("MaxVersions = %d, want %d", header.MaxVersions, want)
	}
}

func TestComputeLayoutRejects(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		geometry Geometry
		want     fserr.Kind
	}{
		{"zero blocks", Geometry{BlockSize: 4096, TotalBlocks: 0, MaxUsers: 1}, fserr.KindValidation},
		{"zero block size", Geometry{BlockSize: 0, TotalBlocks: 8, MaxUsers: 1}, fserr.KindValidation},
		{"beyond one TiB", Geometry{BlockSize: 1 << 20, TotalBlocks: 1<<20 + 1, MaxUsers: 1}, fserr.KindLayout},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := ComputeLayout(test.geometry, now); !fserr.Is(err, test.want) {
				t.Errorf("ComputeLayout = %v, want %s", err, test.want)
			}
		})
	}
}
