// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/bureau-foundation/omnifs/lib/fserr"
	"github.com/bureau-foundation/omnifs/lib/testutil"
	"github.com/bureau-foundation/omnifs/lib/versionlog"
)

func populated(t *testing.T) *testutil.Fixture {
	t.Helper()
	fixture := testutil.MountedEngine(t, 32)
	alice := fixture.AddUser(t, "alice")
	if _, err := fixture.Engine.CreateDirectory(alice, "/home/alice", "notes/2026"); err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}
	fixture.Write(t, alice, "/home/alice/notes/todo.txt", "draft")
	fixture.Write(t, alice, "/home/alice/notes/todo.txt", strings.Repeat("buy milk\n", 100))
	fixture.Write(t, alice, "/home/alice/notes/2026/raw.bin", "\x00\x01\x02\xff")
	if _, err := fixture.Engine.CreateFile(alice, "/home/alice", "empty", nil); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	return fixture
}

func TestExportRestoreRoundtrip(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(compression.String(), func(t *testing.T) {
			source := populated(t)
			var buffer bytes.Buffer
			exported, err := Export(source.Engine, &buffer, compression, testutil.Epoch)
			if err != nil {
				t.Fatalf("Export: %v", err)
			}
			// home, home/alice, notes, notes/2026
			if exported.Directories != 4 || exported.Files != 3 {
				t.Errorf("exported %d directories, %d files; want 4, 3", exported.Directories, exported.Files)
			}
			if compression != CompressionNone && exported.Compression != compression {
				t.Errorf("compression = %s, want %s", exported.Compression, compression)
			}

			target := testutil.MountedEngine(t, 32)
			restored, err := Restore(target.Engine, target.Admin, &buffer)
			if err != nil {
				t.Fatalf("Restore: %v", err)
			}
			if restored.Files != 3 || restored.Bytes != exported.Bytes {
				t.Errorf("restored = %+v, exported = %+v", restored, exported)
			}

			for _, path := range []string{
				"/home/alice/notes/todo.txt",
				"/home/alice/notes/2026/raw.bin",
				"/home/alice/empty",
			} {
				want, _ := source.Engine.ReadFile(path)
				got, err := target.Engine.ReadFile(path)
				if err != nil {
					t.Errorf("ReadFile(%s) after restore: %v", path, err)
					continue
				}
				if !bytes.Equal(got, want) {
					t.Errorf("%s = %q, want %q", path, got, want)
				}
			}

			changes, _ := target.Engine.ChangeLog()
			last := changes[len(changes)-1]
			if last.Action != versionlog.ActionRestore || last.Actor != "admin" {
				t.Errorf("last change = %+v, want RESTORE by admin", last)
			}
		})
	}
}

func TestExportFallsBackToNone(t *testing.T) {
	fixture := testutil.MountedEngine(t, 8)
	var buffer bytes.Buffer
	// An empty tree encodes to a few dozen bytes that lz4 cannot
	// shrink.
	summary, err := Export(fixture.Engine, &buffer, CompressionLZ4, testutil.Epoch)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if summary.Compression != CompressionNone {
		t.Errorf("compression = %s, want none", summary.Compression)
	}
	archive, compression, err := Read(&buffer)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if compression != CompressionNone || len(archive.Entries) != 0 {
		t.Errorf("archive = %+v (%s)", archive, compression)
	}
	if archive.BlockSize != 4096 || archive.TotalBlocks != 8 {
		t.Errorf("geometry = %d x %d", archive.TotalBlocks, archive.BlockSize)
	}
}

func TestReadRejectsCorruptSnapshots(t *testing.T) {
	fixture := populated(t)
	var buffer bytes.Buffer
	if _, err := Export(fixture.Engine, &buffer, CompressionZstd, testutil.Epoch); err != nil {
		t.Fatalf("Export: %v", err)
	}
	valid := buffer.Bytes()

	tests := []struct {
		name   string
		mangle func([]byte) []byte
	}{
		{"short", func(b []byte) []byte { return b[:10] }},
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"truncated body", func(b []byte) []byte { return b[:len(b)-5] }},
		{"wrong length", func(b []byte) []byte { b[9]++; return b }},
		{"unknown compression", func(b []byte) []byte { b[8] = 9; return b }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data := test.mangle(bytes.Clone(valid))
			if _, _, err := Read(bytes.NewReader(data)); !fserr.Is(err, fserr.KindCorruption) {
				t.Errorf("Read = %v, want corruption", err)
			}
		})
	}
}

func TestReadRejectsImplausibleLength(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		for _, size := range []uint64{1 << 40, 1 << 30, 1 << 20} {
			prefix := make([]byte, headerSize)
			copy(prefix, magic[:])
			prefix[8] = byte(compression)
			binary.LittleEndian.PutUint64(prefix[9:], size)
			data := append(prefix, 0x01, 0x02, 0x03)

			_, _, err := Read(bytes.NewReader(data))
			if !fserr.Is(err, fserr.KindCorruption) {
				t.Errorf("%s body declaring %d bytes: Read = %v, want corruption", compression, size, err)
			}
		}
	}
}

func TestDecompressHighRatioZstd(t *testing.T) {
	raw := bytes.Repeat([]byte{0}, 4<<20)
	compressed, err := compress(raw, CompressionZstd)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	body, err := decompress(compressed, CompressionZstd, len(raw))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(body, raw) {
		t.Error("zstd round trip changed the body")
	}
}

func TestRestoreRequiresSession(t *testing.T) {
	source := populated(t)
	var buffer bytes.Buffer
	if _, err := Export(source.Engine, &buffer, CompressionNone, testutil.Epoch); err != nil {
		t.Fatalf("Export: %v", err)
	}
	target := testutil.MountedEngine(t, 32)
	if _, err := Restore(target.Engine, nil, &buffer); !fserr.Is(err, fserr.KindPermission) {
		t.Errorf("Restore without session = %v, want permission", err)
	}
}

func TestParseCompression(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		compression, err := ParseCompression(name)
		if err != nil {
			t.Fatalf("ParseCompression(%q): %v", name, err)
		}
		if compression.String() != name {
			t.Errorf("ParseCompression(%q).String() = %q", name, compression.String())
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("ParseCompression(gzip) succeeded")
	}
	if got := Compression(7).String(); got != "unknown(7)" {
		t.Errorf("Compression(7).String() = %q", got)
	}
}
