// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot exports the live contents of an OmniFS container to
// a portable archive and restores such an archive into another
// container.
//
// A snapshot holds the namespace and the current content of every
// file. Version history, the change log and the user table are not
// included: a restore replays the tree as new writes by the restoring
// user, recorded under a single RESTORE change.
//
// File layout:
//
//	magic        8 bytes  "OMNISNAP"
//	compression  1 byte   see [Compression]
//	length       8 bytes  little-endian size of the uncompressed body
//	body         rest     compressed CBOR encoding of [Archive]
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/bureau-foundation/omnifs/lib/codec"
	"github.com/bureau-foundation/omnifs/lib/container"
	"github.com/bureau-foundation/omnifs/lib/engine"
	"github.com/bureau-foundation/omnifs/lib/fserr"
	"github.com/bureau-foundation/omnifs/lib/namespace"
	"github.com/bureau-foundation/omnifs/lib/versionlog"
)

// ArchiveVersion is the Archive.Version written by Export.
const ArchiveVersion = 1

const (
	headerSize = 17

	// maxBodySize bounds the length field so a corrupt header cannot
	// make Restore allocate without limit.
	maxBodySize = container.MaxContainerSize
)

var magic = [8]byte{'O', 'M', 'N', 'I', 'S', 'N', 'A', 'P'}

// Archive is the snapshot body.
type Archive struct {
	Version     int       `cbor:"version"`
	CreatedAt   time.Time `cbor:"created_at"`
	BlockSize   uint32    `cbor:"block_size"`
	TotalBlocks uint32    `cbor:"total_blocks"`
	Entries     []Entry   `cbor:"entries"`
}

// Entry is one directory or file, in pre-order.
type Entry struct {
	Path    string         `cbor:"path"`
	Kind    namespace.Kind `cbor:"kind"`
	Owner   string         `cbor:"owner"`
	Content []byte         `cbor:"content,omitempty"`
}

// Source is what Export reads from. *engine.Engine implements it.
type Source interface {
	Header() (container.Header, error)
	Walk(path string, fn func(namespace.Entry) error) error
	ReadFile(path string) ([]byte, error)
}

// Target is what Restore writes into. *engine.Engine implements it.
type Target interface {
	CreateDirectory(session engine.Session, parent, subpath string) (namespace.Entry, error)
	Write(session engine.Session, path string, data []byte) (engine.WriteResult, error)
	RecordChange(session engine.Session, path string, action versionlog.Action) error
}

// Summary counts what an export or restore covered.
type Summary struct {
	Directories int
	Files       int
	Bytes       int64
	Compression Compression
}

// Export writes a snapshot of source to w. If the body does not
// shrink under the requested compression it is stored uncompressed,
// and the returned Summary says so.
func Export(source Source, w io.Writer, compression Compression, now time.Time) (Summary, error) {
	header, err := source.Header()
	if err != nil {
		return Summary{}, fmt.Errorf("export: %w", err)
	}

	archive := Archive{
		Version:     ArchiveVersion,
		CreatedAt:   now.UTC(),
		BlockSize:   header.BlockSize,
		TotalBlocks: header.TotalBlocks,
	}
	var summary Summary
	err = source.Walk("/", func(entry namespace.Entry) error {
		if entry.Path == "/" {
			return nil
		}
		item := Entry{Path: entry.Path, Kind: entry.Kind, Owner: entry.Owner}
		if entry.IsDir() {
			summary.Directories++
		} else {
			content, err := source.ReadFile(entry.Path)
			if err != nil {
				return err
			}
			item.Content = content
			summary.Files++
			summary.Bytes += int64(len(content))
		}
		archive.Entries = append(archive.Entries, item)
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("export: %w", err)
	}

	body, err := codec.Marshal(archive)
	if err != nil {
		return Summary{}, fmt.Errorf("export: encoding archive: %w", err)
	}
	compressed, err := compress(body, compression)
	if err == errIncompressible {
		compressed, compression = body, CompressionNone
	} else if err != nil {
		return Summary{}, fmt.Errorf("export: %w", err)
	}
	summary.Compression = compression

	var prefix [headerSize]byte
	copy(prefix[:8], magic[:])
	prefix[8] = byte(compression)
	binary.LittleEndian.PutUint64(prefix[9:], uint64(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return Summary{}, fmt.Errorf("export: %w", err)
	}
	if _, err := w.Write(compressed); err != nil {
		return Summary{}, fmt.Errorf("export: %w", err)
	}
	return summary, nil
}

// Read decodes a snapshot without restoring it.
func Read(r io.Reader) (Archive, Compression, error) {
	var prefix [headerSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Archive{}, 0, fserr.Corruption("snapshot header: %v", err)
	}
	if !bytes.Equal(prefix[:8], magic[:]) {
		return Archive{}, 0, fserr.Corruption("not a snapshot: magic %q", prefix[:8])
	}
	compression := Compression(prefix[8])
	size := binary.LittleEndian.Uint64(prefix[9:])
	if size > maxBodySize {
		return Archive{}, 0, fserr.Corruption("snapshot body of %d bytes exceeds %d", size, uint64(maxBodySize))
	}

	compressed, err := io.ReadAll(r)
	if err != nil {
		return Archive{}, 0, fmt.Errorf("reading snapshot: %w", err)
	}
	body, err := decompress(compressed, compression, int(size))
	if err != nil {
		return Archive{}, 0, fserr.Corruption("snapshot body: %v", err)
	}
	var archive Archive
	if err := codec.Unmarshal(body, &archive); err != nil {
		return Archive{}, 0, fserr.Corruption("decoding archive: %v", err)
	}
	if archive.Version != ArchiveVersion {
		return Archive{}, 0, fserr.Validation("snapshot archive version %d, this build reads %d", archive.Version, ArchiveVersion)
	}
	return archive, compression, nil
}

// Restore re-creates every directory and file of the snapshot in
// target as session's user. Existing directories are reused and
// existing files get a new version. The restore is recorded as one
// RESTORE change on "/".
//
// A failure partway leaves what was restored so far in place; every
// individual write is still atomic.
func Restore(target Target, session engine.Session, r io.Reader) (Summary, error) {
	archive, compression, err := Read(r)
	if err != nil {
		return Summary{}, fmt.Errorf("restore: %w", err)
	}

	summary := Summary{Compression: compression}
	for _, entry := range archive.Entries {
		switch entry.Kind {
		case namespace.Directory:
			if _, err := target.CreateDirectory(session, "/", entry.Path); err != nil {
				return summary, fmt.Errorf("restore %s: %w", entry.Path, err)
			}
			summary.Directories++
		case namespace.File:
			if _, err := target.Write(session, entry.Path, entry.Content); err != nil {
				return summary, fmt.Errorf("restore %s: %w", entry.Path, err)
			}
			summary.Files++
			summary.Bytes += int64(len(entry.Content))
		default:
			return summary, fserr.Corruption("restore: %s has unknown kind %d", entry.Path, entry.Kind)
		}
	}

	if err := target.RecordChange(session, "/", versionlog.ActionRestore); err != nil {
		return summary, fmt.Errorf("restore: %w", err)
	}
	return summary, nil
}
