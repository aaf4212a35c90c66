// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/omnifs/lib/fserr"
)

// Store is raw I/O over one container file. A Store is opened and
// closed around each engine operation; every read and write on a
// closed Store fails with a not_open error.
//
// Block operations need the data region's geometry, which comes from
// the header: [Store.ReadHeader] and [Store.WriteHeader] record it,
// and [Store.Bind] sets it from a header the caller already holds.
//
// Store is not safe for concurrent use.
type Store struct {
	path   string
	file   *os.File
	header Header
	bound  bool
}

// New returns a closed Store for the container at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the container file path.
func (s *Store) Path() string {
	return s.path
}

// Create truncates or creates the container file, extends it with
// zeros to exactly header.TotalSize bytes, and writes the header. The
// Store is left closed.
//
// The file is truncated in place rather than replaced, so an advisory
// lock held on it survives the re-creation.
func (s *Store) Create(header Header) error {
	if s.file != nil {
		return fserr.Conflict("container %s is open; close it before re-creating", s.path)
	}
	if err := header.Validate(); err != nil {
		return err
	}

	file, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fserr.IO("creating container %s: %w", s.path, err)
	}
	s.file = file
	defer s.Close()

	fd := int(file.Fd())
	if err := unix.Ftruncate(fd, 0); err != nil {
		return fserr.IO("truncating container %s: %w", s.path, err)
	}
	if err := unix.Ftruncate(fd, int64(header.TotalSize)); err != nil {
		return fserr.IO("extending container %s to %d bytes: %w", s.path, header.TotalSize, err)
	}
	return s.WriteHeader(header)
}

// Open acquires the OS file handle. Opening an already open Store is
// a no-op. A missing file is an io error.
func (s *Store) Open() error {
	if s.file != nil {
		return nil
	}
	file, err := os.OpenFile(s.path, os.O_RDWR, 0)
	if err != nil {
		return fserr.IO("opening container %s: %w", s.path, err)
	}
	s.file = file
	return nil
}

// Close releases the OS file handle. Closing a closed Store is a
// no-op.
func (s *Store) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fserr.IO("closing container %s: %w", s.path, err)
	}
	return nil
}

// IsOpen reports whether the Store holds a file handle.
func (s *Store) IsOpen() bool {
	return s.file != nil
}

// Bind sets the geometry used by block operations.
func (s *Store) Bind(header Header) {
	s.header = header
	s.bound = true
}

// Size returns the current byte length of the container file.
func (s *Store) Size() (int64, error) {
	if err := s.requireOpen(); err != nil {
		return 0, err
	}
	info, err := s.file.Stat()
	if err != nil {
		return 0, fserr.IO("stating container %s: %w", s.path, err)
	}
	return info.Size(), nil
}

// ReadHeader reads and decodes the header at offset 0 and binds its
// geometry. A short read or a magic mismatch is a corruption error.
// The ordering invariant is not checked here; call
// [Header.Validate].
func (s *Store) ReadHeader() (Header, error) {
	var buffer [HeaderSize]byte
	if err := s.ReadAt(buffer[:], 0); err != nil {
		return Header{}, fmt.Errorf("reading container header: %w", err)
	}
	header, err := DecodeHeader(buffer[:])
	if err != nil {
		return Header{}, err
	}
	s.Bind(header)
	return header, nil
}

// WriteHeader encodes and writes the header at offset 0 and binds its
// geometry.
func (s *Store) WriteHeader(header Header) error {
	encoded := header.Encode()
	if err := s.WriteAt(encoded[:], 0); err != nil {
		return fmt.Errorf("writing container header: %w", err)
	}
	s.Bind(header)
	return nil
}

// WriteAt writes all of data at the given offset and fsyncs the file.
func (s *Store) WriteAt(data []byte, offset int64) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	fd := int(s.file.Fd())
	for len(data) > 0 {
		written, err := unix.Pwrite(fd, data, offset)
		if err != nil {
			return fserr.IO("pwrite at offset %d: %w", offset, err)
		}
		data = data[written:]
		offset += int64(written)
	}
	if err := unix.Fsync(fd); err != nil {
		return fserr.IO("fsync %s: %w", s.path, err)
	}
	return nil
}

// ReadAt fills data from the given offset. Reading past the end of
// the file is a corruption error: every region lies within the size
// the header declares.
func (s *Store) ReadAt(data []byte, offset int64) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	read, err := s.file.ReadAt(data, offset)
	if errors.Is(err, io.EOF) {
		return fserr.Corruption("short read at offset %d: got %d of %d bytes", offset, read, len(data))
	}
	if err != nil {
		return fserr.IO("reading at offset %d: %w", offset, err)
	}
	return nil
}

// WriteBlock writes data into the block at index. Bytes beyond one
// block are dropped; the remainder of the block is zero-filled so
// that stale bytes from a previous occupant never leak.
func (s *Store) WriteBlock(index uint32, data []byte) error {
	if err := s.requireBlock(index); err != nil {
		return err
	}
	block := make([]byte, s.header.BlockSize)
	copy(block, data)
	if err := s.WriteAt(block, s.header.BlockOffset(index)); err != nil {
		return fmt.Errorf("writing block %d: %w", index, err)
	}
	return nil
}

// ReadBlock returns the full contents of the block at index.
func (s *Store) ReadBlock(index uint32) ([]byte, error) {
	if err := s.requireBlock(index); err != nil {
		return nil, err
	}
	block := make([]byte, s.header.BlockSize)
	if err := s.ReadAt(block, s.header.BlockOffset(index)); err != nil {
		return nil, fmt.Errorf("reading block %d: %w", index, err)
	}
	return block, nil
}

// WriteRecords encodes records back to back starting at offset and
// writes them in one call.
func WriteRecords[T any](s *Store, offset int64, records []T) error {
	if len(records) == 0 {
		return nil
	}
	var buffer bytes.Buffer
	buffer.Grow(binary.Size(records[0]) * len(records))
	if err := binary.Write(&buffer, binary.LittleEndian, records); err != nil {
		return fmt.Errorf("encoding %d records: %w", len(records), err)
	}
	return s.WriteAt(buffer.Bytes(), offset)
}

// ReadRecords reads count consecutive records starting at offset.
func ReadRecords[T any](s *Store, offset int64, count int) ([]T, error) {
	if count <= 0 {
		return nil, nil
	}
	var zero T
	size := binary.Size(zero)
	if size <= 0 {
		return nil, fmt.Errorf("record type %T has no fixed size", zero)
	}
	raw := make([]byte, size*count)
	if err := s.ReadAt(raw, offset); err != nil {
		return nil, err
	}
	records := make([]T, count)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, records); err != nil {
		return nil, fserr.Corruption("decoding %d records at offset %d: %w", count, offset, err)
	}
	return records, nil
}

// WriteRecord writes one record at slot index of the array starting
// at base.
func WriteRecord[T any](s *Store, base int64, index int, record T) error {
	offset := base + int64(index)*int64(binary.Size(record))
	return WriteRecords(s, offset, []T{record})
}

// ReadRecord reads the record at slot index of the array starting at
// base.
func ReadRecord[T any](s *Store, base int64, index int) (T, error) {
	var zero T
	offset := base + int64(index)*int64(binary.Size(zero))
	records, err := ReadRecords[T](s, offset, 1)
	if err != nil {
		return zero, err
	}
	return records[0], nil
}

func (s *Store) requireOpen() error {
	if s.file == nil {
		return fserr.NotOpen("container %s is not open", s.path)
	}
	return nil
}

func (s *Store) requireBlock(index uint32) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if !s.bound {
		return fserr.Layout("container %s has no bound header", s.path)
	}
	if index >= s.header.TotalBlocks {
		return fserr.Validation("block %d out of range [0, %d)", index, s.header.TotalBlocks)
	}
	return nil
}
