// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"fmt"

	"github.com/bureau-foundation/omnifs/lib/container"
	"github.com/bureau-foundation/omnifs/lib/fserr"
	"github.com/bureau-foundation/omnifs/lib/namespace"
	"github.com/bureau-foundation/omnifs/lib/versionlog"
)

// WriteResult describes a successful write. Version is zero when no
// content was stored (an empty CreateFile).
type WriteResult struct {
	Path    string
	Block   uint32
	Version uint64
	Size    uint32
}

// CreateDirectory creates subpath below parent, including any missing
// intermediate directories, owned by the session's user. Existing
// directories are reused.
func (e *Engine) CreateDirectory(session Session, parent, subpath string) (namespace.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(session, false); err != nil {
		return namespace.Entry{}, fmt.Errorf("create directory: %w", err)
	}
	if !e.log.HasChangeCapacity(1) {
		return namespace.Entry{}, fserr.Capacity("create directory: change log full")
	}

	restore, err := e.checkpoint()
	if err != nil {
		return namespace.Entry{}, err
	}
	entry, err := e.tree.CreateDirectory(parent, subpath, session.User(), e.clock.Now())
	if err != nil {
		return namespace.Entry{}, fmt.Errorf("create directory: %w", err)
	}

	store, err := e.openStore()
	if err != nil {
		restore()
		return namespace.Entry{}, fmt.Errorf("create directory: %w", err)
	}
	defer store.Close()

	if err := e.persistMetadata(store); err != nil {
		restore()
		return namespace.Entry{}, fmt.Errorf("create directory %s: %w", entry.Path, err)
	}
	if _, err := e.log.AppendChange(store, entry.Path, session.User(), versionlog.ActionCreateDir, 0, e.clock.Now()); err != nil {
		return entry, fmt.Errorf("create directory %s: %w", entry.Path, err)
	}

	session.RecordOperation()
	e.logger.Debug("directory created", "path", entry.Path, "user", session.User())
	return entry, nil
}

// CreateFile creates a file named name in the directory parent. When
// content is non-empty it becomes the file's first version.
func (e *Engine) CreateFile(session Session, parent, name string, content []byte) (WriteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(session, false); err != nil {
		return WriteResult{}, fmt.Errorf("create file: %w", err)
	}
	if err := e.checkWriteCapacity(len(content)); err != nil {
		return WriteResult{}, fmt.Errorf("create file: %w", err)
	}

	restore, err := e.checkpoint()
	if err != nil {
		return WriteResult{}, err
	}
	entry, err := e.tree.CreateFile(parent, name, session.User(), e.clock.Now())
	if err != nil {
		return WriteResult{}, fmt.Errorf("create file: %w", err)
	}

	store, err := e.openStore()
	if err != nil {
		restore()
		return WriteResult{}, fmt.Errorf("create file: %w", err)
	}
	defer store.Close()

	result, err := e.storeContent(store, session, entry.Path, content, versionlog.ActionCreateFile, restore)
	if err != nil {
		return WriteResult{}, fmt.Errorf("create file %s: %w", entry.Path, err)
	}
	return result, nil
}

// Write stores data as the new current version of the file at path,
// creating the file if it does not exist (its parent must). Data
// larger than one block is a capacity error; it is never truncated.
//
// The block and bitmap are made durable before the version record is
// appended, so a failed write never advances the current version.
func (e *Engine) Write(session Session, path string, data []byte) (WriteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(session, false); err != nil {
		return WriteResult{}, fmt.Errorf("write: %w", err)
	}
	if err := e.checkWriteCapacity(max(len(data), 1)); err != nil {
		return WriteResult{}, fmt.Errorf("write %s: %w", path, err)
	}

	restore, err := e.checkpoint()
	if err != nil {
		return WriteResult{}, err
	}

	action := versionlog.ActionModify
	entry, err := e.tree.Stat(path)
	switch {
	case fserr.Is(err, fserr.KindNotFound):
		parent, name := namespace.Split(path)
		entry, err = e.tree.CreateFile(parent, name, session.User(), e.clock.Now())
		if err != nil {
			return WriteResult{}, fmt.Errorf("write: %w", err)
		}
		action = versionlog.ActionCreateFile
	case err != nil:
		return WriteResult{}, fmt.Errorf("write: %w", err)
	case entry.IsDir():
		return WriteResult{}, fserr.Conflict("write: %s is a directory", entry.Path)
	}

	store, err := e.openStore()
	if err != nil {
		restore()
		return WriteResult{}, fmt.Errorf("write: %w", err)
	}
	defer store.Close()

	result, err := e.storeContent(store, session, entry.Path, data, action, restore)
	if err != nil {
		return WriteResult{}, fmt.Errorf("write %s: %w", entry.Path, err)
	}
	return result, nil
}

// checkWriteCapacity fails if storing size bytes as a new version
// could run out of room partway through.
func (e *Engine) checkWriteCapacity(size int) error {
	if size > int(e.header.BlockSize) {
		return fserr.Capacity("content is %d bytes, block size is %d", size, e.header.BlockSize)
	}
	if !e.log.HasChangeCapacity(1) {
		return fserr.Capacity("change log full: %d records", e.log.MaxChanges())
	}
	if size == 0 {
		return nil
	}
	if !e.log.HasVersionCapacity(1) {
		return fserr.Capacity("version region full: %d records", e.log.MaxVersions())
	}
	if e.allocator.FreeCount() == 0 {
		return fserr.Capacity("no free space: all %d blocks in use", e.allocator.Total())
	}
	return nil
}

// storeContent writes data as a new version of the file at path,
// which must already exist in the tree, and records action in the
// change log. Empty content records only the change. On failure
// before the version record is appended, the block is released and
// restore puts the tree back.
func (e *Engine) storeContent(store *container.Store, session Session, path string, data []byte, action versionlog.Action, restore func()) (WriteResult, error) {
	now := e.clock.Now()
	result := WriteResult{Path: path}

	if len(data) > 0 || action != versionlog.ActionCreateFile {
		block, err := e.allocator.Allocate()
		if err != nil {
			restore()
			return WriteResult{}, err
		}
		abort := func(cause error) (WriteResult, error) {
			e.allocator.Free(block)
			restore()
			e.rollback(store, "bitmap", e.persistBitmap, "path", path)
			e.rollback(store, "metadata", e.persistMetadata, "path", path)
			return WriteResult{}, cause
		}

		if err := store.WriteBlock(block, data); err != nil {
			return abort(err)
		}
		if err := e.persistBitmap(store); err != nil {
			return abort(err)
		}
		if err := e.tree.SetFileInfo(path, uint64(len(data)), now); err != nil {
			return abort(err)
		}
		if err := e.persistMetadata(store); err != nil {
			return abort(err)
		}
		version, err := e.log.SaveVersion(store, path, block, uint32(len(data)), versionlog.HashContent(data), now)
		if err != nil {
			return abort(err)
		}
		result.Block = block
		result.Version = version.ID
		result.Size = version.Size
	} else if err := e.persistMetadata(store); err != nil {
		restore()
		return WriteResult{}, err
	}

	if _, err := e.log.AppendChange(store, path, session.User(), action, result.Version, now); err != nil {
		// The version is already durable; only the audit entry is
		// missing.
		e.logger.Error("appending change record", "path", path, "action", action, "error", err)
		return result, err
	}

	session.RecordOperation()
	e.logger.Debug("content stored",
		"path", path,
		"action", action,
		"block", result.Block,
		"version", result.Version,
		"size", result.Size,
		"user", session.User(),
	)
	return result, nil
}

// Read returns up to length bytes of the block at blockIndex, cut at
// the first NUL byte. A length of zero or more than one block reads
// the whole block. Use ReadFile for binary content.
func (e *Engine) Read(blockIndex uint32, length int) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.requireMounted(); err != nil {
		return nil, err
	}
	store, err := e.openStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	block, err := store.ReadBlock(blockIndex)
	if err != nil {
		return nil, err
	}
	if length > 0 && length < len(block) {
		block = block[:length]
	}
	if end := bytes.IndexByte(block, 0); end >= 0 {
		block = block[:end]
	}
	return block, nil
}

// ReadFile returns the exact bytes of the current version of the file
// at path. A file that was never written reads as empty.
func (e *Engine) ReadFile(path string) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.requireMounted(); err != nil {
		return nil, err
	}
	entry, err := e.tree.Stat(path)
	if err != nil {
		return nil, err
	}
	if entry.IsDir() {
		return nil, fserr.Conflict("%s is a directory", entry.Path)
	}
	version, ok := e.log.Latest(entry.Path)
	if !ok {
		return []byte{}, nil
	}

	store, err := e.openStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return readVersionContent(store, version)
}

func readVersionContent(store *container.Store, version versionlog.Version) ([]byte, error) {
	block, err := store.ReadBlock(version.Block)
	if err != nil {
		return nil, fmt.Errorf("reading version %d: %w", version.ID, err)
	}
	if int(version.Size) > len(block) {
		return nil, fserr.Corruption("version %d claims %d bytes in a %d-byte block", version.ID, version.Size, len(block))
	}
	return block[:version.Size], nil
}

// Delete removes one file or empty directory. A file's blocks, from
// every version, go back to the allocator and its version records
// are retired. A non-empty directory is a conflict; use
// DeleteRecursive.
func (e *Engine) Delete(session Session, path string) (namespace.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(session, false); err != nil {
		return namespace.Entry{}, fmt.Errorf("delete: %w", err)
	}
	if !e.log.HasChangeCapacity(1) {
		return namespace.Entry{}, fserr.Capacity("delete: change log full")
	}

	restore, err := e.checkpoint()
	if err != nil {
		return namespace.Entry{}, err
	}
	removed, err := e.tree.Delete(path)
	if err != nil {
		return namespace.Entry{}, fmt.Errorf("delete: %w", err)
	}
	if err := e.finishDelete(session, []namespace.Entry{removed}, restore); err != nil {
		return namespace.Entry{}, fmt.Errorf("delete %s: %w", removed.Path, err)
	}
	return removed, nil
}

// DeleteRecursive removes the node at path and everything below it,
// releasing every block owned by the removed files. It returns the
// removed entries in pre-order.
func (e *Engine) DeleteRecursive(session Session, path string) ([]namespace.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(session, false); err != nil {
		return nil, fmt.Errorf("delete: %w", err)
	}
	if !e.log.HasChangeCapacity(1) {
		return nil, fserr.Capacity("delete: change log full")
	}

	restore, err := e.checkpoint()
	if err != nil {
		return nil, err
	}
	removed, err := e.tree.DeleteRecursive(path)
	if err != nil {
		return nil, fmt.Errorf("delete: %w", err)
	}
	if err := e.finishDelete(session, removed, restore); err != nil {
		return nil, fmt.Errorf("delete %s: %w", removed[0].Path, err)
	}
	return removed, nil
}

// finishDelete persists a namespace removal already applied to the
// tree, retires the removed files' versions, and frees their blocks.
func (e *Engine) finishDelete(session Session, removed []namespace.Entry, restore func()) error {
	store, err := e.openStore()
	if err != nil {
		restore()
		return err
	}
	defer store.Close()

	if err := e.persistMetadata(store); err != nil {
		restore()
		return err
	}

	freed := 0
	for _, entry := range removed {
		if entry.IsDir() {
			continue
		}
		retired, err := e.log.Retire(store, entry.Path)
		for _, version := range retired {
			if freeErr := e.allocator.Free(version.Block); freeErr != nil {
				e.logger.Error("freeing block of retired version", "version", version.ID, "block", version.Block, "error", freeErr)
				continue
			}
			freed++
		}
		if err != nil {
			e.rollback(store, "bitmap", e.persistBitmap, "path", entry.Path)
			return err
		}
	}
	if err := e.persistBitmap(store); err != nil {
		return err
	}

	root := removed[0]
	if _, err := e.log.AppendChange(store, root.Path, session.User(), versionlog.ActionDelete, 0, e.clock.Now()); err != nil {
		return err
	}

	session.RecordOperation()
	e.logger.Debug("deleted",
		"path", root.Path,
		"entries", len(removed),
		"blocks_freed", freed,
		"user", session.User(),
	)
	return nil
}

// Stat returns the entry at path.
func (e *Engine) Stat(path string) (namespace.Entry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.requireMounted(); err != nil {
		return namespace.Entry{}, err
	}
	return e.tree.Stat(path)
}

// List returns the children of the directory at path, sorted by name.
func (e *Engine) List(path string) ([]namespace.Entry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.requireMounted(); err != nil {
		return nil, err
	}
	return e.tree.List(path)
}

// Walk calls fn for the node at path and every descendant,
// depth-first with children in name order. The entries are collected
// before fn runs, so fn may call back into the engine.
func (e *Engine) Walk(path string, fn func(namespace.Entry) error) error {
	e.mu.RLock()
	if err := e.requireMounted(); err != nil {
		e.mu.RUnlock()
		return err
	}
	var entries []namespace.Entry
	err := e.tree.Walk(path, func(entry namespace.Entry) error {
		entries = append(entries, entry)
		return nil
	})
	e.mu.RUnlock()
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

// requireSession checks for a valid session (an admin one when admin
// is set) and a mounted container, in that order.
// rollback re-persists one region on an abort path. The caller returns
// the failure that caused the abort, so a failure here is only logged.
func (e *Engine) rollback(store *container.Store, region string, persist func(*container.Store) error, attrs ...any) {
	if err := persist(store); err != nil {
		e.logger.Error("rolling back "+region, append(attrs, "error", err)...)
	}
}

func (e *Engine) requireSession(session Session, admin bool) error {
	if err := e.authorize(session, admin); err != nil {
		return err
	}
	return e.requireMounted()
}
