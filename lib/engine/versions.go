// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"

	"github.com/bureau-foundation/omnifs/lib/fserr"
	"github.com/bureau-foundation/omnifs/lib/namespace"
	"github.com/bureau-foundation/omnifs/lib/versionlog"
)

// ListVersions reads every version record from the container, in
// append order, including retired ones.
func (e *Engine) ListVersions() ([]versionlog.Version, error) {
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
	return e.log.Scan(store)
}

// History returns the version records of path in append order. The
// path need not exist any more.
func (e *Engine) History(path string) ([]versionlog.Version, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.requireMounted(); err != nil {
		return nil, err
	}
	return e.log.History(namespace.Clean(path)), nil
}

// ReadVersion returns the content of a specific version without
// changing anything. Versions retired by a delete are not readable:
// their blocks may have been reused.
func (e *Engine) ReadVersion(id uint64) ([]byte, versionlog.Version, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.requireMounted(); err != nil {
		return nil, versionlog.Version{}, err
	}
	version, err := e.liveVersion(id)
	if err != nil {
		return nil, versionlog.Version{}, err
	}

	store, err := e.openStore()
	if err != nil {
		return nil, versionlog.Version{}, err
	}
	defer store.Close()
	content, err := readVersionContent(store, version)
	if err != nil {
		return nil, versionlog.Version{}, err
	}
	return content, version, nil
}

// Revert makes the content of version id current again for its path.
// The old bytes are copied into a newly allocated block and recorded
// as a new version, so the history between the two stays intact.
func (e *Engine) Revert(session Session, id uint64) (WriteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(session, false); err != nil {
		return WriteResult{}, fmt.Errorf("revert: %w", err)
	}
	version, err := e.liveVersion(id)
	if err != nil {
		return WriteResult{}, fmt.Errorf("revert: %w", err)
	}
	entry, err := e.tree.Stat(version.Path)
	if err != nil {
		return WriteResult{}, fmt.Errorf("revert: %w", err)
	}
	if entry.IsDir() {
		return WriteResult{}, fserr.Conflict("revert: %s is now a directory", entry.Path)
	}
	if err := e.checkWriteCapacity(max(int(version.Size), 1)); err != nil {
		return WriteResult{}, fmt.Errorf("revert: %w", err)
	}

	store, err := e.openStore()
	if err != nil {
		return WriteResult{}, fmt.Errorf("revert: %w", err)
	}
	defer store.Close()

	content, err := readVersionContent(store, version)
	if err != nil {
		return WriteResult{}, fmt.Errorf("revert: %w", err)
	}
	restore, err := e.checkpoint()
	if err != nil {
		return WriteResult{}, err
	}
	result, err := e.storeContent(store, session, entry.Path, content, versionlog.ActionRevert, restore)
	if err != nil {
		return WriteResult{}, fmt.Errorf("revert %s to version %d: %w", entry.Path, id, err)
	}
	e.logger.Info("file reverted", "path", entry.Path, "from_version", id, "new_version", result.Version, "user", session.User())
	return result, nil
}

// ChangeLog reads the audit trail from the container in append order.
func (e *Engine) ChangeLog() ([]versionlog.Change, error) {
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
	return e.log.Changes(store)
}

// RecordChange appends an audit entry for an operation composed
// outside the engine, such as a snapshot restore.
func (e *Engine) RecordChange(session Session, path string, action versionlog.Action) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(session, false); err != nil {
		return fmt.Errorf("record change: %w", err)
	}
	store, err := e.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	if _, err := e.log.AppendChange(store, namespace.Clean(path), session.User(), action, 0, e.clock.Now()); err != nil {
		return fmt.Errorf("record change: %w", err)
	}
	session.RecordOperation()
	return nil
}

func (e *Engine) liveVersion(id uint64) (versionlog.Version, error) {
	version, err := e.log.Find(id)
	if err != nil {
		return versionlog.Version{}, err
	}
	if version.Retired {
		return versionlog.Version{}, fserr.NotFound("version %d of %s was retired when the file was deleted", id, version.Path)
	}
	return version, nil
}
