// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package container

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/omnifs/lib/fserr"
)

// Lock is an exclusive advisory flock on a container file. flock
// locks belong to the open file description, so a second Lock on the
// same file conflicts even from within the same process.
type Lock struct {
	file *os.File
}

// AcquireLock takes an exclusive, non-blocking flock on the container
// at path. When create is true a missing file is created empty (the
// caller is about to format it); otherwise a missing file is an io
// error. A container already locked by another engine is a conflict.
func AcquireLock(path string, create bool) (*Lock, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fserr.IO("opening container %s for locking: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fserr.Conflict("container %s is in use by another engine", path)
		}
		return nil, fserr.IO("locking container %s: %w", path, err)
	}
	return &Lock{file: file}, nil
}

// Release drops the lock. Releasing twice is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return fserr.IO("unlocking container: %w", unlockErr)
	}
	if closeErr != nil {
		return fserr.IO("closing container lock: %w", closeErr)
	}
	return nil
}
