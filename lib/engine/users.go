// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"

	"github.com/bureau-foundation/omnifs/lib/fserr"
	"github.com/bureau-foundation/omnifs/lib/userdir"
	"github.com/bureau-foundation/omnifs/lib/versionlog"
)

// HomeRoot is the directory holding per-user home directories.
const HomeRoot = "/home"

// HomeDirectory returns the home directory path of a user.
func HomeDirectory(user string) string {
	return HomeRoot + "/" + user
}

// CreateUser adds an account and its home directory. It requires an
// admin session.
func (e *Engine) CreateUser(session Session, name, password string, admin bool) (userdir.User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(session, true); err != nil {
		return userdir.User{}, fmt.Errorf("create user: %w", err)
	}
	if !e.log.HasChangeCapacity(1) {
		return userdir.User{}, fserr.Capacity("create user: change log full")
	}

	now := e.clock.Now()
	user, err := e.users.Add(name, password, admin, now)
	if err != nil {
		return userdir.User{}, fmt.Errorf("create user: %w", err)
	}

	restore, err := e.checkpoint()
	if err != nil {
		e.users.Remove(name)
		return userdir.User{}, err
	}
	abort := func(cause error) (userdir.User, error) {
		e.users.Remove(name)
		restore()
		return userdir.User{}, fmt.Errorf("create user %s: %w", name, cause)
	}

	home, err := e.tree.CreateDirectory("/", HomeDirectory(name), name, now)
	if err != nil {
		return abort(err)
	}

	store, err := e.openStore()
	if err != nil {
		return abort(err)
	}
	defer store.Close()

	if err := e.persistUsers(store); err != nil {
		return abort(err)
	}
	if err := e.persistMetadata(store); err != nil {
		e.users.Remove(name)
		restore()
		e.rollback(store, "user table", e.persistUsers, "user", name)
		return userdir.User{}, fmt.Errorf("create user %s: %w", name, err)
	}
	if _, err := e.log.AppendChange(store, home.Path, session.User(), versionlog.ActionCreateUser, 0, now); err != nil {
		return user, fmt.Errorf("create user %s: %w", name, err)
	}

	session.RecordOperation()
	e.logger.Info("user created", "user", name, "role", user.Role(), "home", home.Path, "by", session.User())
	return user, nil
}

// Users lists every account. It requires an admin session.
func (e *Engine) Users(session Session) ([]userdir.User, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.requireSession(session, true); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return e.users.List(), nil
}
