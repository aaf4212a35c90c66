// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bureau-foundation/omnifs/lib/clock"
	"github.com/bureau-foundation/omnifs/lib/engine"
	"github.com/bureau-foundation/omnifs/lib/userdir"
)

// Epoch is the fake-clock start time used by MountedEngine.
var Epoch = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

// Fixture is a mounted engine plus what tests usually need next to it.
type Fixture struct {
	Engine *engine.Engine
	Clock  *clock.FakeClock
	Admin  *userdir.Session
	Path   string
}

// MountedEngine formats a container of totalBlocks 4096-byte blocks
// in a temporary directory, mounts it and logs in the default admin.
// The engine is closed when the test completes.
func MountedEngine(t testing.TB, totalBlocks uint32) *Fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.omni")
	fake := clock.Fake(Epoch)
	e, err := engine.New(engine.Options{
		Path:         path,
		PasswordCost: bcrypt.MinCost,
		Clock:        fake,
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { e.Close() })

	admin, err := e.Login(engine.DefaultAdminName, engine.DefaultAdminPassword)
	if err != nil {
		t.Fatalf("bootstrap login: %v", err)
	}
	if err := e.Format(admin, totalBlocks); err != nil {
		t.Fatalf("Format: %v", err)
	}
	if err := e.Mount(); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return &Fixture{Engine: e, Clock: fake, Admin: admin, Path: path}
}

// AddUser creates a non-admin user whose password is name+"-password"
// and returns a logged-in session for it.
func (f *Fixture) AddUser(t testing.TB, name string) *userdir.Session {
	t.Helper()
	if _, err := f.Engine.CreateUser(f.Admin, name, Password(name), false); err != nil {
		t.Fatalf("CreateUser(%s): %v", name, err)
	}
	session, err := f.Engine.Login(name, Password(name))
	if err != nil {
		t.Fatalf("Login(%s): %v", name, err)
	}
	return session
}

// Password returns the password AddUser assigns to name.
func Password(name string) string {
	return name + "-password"
}

// Write stores content at path and advances the clock by a second so
// consecutive versions have distinct timestamps.
func (f *Fixture) Write(t testing.TB, session engine.Session, path, content string) engine.WriteResult {
	t.Helper()
	result, err := f.Engine.Write(session, path, []byte(content))
	if err != nil {
		t.Fatalf("Write(%s): %v", path, err)
	}
	f.Clock.Advance(time.Second)
	return result
}
