// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine is the OmniFS storage engine. It ties the container
// store, block allocator, namespace tree, user directory, and version
// log together into the operations callers see: format and mount,
// file and directory management, versioned writes, revert, and
// structural verification.
//
// An Engine owns one container. The allocator, tree, users, and log
// counts live in memory between calls; the container file is the
// durable mirror and is updated on every mutating call. Each call
// opens its own file handle and closes it before returning.
//
// One Engine may be shared by many goroutines: mutating calls take an
// exclusive lock and read-only calls a shared one. Across processes,
// an advisory flock held from Format or Mount until Close keeps a
// second engine off the same container.
//
// Container lifecycle:
//
//	Unformatted --Format--> Formatted --Mount--> Mounted --Close--> Closed
//	                                                ^                  |
//	                                                +------Mount-------+
//
// Format is legal from every state. Every operation other than
// Format, Mount, Close, and Login requires Mounted.
package engine

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/omnifs/lib/allocator"
	"github.com/bureau-foundation/omnifs/lib/clock"
	"github.com/bureau-foundation/omnifs/lib/container"
	"github.com/bureau-foundation/omnifs/lib/fserr"
	"github.com/bureau-foundation/omnifs/lib/logging"
	"github.com/bureau-foundation/omnifs/lib/namespace"
	"github.com/bureau-foundation/omnifs/lib/userdir"
	"github.com/bureau-foundation/omnifs/lib/versionlog"
)

// Default bootstrap administrator credentials.
const (
	DefaultAdminName     = "admin"
	DefaultAdminPassword = "admin123"
)

// State is a container's lifecycle state as seen by one Engine.
type State int

const (
	Unformatted State = iota
	Formatted
	Mounted
	Closed
)

func (s State) String() string {
	switch s {
	case Unformatted:
		return "unformatted"
	case Formatted:
		return "formatted"
	case Mounted:
		return "mounted"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is the authorization the engine checks before every
// mutating call. *userdir.Session implements it.
type Session interface {
	LoggedIn() bool
	Admin() bool
	User() string
	RecordOperation()
}

// Options configures an Engine.
type Options struct {
	// Path is the container file. Required.
	Path string

	// BlockSize is used by Format. Zero selects DefaultBlockSize.
	// Mount always takes the block size from the container header.
	BlockSize uint32

	// MaxUsers is the user-table size used by Format. Zero selects
	// DefaultMaxUsers.
	MaxUsers uint32

	// MaxEntries is the metadata-table size used by Format. Zero
	// selects max(64, 2*totalBlocks).
	MaxEntries uint32

	// AdminName and AdminPassword are the bootstrap administrator.
	// Before any container is formatted or mounted, they are the only
	// credentials Login accepts; Format persists them as the first
	// user. Empty values select DefaultAdminName and
	// DefaultAdminPassword.
	AdminName     string
	AdminPassword string

	// PasswordCost is the bcrypt work factor. Zero selects
	// bcrypt.DefaultCost.
	PasswordCost int

	// Clock supplies every persisted timestamp. If nil, defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger receives operational messages. If nil, messages below
	// error level are discarded.
	Logger *slog.Logger
}

// Engine is the storage engine for one container.
type Engine struct {
	options Options
	clock   clock.Clock
	logger  *slog.Logger

	mu        sync.RWMutex
	state     State
	lock      *container.Lock
	header    container.Header
	allocator *allocator.Allocator
	tree      *namespace.Tree
	users     *userdir.Directory
	log       *versionlog.Log

	// generation counts the containers this engine has formatted or
	// found replaced on mount. Sessions carry the generation they
	// logged in under.
	generation uint64
}

// New returns an Engine for the container at options.Path. The
// engine starts Unformatted; call Mount to use an existing container
// or Format to create one.
func New(options Options) (*Engine, error) {
	if options.Path == "" {
		return nil, fserr.Validation("container path is required")
	}
	if options.BlockSize == 0 {
		options.BlockSize = DefaultBlockSize
	}
	if options.MaxUsers == 0 {
		options.MaxUsers = DefaultMaxUsers
	}
	if options.AdminName == "" {
		options.AdminName = DefaultAdminName
	}
	if options.AdminPassword == "" {
		options.AdminPassword = DefaultAdminPassword
	}
	if err := userdir.ValidateName(options.AdminName); err != nil {
		return nil, fmt.Errorf("admin name: %w", err)
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = logging.Discard()
	}
	return &Engine{
		options: options,
		clock:   options.Clock,
		logger:  options.Logger.With("container", options.Path),
		state:   Unformatted,
	}, nil
}

// Path returns the container file path.
func (e *Engine) Path() string {
	return e.options.Path
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Header returns the header of the formatted or mounted container.
func (e *Engine) Header() (container.Header, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state != Mounted && e.state != Formatted {
		return container.Header{}, fserr.NotMounted("container %s is %s", e.options.Path, e.state)
	}
	return e.header, nil
}

// Login authenticates a user. Before a container has been formatted
// or mounted by this engine, only the bootstrap administrator from
// Options is accepted.
func (e *Engine) Login(name, password string) (*userdir.Session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.clock.Now()
	if e.users == nil {
		nameMatch := subtle.ConstantTimeCompare([]byte(name), []byte(e.options.AdminName))
		passwordMatch := subtle.ConstantTimeCompare([]byte(password), []byte(e.options.AdminPassword))
		if nameMatch&passwordMatch != 1 {
			return nil, fserr.Permission("invalid credentials for %q", name)
		}
		session := userdir.NewSession(userdir.User{Name: name, Admin: true, Active: true}, now)
		session.Rebind(e.generation)
		return session, nil
	}

	user, err := e.users.Authenticate(name, password)
	if err != nil {
		return nil, err
	}
	session := userdir.NewSession(user, now)
	session.Rebind(e.generation)
	e.logger.Info("user logged in", "user", name, "session", session.ID())
	return session, nil
}

// Format creates a fresh container of totalBlocks data blocks,
// replacing whatever was at the path. It requires an admin session;
// without one it fails before touching the file. On success the
// engine is Formatted and holds the container lock.
func (e *Engine) Format(session Session, totalBlocks uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.authorize(session, true); err != nil {
		return fmt.Errorf("format: %w", err)
	}

	now := e.clock.Now()
	header, err := ComputeLayout(Geometry{
		BlockSize:   e.options.BlockSize,
		TotalBlocks: totalBlocks,
		MaxUsers:    e.options.MaxUsers,
		MaxEntries:  e.options.MaxEntries,
	}, now)
	if err != nil {
		return fmt.Errorf("format: %w", err)
	}

	users := userdir.New(int(header.MaxUsers), e.options.PasswordCost)
	if _, err := users.Add(e.options.AdminName, e.options.AdminPassword, true, now); err != nil {
		return fmt.Errorf("format: default administrator: %w", err)
	}

	acquired, err := e.acquireLock(true)
	if err != nil {
		return fmt.Errorf("format: %w", err)
	}

	if created, err := e.writeFreshContainer(header, users, session, now); err != nil {
		if acquired {
			e.releaseLock()
		}
		if created {
			// The old container is gone and the new one is
			// incomplete.
			e.state = Unformatted
			e.users = nil
		}
		return fmt.Errorf("format: %w", err)
	}

	e.logger.Info("container formatted",
		"total_blocks", header.TotalBlocks,
		"block_size", header.BlockSize,
		"total_size", header.TotalSize,
		"max_entries", header.MaxEntries,
		"max_versions", header.MaxVersions,
		"max_changes", header.MaxChanges,
	)
	return nil
}

// writeFreshContainer creates the container file and its initial
// regions, then installs the new in-memory state. created reports
// whether the previous file contents were destroyed.
func (e *Engine) writeFreshContainer(header container.Header, users *userdir.Directory, session Session, now time.Time) (created bool, err error) {
	store := container.New(e.options.Path)
	if err := store.Create(header); err != nil {
		return false, err
	}
	if err := store.Open(); err != nil {
		return true, err
	}
	defer store.Close()
	store.Bind(header)

	alloc := allocator.New(header.TotalBlocks)
	tree := namespace.New(int(header.MaxEntries))
	log := versionlog.New(header)

	userRecords, err := users.Records()
	if err != nil {
		return true, err
	}
	if err := container.WriteRecords(store, int64(header.UserTableOffset), userRecords); err != nil {
		return true, fmt.Errorf("writing user table: %w", err)
	}
	if err := store.WriteAt(alloc.Bytes(), int64(header.BitmapOffset)); err != nil {
		return true, fmt.Errorf("writing bitmap: %w", err)
	}
	metadata, err := tree.Export()
	if err != nil {
		return true, err
	}
	if err := container.WriteRecords(store, int64(header.MetadataOffset), metadata); err != nil {
		return true, fmt.Errorf("writing metadata table: %w", err)
	}
	if _, err := log.AppendChange(store, "/", session.User(), versionlog.ActionFormat, 0, now); err != nil {
		return true, err
	}

	e.header = header
	e.allocator = alloc
	e.tree = tree
	e.users = users
	e.log = log
	e.state = Formatted
	e.generation++
	if renewable, ok := session.(generational); ok {
		renewable.Rebind(e.generation)
	}
	session.RecordOperation()
	return true, nil
}

// Mount loads an existing container: it validates the header and
// rebuilds the allocator, namespace, user directory, and log
// positions from disk. Region offsets are taken from the header as
// written at format time. Mounting a mounted engine is a no-op.
//
// A file that is not a container fails with a corruption error (bad
// magic, short read) or an io error (missing or unreadable file); the
// engine's state is unchanged in that case.
func (e *Engine) Mount() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Mounted {
		return nil
	}

	acquired, err := e.acquireLock(false)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}
	if err := e.load(); err != nil {
		if acquired {
			e.releaseLock()
		}
		return fmt.Errorf("mount: %w", err)
	}

	e.state = Mounted
	e.logger.Info("container mounted",
		"total_blocks", e.header.TotalBlocks,
		"used_blocks", e.allocator.UsedCount(),
		"entries", e.tree.Len(),
		"versions", e.log.VersionCount(),
		"changes", e.log.ChangeCount(),
		"users", e.users.Len(),
	)
	return nil
}

func (e *Engine) load() error {
	store := container.New(e.options.Path)
	if err := store.Open(); err != nil {
		return err
	}
	defer store.Close()

	header, err := store.ReadHeader()
	if err != nil {
		return err
	}
	if err := header.Validate(); err != nil {
		return err
	}

	bitmap := make([]byte, header.TotalBlocks)
	if err := store.ReadAt(bitmap, int64(header.BitmapOffset)); err != nil {
		return fmt.Errorf("reading bitmap: %w", err)
	}
	alloc := allocator.New(header.TotalBlocks)
	if err := alloc.Load(bitmap); err != nil {
		return err
	}

	metadata, err := container.ReadRecords[container.MetadataRecord](store, int64(header.MetadataOffset), int(header.MaxEntries))
	if err != nil {
		return fmt.Errorf("reading metadata table: %w", err)
	}
	tree := namespace.New(int(header.MaxEntries))
	if err := tree.Import(metadata); err != nil {
		return err
	}

	userRecords, err := container.ReadRecords[container.UserRecord](store, int64(header.UserTableOffset), int(header.MaxUsers))
	if err != nil {
		return fmt.Errorf("reading user table: %w", err)
	}
	users := userdir.New(int(header.MaxUsers), e.options.PasswordCost)
	if err := users.Load(userRecords); err != nil {
		return err
	}

	log := versionlog.New(header)
	if err := log.Load(store); err != nil {
		return err
	}

	if e.header.FormattedAt != 0 && e.header.FormattedAt != header.FormattedAt {
		// Reformatted by another process while this engine was closed.
		e.generation++
	}
	e.header = header
	e.allocator = alloc
	e.tree = tree
	e.users = users
	e.log = log
	return nil
}

// Close releases the container lock. The in-memory state is kept so
// that a later Mount can reopen the container; until then every
// operation fails with not_mounted.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.releaseLock()
	if e.state == Formatted || e.state == Mounted {
		e.state = Closed
		e.logger.Info("container closed")
	}
	return err
}

func (e *Engine) acquireLock(create bool) (bool, error) {
	if e.lock != nil {
		return false, nil
	}
	lock, err := container.AcquireLock(e.options.Path, create)
	if err != nil {
		return false, err
	}
	e.lock = lock
	return true, nil
}

func (e *Engine) releaseLock() error {
	if e.lock == nil {
		return nil
	}
	err := e.lock.Release()
	e.lock = nil
	return err
}

// generational is implemented by the sessions Login issues.
type generational interface {
	Generation() uint64
	Rebind(generation uint64)
}

// authorize checks session like the package-level authorize and also
// refuses a session issued before the container was last formatted.
func (e *Engine) authorize(session Session, admin bool) error {
	if err := authorize(session, admin); err != nil {
		return err
	}
	if issued, ok := session.(generational); ok && issued.Generation() != e.generation {
		return fserr.Permission("session of %s predates the current container; log in again", session.User())
	}
	return nil
}

// authorize checks that session is logged in, and when admin is set,
// that it holds the admin role.
func authorize(session Session, admin bool) error {
	if session == nil || !session.LoggedIn() {
		return fserr.Permission("no active session")
	}
	if admin && !session.Admin() {
		return fserr.Permission("user %s is not an administrator", session.User())
	}
	return nil
}

func (e *Engine) requireMounted() error {
	if e.state != Mounted {
		return fserr.NotMounted("container %s is %s, not mounted", e.options.Path, e.state)
	}
	return nil
}

// openStore opens a handle on the mounted container bound to the
// in-memory header.
func (e *Engine) openStore() (*container.Store, error) {
	store := container.New(e.options.Path)
	if err := store.Open(); err != nil {
		return nil, err
	}
	store.Bind(e.header)
	return store, nil
}

func (e *Engine) persistBitmap(store *container.Store) error {
	if err := store.WriteAt(e.allocator.Bytes(), int64(e.header.BitmapOffset)); err != nil {
		return fmt.Errorf("persisting bitmap: %w", err)
	}
	return nil
}

func (e *Engine) persistMetadata(store *container.Store) error {
	records, err := e.tree.Export()
	if err != nil {
		return err
	}
	if err := container.WriteRecords(store, int64(e.header.MetadataOffset), records); err != nil {
		return fmt.Errorf("persisting metadata table: %w", err)
	}
	return nil
}

func (e *Engine) persistUsers(store *container.Store) error {
	records, err := e.users.Records()
	if err != nil {
		return err
	}
	if err := container.WriteRecords(store, int64(e.header.UserTableOffset), records); err != nil {
		return fmt.Errorf("persisting user table: %w", err)
	}
	return nil
}

// checkpoint captures the namespace so that a failed operation can
// put it back. The returned function restores the captured tree.
func (e *Engine) checkpoint() (func(), error) {
	records, err := e.tree.Export()
	if err != nil {
		return nil, err
	}
	return func() {
		if err := e.tree.Import(records); err != nil {
			e.logger.Error("restoring namespace after failed operation", "error", err)
		}
	}, nil
}
