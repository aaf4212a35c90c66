// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package userdir holds the accounts persisted in a container's user
// table and the login sessions the engine checks before every
// mutating call.
//
// Passwords are stored as bcrypt hashes. The directory is an
// in-memory map mirrored slot-for-slot into the user table; the
// engine persists it after every change.
package userdir

import (
	"errors"
	"slices"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bureau-foundation/omnifs/lib/container"
	"github.com/bureau-foundation/omnifs/lib/fserr"
)

// maxPasswordLength is bcrypt's input limit.
const maxPasswordLength = 72

// User is one account.
type User struct {
	Name      string
	Admin     bool
	Active    bool
	CreatedAt time.Time

	hash []byte
}

// Role returns "admin" or "user".
func (u User) Role() string {
	if u.Admin {
		return "admin"
	}
	return "user"
}

// Directory is the set of accounts. It is not safe for concurrent
// use.
type Directory struct {
	capacity int
	cost     int
	// slots preserves user-table order; nil entries are free slots.
	slots  []*User
	byName map[string]int
}

// New returns an empty directory with room for capacity users. cost
// is the bcrypt work factor; zero selects bcrypt.DefaultCost.
func New(capacity, cost int) *Directory {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Directory{
		capacity: capacity,
		cost:     cost,
		slots:    make([]*User, capacity),
		byName:   make(map[string]int),
	}
}

// Len returns the number of accounts.
func (d *Directory) Len() int { return len(d.byName) }

// Capacity returns the size of the user table.
func (d *Directory) Capacity() int { return d.capacity }

// Add creates an account. The name must satisfy [ValidateName]; the
// password must be non-empty and at most 72 bytes.
func (d *Directory) Add(name, password string, admin bool, now time.Time) (User, error) {
	if err := ValidateName(name); err != nil {
		return User{}, err
	}
	if password == "" {
		return User{}, fserr.Validation("password for %s is empty", name)
	}
	if len(password) > maxPasswordLength {
		return User{}, fserr.Validation("password for %s exceeds %d bytes", name, maxPasswordLength)
	}
	if _, exists := d.byName[name]; exists {
		return User{}, fserr.Conflict("user %s already exists", name)
	}
	slot := slices.Index(d.slots, nil)
	if slot < 0 {
		return User{}, fserr.Capacity("user table full: %d users", d.capacity)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return User{}, fserr.Validation("hashing password for %s: %w", name, err)
	}

	user := &User{Name: name, Admin: admin, Active: true, CreatedAt: now, hash: hash}
	d.slots[slot] = user
	d.byName[name] = slot
	return *user, nil
}

// Remove deletes an account. The engine uses it to roll back an Add
// whose persistence failed.
func (d *Directory) Remove(name string) {
	if slot, ok := d.byName[name]; ok {
		d.slots[slot] = nil
		delete(d.byName, name)
	}
}

// Lookup returns the named account.
func (d *Directory) Lookup(name string) (User, bool) {
	slot, ok := d.byName[name]
	if !ok {
		return User{}, false
	}
	return *d.slots[slot], true
}

// Authenticate checks a name and password. Unknown users, inactive
// users, and wrong passwords all produce the same permission error.
func (d *Directory) Authenticate(name, password string) (User, error) {
	denied := fserr.Permission("invalid credentials for %q", name)
	slot, ok := d.byName[name]
	if !ok {
		return User{}, denied
	}
	user := d.slots[slot]
	if !user.Active {
		return User{}, denied
	}
	if err := bcrypt.CompareHashAndPassword(user.hash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return User{}, denied
		}
		return User{}, fserr.Corruption("stored hash for %s is unusable: %w", name, err)
	}
	return *user, nil
}

// List returns all accounts sorted by name.
func (d *Directory) List() []User {
	users := make([]User, 0, len(d.byName))
	for _, user := range d.slots {
		if user != nil {
			users = append(users, *user)
		}
	}
	slices.SortFunc(users, func(a, b User) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return users
}

// Records encodes the directory as the full user table.
func (d *Directory) Records() ([]container.UserRecord, error) {
	records := make([]container.UserRecord, d.capacity)
	for slot, user := range d.slots {
		if user == nil {
			continue
		}
		record := &records[slot]
		if err := container.SetString(record.Name[:], user.Name); err != nil {
			return nil, err
		}
		if err := container.SetString(record.PasswordHash[:], string(user.hash)); err != nil {
			return nil, err
		}
		if user.Admin {
			record.Admin = 1
		}
		if user.Active {
			record.Active = 1
		}
		record.CreatedAt = user.CreatedAt.UnixNano()
	}
	return records, nil
}

// Load replaces the directory with the contents of a user table.
// Slots with an empty name are free. A duplicate name is corruption.
func (d *Directory) Load(records []container.UserRecord) error {
	if len(records) > d.capacity {
		return fserr.Corruption("user table has %d slots, capacity is %d", len(records), d.capacity)
	}
	slots := make([]*User, d.capacity)
	byName := make(map[string]int)
	for slot, record := range records {
		name := container.GetString(record.Name[:])
		if name == "" {
			continue
		}
		if _, dup := byName[name]; dup {
			return fserr.Corruption("user table slot %d duplicates user %s", slot, name)
		}
		slots[slot] = &User{
			Name:      name,
			Admin:     record.Admin != 0,
			Active:    record.Active != 0,
			CreatedAt: time.Unix(0, record.CreatedAt).UTC(),
			hash:      []byte(container.GetString(record.PasswordHash[:])),
		}
		byName[name] = slot
	}
	d.slots = slots
	d.byName = byName
	return nil
}

// ValidateName checks that a user name is 1 to 31 bytes of ASCII
// letters, digits, '.', '_' or '-', not starting with '.' or '-'.
// User names double as home directory names.
func ValidateName(name string) error {
	if name == "" {
		return fserr.Validation("user name is empty")
	}
	if len(name) > container.MaxNameLength {
		return fserr.Validation("user name %q exceeds %d bytes", name, container.MaxNameLength)
	}
	if name[0] == '.' || name[0] == '-' {
		return fserr.Validation("user name %q must not start with %q", name, name[0])
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return fserr.Validation("user name %q contains %q", name, r)
		}
	}
	return nil
}
