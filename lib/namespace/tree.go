// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package namespace

import (
	"slices"
	"strings"
	"time"

	"github.com/bureau-foundation/omnifs/lib/container"
	"github.com/bureau-foundation/omnifs/lib/fserr"
)

// Kind distinguishes files from directories. The values match the
// metadata record's kind byte.
type Kind uint8

const (
	File      Kind = Kind(container.KindFile)
	Directory Kind = Kind(container.KindDirectory)
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Directory:
		return "directory"
	default:
		return "unknown"
	}
}

// Default advisory permission bits.
const (
	DefaultFilePermission      uint16 = 0o644
	DefaultDirectoryPermission uint16 = 0o755
)

const rootIndex = 0

// Entry is a snapshot of one node.
type Entry struct {
	Path       string
	Name       string
	Kind       Kind
	Owner      string
	Permission uint16
	Size       uint64
	ID         uint64
	ModifiedAt time.Time
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Kind == Directory }

type node struct {
	live       bool
	name       string
	kind       Kind
	owner      string
	permission uint16
	size       uint64
	id         uint64
	modifiedAt time.Time
	parent     int
	children   map[string]int
}

// Tree is the namespace. It is not safe for concurrent use.
type Tree struct {
	nodes    []node
	free     []int
	capacity int
	count    int
	nextID   uint64
}

// New returns an empty tree that holds at most capacity nodes besides
// the root.
func New(capacity int) *Tree {
	t := &Tree{capacity: capacity}
	t.reset()
	return t
}

func (t *Tree) reset() {
	t.nodes = []node{{
		live:       true,
		kind:       Directory,
		permission: DefaultDirectoryPermission,
		parent:     rootIndex,
		children:   make(map[string]int),
	}}
	t.free = nil
	t.count = 0
	t.nextID = 1
}

// Len returns the number of live nodes, excluding the root.
func (t *Tree) Len() int { return t.count }

// Capacity returns the maximum number of live nodes.
func (t *Tree) Capacity() int { return t.capacity }

// Resolve returns the entry at path. Every component before the last
// must be a directory.
func (t *Tree) Resolve(path string) (Entry, error) {
	index, err := t.lookup(path)
	if err != nil {
		return Entry{}, err
	}
	return t.entry(index), nil
}

// Stat is Resolve under the name callers outside the package expect.
func (t *Tree) Stat(path string) (Entry, error) {
	return t.Resolve(path)
}

// CreateDirectory creates every missing directory along subpath below
// parent and returns the final one. Existing directories are reused,
// so creating a path that already exists is not an error. A file
// anywhere along the way is a conflict. Nothing is created unless
// all of it fits.
func (t *Tree) CreateDirectory(parent, subpath, owner string, now time.Time) (Entry, error) {
	parentIndex, err := t.lookupDirectory(parent)
	if err != nil {
		return Entry{}, err
	}
	components := splitPath(subpath)
	full := joinPath(t.pathOf(parentIndex), components)
	if err := ValidatePath(full); err != nil {
		return Entry{}, err
	}
	for _, name := range components {
		if err := validateName(name); err != nil {
			return Entry{}, err
		}
	}

	// Walk the existing prefix to find how many nodes are missing.
	current := parentIndex
	missing := 0
	for i, name := range components {
		child, ok := t.nodes[current].children[name]
		if !ok {
			missing = len(components) - i
			break
		}
		if t.nodes[child].kind != Directory {
			return Entry{}, fserr.Conflict("%s is a file", joinPath(t.pathOf(current), []string{name}))
		}
		current = child
	}
	if t.count+missing > t.capacity {
		return Entry{}, fserr.Capacity("metadata table full: %d of %d entries used, %d more needed", t.count, t.capacity, missing)
	}

	for _, name := range components[len(components)-missing:] {
		current = t.insert(current, name, Directory, owner, now)
	}
	return t.entry(current), nil
}

// CreateFile creates an empty file named name in the directory at
// parent.
func (t *Tree) CreateFile(parent, name, owner string, now time.Time) (Entry, error) {
	parentIndex, err := t.lookupDirectory(parent)
	if err != nil {
		return Entry{}, err
	}
	if err := validateName(name); err != nil {
		return Entry{}, err
	}
	full := joinPath(t.pathOf(parentIndex), []string{name})
	if err := ValidatePath(full); err != nil {
		return Entry{}, err
	}
	if _, exists := t.nodes[parentIndex].children[name]; exists {
		return Entry{}, fserr.Conflict("%s already exists", full)
	}
	if t.count >= t.capacity {
		return Entry{}, fserr.Capacity("metadata table full: %d entries", t.capacity)
	}
	return t.entry(t.insert(parentIndex, name, File, owner, now)), nil
}

// Delete removes a single node and returns it. The root cannot be
// deleted, and a directory must be empty.
func (t *Tree) Delete(path string) (Entry, error) {
	index, err := t.lookup(path)
	if err != nil {
		return Entry{}, err
	}
	if index == rootIndex {
		return Entry{}, fserr.Validation("cannot delete the root directory")
	}
	if n := len(t.nodes[index].children); n > 0 {
		return Entry{}, fserr.Conflict("directory %s is not empty (%d entries)", t.pathOf(index), n)
	}
	removed := t.entry(index)
	t.remove(index)
	return removed, nil
}

// DeleteRecursive removes the node at path and every descendant. It
// returns all removed entries in pre-order so the caller can release
// whatever the files owned.
func (t *Tree) DeleteRecursive(path string) ([]Entry, error) {
	index, err := t.lookup(path)
	if err != nil {
		return nil, err
	}
	if index == rootIndex {
		return nil, fserr.Validation("cannot delete the root directory")
	}

	var removed []Entry
	var order []int
	t.visit(index, func(i int) {
		removed = append(removed, t.entry(i))
		order = append(order, i)
	})
	// Children before parents so pathOf stays valid while collecting.
	for i := len(order) - 1; i >= 0; i-- {
		t.remove(order[i])
	}
	return removed, nil
}

// List returns the immediate children of the directory at path,
// sorted by name.
func (t *Tree) List(path string) ([]Entry, error) {
	index, err := t.lookupDirectory(path)
	if err != nil {
		return nil, err
	}
	names := t.sortedChildren(index)
	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, t.entry(t.nodes[index].children[name]))
	}
	return entries, nil
}

// Walk visits the node at path and all its descendants depth-first,
// children in name order. Returning an error from fn stops the walk
// and returns that error.
func (t *Tree) Walk(path string, fn func(Entry) error) error {
	index, err := t.lookup(path)
	if err != nil {
		return err
	}
	var walkErr error
	t.visit(index, func(i int) {
		if walkErr == nil {
			walkErr = fn(t.entry(i))
		}
	})
	return walkErr
}

// SetFileInfo records a file's new size and modification time.
func (t *Tree) SetFileInfo(path string, size uint64, now time.Time) error {
	index, err := t.lookup(path)
	if err != nil {
		return err
	}
	if t.nodes[index].kind != File {
		return fserr.Conflict("%s is a directory", path)
	}
	t.nodes[index].size = size
	t.nodes[index].modifiedAt = now
	return nil
}

func (t *Tree) insert(parent int, name string, kind Kind, owner string, now time.Time) int {
	permission := DefaultFilePermission
	if kind == Directory {
		permission = DefaultDirectoryPermission
	}
	n := node{
		live:       true,
		name:       name,
		kind:       kind,
		owner:      owner,
		permission: permission,
		id:         t.nextID,
		modifiedAt: now,
		parent:     parent,
	}
	if kind == Directory {
		n.children = make(map[string]int)
	}
	t.nextID++

	var index int
	if last := len(t.free) - 1; last >= 0 {
		index = t.free[last]
		t.free = t.free[:last]
		t.nodes[index] = n
	} else {
		index = len(t.nodes)
		t.nodes = append(t.nodes, n)
	}
	t.nodes[parent].children[name] = index
	t.count++
	return index
}

func (t *Tree) remove(index int) {
	n := &t.nodes[index]
	delete(t.nodes[n.parent].children, n.name)
	*n = node{}
	t.free = append(t.free, index)
	t.count--
}

// visit calls fn for index and its descendants in pre-order, children
// sorted by name.
func (t *Tree) visit(index int, fn func(int)) {
	fn(index)
	for _, name := range t.sortedChildren(index) {
		t.visit(t.nodes[index].children[name], fn)
	}
}

func (t *Tree) sortedChildren(index int) []string {
	children := t.nodes[index].children
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (t *Tree) lookup(path string) (int, error) {
	if err := ValidatePath(path); err != nil {
		return 0, err
	}
	current := rootIndex
	for _, name := range splitPath(path) {
		if t.nodes[current].kind != Directory {
			return 0, fserr.NotFound("%s: %s is not a directory", path, t.pathOf(current))
		}
		child, ok := t.nodes[current].children[name]
		if !ok {
			return 0, fserr.NotFound("%s: no such file or directory", path)
		}
		current = child
	}
	return current, nil
}

func (t *Tree) lookupDirectory(path string) (int, error) {
	index, err := t.lookup(path)
	if err != nil {
		return 0, err
	}
	if t.nodes[index].kind != Directory {
		return 0, fserr.Conflict("%s is not a directory", path)
	}
	return index, nil
}

func (t *Tree) pathOf(index int) string {
	if index == rootIndex {
		return "/"
	}
	var names []string
	for i := index; i != rootIndex; i = t.nodes[i].parent {
		names = append(names, t.nodes[i].name)
	}
	slices.Reverse(names)
	return "/" + strings.Join(names, "/")
}

func (t *Tree) entry(index int) Entry {
	n := t.nodes[index]
	return Entry{
		Path:       t.pathOf(index),
		Name:       n.name,
		Kind:       n.kind,
		Owner:      n.owner,
		Permission: n.permission,
		Size:       n.size,
		ID:         n.id,
		ModifiedAt: n.modifiedAt,
	}
}
