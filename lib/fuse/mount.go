// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuse mounts the namespace of a mounted OmniFS engine as a
// read-only FUSE filesystem. Directories list their children; files
// read the bytes of their current version. Every lookup goes to the
// engine, so writes made through other interfaces appear once the
// kernel's attribute cache expires.
package fuse

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/bureau-foundation/omnifs/lib/fserr"
	"github.com/bureau-foundation/omnifs/lib/logging"
	"github.com/bureau-foundation/omnifs/lib/namespace"
)

// Filesystem is the read side of the engine the mount serves.
// *engine.Engine implements it.
type Filesystem interface {
	Stat(path string) (namespace.Entry, error)
	List(path string) ([]namespace.Entry, error)
	ReadFile(path string) ([]byte, error)
}

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	// It is created if it does not exist.
	Mountpoint string

	// Engine serves every lookup and read.
	Engine Filesystem

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, messages below
	// error level are discarded.
	Logger *slog.Logger
}

// Mount mounts the filesystem. The caller must call Unmount on the
// returned server when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if options.Logger == nil {
		options.Logger = logging.Discard()
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &directoryNode{options: &options, path: "/"}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "omnifs",
			Name:       "omnifs",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("FUSE view mounted", "mountpoint", options.Mountpoint)
	return server, nil
}

// errno maps an engine error to the closest errno.
func errno(err error) syscall.Errno {
	switch fserr.KindOf(err) {
	case fserr.KindNotFound:
		return syscall.ENOENT
	case fserr.KindConflict:
		return syscall.ENOTDIR
	case fserr.KindValidation:
		return syscall.ENAMETOOLONG
	case fserr.KindPermission:
		return syscall.EACCES
	default:
		return syscall.EIO
	}
}

// fillAttr writes the read-only attributes of entry.
func fillAttr(entry namespace.Entry, out *fuse.Attr) {
	permission := uint32(entry.Permission) &^ 0o222
	if entry.IsDir() {
		out.Mode = syscall.S_IFDIR | permission
	} else {
		out.Mode = syscall.S_IFREG | permission
		out.Size = entry.Size
		out.Blocks = (out.Size + 511) / 512
	}
	modified := entry.ModifiedAt
	out.SetTimes(nil, &modified, &modified)
}

// inode numbers are entry IDs shifted by one: the root entry has ID
// 0 and FUSE reserves inode 1 for the root.
func inode(entry namespace.Entry) uint64 {
	return entry.ID + 1
}

func stableAttr(entry namespace.Entry) gofuse.StableAttr {
	if entry.IsDir() {
		return gofuse.StableAttr{Mode: syscall.S_IFDIR, Ino: inode(entry)}
	}
	return gofuse.StableAttr{Mode: syscall.S_IFREG, Ino: inode(entry)}
}

type directoryNode struct {
	gofuse.Inode
	options *Options
	path    string
}

var _ gofuse.InodeEmbedder = (*directoryNode)(nil)
var _ gofuse.NodeLookuper = (*directoryNode)(nil)
var _ gofuse.NodeReaddirer = (*directoryNode)(nil)
var _ gofuse.NodeGetattrer = (*directoryNode)(nil)

func (d *directoryNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	entry, err := d.options.Engine.Stat(path.Join(d.path, name))
	if err != nil {
		if !fserr.Is(err, fserr.KindNotFound) {
			d.options.Logger.Error("lookup failed", "path", path.Join(d.path, name), "error", err)
		}
		return nil, errno(err)
	}
	fillAttr(entry, &out.Attr)

	var node gofuse.InodeEmbedder
	if entry.IsDir() {
		node = &directoryNode{options: d.options, path: entry.Path}
	} else {
		node = &fileNode{options: d.options, path: entry.Path}
	}
	return d.NewInode(ctx, node, stableAttr(entry)), 0
}

func (d *directoryNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	entries, err := d.options.Engine.List(d.path)
	if err != nil {
		d.options.Logger.Error("readdir failed", "path", d.path, "error", err)
		return nil, errno(err)
	}
	result := make([]fuse.DirEntry, len(entries))
	for i, entry := range entries {
		result[i] = fuse.DirEntry{Name: entry.Name, Mode: stableAttr(entry).Mode, Ino: inode(entry)}
	}
	return gofuse.NewListDirStream(result), 0
}

func (d *directoryNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	entry, err := d.options.Engine.Stat(d.path)
	if err != nil {
		return errno(err)
	}
	fillAttr(entry, &out.Attr)
	return 0
}

type fileNode struct {
	gofuse.Inode
	options *Options
	path    string
}

var _ gofuse.InodeEmbedder = (*fileNode)(nil)
var _ gofuse.NodeGetattrer = (*fileNode)(nil)
var _ gofuse.NodeOpener = (*fileNode)(nil)
var _ gofuse.NodeReader = (*fileNode)(nil)

func (f *fileNode) Getattr(ctx context.Context, handle gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	entry, err := f.options.Engine.Stat(f.path)
	if err != nil {
		return errno(err)
	}
	fillAttr(entry, &out.Attr)
	return 0
}

func (f *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC) != 0 {
		return nil, 0, syscall.EROFS
	}
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

func (f *fileNode) Read(ctx context.Context, handle gofuse.FileHandle, dest []byte, offset int64) (fuse.ReadResult, syscall.Errno) {
	content, err := f.options.Engine.ReadFile(f.path)
	if err != nil {
		f.options.Logger.Error("read failed", "path", f.path, "offset", offset, "error", err)
		return nil, errno(err)
	}
	if offset >= int64(len(content)) {
		return fuse.ReadResultData(nil), 0
	}
	end := min(offset+int64(len(dest)), int64(len(content)))
	return fuse.ReadResultData(content[offset:end]), 0
}
