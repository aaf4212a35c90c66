// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package namespace

import (
	"strings"

	"github.com/bureau-foundation/omnifs/lib/container"
	"github.com/bureau-foundation/omnifs/lib/fserr"
)

// ValidatePath checks that path fits the on-disk path field and
// contains no NUL byte. It does not check existence.
func ValidatePath(path string) error {
	if len(path) > container.MaxPathLength {
		return fserr.Validation("path is %d bytes, maximum is %d", len(path), container.MaxPathLength)
	}
	if strings.IndexByte(path, 0) >= 0 {
		return fserr.Validation("path %q contains a NUL byte", path)
	}
	return nil
}

// Clean returns the canonical absolute form of path: a leading '/',
// no empty components, no trailing '/'.
func Clean(path string) string {
	return joinPath("/", splitPath(path))
}

// Split returns the parent directory and final component of path.
// The root has no final component.
func Split(path string) (parent, name string) {
	components := splitPath(path)
	if len(components) == 0 {
		return "/", ""
	}
	return joinPath("/", components[:len(components)-1]), components[len(components)-1]
}

// Join appends name below dir.
func Join(dir, name string) string {
	return joinPath(Clean(dir), splitPath(name))
}

func validateName(name string) error {
	switch {
	case name == "":
		return fserr.Validation("empty name")
	case name == "." || name == "..":
		return fserr.Validation("%q is not a valid name", name)
	case strings.ContainsAny(name, "/\x00"):
		return fserr.Validation("name %q contains '/' or NUL", name)
	}
	return nil
}

func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
}

func joinPath(base string, components []string) string {
	if len(components) == 0 {
		return base
	}
	if base == "/" {
		return "/" + strings.Join(components, "/")
	}
	return base + "/" + strings.Join(components, "/")
}
