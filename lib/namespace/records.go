// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package namespace

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/omnifs/lib/container"
	"github.com/bureau-foundation/omnifs/lib/fserr"
)

// Export flattens the tree into metadata records in pre-order with
// children sorted by name, skipping the root. The result always has
// exactly Capacity() records; slots past the live nodes are empty, so
// the slice can be written over the whole metadata table.
func (t *Tree) Export() ([]container.MetadataRecord, error) {
	records := make([]container.MetadataRecord, t.capacity)
	slot := 0
	var exportErr error
	t.visit(rootIndex, func(index int) {
		if index == rootIndex || exportErr != nil {
			return
		}
		n := t.nodes[index]
		record := &records[slot]
		if err := container.SetString(record.Path[:], t.pathOf(index)); err != nil {
			exportErr = fmt.Errorf("exporting node %d: %w", n.id, err)
			return
		}
		if err := container.SetString(record.Owner[:], n.owner); err != nil {
			exportErr = fmt.Errorf("exporting owner of %s: %w", t.pathOf(index), err)
			return
		}
		record.Kind = uint8(n.kind)
		record.Permission = n.permission
		record.Size = n.size
		record.ID = n.id
		record.ModifiedAt = n.modifiedAt.UnixNano()
		slot++
	})
	if exportErr != nil {
		return nil, exportErr
	}
	return records, nil
}

// Import discards the current tree and rebuilds it from metadata
// records. Empty records are skipped. Missing intermediate
// directories are created; a record that later describes such a
// directory fills in its attributes. A path described twice, or a
// file used as an intermediate directory, is corruption. On error the
// tree is left empty.
//
// The identifier counter resumes above the largest imported
// identifier.
func (t *Tree) Import(records []container.MetadataRecord) error {
	t.reset()
	if err := t.importRecords(records); err != nil {
		t.reset()
		return err
	}
	return nil
}

func (t *Tree) importRecords(records []container.MetadataRecord) error {
	described := make(map[int]bool)
	var implicit []int
	var maxID uint64

	for slot, record := range records {
		if record.Kind == container.KindEmpty {
			continue
		}
		kind := Kind(record.Kind)
		if kind != File && kind != Directory {
			return fserr.Corruption("metadata record %d has invalid kind %d", slot, record.Kind)
		}
		path := container.GetString(record.Path[:])
		components := splitPath(path)
		if len(components) == 0 {
			return fserr.Corruption("metadata record %d has empty path", slot)
		}
		owner := container.GetString(record.Owner[:])
		modifiedAt := time.Unix(0, record.ModifiedAt).UTC()

		current := rootIndex
		for i, name := range components {
			if t.nodes[current].kind != Directory {
				return fserr.Corruption("metadata record %d: %s is a file used as a directory", slot, t.pathOf(current))
			}
			last := i == len(components)-1
			child, exists := t.nodes[current].children[name]
			if !exists {
				if t.count >= t.capacity {
					return fserr.Corruption("metadata records exceed table capacity %d", t.capacity)
				}
				childKind := Directory
				if last {
					childKind = kind
				}
				child = t.insert(current, name, childKind, owner, modifiedAt)
				if !last {
					implicit = append(implicit, child)
				}
			} else if last && (described[child] || t.nodes[child].kind != kind) {
				return fserr.Corruption("metadata record %d: duplicate path %s", slot, path)
			}
			current = child
		}

		n := &t.nodes[current]
		n.owner = owner
		n.permission = record.Permission
		n.size = record.Size
		n.id = record.ID
		n.modifiedAt = modifiedAt
		described[current] = true
		maxID = max(maxID, record.ID)
	}

	t.nextID = maxID + 1
	for _, index := range implicit {
		if !described[index] {
			t.nodes[index].id = t.nextID
			t.nextID++
		}
	}
	return nil
}
