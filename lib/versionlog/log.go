// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package versionlog

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/omnifs/lib/container"
	"github.com/bureau-foundation/omnifs/lib/fserr"
)

// Action tags recorded in the change log.
type Action string

const (
	ActionFormat     Action = "FORMAT"
	ActionCreateUser Action = "CREATE_USER"
	ActionCreateDir  Action = "CREATE_DIR"
	ActionCreateFile Action = "CREATE_FILE"
	ActionModify     Action = "MODIFY"
	ActionDelete     Action = "DELETE"
	ActionRevert     Action = "REVERT"
	ActionRestore    Action = "RESTORE"
)

// Version is one decoded version record.
type Version struct {
	ID         uint64
	Path       string
	Block      uint32
	BlockCount uint32
	Size       uint32
	Retired    bool
	Timestamp  time.Time
	Digest     Digest
}

// Change is one decoded change-log record.
type Change struct {
	Path      string
	Actor     string
	Action    Action
	Timestamp time.Time
	VersionID uint64
}

// Log tracks the append positions of the version region and change
// log of one container. It is not safe for concurrent use.
type Log struct {
	versionOffset int64
	maxVersions   int
	changeOffset  int64
	maxChanges    int

	// versions mirrors the version region in slot order.
	versions    []Version
	changeCount int
	lastID      uint64
}

// New returns an empty Log for the regions described by header. Call
// [Log.Load] to pick up records already on disk.
func New(header container.Header) *Log {
	return &Log{
		versionOffset: int64(header.VersionOffset),
		maxVersions:   int(header.MaxVersions),
		changeOffset:  int64(header.ChangeLogOffset),
		maxChanges:    int(header.MaxChanges),
	}
}

// Load scans both regions to rebuild the version mirror, the change
// count, and the last version identifier.
func (l *Log) Load(store *container.Store) error {
	versions, err := l.scanVersions(store)
	if err != nil {
		return err
	}
	changes, err := l.scanChanges(store)
	if err != nil {
		return err
	}

	l.versions = versions
	l.changeCount = len(changes)
	l.lastID = 0
	for _, v := range versions {
		l.lastID = max(l.lastID, v.ID)
	}
	return nil
}

// VersionCount returns the number of appended version records.
func (l *Log) VersionCount() int { return len(l.versions) }

// ChangeCount returns the number of appended change records.
func (l *Log) ChangeCount() int { return l.changeCount }

// MaxVersions returns the capacity of the version region.
func (l *Log) MaxVersions() int { return l.maxVersions }

// MaxChanges returns the capacity of the change log.
func (l *Log) MaxChanges() int { return l.maxChanges }

// HasVersionCapacity reports whether n more version records fit.
func (l *Log) HasVersionCapacity(n int) bool {
	return len(l.versions)+n <= l.maxVersions
}

// HasChangeCapacity reports whether n more change records fit.
func (l *Log) HasChangeCapacity(n int) bool {
	return l.changeCount+n <= l.maxChanges
}

// SaveVersion appends a version record for path pointing at block and
// returns it. A full version region is a capacity error.
func (l *Log) SaveVersion(store *container.Store, path string, block, size uint32, digest Digest, now time.Time) (Version, error) {
	if !l.HasVersionCapacity(1) {
		return Version{}, fserr.Capacity("version region full: %d records", l.maxVersions)
	}

	v := Version{
		ID:         max(uint64(now.UnixNano()), l.lastID+1),
		Path:       path,
		Block:      block,
		BlockCount: 1,
		Size:       size,
		Timestamp:  now,
		Digest:     digest,
	}
	record, err := encodeVersion(v)
	if err != nil {
		return Version{}, err
	}
	slot := len(l.versions)
	if err := container.WriteRecord(store, l.versionOffset, slot, record); err != nil {
		return Version{}, fmt.Errorf("appending version record %d: %w", slot, err)
	}

	l.versions = append(l.versions, v)
	l.lastID = v.ID
	return v, nil
}

// Find returns the version with the given identifier.
func (l *Log) Find(id uint64) (Version, error) {
	for _, v := range l.versions {
		if v.ID == id {
			return v, nil
		}
	}
	return Version{}, fserr.NotFound("version %d not found", id)
}

// Latest returns the highest non-retired version of path.
func (l *Log) Latest(path string) (Version, bool) {
	var latest Version
	found := false
	for _, v := range l.versions {
		if v.Path == path && !v.Retired && (!found || v.ID > latest.ID) {
			latest = v
			found = true
		}
	}
	return latest, found
}

// History returns every version record of path, retired or not, in
// append order.
func (l *Log) History(path string) []Version {
	var history []Version
	for _, v := range l.versions {
		if v.Path == path {
			history = append(history, v)
		}
	}
	return history
}

// Versions returns a copy of the in-memory mirror in append order.
func (l *Log) Versions() []Version {
	return append([]Version(nil), l.versions...)
}

// Retire marks every live version of path as retired, rewriting each
// record in place, and returns the records it retired. Versions that
// were already retired are left alone.
func (l *Log) Retire(store *container.Store, path string) ([]Version, error) {
	var retired []Version
	for slot := range l.versions {
		v := l.versions[slot]
		if v.Path != path || v.Retired {
			continue
		}
		v.Retired = true
		record, err := encodeVersion(v)
		if err != nil {
			return retired, err
		}
		if err := container.WriteRecord(store, l.versionOffset, slot, record); err != nil {
			return retired, fmt.Errorf("retiring version %d: %w", v.ID, err)
		}
		l.versions[slot] = v
		retired = append(retired, v)
	}
	return retired, nil
}

// AppendChange appends one audit record. A full change log is a
// capacity error.
func (l *Log) AppendChange(store *container.Store, path, actor string, action Action, versionID uint64, now time.Time) (Change, error) {
	if !l.HasChangeCapacity(1) {
		return Change{}, fserr.Capacity("change log full: %d records", l.maxChanges)
	}

	change := Change{
		Path:      path,
		Actor:     actor,
		Action:    action,
		Timestamp: now,
		VersionID: versionID,
	}
	record, err := encodeChange(change)
	if err != nil {
		return Change{}, err
	}
	if err := container.WriteRecord(store, l.changeOffset, l.changeCount, record); err != nil {
		return Change{}, fmt.Errorf("appending change record %d: %w", l.changeCount, err)
	}
	l.changeCount++
	return change, nil
}

// Changes reads the change log from disk in append order.
func (l *Log) Changes(store *container.Store) ([]Change, error) {
	return l.scanChanges(store)
}

// Scan reads the version region from disk in append order, stopping
// at the first empty record.
func (l *Log) Scan(store *container.Store) ([]Version, error) {
	return l.scanVersions(store)
}

func (l *Log) scanVersions(store *container.Store) ([]Version, error) {
	records, err := container.ReadRecords[container.VersionRecord](store, l.versionOffset, l.maxVersions)
	if err != nil {
		return nil, fmt.Errorf("reading version region: %w", err)
	}
	var versions []Version
	for _, record := range records {
		if record.ID == 0 {
			break
		}
		versions = append(versions, decodeVersion(record))
	}
	return versions, nil
}

func (l *Log) scanChanges(store *container.Store) ([]Change, error) {
	records, err := container.ReadRecords[container.ChangeRecord](store, l.changeOffset, l.maxChanges)
	if err != nil {
		return nil, fmt.Errorf("reading change log: %w", err)
	}
	var changes []Change
	for _, record := range records {
		if record.Timestamp == 0 {
			break
		}
		changes = append(changes, decodeChange(record))
	}
	return changes, nil
}

func encodeVersion(v Version) (container.VersionRecord, error) {
	var record container.VersionRecord
	if err := container.SetString(record.Path[:], v.Path); err != nil {
		return record, fmt.Errorf("version path: %w", err)
	}
	record.ID = v.ID
	record.StartBlock = v.Block
	record.BlockCount = v.BlockCount
	record.Size = v.Size
	if v.Retired {
		record.Flags |= container.VersionRetired
	}
	record.Timestamp = v.Timestamp.UnixNano()
	record.Digest = v.Digest
	return record, nil
}

func decodeVersion(record container.VersionRecord) Version {
	return Version{
		ID:         record.ID,
		Path:       container.GetString(record.Path[:]),
		Block:      record.StartBlock,
		BlockCount: record.BlockCount,
		Size:       record.Size,
		Retired:    record.Flags&container.VersionRetired != 0,
		Timestamp:  time.Unix(0, record.Timestamp).UTC(),
		Digest:     record.Digest,
	}
}

func encodeChange(c Change) (container.ChangeRecord, error) {
	var record container.ChangeRecord
	if err := container.SetString(record.Path[:], c.Path); err != nil {
		return record, fmt.Errorf("change path: %w", err)
	}
	if err := container.SetString(record.Actor[:], c.Actor); err != nil {
		return record, fmt.Errorf("change actor: %w", err)
	}
	if err := container.SetString(record.Action[:], string(c.Action)); err != nil {
		return record, fmt.Errorf("change action: %w", err)
	}
	// A zero timestamp marks an empty slot.
	record.Timestamp = max(c.Timestamp.UnixNano(), 1)
	record.VersionID = c.VersionID
	return record, nil
}

func decodeChange(record container.ChangeRecord) Change {
	return Change{
		Path:      container.GetString(record.Path[:]),
		Actor:     container.GetString(record.Actor[:]),
		Action:    Action(container.GetString(record.Action[:])),
		Timestamp: time.Unix(0, record.Timestamp).UTC(),
		VersionID: record.VersionID,
	}
}
