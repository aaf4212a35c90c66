// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package versionlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/omnifs/lib/container"
	"github.com/bureau-foundation/omnifs/lib/fserr"
)

var epoch = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, maxVersions, maxChanges uint32) (*container.Store, container.Header) {
	t.Helper()
	h := container.Header{
		Version:         container.FormatVersion,
		BlockSize:       64,
		TotalBlocks:     4,
		UserTableOffset: container.HeaderSize,
		MaxUsers:        1,
		MaxEntries:      1,
		MaxVersions:     maxVersions,
		MaxChanges:      maxChanges,
	}
	h.BitmapOffset = h.UserTableOffset + uint64(h.MaxUsers)*container.UserRecordSize
	h.MetadataOffset = h.BitmapOffset + uint64(h.TotalBlocks)
	h.DataOffset = h.MetadataOffset + uint64(h.MaxEntries)*container.MetadataRecordSize
	h.VersionOffset = h.DataOffset + uint64(h.TotalBlocks)*uint64(h.BlockSize)
	h.ChangeLogOffset = h.VersionOffset + uint64(h.MaxVersions)*container.VersionRecordSize
	h.TotalSize = h.ChangeLogOffset + uint64(h.MaxChanges)*container.ChangeRecordSize

	store := container.New(filepath.Join(t.TempDir(), "log.omni"))
	if err := store.Create(h); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, h
}

func TestSaveVersionMonotonicIDs(t *testing.T) {
	store, header := newTestStore(t, 8, 8)
	log := New(header)

	first, err := log.SaveVersion(store, "/a", 0, 5, HashContent([]byte("hello")), epoch)
	if err != nil {
		t.Fatalf("SaveVersion: %v", err)
	}
	if first.ID != uint64(epoch.UnixNano()) {
		t.Errorf("first ID = %d, want clock value %d", first.ID, epoch.UnixNano())
	}

	// Same instant: the identifier still increases.
	second, err := log.SaveVersion(store, "/a", 1, 3, HashContent([]byte("bye")), epoch)
	if err != nil {
		t.Fatalf("SaveVersion: %v", err)
	}
	if second.ID != first.ID+1 {
		t.Errorf("second ID = %d, want %d", second.ID, first.ID+1)
	}

	// Clock going backwards does not reorder identifiers.
	third, err := log.SaveVersion(store, "/b", 2, 1, Digest{}, epoch.Add(-time.Hour))
	if err != nil {
		t.Fatalf("SaveVersion: %v", err)
	}
	if third.ID <= second.ID {
		t.Errorf("third ID %d not above second %d", third.ID, second.ID)
	}
}

func TestLatestAndHistory(t *testing.T) {
	store, header := newTestStore(t, 8, 8)
	log := New(header)
	v1, _ := log.SaveVersion(store, "/a", 0, 1, Digest{}, epoch)
	log.SaveVersion(store, "/b", 1, 1, Digest{}, epoch.Add(time.Second))
	v3, _ := log.SaveVersion(store, "/a", 2, 1, Digest{}, epoch.Add(2*time.Second))

	latest, ok := log.Latest("/a")
	if !ok || latest.ID != v3.ID {
		t.Errorf("Latest(/a) = %+v, %v; want ID %d", latest, ok, v3.ID)
	}
	history := log.History("/a")
	if len(history) != 2 || history[0].ID != v1.ID || history[1].ID != v3.ID {
		t.Errorf("History(/a) = %+v", history)
	}
	if _, ok := log.Latest("/missing"); ok {
		t.Error("Latest(/missing) found a version")
	}
	if _, err := log.Find(12345); !fserr.Is(err, fserr.KindNotFound) {
		t.Errorf("Find(unknown) = %v, want not_found", err)
	}
	found, err := log.Find(v1.ID)
	if err != nil || found.Block != 0 {
		t.Errorf("Find(v1) = %+v, %v", found, err)
	}
}

func TestVersionRegionCapacity(t *testing.T) {
	store, header := newTestStore(t, 2, 8)
	log := New(header)
	for i := 0; i < 2; i++ {
		if _, err := log.SaveVersion(store, "/a", uint32(i), 1, Digest{}, epoch); err != nil {
			t.Fatalf("SaveVersion %d: %v", i, err)
		}
	}
	if log.HasVersionCapacity(1) {
		t.Error("HasVersionCapacity = true on a full region")
	}
	if _, err := log.SaveVersion(store, "/a", 3, 1, Digest{}, epoch); !fserr.Is(err, fserr.KindCapacity) {
		t.Fatalf("SaveVersion on full region = %v, want capacity", err)
	}
}

func TestLoadRebuildsMirror(t *testing.T) {
	store, header := newTestStore(t, 8, 8)
	log := New(header)
	digest := HashContent([]byte("hello"))
	saved, _ := log.SaveVersion(store, "/home/alice/a.txt", 3, 5, digest, epoch)
	log.AppendChange(store, "/home/alice/a.txt", "alice", ActionModify, saved.ID, epoch)
	log.AppendChange(store, "/", "admin", ActionFormat, 0, epoch)

	reloaded := New(header)
	if err := reloaded.Load(store); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.VersionCount() != 1 || reloaded.ChangeCount() != 2 {
		t.Fatalf("counts = %d versions, %d changes; want 1, 2", reloaded.VersionCount(), reloaded.ChangeCount())
	}
	v, err := reloaded.Find(saved.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if v.Path != saved.Path || v.Block != 3 || v.Size != 5 || v.BlockCount != 1 || v.Digest != digest {
		t.Errorf("reloaded version = %+v, want %+v", v, saved)
	}
	if !v.Timestamp.Equal(epoch) {
		t.Errorf("Timestamp = %v, want %v", v.Timestamp, epoch)
	}

	// The reloaded log continues the identifier sequence.
	next, _ := reloaded.SaveVersion(store, "/x", 0, 1, Digest{}, epoch)
	if next.ID <= saved.ID {
		t.Errorf("ID after reload = %d, want above %d", next.ID, saved.ID)
	}
}

func TestAppendChangeTrulyAppends(t *testing.T) {
	store, header := newTestStore(t, 4, 4)
	log := New(header)

	actions := []Action{ActionFormat, ActionCreateUser, ActionCreateDir, ActionModify}
	for i, action := range actions {
		if _, err := log.AppendChange(store, "/p", "admin", action, uint64(i), epoch.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("AppendChange %s: %v", action, err)
		}
	}

	changes, err := log.Changes(store)
	if err != nil {
		t.Fatalf("Changes: %v", err)
	}
	if len(changes) != len(actions) {
		t.Fatalf("read %d changes, want %d", len(changes), len(actions))
	}
	for i, change := range changes {
		if change.Action != actions[i] || change.VersionID != uint64(i) || change.Actor != "admin" {
			t.Errorf("change %d = %+v", i, change)
		}
	}

	if _, err := log.AppendChange(store, "/p", "admin", ActionModify, 0, epoch); !fserr.Is(err, fserr.KindCapacity) {
		t.Errorf("AppendChange on full log = %v, want capacity", err)
	}
}

func TestAppendChangeRejectsOversizeFields(t *testing.T) {
	store, header := newTestStore(t, 4, 4)
	log := New(header)
	_, err := log.AppendChange(store, "/p", "an-actor-name-well-beyond-31-bytes", ActionModify, 0, epoch)
	if !fserr.Is(err, fserr.KindValidation) {
		t.Fatalf("AppendChange with long actor = %v, want validation", err)
	}
	if log.ChangeCount() != 0 {
		t.Errorf("ChangeCount = %d after rejected append", log.ChangeCount())
	}
}

func TestRetire(t *testing.T) {
	store, header := newTestStore(t, 8, 8)
	log := New(header)
	log.SaveVersion(store, "/a", 0, 1, Digest{}, epoch)
	log.SaveVersion(store, "/b", 1, 1, Digest{}, epoch)
	log.SaveVersion(store, "/a", 2, 1, Digest{}, epoch)

	retired, err := log.Retire(store, "/a")
	if err != nil {
		t.Fatalf("Retire: %v", err)
	}
	if len(retired) != 2 || retired[0].Block != 0 || retired[1].Block != 2 {
		t.Errorf("retired = %+v, want blocks 0 and 2", retired)
	}
	if _, ok := log.Latest("/a"); ok {
		t.Error("Latest(/a) found a version after Retire")
	}

	// Retiring again is a no-op.
	again, err := log.Retire(store, "/a")
	if err != nil || len(again) != 0 {
		t.Errorf("second Retire = %+v, %v", again, err)
	}

	// The flag is on disk.
	scanned, err := log.Scan(store)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(scanned) != 3 {
		t.Fatalf("Scan returned %d records, want 3", len(scanned))
	}
	if !scanned[0].Retired || scanned[1].Retired || !scanned[2].Retired {
		t.Errorf("retired flags on disk = %v %v %v", scanned[0].Retired, scanned[1].Retired, scanned[2].Retired)
	}

	// A new version of the same path is live again.
	fresh, _ := log.SaveVersion(store, "/a", 3, 1, Digest{}, epoch)
	latest, ok := log.Latest("/a")
	if !ok || latest.ID != fresh.ID {
		t.Errorf("Latest after re-create = %+v, %v", latest, ok)
	}
}

func TestHashContent(t *testing.T) {
	a := HashContent([]byte("hello"))
	b := HashContent([]byte("hello"))
	c := HashContent([]byte("hellO"))
	if a != b {
		t.Error("digest is not deterministic")
	}
	if a == c {
		t.Error("different content produced the same digest")
	}
	if len(a.String()) != 64 || len(a.Short()) != 12 {
		t.Errorf("String/Short lengths = %d/%d", len(a.String()), len(a.Short()))
	}
}
