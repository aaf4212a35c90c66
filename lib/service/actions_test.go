// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/omnifs/lib/fserr"
	"github.com/bureau-foundation/omnifs/lib/testutil"
)

func engineServer(t *testing.T) (*testutil.Fixture, *Client) {
	t.Helper()
	fixture := testutil.MountedEngine(t, 16)
	alice := fixture.AddUser(t, "alice")
	fixture.Write(t, alice, "/home/alice/a.txt", "one")
	fixture.Write(t, alice, "/home/alice/a.txt", "two")
	fixture.Write(t, alice, "/home/alice/b.txt", "bee")

	socketPath := filepath.Join(testutil.SocketDir(t), "omnifs.sock")
	server := NewSocketServer(socketPath, nil)
	RegisterEngine(server, fixture.Engine)
	serve(t, server, socketPath)
	return fixture, NewClient(socketPath)
}

func TestStatusAction(t *testing.T) {
	_, client := engineServer(t)
	var status StatusData
	if err := client.Call(context.Background(), "status", nil, &status); err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != "mounted" {
		t.Errorf("state = %s", status.State)
	}
	if status.TotalBlocks != 16 || status.FreeBlocks != 13 {
		t.Errorf("blocks = %d total, %d free", status.TotalBlocks, status.FreeBlocks)
	}
	if status.Files != 2 || status.Versions != 3 || status.Users != 2 {
		t.Errorf("status = %+v", status)
	}
}

func TestStatAndListActions(t *testing.T) {
	_, client := engineServer(t)
	ctx := context.Background()

	var entry EntryData
	if err := client.Call(ctx, "stat", map[string]any{"path": "/home/alice/a.txt"}, &entry); err != nil {
		t.Fatalf("stat: %v", err)
	}
	if entry.Directory || entry.Size != 3 || entry.Owner != "alice" {
		t.Errorf("stat = %+v", entry)
	}

	var entries []EntryData
	if err := client.Call(ctx, "list", map[string]any{"path": "/home/alice"}, &entries); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "a.txt" || entries[1].Name != "b.txt" {
		t.Errorf("list = %+v", entries)
	}

	err := client.Call(ctx, "stat", map[string]any{"path": "/nope"}, &entry)
	if !fserr.Is(err, fserr.KindNotFound) {
		t.Errorf("stat /nope = %v, want not_found", err)
	}
	err = client.Call(ctx, "list", nil, &entries)
	if !fserr.Is(err, fserr.KindValidation) {
		t.Errorf("list without path = %v, want validation", err)
	}
}

func TestVersionsChangesVerifyActions(t *testing.T) {
	_, client := engineServer(t)
	ctx := context.Background()

	var all []VersionData
	if err := client.Call(ctx, "versions", nil, &all); err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("versions = %d, want 3", len(all))
	}
	var history []VersionData
	if err := client.Call(ctx, "versions", map[string]any{"path": "/home/alice/a.txt"}, &history); err != nil {
		t.Fatalf("versions a.txt: %v", err)
	}
	if len(history) != 2 || history[0].ID >= history[1].ID || len(history[0].Digest) != 64 {
		t.Errorf("history = %+v", history)
	}

	var changes []ChangeData
	if err := client.Call(ctx, "changes", nil, &changes); err != nil {
		t.Fatalf("changes: %v", err)
	}
	// FORMAT, CREATE_USER, CREATE_FILE, MODIFY, CREATE_FILE
	if len(changes) != 5 || changes[0].Action != "FORMAT" || changes[3].Action != "MODIFY" {
		t.Errorf("changes = %+v", changes)
	}

	var report VerifyData
	if err := client.Call(ctx, "verify", nil, &report); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.Healthy || report.CheckedVersions != 3 || len(report.Issues) != 0 {
		t.Errorf("verify = %+v", report)
	}
}
