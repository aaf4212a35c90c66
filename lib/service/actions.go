// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"time"

	"github.com/bureau-foundation/omnifs/lib/codec"
	"github.com/bureau-foundation/omnifs/lib/engine"
	"github.com/bureau-foundation/omnifs/lib/fserr"
	"github.com/bureau-foundation/omnifs/lib/namespace"
	"github.com/bureau-foundation/omnifs/lib/versionlog"
)

// StatusData is the result of the status action. The counters are
// zero unless State is "mounted".
type StatusData struct {
	Path        string `cbor:"path"`
	State       string `cbor:"state"`
	BlockSize   uint32 `cbor:"block_size"`
	TotalBlocks uint32 `cbor:"total_blocks"`
	FreeBlocks  uint32 `cbor:"free_blocks"`
	TotalSize   uint64 `cbor:"total_size"`
	Files       int    `cbor:"files"`
	Directories int    `cbor:"directories"`
	MaxEntries  int    `cbor:"max_entries"`
	Versions    int    `cbor:"versions"`
	MaxVersions int    `cbor:"max_versions"`
	Changes     int    `cbor:"changes"`
	MaxChanges  int    `cbor:"max_changes"`
	Users       int    `cbor:"users"`
	MaxUsers    int    `cbor:"max_users"`
}

// EntryData describes a file or directory.
type EntryData struct {
	Path       string    `cbor:"path"`
	Name       string    `cbor:"name"`
	Directory  bool      `cbor:"directory"`
	Owner      string    `cbor:"owner"`
	Permission uint16    `cbor:"permission"`
	Size       uint64    `cbor:"size"`
	ModifiedAt time.Time `cbor:"modified_at"`
}

// VersionData describes one version record.
type VersionData struct {
	ID        uint64    `cbor:"id"`
	Path      string    `cbor:"path"`
	Block     uint32    `cbor:"block"`
	Size      uint32    `cbor:"size"`
	Retired   bool      `cbor:"retired"`
	Timestamp time.Time `cbor:"timestamp"`
	Digest    string    `cbor:"digest"`
}

// ChangeData describes one change-log record.
type ChangeData struct {
	Path      string    `cbor:"path"`
	Actor     string    `cbor:"actor"`
	Action    string    `cbor:"action"`
	Timestamp time.Time `cbor:"timestamp"`
	VersionID uint64    `cbor:"version_id,omitempty"`
}

// IssueData is one verification finding.
type IssueData struct {
	Severity string `cbor:"severity"`
	Message  string `cbor:"message"`
}

// VerifyData is the result of the verify action.
type VerifyData struct {
	Healthy         bool        `cbor:"healthy"`
	FileSize        int64       `cbor:"file_size"`
	CheckedVersions int         `cbor:"checked_versions"`
	Issues          []IssueData `cbor:"issues"`
}

type pathRequest struct {
	Path string `cbor:"path"`
}

// RegisterEngine registers the read-only OmniFS actions for e.
func RegisterEngine(server *SocketServer, e *engine.Engine) {
	server.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
		status := StatusData{Path: e.Path(), State: e.State().String()}
		if e.State() != engine.Mounted {
			return status, nil
		}
		stats, err := e.Stats()
		if err != nil {
			return nil, err
		}
		status.BlockSize = stats.BlockSize
		status.TotalBlocks = stats.TotalBlocks
		status.FreeBlocks = stats.FreeBlocks
		status.TotalSize = stats.TotalSize
		status.Files = stats.Files
		status.Directories = stats.Directories
		status.MaxEntries = stats.MaxEntries
		status.Versions = stats.Versions
		status.MaxVersions = stats.MaxVersions
		status.Changes = stats.Changes
		status.MaxChanges = stats.MaxChanges
		status.Users = stats.Users
		status.MaxUsers = stats.MaxUsers
		return status, nil
	})

	server.Handle("stat", func(ctx context.Context, raw []byte) (any, error) {
		request, err := decodePath(raw, true)
		if err != nil {
			return nil, err
		}
		entry, err := e.Stat(request.Path)
		if err != nil {
			return nil, err
		}
		return entryData(entry), nil
	})

	server.Handle("list", func(ctx context.Context, raw []byte) (any, error) {
		request, err := decodePath(raw, true)
		if err != nil {
			return nil, err
		}
		entries, err := e.List(request.Path)
		if err != nil {
			return nil, err
		}
		result := make([]EntryData, len(entries))
		for i, entry := range entries {
			result[i] = entryData(entry)
		}
		return result, nil
	})

	server.Handle("versions", func(ctx context.Context, raw []byte) (any, error) {
		request, err := decodePath(raw, false)
		if err != nil {
			return nil, err
		}
		var versions []versionlog.Version
		if request.Path != "" {
			versions, err = e.History(request.Path)
		} else {
			versions, err = e.ListVersions()
		}
		if err != nil {
			return nil, err
		}
		result := make([]VersionData, len(versions))
		for i, version := range versions {
			result[i] = VersionData{
				ID:        version.ID,
				Path:      version.Path,
				Block:     version.Block,
				Size:      version.Size,
				Retired:   version.Retired,
				Timestamp: version.Timestamp.UTC(),
				Digest:    version.Digest.String(),
			}
		}
		return result, nil
	})

	server.Handle("changes", func(ctx context.Context, raw []byte) (any, error) {
		changes, err := e.ChangeLog()
		if err != nil {
			return nil, err
		}
		result := make([]ChangeData, len(changes))
		for i, change := range changes {
			result[i] = ChangeData{
				Path:      change.Path,
				Actor:     change.Actor,
				Action:    string(change.Action),
				Timestamp: change.Timestamp.UTC(),
				VersionID: change.VersionID,
			}
		}
		return result, nil
	})

	server.Handle("verify", func(ctx context.Context, raw []byte) (any, error) {
		report, err := e.Verify()
		if err != nil {
			return nil, err
		}
		result := VerifyData{
			Healthy:         report.Healthy(),
			FileSize:        report.FileSize,
			CheckedVersions: report.CheckedVersions,
			Issues:          make([]IssueData, len(report.Issues)),
		}
		for i, issue := range report.Issues {
			result.Issues[i] = IssueData{Severity: string(issue.Severity), Message: issue.Message}
		}
		return result, nil
	})
}

func decodePath(raw []byte, required bool) (pathRequest, error) {
	var request pathRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return pathRequest{}, fserr.Validation("invalid request: %v", err)
	}
	if required && request.Path == "" {
		return pathRequest{}, fserr.Validation("missing required field: path")
	}
	return request, nil
}

func entryData(entry namespace.Entry) EntryData {
	return EntryData{
		Path:       entry.Path,
		Name:       entry.Name,
		Directory:  entry.IsDir(),
		Owner:      entry.Owner,
		Permission: entry.Permission,
		Size:       entry.Size,
		ModifiedAt: entry.ModifiedAt.UTC(),
	}
}
