// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service exposes a mounted OmniFS engine over a Unix socket
// as a CBOR request/response API, for tooling that wants structured
// answers instead of the line protocol's text.
//
// Each connection carries exactly one request and one response. The
// request is a CBOR map with an "action" field plus action-specific
// fields; the response is the [Response] envelope:
//
//	{ok: true, data: <action result>}
//	{ok: false, error: "...", kind: "not_found"}
//
// The API is read-only. Actions registered by [RegisterEngine]:
//
//   - status: engine state and [StatusData] counters
//   - stat {path}: one [EntryData]
//   - list {path}: the children of a directory
//   - versions {path?}: version records, for one path or all
//   - changes: the change log
//   - verify: the structural verification report
//
// [SocketServer] is the transport and knows nothing about OmniFS;
// [Client] and [Call] are the client side.
package service
