// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the shared CBOR configuration used by OmniFS
// wherever structured data leaves the process outside the container's
// fixed binary layout: snapshot archives (lib/snapshot) and the
// Unix-socket query protocol (lib/service).
//
// The container itself never uses CBOR. Its regions are fixed-size
// little-endian records so that offsets can be computed arithmetically.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical snapshot always produces identical bytes.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
