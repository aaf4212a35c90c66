// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package versionlog

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is a BLAKE3 keyed hash of a version's content.
type Digest [32]byte

// String returns the lowercase hex encoding.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first 12 hex characters, for display.
func (d Digest) Short() string {
	return d.String()[:12]
}

// contentDomainKey separates content digests from any other BLAKE3
// use. The bytes are the ASCII domain name, zero-padded to 32.
var contentDomainKey = [32]byte{
	'o', 'm', 'n', 'i', 'f', 's', '.', 'v', 'e', 'r', 's', 'i', 'o', 'n', '.',
	'c', 'o', 'n', 't', 'e', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashContent returns the digest stored in a version record for the
// given content bytes (exactly the version's size, without block
// padding).
func HashContent(content []byte) Digest {
	hasher, err := blake3.NewKeyed(contentDomainKey[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic("versionlog: BLAKE3 keyed hasher: " + err.Error())
	}
	hasher.Write(content)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}
