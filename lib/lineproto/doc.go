// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lineproto serves an OmniFS engine over TCP with a
// pipe-delimited text protocol, one command per line.
//
// Every command gets exactly one reply line:
//
//	OK|<field>|<field>...
//	ERR|<kind>|<message>
//
// where kind is an [fserr.Kind] ("permission", "not_found", ...).
// Fields that carry free text (file content, paths in listings,
// verification messages) are written with strconv.Quote, so a reply
// never spans lines. Listing items pack their sub-fields with commas
// and put the quoted text last:
//
//	LIST|/home/alice/docs
//	OK|2|dir,0,"archive"|file,12,"notes.txt"
//
// Use [SplitFields] to split a reply while respecting quotes.
//
// Arguments that begin with a double quote are unquoted with
// strconv.Unquote, which lets clients send content containing
// newlines or pipes. Paths that do not start with /home/ are taken
// relative to the caller's home directory: "notes.txt" and
// "/notes.txt" both name /home/<user>/notes.txt.
//
// Commands:
//
//	LOGIN|user|password        LOGOUT        WHOAMI        QUIT
//	CREATE_USER|user|password|role             (admin; role "admin" or "user")
//	FORMAT[|blocks]                            (admin; formats, then mounts)
//	MKDIR|path
//	CREATE_FILE|path|content   WRITE|path|content
//	READ|path                  READ_BLOCK|index[|length]
//	DELETE_FILE|path           DELETE_DIR|path (recursive)
//	LIST|path                  LIST_MY_FILES   LIST_ALL_FILES (admin)
//	VERSIONS[|path]            REVERT|id       LOG
//	STATS                      VERIFY
//
// Each connection has its own session. The server closes connections
// that stay idle longer than the configured timeout.
package lineproto
