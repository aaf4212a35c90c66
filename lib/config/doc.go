// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the OmniFS
// server and CLI.
//
// Configuration is loaded from a single file specified by either the
// OMNIFS_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no discovery and no file search. Values
// not present in the file keep their [Default].
//
// Files are YAML. Files ending in .json or .jsonc may carry // and
// /* */ comments and trailing commas; they are normalized to plain
// JSON, which is valid YAML, before parsing.
//
// ${HOME} and ${VAR:-default} patterns are expanded in path fields
// after loading.
//
// Key exports:
//
//   - [Config] -- container, admin, server and log sections
//   - [Default] -- returns a Config with usable defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- rejects geometry the engine cannot format
package config
