// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the omnifs CLI.
//
// The central type is [Command]: a named subcommand with optional
// nested [Command.Subcommands], a [pflag.FlagSet] factory, and a Run
// function. [Command.Execute] parses flags, routes to subcommands, and
// prints help. Unknown subcommands and flags get a "did you mean"
// suggestion computed by edit distance.
//
// [ExitCode] maps an error to the process exit status. Storage errors
// carry an [fserr.Kind], and each kind a script may want to branch on
// has its own code.
//
// [ReadPassword] obtains a password from a file or, on a terminal, an
// echo-free prompt.
package cli
