// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// omnifs manages an OmniFS container file from the command line:
// formatting, accounts, files and directories, version history, the
// change log, verification, and snapshot export and import.
package main

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/omnifs/cmd/omnifs/cli"
	"github.com/bureau-foundation/omnifs/cmd/omnifs/commands"
)

func main() {
	err := commands.Root(os.Stdout, os.Stderr).Execute(os.Args[1:])
	if err != nil && !cli.Silent(err) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(cli.ExitCode(err))
}
