// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the omnifs CLI command tree. Every command
// except remote opens the container file directly; the engine's
// container lock keeps a CLI command from running against a container
// a server already holds.
package commands

import (
	"fmt"
	"io"

	"github.com/bureau-foundation/omnifs/cmd/omnifs/cli"
	"github.com/bureau-foundation/omnifs/lib/version"
)

// Root returns the omnifs command tree. Command output goes to
// stdout; diagnostics and help go to stderr.
func Root(stdout, stderr io.Writer) *cli.Command {
	a := &app{stdout: stdout, stderr: stderr}
	return &cli.Command{
		Name:    "omnifs",
		Summary: "Manage an OmniFS container file",
		Description: `Manage an OmniFS container: a single file holding a versioned,
multi-user filesystem.

Commands read the container path and format geometry from the file
named by --config or $OMNIFS_CONFIG. Without either, built-in defaults
apply and --container names the file.`,
		Output: stderr,
		Subcommands: []*cli.Command{
			a.formatCommand(),
			a.useraddCommand(),
			a.usersCommand(),
			a.mkdirCommand(),
			a.putCommand(),
			a.touchCommand(),
			a.catCommand(),
			a.readBlockCommand(),
			a.lsCommand(),
			a.treeCommand(),
			a.rmCommand(),
			a.versionsCommand(),
			a.showVersionCommand(),
			a.revertCommand(),
			a.logCommand(),
			a.statsCommand(),
			a.verifyCommand(),
			a.exportCommand(),
			a.importCommand(),
			a.remoteCommand(),
			a.versionCommand(),
		},
	}
}

type app struct {
	stdout io.Writer
	stderr io.Writer
}

func (a *app) versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print build information",
		Run: func(args []string) error {
			fmt.Fprintf(a.stdout, "omnifs %s\n", version.Full())
			return nil
		},
	}
}
