// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/omnifs/cmd/omnifs/cli"
	"github.com/bureau-foundation/omnifs/lib/snapshot"
)

func (a *app) exportCommand() *cli.Command {
	var flags containerFlags
	var compressionName string
	return &cli.Command{
		Name:    "export",
		Summary: "Write a compressed snapshot of the current tree",
		Description: `Write every directory and the current content of every file to a
snapshot archive. History is not included. Use "-" to write to
standard output.`,
		Usage: "omnifs export [flags] <snapshot-file>",
		Examples: []cli.Example{
			{Description: "Export with lz4", Command: "omnifs export --compression lz4 backup.osnap"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := flags.newFlagSet("export")
			flagSet.StringVar(&compressionName, "compression", "zstd", "none, lz4 or zstd")
			return flagSet
		},
		Run: func(args []string) (err error) {
			if err := requireArgs(args, 1, "omnifs export [flags] <snapshot-file>"); err != nil {
				return err
			}
			compression, err := snapshot.ParseCompression(compressionName)
			if err != nil {
				return err
			}
			e, err := flags.mount()
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			var w io.Writer = a.stdout
			if args[0] != "-" {
				var file *os.File
				if file, err = os.Create(args[0]); err != nil {
					return fmt.Errorf("creating snapshot: %w", err)
				}
				defer func() {
					if closeErr := file.Close(); closeErr != nil && err == nil {
						err = fmt.Errorf("closing snapshot: %w", closeErr)
					}
				}()
				w = file
			}

			summary, err := snapshot.Export(e, w, compression, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stderr, "exported %d directories, %d files, %d bytes (%s)\n",
				summary.Directories, summary.Files, summary.Bytes, summary.Compression)
			return nil
		},
	}
}

func (a *app) importCommand() *cli.Command {
	var flags containerFlags
	return &cli.Command{
		Name:    "import",
		Summary: "Restore a snapshot into the container",
		Description: `Re-create the directories and files of a snapshot. Existing
directories are reused and existing files receive a new version.
Restored entries are owned by the importing user.`,
		Usage: "omnifs import [flags] <snapshot-file>",
		Flags: func() *pflag.FlagSet {
			return flags.newFlagSet("import")
		},
		Run: func(args []string) (err error) {
			if err := requireArgs(args, 1, "omnifs import [flags] <snapshot-file>"); err != nil {
				return err
			}
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening snapshot: %w", err)
			}
			defer file.Close()

			e, session, err := flags.mountSession()
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			summary, err := snapshot.Restore(e, session, file)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "restored %d directories, %d files, %d bytes\n",
				summary.Directories, summary.Files, summary.Bytes)
			return nil
		},
	}
}
