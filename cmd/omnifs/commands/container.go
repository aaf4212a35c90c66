// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/omnifs/cmd/omnifs/cli"
	"github.com/bureau-foundation/omnifs/lib/engine"
)

func (a *app) formatCommand() *cli.Command {
	var flags containerFlags
	var blocks uint32
	return &cli.Command{
		Name:    "format",
		Summary: "Create a fresh container, destroying any existing one",
		Description: `Create a fresh container file with the configured geometry. Any
existing container at the path is replaced. Formatting requires the
administrator credentials from the configuration.`,
		Usage: "omnifs format [flags]",
		Examples: []cli.Example{
			{Description: "Format a 1 MiB container", Command: "omnifs format -c disk.omni --blocks 256 --password-file admin.pw"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := flags.newFlagSet("format")
			flagSet.Uint32Var(&blocks, "blocks", 0, "data blocks to allocate (default: container.total_blocks)")
			return flagSet
		},
		Run: func(args []string) (err error) {
			if err := requireArgs(args, 0, "omnifs format [flags]"); err != nil {
				return err
			}
			e, cfg, err := flags.newEngine()
			if err != nil {
				return err
			}
			if blocks == 0 {
				blocks = cfg.Container.TotalBlocks
			}
			session, err := flags.login(e)
			if err != nil {
				return err
			}
			if err := e.Format(session, blocks); err != nil {
				return err
			}
			defer closeEngine(e, &err)

			header, err := e.Header()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "formatted %s: %d blocks of %d bytes, %d bytes total\n",
				e.Path(), header.TotalBlocks, header.BlockSize, header.TotalSize)
			return nil
		},
	}
}

func (a *app) statsCommand() *cli.Command {
	var flags containerFlags
	return &cli.Command{
		Name:    "stats",
		Summary: "Show usage counters",
		Usage:   "omnifs stats [flags]",
		Flags: func() *pflag.FlagSet {
			return flags.newFlagSet("stats")
		},
		Run: func(args []string) (err error) {
			if err := requireArgs(args, 0, "omnifs stats [flags]"); err != nil {
				return err
			}
			e, err := flags.mount()
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			stats, err := e.Stats()
			if err != nil {
				return err
			}
			s := newStyles(a.stdout)
			rows := statsRows(e.Path(), stats)
			t := s.newTable("counter", "used", "capacity")
			for _, row := range rows {
				t.Row(row...)
			}
			fmt.Fprintln(a.stdout, t.Render())
			return nil
		},
	}
}

func statsRows(path string, stats engine.Stats) [][]string {
	itoa := strconv.Itoa
	return [][]string{
		{"container", path, strconv.FormatUint(stats.TotalSize, 10) + " bytes"},
		{"blocks", fmt.Sprint(stats.UsedBlocks), fmt.Sprint(stats.TotalBlocks)},
		{"block size", fmt.Sprint(stats.BlockSize), "-"},
		{"free blocks", fmt.Sprint(stats.FreeBlocks), "-"},
		{"files", itoa(stats.Files), "-"},
		{"directories", itoa(stats.Directories), "-"},
		{"entries", itoa(stats.Files + stats.Directories), itoa(stats.MaxEntries)},
		{"versions", itoa(stats.Versions), itoa(stats.MaxVersions)},
		{"changes", itoa(stats.Changes), itoa(stats.MaxChanges)},
		{"users", itoa(stats.Users), itoa(stats.MaxUsers)},
	}
}

func (a *app) verifyCommand() *cli.Command {
	var flags containerFlags
	return &cli.Command{
		Name:    "verify",
		Summary: "Check the container's structure",
		Description: `Re-read the container and check it against its header: region
layout, file size, every live version's block and content digest, file
sizes and leaked blocks. Exits 1 when any error-severity issue is
found.`,
		Usage: "omnifs verify [flags]",
		Flags: func() *pflag.FlagSet {
			return flags.newFlagSet("verify")
		},
		Run: func(args []string) (err error) {
			if err := requireArgs(args, 0, "omnifs verify [flags]"); err != nil {
				return err
			}
			e, err := flags.mount()
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			report, err := e.Verify()
			if err != nil {
				return err
			}
			s := newStyles(a.stdout)
			fmt.Fprintf(a.stdout, "%s: %d bytes, %d live versions checked\n",
				e.Path(), report.FileSize, report.CheckedVersions)
			for _, issue := range report.Issues {
				label := s.warning.Render(string(issue.Severity))
				if issue.Severity == engine.SeverityError {
					label = s.errorText.Render(string(issue.Severity))
				}
				fmt.Fprintf(a.stdout, "  %s: %s\n", label, issue.Message)
			}
			if !report.Healthy() {
				fmt.Fprintln(a.stdout, s.errorText.Render("unhealthy"))
				return &cli.ExitError{Code: cli.ExitFailure}
			}
			fmt.Fprintln(a.stdout, s.ok.Render("healthy"))
			return nil
		},
	}
}
