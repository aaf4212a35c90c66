// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/omnifs/cmd/omnifs/cli"
	"github.com/bureau-foundation/omnifs/lib/namespace"
	"github.com/bureau-foundation/omnifs/lib/versionlog"
)

func (a *app) versionsCommand() *cli.Command {
	var flags containerFlags
	return &cli.Command{
		Name:    "versions",
		Summary: "List the versions of a file, or of every file",
		Description: `List version records in append order. With a path, only that
path's versions are shown; the path need not exist any more. Retired
versions belong to deleted files and cannot be read or reverted to.`,
		Usage: "omnifs versions [flags] [path]",
		Flags: func() *pflag.FlagSet {
			return flags.newFlagSet("versions")
		},
		Run: func(args []string) (err error) {
			if len(args) > 1 {
				return cli.Usage("usage: omnifs versions [flags] [path]")
			}
			e, err := flags.mount()
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			var versions []versionlog.Version
			if len(args) == 1 {
				versions, err = e.History(args[0])
			} else {
				versions, err = e.ListVersions()
			}
			if err != nil {
				return err
			}

			s := newStyles(a.stdout)
			t := s.newTable("id", "path", "block", "size", "written", "state", "digest")
			for _, version := range versions {
				state := "live"
				if version.Retired {
					state = s.muted.Render("retired")
				}
				t.Row(strconv.FormatUint(version.ID, 10), version.Path, fmt.Sprint(version.Block),
					fmt.Sprint(version.Size), formatTime(version.Timestamp), state, version.Digest.Short())
			}
			fmt.Fprintln(a.stdout, t.Render())
			return nil
		},
	}
}

func (a *app) showVersionCommand() *cli.Command {
	var flags containerFlags
	return &cli.Command{
		Name:    "show-version",
		Summary: "Print the content of a specific version",
		Usage:   "omnifs show-version [flags] <id>",
		Flags: func() *pflag.FlagSet {
			return flags.newFlagSet("show-version")
		},
		Run: func(args []string) (err error) {
			if err := requireArgs(args, 1, "omnifs show-version [flags] <id>"); err != nil {
				return err
			}
			id, err := parseVersionID(args[0])
			if err != nil {
				return err
			}
			e, err := flags.mount()
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			content, _, err := e.ReadVersion(id)
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(content)
			return err
		},
	}
}

func (a *app) revertCommand() *cli.Command {
	var flags containerFlags
	return &cli.Command{
		Name:    "revert",
		Summary: "Make an old version current again",
		Description: `Copy the content of a version into a new version of the same file.
The versions in between are kept.`,
		Usage: "omnifs revert [flags] <id>",
		Flags: func() *pflag.FlagSet {
			return flags.newFlagSet("revert")
		},
		Run: func(args []string) (err error) {
			if err := requireArgs(args, 1, "omnifs revert [flags] <id>"); err != nil {
				return err
			}
			id, err := parseVersionID(args[0])
			if err != nil {
				return err
			}
			e, session, err := flags.mountSession()
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			result, err := e.Revert(session, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "reverted %s to version %d as version %d\n", result.Path, id, result.Version)
			return nil
		},
	}
}

func parseVersionID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, cli.Usage("version id %q is not a number", arg)
	}
	return id, nil
}

func (a *app) logCommand() *cli.Command {
	var flags containerFlags
	var path string
	var limit int
	return &cli.Command{
		Name:    "log",
		Summary: "Show the change log",
		Usage:   "omnifs log [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := flags.newFlagSet("log")
			flagSet.StringVar(&path, "path", "", "only show changes to this path")
			flagSet.IntVarP(&limit, "limit", "n", 0, "show only the most recent n changes")
			return flagSet
		},
		Run: func(args []string) (err error) {
			if err := requireArgs(args, 0, "omnifs log [flags]"); err != nil {
				return err
			}
			e, err := flags.mount()
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			changes, err := e.ChangeLog()
			if err != nil {
				return err
			}
			changes = filterChanges(changes, path, limit)

			s := newStyles(a.stdout)
			t := s.newTable("time", "actor", "action", "version", "path")
			for _, change := range changes {
				version := "-"
				if change.VersionID != 0 {
					version = strconv.FormatUint(change.VersionID, 10)
				}
				t.Row(formatTime(change.Timestamp), change.Actor, string(change.Action), version, change.Path)
			}
			fmt.Fprintln(a.stdout, t.Render())
			return nil
		},
	}
}

// filterChanges keeps the changes to path (all changes when path is
// empty), then the last limit of them when limit is positive.
func filterChanges(changes []versionlog.Change, path string, limit int) []versionlog.Change {
	if path != "" {
		path = namespace.Clean(path)
		var matched []versionlog.Change
		for _, change := range changes {
			if change.Path == path {
				matched = append(matched, change)
			}
		}
		changes = matched
	}
	if limit > 0 && len(changes) > limit {
		changes = changes[len(changes)-limit:]
	}
	return changes
}
