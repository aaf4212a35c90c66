// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/omnifs/cmd/omnifs/cli"
	"github.com/bureau-foundation/omnifs/lib/namespace"
)

func (a *app) mkdirCommand() *cli.Command {
	var flags containerFlags
	return &cli.Command{
		Name:    "mkdir",
		Summary: "Create a directory and any missing parents",
		Usage:   "omnifs mkdir [flags] <path>",
		Flags: func() *pflag.FlagSet {
			return flags.newFlagSet("mkdir")
		},
		Run: func(args []string) (err error) {
			if err := requireArgs(args, 1, "omnifs mkdir [flags] <path>"); err != nil {
				return err
			}
			e, session, err := flags.mountSession()
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			entry, err := e.CreateDirectory(session, "/", args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, entry.Path)
			return nil
		},
	}
}

func (a *app) putCommand() *cli.Command {
	var flags containerFlags
	return &cli.Command{
		Name:    "put",
		Summary: "Write a local file as a new version",
		Description: `Store the content of a local file (or standard input) as the new
current version of a file in the container. The file is created if it
does not exist; its parent directory must. Content larger than one
block is rejected.`,
		Usage: "omnifs put [flags] <path> [local-file]",
		Examples: []cli.Example{
			{Description: "Upload notes.txt", Command: "omnifs put -u alice /home/alice/notes.txt notes.txt"},
			{Description: "Write from a pipe", Command: "echo hello | omnifs put -u alice --password-file alice.pw /home/alice/hello"},
		},
		Flags: func() *pflag.FlagSet {
			return flags.newFlagSet("put")
		},
		Run: func(args []string) (err error) {
			if len(args) != 1 && len(args) != 2 {
				return cli.Usage("usage: omnifs put [flags] <path> [local-file]")
			}
			source := "-"
			if len(args) == 2 {
				source = args[1]
			}
			if source == "-" && flags.passwordFile == "-" {
				return cli.Usage("standard input cannot supply both the password and the content")
			}
			content, err := readLocal(source)
			if err != nil {
				return err
			}

			e, session, err := flags.mountSession()
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			result, err := e.Write(session, args[0], content)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "wrote %s: version %d, %d bytes in block %d\n",
				result.Path, result.Version, result.Size, result.Block)
			return nil
		},
	}
}

func readLocal(source string) ([]byte, error) {
	if source == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading standard input: %w", err)
		}
		return content, nil
	}
	content, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", source, err)
	}
	return content, nil
}

func (a *app) touchCommand() *cli.Command {
	var flags containerFlags
	return &cli.Command{
		Name:    "touch",
		Summary: "Create an empty file",
		Usage:   "omnifs touch [flags] <path>",
		Flags: func() *pflag.FlagSet {
			return flags.newFlagSet("touch")
		},
		Run: func(args []string) (err error) {
			if err := requireArgs(args, 1, "omnifs touch [flags] <path>"); err != nil {
				return err
			}
			if err := namespace.ValidatePath(args[0]); err != nil {
				return err
			}
			parent, name := namespace.Split(namespace.Clean(args[0]))

			e, session, err := flags.mountSession()
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			result, err := e.CreateFile(session, parent, name, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, result.Path)
			return nil
		},
	}
}

func (a *app) catCommand() *cli.Command {
	var flags containerFlags
	return &cli.Command{
		Name:    "cat",
		Summary: "Print the current content of a file",
		Usage:   "omnifs cat [flags] <path>",
		Flags: func() *pflag.FlagSet {
			return flags.newFlagSet("cat")
		},
		Run: func(args []string) (err error) {
			if err := requireArgs(args, 1, "omnifs cat [flags] <path>"); err != nil {
				return err
			}
			e, err := flags.mount()
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			content, err := e.ReadFile(args[0])
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(content)
			return err
		},
	}
}

func (a *app) readBlockCommand() *cli.Command {
	var flags containerFlags
	var length int
	return &cli.Command{
		Name:    "read-block",
		Summary: "Print the raw text of one data block",
		Description: `Print the content of a data block by index, cut at the first NUL
byte. --length limits how many bytes are read.`,
		Usage: "omnifs read-block [flags] <index>",
		Flags: func() *pflag.FlagSet {
			flagSet := flags.newFlagSet("read-block")
			flagSet.IntVarP(&length, "length", "n", 0, "bytes to read (0: the whole block)")
			return flagSet
		},
		Run: func(args []string) (err error) {
			if err := requireArgs(args, 1, "omnifs read-block [flags] <index>"); err != nil {
				return err
			}
			index, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return cli.Usage("block index %q is not a number", args[0])
			}
			if length < 0 {
				return cli.Usage("--length must not be negative")
			}
			e, err := flags.mount()
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			content, err := e.Read(uint32(index), length)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s\n", content)
			return nil
		},
	}
}

func (a *app) lsCommand() *cli.Command {
	var flags containerFlags
	return &cli.Command{
		Name:    "ls",
		Summary: "List a directory",
		Usage:   "omnifs ls [flags] [path]",
		Flags: func() *pflag.FlagSet {
			return flags.newFlagSet("ls")
		},
		Run: func(args []string) (err error) {
			if len(args) > 1 {
				return cli.Usage("usage: omnifs ls [flags] [path]")
			}
			path := "/"
			if len(args) == 1 {
				path = args[0]
			}
			e, err := flags.mount()
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			entry, err := e.Stat(path)
			if err != nil {
				return err
			}
			entries := []namespace.Entry{entry}
			if entry.IsDir() {
				if entries, err = e.List(path); err != nil {
					return err
				}
			}

			s := newStyles(a.stdout)
			t := s.newTable("mode", "owner", "size", "modified", "name")
			for _, entry := range entries {
				t.Row(modeString(entry), entry.Owner, strconv.FormatUint(entry.Size, 10),
					formatTime(entry.ModifiedAt), s.entryLabel(entry))
			}
			fmt.Fprintln(a.stdout, t.Render())
			return nil
		},
	}
}

// modeString renders an entry's kind and permission bits like ls -l.
func modeString(entry namespace.Entry) string {
	mode := os.FileMode(entry.Permission) & os.ModePerm
	if entry.IsDir() {
		mode |= os.ModeDir
	}
	return mode.String()
}

func (a *app) treeCommand() *cli.Command {
	var flags containerFlags
	return &cli.Command{
		Name:    "tree",
		Summary: "Print the directory tree",
		Usage:   "omnifs tree [flags] [path]",
		Flags: func() *pflag.FlagSet {
			return flags.newFlagSet("tree")
		},
		Run: func(args []string) (err error) {
			if len(args) > 1 {
				return cli.Usage("usage: omnifs tree [flags] [path]")
			}
			path := "/"
			if len(args) == 1 {
				path = args[0]
			}
			e, err := flags.mount()
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			root, err := e.Stat(path)
			if err != nil {
				return err
			}
			rendered, err := newStyles(a.stdout).buildTree(e, root)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, rendered.String())
			return nil
		},
	}
}

func (a *app) rmCommand() *cli.Command {
	var flags containerFlags
	var recursive bool
	return &cli.Command{
		Name:    "rm",
		Summary: "Delete a file or directory",
		Description: `Delete a file or an empty directory. With --recursive, a directory
is deleted with everything below it. Deleted files release the blocks
of all their versions, and those versions can no longer be read.`,
		Usage: "omnifs rm [flags] <path>",
		Flags: func() *pflag.FlagSet {
			flagSet := flags.newFlagSet("rm")
			flagSet.BoolVarP(&recursive, "recursive", "r", false, "delete directories and their contents")
			return flagSet
		},
		Run: func(args []string) (err error) {
			if err := requireArgs(args, 1, "omnifs rm [flags] <path>"); err != nil {
				return err
			}
			e, session, err := flags.mountSession()
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			if !recursive {
				removed, err := e.Delete(session, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "removed %s\n", removed.Path)
				return nil
			}
			removed, err := e.DeleteRecursive(session, args[0])
			if err != nil {
				return err
			}
			for _, entry := range removed {
				fmt.Fprintf(a.stdout, "removed %s\n", entry.Path)
			}
			return nil
		},
	}
}
