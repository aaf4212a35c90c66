// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/omnifs/cmd/omnifs/cli"
)

func (a *app) useraddCommand() *cli.Command {
	var flags containerFlags
	var admin bool
	var newPasswordFile string
	return &cli.Command{
		Name:    "useradd",
		Summary: "Create an account and its home directory",
		Description: `Create an account. The new user's home directory /home/<name> is
created with it. Requires an administrator session.`,
		Usage: "omnifs useradd [flags] <name>",
		Examples: []cli.Example{
			{
				Description: "Add alice, reading her password from a file",
				Command:     "omnifs useradd --password-file admin.pw --new-password-file alice.pw alice",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := flags.newFlagSet("useradd")
			flagSet.BoolVar(&admin, "admin", false, "grant the admin role")
			flagSet.StringVar(&newPasswordFile, "new-password-file", "", "file holding the new user's password (default: prompt)")
			return flagSet
		},
		Run: func(args []string) (err error) {
			if err := requireArgs(args, 1, "omnifs useradd [flags] <name>"); err != nil {
				return err
			}
			name := args[0]
			e, session, err := flags.mountSession()
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			password, err := cli.ReadPassword(name, newPasswordFile)
			if err != nil {
				return err
			}
			user, err := e.CreateUser(session, name, password, admin)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "created %s (%s)\n", user.Name, user.Role())
			return nil
		},
	}
}

func (a *app) usersCommand() *cli.Command {
	var flags containerFlags
	return &cli.Command{
		Name:    "users",
		Summary: "List accounts",
		Usage:   "omnifs users [flags]",
		Flags: func() *pflag.FlagSet {
			return flags.newFlagSet("users")
		},
		Run: func(args []string) (err error) {
			if err := requireArgs(args, 0, "omnifs users [flags]"); err != nil {
				return err
			}
			e, session, err := flags.mountSession()
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			users, err := e.Users(session)
			if err != nil {
				return err
			}
			s := newStyles(a.stdout)
			t := s.newTable("name", "role", "active", "created")
			for _, user := range users {
				t.Row(user.Name, user.Role(), fmt.Sprint(user.Active), formatTime(user.CreatedAt))
			}
			fmt.Fprintln(a.stdout, t.Render())
			return nil
		},
	}
}
