// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/bureau-foundation/omnifs/lib/fserr"
)

// ReadPassword returns the password for user. With a non-empty
// passwordFile, the file's first line is used ("-" reads standard
// input). Otherwise standard input must be a terminal, and the user
// is prompted on standard error without echo.
func ReadPassword(user, passwordFile string) (string, error) {
	if passwordFile != "" {
		var source io.Reader
		if passwordFile == "-" {
			source = os.Stdin
		} else {
			file, err := os.Open(passwordFile)
			if err != nil {
				return "", fmt.Errorf("opening password file: %w", err)
			}
			defer file.Close()
			source = file
		}
		return firstLine(source)
	}

	descriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(descriptor) {
		return "", fserr.Validation("no password for %q: pass --password-file or run on a terminal", user)
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", user)
	password, err := term.ReadPassword(descriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}

func firstLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading password file: %w", err)
		}
		return "", fserr.Validation("password file is empty")
	}
	return strings.TrimRight(scanner.Text(), "\r"), nil
}
