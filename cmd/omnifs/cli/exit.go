// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/omnifs/lib/fserr"
)

// Process exit codes. Anything not listed exits 1.
const (
	ExitFailure    = 1
	ExitValidation = 2
	ExitNotFound   = 3
	ExitPermission = 4
	ExitCorruption = 5
)

// ExitError signals a non-zero exit without an extra error line. A
// command returns it after writing its own output, as verify does
// for an unhealthy container.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// ExitCode returns the process exit status for err: 0 for nil, the
// code of an [ExitError], or a code derived from the error's
// [fserr.Kind].
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	switch fserr.KindOf(err) {
	case fserr.KindValidation:
		return ExitValidation
	case fserr.KindNotFound:
		return ExitNotFound
	case fserr.KindPermission:
		return ExitPermission
	case fserr.KindCorruption:
		return ExitCorruption
	default:
		return ExitFailure
	}
}

// Silent reports whether err is an [ExitError], whose command has
// already reported the failure.
func Silent(err error) bool {
	var exit *ExitError
	return errors.As(err, &exit)
}

// Usage returns a validation error for bad command-line arguments,
// so that it exits with [ExitValidation].
func Usage(format string, args ...any) error {
	return fserr.Validation(format, args...)
}
