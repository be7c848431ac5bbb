// Package climain provides small helpers shared by every cmd/kysync
// subcommand: adapting an error-returning entry point to Cobra's Run
// signature, and printing warnings/errors to standard error consistently.
package climain

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Warning prints a warning message to standard error.
func Warning(message string) {
	fmt.Fprintln(color.Error, color.YellowString("Warning:"), message)
}

// Error prints an error message to standard error.
func Error(err error) {
	fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
}

// Fatal prints an error message to standard error and terminates the process
// with a non-zero exit code.
func Fatal(err error) {
	Error(err)
	os.Exit(1)
}

// ExitWith terminates the process with the given exit code, printing err
// first if it's non-nil. It's used by entry points that need to distinguish
// between failure categories (e.g. a verification mismatch) rather than
// always exiting with 1.
func ExitWith(code int, err error) {
	if err != nil {
		Error(err)
	}
	os.Exit(code)
}

// Mainify wraps a Cobra entry point that returns an error (so that deferred
// cleanup still runs before the process exits) into the standard
// *cobra.Command Run signature, reporting any returned error as a fatal
// error.
func Mainify(entry func(command *cobra.Command, arguments []string) error) func(*cobra.Command, []string) {
	return func(command *cobra.Command, arguments []string) {
		if err := entry(command, arguments); err != nil {
			Fatal(err)
		}
	}
}
