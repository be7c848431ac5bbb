// Command kysync prepares and synchronizes files using block-level delta
// transfer: a prepared metadata artifact lets a later sync reuse whatever
// blocks of a local seed file already match the target, fetching only the
// rest from a local file, an HTTP endpoint, or an in-memory buffer.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCommand = &cobra.Command{
	Use:   "kysync",
	Short: "kysync performs block-level delta file synchronization",
}

func init() {
	cobra.EnableCommandSorting = false
	rootCommand.AddCommand(prepareCommand, syncCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
