package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kysync/kysync/internal/climain"
	"github.com/kysync/kysync/internal/logging"
	"github.com/kysync/kysync/internal/observability"
	"github.com/kysync/kysync/internal/prepare"
)

var prepareCommand = &cobra.Command{
	Use:   "prepare",
	Short: "Prepares a metadata artifact and compressed payload for a source file",
	Run:   climain.Mainify(prepareMain),
}

var prepareConfiguration struct {
	inputFilename              string
	outputMetadataFilename     string
	outputCompressedFilename   string
	blockSize                  int64
	threads                    int
	verbose                    bool
}

func init() {
	flags := prepareCommand.Flags()
	flags.SortFlags = false
	flags.StringVar(&prepareConfiguration.inputFilename, "input_filename", "", "Source file to prepare (required)")
	flags.StringVar(&prepareConfiguration.outputMetadataFilename, "output_kysync_filename", "", "Output metadata artifact path (default <input_filename>.kysync)")
	flags.StringVar(&prepareConfiguration.outputCompressedFilename, "output_compressed_filename", "", "Output compressed payload path (default <input_filename>.pzst)")
	flags.Int64Var(&prepareConfiguration.blockSize, "block_size", 1024, "Block size in bytes")
	flags.IntVar(&prepareConfiguration.threads, "threads", 32, "Number of worker goroutines")
	flags.BoolVarP(&prepareConfiguration.verbose, "verbose", "v", false, "Enable debug logging")
}

func prepareMain(command *cobra.Command, arguments []string) error {
	if prepareConfiguration.inputFilename == "" {
		return errors.New("--input_filename is required")
	}

	outputMetadata := prepareConfiguration.outputMetadataFilename
	if outputMetadata == "" {
		outputMetadata = prepareConfiguration.inputFilename + ".kysync"
	}
	outputCompressed := prepareConfiguration.outputCompressedFilename
	if outputCompressed == "" {
		outputCompressed = prepareConfiguration.inputFilename + ".pzst"
	}

	level := logging.LevelInfo
	if prepareConfiguration.verbose {
		level = logging.LevelDebug
	}
	logger := logging.NewRoot(level)

	pipeline := prepare.New(
		prepareConfiguration.inputFilename,
		outputMetadata,
		outputCompressed,
		prepareConfiguration.blockSize,
		prepareConfiguration.threads,
		logger,
	)

	observer := observability.NewObserver(pipeline.Observable, logger, os.Stdout)
	code, err := observer.Run(pipeline.Run)
	if code != 0 {
		climain.ExitWith(code, err)
	}
	return err
}
