package main

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kysync/kysync/internal/climain"
	"github.com/kysync/kysync/internal/logging"
	"github.com/kysync/kysync/internal/observability"
	"github.com/kysync/kysync/internal/synchronize"
)

var syncCommand = &cobra.Command{
	Use:   "sync",
	Short: "Reconstructs a target file from a seed and a metadata artifact",
	Run:   climain.Mainify(syncMain),
}

var syncConfiguration struct {
	outputFilename     string
	dataURI            string
	metadataURI        string
	seedDataURI        string
	blocksPerBatch     int
	threads            int
	useCompression     bool
	verbose            bool
}

func init() {
	flags := syncCommand.Flags()
	flags.SortFlags = false
	flags.StringVar(&syncConfiguration.outputFilename, "output_filename", "", "Target file to reconstruct (required)")
	flags.StringVar(&syncConfiguration.dataURI, "data_uri", "", "URI of the compressed payload (or raw source, with --use_compression=false) to fetch differing blocks from (required)")
	flags.StringVar(&syncConfiguration.metadataURI, "metadata_uri", "", "URI (file://, http(s)://, or memory://) of the metadata artifact (default <data_uri>.kysync)")
	flags.StringVar(&syncConfiguration.seedDataURI, "seed_data_uri", "", "URI (file://, http(s)://, or memory://) of a seed file to reuse matching blocks from (default file://<output_filename>)")
	flags.IntVar(&syncConfiguration.blocksPerBatch, "num_blocks_in_batch", 4, "Number of block retrievals to coalesce into a single data source read")
	flags.IntVar(&syncConfiguration.threads, "threads", 32, "Number of worker goroutines")
	flags.BoolVar(&syncConfiguration.useCompression, "use_compression", true, "Whether the data source serves zstd-compressed blocks")
	flags.BoolVarP(&syncConfiguration.verbose, "verbose", "v", false, "Enable debug logging")
}

func syncMain(command *cobra.Command, arguments []string) error {
	if syncConfiguration.outputFilename == "" {
		return errors.New("--output_filename is required")
	}
	if syncConfiguration.dataURI == "" {
		return errors.New("--data_uri is required")
	}

	metadataURI := syncConfiguration.metadataURI
	if metadataURI == "" {
		metadataURI = syncConfiguration.dataURI + ".kysync"
	}

	// seed_data_uri is a generic Reader URI (file://, http(s)://, memory://),
	// exactly like data_uri and metadata_uri. The one exception is the
	// defaulted case: a first sync has no prior output to seed from, so if
	// the file the default points at doesn't exist yet, seed analysis is
	// skipped entirely rather than erroring. An explicitly-supplied
	// seed_data_uri of any scheme is never skipped this way; if it can't be
	// read, that's reported as an error.
	seedURI := syncConfiguration.seedDataURI
	seedDefaulted := seedURI == ""
	if seedDefaulted {
		seedURI = "file://" + syncConfiguration.outputFilename
	}
	if seedDefaulted {
		if _, err := os.Stat(strings.TrimPrefix(seedURI, "file://")); err != nil {
			seedURI = ""
		}
	}

	level := logging.LevelInfo
	if syncConfiguration.verbose {
		level = logging.LevelDebug
	}
	logger := logging.NewRoot(level)

	pipeline := synchronize.New(
		metadataURI,
		syncConfiguration.dataURI,
		seedURI,
		syncConfiguration.outputFilename,
		syncConfiguration.threads,
		syncConfiguration.blocksPerBatch,
		!syncConfiguration.useCompression,
		logger,
	)

	observer := observability.NewObserver(pipeline.Observable, logger, os.Stdout)
	code, err := observer.Run(pipeline.Run)
	if code != 0 {
		climain.ExitWith(code, err)
	}
	return err
}
