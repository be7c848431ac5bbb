// Package synchronize implements the pipeline that reconstructs a target
// file from a local seed file plus a prepared metadata artifact, fetching
// only the blocks that differ from the seed.
package synchronize

import (
	"os"

	"github.com/pkg/errors"

	"github.com/kysync/kysync/internal/checksum"
	"github.com/kysync/kysync/internal/filestream"
	"github.com/kysync/kysync/internal/logging"
	"github.com/kysync/kysync/internal/observability"
)

// defaultBlocksPerBatch matches the reference implementation's default
// number of block retrievals coalesced into a single data-source read.
const defaultBlocksPerBatch = 4

// Pipeline reconstructs a single output file.
type Pipeline struct {
	MetadataURI         string
	DataURI             string
	SeedURI             string
	OutputPath          string
	Threads             int
	BlocksPerBatch      int
	DisableCompression  bool

	Observable *observability.Observable
	Logger     *logging.Logger

	metrics metrics
}

// New creates a Pipeline. metadataURI, dataURI, and seedURI are all opened
// via internal/ioreader, so any of them may be a file://, http(s)://, or
// memory:// URI. seedURI may be empty, meaning every block must be fetched
// from the data source. Logger may be nil.
func New(metadataURI, dataURI, seedURI, outputPath string, threads int, blocksPerBatch int, disableCompression bool, logger *logging.Logger) *Pipeline {
	if blocksPerBatch <= 0 {
		blocksPerBatch = defaultBlocksPerBatch
	}
	return &Pipeline{
		MetadataURI:        metadataURI,
		DataURI:            dataURI,
		SeedURI:            seedURI,
		OutputPath:         outputPath,
		Threads:            threads,
		BlocksPerBatch:     blocksPerBatch,
		DisableCompression: disableCompression,
		Observable:         observability.New("sync"),
		Logger:             logger,
	}
}

// Run executes the four phases of the pipeline (read metadata, analyze the
// seed, reconstruct the output, verify it) and returns a process exit code
// (0 on success).
func (p *Pipeline) Run() (int, error) {
	if p.MetadataURI == "" {
		return 1, errors.New("metadata URI is required")
	}

	p.Observable.StartNextPhase(1)
	meta, err := readMetadata(p.MetadataURI)
	if err != nil {
		return 1, err
	}

	if p.SeedURI != "" {
		if err := p.analyzeSeed(p.SeedURI, meta, &p.metrics); err != nil {
			return 1, err
		}
	} else {
		p.Observable.StartNextPhase(0)
	}

	provider, err := filestream.New(p.OutputPath)
	if err != nil {
		return 1, err
	}
	if err := provider.Resize(meta.header.Size); err != nil {
		return 1, err
	}
	output, err := provider.Handle()
	if err != nil {
		return 1, err
	}

	if err := p.reconstructSource(output, meta, &p.metrics); err != nil {
		output.Close()
		return 1, err
	}
	if err := output.Close(); err != nil {
		return 1, errors.Wrap(err, "unable to close output file")
	}

	ok, err := p.verify(meta)
	if err != nil {
		return 1, err
	}
	if !ok {
		return 2, errors.New("verification failed: output hash does not match artifact hash")
	}

	p.logSummary(meta)

	p.Observable.StartNextPhase(0)
	return 0, nil
}

// verify re-reads the reconstructed output sequentially and compares its
// whole-file strong checksum against the one recorded in the artifact
// header.
func (p *Pipeline) verify(meta *metadata) (bool, error) {
	p.Observable.StartNextPhase(meta.header.Size)

	f, err := os.Open(p.OutputPath)
	if err != nil {
		return false, errors.Wrapf(err, "unable to open %s for verification", p.OutputPath)
	}
	defer f.Close()

	const chunkSize = 1 << 20
	buf := make([]byte, chunkSize)
	builder := checksum.NewBuilder()

	var offset int64
	for offset < meta.header.Size {
		n := chunkSize
		if remaining := meta.header.Size - offset; remaining < int64(n) {
			n = int(remaining)
		}
		if _, err := f.ReadAt(buf[:n], offset); err != nil {
			return false, errors.Wrap(err, "unable to read output file during verification")
		}
		builder.Update(buf[:n])
		offset += int64(n)
		p.Observable.AdvanceProgress(int64(n))
	}

	return builder.Digest().String() == meta.header.Hash, nil
}

func (p *Pipeline) logSummary(meta *metadata) {
	if p.Logger == nil {
		return
	}
	p.Logger.Printf(
		"sync complete: %d blocks, %d reused bytes, %d downloaded bytes, %d decompressed bytes, %d weak matches (%d false positives), %d strong matches",
		meta.blockCount,
		p.metrics.reusedBytes,
		p.metrics.downloadedBytes,
		p.metrics.decompressedBytes,
		p.metrics.weakMatches,
		p.metrics.weakFalsePositives,
		p.metrics.strongMatches,
	)
}
