// Package prepare implements the pipeline that turns a source file into a
// metadata artifact and a compressed payload file.
package prepare

import (
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/kysync/kysync/internal/artifact"
	"github.com/kysync/kysync/internal/checksum"
	"github.com/kysync/kysync/internal/codec"
	"github.com/kysync/kysync/internal/filestream"
	"github.com/kysync/kysync/internal/logging"
	"github.com/kysync/kysync/internal/observability"
	"github.com/kysync/kysync/internal/parallel"
)

// compressionLevel is fixed, matching the reference implementation's choice
// to not expose compression level as a tunable.
const compressionLevel = 1

// Pipeline prepares a single input file.
type Pipeline struct {
	InputPath             string
	OutputMetadataPath    string
	OutputCompressedPath  string
	BlockSize             int64
	Threads               int

	Observable *observability.Observable
	Logger     *logging.Logger

	maxCompressedBlockSize int64
	weak                   []uint32
	strong                 []checksum.Strong
	csize                  []int64
	fileHash               checksum.Strong
}

// New creates a Pipeline. Logger may be nil.
func New(inputPath, outputMetadataPath, outputCompressedPath string, blockSize int64, threads int, logger *logging.Logger) *Pipeline {
	return &Pipeline{
		InputPath:            inputPath,
		OutputMetadataPath:   outputMetadataPath,
		OutputCompressedPath: outputCompressedPath,
		BlockSize:            blockSize,
		Threads:              threads,
		Observable:           observability.New("prepare"),
		Logger:               logger,
	}
}

// Run executes all three phases of the pipeline and returns a process exit
// code (0 on success).
func (p *Pipeline) Run() (int, error) {
	info, err := os.Stat(p.InputPath)
	if err != nil {
		return 1, errors.Wrapf(err, "unable to stat %s", p.InputPath)
	}
	dataSize := info.Size()
	p.Observable.StartNextPhase(dataSize)

	blockCount := (dataSize + p.BlockSize - 1) / p.BlockSize
	p.weak = make([]uint32, blockCount)
	p.strong = make([]checksum.Strong, blockCount)
	p.csize = make([]int64, blockCount)
	p.maxCompressedBlockSize = int64(codec.MaxCompressedSize(int(p.BlockSize)))

	compressedProvider, err := filestream.New(p.OutputCompressedPath)
	if err != nil {
		return 1, err
	}
	if err := compressedProvider.Resize(blockCount * p.maxCompressedBlockSize); err != nil {
		return 1, err
	}

	if err := p.encodeBlocks(compressedProvider, dataSize); err != nil {
		return 1, err
	}

	compressedBytes, err := p.compactAndHash(compressedProvider, dataSize)
	if err != nil {
		return 1, err
	}

	if err := p.writeMetadata(dataSize, compressedBytes); err != nil {
		return 1, err
	}

	p.Observable.StartNextPhase(0)
	return 0, nil
}

// encodeBlocks is phase 1: in parallel, for every block, compute its weak
// and strong checksum over the full zero-padded block buffer, compress only
// the actual (unpadded) bytes, and write the compressed frame at a fixed
// stride of maxCompressedBlockSize so that concurrently-running workers
// never write overlapping regions of the output file.
func (p *Pipeline) encodeBlocks(compressedProvider *filestream.Provider, dataSize int64) error {
	input, err := os.Open(p.InputPath)
	if err != nil {
		return errors.Wrapf(err, "unable to open %s", p.InputPath)
	}
	defer input.Close()

	var mu sync.Mutex
	var workerErr error

	parallel.Parallelize(dataSize, p.BlockSize, 0, p.Threads, func(id int, beg, end int64) {
		if err := p.encodeRange(input, compressedProvider, beg, end); err != nil {
			mu.Lock()
			if workerErr == nil {
				workerErr = err
			}
			mu.Unlock()
		}
	})

	return workerErr
}

func (p *Pipeline) encodeRange(input *os.File, compressedProvider *filestream.Provider, beg, end int64) error {
	output, err := compressedProvider.Handle()
	if err != nil {
		return err
	}
	defer output.Close()

	buf := make([]byte, p.BlockSize)
	blockIndex := beg / p.BlockSize

	for offset := beg; offset < end; offset += p.BlockSize {
		sizeToRead := p.BlockSize
		if remaining := dataRemaining(offset, p.BlockSize, end); remaining < sizeToRead {
			sizeToRead = remaining
		}

		for i := sizeToRead; i < int64(len(buf)); i++ {
			buf[i] = 0
		}
		if _, err := input.ReadAt(buf[:sizeToRead], offset); err != nil {
			return errors.Wrapf(err, "unable to read %s at offset %d", p.InputPath, offset)
		}

		p.weak[blockIndex] = checksum.Weak(buf, int(p.BlockSize))
		p.strong[blockIndex] = checksum.Compute(buf, int(p.BlockSize))

		compressed := codec.Compress(buf[:sizeToRead], compressionLevel)
		if int64(len(compressed)) > p.maxCompressedBlockSize {
			return errors.Errorf(
				"compressed block %d size %d exceeds stride %d", blockIndex, len(compressed), p.maxCompressedBlockSize,
			)
		}
		if _, err := output.WriteAt(compressed, blockIndex*p.maxCompressedBlockSize); err != nil {
			return errors.Wrap(err, "unable to write compressed block")
		}
		p.csize[blockIndex] = int64(len(compressed))

		p.Observable.AdvanceProgress(sizeToRead)

		blockIndex++
	}

	return nil
}

// dataRemaining returns how many bytes of the block starting at offset fall
// within [0, end) of the region being encoded by this worker, capped at
// blockSize.
func dataRemaining(offset, blockSize, end int64) int64 {
	remaining := end - offset
	if remaining > blockSize {
		return blockSize
	}
	return remaining
}

// compactAndHash is phase 2: the compressed frames, which phase 1 wrote at a
// fixed (wasteful, worst-case) stride, are re-emitted back to back at their
// true prefix-sum offsets, while the whole-file strong-checksum hash is
// computed by streaming the original input in block-sized chunks. Both are
// driven by the same loop so that the hash and the compaction progress
// together; the reference implementation leaves open whether that
// concurrency has to be this tight, only that the progress budget charged is
// dataSize + 2*sum(csize).
func (p *Pipeline) compactAndHash(compressedProvider *filestream.Provider, dataSize int64) (int64, error) {
	var totalCompressed int64
	for _, c := range p.csize {
		totalCompressed += c
	}
	p.Observable.StartNextPhase(dataSize + 2*totalCompressed)

	input, err := os.Open(p.InputPath)
	if err != nil {
		return 0, errors.Wrapf(err, "unable to open %s", p.InputPath)
	}
	defer input.Close()

	compressedIn, err := compressedProvider.Handle()
	if err != nil {
		return 0, err
	}
	defer compressedIn.Close()
	compressedOut, err := compressedProvider.Handle()
	if err != nil {
		return 0, err
	}
	defer compressedOut.Close()

	hash := checksum.NewBuilder()
	buf := make([]byte, p.BlockSize)

	var writeOffset int64
	for i, size := range p.csize {
		frame := make([]byte, size)
		if _, err := compressedIn.ReadAt(frame, int64(i)*p.maxCompressedBlockSize); err != nil {
			return 0, errors.Wrap(err, "unable to read compressed frame")
		}
		if _, err := compressedOut.WriteAt(frame, writeOffset); err != nil {
			return 0, errors.Wrap(err, "unable to compact compressed frame")
		}
		writeOffset += size

		sizeToRead := p.BlockSize
		if remaining := dataSize - int64(i)*p.BlockSize; remaining < sizeToRead {
			sizeToRead = remaining
		}
		n, err := input.ReadAt(buf[:sizeToRead], int64(i)*p.BlockSize)
		if err != nil && n != int(sizeToRead) {
			return 0, errors.Wrap(err, "unable to read input for hashing")
		}
		hash.Update(buf[:sizeToRead])

		p.Observable.AdvanceProgress(sizeToRead + 2*size)
	}

	if err := compressedProvider.Resize(writeOffset); err != nil {
		return 0, err
	}

	p.fileHash = hash.Digest()
	return totalCompressed, nil
}

// writeMetadata is phase 3: write the header followed by the three packed
// arrays.
func (p *Pipeline) writeMetadata(dataSize, compressedBytes int64) error {
	output, err := os.Create(p.OutputMetadataPath)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", p.OutputMetadataPath)
	}
	defer output.Close()

	p.Observable.StartNextPhase(1)

	header := artifact.Encode(artifact.Header{
		Version:   artifact.CurrentVersion,
		Size:      dataSize,
		BlockSize: p.BlockSize,
		Hash:      p.fileHash.String(),
	})
	if _, err := output.Write(header); err != nil {
		return errors.Wrap(err, "unable to write header")
	}
	p.Observable.AdvanceProgress(int64(len(header)))

	if err := artifact.WriteWeak(output, p.weak); err != nil {
		return err
	}
	p.Observable.AdvanceProgress(int64(len(p.weak)) * 4)

	if err := artifact.WriteStrong(output, p.strong); err != nil {
		return err
	}
	p.Observable.AdvanceProgress(int64(len(p.strong)) * 16)

	if err := artifact.WriteCSize(output, p.csize); err != nil {
		return err
	}
	p.Observable.AdvanceProgress(int64(len(p.csize)) * 8)

	return nil
}
