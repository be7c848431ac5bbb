package synchronize

import (
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/kysync/kysync/internal/codec"
	"github.com/kysync/kysync/internal/ioreader"
	"github.com/kysync/kysync/internal/parallel"
)

// retrieval describes one block that must be fetched from the data source
// rather than copied from the seed.
type retrieval struct {
	blockIndex      int64
	sourceBegin     int64
	sizeToRead      int64
	offsetToWriteTo int64
}

// chunkReconstructor reconstructs one contiguous byte range of the target
// file, owned by a single Parallelize worker. It batches up to
// blocksPerBatch block retrievals before issuing a single ReadBatch call, so
// that a remote data source sees one HTTP request per batch rather than one
// per block.
type chunkReconstructor struct {
	m    *metadata
	mtx  *metrics
	obs  *pipelineObservable

	output *os.File
	seed   ioreader.Reader // nil if no seed was supplied
	reader ioreader.Reader

	compressionDisabled bool
	blocksPerBatch      int

	batch []retrieval
}

// pipelineObservable is the minimal surface reconstruct.go needs from
// observability.Observable, named to keep this file independent of exactly
// which phase is reporting progress.
type pipelineObservable interface {
	AdvanceProgress(delta int64)
}

func (p *Pipeline) reconstructSource(output *os.File, m *metadata, mtx *metrics) error {
	p.Observable.StartNextPhase(m.header.Size)

	hasSeed := p.SeedURI != ""

	var mu sync.Mutex
	var workerErr error
	setErr := func(err error) {
		mu.Lock()
		if workerErr == nil {
			workerErr = err
		}
		mu.Unlock()
	}

	parallel.Parallelize(m.header.Size, m.header.BlockSize, 0, p.Threads, func(id int, beg, end int64) {
		r, err := ioreader.New(p.DataURI)
		if err != nil {
			setErr(err)
			return
		}

		var seed ioreader.Reader
		if hasSeed {
			s, err := ioreader.New(p.SeedURI)
			if err != nil {
				setErr(err)
				return
			}
			seed = s
		}

		cr := &chunkReconstructor{
			m:                   m,
			mtx:                 mtx,
			obs:                 p.Observable,
			output:              output,
			seed:                seed,
			reader:              r,
			compressionDisabled: p.DisableCompression,
			blocksPerBatch:      p.BlocksPerBatch,
		}
		if err := cr.reconstructRange(beg, end); err != nil {
			setErr(err)
		}
	})

	return workerErr
}

func (cr *chunkReconstructor) reconstructRange(beg, end int64) error {
	blockSize := cr.m.header.BlockSize

	for offset := beg; offset < end; offset += blockSize {
		blockIndex := offset / blockSize
		length := cr.blockLength(blockIndex)

		if seedOffset := cr.m.seedOffsets[blockIndex]; seedOffset != invalidOffset {
			if err := cr.reconstructFromSeed(offset, seedOffset, length); err != nil {
				return err
			}
			continue
		}

		cr.enqueue(blockIndex, offset, length)
		if len(cr.batch) >= cr.blocksPerBatch {
			if err := cr.flushBatch(false); err != nil {
				return err
			}
		}
	}

	return cr.flushBatch(true)
}

func (cr *chunkReconstructor) blockLength(index int64) int64 {
	blockSize := cr.m.header.BlockSize
	if index == cr.m.blockCount-1 {
		if rem := cr.m.header.Size % blockSize; rem != 0 {
			return rem
		}
	}
	return blockSize
}

func (cr *chunkReconstructor) reconstructFromSeed(outputOffset, seedOffset, length int64) error {
	buf := make([]byte, length)
	if _, err := cr.seed.Read(buf, seedOffset, int(length)); err != nil {
		return errors.Wrap(err, "unable to read seed")
	}
	if _, err := cr.output.WriteAt(buf, outputOffset); err != nil {
		return errors.Wrap(err, "unable to write reconstructed block")
	}
	cr.mtx.addReusedBytes(length)
	cr.obs.AdvanceProgress(length)
	return nil
}

// enqueue records the source range that must be fetched to materialize the
// given block. When compression is disabled the data source is read at the
// block's own file offset; otherwise it is read at that block's compressed
// frame offset within the payload file.
func (cr *chunkReconstructor) enqueue(blockIndex, outputOffset, length int64) {
	info := retrieval{blockIndex: blockIndex, offsetToWriteTo: outputOffset}
	if cr.compressionDisabled {
		info.sourceBegin = blockIndex * cr.m.header.BlockSize
		info.sizeToRead = length
	} else {
		info.sourceBegin = cr.m.compressedOffsets[blockIndex]
		info.sizeToRead = cr.m.csize[blockIndex]
	}
	cr.batch = append(cr.batch, info)
}

func (cr *chunkReconstructor) flushBatch(force bool) error {
	threshold := cr.blocksPerBatch
	if force {
		threshold = 1
	}
	if len(cr.batch) < threshold {
		return nil
	}

	batch := cr.batch
	cr.batch = nil

	ranges := make([]ioreader.Range, len(batch))
	for i, info := range batch {
		ranges[i] = ioreader.Range{Begin: info.sourceBegin, End: info.sourceBegin + info.sizeToRead}
	}

	idx := 0
	var callbackErr error
	err := cr.reader.ReadBatch(ranges, func(begin, end int64, buffer []byte, bufferOffset int64) {
		if callbackErr != nil {
			return
		}
		consumed := int64(0)
		chunkLen := end - begin
		for consumed < chunkLen {
			if idx >= len(batch) {
				callbackErr = errors.New("received more data than retrieval infos requested")
				return
			}
			info := batch[idx]
			if consumed+info.sizeToRead > chunkLen {
				callbackErr = errors.New("returned chunk does not align with requested retrieval boundaries")
				return
			}
			piece := buffer[bufferOffset+consumed : bufferOffset+consumed+info.sizeToRead]
			if err := cr.writeRetrievedBlock(info, piece); err != nil {
				callbackErr = err
				return
			}
			consumed += info.sizeToRead
			idx++
		}
	})
	if err != nil {
		return errors.Wrap(err, "unable to read data source batch")
	}
	if callbackErr != nil {
		return callbackErr
	}
	if idx != len(batch) {
		return errors.New("data source returned fewer chunks than retrieval infos requested")
	}

	return nil
}

func (cr *chunkReconstructor) writeRetrievedBlock(info retrieval, raw []byte) error {
	length := cr.blockLength(info.blockIndex)

	var out []byte
	if cr.compressionDisabled {
		if int64(len(raw)) != length {
			return errors.Errorf("block %d: expected %d raw bytes, got %d", info.blockIndex, length, len(raw))
		}
		out = raw
		cr.mtx.addDownloadedBytes(int64(len(raw)))
	} else {
		decompressed, err := codec.Decompress(raw, int(cr.m.header.BlockSize))
		if err != nil {
			return errors.Wrapf(err, "unable to decompress block %d", info.blockIndex)
		}
		if int64(len(decompressed)) != length {
			return errors.Errorf("block %d: expected %d decompressed bytes, got %d", info.blockIndex, length, len(decompressed))
		}
		out = decompressed
		cr.mtx.addDownloadedBytes(int64(len(raw)))
		cr.mtx.addDecompressedBytes(int64(len(decompressed)))
	}

	if _, err := cr.output.WriteAt(out, info.offsetToWriteTo); err != nil {
		return errors.Wrap(err, "unable to write retrieved block")
	}
	cr.obs.AdvanceProgress(length)
	return nil
}
