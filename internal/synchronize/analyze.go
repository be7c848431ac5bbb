package synchronize

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/kysync/kysync/internal/checksum"
	"github.com/kysync/kysync/internal/ioreader"
	"github.com/kysync/kysync/internal/parallel"
)

// metrics accumulates counters describing how much of the target could be
// reconstructed from the seed versus how much had to be fetched.
type metrics struct {
	weakMatches        int64
	weakFalsePositives int64
	strongMatches       int64
	reusedBytes         int64
	downloadedBytes     int64
	decompressedBytes   int64
}

func (m *metrics) addWeakMatch()        { atomic.AddInt64(&m.weakMatches, 1) }
func (m *metrics) addWeakFalsePositive() { atomic.AddInt64(&m.weakFalsePositives, 1) }
func (m *metrics) addStrongMatch()      { atomic.AddInt64(&m.strongMatches, 1) }
func (m *metrics) addReusedBytes(n int64)       { atomic.AddInt64(&m.reusedBytes, n) }
func (m *metrics) addDownloadedBytes(n int64)   { atomic.AddInt64(&m.downloadedBytes, n) }
func (m *metrics) addDecompressedBytes(n int64) { atomic.AddInt64(&m.decompressedBytes, n) }

// analyzeSeed scans every byte offset of the seed for a window whose weak
// checksum matches a block of the target, confirming each candidate with a
// strong-checksum comparison and recording its location in m. seedURI is
// opened via ioreader.New, the same way the data source is, so a seed can be
// a local file, an HTTP(S) endpoint, or an in-memory buffer.
func (p *Pipeline) analyzeSeed(seedURI string, m *metadata, mtx *metrics) error {
	sizer, err := ioreader.New(seedURI)
	if err != nil {
		return errors.Wrapf(err, "unable to open seed %s", seedURI)
	}
	seedSize, err := sizer.Size()
	if err != nil {
		return errors.Wrapf(err, "unable to determine size of seed %s", seedURI)
	}
	p.Observable.StartNextPhase(seedSize)

	blockSize := m.header.BlockSize

	var mu sync.Mutex
	var workerErr error
	setErr := func(err error) {
		mu.Lock()
		if workerErr == nil {
			workerErr = err
		}
		mu.Unlock()
	}
	parallel.Parallelize(seedSize, blockSize, blockSize, p.Threads, func(id int, beg, end int64) {
		if end <= beg {
			return
		}
		seed, err := ioreader.New(seedURI)
		if err != nil {
			setErr(err)
			return
		}
		chunk := make([]byte, end-beg)
		if _, err := seed.Read(chunk, beg, int(end-beg)); err != nil {
			setErr(errors.Wrapf(err, "unable to read seed at offset %d", beg))
			return
		}
		analyzeSeedChunk(chunk, beg, blockSize, seedSize, m, mtx)
		p.Observable.AdvanceProgress(end - beg)
	})

	return workerErr
}

// analyzeSeedChunk scans one worker's [chunkBeg, chunkBeg+len(data)) window
// of the seed (which already includes a block_size lookahead past its
// nominal boundary, supplied by Parallelize's overlap) one byte at a time,
// confirming and recording matches as they're found.
//
// After a window is confirmed as a match, the scan skips ahead by a full
// block rather than continuing to test overlapping windows inside it: once a
// block of the seed has been claimed, there is nothing to gain by also
// matching a shifted copy of the same bytes.
func analyzeSeedChunk(data []byte, chunkBeg, blockSize, seedSize int64, m *metadata, mtx *metrics) {
	n := int(blockSize)
	buf := make([]byte, 2*n)
	var running uint32
	skip := n - 1 // warmup: the first block's worth of windows need bytes before chunkBeg

	total := len(data)
	for stepBeg := 0; stepBeg < total; stepBeg += n {
		stepLen := n
		if remaining := total - stepBeg; remaining < stepLen {
			stepLen = remaining
		}

		if stepBeg == 0 {
			for i := 0; i < n; i++ {
				buf[i] = 0
			}
		} else {
			copy(buf[:n], data[stepBeg-n:stepBeg])
		}
		copy(buf[n:n+stepLen], data[stepBeg:stepBeg+stepLen])
		for i := stepLen; i < n; i++ {
			buf[n+i] = 0
		}

		running = checksum.WeakRoll(buf, n, running, func(offset int, wcs uint32) {
			if skip > 0 {
				skip--
				return
			}

			localStart := stepBeg + offset
			if localStart < 0 || localStart+n > total {
				return
			}
			global := chunkBeg + int64(localStart)
			if global < 0 || global+blockSize > seedSize {
				return
			}
			if !m.present.get(wcs) {
				return
			}

			m.analysisMu.Lock()
			entry, ok := m.analysis[wcs]
			m.analysisMu.Unlock()
			if !ok {
				return
			}

			mtx.addWeakMatch()
			candidate := checksum.Compute(data[localStart:], n)
			if !candidate.Equal(m.strong[entry.index]) {
				mtx.addWeakFalsePositive()
				return
			}

			mtx.addStrongMatch()
			m.analysisMu.Lock()
			entry.seedOffset = global
			m.seedOffsets[entry.index] = global
			m.present.set(wcs, false)
			m.analysisMu.Unlock()

			skip = n - 1
		})
	}
}
