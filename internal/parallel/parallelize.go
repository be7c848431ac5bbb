// Package parallel implements a simple fixed-partition parallelization
// scheme: a data range is divided into a number of contiguous, optionally
// overlapping chunks, and one worker goroutine is spawned per chunk.
package parallel

import (
	"sync"
)

// Func is the per-chunk worker invoked by Parallelize. id is the chunk
// index, and [beg, end) is the byte range (inclusive of overlap, except
// where truncated at total) the worker is responsible for.
type Func func(id int, beg, end int64)

// Parallelize divides [0, total) into blocks of size block, groups those
// blocks evenly across threads workers, and invokes fn once per worker on
// its own goroutine, waiting for every worker to return before returning
// itself.
//
// Each worker's range is extended by overlap bytes beyond its last block
// boundary (clamped to total), so that callers needing access to a
// lookbehind/lookahead window across a chunk boundary (the seed-analysis
// pass, which needs the previous block's bytes available while checksumming
// the start of a new one) don't need special-case handling at the edges.
//
// If the resulting per-worker block count would be smaller than 2, threads
// collapses to 1 and the entire range runs on a single worker; parallelizing
// a range too small to meaningfully split wastes goroutine setup cost for no
// benefit.
func Parallelize(total, block, overlap int64, threads int, fn Func) {
	if total <= 0 || block <= 0 {
		return
	}

	blocks := (total + block - 1) / block
	chunk := (blocks + int64(threads) - 1) / int64(threads)

	if chunk < 2 {
		threads = 1
		chunk = blocks
	}

	var wg sync.WaitGroup
	wg.Add(threads)
	for id := 0; id < threads; id++ {
		id := id
		beg := int64(id) * chunk * block
		end := int64(id+1)*chunk*block + overlap
		if end > total {
			end = total
		}
		go func() {
			defer wg.Done()
			fn(id, beg, end)
		}()
	}
	wg.Wait()
}
