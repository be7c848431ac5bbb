package synchronize

import (
	"bytes"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/kysync/kysync/internal/artifact"
	"github.com/kysync/kysync/internal/checksum"
	"github.com/kysync/kysync/internal/ioreader"
)

// maxHeaderBytes bounds how much of the metadata file is read before the
// length-delimited header is known to be fully buffered.
const maxHeaderBytes = 1024

// metadata holds everything readMetadata recovers from an artifact: the
// header, the three packed per-block arrays, and the derived structures the
// later phases need to find and place matching blocks.
type metadata struct {
	header artifact.Header

	weak   []uint32
	strong []checksum.Strong
	csize  []int64

	blockCount int64

	// compressedOffsets[i] is the byte offset of block i's compressed frame
	// within the payload file; compressedOffsets[blockCount] is the total
	// compressed size.
	compressedOffsets []int64
	maxCompressedSize int64

	// present marks every weak checksum value that occurs in weak, so the
	// seed scan can cheaply reject the overwhelming majority of candidate
	// windows before ever consulting the analysis map.
	present *bitset

	// analysisMu guards analysis and seedOffsets, both of which are mutated
	// by multiple seed-analysis workers.
	analysisMu sync.Mutex
	analysis   map[uint32]*analysisEntry
	seedOffsets []int64
}

// analysisEntry records, for one distinct weak checksum value, the most
// recently encountered block index that produced it (a later identical block
// overwrites an earlier one: on a collision, only the last block matching a
// given weak checksum can ever be recovered directly from the seed) and the
// seed offset at which that block was eventually found, if any.
type analysisEntry struct {
	index      int64
	seedOffset int64
}

const invalidOffset = int64(-1)

// readMetadata fetches a metadata artifact from uri (opened via
// ioreader.New, so file://, http(s)://, and memory:// all work the same way
// they do for the sync pipeline's data and seed sources) and parses it.
func readMetadata(uri string) (*metadata, error) {
	r, err := ioreader.New(uri)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open metadata %s", uri)
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	size, err := r.Size()
	if err != nil {
		return nil, errors.Wrapf(err, "unable to determine size of metadata %s", uri)
	}

	headLen := int64(maxHeaderBytes)
	if size < headLen {
		headLen = size
	}
	head := make([]byte, headLen)
	if headLen > 0 {
		if _, err := r.Read(head, 0, int(headLen)); err != nil {
			return nil, errors.Wrapf(err, "unable to read %s", uri)
		}
	}

	header, consumed, err := artifact.Decode(head)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse header of %s", uri)
	}
	if header.Version != artifact.CurrentVersion {
		return nil, errors.Errorf("unsupported artifact version %d (want %d)", header.Version, artifact.CurrentVersion)
	}

	remaining := size - int64(consumed)
	rest := make([]byte, remaining)
	if remaining > 0 {
		if _, err := r.Read(rest, int64(consumed), int(remaining)); err != nil {
			return nil, errors.Wrapf(err, "unable to read %s", uri)
		}
	}
	body := bytes.NewReader(rest)

	blockCount := (header.Size + header.BlockSize - 1) / header.BlockSize

	weak, err := artifact.ReadWeak(body, int(blockCount))
	if err != nil {
		return nil, err
	}
	strong, err := artifact.ReadStrong(body, int(blockCount))
	if err != nil {
		return nil, err
	}
	csize, err := artifact.ReadCSize(body, int(blockCount))
	if err != nil {
		return nil, err
	}

	m := &metadata{
		header:     header,
		weak:       weak,
		strong:     strong,
		csize:      csize,
		blockCount: blockCount,
		present:    newBitset(),
		analysis:   make(map[uint32]*analysisEntry, blockCount),
	}

	m.compressedOffsets = make([]int64, blockCount+1)
	var offset int64
	for i, c := range csize {
		m.compressedOffsets[i] = offset
		offset += c
		if c > m.maxCompressedSize {
			m.maxCompressedSize = c
		}
	}
	m.compressedOffsets[blockCount] = offset

	m.seedOffsets = make([]int64, blockCount)
	for i := range m.seedOffsets {
		m.seedOffsets[i] = invalidOffset
	}

	for i, w := range weak {
		m.present.set(w, true)
		// Last index wins on a weak-checksum collision: overwriting the map
		// entry for each successive block with the same checksum value
		// leaves the most recently seen block as the one the seed scan will
		// try to confirm.
		m.analysis[w] = &analysisEntry{index: int64(i), seedOffset: invalidOffset}
	}

	return m, nil
}
