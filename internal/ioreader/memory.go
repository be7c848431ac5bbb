package ioreader

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/pkg/errors"
)

// MemoryReader reads from an in-memory buffer. It exists primarily to let
// tests and tools exercise the sync pipeline's batching logic without a real
// file or HTTP endpoint.
//
// Go cannot safely dereference an arbitrary address the way the memory://
// scheme's grammar literally describes, so buffers are registered in a
// process-local table and addressed by an opaque handle rather than a raw
// pointer; the handle is still rendered as hex in the URI to preserve the
// <hex-addr>:<hex-size> grammar.
type MemoryReader struct {
	counters
	data []byte
}

var (
	registryMu  sync.Mutex
	registry    = make(map[uint64][]byte)
	nextHandle  uint64 = 1
)

// RegisterBuffer registers data for retrieval via a memory:// URI and
// returns that URI. The caller must keep data alive (and not mutate it) for
// as long as the URI may still be used.
func RegisterBuffer(data []byte) string {
	registryMu.Lock()
	handle := nextHandle
	nextHandle++
	registry[handle] = data
	registryMu.Unlock()

	return fmt.Sprintf("memory://%x:%x", handle, len(data))
}

// UnregisterBuffer removes a previously registered buffer by URI, allowing
// it to be garbage collected.
func UnregisterBuffer(uri string) {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme != "memory" {
		return
	}
	handle, _, err := parseMemoryAuthority(parsed.Host)
	if err != nil {
		return
	}
	registryMu.Lock()
	delete(registry, handle)
	registryMu.Unlock()
}

func newMemoryReaderFromURI(parsed *url.URL) (*MemoryReader, error) {
	handle, size, err := parseMemoryAuthority(parsed.Host)
	if err != nil {
		return nil, err
	}

	registryMu.Lock()
	data, ok := registry[handle]
	registryMu.Unlock()
	if !ok {
		return nil, errors.Errorf("unknown memory buffer handle: %x", handle)
	}
	if uint64(len(data)) != size {
		return nil, errors.Errorf(
			"memory URI size %d does not match registered buffer size %d", size, len(data),
		)
	}

	return &MemoryReader{data: data}, nil
}

// Size implements Reader.Size.
func (m *MemoryReader) Size() (int64, error) {
	return int64(len(m.data)), nil
}

// Read implements Reader.Read.
func (m *MemoryReader) Read(buf []byte, offset int64, n int) (int, error) {
	if offset < 0 || offset+int64(n) > int64(len(m.data)) {
		return 0, errors.Errorf(
			"read range [%d,%d) out of bounds for buffer of size %d", offset, offset+int64(n), len(m.data),
		)
	}
	copied := copy(buf[:n], m.data[offset:offset+int64(n)])
	m.recordRead(copied)
	return copied, nil
}

// ReadBatch implements Reader.ReadBatch.
func (m *MemoryReader) ReadBatch(ranges []Range, cb BatchCallback) error {
	for _, r := range ranges {
		n := int(r.Len())
		buf := make([]byte, n)
		if _, err := m.Read(buf, r.Begin, n); err != nil {
			return err
		}
		cb(r.Begin, r.End, buf, 0)
	}
	return nil
}
