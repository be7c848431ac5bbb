// Package ioreader implements the three data sources a sync run can read
// blocks from: a local file, an HTTP(S) endpoint, and an in-memory buffer,
// all behind one Reader interface selected by URI scheme.
package ioreader

import (
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Range is a half-open byte range [Begin, End) to retrieve.
type Range struct {
	Begin int64
	End   int64
}

// Len returns the number of bytes spanned by the range.
func (r Range) Len() int64 { return r.End - r.Begin }

// BatchCallback is invoked once per contiguous chunk of data returned by a
// batched read, in the order the corresponding ranges were submitted.
// begin/end describe the chunk's position within the source; the chunk's
// end-begin bytes are buffer[bufferOffset:bufferOffset+(end-begin)]
// (implementations may return all chunks backed by one larger shared buffer,
// as HTTPReader does when a server answers with the full body).
type BatchCallback func(begin, end int64, buffer []byte, bufferOffset int64)

// Reader is the common contract implemented by FileReader, HTTPReader, and
// MemoryReader.
type Reader interface {
	// Size returns the total size of the underlying data source.
	Size() (int64, error)

	// Read reads exactly n bytes starting at offset into buf (which must
	// have length >= n) and returns the number of bytes actually read.
	Read(buf []byte, offset int64, n int) (int, error)

	// ReadBatch retrieves every range in ranges, invoking cb once per
	// contiguous chunk of returned data in submission order.
	ReadBatch(ranges []Range, cb BatchCallback) error

	// TotalReads returns the number of reads issued against the source so
	// far: one per Read call, and for ReadBatch one per HTTP request
	// (HTTPReader) or one per range (FileReader, MemoryReader).
	TotalReads() int64

	// TotalBytesRead returns the total number of bytes retrieved so far.
	TotalBytesRead() int64
}

// counters is embedded by each Reader implementation to track the common
// statistics every Reader must expose.
type counters struct {
	totalReads     int64
	totalBytesRead int64
}

func (c *counters) recordRead(n int) {
	atomic.AddInt64(&c.totalReads, 1)
	atomic.AddInt64(&c.totalBytesRead, int64(n))
}

// TotalReads implements Reader.TotalReads.
func (c *counters) TotalReads() int64 { return atomic.LoadInt64(&c.totalReads) }

// TotalBytesRead implements Reader.TotalBytesRead.
func (c *counters) TotalBytesRead() int64 { return atomic.LoadInt64(&c.totalBytesRead) }

// New constructs a Reader for the given URI. The scheme determines which
// concrete implementation is used:
//
//   - http://... or https://...  -> HTTPReader
//   - file:///absolute/path      -> FileReader (fails if the path is missing)
//   - memory://<hex-addr>:<hex-size> -> MemoryReader
//
// Any other scheme (or a malformed URI) is an invalid argument error.
func New(uri string) (Reader, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid URI: %s", uri)
	}

	switch parsed.Scheme {
	case "http", "https":
		return NewHTTPReader(uri)
	case "file":
		if parsed.Path == "" || !strings.HasPrefix(parsed.Path, "/") {
			return nil, errors.Errorf("invalid file URI (must be absolute): %s", uri)
		}
		return NewFileReader(parsed.Path)
	case "memory":
		return newMemoryReaderFromURI(parsed)
	default:
		return nil, errors.Errorf("invalid URI scheme: %s", uri)
	}
}

// parseMemoryAuthority splits a memory:// URI's authority
// (<hex-addr>:<hex-size>) into its two hex-encoded components.
func parseMemoryAuthority(authority string) (uint64, uint64, error) {
	parts := strings.SplitN(authority, ":", 2)
	if len(parts) != 2 {
		return 0, 0, errors.Errorf("malformed memory URI authority: %s", authority)
	}
	addr, err := strconv.ParseUint(parts[0], 16, 64)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "malformed memory URI address: %s", parts[0])
	}
	size, err := strconv.ParseUint(parts[1], 16, 64)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "malformed memory URI size: %s", parts[1])
	}
	return addr, size, nil
}
