package ioreader

import (
	"os"

	"github.com/pkg/errors"
)

// FileReader reads from a local file.
type FileReader struct {
	counters
	file *os.File
	size int64
}

// NewFileReader opens path for reading. It fails if the file does not
// exist.
func NewFileReader(path string) (*FileReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrapf(err, "unable to stat %s", path)
	}
	return &FileReader{file: file, size: info.Size()}, nil
}

// Close releases the underlying file handle.
func (f *FileReader) Close() error {
	return f.file.Close()
}

// Size implements Reader.Size.
func (f *FileReader) Size() (int64, error) {
	return f.size, nil
}

// Read implements Reader.Read.
func (f *FileReader) Read(buf []byte, offset int64, n int) (int, error) {
	read, err := f.file.ReadAt(buf[:n], offset)
	if err != nil {
		return read, errors.Wrapf(err, "unable to read %d bytes at offset %d", n, offset)
	}
	f.recordRead(read)
	return read, nil
}

// ReadBatch implements Reader.ReadBatch. Each range is read independently
// with a single ReadAt call; there is no benefit to coalescing adjacent
// ranges for a local file the way there is for an HTTP round trip.
func (f *FileReader) ReadBatch(ranges []Range, cb BatchCallback) error {
	for _, r := range ranges {
		n := int(r.Len())
		buf := make([]byte, n)
		if _, err := f.Read(buf, r.Begin, n); err != nil {
			return err
		}
		cb(r.Begin, r.End, buf, 0)
	}
	return nil
}
