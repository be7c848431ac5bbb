// Package filestream provides positioned read/write access to a file shared
// by multiple concurrent goroutines, each of which needs to seek to its own
// offset before reading or writing without disturbing any other handle.
package filestream

import (
	"os"

	"github.com/pkg/errors"
)

// Provider creates a file if it doesn't already exist and hands out
// independent file handles for positioned reads and writes against it.
//
// Handles are deliberately opened without truncation: truncating on open
// would race against other handles already positioned within the file, since
// multiple goroutines each need their own independently-seekable handle to
// the same underlying file.
type Provider struct {
	path string
}

// New creates a Provider for path, creating an empty file there if one
// doesn't already exist.
func New(path string) (*Provider, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to create %s", path)
		}
		if err := f.Close(); err != nil {
			return nil, errors.Wrapf(err, "unable to close newly created %s", path)
		}
	} else if err != nil {
		return nil, errors.Wrapf(err, "unable to stat %s", path)
	}

	return &Provider{path: path}, nil
}

// Resize truncates or extends the file to exactly size bytes.
func (p *Provider) Resize(size int64) error {
	return errors.Wrapf(os.Truncate(p.path, size), "unable to resize %s", p.path)
}

// Handle returns a new, independent read/write handle to the file. The
// caller is responsible for seeking it to the appropriate offset before use
// and for closing it when done.
func (p *Provider) Handle() (*os.File, error) {
	f, err := os.OpenFile(p.path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", p.path)
	}
	return f, nil
}

// Path returns the path the provider was constructed with.
func (p *Provider) Path() string {
	return p.path
}
