// Package temppath creates uniquely-named scratch directories and removes
// them on request, used by tests and by command-line tooling that needs a
// private working area.
package temppath

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/kysync/kysync/internal/identifier"
)

// counter is the process-wide atomic disambiguator appended to every
// generated path name, guarding against two paths generated in the same
// process colliding even if the clock hasn't advanced between them. It is not
// the only package-level mutable state: internal/ioreader keeps a registry of
// memory:// buffers and internal/codec caches encoder pools per level.
var counter uint32

// uniqueName returns a name of the form "tmp_<nanosecond timestamp>_<atomic
// counter>_<random suffix>". The timestamp and counter alone are what the
// original implementation of this scheme used for collision resistance
// within a process; the random suffix is an addition that also avoids
// collisions across process restarts that might otherwise race on the same
// timestamp granularity.
func uniqueName() string {
	ts := time.Now().UnixNano()
	n := atomic.AddUint32(&counter, 1)
	suffix, err := identifier.RandomSuffix()
	if err != nil {
		// Entropy failure is exceedingly unlikely and not something callers
		// can meaningfully recover from; fall back to the timestamp/counter
		// pair alone, which is still the required collision guarantee.
		return fmt.Sprintf("tmp_%d_%d", ts, n)
	}
	return fmt.Sprintf("tmp_%d_%d_%s", ts, n, suffix)
}

// Path is a uniquely-named directory created under a parent directory, and
// optionally removed when no longer needed.
type Path struct {
	path string
}

// New creates a new uniquely-named directory under parent. If parent is
// empty, the system temporary directory is used.
func New(parent string) (*Path, error) {
	if parent == "" {
		parent = os.TempDir()
	}

	path := filepath.Join(parent, uniqueName())
	if _, err := os.Stat(path); err == nil {
		return nil, errors.Errorf("%s already exists", path)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", path)
	}

	return &Path{path: path}, nil
}

// Get returns the directory's path.
func (p *Path) Get() string {
	return p.path
}

// Remove deletes the directory and everything under it.
func (p *Path) Remove() error {
	return errors.Wrapf(os.RemoveAll(p.path), "unable to remove %s", p.path)
}
