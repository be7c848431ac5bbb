package checksum

import (
	"fmt"
	"io"

	"github.com/zeebo/xxh3"
)

// Strong is a 128-bit non-cryptographic block or whole-file digest.
type Strong struct {
	Hi uint64
	Lo uint64
}

// String renders the digest as lowercase hex, high 64 bits first.
func (s Strong) String() string {
	return fmt.Sprintf("%016x%016x", s.Hi, s.Lo)
}

// Equal reports whether two digests are identical.
func (s Strong) Equal(other Strong) bool {
	return s.Hi == other.Hi && s.Lo == other.Lo
}

// Compute computes the strong digest of the first n bytes of buf in one shot.
func Compute(buf []byte, n int) Strong {
	sum := xxh3.Hash128(buf[:n])
	return Strong{Hi: sum.Hi, Lo: sum.Lo}
}

// Builder incrementally accumulates a strong digest across multiple writes.
// Its zero value is not usable; construct one with NewBuilder.
type Builder struct {
	hasher *xxh3.Hasher
}

// NewBuilder creates a new, empty strong-checksum builder.
func NewBuilder() *Builder {
	return &Builder{hasher: xxh3.New()}
}

// Update folds additional bytes into the digest being built.
func (b *Builder) Update(buf []byte) {
	// xxh3.Hasher.Write never returns an error.
	_, _ = b.hasher.Write(buf)
}

// Digest returns the digest of all bytes passed to Update so far. It does not
// reset the builder.
func (b *Builder) Digest() Strong {
	sum := b.hasher.Sum128()
	return Strong{Hi: sum.Hi, Lo: sum.Lo}
}

// ComputeStream computes the strong digest of everything remaining in r,
// reading in 64KiB chunks.
func ComputeStream(r io.Reader) (Strong, error) {
	const chunkSize = 64 * 1024

	builder := NewBuilder()
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			builder.Update(buf[:n])
		}
		if err == io.EOF {
			break
		} else if err != nil {
			return Strong{}, err
		}
	}

	return builder.Digest(), nil
}
