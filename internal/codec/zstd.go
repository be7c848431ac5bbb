// Package codec implements the general-purpose block compressor used for the
// payload file: a codec whose frames self-describe their uncompressed size,
// so that a decoder can reject corrupt or oversized frames before allocating
// a destination buffer.
package codec

import (
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

var (
	decoder, _ = zstd.NewReader(nil)

	encoderPoolsMu sync.RWMutex
	encoderPools   = make(map[int]*sync.Pool)
)

func getEncoderPool(level int) *sync.Pool {
	encoderPoolsMu.RLock()
	pool, ok := encoderPools[level]
	encoderPoolsMu.RUnlock()
	if ok {
		return pool
	}

	encoderPoolsMu.Lock()
	defer encoderPoolsMu.Unlock()
	if pool, ok = encoderPools[level]; ok {
		return pool
	}

	pool = &sync.Pool{
		New: func() interface{} {
			enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)), zstd.WithZeroFrames(true))
			if err != nil {
				panic(errors.Wrap(err, "unable to construct zstd encoder"))
			}
			return enc
		},
	}
	encoderPools[level] = pool
	return pool
}

// Compress compresses src at the given compression level and returns a
// self-describing frame: one from which Decompress can recover the original
// uncompressed length without being told it out of band.
func Compress(src []byte, level int) []byte {
	pool := getEncoderPool(level)
	enc := pool.Get().(*zstd.Encoder)
	defer pool.Put(enc)
	return enc.EncodeAll(src, make([]byte, 0, len(src)))
}

// Decompress decodes a frame produced by Compress. It fails if the frame
// does not declare its uncompressed size, or if that size exceeds maxSize
// (the destination block's capacity); both conditions indicate a corrupt or
// foreign frame rather than one produced by Compress.
func Decompress(src []byte, maxSize int) ([]byte, error) {
	contentSize, err := frameContentSize(src)
	if err != nil {
		return nil, errors.Wrap(err, "unable to determine frame content size")
	}
	if contentSize > uint64(maxSize) {
		return nil, errors.Errorf(
			"frame content size %d exceeds maximum block size %d", contentSize, maxSize,
		)
	}

	dst := make([]byte, 0, contentSize)
	dst, err = decoder.DecodeAll(src, dst)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decompress frame")
	}
	return dst, nil
}

// MaxCompressedSize returns a safe upper bound on the compressed size of a
// srcSize-byte block: the standard ZSTD_compressBound formula plus 12 bytes.
// Callers that must write compressed blocks at a fixed stride ahead of
// knowing their actual sizes (the prepare pipeline's first pass, which
// compresses blocks out of order across worker goroutines) use this to size
// that stride.
func MaxCompressedSize(srcSize int) int {
	bound := srcSize + (srcSize >> 8) + 12
	if srcSize < (128 << 10) {
		bound += (131072 - srcSize) >> 11
	}
	return bound
}

// frameContentSize extracts the declared uncompressed size from a zstd frame
// header without decoding the frame body.
func frameContentSize(src []byte) (uint64, error) {
	var header zstd.Header
	if err := header.Decode(src); err != nil {
		return 0, err
	}
	if !header.HasFCS {
		return 0, errors.New("frame does not declare an uncompressed size")
	}
	return header.FrameContentSize, nil
}
