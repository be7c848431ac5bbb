// Package artifact implements the binary layout of a metadata artifact: a
// length-delimited versioned header followed by three packed, fixed-width
// per-block arrays (weak checksums, strong checksums, compressed sizes).
package artifact

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the header envelope, in declaration order.
const (
	fieldVersion   protowire.Number = 1
	fieldSize      protowire.Number = 2
	fieldBlockSize protowire.Number = 3
	fieldHash      protowire.Number = 4
)

// Header describes a prepared artifact: the version of the artifact format
// it was written with, the size of the original file, the block size used to
// divide it, and the hex-encoded whole-file strong-checksum digest.
type Header struct {
	Version   int32
	Size      int64
	BlockSize int64
	Hash      string
}

// CurrentVersion is the artifact format version produced by this
// implementation.
const CurrentVersion = 2

// Encode serializes h as a length-delimited message: a varint byte length
// followed by that many bytes of protobuf-wire-format fields. The delimiting
// length lets a reader that has only buffered the first N bytes of an
// artifact (as the sync pipeline does, since it doesn't know the header's
// length up front) determine exactly where the header ends and the packed
// arrays begin.
func Encode(h Header) []byte {
	var msg []byte
	msg = protowire.AppendTag(msg, fieldVersion, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(uint32(h.Version)))
	msg = protowire.AppendTag(msg, fieldSize, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(h.Size))
	msg = protowire.AppendTag(msg, fieldBlockSize, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(h.BlockSize))
	msg = protowire.AppendTag(msg, fieldHash, protowire.BytesType)
	msg = protowire.AppendString(msg, h.Hash)

	var out []byte
	out = protowire.AppendVarint(out, uint64(len(msg)))
	out = append(out, msg...)
	return out
}

// Decode parses a length-delimited header from the start of buf (which may
// contain additional trailing data, e.g. the packed arrays that follow the
// header in an artifact file) and returns the header plus the number of
// bytes of buf it consumed.
func Decode(buf []byte) (Header, int, error) {
	msgLen, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return Header{}, 0, errors.New("malformed header: invalid length prefix")
	}
	offset := n

	if uint64(offset)+msgLen > uint64(len(buf)) {
		return Header{}, 0, errors.New("malformed header: truncated message")
	}
	msg := buf[offset : offset+int(msgLen)]
	consumed := offset + int(msgLen)

	var h Header
	var sawVersion, sawSize, sawBlockSize, sawHash bool
	for len(msg) > 0 {
		num, _, tagLen := protowire.ConsumeTag(msg)
		if tagLen < 0 {
			return Header{}, 0, errors.New("malformed header: invalid field tag")
		}
		msg = msg[tagLen:]

		switch num {
		case fieldVersion:
			v, vn := protowire.ConsumeVarint(msg)
			if vn < 0 {
				return Header{}, 0, errors.New("malformed header: invalid version field")
			}
			h.Version = int32(uint32(v))
			msg = msg[vn:]
			sawVersion = true
		case fieldSize:
			v, vn := protowire.ConsumeVarint(msg)
			if vn < 0 {
				return Header{}, 0, errors.New("malformed header: invalid size field")
			}
			h.Size = int64(v)
			msg = msg[vn:]
			sawSize = true
		case fieldBlockSize:
			v, vn := protowire.ConsumeVarint(msg)
			if vn < 0 {
				return Header{}, 0, errors.New("malformed header: invalid block_size field")
			}
			h.BlockSize = int64(v)
			msg = msg[vn:]
			sawBlockSize = true
		case fieldHash:
			v, vn := protowire.ConsumeBytes(msg)
			if vn < 0 {
				return Header{}, 0, errors.New("malformed header: invalid hash field")
			}
			h.Hash = string(v)
			msg = msg[vn:]
			sawHash = true
		default:
			return Header{}, 0, errors.Errorf("malformed header: unknown field %d", num)
		}
	}

	if !sawVersion || !sawSize || !sawBlockSize || !sawHash {
		return Header{}, 0, errors.New("malformed header: missing required field")
	}

	return h, consumed, nil
}
