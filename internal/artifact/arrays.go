package artifact

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/kysync/kysync/internal/checksum"
)

// Sizes, in bytes, of one packed record in each array.
const (
	weakRecordSize   = 4  // uint32 LE
	strongRecordSize = 16 // two uint64 LE: Hi then Lo
	csizeRecordSize  = 8  // int64 LE
)

// WriteWeak writes a dense, packed, little-endian array of weak checksums.
func WriteWeak(w io.Writer, values []uint32) error {
	buf := make([]byte, len(values)*weakRecordSize)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*weakRecordSize:], v)
	}
	_, err := w.Write(buf)
	return errors.Wrap(err, "unable to write weak checksum array")
}

// WriteStrong writes a dense, packed, little-endian array of strong
// checksums, with each checksum's Hi half preceding its Lo half.
func WriteStrong(w io.Writer, values []checksum.Strong) error {
	buf := make([]byte, len(values)*strongRecordSize)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*strongRecordSize:], v.Hi)
		binary.LittleEndian.PutUint64(buf[i*strongRecordSize+8:], v.Lo)
	}
	_, err := w.Write(buf)
	return errors.Wrap(err, "unable to write strong checksum array")
}

// WriteCSize writes a dense, packed, little-endian array of per-block
// compressed sizes.
func WriteCSize(w io.Writer, values []int64) error {
	buf := make([]byte, len(values)*csizeRecordSize)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*csizeRecordSize:], uint64(v))
	}
	_, err := w.Write(buf)
	return errors.Wrap(err, "unable to write compressed size array")
}

// ReadWeak reads a dense, packed array of count weak checksums from r.
func ReadWeak(r io.Reader, count int) ([]uint32, error) {
	buf := make([]byte, count*weakRecordSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "unable to read weak checksum array")
	}
	values := make([]uint32, count)
	for i := range values {
		values[i] = binary.LittleEndian.Uint32(buf[i*weakRecordSize:])
	}
	return values, nil
}

// ReadStrong reads a dense, packed array of count strong checksums from r.
func ReadStrong(r io.Reader, count int) ([]checksum.Strong, error) {
	buf := make([]byte, count*strongRecordSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "unable to read strong checksum array")
	}
	values := make([]checksum.Strong, count)
	for i := range values {
		values[i] = checksum.Strong{
			Hi: binary.LittleEndian.Uint64(buf[i*strongRecordSize:]),
			Lo: binary.LittleEndian.Uint64(buf[i*strongRecordSize+8:]),
		}
	}
	return values, nil
}

// ReadCSize reads a dense, packed array of count compressed block sizes from
// r.
func ReadCSize(r io.Reader, count int) ([]int64, error) {
	buf := make([]byte, count*csizeRecordSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "unable to read compressed size array")
	}
	values := make([]int64, count)
	for i := range values {
		values[i] = int64(binary.LittleEndian.Uint64(buf[i*csizeRecordSize:]))
	}
	return values, nil
}
