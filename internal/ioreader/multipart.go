package ioreader

import (
	"io"
	"mime/multipart"

	"github.com/pkg/errors"
)

// parseMultipartByteRanges walks a multipart/byteranges response body
// (Boundary -> Header* -> Data -> Boundary -> ... -> Terminated), invoking
// cb once per part with the byte range given by that part's Content-Range
// header.
//
// No example in this codebase's lineage parses multipart/byteranges with a
// third-party library; the standard library's mime/multipart already
// implements the exact boundary/header/data state machine this format
// requires; see DESIGN.md for the justification of using it here instead of
// hand-rolling the state machine or reaching for an external dependency that
// doesn't improve on it.
func parseMultipartByteRanges(body io.Reader, boundary string, cb BatchCallback) (int, error) {
	if boundary == "" {
		return 0, errors.New("multipart/byteranges response missing boundary parameter")
	}

	reader := multipart.NewReader(body, boundary)
	var total int
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return total, errors.Wrap(err, "unable to read multipart/byteranges part")
		}

		begin, end, err := parseContentRange(part.Header.Get("Content-Range"))
		if err != nil {
			return total, err
		}

		data, err := io.ReadAll(part)
		if err != nil {
			return total, errors.Wrap(err, "unable to read multipart/byteranges part body")
		}

		cb(begin, end, data, 0)
		total += len(data)
	}

	return total, nil
}
