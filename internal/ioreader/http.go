package ioreader

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// HTTPReader reads from an HTTP(S) endpoint using ranged GET requests,
// coalescing a batch of ranges into a single request with a multi-range
// Range header wherever possible.
type HTTPReader struct {
	counters
	uri    string
	client *http.Client
	size   int64
}

// NewHTTPReader creates an HTTPReader for uri, issuing a HEAD request to
// discover the resource's size.
func NewHTTPReader(uri string) (*HTTPReader, error) {
	client := &http.Client{}

	resp, err := client.Head(uri)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to HEAD %s", uri)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("HEAD %s returned status %s", uri, resp.Status)
	}
	if resp.ContentLength < 0 {
		return nil, errors.Errorf("HEAD %s did not report a content length", uri)
	}

	return &HTTPReader{uri: uri, client: client, size: resp.ContentLength}, nil
}

// Size implements Reader.Size.
func (h *HTTPReader) Size() (int64, error) {
	return h.size, nil
}

// Read implements Reader.Read as a single-range batch of one.
func (h *HTTPReader) Read(buf []byte, offset int64, n int) (int, error) {
	var read int
	err := h.ReadBatch([]Range{{Begin: offset, End: offset + int64(n)}},
		func(begin, end int64, chunk []byte, chunkOffset int64) {
			read = copy(buf[:n], chunk[chunkOffset:])
		})
	return read, err
}

// ReadBatch implements Reader.ReadBatch by translating ranges into a single
// ranged GET request with a Range header of the form
// "bytes=a1-b1,a2-b2,...", then parsing either a multipart/byteranges
// response (server split the ranges into parts) or a single-range response
// (server coalesced everything, or only one range was requested) or a full
// 200 response (server ignored Range entirely, requiring the ranges to be
// sliced out of the full body locally).
func (h *HTTPReader) ReadBatch(ranges []Range, cb BatchCallback) error {
	if len(ranges) == 0 {
		return nil
	}

	req, err := http.NewRequest(http.MethodGet, h.uri, nil)
	if err != nil {
		return errors.Wrapf(err, "unable to construct GET request for %s", h.uri)
	}
	req.Header.Set("Range", buildRangeHeader(ranges))

	resp, err := h.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "unable to GET %s", h.uri)
	}
	defer resp.Body.Close()

	var totalRead int
	switch resp.StatusCode {
	case http.StatusPartialContent:
		contentType := resp.Header.Get("Content-Type")
		mediaType, params, _ := mime.ParseMediaType(contentType)
		if mediaType == "multipart/byteranges" {
			totalRead, err = parseMultipartByteRanges(resp.Body, params["boundary"], cb)
		} else {
			totalRead, err = parseSingleRangeResponse(resp, cb)
		}
	case http.StatusOK:
		totalRead, err = sliceRangesFromFullBody(resp.Body, ranges, cb)
	default:
		return errors.Errorf("GET %s returned status %s", h.uri, resp.Status)
	}
	if err != nil {
		return err
	}

	h.recordRead(totalRead)
	return nil
}

// buildRangeHeader renders a set of ranges as an HTTP Range header value.
func buildRangeHeader(ranges []Range) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = fmt.Sprintf("%d-%d", r.Begin, r.End-1)
	}
	return "bytes=" + strings.Join(parts, ",")
}

// parseSingleRangeResponse handles a 206 response carrying exactly one
// range, identified by its Content-Range header.
func parseSingleRangeResponse(resp *http.Response, cb BatchCallback) (int, error) {
	begin, end, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, errors.Wrap(err, "unable to read response body")
	}
	cb(begin, end, data, 0)
	return len(data), nil
}

// parseContentRange parses a "bytes a-b/total" Content-Range header value
// and returns the half-open range [a, b+1).
func parseContentRange(header string) (int64, int64, error) {
	const prefix = "bytes "
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, errors.Errorf("malformed Content-Range header: %s", header)
	}
	rangeAndTotal := strings.SplitN(header[len(prefix):], "/", 2)
	bounds := strings.SplitN(rangeAndTotal[0], "-", 2)
	if len(bounds) != 2 {
		return 0, 0, errors.Errorf("malformed Content-Range header: %s", header)
	}
	begin, err := strconv.ParseInt(bounds[0], 10, 64)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "malformed Content-Range header: %s", header)
	}
	last, err := strconv.ParseInt(bounds[1], 10, 64)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "malformed Content-Range header: %s", header)
	}
	return begin, last + 1, nil
}

// sliceRangesFromFullBody handles a server that ignored the Range header
// entirely and returned the full resource; the requested ranges are sliced
// out of it locally instead.
func sliceRangesFromFullBody(body io.Reader, ranges []Range, cb BatchCallback) (int, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, errors.Wrap(err, "unable to read response body")
	}

	var total int
	for _, r := range ranges {
		if r.End > int64(len(data)) {
			return total, errors.Errorf(
				"range [%d,%d) exceeds response body length %d", r.Begin, r.End, len(data),
			)
		}
		cb(r.Begin, r.End, data, r.Begin)
		total += int(r.Len())
	}
	return total, nil
}
