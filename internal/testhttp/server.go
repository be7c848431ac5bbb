// Package testhttp implements a minimal HTTP server, backed by an in-memory
// byte slice, that understands single- and multi-range requests well enough
// to exercise HTTPReader in tests without depending on a real file server.
package testhttp

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
)

// Server wraps an httptest.Server serving a single fixed-content resource at
// "/".
type Server struct {
	*httptest.Server
	data []byte
}

// New starts a test server serving data.
func New(data []byte) *Server {
	s := &Server{data: data}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Accept-Ranges", "bytes")

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.Itoa(len(s.data)))
		w.WriteHeader(http.StatusOK)
		return
	}

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.Itoa(len(s.data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(s.data)
		return
	}

	ranges, ok := parseRangeHeader(rangeHeader, len(s.data))
	if !ok || len(ranges) == 0 {
		http.Error(w, "invalid range", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	if len(ranges) == 1 {
		begin, end := ranges[0][0], ranges[0][1]
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", begin, end-1, len(s.data)))
		w.Header().Set("Content-Length", strconv.Itoa(int(end-begin)))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(s.data[begin:end])
		return
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, rr := range ranges {
		begin, end := rr[0], rr[1]
		part, _ := mw.CreatePart(map[string][]string{
			"Content-Range": {fmt.Sprintf("bytes %d-%d/%d", begin, end-1, len(s.data))},
		})
		_, _ = part.Write(s.data[begin:end])
	}
	_ = mw.Close()

	w.Header().Set("Content-Type", "multipart/byteranges; boundary="+mw.Boundary())
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusPartialContent)
	_, _ = w.Write(buf.Bytes())
}

// parseRangeHeader parses a "bytes=a1-b1,a2-b2,..." header into half-open
// [begin,end) pairs.
func parseRangeHeader(header string, size int) ([][2]int64, bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil, false
	}

	var ranges [][2]int64
	for _, spec := range strings.Split(header[len(prefix):], ",") {
		bounds := strings.SplitN(strings.TrimSpace(spec), "-", 2)
		if len(bounds) != 2 {
			return nil, false
		}
		begin, err := strconv.ParseInt(bounds[0], 10, 64)
		if err != nil {
			return nil, false
		}
		last, err := strconv.ParseInt(bounds[1], 10, 64)
		if err != nil {
			return nil, false
		}
		if begin < 0 || last >= int64(size) || begin > last {
			return nil, false
		}
		ranges = append(ranges, [2]int64{begin, last + 1})
	}
	return ranges, true
}
