package ioreader

import (
	"testing"

	"github.com/kysync/kysync/internal/testhttp"
)

func TestHTTPReaderSize(t *testing.T) {
	srv := testhttp.New([]byte("0123456789"))
	defer srv.Close()

	r, err := NewHTTPReader(srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPReader failed: %v", err)
	}
	size, err := r.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 10 {
		t.Fatalf("Size() = %d, want 10", size)
	}
}

func TestHTTPReaderSingleRange(t *testing.T) {
	srv := testhttp.New([]byte("0123456789"))
	defer srv.Close()

	r, err := NewHTTPReader(srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPReader failed: %v", err)
	}

	buf := make([]byte, 3)
	n, err := r.Read(buf, 2, 3)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != 3 || string(buf) != "234" {
		t.Fatalf("Read = %q (n=%d), want %q", buf, n, "234")
	}
}

// TestHTTPReaderMultiRangeSplit exercises the multipart/byteranges path: a
// batch of 3 ranges over "0123456789" split as [1,4), [5,8), [9,10) should
// come back as three callbacks carrying "123", "567", and "9".
func TestHTTPReaderMultiRangeSplit(t *testing.T) {
	srv := testhttp.New([]byte("0123456789"))
	defer srv.Close()

	r, err := NewHTTPReader(srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPReader failed: %v", err)
	}

	ranges := []Range{
		{Begin: 1, End: 4},
		{Begin: 5, End: 8},
		{Begin: 9, End: 10},
	}
	want := []string{"123", "567", "9"}

	var got []string
	err = r.ReadBatch(ranges, func(begin, end int64, buffer []byte, bufferOffset int64) {
		got = append(got, string(buffer[bufferOffset:bufferOffset+(end-begin)]))
	})
	if err != nil {
		t.Fatalf("ReadBatch failed: %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("got %d callbacks, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("callback %d = %q, want %q", i, got[i], want[i])
		}
	}

	if r.TotalReads() != 1 {
		t.Fatalf("TotalReads() = %d, want 1 (one batched request)", r.TotalReads())
	}
	if r.TotalBytesRead() != 7 {
		t.Fatalf("TotalBytesRead() = %d, want 7", r.TotalBytesRead())
	}
}
