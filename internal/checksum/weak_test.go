package checksum

import "testing"

func TestWeakNumericAnchor(t *testing.T) {
	got := Weak([]byte("0123456789"), 10)
	const want = 183829005
	if got != want {
		t.Fatalf("Weak(%q, 10) = %d, want %d", "0123456789", got, want)
	}
}

// TestWeakRollMatchesDirectComputation checks that every full in-bounds
// window WeakRoll visits over a byte sequence produces the same checksum as
// computing it directly from scratch with Weak.
func TestWeakRollMatchesDirectComputation(t *testing.T) {
	const n = 4
	data := []byte("abcdefghijklmnop")

	buf := make([]byte, 2*n)
	var running uint32
	total := len(data)

	for stepBeg := 0; stepBeg < total; stepBeg += n {
		if stepBeg == 0 {
			for i := 0; i < n; i++ {
				buf[i] = 0
			}
		} else {
			copy(buf[:n], data[stepBeg-n:stepBeg])
		}
		copy(buf[n:2*n], data[stepBeg:stepBeg+n])

		running = WeakRoll(buf, n, running, func(offset int, wcs uint32) {
			windowStart := stepBeg + offset
			if windowStart < 0 || windowStart+n > total {
				return
			}
			want := Weak(data[windowStart:], n)
			if wcs != want {
				t.Errorf("window at %d: WeakRoll gave %d, direct Weak gave %d", windowStart, wcs, want)
			}
		})
	}
}
