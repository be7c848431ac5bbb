package checksum

import (
	"bytes"
	"testing"
)

func TestStrongStringAnchor(t *testing.T) {
	got := Compute([]byte("0123456789"), 10).String()
	const want = "e353667619ec664b49655fc9692165fb"
	if got != want {
		t.Fatalf("Compute(%q, 10).String() = %q, want %q", "0123456789", got, want)
	}
}

func TestBuilderMatchesOneShot(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	oneShot := Compute(data, len(data))

	b := NewBuilder()
	b.Update(data[:10])
	b.Update(data[10:])
	streamed := b.Digest()

	if !oneShot.Equal(streamed) {
		t.Fatalf("Builder digest %s does not match one-shot digest %s", streamed, oneShot)
	}
}

func TestComputeStream(t *testing.T) {
	data := bytes.Repeat([]byte("xyz"), 100000)
	want := Compute(data, len(data))

	got, err := ComputeStream(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(want) {
		t.Fatalf("ComputeStream digest %s does not match one-shot digest %s", got, want)
	}
}
