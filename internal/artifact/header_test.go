package artifact

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{
		Version:   CurrentVersion,
		Size:      123456,
		BlockSize: 1024,
		Hash:      "e353667619ec664b49655fc9692165fb",
	}

	buf := Encode(h)

	got, n, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Decode consumed %d bytes, want %d", n, len(buf))
	}
	if got != h {
		t.Fatalf("Decode = %+v, want %+v", got, h)
	}
}

func TestDecodeConsumesOnlyTheHeaderPrefix(t *testing.T) {
	h := Header{Version: 2, Size: 10, BlockSize: 4, Hash: "abc"}
	buf := Encode(h)

	trailing := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	buf = append(buf, trailing...)

	got, n, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != h {
		t.Fatalf("Decode = %+v, want %+v", got, h)
	}
	if n != len(buf)-len(trailing) {
		t.Fatalf("Decode consumed %d bytes, want %d (trailing data must be left alone)", n, len(buf)-len(trailing))
	}
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	h := Header{Version: 2, Size: 10, BlockSize: 4, Hash: "abc"}
	buf := Encode(h)

	if _, _, err := Decode(buf[:len(buf)-2]); err == nil {
		t.Fatal("expected Decode to reject a truncated header")
	}
}

func TestDecodeRejectsMissingRequiredField(t *testing.T) {
	// An empty message (zero-length varint prefix, no fields) is missing
	// every required field.
	buf := []byte{0}
	if _, _, err := Decode(buf); err == nil {
		t.Fatal("expected Decode to reject a header with no fields")
	}
}

// TestDecodeRejectsUnknownField builds a header message with a field number
// none of the known fields use and confirms Decode fails loudly instead of
// silently skipping it.
func TestDecodeRejectsUnknownField(t *testing.T) {
	h := Header{Version: 2, Size: 10, BlockSize: 4, Hash: "abc"}
	buf := Encode(h)

	// Splice an extra field (number 99) into the message body, then rewrite
	// the length-delimited prefix to match.
	msgLen, n := protowire.ConsumeVarint(buf)
	msg := buf[n : n+int(msgLen)]

	msg = protowire.AppendTag(msg, 99, protowire.VarintType)
	msg = protowire.AppendVarint(msg, 7)

	var out []byte
	out = protowire.AppendVarint(out, uint64(len(msg)))
	out = append(out, msg...)

	if _, _, err := Decode(out); err == nil {
		t.Fatal("expected Decode to reject a header with an unknown field")
	}
}
