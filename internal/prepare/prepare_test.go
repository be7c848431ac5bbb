package prepare

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/kysync/kysync/internal/artifact"
	"github.com/kysync/kysync/internal/checksum"
	"github.com/kysync/kysync/internal/codec"
	"github.com/kysync/kysync/internal/temppath"
)

// tempDir creates a uniquely-named scratch directory via internal/temppath
// and arranges for it to be removed when the test completes.
func tempDir(t *testing.T) string {
	t.Helper()
	p, err := temppath.New("")
	if err != nil {
		t.Fatalf("unable to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		if err := p.Remove(); err != nil {
			t.Logf("unable to remove temp dir: %v", err)
		}
	})
	return p.Get()
}

func TestRunProducesConsistentArtifact(t *testing.T) {
	dir := tempDir(t)
	content := make([]byte, 10*1024+37)
	rand.New(rand.NewSource(3)).Read(content)

	inputPath := filepath.Join(dir, "input")
	if err := os.WriteFile(inputPath, content, 0o644); err != nil {
		t.Fatal(err)
	}
	metadataPath := filepath.Join(dir, "input.kysync")
	compressedPath := filepath.Join(dir, "input.pzst")

	p := New(inputPath, metadataPath, compressedPath, 1024, 4, nil)
	code, err := p.Run()
	if err != nil || code != 0 {
		t.Fatalf("Run failed: code=%d err=%v", code, err)
	}

	metaBytes, err := os.ReadFile(metadataPath)
	if err != nil {
		t.Fatal(err)
	}
	header, consumed, err := artifact.Decode(metaBytes)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if header.Size != int64(len(content)) {
		t.Fatalf("header.Size = %d, want %d", header.Size, len(content))
	}
	if header.BlockSize != 1024 {
		t.Fatalf("header.BlockSize = %d, want 1024", header.BlockSize)
	}
	want := checksum.Compute(content, len(content)).String()
	if header.Hash != want {
		t.Fatalf("header.Hash = %s, want %s", header.Hash, want)
	}

	blockCount := (header.Size + header.BlockSize - 1) / header.BlockSize
	rest := metaBytes[consumed:]
	weakSize := int(blockCount) * 4
	strongSize := int(blockCount) * 16
	csizeSize := int(blockCount) * 8
	if len(rest) != weakSize+strongSize+csizeSize {
		t.Fatalf("packed arrays length = %d, want %d", len(rest), weakSize+strongSize+csizeSize)
	}

	// The compressed payload file must decompress back to the exact original
	// content when sliced at each block's prefix-sum offset.
	compressed, err := os.ReadFile(compressedPath)
	if err != nil {
		t.Fatal(err)
	}
	csize, err := artifact.ReadCSize(bytes.NewReader(rest[weakSize+strongSize:]), int(blockCount))
	if err != nil {
		t.Fatal(err)
	}

	var offset int64
	var reconstructed []byte
	for i, c := range csize {
		frame := compressed[offset : offset+c]
		blockSize := header.BlockSize
		if int64(i) == blockCount-1 {
			if rem := header.Size % header.BlockSize; rem != 0 {
				blockSize = rem
			}
		}
		decompressed, err := codec.Decompress(frame, int(blockSize))
		if err != nil {
			t.Fatalf("Decompress block %d failed: %v", i, err)
		}
		reconstructed = append(reconstructed, decompressed...)
		offset += c
	}
	if string(reconstructed) != string(content) {
		t.Fatal("decompressing every block in sequence does not reproduce the original content")
	}
}

func TestRunOnEmptyFile(t *testing.T) {
	dir := tempDir(t)
	inputPath := filepath.Join(dir, "empty")
	if err := os.WriteFile(inputPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	metadataPath := filepath.Join(dir, "empty.kysync")
	compressedPath := filepath.Join(dir, "empty.pzst")

	p := New(inputPath, metadataPath, compressedPath, 1024, 2, nil)
	code, err := p.Run()
	if err != nil || code != 0 {
		t.Fatalf("Run failed on empty input: code=%d err=%v", code, err)
	}

	metaBytes, err := os.ReadFile(metadataPath)
	if err != nil {
		t.Fatal(err)
	}
	header, _, err := artifact.Decode(metaBytes)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if header.Size != 0 {
		t.Fatalf("header.Size = %d, want 0", header.Size)
	}
}
