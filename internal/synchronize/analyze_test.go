package synchronize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kysync/kysync/internal/observability"
	"github.com/kysync/kysync/internal/prepare"
)

// buildMetadata runs the prepare pipeline over content with the given block
// size and returns the parsed metadata, ready for analyzeSeed.
func buildMetadata(t *testing.T, content []byte, blockSize int64) (*metadata, string) {
	t.Helper()
	dir := tempDir(t)
	inputPath := filepath.Join(dir, "input")
	if err := os.WriteFile(inputPath, content, 0o644); err != nil {
		t.Fatal(err)
	}
	metadataPath := filepath.Join(dir, "input.kysync")
	compressedPath := filepath.Join(dir, "input.pzst")

	p := prepare.New(inputPath, metadataPath, compressedPath, blockSize, 2, nil)
	if code, err := p.Run(); err != nil || code != 0 {
		t.Fatalf("prepare failed: code=%d err=%v", code, err)
	}

	m, err := readMetadata("file://" + metadataPath)
	if err != nil {
		t.Fatalf("readMetadata failed: %v", err)
	}
	return m, dir
}

func writeSeed(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "seed")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runAnalyze(t *testing.T, m *metadata, seedPath string) []int64 {
	t.Helper()
	p := &Pipeline{Threads: 2, Observable: observability.New("test")}
	var mtx metrics
	if err := p.analyzeSeed("file://"+seedPath, m, &mtx); err != nil {
		t.Fatalf("analyzeSeed failed: %v", err)
	}
	return m.seedOffsets
}

func TestAnalyzeSeedIdenticalContent(t *testing.T) {
	m, dir := buildMetadata(t, []byte("0123456789"), 10)
	seedPath := writeSeed(t, dir, "0123456789")

	offsets := runAnalyze(t, m, seedPath)
	want := []int64{0}
	for i, w := range want {
		if offsets[i] != w {
			t.Fatalf("seedOffsets[%d] = %d, want %d", i, offsets[i], w)
		}
	}
}

func TestAnalyzeSeedShiftedMatch(t *testing.T) {
	// Two 4-byte blocks ("0123","4567"), plus a short final block ("89"),
	// found at offsets 1 and 8 of a seed that has different leading/trailing
	// noise.
	m, dir := buildMetadata(t, []byte("0123456789"), 4)
	seedPath := writeSeed(t, dir, "001234004567")

	offsets := runAnalyze(t, m, seedPath)
	if offsets[0] != 1 {
		t.Fatalf("seedOffsets[0] = %d, want 1", offsets[0])
	}
	if offsets[1] != 8 {
		t.Fatalf("seedOffsets[1] = %d, want 8", offsets[1])
	}
	if offsets[2] != invalidOffset {
		t.Fatalf("seedOffsets[2] = %d, want invalidOffset (no matching final block in seed)", offsets[2])
	}
}

func TestAnalyzeSeedEmptySeedFindsNothing(t *testing.T) {
	m, dir := buildMetadata(t, []byte("12345678"), 4)
	seedPath := writeSeed(t, dir, "")

	offsets := runAnalyze(t, m, seedPath)
	for i, off := range offsets {
		if off != invalidOffset {
			t.Fatalf("seedOffsets[%d] = %d, want invalidOffset", i, off)
		}
	}
}

// TestAnalyzeSeedCollisionStillReconstructs exercises a seed scan where every
// block of the target has an identical weak/strong checksum (all blocks are
// "1234"). The analysis map keeps only the most recently indexed block per
// checksum, so at most one index's seedOffset is ever filled in directly from
// the scan; any other colliding block is left to be fetched from the data
// source during reconstruction. Either way the final reconstructed content
// must still be byte-identical to the original, which is what this test
// actually asserts.
func TestAnalyzeSeedCollisionStillReconstructs(t *testing.T) {
	content := []byte(repeatString("1234", 1024))
	m, dir := buildMetadata(t, content, 4)
	seedPath := writeSeed(t, dir, "1234")

	offsets := runAnalyze(t, m, seedPath)

	foundAtLeastOne := false
	for _, off := range offsets {
		if off == 0 {
			foundAtLeastOne = true
		} else if off != invalidOffset {
			t.Fatalf("unexpected seed offset %d (seed is only 4 bytes long)", off)
		}
	}
	if !foundAtLeastOne {
		t.Fatal("expected at least one block to resolve to seed offset 0")
	}

	outputPath := filepath.Join(dir, "output")
	p := New("file://"+filepath.Join(dir, "input.kysync"), "file://"+filepath.Join(dir, "input.pzst"), "file://"+seedPath, outputPath, 2, 4, false, nil)
	if code, err := p.Run(); err != nil || code != 0 {
		t.Fatalf("Run failed: code=%d err=%v", code, err)
	}
	got, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatal("reconstructed output does not match original content")
	}
}

func repeatString(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
