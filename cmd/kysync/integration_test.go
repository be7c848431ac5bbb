package main

import (
	"bytes"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/kysync/kysync/internal/temppath"
	"github.com/kysync/kysync/pkg/process"
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

// buildKysync compiles the kysync binary into a temporary directory and
// returns its path. It's a process-lifecycle fixture: the rest of this test
// exercises the binary exactly as an end user would invoke it, rather than
// calling package functions directly.
func buildKysync(t *testing.T) string {
	t.Helper()
	dir := tempDir(t)
	binPath := filepath.Join(dir, "kysync")
	build := exec.Command("go", "build", "-o", binPath, ".")
	build.Dir = "."
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("unable to build kysync: %v\n%s", err, out)
	}
	return binPath
}

// runKysync runs the built binary with args, returning its exit code (via
// process.ExitCodeForProcessState when the process exited non-zero) and any
// non-exit-related error.
func runKysync(t *testing.T, binPath string, args ...string) (int, error) {
	t.Helper()
	cmd := exec.Command(binPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return -1, err
	}
	code, codeErr := process.ExitCodeForProcessState(exitErr.ProcessState)
	if codeErr != nil {
		return -1, codeErr
	}
	if stderr.Len() > 0 {
		t.Logf("kysync stderr: %s", stderr.String())
	}
	return code, nil
}

func TestPrepareAndSyncRoundTrip(t *testing.T) {
	binPath := buildKysync(t)
	dir := tempDir(t)

	inputPath := filepath.Join(dir, "input.bin")
	data := make([]byte, 37*1024+17)
	rand.New(rand.NewSource(1)).Read(data)
	if err := os.WriteFile(inputPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if code, err := runKysync(t, binPath, "prepare", "--input_filename", inputPath, "--block_size", "1024"); err != nil || code != 0 {
		t.Fatalf("prepare failed: code=%d err=%v", code, err)
	}

	outputPath := filepath.Join(dir, "output.bin")
	// The seed is the original file itself, so every full block is
	// reconstructed locally; only the final 17-byte partial block, which no
	// in-bounds block-sized seed window can match, is fetched.
	seedPath := inputPath
	code, err := runKysync(
		t, binPath, "sync",
		"--output_filename", outputPath,
		"--data_uri", "file://"+inputPath+".pzst",
		"--metadata_uri", "file://"+inputPath+".kysync",
		"--seed_data_uri", "file://"+seedPath,
	)
	if err != nil || code != 0 {
		t.Fatalf("sync failed: code=%d err=%v", code, err)
	}

	got, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("reconstructed output does not match original input")
	}
}

func TestSyncMissingOutputFilenameFails(t *testing.T) {
	binPath := buildKysync(t)
	code, err := runKysync(t, binPath, "sync", "--data_uri", "file:///nonexistent")
	if err != nil {
		t.Fatal(err)
	}
	if code == 0 {
		t.Fatalf("expected non-zero exit code for missing --output_filename")
	}
}
