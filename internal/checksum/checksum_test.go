package checksum

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStableAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	h1, err := File(path)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := File(path)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("hash not stable: %s != %s", h1, h2)
	}
}

func TestFileDiffersOnContentChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	h1, err := File(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	h2, err := File(path)
	if err != nil {
		t.Fatal(err)
	}

	if h1 == h2 {
		t.Error("expected different hashes for different content")
	}
}

func TestFileMissingReturnsIOError(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "missing.txt"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	var ioErr *ErrIO
	if !asErrIO(err, &ioErr) {
		t.Errorf("expected *ErrIO, got %T", err)
	}
}

func asErrIO(err error, target **ErrIO) bool {
	e, ok := err.(*ErrIO)
	if ok {
		*target = e
	}
	return ok
}
