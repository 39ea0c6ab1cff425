package shadowdb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	root := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "test.cmissync")

	db, err := Open(dbPath, root, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db, root
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	abs := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return abs
}

func TestAddAndGetFile(t *testing.T) {
	db, root := newTestDB(t)
	abs := writeFile(t, root, "a/x.txt", "hello")
	modTime := time.Now().Truncate(time.Second)

	if err := db.AddFile(abs, modTime); err != nil {
		t.Fatal(err)
	}

	if !db.ContainsFile(abs) {
		t.Fatal("expected file record to exist")
	}

	got, ok := db.GetServerModTime(abs)
	if !ok {
		t.Fatal("expected mod time to be recorded")
	}
	if !got.Equal(modTime) {
		t.Errorf("mod time = %v, want %v", got, modTime)
	}
}

func TestLocalFileHasChanged(t *testing.T) {
	db, root := newTestDB(t)
	abs := writeFile(t, root, "x.txt", "v1")

	if !db.LocalFileHasChanged(abs) {
		t.Fatal("expected change=true with no prior record")
	}

	if err := db.AddFile(abs, time.Now()); err != nil {
		t.Fatal(err)
	}
	if db.LocalFileHasChanged(abs) {
		t.Fatal("expected unchanged right after AddFile")
	}

	writeFile(t, root, "x.txt", "v2")
	if !db.LocalFileHasChanged(abs) {
		t.Fatal("expected change=true after content modified")
	}
}

func TestRemoveFileNoopIfAbsent(t *testing.T) {
	db, root := newTestDB(t)
	abs := filepath.Join(root, "missing.txt")
	if err := db.RemoveFile(abs); err != nil {
		t.Fatal(err)
	}
}

func TestRemoveFolderCascades(t *testing.T) {
	db, root := newTestDB(t)

	folderAbs := filepath.Join(root, "A")
	fileAbs := writeFile(t, root, "A/x.txt", "hi")
	subfolderAbs := filepath.Join(root, "A", "B")
	subfileAbs := writeFile(t, root, "A/B/y.txt", "hi2")

	if err := db.AddFolder(folderAbs, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := db.AddFolder(subfolderAbs, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := db.AddFile(fileAbs, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := db.AddFile(subfileAbs, time.Now()); err != nil {
		t.Fatal(err)
	}

	if err := db.RemoveFolder(folderAbs); err != nil {
		t.Fatal(err)
	}

	if db.ContainsFolder(folderAbs) || db.ContainsFolder(subfolderAbs) {
		t.Error("expected folder and subfolder records to be gone")
	}
	if db.ContainsFile(fileAbs) || db.ContainsFile(subfileAbs) {
		t.Error("expected file records under the removed folder to cascade")
	}
}

func TestRemoveFolderDoesNotTouchSiblingWithSharedPrefix(t *testing.T) {
	db, root := newTestDB(t)

	aAbs := filepath.Join(root, "A")
	aExtraAbs := filepath.Join(root, "A-extra")
	aExtraFile := writeFile(t, root, "A-extra/z.txt", "z")

	if err := db.AddFolder(aAbs, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := db.AddFolder(aExtraAbs, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := db.AddFile(aExtraFile, time.Now()); err != nil {
		t.Fatal(err)
	}

	if err := db.RemoveFolder(aAbs); err != nil {
		t.Fatal(err)
	}

	if !db.ContainsFolder(aExtraAbs) {
		t.Error("sibling folder with shared prefix must survive cascade")
	}
	if !db.ContainsFile(aExtraFile) {
		t.Error("file under sibling folder must survive cascade")
	}
}
