package reconciler

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"docsync/internal/conflict"
	"docsync/internal/remote/remotetest"
	"docsync/internal/shadowdb"
)

func newFixture(t *testing.T) (*Reconciler, *remotetest.Node, string) {
	t.Helper()
	localRoot := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "test.cmissync")

	db, err := shadowdb.Open(dbPath, localRoot, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	root := remotetest.NewRoot(time.Now())
	handler := conflict.New(nil)
	r := New(db, true, zerolog.Nop(), handler, ActivityListener{})
	return r, root, localRoot
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

// New remote folder appears: the whole subtree should be downloaded.
func TestSyncNewRemoteFolderDownloadsSubtree(t *testing.T) {
	r, root, localRoot := newFixture(t)

	docs := root.AddFolder("docs", time.Now())
	docs.AddFile("readme.txt", time.Now(), "hello")
	sub := docs.AddFolder("nested", time.Now())
	sub.AddFile("inner.txt", time.Now(), "world")

	client := remotetest.NewClient(root)
	remoteRoot, err := client.GetFolderByPath("")
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Sync(context.Background(), remoteRoot, localRoot); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, filepath.Join(localRoot, "docs", "readme.txt")); got != "hello" {
		t.Errorf("readme.txt = %q, want %q", got, "hello")
	}
	if got := readFile(t, filepath.Join(localRoot, "docs", "nested", "inner.txt")); got != "world" {
		t.Errorf("inner.txt = %q, want %q", got, "world")
	}
}

// Local file modified while remote is unchanged: a bidirectional sync
// should push the local edit up, with no conflict raised.
func TestSyncLocalModificationPushedWhenRemoteUnchanged(t *testing.T) {
	r, root, localRoot := newFixture(t)

	doc := root.AddFile("notes.txt", time.Now(), "v1")
	client := remotetest.NewClient(root)
	remoteRoot, _ := client.GetFolderByPath("")

	if err := r.Sync(context.Background(), remoteRoot, localRoot); err != nil {
		t.Fatal(err)
	}

	localPath := filepath.Join(localRoot, "notes.txt")
	if err := os.WriteFile(localPath, []byte("v2-local"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := r.Sync(context.Background(), remoteRoot, localRoot); err != nil {
		t.Fatal(err)
	}

	if doc.Content() != "v2-local" {
		t.Errorf("remote content = %q, want %q", doc.Content(), "v2-local")
	}
	if _, err := os.Stat(filepath.Join(localRoot, "notes_your-version.txt")); !os.IsNotExist(err) {
		t.Error("did not expect a conflict sibling for a non-conflicting push")
	}
}

// Concurrent modification: both sides changed since last sync. The
// local copy should be parked as a "_your-version" sibling and the
// remote content should win at the original path.
func TestSyncConcurrentModificationRaisesConflict(t *testing.T) {
	r, root, localRoot := newFixture(t)

	doc := root.AddFile("shared.txt", time.Now(), "base")
	client := remotetest.NewClient(root)
	remoteRoot, _ := client.GetFolderByPath("")

	if err := r.Sync(context.Background(), remoteRoot, localRoot); err != nil {
		t.Fatal(err)
	}

	localPath := filepath.Join(localRoot, "shared.txt")
	if err := os.WriteFile(localPath, []byte("local-edit"), 0o644); err != nil {
		t.Fatal(err)
	}
	doc.SetContent("remote-edit")
	doc.SetModTime(time.Now().Add(time.Hour))

	if err := r.Sync(context.Background(), remoteRoot, localRoot); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, localPath); got != "remote-edit" {
		t.Errorf("shared.txt = %q, want %q", got, "remote-edit")
	}
	sibling := filepath.Join(localRoot, "shared_your-version.txt")
	if got := readFile(t, sibling); got != "local-edit" {
		t.Errorf("conflict sibling = %q, want %q", got, "local-edit")
	}
}

// Local folder deletion should propagate to the remote side.
func TestSyncLocalFolderDeletionPropagatesRemotely(t *testing.T) {
	r, root, localRoot := newFixture(t)

	sub := root.AddFolder("archive", time.Now())
	sub.AddFile("old.txt", time.Now(), "stale")
	client := remotetest.NewClient(root)
	remoteRoot, _ := client.GetFolderByPath("")

	if err := r.Sync(context.Background(), remoteRoot, localRoot); err != nil {
		t.Fatal(err)
	}

	if err := os.RemoveAll(filepath.Join(localRoot, "archive")); err != nil {
		t.Fatal(err)
	}

	if err := r.Sync(context.Background(), remoteRoot, localRoot); err != nil {
		t.Fatal(err)
	}

	children, err := remoteRoot.Children()
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range children {
		if c.IsFolder && c.Folder.Name() == "archive" {
			t.Error("expected remote archive folder to be deleted")
		}
	}
}

// Remote folder deletion should propagate to the local side.
func TestSyncRemoteFolderDeletionPropagatesLocally(t *testing.T) {
	r, root, localRoot := newFixture(t)

	sub := root.AddFolder("reports", time.Now())
	sub.AddFile("q1.txt", time.Now(), "numbers")
	client := remotetest.NewClient(root)
	remoteRoot, _ := client.GetFolderByPath("")

	if err := r.Sync(context.Background(), remoteRoot, localRoot); err != nil {
		t.Fatal(err)
	}

	sub.Remove()

	if err := r.Sync(context.Background(), remoteRoot, localRoot); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(localRoot, "reports")); !os.IsNotExist(err) {
		t.Error("expected local reports folder to be removed")
	}
}

// A document with no content-stream filename carries nothing to write
// locally and must be skipped rather than erroring the whole pass.
func TestSyncSkipsDocumentWithoutFilename(t *testing.T) {
	r, root, localRoot := newFixture(t)
	root.AddFile("", time.Now(), "anonymous")

	client := remotetest.NewClient(root)
	remoteRoot, _ := client.GetFolderByPath("")

	if err := r.Sync(context.Background(), remoteRoot, localRoot); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(localRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no local entries, got %d", len(entries))
	}
}

// P2 (Idempotence): running Sync twice in a row with nothing changed on
// either side is a no-op.
func TestSyncIdempotentWhenNothingChanged(t *testing.T) {
	r, root, localRoot := newFixture(t)
	root.AddFile("stable.txt", time.Now(), "same")
	client := remotetest.NewClient(root)
	remoteRoot, _ := client.GetFolderByPath("")

	if err := r.Sync(context.Background(), remoteRoot, localRoot); err != nil {
		t.Fatal(err)
	}
	before := readFile(t, filepath.Join(localRoot, "stable.txt"))

	if err := r.Sync(context.Background(), remoteRoot, localRoot); err != nil {
		t.Fatal(err)
	}
	after := readFile(t, filepath.Join(localRoot, "stable.txt"))

	if before != after {
		t.Errorf("content changed across idempotent pass: %q -> %q", before, after)
	}
}

// The bidirectional flag's contract: a unilateral sync (bidirectional
// = false) never uploads local-only additions, and never pushes local
// edits.
func TestUnidirectionalSyncNeverUploads(t *testing.T) {
	localRoot := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "test.cmissync")
	db, err := shadowdb.Open(dbPath, localRoot, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	root := remotetest.NewRoot(time.Now())
	r := New(db, false, zerolog.Nop(), conflict.New(nil), ActivityListener{})
	client := remotetest.NewClient(root)
	remoteRoot, _ := client.GetFolderByPath("")

	if err := os.WriteFile(filepath.Join(localRoot, "local-only.txt"), []byte("mine"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := r.Sync(context.Background(), remoteRoot, localRoot); err != nil {
		t.Fatal(err)
	}

	children, err := remoteRoot.Children()
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 0 {
		t.Error("expected no remote upload in unidirectional mode")
	}
	if _, err := os.Stat(filepath.Join(localRoot, "local-only.txt")); err != nil {
		t.Error("expected local-only file to remain untouched")
	}
}

// Cancellation is honored between remote children (spec §5).
func TestSyncHonorsCancellation(t *testing.T) {
	r, root, localRoot := newFixture(t)
	root.AddFile("a.txt", time.Now(), "a")
	root.AddFile("b.txt", time.Now(), "b")

	client := remotetest.NewClient(root)
	remoteRoot, _ := client.GetFolderByPath("")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.Sync(ctx, remoteRoot, localRoot); err == nil {
		t.Fatal("expected cancellation error")
	}
}

// P1 (Convergence): starting from trees that disagree in both
// directions, enough bidirectional passes with no external mutation
// bring local and remote into agreement, with the Shadow DB recording
// a matching checksum and mod-time for every file.
func TestSyncConvergesAfterEnoughPasses(t *testing.T) {
	r, root, localRoot := newFixture(t)

	root.AddFile("remote-only.txt", time.Now(), "from-remote")
	if err := os.WriteFile(filepath.Join(localRoot, "local-only.txt"), []byte("from-local"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := remotetest.NewClient(root)
	remoteRoot, _ := client.GetFolderByPath("")

	// First pass downloads remote-only.txt and uploads local-only.txt;
	// a second pass observes both sides already agree.
	for i := 0; i < 2; i++ {
		if err := r.Sync(context.Background(), remoteRoot, localRoot); err != nil {
			t.Fatal(err)
		}
	}

	if got := readFile(t, filepath.Join(localRoot, "remote-only.txt")); got != "from-remote" {
		t.Errorf("remote-only.txt = %q, want %q", got, "from-remote")
	}

	children, err := remoteRoot.Children()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, c := range children {
		if !c.IsFolder && c.Document.Name() == "local-only.txt" {
			found = true
			stream, err := c.Document.ContentStream()
			if err != nil {
				t.Fatal(err)
			}
			data, err := io.ReadAll(stream)
			stream.Close()
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != "from-local" {
				t.Errorf("remote local-only.txt content = %q, want %q", data, "from-local")
			}
		}
	}
	if !found {
		t.Error("expected local-only.txt to have been uploaded to the remote")
	}

	for _, name := range []string{"remote-only.txt", "local-only.txt"} {
		path := filepath.Join(localRoot, name)
		if !r.db.ContainsFile(path) {
			t.Errorf("expected shadow DB record for %s", name)
		}
		if r.db.LocalFileHasChanged(path) {
			t.Errorf("expected %s to be recorded as unchanged after convergence", name)
		}
	}
}

// P3 (No silent data loss): for every local file present before a pass
// and absent after it, either the Shadow DB recorded it and the remote
// confirmed the deletion, or a "_your-version" sibling preserves the
// pre-pass content. This exercises the conflict branch of that
// guarantee: shared.txt disappears from its original path but its
// pre-pass bytes survive under the sibling.
func TestSyncNoSilentDataLossOnConflict(t *testing.T) {
	r, root, localRoot := newFixture(t)

	doc := root.AddFile("shared.txt", time.Now(), "base")
	client := remotetest.NewClient(root)
	remoteRoot, _ := client.GetFolderByPath("")

	if err := r.Sync(context.Background(), remoteRoot, localRoot); err != nil {
		t.Fatal(err)
	}

	localPath := filepath.Join(localRoot, "shared.txt")
	preContent := "local-edit-before-loss"
	if err := os.WriteFile(localPath, []byte(preContent), 0o644); err != nil {
		t.Fatal(err)
	}
	doc.SetContent("remote-edit")
	doc.SetModTime(time.Now().Add(time.Hour))

	if err := r.Sync(context.Background(), remoteRoot, localRoot); err != nil {
		t.Fatal(err)
	}

	sibling := filepath.Join(localRoot, "shared_your-version.txt")
	got := readFile(t, sibling)
	if got != preContent {
		t.Errorf("sibling content = %q, want pre-pass content %q", got, preContent)
	}
}

