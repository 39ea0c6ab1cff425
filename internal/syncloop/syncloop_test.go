package syncloop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"docsync/internal/remote"
	"docsync/internal/remote/remotetest"
)

func TestSyncInBackgroundSkipsWhenAlreadySyncing(t *testing.T) {
	w := &Worker{Logger: zerolog.Nop()}
	w.syncing.Store(true)

	var ran atomic.Bool
	w.Sync = func(ctx context.Context, remoteRoot remote.Folder, localRoot string) error {
		ran.Store(true)
		return nil
	}

	w.syncInBackground(context.Background(), zerolog.Nop())
	time.Sleep(20 * time.Millisecond)

	if ran.Load() {
		t.Error("expected second sync to be skipped while one is in flight")
	}
}

func TestConnectSucceedsOnFirstAttempt(t *testing.T) {
	root := remotetest.NewRoot(time.Now())
	client := remotetest.NewClient(root)

	w := &Worker{Client: client, RemoteRoot: "", Logger: zerolog.Nop()}

	folder, err := w.connect(context.Background(), zerolog.Nop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if folder == nil {
		t.Fatal("expected a non-nil folder handle")
	}
	if client.ConnectHits != 1 {
		t.Errorf("ConnectHits = %d, want 1", client.ConnectHits)
	}
}

// connectRetryDelay is a 10s production constant; a test that waits
// out a real retry would be slow, so cancellation (below) is used to
// exercise the retry loop's exit path without the full back-off.

func TestConnectCachesSessionAcrossCalls(t *testing.T) {
	root := remotetest.NewRoot(time.Now())
	client := remotetest.NewClient(root)
	w := &Worker{Client: client, RemoteRoot: "", Logger: zerolog.Nop()}

	ctx := context.Background()
	if _, err := w.connect(ctx, zerolog.Nop()); err != nil {
		t.Fatal(err)
	}
	if _, err := w.connect(ctx, zerolog.Nop()); err != nil {
		t.Fatal(err)
	}

	if client.ConnectHits != 1 {
		t.Errorf("ConnectHits = %d, want 1 (session should be cached)", client.ConnectHits)
	}
}

func TestConnectAbortsOnCancellation(t *testing.T) {
	root := remotetest.NewRoot(time.Now())
	client := remotetest.NewClient(root)
	client.ConnectErr = errors.New("network down")

	w := &Worker{Client: client, RemoteRoot: "", Logger: zerolog.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := w.connect(ctx, zerolog.Nop()); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestPauseResumeStatus(t *testing.T) {
	w := &Worker{Logger: zerolog.Nop()}
	if w.Status().Paused {
		t.Fatal("expected not paused initially")
	}
	w.Pause()
	if !w.Status().Paused {
		t.Error("expected paused after Pause()")
	}
	w.Resume()
	if w.Status().Paused {
		t.Error("expected not paused after Resume()")
	}
}
