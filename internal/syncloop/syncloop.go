// Package syncloop is the single background worker per synced folder:
// it owns the "syncing" single-flight guard, the retrying connect, and
// the trigger plumbing (fsnotify + a poll-fallback ticker) that calls
// into internal/reconciler (spec §4.5).
package syncloop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"docsync/internal/remote"
)

// connectRetryDelay is the fixed back-off between connect() attempts.
// Unlike the teacher's MaxRetryAttempts, a failed connect is retried
// indefinitely (spec §4.5) — there is no terminal give-up state.
const connectRetryDelay = 10 * time.Second

// pollInterval is the fallback trigger when no local filesystem event
// arrives, so a remote-only change still gets picked up eventually.
const pollInterval = 30 * time.Second

// Worker runs one folder's sync loop. One Worker per configured folder
// (spec §5); workers share nothing but the process-wide logger.
type Worker struct {
	Name          string
	LocalRoot     string
	RemoteRoot    string
	Client        remote.Client
	Logger        zerolog.Logger
	Sync          func(ctx context.Context, remoteRoot remote.Folder, localRoot string) error
	OnStatusChange func(Status)

	syncing   atomic.Bool
	mu        sync.RWMutex
	session   remote.Folder
	paused    atomic.Bool
	lastErr   error
	lastPass  time.Time
	connected bool
}

// Status is a point-in-time snapshot for the HTTP control API.
type Status struct {
	Paused     bool
	Connected  bool
	LastPassAt time.Time
	LastError  string
}

// Status returns a snapshot of the worker's current state.
func (w *Worker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := Status{Paused: w.paused.Load(), Connected: w.connected, LastPassAt: w.lastPass}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// Pause stops new passes from starting. A pass already in flight runs
// to completion.
func (w *Worker) Pause() { w.paused.Store(true) }

// Resume allows new passes to start again.
func (w *Worker) Resume() { w.paused.Store(false) }

// Run drives the worker until ctx is canceled: it watches LocalRoot for
// changes, polls on a fallback interval, and collapses bursts of
// triggers into at most one pending sync via a size-1 channel.
func (w *Worker) Run(ctx context.Context) error {
	logger := w.Logger.With().Str("folder", w.Name).Logger()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.LocalRoot); err != nil {
		logger.Error().Err(err).Msg("failed to watch local root; falling back to poll-only")
	}

	trigger := make(chan struct{}, 1)
	notify := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	notify() // run once on startup

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				notify()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				continue
			}
			logger.Error().Err(err).Msg("filesystem watcher error")

		case <-ticker.C:
			notify()

		case <-trigger:
			if w.paused.Load() {
				continue
			}
			w.syncInBackground(ctx, logger)
		}
	}
}

// syncInBackground implements the "syncing" single-flight guard (spec
// §4.5): it returns immediately if a pass is already running.
func (w *Worker) syncInBackground(ctx context.Context, logger zerolog.Logger) {
	if !w.syncing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer w.syncing.Store(false)
		w.runOnePass(ctx, logger)
	}()
}

func (w *Worker) runOnePass(ctx context.Context, logger zerolog.Logger) {
	remoteRoot, err := w.connect(ctx, logger)
	if err != nil {
		// connect only returns a non-nil error when ctx was canceled
		// mid-retry; any remote failure is retried internally.
		return
	}

	err = w.Sync(ctx, remoteRoot, w.LocalRoot)

	w.mu.Lock()
	w.lastPass = time.Now()
	w.lastErr = err
	w.mu.Unlock()

	if err != nil {
		logger.Error().Err(err).Msg("sync pass aborted")
		if remote.IsRuntime(err) {
			// The cached session is no longer trustworthy; drop it so
			// the next pass reconnects instead of reusing a dead handle.
			w.mu.Lock()
			w.session = nil
			w.connected = false
			w.mu.Unlock()
		}
		return
	}
	logger.Info().Msg("sync pass completed")

	if w.OnStatusChange != nil {
		w.OnStatusChange(w.Status())
	}
}

// connect returns a cached session if one exists, otherwise calls
// Client.Connect and retries indefinitely with a fixed back-off on any
// runtime-kind error (spec §4.5). Only context cancellation can abort
// the retry loop early.
func (w *Worker) connect(ctx context.Context, logger zerolog.Logger) (remote.Folder, error) {
	w.mu.RLock()
	cached := w.session
	w.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := w.Client.Connect(); err != nil {
			logger.Warn().Err(err).Dur("retryIn", connectRetryDelay).Msg("connect failed; retrying")
			select {
			case <-time.After(connectRetryDelay):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		folder, err := w.Client.GetFolderByPath(w.RemoteRoot)
		if err != nil {
			logger.Warn().Err(err).Dur("retryIn", connectRetryDelay).Msg("resolving remote root failed; retrying")
			select {
			case <-time.After(connectRetryDelay):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		w.mu.Lock()
		w.session = folder
		w.connected = true
		w.mu.Unlock()
		return folder, nil
	}
}
