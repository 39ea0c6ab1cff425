// Package conflict implements the local side of a sync conflict: parking
// the locally-modified copy under a unique sibling name and notifying
// whoever is listening (spec §4.7).
package conflict

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// suffix is appended to the original basename before the disambiguating
// " (N)" counter, per spec §6.
const suffix = "_your-version"

// SuffixIfAbsent returns path unchanged if nothing exists there yet;
// otherwise it inserts " (1)", " (2)", ... before the extension and
// returns the first such name that is free ("x.txt" -> "x (1).txt").
// The counter is never appended after the extension. Used both to build the "_your-version" name and, defensively,
// to avoid clobbering an existing file with that exact name.
func SuffixIfAbsent(path string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	} else if err != nil {
		return "", err
	}

	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]

	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}
}

// VersionSiblingName builds "<original>_your-version" (extension
// preserved) and, if that collides, disambiguates via SuffixIfAbsent.
func VersionSiblingName(path string) (string, error) {
	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]
	return SuffixIfAbsent(base + suffix + ext)
}

// Record is the notification payload delivered to Handler.OnConflict
// and the persisted ledger row a UI can list historically (SPEC_FULL
// §3 conflict ledger, grounded in the pack's conflict-tracking repos).
type Record struct {
	ID          string
	Path        string
	SavedAsPath string
	DetectedAt  time.Time
}

// Handler parks the locally-modified file and notifies a listener.
// The core never owns a dialog box (spec §9): it only calls a callback.
type Handler struct {
	OnConflict func(record Record)
}

// New builds a Handler with the given notification callback. A nil
// callback is legal — the rename still happens, just silently.
func New(onConflict func(record Record)) *Handler {
	return &Handler{OnConflict: onConflict}
}

// Resolve renames localPath to its "_your-version" sibling and returns
// the path it was saved under, so the caller can overwrite localPath
// with the remote content. It does not notify: the notification only
// fires once the remote content has actually landed, via Notify.
func (h *Handler) Resolve(localPath string) (string, error) {
	savedAs, err := VersionSiblingName(localPath)
	if err != nil {
		return "", fmt.Errorf("conflict: computing sibling name for %s: %w", localPath, err)
	}

	if err := os.Rename(localPath, savedAs); err != nil {
		return "", fmt.Errorf("conflict: renaming %s to %s: %w", localPath, savedAs, err)
	}

	return savedAs, nil
}

// Notify raises the conflict notification for a parked local copy. The
// caller invokes this only after the remote content has been downloaded
// successfully, so a subscriber never learns of a conflict that the
// engine failed to actually resolve.
func (h *Handler) Notify(localPath, savedAs string) {
	if h.OnConflict == nil {
		return
	}
	h.OnConflict(Record{
		ID:          uuid.NewString(),
		Path:        localPath,
		SavedAsPath: savedAs,
		DetectedAt:  time.Now(),
	})
}
