// Package reconciler is the core of the sync engine: the crawl-and-compare
// algorithm that decides, for every local and remote entry, whether to
// download, upload, update, delete, or flag a conflict (spec §4.4).
package reconciler

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"docsync/internal/conflict"
	"docsync/internal/remote"
	"docsync/internal/shadowdb"
)

// ActivityListener decouples the engine from any UI: it is called around
// each pass so a caller can drive an activity indicator (spec §9).
type ActivityListener struct {
	Started func()
	Stopped func()
}

// Reconciler runs one crawl-and-compare pass at a time. It is not
// reentrant — callers serialize invocations of Sync via internal/syncloop.
type Reconciler struct {
	db            *shadowdb.DB
	bidirectional bool
	logger        zerolog.Logger
	conflicts     *conflict.Handler
	activity      ActivityListener
}

// New builds a Reconciler. bidirectional controls whether Phases LF/LD
// push local additions and modifications to the remote (spec §9: this
// is a per-folder config option, not a compile-time constant).
func New(db *shadowdb.DB, bidirectional bool, logger zerolog.Logger, conflicts *conflict.Handler, activity ActivityListener) *Reconciler {
	return &Reconciler{
		db:            db,
		bidirectional: bidirectional,
		logger:        logger.With().Str("component", "reconciler").Logger(),
		conflicts:     conflicts,
		activity:      activity,
	}
}

// Sync runs one full pass rooted at remoteRoot/localRoot to completion,
// or until a remote error propagates. Cancellation via ctx is honored
// between remote children of every folder crawled in Phase R (spec §5);
// a Phase D download of a new remote subtree is not interrupted.
func (r *Reconciler) Sync(ctx context.Context, remoteRoot remote.Folder, localRoot string) error {
	if r.activity.Started != nil {
		r.activity.Started()
	}
	defer func() {
		if r.activity.Stopped != nil {
			r.activity.Stopped()
		}
	}()

	if err := os.MkdirAll(localRoot, 0o755); err != nil {
		return err
	}

	return r.syncFolder(ctx, remoteRoot, localRoot)
}

// syncFolder implements Phase R (remote crawl) followed by Phase LF and
// Phase LD (local crawls) for one directory level. Subfolder recursion
// happens within Phase R, before Phase LF/LD run for this level (spec
// §4.4 "Ordering").
func (r *Reconciler) syncFolder(ctx context.Context, remoteFolder remote.Folder, localFolder string) error {
	remoteSubfolderNames := make(map[string]struct{})
	remoteFileNames := make(map[string]struct{})

	children, err := remoteFolder.Children()
	if err != nil {
		return err
	}

	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return err
		}

		if child.IsFolder {
			if err := r.handleRemoteFolderChild(ctx, child.Folder, localFolder, remoteSubfolderNames); err != nil {
				return err
			}
			continue
		}
		if err := r.handleRemoteDocumentChild(child.Document, localFolder, remoteFileNames); err != nil {
			return err
		}
	}

	r.crawlLocalFiles(localFolder, remoteFolder, remoteFileNames)
	r.crawlLocalFolders(localFolder, remoteFolder, remoteSubfolderNames)

	return nil
}

// handleRemoteFolderChild implements spec §4.4 "Remote folder child".
func (r *Reconciler) handleRemoteFolderChild(ctx context.Context, child remote.Folder, localFolder string, remoteSubfolderNames map[string]struct{}) error {
	name := child.Name()
	remoteSubfolderNames[name] = struct{}{}
	localSub := filepath.Join(localFolder, name)

	info, statErr := os.Stat(localSub)
	switch {
	case statErr == nil && info.IsDir():
		return r.syncFolder(ctx, child, localSub)

	case statErr == nil:
		// Shadowed by a remote folder of the same name.
		r.logger.Info().Str("path", localSub).Msg("local file shadowed by remote folder of the same name; removing local file")
		if err := os.Remove(localSub); err != nil {
			r.logger.Error().Err(err).Str("path", localSub).Msg("failed to remove shadowed local file")
		}
		return nil

	case !os.IsNotExist(statErr):
		r.logger.Error().Err(statErr).Str("path", localSub).Msg("failed to stat local path")
		return nil
	}

	if r.db.ContainsFolder(localSub) {
		// User removed the folder locally since last sync.
		if err := child.DeleteTree(true); err != nil {
			return err
		}
		return r.db.RemoveFolder(localSub)
	}

	// New remote folder.
	if err := os.MkdirAll(localSub, 0o755); err != nil {
		r.logger.Error().Err(err).Str("path", localSub).Msg("failed to create local directory")
		return nil
	}
	if err := r.db.AddFolder(localSub, child.LastModTime()); err != nil {
		return err
	}
	return r.downloadTree(child, localSub)
}

// downloadTree implements Phase D: recursively materialize a whole
// remote subtree locally. Folder records use the subfolder's own
// lastModTime (spec §9 open question, resolved per SPEC_FULL.md).
func (r *Reconciler) downloadTree(folder remote.Folder, localFolder string) error {
	children, err := folder.Children()
	if err != nil {
		return err
	}

	for _, child := range children {
		if child.IsFolder {
			sub := filepath.Join(localFolder, child.Folder.Name())
			if err := os.MkdirAll(sub, 0o755); err != nil {
				r.logger.Error().Err(err).Str("path", sub).Msg("failed to create local directory during download")
				continue
			}
			if err := r.db.AddFolder(sub, child.Folder.LastModTime()); err != nil {
				return err
			}
			if err := r.downloadTree(child.Folder, sub); err != nil {
				return err
			}
			continue
		}
		if err := r.downloadDocument(child.Document, localFolder); err != nil {
			return err
		}
	}
	return nil
}

// downloadDocument writes doc's content stream under localFolder using
// its contentStreamFileName, skipping null-filename documents.
func (r *Reconciler) downloadDocument(doc remote.Document, localFolder string) error {
	name := doc.ContentStreamFileName()
	if name == "" {
		r.logger.Info().Str("document", doc.Name()).Msg("document has no content-stream filename; skipping")
		return nil
	}
	return r.downloadOverwrite(doc, filepath.Join(localFolder, name))
}

// downloadOverwrite writes doc's content to filePath, deleting a
// directory that may occupy the target first, and records the result
// in the shadow DB.
func (r *Reconciler) downloadOverwrite(doc remote.Document, filePath string) error {
	if info, err := os.Stat(filePath); err == nil && info.IsDir() {
		if err := os.RemoveAll(filePath); err != nil {
			r.logger.Error().Err(err).Str("path", filePath).Msg("failed to remove directory occupying download target")
			return nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		r.logger.Error().Err(err).Str("path", filePath).Msg("failed to create parent directory")
		return nil
	}

	stream, err := doc.ContentStream()
	if err != nil {
		return err
	}
	defer stream.Close()

	f, err := os.Create(filePath)
	if err != nil {
		r.logger.Error().Err(err).Str("path", filePath).Msg("failed to create local file")
		return nil
	}
	defer f.Close()

	if _, err := io.Copy(f, stream); err != nil {
		r.logger.Error().Err(err).Str("path", filePath).Msg("failed to write local file")
		return nil
	}

	return r.db.AddFile(filePath, doc.LastModTime())
}

// handleRemoteDocumentChild implements spec §4.4 "Remote document child".
func (r *Reconciler) handleRemoteDocumentChild(doc remote.Document, localFolder string, remoteFileNames map[string]struct{}) error {
	name := doc.ContentStreamFileName()
	if name == "" {
		r.logger.Info().Str("document", doc.Name()).Msg("document has no content-stream filename; skipping")
		return nil
	}
	remoteFileNames[name] = struct{}{}
	filePath := filepath.Join(localFolder, name)

	info, statErr := os.Stat(filePath)
	switch {
	case statErr == nil && !info.IsDir():
		return r.reconcileExistingFile(doc, filePath)

	case statErr == nil:
		// A directory occupies the document's name; remote kind wins.
		r.logger.Info().Str("path", filePath).Msg("local directory shadowed by remote document of the same name; removing")
		if err := os.RemoveAll(filePath); err != nil {
			r.logger.Error().Err(err).Str("path", filePath).Msg("failed to remove shadowed local directory")
			return nil
		}
		return r.downloadOverwrite(doc, filePath)

	case !os.IsNotExist(statErr):
		r.logger.Error().Err(statErr).Str("path", filePath).Msg("failed to stat local path")
		return nil
	}

	// filePath absent locally.
	if r.db.ContainsFile(filePath) {
		if err := doc.DeleteAllVersions(); err != nil {
			return err
		}
		return r.db.RemoveFile(filePath)
	}
	return r.downloadOverwrite(doc, filePath)
}

// reconcileExistingFile implements spec §4.4 step 4 (a)-(e).
func (r *Reconciler) reconcileExistingFile(doc remote.Document, filePath string) error {
	remoteModTime := doc.LastModTime()
	dbModTime, known := r.db.GetServerModTime(filePath)

	if !known {
		return r.downloadOverwrite(doc, filePath)
	}

	if !remoteModTime.After(dbModTime) {
		// Remote unchanged relative to our records; local upload (if
		// any) is handled by Phase LF.
		return nil
	}

	if r.db.LocalFileHasChanged(filePath) {
		savedAs, err := r.conflicts.Resolve(filePath)
		if err != nil {
			r.logger.Error().Err(err).Str("path", filePath).Msg("failed to park conflicting local version")
			return nil
		}
		if err := r.downloadOverwrite(doc, filePath); err != nil {
			return err
		}
		r.conflicts.Notify(filePath, savedAs)
		return nil
	}
	return r.downloadOverwrite(doc, filePath)
}

// crawlLocalFiles implements Phase LF: a single, non-recursive pass over
// the plain files directly inside localFolder.
func (r *Reconciler) crawlLocalFiles(localFolder string, remoteFolder remote.Folder, remoteFileNames map[string]struct{}) {
	entries, err := os.ReadDir(localFolder)
	if err != nil {
		r.logger.Error().Err(err).Str("path", localFolder).Msg("failed to list local directory")
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		filePath := filepath.Join(localFolder, name)

		if _, remoteHasIt := remoteFileNames[name]; !remoteHasIt {
			r.handleLocalOnlyFile(remoteFolder, filePath, name)
			continue
		}

		if r.bidirectional && r.db.LocalFileHasChanged(filePath) {
			r.uploadModifiedFile(remoteFolder, filePath, name)
		}
	}
}

func (r *Reconciler) handleLocalOnlyFile(remoteFolder remote.Folder, filePath, name string) {
	if r.db.ContainsFile(filePath) {
		// Remote delete is authoritative.
		if err := os.Remove(filePath); err != nil {
			r.logger.Error().Err(err).Str("path", filePath).Msg("failed to remove locally-deleted-remotely file")
			return
		}
		if err := r.db.RemoveFile(filePath); err != nil {
			r.logger.Error().Err(err).Str("path", filePath).Msg("failed to remove shadow record")
		}
		return
	}

	if !r.bidirectional {
		return
	}
	r.uploadNewFile(remoteFolder, filePath, name)
}

// uploadNewFile implements Phase LF's upload-as-new-document branch,
// including the vanished-mid-upload revert (spec §7 LOCAL_IO_MISSING).
func (r *Reconciler) uploadNewFile(remoteFolder remote.Folder, filePath, name string) {
	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		r.logger.Error().Err(err).Str("path", filePath).Msg("failed to open local file for upload")
		return
	}
	defer f.Close()

	doc, err := remoteFolder.CreateDocument(name, guessMIME(filePath), f)
	if err != nil {
		r.logger.Error().Err(err).Str("path", filePath).Msg("failed to upload new document")
		return
	}

	if _, statErr := os.Stat(filePath); statErr != nil && os.IsNotExist(statErr) {
		r.logger.Warn().Str("path", filePath).Msg("local file vanished mid-upload; reverting partial remote document")
		if delErr := doc.DeleteAllVersions(); delErr != nil {
			r.logger.Error().Err(delErr).Str("path", filePath).Msg("failed to revert partial upload")
		}
		return
	}

	if err := r.db.AddFile(filePath, doc.LastModTime()); err != nil {
		r.logger.Error().Err(err).Str("path", filePath).Msg("failed to record uploaded file")
	}
}

// uploadModifiedFile implements Phase LF's update-existing-content
// branch. The target document is located by an O(n) scan of the
// remote folder's children (spec §9 open question — a conforming
// implementation may instead index children collected during Phase R).
func (r *Reconciler) uploadModifiedFile(remoteFolder remote.Folder, filePath, name string) {
	children, err := remoteFolder.Children()
	if err != nil {
		r.logger.Error().Err(err).Str("path", filePath).Msg("failed to list remote folder while locating update target")
		return
	}

	var target *remote.Document
	for i := range children {
		if !children[i].IsFolder && children[i].Document.Name() == name {
			d := children[i].Document
			target = &d
			break
		}
	}
	if target == nil {
		r.logger.Warn().Str("path", filePath).Msg("update target not found remotely; abandoning, next cycle will handle")
		return
	}

	f, err := os.Open(filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Error().Err(err).Str("path", filePath).Msg("failed to open local file for content update")
		}
		return
	}
	defer f.Close()

	if err := target.SetContentStream(f); err != nil {
		r.logger.Error().Err(err).Str("path", filePath).Msg("failed to push updated content")
		return
	}

	newModTime := time.Now()
	if refreshed, err := remoteFolder.Children(); err == nil {
		for _, e := range refreshed {
			if !e.IsFolder && e.Document.Name() == name {
				newModTime = e.Document.LastModTime()
				break
			}
		}
	}

	if err := r.db.AddFile(filePath, newModTime); err != nil {
		r.logger.Error().Err(err).Str("path", filePath).Msg("failed to record uploaded content update")
	}
}

// crawlLocalFolders implements Phase LD: a single, non-recursive pass
// over the subdirectories directly inside localFolder.
func (r *Reconciler) crawlLocalFolders(localFolder string, remoteFolder remote.Folder, remoteSubfolderNames map[string]struct{}) {
	entries, err := os.ReadDir(localFolder)
	if err != nil {
		r.logger.Error().Err(err).Str("path", localFolder).Msg("failed to list local directory")
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		dirPath := filepath.Join(localFolder, name)

		if _, remoteHasIt := remoteSubfolderNames[name]; remoteHasIt {
			continue
		}

		if r.db.ContainsFolder(dirPath) {
			if err := os.RemoveAll(dirPath); err != nil {
				r.logger.Error().Err(err).Str("path", dirPath).Msg("failed to remove locally-deleted-remotely folder")
				continue
			}
			if err := r.db.RemoveFolder(dirPath); err != nil {
				r.logger.Error().Err(err).Str("path", dirPath).Msg("failed to remove shadow folder record")
			}
			continue
		}

		if !r.bidirectional {
			continue
		}

		newFolder, err := remoteFolder.CreateFolder(name)
		if err != nil {
			r.logger.Error().Err(err).Str("path", dirPath).Msg("failed to create remote folder")
			continue
		}
		if err := r.db.AddFolder(dirPath, newFolder.LastModTime()); err != nil {
			r.logger.Error().Err(err).Str("path", dirPath).Msg("failed to record created remote folder")
		}
	}
}
