// Package remote defines the minimal surface the Reconciler needs from
// a remote content repository (spec §4.6), independent of any one wire
// binding. See webdav.go for the binding this engine ships with.
package remote

import (
	"io"
	"time"
)

// ErrorKind distinguishes the two remote failure classes the core
// reacts differently to (spec §7): a runtime/connect failure is
// retried with back-off by the sync loop, any other remote failure
// aborts the current pass and is retried on the next trigger.
type ErrorKind int

const (
	// KindBase is any remote call failure mid-pass.
	KindBase ErrorKind = iota
	// KindRuntime is a session/connect failure.
	KindRuntime
)

// Error wraps a remote client failure with its taxonomy kind.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return "remote: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsRuntime reports whether err (or a wrapped cause) is a KindRuntime
// remote error. The sync loop drops its cached session when a pass
// fails with this kind, so the next pass reconnects.
func IsRuntime(err error) bool {
	var rerr *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			rerr = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return rerr != nil && rerr.Kind == KindRuntime
}

// Folder is a remote collection: it can be listed, and can have
// children created or the whole subtree deleted.
type Folder interface {
	Name() string
	LastModTime() time.Time
	// Children lists immediate children. The result is a snapshot, not a
	// live iterator; each call lists the folder afresh.
	Children() ([]Entry, error)
	CreateFolder(name string) (Folder, error)
	CreateDocument(name, mimeType string, content io.Reader) (Document, error)
	// DeleteTree removes the folder and everything under it. When
	// continueOnFailure is true, a failure deleting one child does not
	// stop the rest of the subtree from being attempted.
	DeleteTree(continueOnFailure bool) error
}

// Document is a remote content stream plus its metadata.
type Document struct {
	name                  string
	contentStreamFileName string
	lastModTime           time.Time
	lastModifiedBy        string
	impl                  documentImpl
}

// documentImpl is the binding-specific behavior a Document delegates to.
type documentImpl interface {
	ContentStream() (io.ReadCloser, error)
	SetContentStream(content io.Reader) error
	DeleteAllVersions() error
}

// NewDocument constructs a Document from binding-provided metadata and
// behavior. Bindings (e.g. the webdav one) call this rather than
// exposing their own concrete type, keeping the Reconciler's dependency
// on this package only.
func NewDocument(name, contentStreamFileName string, lastModTime time.Time, lastModifiedBy string, impl documentImpl) Document {
	return Document{
		name:                  name,
		contentStreamFileName: contentStreamFileName,
		lastModTime:           lastModTime,
		lastModifiedBy:        lastModifiedBy,
		impl:                  impl,
	}
}

func (d Document) Name() string                  { return d.name }
func (d Document) ContentStreamFileName() string  { return d.contentStreamFileName }
func (d Document) LastModTime() time.Time         { return d.lastModTime }
func (d Document) LastModifiedBy() string         { return d.lastModifiedBy }
func (d Document) ContentStream() (io.ReadCloser, error) {
	return d.impl.ContentStream()
}
func (d Document) SetContentStream(content io.Reader) error {
	return d.impl.SetContentStream(content)
}
func (d Document) DeleteAllVersions() error {
	return d.impl.DeleteAllVersions()
}

// Entry is one child of a Folder: exactly one of Folder/Document is set.
type Entry struct {
	IsFolder bool
	Folder   Folder
	Document Document
}

// Client is the root entrypoint the Reconciler and Sync Loop use to
// reach the remote repository.
type Client interface {
	// GetFolderByPath resolves a remote path to a Folder handle.
	GetFolderByPath(path string) (Folder, error)
	// Connect establishes (or verifies) a session. Failures here are
	// always KindRuntime. The sync loop retries this step, and the
	// GetFolderByPath lookup of the remote root that follows it, until
	// they succeed (spec §4.5/§7).
	Connect() error
}

// ChangeFeedCapability reports whether a binding supports an
// incremental change feed in place of the crawl-based reconciliation
// path (spec §4.6). This engine only implements the crawl path; see
// NoChangeFeed.
type ChangeFeedCapability interface {
	Supported() bool
}

// NoChangeFeed always reports no change-feed support, so the crawl path
// of spec §4.4 is unconditionally taken. A richer binding (e.g. a real
// CMIS client with a change-log query) would supply its own
// ChangeFeedCapability instead.
type NoChangeFeed struct{}

func (NoChangeFeed) Supported() bool { return false }
