package remote

import (
	"fmt"
	"io"
	pathpkg "path"
	"time"

	"github.com/studio-b12/gowebdav"
)

// WebDAVClient binds the Client/Folder/Document surface in this package
// to a WebDAV collection tree via studio-b12/gowebdav — the binding the
// teacher already speaks. A WebDAV collection plays the role of a CMIS
// folder; a WebDAV resource plays the role of a CMIS document. See
// SPEC_FULL.md §4.6 for what this binding can and cannot provide.
type WebDAVClient struct {
	client *gowebdav.Client
	user   string
}

// NewWebDAVClient wraps a configured gowebdav.Client.
func NewWebDAVClient(url, user, pass string, timeout time.Duration) *WebDAVClient {
	c := gowebdav.NewClient(url, user, pass)
	c.SetTimeout(timeout)
	return &WebDAVClient{client: c, user: user}
}

// Connect verifies the session is usable by statting the server root.
// Any failure here is KindRuntime: the sync loop retries it forever
// with a fixed back-off (spec §4.5).
func (w *WebDAVClient) Connect() error {
	if err := w.client.Connect(); err != nil {
		return &Error{Kind: KindRuntime, Op: "connect", Err: err}
	}
	return nil
}

// GetFolderByPath resolves path to a folder handle, verifying it is
// actually a collection.
func (w *WebDAVClient) GetFolderByPath(path string) (Folder, error) {
	info, err := w.client.Stat(path)
	if err != nil {
		return nil, &Error{Kind: KindBase, Op: "stat " + path, Err: err}
	}
	if !info.IsDir() {
		return nil, &Error{Kind: KindBase, Op: "stat " + path, Err: fmt.Errorf("%s is not a folder", path)}
	}
	return &webdavFolder{client: w.client, user: w.user, path: path, modTime: info.ModTime()}, nil
}

type webdavFolder struct {
	client  *gowebdav.Client
	user    string
	path    string
	modTime time.Time
}

func (f *webdavFolder) Name() string          { return pathpkg.Base(f.path) }
func (f *webdavFolder) LastModTime() time.Time { return f.modTime }

func (f *webdavFolder) Children() ([]Entry, error) {
	infos, err := f.client.ReadDir(f.path)
	if err != nil {
		return nil, &Error{Kind: KindBase, Op: "readdir " + f.path, Err: err}
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		childPath := pathpkg.Join(f.path, info.Name())
		if info.IsDir() {
			entries = append(entries, Entry{
				IsFolder: true,
				Folder: &webdavFolder{
					client:  f.client,
					user:    f.user,
					path:    childPath,
					modTime: info.ModTime(),
				},
			})
			continue
		}

		doc := NewDocument(
			info.Name(),
			info.Name(), // WebDAV has no separate display-name/filename split
			info.ModTime(),
			f.user, // best-effort: WebDAV PROPFIND doesn't universally expose an author property
			&webdavDocument{client: f.client, path: childPath},
		)
		entries = append(entries, Entry{IsFolder: false, Document: doc})
	}
	return entries, nil
}

func (f *webdavFolder) CreateFolder(name string) (Folder, error) {
	childPath := pathpkg.Join(f.path, name)
	if err := f.client.MkdirAll(childPath, 0o755); err != nil {
		return nil, &Error{Kind: KindBase, Op: "mkdir " + childPath, Err: err}
	}
	info, err := f.client.Stat(childPath)
	modTime := time.Now()
	if err == nil {
		modTime = info.ModTime()
	}
	return &webdavFolder{client: f.client, user: f.user, path: childPath, modTime: modTime}, nil
}

func (f *webdavFolder) CreateDocument(name, mimeType string, content io.Reader) (Document, error) {
	childPath := pathpkg.Join(f.path, name)
	if err := f.client.WriteStream(childPath, content, 0o644); err != nil {
		return Document{}, &Error{Kind: KindBase, Op: "put " + childPath, Err: err}
	}
	info, err := f.client.Stat(childPath)
	modTime := time.Now()
	if err == nil {
		modTime = info.ModTime()
	}
	return NewDocument(name, name, modTime, f.user, &webdavDocument{client: f.client, path: childPath}), nil
}

// DeleteTree removes the folder and its whole subtree. WebDAV DELETE on
// a collection is recursive server-side, so the common case is a single
// request. When continueOnFailure is true and that single request
// fails, each child is deleted individually so a failure on one branch
// doesn't abort siblings (spec §4.4 Phase R step 5).
func (f *webdavFolder) DeleteTree(continueOnFailure bool) error {
	if err := f.client.Remove(f.path); err == nil {
		return nil
	} else if !continueOnFailure {
		return &Error{Kind: KindBase, Op: "delete " + f.path, Err: err}
	}

	entries, err := f.Children()
	if err != nil {
		return &Error{Kind: KindBase, Op: "delete " + f.path, Err: err}
	}

	var firstErr error
	for _, e := range entries {
		if e.IsFolder {
			if err := e.Folder.DeleteTree(true); err != nil && firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := e.Document.DeleteAllVersions(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := f.client.Remove(f.path); err != nil && firstErr == nil {
		firstErr = &Error{Kind: KindBase, Op: "delete " + f.path, Err: err}
	}
	return firstErr
}

type webdavDocument struct {
	client *gowebdav.Client
	path   string
}

func (d *webdavDocument) ContentStream() (io.ReadCloser, error) {
	r, err := d.client.ReadStream(d.path)
	if err != nil {
		return nil, &Error{Kind: KindBase, Op: "get " + d.path, Err: err}
	}
	return r, nil
}

func (d *webdavDocument) SetContentStream(content io.Reader) error {
	if err := d.client.WriteStream(d.path, content, 0o644); err != nil {
		return &Error{Kind: KindBase, Op: "put " + d.path, Err: err}
	}
	return nil
}

// DeleteAllVersions removes the document. WebDAV has no version model,
// so there is exactly one version to remove — this is the binding's
// honest behavior, not a simulated gap (SPEC_FULL.md §4.6).
func (d *webdavDocument) DeleteAllVersions() error {
	if err := d.client.Remove(d.path); err != nil {
		return &Error{Kind: KindBase, Op: "delete " + d.path, Err: err}
	}
	return nil
}
