// Package remotetest is an in-memory implementation of the
// docsync/internal/remote interfaces, used to drive Reconciler tests
// without a live WebDAV server.
package remotetest

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"docsync/internal/remote"
)

// Node is one in-memory folder or document.
type Node struct {
	name     string
	isDir    bool
	modTime  time.Time
	content  []byte
	children []*Node
	parent   *Node
}

// NewRoot creates the root folder node of a fake remote tree.
func NewRoot(modTime time.Time) *Node {
	return &Node{name: "", isDir: true, modTime: modTime}
}

// AddFolder creates and attaches a child folder.
func (n *Node) AddFolder(name string, modTime time.Time) *Node {
	child := &Node{name: name, isDir: true, modTime: modTime, parent: n}
	n.children = append(n.children, child)
	return child
}

// AddFile creates and attaches a child document.
func (n *Node) AddFile(name string, modTime time.Time, content string) *Node {
	child := &Node{name: name, isDir: false, modTime: modTime, content: []byte(content), parent: n}
	n.children = append(n.children, child)
	return child
}

// Remove detaches this node from its parent, dropping the whole subtree.
func (n *Node) Remove() {
	if n.parent == nil {
		return
	}
	siblings := n.parent.children
	for i, c := range siblings {
		if c == n {
			n.parent.children = append(siblings[:i], siblings[i+1:]...)
			return
		}
	}
}

// Content returns the current document body.
func (n *Node) Content() string { return string(n.content) }

// SetModTime updates the node's mod time (simulating a remote-side edit).
func (n *Node) SetModTime(t time.Time) { n.modTime = t }

// SetContent overwrites a document node's body directly, simulating an
// edit made through some other client than the one under test.
func (n *Node) SetContent(content string) { n.content = []byte(content) }

func (n *Node) child(name string) *Node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// Client is a fake remote.Client backed by an in-memory tree.
type Client struct {
	Root        *Node
	ConnectErr  error
	ConnectHits int
}

// NewClient builds a fake client rooted at root.
func NewClient(root *Node) *Client {
	return &Client{Root: root}
}

func (c *Client) Connect() error {
	c.ConnectHits++
	if c.ConnectErr != nil {
		return &remote.Error{Kind: remote.KindRuntime, Op: "connect", Err: c.ConnectErr}
	}
	return nil
}

func (c *Client) GetFolderByPath(path string) (remote.Folder, error) {
	node := c.Root
	path = strings.Trim(path, "/")
	if path != "" {
		for _, seg := range strings.Split(path, "/") {
			node = node.child(seg)
			if node == nil || !node.isDir {
				return nil, &remote.Error{Kind: remote.KindBase, Op: "stat " + path, Err: fmt.Errorf("no such folder: %s", path)}
			}
		}
	}
	return &folder{client: c, node: node}, nil
}

type folder struct {
	client *Client
	node   *Node
}

func (f *folder) Name() string           { return f.node.name }
func (f *folder) LastModTime() time.Time { return f.node.modTime }

func (f *folder) Children() ([]remote.Entry, error) {
	entries := make([]remote.Entry, 0, len(f.node.children))
	for _, c := range f.node.children {
		if c.isDir {
			entries = append(entries, remote.Entry{IsFolder: true, Folder: &folder{client: f.client, node: c}})
			continue
		}
		doc := remote.NewDocument(c.name, c.name, c.modTime, "fake-user", &document{node: c})
		entries = append(entries, remote.Entry{IsFolder: false, Document: doc})
	}
	return entries, nil
}

func (f *folder) CreateFolder(name string) (remote.Folder, error) {
	child := f.node.AddFolder(name, time.Now())
	return &folder{client: f.client, node: child}, nil
}

func (f *folder) CreateDocument(name, mimeType string, content io.Reader) (remote.Document, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return remote.Document{}, err
	}
	child := f.node.AddFile(name, time.Now(), string(data))
	return remote.NewDocument(name, name, child.modTime, "fake-user", &document{node: child}), nil
}

func (f *folder) DeleteTree(continueOnFailure bool) error {
	f.node.Remove()
	return nil
}

type document struct {
	node *Node
}

func (d *document) ContentStream() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(d.node.content)), nil
}

func (d *document) SetContentStream(content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	d.node.content = data
	d.node.modTime = time.Now()
	return nil
}

func (d *document) DeleteAllVersions() error {
	d.node.Remove()
	return nil
}
