// Package nfsmount serves the virtual tree over NFSv3 through
// willscott/go-nfs. Directories are node states; the files are the
// property and diagnostics files of each directory plus /_config.json.
package nfsmount

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path"
	"sync/atomic"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"

	"github.com/agentic-research/facetfs/api"
	"github.com/agentic-research/facetfs/internal/graph"
)

var (
	errReadOnly = errors.New("read-only filesystem")
	errIsDir    = errors.New("is a directory")
	errNotDir   = errors.New("not a directory")
)

// ConfigFile is the virtual root file holding the active configuration.
const ConfigFile = "_config.json"

const configPath = "/" + ConfigFile

// GraphFS exposes a graph.Graph as a read-only billy.Filesystem.
type GraphFS struct {
	graph   graph.Graph
	config  atomic.Pointer[[]byte]
	mounted time.Time
}

// NewGraphFS serves g with cfg as /_config.json. A nil cfg leaves the file
// empty.
func NewGraphFS(g graph.Graph, cfg *api.Config) *GraphFS {
	fs := &GraphFS{graph: g, mounted: time.Now()}
	fs.SetConfig(cfg)
	return fs
}

// SetConfig replaces the contents of /_config.json. Files opened earlier
// keep the previous contents.
func (fs *GraphFS) SetConfig(cfg *api.Config) {
	var data []byte
	if cfg != nil {
		data, _ = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	}
	fs.config.Store(&data)
}

// lookup finds the node at a clean absolute path. The config file is a
// synthetic leaf of the root.
func (fs *GraphFS) lookup(op, p string) (*graph.Node, error) {
	if p == configPath {
		return &graph.Node{ID: ConfigFile, ModTime: fs.mounted, Data: *fs.config.Load()}, nil
	}
	n, err := fs.graph.GetNode(p)
	if err != nil {
		return nil, &os.PathError{Op: op, Path: p, Err: os.ErrNotExist}
	}
	return n, nil
}

func (fs *GraphFS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0)
}

// OpenFile snapshots the node's data at open; reads never go back to the
// graph, so a reload or cache eviction cannot change an open file.
func (fs *GraphFS) OpenFile(filename string, flag int, _ os.FileMode) (billy.File, error) {
	p := clean(filename)
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, &os.PathError{Op: "open", Path: p, Err: errReadOnly}
	}
	n, err := fs.lookup("open", p)
	if err != nil {
		return nil, err
	}
	if n.Mode.IsDir() {
		return nil, &os.PathError{Op: "open", Path: p, Err: errIsDir}
	}
	return &snapshot{name: path.Base(p), Reader: bytes.NewReader(n.Data)}, nil
}

func (fs *GraphFS) Stat(filename string) (os.FileInfo, error) {
	return fs.Lstat(filename)
}

func (fs *GraphFS) Lstat(filename string) (os.FileInfo, error) {
	p := clean(filename)
	if p == "/" {
		return &info{name: "/", mode: os.ModeDir | 0o555, modTime: fs.mounted}, nil
	}
	n, err := fs.lookup("lstat", p)
	if err != nil {
		return nil, err
	}
	return fs.infoOf(n), nil
}

// ReadDir lists a directory without resolving the child directories: the
// node's content children come first in Children and are reported as
// directories straight away. Only the leaf files are looked up, which
// reads the already cached parent.
func (fs *GraphFS) ReadDir(dirname string) ([]os.FileInfo, error) {
	p := clean(dirname)
	n, err := fs.lookup("readdir", p)
	if err != nil {
		return nil, err
	}
	if !n.Mode.IsDir() {
		return nil, &os.PathError{Op: "readdir", Path: p, Err: errNotDir}
	}

	dirs := 0
	if n.State != nil {
		dirs = len(n.State.Children)
	}
	out := make([]os.FileInfo, 0, len(n.Children)+1)
	if p == "/" {
		cfg, _ := fs.lookup("readdir", configPath)
		out = append(out, fs.infoOf(cfg))
	}
	for i, child := range n.Children {
		if i < dirs {
			out = append(out, &info{name: path.Base("/" + child), mode: os.ModeDir | 0o555, modTime: fs.mtime(n)})
			continue
		}
		leaf, err := fs.graph.GetNode(child)
		if err != nil {
			continue
		}
		out = append(out, fs.infoOf(leaf))
	}
	return out, nil
}

func (fs *GraphFS) infoOf(n *graph.Node) *info {
	fi := &info{name: path.Base("/" + n.ID), size: n.ContentSize(), mode: 0o444, modTime: fs.mtime(n)}
	if n.Mode.IsDir() {
		fi.mode, fi.size = os.ModeDir|0o555, 0
	}
	return fi
}

func (fs *GraphFS) mtime(n *graph.Node) time.Time {
	if n.ModTime.IsZero() {
		return fs.mounted
	}
	return n.ModTime
}

func (fs *GraphFS) Join(elem ...string) string { return path.Join(elem...) }
func (fs *GraphFS) Root() string               { return "/" }

func (fs *GraphFS) Chroot(p string) (billy.Filesystem, error) {
	return chroot.New(fs, p), nil
}

func (fs *GraphFS) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.SeekCapability
}

func (fs *GraphFS) Create(string) (billy.File, error)           { return nil, errReadOnly }
func (fs *GraphFS) Rename(string, string) error                 { return errReadOnly }
func (fs *GraphFS) Remove(string) error                         { return errReadOnly }
func (fs *GraphFS) MkdirAll(string, os.FileMode) error          { return errReadOnly }
func (fs *GraphFS) TempFile(string, string) (billy.File, error) { return nil, billy.ErrNotSupported }
func (fs *GraphFS) Symlink(string, string) error                { return billy.ErrNotSupported }
func (fs *GraphFS) Readlink(string) (string, error)             { return "", billy.ErrNotSupported }

func clean(p string) string {
	return path.Clean("/" + p)
}

// snapshot is an open leaf file. The bytes are fixed at open.
type snapshot struct {
	name string
	*bytes.Reader
}

func (f *snapshot) Name() string              { return f.name }
func (f *snapshot) Write([]byte) (int, error) { return 0, errReadOnly }
func (f *snapshot) Truncate(int64) error      { return errReadOnly }
func (f *snapshot) Lock() error               { return nil }
func (f *snapshot) Unlock() error             { return nil }
func (f *snapshot) Close() error              { return nil }

type info struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi *info) Name() string       { return fi.name }
func (fi *info) Size() int64        { return fi.size }
func (fi *info) Mode() os.FileMode  { return fi.mode }
func (fi *info) ModTime() time.Time { return fi.modTime }
func (fi *info) IsDir() bool        { return fi.mode.IsDir() }
func (fi *info) Sys() any           { return nil }

var (
	_ billy.Filesystem = (*GraphFS)(nil)
	_ billy.Capable    = (*GraphFS)(nil)
	_ billy.File       = (*snapshot)(nil)
)
