// Package fs mounts the virtual tree through FUSE.
package fs

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/winfsp/cgofuse/fuse"
	"go.uber.org/zap"

	"github.com/agentic-research/facetfs/internal/graph"
)

// FacetFS implements the FUSE interface from cgofuse. Directories are
// graph nodes; regular files are their property and diagnostics files.
type FacetFS struct {
	fuse.FileSystemBase
	Graph     graph.Graph
	logger    *zap.Logger
	mountTime fuse.Timespec

	mu     sync.Mutex
	dirs   map[uint64][]string // open directory handle -> entry names
	nextFh uint64
}

func NewFacetFS(g graph.Graph, logger *zap.Logger) *FacetFS {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FacetFS{
		Graph:     g,
		logger:    logger,
		mountTime: fuse.NewTimespec(time.Now()),
		dirs:      make(map[uint64][]string),
	}
}

// errno maps a graph error to a FUSE error code.
func (fs *FacetFS) errno(path string, err error) int {
	if errors.Is(err, graph.ErrNotFound) {
		return -fuse.ENOENT
	}
	fs.logger.Warn("fuse request failed", zap.String("path", path), zap.Error(err))
	return -fuse.EIO
}

// Open succeeds for regular files opened read-only.
func (fs *FacetFS) Open(path string, flags int) (int, uint64) {
	if flags&(fuse.O_WRONLY|fuse.O_RDWR|fuse.O_APPEND|fuse.O_TRUNC) != 0 {
		return -fuse.EROFS, ^uint64(0)
	}
	node, err := fs.Graph.GetNode(path)
	if err != nil {
		return fs.errno(path, err), ^uint64(0)
	}
	if node.Mode.IsDir() {
		return -fuse.EISDIR, ^uint64(0)
	}
	return 0, 0
}

// Opendir snapshots the entry list so paged Readdir calls see one listing.
func (fs *FacetFS) Opendir(path string) (int, uint64) {
	entries, errc := fs.entries(path)
	if errc != 0 {
		return errc, ^uint64(0)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.nextFh++
	fs.dirs[fs.nextFh] = entries
	return 0, fs.nextFh
}

func (fs *FacetFS) Releasedir(path string, fh uint64) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.dirs, fh)
	return 0
}

func (fs *FacetFS) entries(path string) ([]string, int) {
	node, err := fs.Graph.GetNode(path)
	if err != nil {
		return nil, fs.errno(path, err)
	}
	if !node.Mode.IsDir() {
		return nil, -fuse.ENOTDIR
	}
	entries := make([]string, 0, len(node.Children)+2)
	entries = append(entries, ".", "..")
	for _, childID := range node.Children {
		entries = append(entries, filepath.Base("/"+childID))
	}
	return entries, 0
}

// Getattr (Stat)
func (fs *FacetFS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	stat.Atim = fs.mountTime
	stat.Mtim = fs.mountTime
	stat.Ctim = fs.mountTime
	stat.Birthtim = fs.mountTime

	// Root is always there
	if path == "/" {
		stat.Mode = fuse.S_IFDIR | 0o555
		stat.Nlink = 2
		return 0
	}

	node, err := fs.Graph.GetNode(path)
	if err != nil {
		return fs.errno(path, err)
	}
	if !node.ModTime.IsZero() {
		ts := fuse.NewTimespec(node.ModTime)
		stat.Mtim = ts
		stat.Ctim = ts
	}
	if node.Mode.IsDir() {
		stat.Mode = fuse.S_IFDIR | 0o555
		stat.Nlink = 2
		return 0
	}
	stat.Mode = fuse.S_IFREG | 0o444
	stat.Nlink = 1
	stat.Size = node.ContentSize()
	return 0
}

// Readdir (List directory). Entries are numbered from 1 so the kernel can
// resume a listing at ofst; fill returning false means the buffer is full.
func (fs *FacetFS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	fs.mu.Lock()
	entries, ok := fs.dirs[fh]
	fs.mu.Unlock()
	if !ok {
		var errc int
		if entries, errc = fs.entries(path); errc != 0 {
			return errc
		}
	}

	for i := ofst; i < int64(len(entries)); i++ {
		if !fill(entries[i], nil, i+1) {
			break
		}
	}
	return 0
}

// Read (Cat file)
func (fs *FacetFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	node, err := fs.Graph.GetNode(path)
	if err != nil {
		return fs.errno(path, err)
	}
	if node.Mode.IsDir() {
		return -fuse.EISDIR
	}
	if ofst >= int64(len(node.Data)) {
		return 0
	}
	return copy(buff, node.Data[ofst:])
}

// Mount serves fs at mountpoint until it is unmounted. It blocks.
func Mount(fs *FacetFS, mountpoint string, opts []string) bool {
	host := fuse.NewFileSystemHost(fs)
	host.SetCapReaddirPlus(false)
	return host.Mount(mountpoint, append([]string{"-o", "ro,fsname=facetfs"}, opts...))
}
