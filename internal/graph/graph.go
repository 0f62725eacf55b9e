package graph

import (
	"errors"
	"io/fs"
	"time"

	"github.com/agentic-research/facetfs/internal/content"
)

var ErrNotFound = errors.New("node not found")

// Node is the universal primitive.
// The Mode field explicitly declares whether this is a file or directory.
type Node struct {
	ID         string
	Mode       fs.FileMode       // fs.ModeDir for directories, 0 for regular files
	ModTime    time.Time         // Modification time
	Data       []byte            // File content (nil for directories)
	Properties map[string][]byte // Metadata / extended attributes
	Children   []string          // Child node IDs (directories only)

	// State is the resolved node behind a directory. Shared with the
	// graph's cache; callers must not modify it.
	State *content.NodeState
}

// ContentSize returns the byte length of this node's content.
func (n *Node) ContentSize() int64 {
	return int64(len(n.Data))
}

// Graph is the interface for the filesystem layers. IDs are slash-separated
// paths relative to the root; a leading slash is ignored.
type Graph interface {
	GetNode(id string) (*Node, error)
	ListChildren(id string) ([]string, error)
	ReadContent(id string, buf []byte, offset int64) (int, error)
	// Invalidate evicts cached data for a node and everything below it.
	// An empty id drops the whole cache.
	Invalidate(id string)
}
