package graph

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/agentic-research/facetfs/internal/content"
	"github.com/agentic-research/facetfs/internal/metrics"
	"github.com/agentic-research/facetfs/internal/vnode"
)

const (
	// PropertyPrefix marks the files that expose a node's properties.
	PropertyPrefix = "@"
	// DiagnosticsName is the file listing errors contained while populating.
	DiagnosticsName = "_diagnostics"

	DefaultCacheSize = 4096
)

// Resolver produces the state of any node identity.
type Resolver interface {
	Resolve(ctx context.Context, id content.NodeID) (*content.NodeState, error)
}

type Options struct {
	// CacheSize bounds the number of resolved states kept.
	CacheSize int
	// Timeout bounds a single path resolution. 0 means none.
	Timeout time.Duration
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// VirtualGraph presents a resolved content tree as paths. Every node is a
// directory named by its child segment ("name" or "name[n]"); its
// properties are files called "@name" holding one value per line.
//
// Resolved states are cached by path. States are computed on demand from
// the parent's child entry, so two paths never share a cache slot.
type VirtualGraph struct {
	resolver Resolver
	cache    *lru.Cache[string, *content.NodeState]
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
	modTime  time.Time
}

func NewVirtualGraph(r Resolver, opts Options) (*VirtualGraph, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *content.NodeState](size)
	if err != nil {
		return nil, fmt.Errorf("create state cache: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VirtualGraph{
		resolver: r,
		cache:    cache,
		timeout:  opts.Timeout,
		metrics:  opts.Metrics,
		logger:   logger,
		modTime:  time.Now(),
	}, nil
}

func cleanPath(id string) string {
	return strings.Trim(id, "/")
}

func splitPath(p string) (string, string) {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

func (g *VirtualGraph) newContext() (context.Context, context.CancelFunc) {
	if g.timeout > 0 {
		return context.WithTimeout(context.Background(), g.timeout)
	}
	return context.WithCancel(context.Background())
}

// State resolves the node at path, walking from the root through child
// entries. The returned state is shared and must not be modified.
func (g *VirtualGraph) State(ctx context.Context, path string) (*content.NodeState, error) {
	path = cleanPath(path)
	if st, ok := g.cache.Get(path); ok {
		g.metrics.CacheHit()
		return st, nil
	}
	g.metrics.CacheMiss()

	var id content.NodeID = content.RootID
	if path != "" {
		parentPath, seg := splitPath(path)
		parent, err := g.State(ctx, parentPath)
		if err != nil {
			return nil, err
		}
		name, idx, err := content.ParseSegment(seg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
		}
		c, ok := parent.Child(name, idx)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		id = c.ID
	}

	st, err := g.resolver.Resolve(ctx, id)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
		}
		return nil, fmt.Errorf("resolve /%s: %w", path, err)
	}
	for _, d := range st.Diagnostics {
		g.logger.Debug("contained error", zap.String("path", "/"+path), zap.Error(d))
	}
	g.cache.Add(path, st)
	return st, nil
}

// file is one property-like file of a directory.
type file struct {
	name string
	data []byte
}

func lines(values []string) []byte {
	if len(values) == 0 {
		return nil
	}
	return []byte(strings.Join(values, "\n") + "\n")
}

// files lists the files of st in a stable order: primary type, mixins,
// properties, diagnostics. Names that collide with a child are dropped.
func files(st *content.NodeState) []file {
	seen := make(map[string]bool)
	for _, c := range st.Children {
		seen[c.Segment()] = true
	}
	var out []file
	add := func(name string, data []byte) {
		if seen[name] {
			return
		}
		seen[name] = true
		out = append(out, file{name: name, data: data})
	}
	add(PropertyPrefix+"jcr:primaryType", lines([]string{st.PrimaryType}))
	if len(st.Mixins) > 0 {
		add(PropertyPrefix+"jcr:mixinTypes", lines(st.Mixins))
	}
	for _, p := range st.Properties {
		add(PropertyPrefix+p.Name, lines(p.Values))
	}
	if len(st.Diagnostics) > 0 {
		msgs := make([]string, len(st.Diagnostics))
		for i, d := range st.Diagnostics {
			msgs[i] = d.Error()
		}
		add(DiagnosticsName, lines(msgs))
	}
	return out
}

func (g *VirtualGraph) dirNode(path string, st *content.NodeState) *Node {
	n := &Node{
		ID:         path,
		Mode:       fs.ModeDir,
		ModTime:    g.modTime,
		Properties: map[string][]byte{"type": []byte(st.PrimaryType)},
		State:      st,
	}
	if tok, err := vnode.Token(st.ID); err == nil {
		n.Properties["id"] = []byte(tok)
	}
	for _, c := range st.Children {
		n.Children = append(n.Children, joinPath(path, c.Segment()))
	}
	for _, f := range files(st) {
		n.Children = append(n.Children, joinPath(path, f.name))
	}
	return n
}

// GetNode implements Graph.
func (g *VirtualGraph) GetNode(id string) (*Node, error) {
	ctx, cancel := g.newContext()
	defer cancel()

	path := cleanPath(id)
	if path == "" {
		st, err := g.State(ctx, "")
		if err != nil {
			return nil, err
		}
		return g.dirNode(path, st), nil
	}

	parentPath, seg := splitPath(path)
	parent, err := g.State(ctx, parentPath)
	if err != nil {
		return nil, err
	}
	if name, idx, err := content.ParseSegment(seg); err == nil {
		if _, ok := parent.Child(name, idx); ok {
			st, err := g.State(ctx, path)
			if err != nil {
				return nil, err
			}
			return g.dirNode(path, st), nil
		}
	}
	for _, f := range files(parent) {
		if f.name == seg {
			return &Node{ID: path, ModTime: g.modTime, Data: f.data}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
}

// ListChildren implements Graph.
func (g *VirtualGraph) ListChildren(id string) ([]string, error) {
	n, err := g.GetNode(id)
	if err != nil {
		return nil, err
	}
	if !n.Mode.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", n.ID)
	}
	return n.Children, nil
}

// ReadContent implements Graph.
func (g *VirtualGraph) ReadContent(id string, buf []byte, offset int64) (int, error) {
	n, err := g.GetNode(id)
	if err != nil {
		return 0, err
	}
	if offset >= int64(len(n.Data)) {
		return 0, nil
	}
	return copy(buf, n.Data[offset:]), nil
}

// Invalidate implements Graph.
func (g *VirtualGraph) Invalidate(id string) {
	path := cleanPath(id)
	if path == "" {
		g.cache.Purge()
		return
	}
	for _, k := range g.cache.Keys() {
		if k == path || strings.HasPrefix(k, path+"/") {
			g.cache.Remove(k)
		}
	}
}

// Len returns the number of cached states.
func (g *VirtualGraph) Len() int {
	return g.cache.Len()
}

var _ Graph = (*VirtualGraph)(nil)
