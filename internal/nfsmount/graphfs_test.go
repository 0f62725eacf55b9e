package nfsmount

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/facetfs/api"
	"github.com/agentic-research/facetfs/internal/content"
	"github.com/agentic-research/facetfs/internal/facet"
	"github.com/agentic-research/facetfs/internal/graph"
	"github.com/agentic-research/facetfs/internal/schema"
	"github.com/agentic-research/facetfs/internal/vnode"
)

const tree = `{
  "type": "rep:root",
  "children": [
    {"name": "docs", "type": "hippo:folder", "children": [
      {"name": "a", "type": "hippo:document", "properties": {"title": "Release notes", "color": "red"}},
      {"name": "b", "type": "hippo:document", "properties": {"title": "Roadmap", "color": "blue"}}
    ]},
    {"name": "colors", "type": "hippo:facetsearch", "properties": {
      "hippo:queryname": "colors", "hippo:docbase": "/docs", "hippo:facets": ["color"]}},
    {"name": "broken", "type": "hippo:facetsearch", "properties": {
      "hippo:queryname": "broken", "hippo:docbase": "/docs", "hippo:facets": ["bogus:x"]}}
  ]
}`

func newTestGraph(t *testing.T) graph.Graph {
	t.Helper()
	s := content.NewMemoryStore()
	_, err := content.ImportJSON(context.Background(), s, []byte(tree), content.ImportOptions{})
	require.NoError(t, err)
	reg := schema.Default()
	base := vnode.New(vnode.Options{Store: s, Registry: reg, Engine: facet.NewIndex(s, reg, nil)})
	g, err := graph.NewVirtualGraph(base, graph.Options{})
	require.NoError(t, err)
	return g
}

func newTestConfig() *api.Config {
	return &api.Config{Version: "v1", Mounts: []api.Mount{{Name: "colors", Kind: api.KindFacetSearch}}}
}

func names(infos []os.FileInfo) []string {
	out := make([]string, len(infos))
	for i, e := range infos {
		out[i] = e.Name()
	}
	return out
}

func TestStatRoot(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), newTestConfig())

	info, err := gfs.Stat("/")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "/", info.Name())
}

func TestStatConfigJSON(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), newTestConfig())

	info, err := gfs.Stat("/" + ConfigFile)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	assert.Equal(t, ConfigFile, info.Name())
	assert.True(t, info.Size() > 0)
}

func TestStatPropertyFile(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), newTestConfig())

	info, err := gfs.Stat("/docs/a/@title")
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	assert.Equal(t, "@title", info.Name())
	assert.Equal(t, int64(len("Release notes\n")), info.Size())
	assert.Equal(t, os.FileMode(0o444), info.Mode())
}

func TestStatVirtualDir(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), newTestConfig())

	info, err := gfs.Stat("/colors/red")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "red", info.Name())
}

func TestStatNotFound(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), newTestConfig())

	_, err := gfs.Stat("/nonexistent")
	assert.True(t, os.IsNotExist(err))
}

func TestReadDirRoot(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), newTestConfig())

	entries, err := gfs.ReadDir("/")
	require.NoError(t, err)
	assert.Subset(t, names(entries), []string{ConfigFile, "docs", "colors", "@jcr:primaryType"})
}

func TestReadDirFacetSearch(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), newTestConfig())

	entries, err := gfs.ReadDir("/colors")
	require.NoError(t, err)
	assert.Subset(t, names(entries), []string{"blue", "red", schema.NameResultSet, "@hippo:count"})

	entries, err = gfs.ReadDir("/colors/red/" + schema.NameResultSet)
	require.NoError(t, err)
	assert.Contains(t, names(entries), "a")
	assert.NotContains(t, names(entries), "b")
}

func TestReadDirNotADirectory(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), newTestConfig())

	_, err := gfs.ReadDir("/docs/a/@title")
	assert.Error(t, err)
	_, err = gfs.ReadDir("/missing")
	assert.True(t, os.IsNotExist(err))
}

func TestOpenAndRead(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), newTestConfig())

	f, err := gfs.Open("/colors/blue/hippo:resultset/b/@title")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "Roadmap\n", string(data))
}

func TestOpenConfigJSON(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), newTestConfig())

	f, err := gfs.Open("/" + ConfigFile)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind": "facetsearch"`)
}

func TestReadAt(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), newTestConfig())

	f, err := gfs.Open("/docs/a/@title")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	buf := make([]byte, 5)
	n, _ := f.ReadAt(buf, 8)
	require.True(t, n > 0)
	assert.Equal(t, "notes", string(buf[:n]))

	_, err = f.ReadAt(buf, 100)
	assert.Equal(t, io.EOF, err)
}

func TestSeek(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), newTestConfig())

	f, err := gfs.Open("/docs/a/@title")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	pos, err := f.Seek(8, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(8), pos)

	buf := make([]byte, 5)
	n, _ := f.Read(buf)
	require.True(t, n > 0)
	assert.Equal(t, "notes", string(buf[:n]))
}

func TestOpenDiagnostics(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), newTestConfig())

	info, err := gfs.Stat("/broken/" + graph.DiagnosticsName)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	f, err := gfs.Open("/broken/" + graph.DiagnosticsName)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Contains(t, string(data), "bogus")
	assert.Equal(t, info.Size(), int64(len(data)))

	entries, err := gfs.ReadDir("/broken")
	require.NoError(t, err)
	assert.Contains(t, names(entries), graph.DiagnosticsName)
	assert.Contains(t, names(entries), schema.NameResultSet)
}

// swappableGraph serves fixed leaf nodes and records lookups. Content
// reads fail so tests notice a file going back to the graph.
type swappableGraph struct {
	graph.Graph
	mu     sync.Mutex
	leaves map[string]*graph.Node
	gets   []string
}

func (g *swappableGraph) GetNode(id string) (*graph.Node, error) {
	g.mu.Lock()
	g.gets = append(g.gets, id)
	n, ok := g.leaves[id]
	g.mu.Unlock()
	if ok {
		return n, nil
	}
	return g.Graph.GetNode(id)
}

func (g *swappableGraph) ReadContent(string, []byte, int64) (int, error) {
	return 0, fmt.Errorf("content read after open")
}

func (g *swappableGraph) set(id, data string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaves[id] = &graph.Node{ID: id, Data: []byte(data)}
}

func (g *swappableGraph) lookups() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.gets...)
}

func TestOpenSnapshotsData(t *testing.T) {
	g := &swappableGraph{Graph: newTestGraph(t), leaves: make(map[string]*graph.Node)}
	g.set("/notes", "first version\n")
	gfs := NewGraphFS(g, newTestConfig())

	f, err := gfs.Open("/notes")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	cfg, err := gfs.Open("/" + ConfigFile)
	require.NoError(t, err)
	defer func() { _ = cfg.Close() }()

	g.set("/notes", "second\n")
	gfs.SetConfig(nil)

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "first version\n", string(data))
	data, err = io.ReadAll(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind": "facetsearch"`)

	f2, err := gfs.Open("/notes")
	require.NoError(t, err)
	data, err = io.ReadAll(f2)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(data))
}

func TestReadDirDoesNotResolveChildDirectories(t *testing.T) {
	g := &swappableGraph{Graph: newTestGraph(t), leaves: make(map[string]*graph.Node)}
	gfs := NewGraphFS(g, newTestConfig())

	entries, err := gfs.ReadDir("/colors/red/" + schema.NameResultSet)
	require.NoError(t, err)
	for _, e := range entries {
		if e.Name() == "a" {
			assert.True(t, e.IsDir())
		}
	}
	assert.Contains(t, names(entries), "a")
	for _, id := range g.lookups() {
		assert.False(t, strings.HasSuffix(id, "/a"), "child directory %s was resolved", id)
	}
}

func TestOpenDirectoryFails(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), newTestConfig())

	_, err := gfs.Open("/docs")
	assert.Error(t, err)
	_, err = gfs.Open("/nonexistent")
	assert.True(t, os.IsNotExist(err))
}

func TestReadOnly(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), newTestConfig())

	_, err := gfs.Create("newfile.txt")
	assert.Equal(t, errReadOnly, err)

	_, err = gfs.OpenFile("/docs/a/@title", os.O_RDWR, 0)
	assert.ErrorIs(t, err, errReadOnly)

	err = gfs.MkdirAll("/newdir", 0o755)
	assert.Equal(t, errReadOnly, err)

	err = gfs.Remove("/docs/a")
	assert.Equal(t, errReadOnly, err)

	err = gfs.Rename("/docs", "/renamed")
	assert.Equal(t, errReadOnly, err)
}

func TestCapabilities(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), newTestConfig())

	caps := gfs.Capabilities()
	assert.NotZero(t, caps&billy.ReadCapability)
	assert.NotZero(t, caps&billy.SeekCapability)
	assert.Zero(t, caps&billy.WriteCapability)
}

func TestChroot(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), newTestConfig())

	sub, err := gfs.Chroot("/docs")
	require.NoError(t, err)
	info, err := sub.Stat("/a/@color")
	require.NoError(t, err)
	assert.Equal(t, int64(len("red\n")), info.Size())
}

func TestRootAndJoin(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), nil)
	assert.Equal(t, "/", gfs.Root())
	assert.Equal(t, "a/b/c", gfs.Join("a", "b", "c"))

	info, err := gfs.Stat("/" + ConfigFile)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestNFSServerStarts(t *testing.T) {
	gfs := NewGraphFS(newTestGraph(t), newTestConfig())

	srv, err := NewServer(gfs, "127.0.0.1:0", nil)
	require.NoError(t, err)

	assert.True(t, srv.Port() > 0, "server should be on a valid port")

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", srv.Port()))
	require.NoError(t, err)
	_ = conn.Close()

	require.NoError(t, srv.Close())
	<-srv.Done()
}
