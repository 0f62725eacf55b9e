package content

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/facetfs/internal/schema"
)

const sampleTree = `{
  "type": "rep:root",
  "children": [
    {"name": "content", "type": "hippo:folder", "children": [
      {"name": "news", "type": "hippo:handle", "children": [
        {"name": "news", "type": "hippo:request", "properties": {"type": "publish"}},
        {"name": "news", "type": "hippo:document",
         "mixins": ["hippo:harddocument", "mix:referenceable"],
         "properties": {
           "state": "published",
           "tags": ["a", "b"],
           "rank": 3,
           "score": 0.5,
           "draft": false,
           "date": {"type": "Date", "value": "2024-03-01T10:00:00Z"}
         }}
      ]}
    ]}
  ]
}`

func storeBackends(t *testing.T) map[string]ReadWriter {
	t.Helper()
	dir := t.TempDir()

	sq, err := OpenSQLite(filepath.Join(dir, "content.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })

	bs, err := OpenBolt(filepath.Join(dir, "content.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })

	return map[string]ReadWriter{
		"memory": NewMemoryStore(),
		"sqlite": sq,
		"bolt":   bs,
	}
}

func TestStores_ImportAndRead(t *testing.T) {
	ctx := context.Background()
	for name, s := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			n, err := ImportJSON(ctx, s, []byte(sampleTree), ImportOptions{})
			require.NoError(t, err)
			assert.Equal(t, 4, n)

			root, err := s.GetNodeState(ctx, RootID)
			require.NoError(t, err)
			assert.Equal(t, schema.NTRoot, root.PrimaryType)
			require.Len(t, root.Children, 1)
			assert.Equal(t, "content", root.Children[0].Name)

			handleID, err := ResolvePath(ctx, s, "/content/news")
			require.NoError(t, err)
			handle, err := s.GetNodeState(ctx, handleID)
			require.NoError(t, err)
			assert.Equal(t, schema.NTHandle, handle.PrimaryType)
			require.Len(t, handle.Children, 2)
			assert.Equal(t, 1, handle.Children[0].Index)
			assert.Equal(t, 2, handle.Children[1].Index)

			docID, err := ResolvePath(ctx, s, "/content/news/news[2]")
			require.NoError(t, err)
			doc, err := s.GetNodeState(ctx, docID)
			require.NoError(t, err)
			assert.Equal(t, handleID, doc.ParentID)
			assert.Equal(t, []string{"hippo:harddocument", "mix:referenceable"}, doc.Mixins)
			assert.Equal(t, []string{string(docID)}, doc.Values(schema.PropUUID))
			assert.Equal(t, []string{"a", "b"}, doc.Values("tags"))

			rank, ok := doc.Property("rank")
			require.True(t, ok)
			assert.Equal(t, schema.Long, rank.Type)
			assert.Equal(t, "3", rank.Value())

			score, _ := doc.Property("score")
			assert.Equal(t, schema.Double, score.Type)
			assert.Equal(t, "0.5", score.Value())

			draft, _ := doc.Property("draft")
			assert.Equal(t, schema.Boolean, draft.Type)

			date, _ := doc.Property("date")
			assert.Equal(t, schema.Date, date.Type)
			assert.False(t, date.Multiple)
		})
	}
}

func TestStores_ReimportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, s := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := ImportJSON(ctx, s, []byte(sampleTree), ImportOptions{})
			require.NoError(t, err)
			_, err = ImportJSON(ctx, s, []byte(sampleTree), ImportOptions{})
			require.NoError(t, err)

			root, err := s.GetNodeState(ctx, RootID)
			require.NoError(t, err)
			assert.Len(t, root.Children, 1)
		})
	}
}

func TestStores_NotFound(t *testing.T) {
	ctx := context.Background()
	for name, s := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetNodeState(ctx, NewID())
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStores_RejectVirtualChildren(t *testing.T) {
	ctx := context.Background()
	st := NewNodeState(NewID(), RootID, schema.NTFolder)
	st.AddChild("v", virtualID("x"))
	for name, s := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.PutNode(ctx, st))
		})
	}
}

type virtualID string

func (v virtualID) Key() string { return "virtual:" + string(v) }

func TestImportJSON_Selector(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	data := `{"items": [
		{"name": "a", "type": "hippo:document", "properties": {"x": "1"}},
		{"name": "a", "type": "hippo:document", "properties": {"x": "2"}}
	]}`

	n, err := ImportJSON(ctx, s, []byte(data), ImportOptions{Selector: "$.items"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	root, err := s.GetNodeState(ctx, RootID)
	require.NoError(t, err)
	require.Len(t, root.Children, 2)
	assert.Equal(t, "a[2]", root.Children[1].Segment())

	second, err := ResolvePath(ctx, s, "/a[2]")
	require.NoError(t, err)
	st, err := s.GetNodeState(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, st.Values("x"))
}

func TestImportJSON_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := ImportJSON(ctx, s, []byte(`{`), ImportOptions{})
	assert.Error(t, err)

	_, err = ImportJSON(ctx, s, []byte(`{"type": "hippo:folder"}`), ImportOptions{})
	assert.Error(t, err, "missing name")

	_, err = ImportJSON(ctx, s, []byte(`{"name": "d", "properties": {"when": {"type": "Date", "value": "yesterday"}}}`), ImportOptions{})
	assert.Error(t, err)

	_, err = ImportJSON(ctx, s, []byte(`{"name": "d"}`), ImportOptions{Parent: "/missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseSegment(t *testing.T) {
	name, idx, err := ParseSegment("doc[3]")
	require.NoError(t, err)
	assert.Equal(t, "doc", name)
	assert.Equal(t, 3, idx)

	name, idx, err = ParseSegment("doc")
	require.NoError(t, err)
	assert.Equal(t, "doc", name)
	assert.Equal(t, 1, idx)

	for _, bad := range []string{"doc[0]", "doc[x]", "[2]"} {
		_, _, err := ParseSegment(bad)
		assert.Error(t, err, bad)
	}
}

func TestNodeState_MixinsStaySorted(t *testing.T) {
	st := NewNodeState(NewID(), RootID, schema.NTDocument)
	st.AddMixin("mix:referenceable")
	st.AddMixin("hippo:harddocument")
	st.AddMixin("mix:referenceable")
	assert.Equal(t, []string{"hippo:harddocument", "mix:referenceable"}, st.Mixins)

	st.RemoveMixin("hippo:harddocument")
	assert.Equal(t, []string{"mix:referenceable"}, st.Mixins)
	assert.True(t, st.HasMixin("mix:referenceable"))
	assert.False(t, st.HasMixin("hippo:harddocument"))
}

func TestNodeState_CloneIsDeep(t *testing.T) {
	st := NewNodeState(NewID(), RootID, schema.NTDocument)
	st.SetProperty(StringProp("color", "red", "blue"))
	st.AddChild("c", NewID())

	c := st.Clone()
	c.Properties[0].Values[0] = "green"
	c.AddChild("d", NewID())

	assert.Equal(t, "red", st.Values("color")[0])
	assert.Len(t, st.Children, 1)
}

func TestOverlay_AttachesUnderRoot(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	_, err := ImportJSON(ctx, base, []byte(sampleTree), ImportOptions{})
	require.NoError(t, err)

	o := NewOverlay(base)
	mounts := NewNodeState(DerivedID(RootID, "mounts"), RootID, schema.NTFolder)
	search := NewNodeState(DerivedID(mounts.ID.(ID), "search"), mounts.ID, schema.NTFacetSearch)
	mounts.AddChild("search", search.ID)
	require.NoError(t, o.Put(search))
	require.NoError(t, o.Attach("mounts", mounts))

	root, err := o.GetNodeState(ctx, RootID)
	require.NoError(t, err)
	require.Len(t, root.Children, 2)
	assert.Equal(t, "mounts", root.Children[1].Name)

	id, err := ResolvePath(ctx, o, "/mounts/search")
	require.NoError(t, err)
	st, err := o.GetNodeState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, schema.NTFacetSearch, st.PrimaryType)

	baseRoot, err := base.GetNodeState(ctx, RootID)
	require.NoError(t, err)
	assert.Len(t, baseRoot.Children, 1, "base store is not modified")
}

func TestWalk(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := ImportJSON(ctx, s, []byte(sampleTree), ImportOptions{})
	require.NoError(t, err)

	var types []string
	require.NoError(t, Walk(ctx, s, RootID, func(st *NodeState) error {
		types = append(types, st.PrimaryType)
		return nil
	}))
	assert.Equal(t, []string{schema.NTRoot, schema.NTFolder, schema.NTHandle, schema.NTRequest, schema.NTDocument}, types)
}

func TestLockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.db")
	unlock, err := LockFile(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, unlock())
}

func TestSiblings_ContinuesExistingIndexes(t *testing.T) {
	st := NewNodeState(NewID(), RootID, schema.NTFolder)
	st.AddChild("a", NewID())
	st.AddChild("a", NewID())
	st.AddChild("b", NewID())

	sb := NewSiblings(st)
	assert.Same(t, st, sb.Parent())
	assert.Equal(t, 3, sb.Next("a"))
	assert.Equal(t, 1, sb.Next("c"))

	e := sb.Add("a", NewID())
	assert.Equal(t, 3, e.Index)
	assert.Equal(t, 4, sb.Next("a"))
	assert.Equal(t, 1, sb.Add("c", NewID()).Index)
	assert.Equal(t, 2, sb.Add("b", NewID()).Index)

	var segs []string
	for _, c := range st.Children {
		segs = append(segs, c.Segment())
	}
	assert.Equal(t, []string{"a", "a[2]", "b", "a[3]", "c", "b[2]"}, segs)
}
