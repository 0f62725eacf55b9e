package vnode

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/facetfs/internal/content"
	"github.com/agentic-research/facetfs/internal/schema"
)

func TestMirror_IdentityHygiene(t *testing.T) {
	f := newFixture(t, Options{})
	root := f.stored(t, "/mirror")
	assert.Equal(t, []string{"docs", "news"}, childNames(root))

	news := f.child(t, root, "news", 1)
	assert.Equal(t, schema.NTHandle, news.PrimaryType)
	assert.Equal(t, []string{"news", "news[2]", "news[3]"}, childNames(news))

	entry, _ := news.Child("news", 2)
	upstream := entry.ID.(MirrorID).Upstream
	doc := f.child(t, news, "news", 2)

	assert.Equal(t, []string{schema.MixSoftDocument}, doc.Mixins)
	assert.False(t, doc.HasMixin(schema.MixReferenceable))
	_, hasUUID := doc.Property(schema.PropUUID)
	assert.False(t, hasUUID)
	assert.Equal(t, string(upstream), propValue(t, doc, schema.PropAliasUUID))
	assert.Equal(t, "draft", propValue(t, doc, "state"))
	assert.Equal(t, entry.ID, doc.ID)
	assert.Equal(t, news.ID, doc.ParentID)
}

func TestMirror_UpstreamMissing(t *testing.T) {
	f := newFixture(t, Options{})
	id := MirrorID{position: position{parent: content.RootID, name: "gone", index: 1}, Upstream: content.NewID()}

	_, err := f.base.Resolve(context.Background(), id)
	assert.ErrorIs(t, err, ErrUpstreamMissing)
	assert.ErrorIs(t, err, content.ErrNotFound)
}

func TestMirror_DocbaseMissing(t *testing.T) {
	f := newFixture(t, Options{})
	st := content.NewNodeState(content.NewID(), content.RootID, schema.NTMirror)
	st.SetProperty(content.StringProp(schema.PropDocbase, "/nowhere"))

	_, err := f.base.roots[schema.NTMirror].PopulateChildren(context.Background(), st)
	assert.ErrorIs(t, err, ErrUpstreamMissing)

	st = content.NewNodeState(content.NewID(), content.RootID, schema.NTMirror)
	_, err = f.base.roots[schema.NTMirror].PopulateChildren(context.Background(), st)
	var se *SchemaError
	assert.True(t, errors.As(err, &se))
}

func TestBootstrap_KeepsDocumentMixins(t *testing.T) {
	f := newFixture(t, Options{})
	root := f.stored(t, "/boot")
	news := f.child(t, root, "news", 1)
	doc := f.child(t, news, "news", 3)

	assert.Equal(t, []string{schema.MixHardDocument}, doc.Mixins)
	_, ok := doc.Property(schema.PropUUID)
	assert.False(t, ok)
	_, ok = doc.Property(schema.PropAliasUUID)
	assert.False(t, ok)
	assert.Equal(t, "published", propValue(t, doc, "state"))

	for _, c := range doc.Children {
		_, ok := c.ID.(BootstrapID)
		assert.True(t, ok)
	}
}

func TestView_SingleShowsFirstMatchingVariant(t *testing.T) {
	f := newFixture(t, Options{})
	root := f.stored(t, "/single")
	assert.Equal(t, []string{"docs", "news"}, childNames(root))

	news := f.child(t, root, "news", 1)
	require.Equal(t, []string{"news"}, childNames(news))
	doc := f.child(t, news, "news", 1)
	assert.Equal(t, schema.NTDocument, doc.PrimaryType)
	assert.Equal(t, "draft", propValue(t, doc, "state"))

	parent, _ := root.Child("news", 1)
	child, _ := news.Child("news", 1)
	assert.Same(t, parent.ID.(ViewID).View, child.ID.(ViewID).View)
	assert.True(t, child.ID.(ViewID).Single)
}

func TestView_FiltersOnlyInsideHandles(t *testing.T) {
	f := newFixture(t, Options{})
	root := f.stored(t, "/blue")

	news := f.child(t, root, "news", 1)
	require.Equal(t, []string{"news"}, childNames(news))
	assert.Equal(t, schema.NTRequest, f.child(t, news, "news", 1).PrimaryType)

	docs := f.child(t, root, "docs", 1)
	assert.Equal(t, []string{"a", "b", "c"}, childNames(docs))
}

func TestView_RootChildrenAreNotFiltered(t *testing.T) {
	f := newFixture(t, Options{})
	root := f.stored(t, "/bluepalette")
	assert.Equal(t, []string{"green", "plain"}, childNames(root))

	green := f.child(t, root, "green", 1)
	assert.Equal(t, "green", propValue(t, green, "color"))
	assert.Equal(t, []string{"inner"}, childNames(green))
	_, ok := green.Children[0].ID.(ViewID)
	assert.True(t, ok)
}

func TestView_ConfigMismatch(t *testing.T) {
	st := content.NewNodeState(content.NewID(), content.RootID, schema.NTFacetSelect)
	st.SetProperty(content.StringProp(schema.PropFacets, "a", "b"))
	st.SetProperty(content.StringProp(schema.PropValues, "x"))

	_, _, err := viewConfig(st)
	var se *SchemaError
	assert.True(t, errors.As(err, &se))
}

func TestMatch(t *testing.T) {
	red := content.NewNodeState(content.NewID(), nil, schema.NTDocument)
	red.SetProperty(content.StringProp("colorFacet", "red", "dark"))
	plain := content.NewNodeState(content.NewID(), nil, schema.NTDocument)

	cases := []struct {
		name string
		view map[string]string
		st   *content.NodeState
		want bool
	}{
		{"empty view", nil, red, true},
		{"wildcard", map[string]string{"colorFacet": "*"}, red, true},
		{"empty value", map[string]string{"colorFacet": ""}, red, true},
		{"equal", map[string]string{"colorFacet": "red"}, red, true},
		{"any stored value", map[string]string{"colorFacet": "dark"}, red, true},
		{"mismatch", map[string]string{"colorFacet": "blue"}, red, false},
		{"absent property", map[string]string{"colorFacet": "blue"}, plain, true},
		{"conjunctive", map[string]string{"colorFacet": "red", "size": "l", "other": "x"}, red, true},
		{"one fails", map[string]string{"colorFacet": "red", "shade": "x"}, withProp(red, "shade", "y"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Match(NewView(tc.view), tc.st))
		})
	}
}

func withProp(st *content.NodeState, name, value string) *content.NodeState {
	c := st.Clone()
	c.SetProperty(content.StringProp(name, value))
	return c
}
