package vnode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentic-research/facetfs/internal/content"
	"github.com/agentic-research/facetfs/internal/facet"
	"github.com/agentic-research/facetfs/internal/metrics"
	"github.com/agentic-research/facetfs/internal/schema"
)

const tree = `{
  "type": "rep:root",
  "children": [
    {"name": "content", "type": "hippo:folder", "children": [
      {"name": "docs", "type": "hippo:folder", "children": [
        {"name": "a", "type": "hippo:document", "properties": {"x": "1", "y": "red", "n": 5}},
        {"name": "b", "type": "hippo:document", "properties": {"x": "1", "y": "blue", "n": 7}},
        {"name": "c", "type": "hippo:document", "properties": {"x": "2", "y": "red", "n": 5}}
      ]},
      {"name": "news", "type": "hippo:handle", "children": [
        {"name": "news", "type": "hippo:request", "properties": {"type": "publish"}},
        {"name": "news", "type": "hippo:document",
         "mixins": ["hippo:harddocument", "mix:referenceable"],
         "properties": {"color": "red", "state": "draft"}},
        {"name": "news", "type": "hippo:document",
         "mixins": ["hippo:harddocument", "mix:referenceable"],
         "properties": {"color": "red", "state": "published"}}
      ]}
    ]},
    {"name": "search", "type": "hippo:facetsearch", "properties": {
      "hippo:queryname": "xy", "hippo:docbase": "/content/docs", "hippo:facets": ["x", "y"]}},
    {"name": "numbers", "type": "hippo:facetsearch", "properties": {
      "hippo:queryname": "n", "hippo:docbase": "/content/docs", "hippo:facets": ["n"]}},
    {"name": "flat", "type": "hippo:facetsearch", "properties": {
      "hippo:queryname": "flat", "hippo:docbase": "/content/docs", "hippo:facets": []}},
    {"name": "mirror", "type": "hippo:mirror", "properties": {"hippo:docbase": "/content"}},
    {"name": "boot", "type": "hippo:bootstrap", "properties": {"hippo:docbase": "/content"}},
    {"name": "single", "type": "hippo:facetselect", "properties": {
      "hippo:docbase": "/content", "hippo:facets": ["color"], "hippo:values": ["red"],
      "hippo:modes": ["single"]}},
    {"name": "blue", "type": "hippo:facetselect", "properties": {
      "hippo:docbase": "/content", "hippo:facets": ["color"], "hippo:values": ["blue"]}},
    {"name": "events", "type": "hippo:folder", "children": [
      {"name": "e1", "type": "hippo:document", "properties": {
        "when": {"type": "Date", "value": "2024-03-01T10:00:00Z"}}},
      {"name": "e2", "type": "hippo:document", "properties": {
        "when": {"type": "Date", "value": "2024-07-09T10:00:00Z"}}},
      {"name": "e3", "type": "hippo:document", "properties": {
        "when": {"type": "Date", "value": "2023-01-01T00:00:00Z"}}}
    ]},
    {"name": "calendar", "type": "hippo:facetsearch", "properties": {
      "hippo:queryname": "cal", "hippo:docbase": "/events", "hippo:facets": ["when#year", "when#month"]}},
    {"name": "palette", "type": "hippo:folder", "children": [
      {"name": "green", "type": "hippo:folder", "properties": {"color": "green"}, "children": [
        {"name": "inner", "type": "hippo:document", "properties": {"color": "green"}}
      ]},
      {"name": "plain", "type": "hippo:folder"}
    ]},
    {"name": "bluepalette", "type": "hippo:facetselect", "properties": {
      "hippo:docbase": "/palette", "hippo:facets": ["color"], "hippo:values": ["blue"]}}
  ]
}`

type fixture struct {
	store   *content.MemoryStore
	base    *Base
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	s := content.NewMemoryStore()
	_, err := content.ImportJSON(context.Background(), s, []byte(tree), content.ImportOptions{})
	require.NoError(t, err)

	reg := schema.Default()
	opts.Store = s
	opts.Registry = reg
	if opts.Engine == nil {
		opts.Engine = facet.NewIndex(s, reg, nil)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &fixture{store: s, base: New(opts), metrics: opts.Metrics}
}

// stored resolves a stored path through the base.
func (f *fixture) stored(t *testing.T, path string) *content.NodeState {
	t.Helper()
	id, err := content.ResolvePath(context.Background(), f.store, path)
	require.NoError(t, err)
	st, err := f.base.Resolve(context.Background(), id)
	require.NoError(t, err)
	return st
}

// child resolves the named child of st.
func (f *fixture) child(t *testing.T, st *content.NodeState, name string, index int) *content.NodeState {
	t.Helper()
	c, ok := st.Child(name, index)
	require.True(t, ok, "no child %s[%d] under %s", name, index, st.ID.Key())
	got, err := f.base.Resolve(context.Background(), c.ID)
	require.NoError(t, err)
	return got
}

func childNames(st *content.NodeState) []string {
	var names []string
	for _, c := range st.Children {
		names = append(names, c.Segment())
	}
	return names
}

func propValue(t *testing.T, st *content.NodeState, name string) string {
	t.Helper()
	p, ok := st.Property(name)
	require.True(t, ok, "no property %s", name)
	return p.Value()
}

// fakeEngine answers every View with fixed values.
type fakeEngine struct {
	length int64
	values map[string]facet.Count
	err    error
	calls  int
}

func (e *fakeEngine) Parse(context.Context, string) (*facet.Query, error) {
	return &facet.Query{}, nil
}

func (e *fakeEngine) View(_ context.Context, _ string, _ *facet.Query, _ map[string]string,
	_ string, _ facet.HitsRequested) (*facet.Result, map[string]facet.Count, error) {
	e.calls++
	if e.err != nil {
		return nil, nil, e.err
	}
	return &facet.Result{Length: e.length}, e.values, nil
}
