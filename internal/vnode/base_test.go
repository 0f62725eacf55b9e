package vnode

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/facetfs/internal/content"
	"github.com/agentic-research/facetfs/internal/schema"
)

func TestBase_PlainStoredNodesPassThrough(t *testing.T) {
	f := newFixture(t, Options{})
	st := f.stored(t, "/content/docs")
	assert.Equal(t, []string{"a", "b", "c"}, childNames(st))
	for _, c := range st.Children {
		_, ok := c.ID.(content.ID)
		assert.True(t, ok)
	}
}

func TestBase_NoProvider(t *testing.T) {
	b := NewBase(Options{Store: content.NewMemoryStore(), Registry: schema.Default()})
	id := MirrorID{position: position{parent: content.RootID, name: "x", index: 1}, Upstream: content.RootID}

	_, err := b.Resolve(context.Background(), id)
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestBase_CancelledContext(t *testing.T) {
	f := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.base.Resolve(ctx, content.RootID)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBase_RecordsPopulations(t *testing.T) {
	f := newFixture(t, Options{})
	root := f.stored(t, "/mirror")
	f.child(t, root, "docs", 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PopulationsTotal.WithLabelValues(schema.NTMirror, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PopulationsTotal.WithLabelValues("mirror", "ok")))
}

func TestBase_PlatformLookups(t *testing.T) {
	f := newFixture(t, Options{})

	def, err := f.base.PropertyDef(schema.MixSoftDocument, schema.PropAliasUUID)
	require.NoError(t, err)
	assert.Equal(t, schema.PropAliasUUID, def.Name)

	_, err = f.base.PropertyDef("nope:type", "x")
	var se *SchemaError
	assert.ErrorAs(t, err, &se)

	nd, err := f.base.NodeDef(schema.NTFacetSearch, schema.NameResultSet)
	require.NoError(t, err)
	assert.Equal(t, schema.NTFacetResult, nd.RequiredType)
}
