package vnode

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agentic-research/facetfs/internal/content"
	"github.com/agentic-research/facetfs/internal/facet"
	"github.com/agentic-research/facetfs/internal/schema"
)

// resultSet lists the documents matching an accumulated search as mirrors
// of the stored documents.
type resultSet struct {
	b *Base
}

func (r *resultSet) PopulateChildren(ctx context.Context, st *content.NodeState) (*content.NodeState, error) {
	queryName, err := requiredValue(st, schema.PropQueryName)
	if err != nil {
		return nil, err
	}
	docbase, err := requiredValue(st, schema.PropDocbase)
	if err != nil {
		return nil, err
	}
	return r.populate(ctx, st, queryName, docbase, SeqOf(st.Values(schema.PropSearch)...))
}

func (r *resultSet) Populate(ctx context.Context, id ID) (*content.NodeState, error) {
	v, ok := id.(ResultSetID)
	if !ok {
		return nil, fmt.Errorf("result set: unexpected identity %T", id)
	}
	st := r.b.CreateNew(v, v.Parent(), schema.NTFacetResult)
	st.SetProperty(content.StringProp(schema.PropQueryName, v.QueryName))
	st.SetProperty(content.StringProp(schema.PropDocbase, v.Docbase))
	st.SetProperty(multiProp(schema.PropSearch, v.Search.Slice()))
	st.SetProperty(countProp(v.Count))
	return r.populate(ctx, st, v.QueryName, v.Docbase, v.Search)
}

func (r *resultSet) populate(ctx context.Context, st *content.NodeState, queryName, docbase string, search Seq) (*content.NodeState, error) {
	constraints, err := r.b.currentQuery(search)
	if err != nil {
		r.b.logger.Error("result set: unknown facet in accumulated search",
			zap.Stringer("search", search), zap.Error(err))
		st.Diagnostics = append(st.Diagnostics, err)
		return st, nil
	}
	hits := facet.HitsRequested{ResultRequested: true, Limit: r.b.maxHits}
	res, _, err := r.b.view(ctx, queryName, docbase, constraints, "", hits)
	if err != nil {
		return nil, err
	}
	st.SetProperty(countProp(res.Length))
	names := hitNames{b: r.b, parents: make(map[content.ID]map[string]string)}
	sb := content.NewSiblings(st)
	for _, hit := range res.Hits {
		name, err := names.of(ctx, hit)
		if err != nil {
			return nil, err
		}
		sb.Add(name, MirrorID{position: at(sb, name), Upstream: hit})
	}
	return st, nil
}

// hitNames finds the names hits have under their stored parents. Each
// parent's child list is read once per population.
type hitNames struct {
	b       *Base
	parents map[content.ID]map[string]string
}

func (h hitNames) of(ctx context.Context, id content.ID) (string, error) {
	st, err := h.b.upstream(ctx, id)
	if err != nil {
		return "", err
	}
	parentID, ok := st.ParentID.(content.ID)
	if !ok {
		return "", fmt.Errorf("%w: %s has no stored parent", ErrUpstreamMissing, id)
	}
	names, ok := h.parents[parentID]
	if !ok {
		parent, err := h.b.upstream(ctx, parentID)
		if err != nil {
			return "", err
		}
		names = make(map[string]string, len(parent.Children))
		for _, c := range parent.Children {
			names[c.ID.Key()] = c.Name
		}
		h.parents[parentID] = names
	}
	name, ok := names[id.Key()]
	if !ok {
		return "", fmt.Errorf("%w: %s is not a child of %s", ErrUpstreamMissing, id, parentID)
	}
	return name, nil
}
