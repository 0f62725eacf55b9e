package vnode

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/agentic-research/facetfs/internal/content"
	"github.com/agentic-research/facetfs/internal/facet"
	"github.com/agentic-research/facetfs/internal/schema"
)

// facetSearch partitions the documents under a docbase by the values of a
// list of facets, one facet per tree level. Stored hippo:facetsearch nodes
// are the roots; every level below is a FacetSearchID.
type facetSearch struct {
	b *Base
}

// searchParams is what one facet search level is computed from.
type searchParams struct {
	queryName string
	docbase   string
	facets    []string
	search    Seq
	count     int64
}

// PopulateChildren reads the search definition back from the stored
// properties of st.
func (f *facetSearch) PopulateChildren(ctx context.Context, st *content.NodeState) (*content.NodeState, error) {
	queryName, err := requiredValue(st, schema.PropQueryName)
	if err != nil {
		return nil, err
	}
	docbase, err := requiredValue(st, schema.PropDocbase)
	if err != nil {
		return nil, err
	}
	p := searchParams{
		queryName: queryName,
		docbase:   docbase,
		facets:    st.Values(schema.PropFacets),
		search:    SeqOf(st.Values(schema.PropSearch)...),
	}
	return f.populate(ctx, st, p)
}

// Populate always fails: a top facet search node only exists stored.
func (f *facetSearch) Populate(context.Context, ID) (*content.NodeState, error) {
	return nil, ErrTopLevelFacetSearch
}

func (f *facetSearch) populate(ctx context.Context, st *content.NodeState, p searchParams) (*content.NodeState, error) {
	count := p.count
	sb := content.NewSiblings(st)
	if len(p.facets) > 0 {
		n, err := f.breakOut(ctx, sb, p)
		if err != nil {
			return nil, err
		}
		if n >= 0 {
			count = n
		}
	}

	sb.Add(schema.NameResultSet, ResultSetID{
		position:  at(sb, schema.NameResultSet),
		QueryName: p.queryName,
		Docbase:   p.docbase,
		Search:    p.search,
		Count:     count,
	})
	return st, nil
}

// breakOut adds one sub-search child per value of the first outstanding
// facet and returns the number of matching documents. An unresolvable
// facet name is recorded on the state and yields -1; only engine failures
// are returned.
func (f *facetSearch) breakOut(ctx context.Context, sb *content.Siblings, p searchParams) (int64, error) {
	st := sb.Parent()
	breakout, err := f.b.ResolveName(p.facets[0])
	if err != nil {
		f.b.logger.Error("facet search: unknown breakout facet",
			zap.String("facet", p.facets[0]), zap.Error(err))
		st.Diagnostics = append(st.Diagnostics, err)
		return -1, nil
	}
	constraints, err := f.b.currentQuery(p.search)
	if err != nil {
		f.b.logger.Error("facet search: unknown facet in accumulated search",
			zap.Stringer("search", p.search), zap.Error(err))
		st.Diagnostics = append(st.Diagnostics, err)
		return -1, nil
	}

	res, values, err := f.b.view(ctx, p.queryName, p.docbase, constraints, breakout, facet.HitsRequested{})
	if err != nil {
		return 0, err
	}
	st.SetProperty(countProp(res.Length))

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rest := p.facets[1:]
	for _, key := range keys {
		raw, tag, ok := facet.SplitKey(key)
		if !ok {
			f.b.logger.Error("facet value with only a type tag, skipping",
				zap.String("facet", p.facets[0]), zap.String("key", key))
			continue
		}
		name, err := f.b.childName(p.facets[0], raw, tag)
		if err != nil {
			f.b.logger.Warn("cannot add facet search child",
				zap.String("facet", p.facets[0]), zap.String("value", raw), zap.Error(err))
			f.b.metrics.SkippedChild("decode")
			st.Diagnostics = append(st.Diagnostics, err)
			continue
		}
		sb.Add(name, FacetSearchID{
			position:  at(sb, name),
			QueryName: p.queryName,
			Docbase:   p.docbase,
			Facets:    rest,
			Search:    p.search.Append(facet.NewConstraint(p.facets[0], raw).String()),
			Count:     values[key].N,
		})
	}
	return res.Length, nil
}

// childName turns a breakout term into a legal node name.
func (b *Base) childName(facetSpec, raw string, tag byte) (string, error) {
	display, err := DisplayName(raw, tag, b.dates)
	if err != nil {
		return "", &DecodeError{Facet: facetSpec, Raw: raw, Tag: tag, Err: err}
	}
	encoded, err := EncodeName(display)
	if err != nil {
		return "", &DecodeError{Facet: facetSpec, Raw: raw, Tag: tag, Err: err}
	}
	name, err := b.ResolveName(encoded)
	if err != nil {
		return "", &DecodeError{Facet: facetSpec, Raw: raw, Tag: tag, Err: err}
	}
	return name, nil
}

// currentQuery turns accumulated constraints into the engine's field ->
// term map. Malformed entries are ignored; an unknown facet name fails.
func (b *Base) currentQuery(search Seq) (map[string]string, error) {
	q := make(map[string]string, search.Len())
	for _, s := range search.Slice() {
		c, err := facet.ParseConstraint(s)
		if err != nil {
			b.logger.Debug("ignoring malformed constraint", zap.String("constraint", s))
			continue
		}
		if _, err := b.ResolveName(c.Facet); err != nil {
			return nil, err
		}
		q[c.Field()] = c.Value
	}
	return q, nil
}

// view runs one engine query. Failures come back as *EngineError.
func (b *Base) view(ctx context.Context, queryName, docbase string, constraints map[string]string,
	breakout string, hits facet.HitsRequested) (*facet.Result, map[string]facet.Count, error) {
	start := time.Now()
	res, values, err := b.runView(ctx, queryName, docbase, constraints, breakout, hits)
	d := time.Since(start)
	b.metrics.ObserveEngine(d, err)
	if err != nil {
		return nil, nil, &EngineError{QueryName: queryName, Err: err}
	}
	b.logger.Debug("facetsearch turnaround",
		zap.String("query", queryName),
		zap.String("breakout", breakout),
		zap.Duration("duration", d))
	return res, values, nil
}

func (b *Base) runView(ctx context.Context, queryName, docbase string, constraints map[string]string,
	breakout string, hits facet.HitsRequested) (*facet.Result, map[string]facet.Count, error) {
	if b.engine == nil {
		return nil, nil, fmt.Errorf("no facet engine configured")
	}
	scope := docbase
	if len(docbase) > 0 && docbase[0] == '/' {
		id, err := b.docbase(ctx, docbase)
		if err != nil {
			return nil, nil, err
		}
		scope = string(id)
	}
	q, err := b.engine.Parse(ctx, scope)
	if err != nil {
		return nil, nil, err
	}
	return b.engine.View(ctx, queryName, q, constraints, breakout, hits)
}

func countProp(n int64) content.Property {
	return content.Property{Name: schema.PropCount, Type: schema.Long, Values: []string{strconv.FormatInt(n, 10)}}
}

// subSearch owns every level below a top facet search node.
type subSearch struct {
	*facetSearch
}

func (s *subSearch) Populate(ctx context.Context, id ID) (*content.NodeState, error) {
	v, ok := id.(FacetSearchID)
	if !ok {
		return nil, fmt.Errorf("facet subsearch: unexpected identity %T", id)
	}
	if _, err := s.b.NodeDef(schema.NTFacetSubSearch, v.Name()); err != nil {
		return nil, err
	}
	st := s.b.CreateNew(v, v.Parent(), schema.NTFacetSubSearch)
	st.SetProperty(content.StringProp(schema.PropQueryName, v.QueryName))
	st.SetProperty(content.StringProp(schema.PropDocbase, v.Docbase))
	st.SetProperty(multiProp(schema.PropFacets, v.Facets))
	st.SetProperty(multiProp(schema.PropSearch, v.Search.Slice()))
	st.SetProperty(countProp(v.Count))
	return s.populate(ctx, st, searchParams{
		queryName: v.QueryName,
		docbase:   v.Docbase,
		facets:    v.Facets,
		search:    v.Search,
		count:     v.Count,
	})
}

func multiProp(name string, values []string) content.Property {
	return content.Property{Name: name, Type: schema.String, Multiple: true, Values: append([]string(nil), values...)}
}
