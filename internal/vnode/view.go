package vnode

import (
	"context"
	"fmt"
	"sort"

	"github.com/agentic-research/facetfs/internal/content"
	"github.com/agentic-research/facetfs/internal/schema"
)

// View is an immutable facet -> value constraint map. Descendants share
// the same *View.
type View struct {
	m    map[string]string
	keys []string
}

// NewView copies m.
func NewView(m map[string]string) *View {
	v := &View{m: make(map[string]string, len(m))}
	for k, val := range m {
		v.m[k] = val
		v.keys = append(v.keys, k)
	}
	sort.Strings(v.keys)
	return v
}

func (v *View) Len() int {
	if v == nil {
		return 0
	}
	return len(v.keys)
}

func (v *View) Get(facet string) (string, bool) {
	if v == nil {
		return "", false
	}
	val, ok := v.m[facet]
	return val, ok
}

// Facets returns the constrained facet names in sorted order.
func (v *View) Facets() []string {
	if v == nil {
		return nil
	}
	return append([]string(nil), v.keys...)
}

// view is a mirror whose handles only show the variants matching a fixed
// facet -> value map.
type view struct {
	*mirror
}

// PopulateChildren reads the view definition from a hippo:facetselect node
// and lists the matching children of its docbase.
func (v *view) PopulateChildren(ctx context.Context, st *content.NodeState) (*content.NodeState, error) {
	vw, single, err := viewConfig(st)
	if err != nil {
		return nil, err
	}
	up, err := v.b.docbaseState(ctx, st)
	if err != nil {
		return nil, err
	}
	if err := v.addChildren(ctx, st, up, vw, single); err != nil {
		return nil, err
	}
	return st, nil
}

func (v *view) Populate(ctx context.Context, id ID) (*content.NodeState, error) {
	vid, ok := id.(ViewID)
	if !ok {
		return nil, fmt.Errorf("view: unexpected identity %T", id)
	}
	up, err := v.b.upstream(ctx, vid.Upstream)
	if err != nil {
		return nil, err
	}
	st, err := v.copyState(vid, up)
	if err != nil {
		return nil, err
	}
	if err := v.addChildren(ctx, st, up, vid.View, vid.Single); err != nil {
		return nil, err
	}
	return st, nil
}

// addChildren wraps the children of up. Only the variants inside a handle
// are filtered; every other node passes, the view root included. In single
// mode a handle shows its first matching non-request child and nothing else.
func (v *view) addChildren(ctx context.Context, st, up *content.NodeState, vw *View, single bool) error {
	isHandle := up.PrimaryType == schema.NTHandle
	sb := content.NewSiblings(st)
	for _, c := range up.Children {
		child, ok := c.ID.(content.ID)
		if !ok {
			continue
		}
		if isHandle {
			ok, err := v.match(ctx, vw, child)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		if isHandle && single {
			cst, err := v.b.upstream(ctx, child)
			if err != nil {
				return err
			}
			if cst.PrimaryType == schema.NTRequest {
				continue
			}
		}
		sb.Add(c.Name, ViewID{position: at(sb, c.Name), Upstream: child, View: vw, Single: single})
		if isHandle && single {
			break
		}
	}
	return nil
}

// match reports whether candidate satisfies every constraint of vw. A
// constraint passes when the candidate lacks the property, when its value
// is empty or "*", or when one stored value equals it.
func (v *view) match(ctx context.Context, vw *View, candidate content.ID) (bool, error) {
	if vw.Len() == 0 {
		return true, nil
	}
	st, err := v.b.upstream(ctx, candidate)
	if err != nil {
		return false, err
	}
	return Match(vw, st), nil
}

// Match applies the view constraints to a node state.
func Match(vw *View, st *content.NodeState) bool {
	for _, facet := range vw.Facets() {
		want, _ := vw.Get(facet)
		if want == "" || want == "*" {
			continue
		}
		stored := st.Values(facet)
		if len(stored) == 0 {
			continue
		}
		found := false
		for _, s := range stored {
			if s == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// viewConfig builds the view map facets[i] -> values[i] of a view root.
func viewConfig(st *content.NodeState) (*View, bool, error) {
	facets := st.Values(schema.PropFacets)
	values := st.Values(schema.PropValues)
	if len(facets) != len(values) {
		return nil, false, &SchemaError{
			Type: st.PrimaryType,
			Name: schema.PropValues,
			Err:  fmt.Errorf("%d facets but %d values", len(facets), len(values)),
		}
	}
	m := make(map[string]string, len(facets))
	for i, f := range facets {
		m[f] = values[i]
	}
	single := false
	for _, mode := range st.Values(schema.PropModes) {
		if mode == schema.ModeSingle {
			single = true
		}
	}
	return NewView(m), single, nil
}
