package vnode

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentic-research/facetfs/internal/content"
	"github.com/agentic-research/facetfs/internal/schema"
)

// mirror re-exposes a stored subtree below a hippo:mirror node. Copies are
// marked as soft documents and lose their own referenceability.
type mirror struct {
	b *Base
}

// PopulateChildren lists the children of the docbase node under st.
func (m *mirror) PopulateChildren(ctx context.Context, st *content.NodeState) (*content.NodeState, error) {
	up, err := m.b.docbaseState(ctx, st)
	if err != nil {
		return nil, err
	}
	m.addChildren(st, up)
	return st, nil
}

func (m *mirror) Populate(ctx context.Context, id ID) (*content.NodeState, error) {
	v, ok := id.(MirrorID)
	if !ok {
		return nil, fmt.Errorf("mirror: unexpected identity %T", id)
	}
	up, err := m.b.upstream(ctx, v.Upstream)
	if err != nil {
		return nil, err
	}
	st, err := m.copyState(v, up)
	if err != nil {
		return nil, err
	}
	m.addChildren(st, up)
	return st, nil
}

func (m *mirror) addChildren(st, up *content.NodeState) {
	sb := content.NewSiblings(st)
	for _, c := range up.Children {
		child, ok := c.ID.(content.ID)
		if !ok {
			continue
		}
		sb.Add(c.Name, MirrorID{position: at(sb, c.Name), Upstream: child})
	}
}

// copyState builds the relabeled copy of up: referenceable is dropped,
// hard documents become soft documents and jcr:uuid moves to hippo:uuid.
func (m *mirror) copyState(id ID, up *content.NodeState) (*content.NodeState, error) {
	st := m.b.CreateNew(id, id.Parent(), up.PrimaryType)
	for _, mix := range up.Mixins {
		switch mix {
		case schema.MixReferenceable:
		case schema.MixHardDocument:
			st.AddMixin(schema.MixSoftDocument)
		default:
			st.AddMixin(mix)
		}
	}
	for _, p := range up.Properties {
		if p.Name == schema.PropUUID {
			def, err := m.b.PropertyDef(schema.MixSoftDocument, schema.PropAliasUUID)
			if err != nil {
				return nil, err
			}
			p.Name = def.Name
		}
		p.Values = append([]string(nil), p.Values...)
		st.SetProperty(p)
	}
	return st, nil
}

// bootstrap is an unfiltered structural copy. It drops referenceability
// and the identity property but keeps every other mixin.
type bootstrap struct {
	b *Base
}

func (bs *bootstrap) PopulateChildren(ctx context.Context, st *content.NodeState) (*content.NodeState, error) {
	up, err := bs.b.docbaseState(ctx, st)
	if err != nil {
		return nil, err
	}
	bs.addChildren(st, up)
	return st, nil
}

func (bs *bootstrap) Populate(ctx context.Context, id ID) (*content.NodeState, error) {
	v, ok := id.(BootstrapID)
	if !ok {
		return nil, fmt.Errorf("bootstrap: unexpected identity %T", id)
	}
	up, err := bs.b.upstream(ctx, v.Upstream)
	if err != nil {
		return nil, err
	}
	st := bs.b.CreateNew(v, v.Parent(), up.PrimaryType)
	for _, mix := range up.Mixins {
		if mix != schema.MixReferenceable {
			st.AddMixin(mix)
		}
	}
	for _, p := range up.Properties {
		if p.Name == schema.PropUUID {
			continue
		}
		p.Values = append([]string(nil), p.Values...)
		st.SetProperty(p)
	}
	bs.addChildren(st, up)
	return st, nil
}

func (bs *bootstrap) addChildren(st, up *content.NodeState) {
	sb := content.NewSiblings(st)
	for _, c := range up.Children {
		child, ok := c.ID.(content.ID)
		if !ok {
			continue
		}
		sb.Add(c.Name, BootstrapID{position: at(sb, c.Name), Upstream: child})
	}
}

// docbaseState reads the stored node a configuration node's hippo:docbase
// points at.
func (b *Base) docbaseState(ctx context.Context, st *content.NodeState) (*content.NodeState, error) {
	value, err := requiredValue(st, schema.PropDocbase)
	if err != nil {
		return nil, err
	}
	id, err := b.docbase(ctx, value)
	if errors.Is(err, content.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamMissing, err)
	}
	if err != nil {
		return nil, err
	}
	return b.upstream(ctx, id)
}
