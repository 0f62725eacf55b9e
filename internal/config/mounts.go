package config

import (
	"fmt"

	"github.com/agentic-research/facetfs/api"
	"github.com/agentic-research/facetfs/internal/content"
	"github.com/agentic-research/facetfs/internal/schema"
)

// MountsName is the root child that holds one node per configured mount.
const MountsName = "mounts"

var mountTypes = map[string]string{
	api.KindMirror:      schema.NTMirror,
	api.KindView:        schema.NTFacetSelect,
	api.KindBootstrap:   schema.NTBootstrap,
	api.KindFacetSearch: schema.NTFacetSearch,
}

// MountNode builds the stored configuration node for m under parent.
func MountNode(parent content.ID, m api.Mount) (*content.NodeState, error) {
	nt, ok := mountTypes[m.Kind]
	if !ok {
		return nil, fmt.Errorf("mount %q: unknown kind %q", m.Name, m.Kind)
	}
	st := content.NewNodeState(content.DerivedID(parent, m.Name), parent, nt)
	st.SetProperty(content.StringProp(schema.PropDocbase, m.Docbase))
	switch m.Kind {
	case api.KindView:
		st.SetProperty(multi(schema.PropFacets, m.Facets))
		st.SetProperty(multi(schema.PropValues, m.Values))
		st.SetProperty(multi(schema.PropModes, m.Modes))
	case api.KindFacetSearch:
		st.SetProperty(content.StringProp(schema.PropQueryName, m.QueryName))
		st.SetProperty(multi(schema.PropFacets, m.Facets))
	}
	return st, nil
}

func multi(name string, values []string) content.Property {
	p := content.StringProp(name, values...)
	p.Multiple = true
	return p
}

// AttachMounts places a hippo:folder called MountsName under the overlay
// root, holding the configuration node of each mount in order.
func AttachMounts(o *content.Overlay, mounts []api.Mount) error {
	if len(mounts) == 0 {
		return nil
	}
	folder := content.NewNodeState(content.DerivedID(content.RootID, MountsName), content.RootID, schema.NTFolder)
	parent := folder.ID.(content.ID)
	for _, m := range mounts {
		st, err := MountNode(parent, m)
		if err != nil {
			return err
		}
		if err := o.Put(st); err != nil {
			return err
		}
		folder.AddChild(m.Name, st.ID)
	}
	return o.Attach(MountsName, folder)
}
