package content

import (
	"context"
	"fmt"
)

// Overlay layers configuration nodes over a base store without writing to
// it. Attached nodes appear after the base root's own children.
type Overlay struct {
	base     Store
	nodes    map[ID]*NodeState
	attached []ChildEntry
}

func NewOverlay(base Store) *Overlay {
	return &Overlay{base: base, nodes: make(map[ID]*NodeState)}
}

// Put adds a node that is only reachable through another overlay node.
func (o *Overlay) Put(st *NodeState) error {
	id, ok := st.ID.(ID)
	if !ok {
		return fmt.Errorf("overlay: %s is not a physical id", st.ID.Key())
	}
	if err := checkPhysicalChildren(st); err != nil {
		return err
	}
	o.nodes[id] = st.Clone()
	return nil
}

// Attach adds st as a child of the root under name.
func (o *Overlay) Attach(name string, st *NodeState) error {
	st = st.Clone()
	st.ParentID = RootID
	if err := o.Put(st); err != nil {
		return err
	}
	o.attached = append(o.attached, ChildEntry{Name: name, ID: st.ID})
	return nil
}

func (o *Overlay) GetNodeState(ctx context.Context, id ID) (*NodeState, error) {
	if st, ok := o.nodes[id]; ok {
		return st.Clone(), nil
	}
	st, err := o.base.GetNodeState(ctx, id)
	if err != nil {
		return nil, err
	}
	if id == RootID {
		for _, c := range o.attached {
			if !st.HasChild(c.ID) {
				st.AddChild(c.Name, c.ID)
			}
		}
	}
	return st, nil
}

var _ Store = (*Overlay)(nil)
