package content

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/facetfs/internal/schema"
)

// ImportOptions controls ImportJSON.
type ImportOptions struct {
	// Selector is a JSONPath choosing the node objects to import. Defaults to "$".
	Selector string
	// Parent is the stored path the selected nodes are attached under.
	Parent string
}

// ImportJSON reads a JSON content tree and writes it through rw. It returns
// the number of nodes written. Node objects look like
//
//	{"name": "doc", "type": "hippo:document", "mixins": ["mix:referenceable"],
//	 "uuid": "...", "properties": {"color": ["red", "blue"],
//	 "price": {"type": "Long", "value": "42"}}, "children": [...]}
//
// An object of type rep:root is merged into the parent instead of added below it.
// Nodes without a uuid get one derived from their parent and name, so
// importing the same document twice rewrites the same nodes.
func ImportJSON(ctx context.Context, rw ReadWriter, data []byte, opts ImportOptions) (int, error) {
	doc, err := oj.ParseString(string(data))
	if err != nil {
		return 0, fmt.Errorf("parse content json: %w", err)
	}
	selector := opts.Selector
	if selector == "" {
		selector = "$"
	}
	x, err := jp.ParseString(selector)
	if err != nil {
		return 0, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}

	parentID, err := ResolvePath(ctx, rw, opts.Parent)
	if err != nil {
		return 0, fmt.Errorf("resolve import parent %q: %w", opts.Parent, err)
	}
	parent, err := rw.GetNodeState(ctx, parentID)
	if err != nil {
		return 0, err
	}

	im := &importer{}
	for _, v := range x.Get(doc) {
		items, ok := v.([]any)
		if !ok {
			items = []any{v}
		}
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				return 0, fmt.Errorf("selected value is %T, want a node object", item)
			}
			if err := im.node(obj, parent); err != nil {
				return 0, err
			}
		}
	}

	for _, st := range append(im.states, parent) {
		if err := rw.PutNode(ctx, st); err != nil {
			return 0, err
		}
	}
	return len(im.states), nil
}

type importer struct {
	states []*NodeState
	seen   map[string]int
}

// segment numbers same-name siblings among the imported nodes only, so ids
// do not depend on what the parent already held.
func (im *importer) segment(parent *NodeState, name string) string {
	if im.seen == nil {
		im.seen = make(map[string]int)
	}
	k := parent.ID.Key() + "/" + name
	im.seen[k]++
	return ChildEntry{Name: name, Index: im.seen[k]}.Segment()
}

// node builds obj under parent, or merges it into parent for rep:root.
func (im *importer) node(obj map[string]any, parent *NodeState) error {
	typ, _ := obj["type"].(string)
	if typ == schema.NTRoot {
		if err := setProperties(parent, obj["properties"]); err != nil {
			return err
		}
		return im.children(obj["children"], parent)
	}

	name, _ := obj["name"].(string)
	if name == "" {
		return fmt.Errorf("node object under %s has no name", parent.ID.Key())
	}
	if typ == "" {
		typ = schema.NTUnstructured
	}

	var id ID
	if u, ok := obj["uuid"].(string); ok && u != "" {
		parsed, err := ParseID(u)
		if err != nil {
			return err
		}
		id = parsed
	} else {
		id = DerivedID(parent.ID.(ID), im.segment(parent, name))
	}

	st := NewNodeState(id, parent.ID, typ)
	if ms, ok := obj["mixins"].([]any); ok {
		for _, m := range ms {
			s, ok := m.(string)
			if !ok {
				return fmt.Errorf("node %s: mixin %v is not a string", name, m)
			}
			st.AddMixin(s)
		}
	}
	if err := setProperties(st, obj["properties"]); err != nil {
		return fmt.Errorf("node %s: %w", name, err)
	}
	if st.HasMixin(schema.MixReferenceable) || st.HasMixin(schema.MixHardDocument) {
		st.SetProperty(StringProp(schema.PropUUID, string(id)))
	}

	if !parent.HasChild(id) {
		parent.AddChild(name, id)
	}
	if err := im.children(obj["children"], st); err != nil {
		return err
	}
	im.states = append(im.states, st)
	return nil
}

func (im *importer) children(v any, parent *NodeState) error {
	if v == nil {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return fmt.Errorf("children of %s must be an array", parent.ID.Key())
	}
	for _, c := range list {
		obj, ok := c.(map[string]any)
		if !ok {
			return fmt.Errorf("child of %s is %T, want a node object", parent.ID.Key(), c)
		}
		if err := im.node(obj, parent); err != nil {
			return err
		}
	}
	return nil
}

func setProperties(st *NodeState, v any) error {
	if v == nil {
		return nil
	}
	props, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("properties must be an object")
	}
	names := make([]string, 0, len(props))
	for n := range props {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		p, err := toProperty(n, props[n])
		if err != nil {
			return err
		}
		st.SetProperty(p)
	}
	return nil
}

func toProperty(name string, v any) (Property, error) {
	switch x := v.(type) {
	case []any:
		p := Property{Name: name, Multiple: true}
		for _, e := range x {
			typ, s, err := scalar(e)
			if err != nil {
				return Property{}, fmt.Errorf("property %s: %w", name, err)
			}
			if p.Type == 0 {
				p.Type = typ
			}
			p.Values = append(p.Values, s)
		}
		if p.Type == 0 {
			p.Type = schema.String
		}
		return p, nil
	case map[string]any:
		return typedProperty(name, x)
	default:
		typ, s, err := scalar(x)
		if err != nil {
			return Property{}, fmt.Errorf("property %s: %w", name, err)
		}
		return Property{Name: name, Type: typ, Values: []string{s}}, nil
	}
}

// typedProperty handles {"type": "Long", "value": ...} and {"type": ..., "values": [...]}.
func typedProperty(name string, obj map[string]any) (Property, error) {
	ts, _ := obj["type"].(string)
	typ, err := schema.ParsePropertyType(ts)
	if err != nil {
		return Property{}, fmt.Errorf("property %s: %w", name, err)
	}
	p := Property{Name: name, Type: typ}
	if vs, ok := obj["values"].([]any); ok {
		p.Multiple = true
		for _, e := range vs {
			_, s, err := scalar(e)
			if err != nil {
				return Property{}, fmt.Errorf("property %s: %w", name, err)
			}
			p.Values = append(p.Values, s)
		}
	} else {
		_, s, err := scalar(obj["value"])
		if err != nil {
			return Property{}, fmt.Errorf("property %s: %w", name, err)
		}
		p.Values = []string{s}
	}
	if typ == schema.Date {
		for _, s := range p.Values {
			if _, err := time.Parse(time.RFC3339, s); err != nil {
				return Property{}, fmt.Errorf("property %s: date %q: %w", name, s, err)
			}
		}
	}
	return p, nil
}

func scalar(v any) (schema.PropertyType, string, error) {
	switch x := v.(type) {
	case string:
		return schema.String, x, nil
	case bool:
		return schema.Boolean, strconv.FormatBool(x), nil
	case int64:
		return schema.Long, strconv.FormatInt(x, 10), nil
	case float64:
		return schema.Double, strconv.FormatFloat(x, 'g', -1, 64), nil
	default:
		return 0, "", fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

// LockFile takes an exclusive advisory lock on path+".lock", retrying until
// ctx is done. The returned func releases it.
func LockFile(ctx context.Context, path string) (func() error, error) {
	fl := flock.New(path + ".lock")
	ok, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: not acquired", path)
	}
	return fl.Unlock, nil
}
