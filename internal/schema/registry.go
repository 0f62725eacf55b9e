// Package schema is the node type registry consulted by the virtual
// providers. Name resolution and property definition lookups go through
// a Registry value handed to the providers at construction time.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrUnknownNamespace = errors.New("unknown namespace")
	ErrIllegalName      = errors.New("illegal name")
	ErrUnknownType      = errors.New("unknown node type")
	ErrNoDefinition     = errors.New("no matching definition")
)

// PropertyType is the value type of a property.
type PropertyType uint8

const (
	String PropertyType = iota + 1
	Boolean
	Long
	Double
	Date
	Reference
)

var typeNames = map[PropertyType]string{
	String:    "String",
	Boolean:   "Boolean",
	Long:      "Long",
	Double:    "Double",
	Date:      "Date",
	Reference: "Reference",
}

func (t PropertyType) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("PropertyType(%d)", uint8(t))
}

// ParsePropertyType is case-insensitive and accepts the names printed by String.
func ParsePropertyType(s string) (PropertyType, error) {
	for t, n := range typeNames {
		if strings.EqualFold(n, s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown property type %q", s)
}

// Residual is the property or child name of a definition that matches any name.
const Residual = "*"

// PropertyDef declares a property on a node type.
type PropertyDef struct {
	DeclaringType string
	Name          string
	Type          PropertyType
	Multiple      bool
}

// NodeDef declares a child node on a node type.
type NodeDef struct {
	DeclaringType string
	Name          string
	RequiredType  string
}

// NodeType describes a primary or mixin node type.
type NodeType struct {
	Name       string
	Mixin      bool
	Supertypes []string
	Properties []PropertyDef
	Children   []NodeDef

	// Container types group other nodes and are never facet search hits.
	Container bool
}

// Registry resolves names and definitions.
type Registry interface {
	// ResolveName validates a qualified name ("prefix:local" or "local")
	// and returns it in canonical form.
	ResolveName(name string) (string, error)
	NodeType(name string) (*NodeType, error)
	PropertyDef(typeName, propName string) (PropertyDef, error)
	NodeDef(parentType, childName string) (NodeDef, error)
	IsContainer(typeName string) bool
}

// MemoryRegistry is a Registry held in memory. Safe for concurrent use.
type MemoryRegistry struct {
	mu         sync.RWMutex
	namespaces map[string]string // prefix → uri
	types      map[string]*NodeType
}

func NewRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		namespaces: map[string]string{"": ""},
		types:      make(map[string]*NodeType),
	}
}

// RegisterNamespace adds a prefix. Re-registering a prefix replaces its uri.
func (r *MemoryRegistry) RegisterNamespace(prefix, uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.namespaces[prefix] = uri
}

// Namespaces returns the registered prefixes in sorted order.
func (r *MemoryRegistry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.namespaces))
	for p := range r.namespaces {
		if p != "" {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Define adds or replaces a node type. Definitions inherit the type name
// as their declaring type when left empty.
func (r *MemoryRegistry) Define(t NodeType) error {
	if _, err := r.ResolveName(t.Name); err != nil {
		return err
	}
	for i := range t.Properties {
		if t.Properties[i].DeclaringType == "" {
			t.Properties[i].DeclaringType = t.Name
		}
	}
	for i := range t.Children {
		if t.Children[i].DeclaringType == "" {
			t.Children[i].DeclaringType = t.Name
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t.Name] = &t
	return nil
}

func (r *MemoryRegistry) ResolveName(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/[]*|'\"\t\r\n") {
		return "", fmt.Errorf("%w: %q", ErrIllegalName, name)
	}
	prefix, local := "", name
	if i := strings.IndexByte(name, ':'); i >= 0 {
		prefix, local = name[:i], name[i+1:]
	}
	if local == "" || strings.ContainsRune(local, ':') {
		return "", fmt.Errorf("%w: %q", ErrIllegalName, name)
	}
	r.mu.RLock()
	_, ok := r.namespaces[prefix]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q in %q", ErrUnknownNamespace, prefix, name)
	}
	return name, nil
}

func (r *MemoryRegistry) NodeType(name string) (*NodeType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return t, nil
}

func (r *MemoryRegistry) IsContainer(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	found := false
	r.walk(typeName, func(t *NodeType) bool {
		found = t.Container
		return found
	})
	return found
}

// PropertyDef finds the definition of propName on typeName or one of its
// supertypes. Named definitions win over residual ones.
func (r *MemoryRegistry) PropertyDef(typeName, propName string) (PropertyDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.types[typeName]; !ok {
		return PropertyDef{}, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
	}
	var named, residual *PropertyDef
	r.walk(typeName, func(t *NodeType) bool {
		for i := range t.Properties {
			d := &t.Properties[i]
			switch {
			case d.Name == propName:
				named = d
				return true
			case d.Name == Residual && residual == nil:
				residual = d
			}
		}
		return false
	})
	if named != nil {
		return *named, nil
	}
	if residual != nil {
		d := *residual
		d.Name = propName
		return d, nil
	}
	return PropertyDef{}, fmt.Errorf("%w: property %s on %s", ErrNoDefinition, propName, typeName)
}

func (r *MemoryRegistry) NodeDef(parentType, childName string) (NodeDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.types[parentType]; !ok {
		return NodeDef{}, fmt.Errorf("%w: %s", ErrUnknownType, parentType)
	}
	var named, residual *NodeDef
	r.walk(parentType, func(t *NodeType) bool {
		for i := range t.Children {
			d := &t.Children[i]
			switch {
			case d.Name == childName:
				named = d
				return true
			case d.Name == Residual && residual == nil:
				residual = d
			}
		}
		return false
	})
	if named != nil {
		return *named, nil
	}
	if residual != nil {
		d := *residual
		d.Name = childName
		return d, nil
	}
	return NodeDef{}, fmt.Errorf("%w: child %s on %s", ErrNoDefinition, childName, parentType)
}

// walk visits typeName and its supertypes depth first until fn returns true.
// Must be called with r.mu held.
func (r *MemoryRegistry) walk(typeName string, fn func(*NodeType) bool) bool {
	seen := make(map[string]bool)
	var visit func(string) bool
	visit = func(name string) bool {
		if seen[name] {
			return false
		}
		seen[name] = true
		t, ok := r.types[name]
		if !ok {
			return false
		}
		if fn(t) {
			return true
		}
		for _, s := range t.Supertypes {
			if visit(s) {
				return true
			}
		}
		return false
	}
	return visit(typeName)
}

var _ Registry = (*MemoryRegistry)(nil)
