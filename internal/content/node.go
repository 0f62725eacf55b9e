// Package content holds the physically stored content tree: node identities,
// node states with typed properties, and the stores that persist them.
package content

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/agentic-research/facetfs/internal/schema"
)

var ErrNotFound = errors.New("node not found")

// RootID is the identity of the root node in every store.
const RootID ID = "cafebabe-cafe-babe-cafe-babecafebabe"

var derivedSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/agentic-research/facetfs"))

// NodeID is any node identity: a physical ID or a virtual identity
// minted by a provider. Key is stable and unique across kinds.
type NodeID interface {
	Key() string
}

// ID identifies a physically stored node. It is a uuid string.
type ID string

func NewID() ID { return ID(uuid.NewString()) }

// DerivedID returns a deterministic identity for the child called name
// under parent. Imports use it so re-importing the same tree is idempotent.
func DerivedID(parent ID, name string) ID {
	return ID(uuid.NewSHA1(derivedSpace, []byte(string(parent)+"/"+name)).String())
}

func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse node id %q: %w", s, err)
	}
	return ID(u.String()), nil
}

func (id ID) Key() string    { return string(id) }
func (id ID) String() string { return string(id) }

// Property is a named, typed, possibly multi-valued property. Values are
// kept in their string form regardless of type.
type Property struct {
	Name     string
	Type     schema.PropertyType
	Multiple bool
	Values   []string
}

// Value returns the first value, or "" when there is none.
func (p Property) Value() string {
	if len(p.Values) == 0 {
		return ""
	}
	return p.Values[0]
}

func StringProp(name string, values ...string) Property {
	return Property{Name: name, Type: schema.String, Multiple: len(values) != 1, Values: values}
}

// ChildEntry is one (name, identity) pair in a node's ordered child list.
// Index is the 1-based same-name-sibling index.
type ChildEntry struct {
	Name  string
	Index int
	ID    NodeID
}

// Segment renders the entry as a path segment ("name" or "name[n]").
func (c ChildEntry) Segment() string {
	if c.Index > 1 {
		return fmt.Sprintf("%s[%d]", c.Name, c.Index)
	}
	return c.Name
}

// NodeState is the materialized content of one node.
type NodeState struct {
	ID          NodeID
	ParentID    NodeID
	PrimaryType string
	Mixins      []string
	Properties  []Property
	Children    []ChildEntry

	// Diagnostics lists per-child errors contained while populating.
	Diagnostics []error
}

func NewNodeState(id, parent NodeID, primaryType string) *NodeState {
	return &NodeState{ID: id, ParentID: parent, PrimaryType: primaryType}
}

// SetProperty replaces the property of the same name or appends it.
func (s *NodeState) SetProperty(p Property) {
	for i := range s.Properties {
		if s.Properties[i].Name == p.Name {
			s.Properties[i] = p
			return
		}
	}
	s.Properties = append(s.Properties, p)
}

func (s *NodeState) Property(name string) (Property, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Values returns the values of the named property, nil when absent.
func (s *NodeState) Values(name string) []string {
	p, ok := s.Property(name)
	if !ok {
		return nil
	}
	return p.Values
}

func (s *NodeState) HasMixin(name string) bool {
	i := sort.SearchStrings(s.Mixins, name)
	return i < len(s.Mixins) && s.Mixins[i] == name
}

// AddMixin keeps Mixins sorted and free of duplicates.
func (s *NodeState) AddMixin(name string) {
	i := sort.SearchStrings(s.Mixins, name)
	if i < len(s.Mixins) && s.Mixins[i] == name {
		return
	}
	s.Mixins = append(s.Mixins, "")
	copy(s.Mixins[i+1:], s.Mixins[i:])
	s.Mixins[i] = name
}

func (s *NodeState) RemoveMixin(name string) {
	i := sort.SearchStrings(s.Mixins, name)
	if i < len(s.Mixins) && s.Mixins[i] == name {
		s.Mixins = append(s.Mixins[:i:i], s.Mixins[i+1:]...)
	}
}

// AddChild appends a child, assigning its same-name-sibling index.
func (s *NodeState) AddChild(name string, id NodeID) ChildEntry {
	e := ChildEntry{Name: name, Index: s.NextIndex(name), ID: id}
	s.Children = append(s.Children, e)
	return e
}

// Siblings appends children to a state in one pass, numbering same-name
// siblings from a counter instead of rescanning Children per add.
type Siblings struct {
	st   *NodeState
	next map[string]int
}

// NewSiblings counts the children st already has.
func NewSiblings(st *NodeState) *Siblings {
	sb := &Siblings{st: st, next: make(map[string]int, len(st.Children))}
	for _, c := range st.Children {
		sb.next[c.Name]++
	}
	return sb
}

// Parent is the state children are appended to.
func (sb *Siblings) Parent() *NodeState {
	return sb.st
}

// Next is the index the next child called name gets.
func (sb *Siblings) Next(name string) int {
	return sb.next[name] + 1
}

// Add appends a child at index Next(name).
func (sb *Siblings) Add(name string, id NodeID) ChildEntry {
	e := ChildEntry{Name: name, Index: sb.Next(name), ID: id}
	sb.next[name] = e.Index
	sb.st.Children = append(sb.st.Children, e)
	return e
}

// HasChild reports whether id is already among the children.
func (s *NodeState) HasChild(id NodeID) bool {
	for _, c := range s.Children {
		if c.ID.Key() == id.Key() {
			return true
		}
	}
	return false
}

// Child finds a child by name and 1-based index.
func (s *NodeState) Child(name string, index int) (ChildEntry, bool) {
	if index < 1 {
		index = 1
	}
	for _, c := range s.Children {
		if c.Name == name && c.Index == index {
			return c, true
		}
	}
	return ChildEntry{}, false
}

// NextIndex is the same-name-sibling index the next child called name gets.
func (s *NodeState) NextIndex(name string) int {
	n := 1
	for _, c := range s.Children {
		if c.Name == name {
			n++
		}
	}
	return n
}

// Clone returns a deep copy. Identities are shared since they are immutable.
func (s *NodeState) Clone() *NodeState {
	c := &NodeState{
		ID:          s.ID,
		ParentID:    s.ParentID,
		PrimaryType: s.PrimaryType,
		Mixins:      append([]string(nil), s.Mixins...),
		Children:    append([]ChildEntry(nil), s.Children...),
		Diagnostics: append([]error(nil), s.Diagnostics...),
	}
	if s.Properties != nil {
		c.Properties = make([]Property, len(s.Properties))
		for i, p := range s.Properties {
			p.Values = append([]string(nil), p.Values...)
			c.Properties[i] = p
		}
	}
	return c
}
