// Package vnode materializes virtual nodes: mirrored, filtered and
// facet-partitioned trees computed on demand from stored content.
//
// Every virtual node is identified by an immutable ID value that carries
// all the state needed to recompute it. Providers populate a node state
// from an ID and mint (but do not resolve) the IDs of its children, so
// resolution is lazy one level at a time.
package vnode

import (
	"fmt"

	"github.com/agentic-research/facetfs/internal/content"
)

// Kind tags the identity variants.
type Kind uint8

const (
	KindMirror Kind = iota + 1
	KindView
	KindBootstrap
	KindFacetSearch
	KindResultSet
)

var kindNames = map[Kind]string{
	KindMirror:      "mirror",
	KindView:        "view",
	KindBootstrap:   "bootstrap",
	KindFacetSearch: "facetsearch",
	KindResultSet:   "resultset",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ID is a virtual node identity. The concrete types are MirrorID, ViewID,
// BootstrapID, FacetSearchID and ResultSetID.
type ID interface {
	content.NodeID
	Kind() Kind
	Parent() content.NodeID
	Name() string
}

// position is the part every identity shares: where the node sits under
// its parent. Key derives from it alone.
type position struct {
	parent content.NodeID
	name   string
	index  int
}

func (p position) Parent() content.NodeID { return p.parent }
func (p position) Name() string           { return p.name }

func (p position) Key() string {
	return p.parent.Key() + "/" + content.ChildEntry{Name: p.name, Index: p.index}.Segment()
}

// at returns the position the next child called name gets in sb.
func at(sb *content.Siblings, name string) position {
	return position{parent: sb.Parent().ID, name: name, index: sb.Next(name)}
}

// MirrorID is a relabeled copy of Upstream.
type MirrorID struct {
	position
	Upstream content.ID
}

func (MirrorID) Kind() Kind { return KindMirror }

// ViewID is a mirror filtered by View. Single limits handles to their first
// matching variant.
type ViewID struct {
	position
	Upstream content.ID
	View     *View
	Single   bool
}

func (ViewID) Kind() Kind { return KindView }

// BootstrapID is an unfiltered structural copy of Upstream.
type BootstrapID struct {
	position
	Upstream content.ID
}

func (BootstrapID) Kind() Kind { return KindBootstrap }

// FacetSearchID carries the provenance of a facet search path. Facets is
// never mutated; descending re-slices it. Count is advisory.
type FacetSearchID struct {
	position
	QueryName string
	Docbase   string
	Facets    []string
	Search    Seq
	Count     int64
}

func (FacetSearchID) Kind() Kind { return KindFacetSearch }

// ResultSetID exposes the nodes matching Search under Docbase.
type ResultSetID struct {
	position
	QueryName string
	Docbase   string
	Search    Seq
	Count     int64
}

func (ResultSetID) Kind() Kind { return KindResultSet }

var (
	_ ID = MirrorID{}
	_ ID = ViewID{}
	_ ID = BootstrapID{}
	_ ID = FacetSearchID{}
	_ ID = ResultSetID{}
)
