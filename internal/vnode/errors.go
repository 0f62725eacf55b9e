package vnode

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamMissing means the node a mirror, view or bootstrap copy
	// depends on no longer resolves.
	ErrUpstreamMissing = errors.New("upstream node missing")
	// ErrNoProvider means no provider is registered for an identity kind.
	ErrNoProvider = errors.New("no provider registered")
	// ErrTopLevelFacetSearch is returned when a top facet search node is
	// populated from a virtual identity; it only exists as a stored node.
	ErrTopLevelFacetSearch = errors.New("cannot populate top facetsearch node")
)

// SchemaError is a facet, property or type name the schema does not know.
type SchemaError struct {
	Type string
	Name string
	Err  error
}

func (e *SchemaError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("schema: %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("schema: %s on %s: %v", e.Name, e.Type, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// DecodeError is a facet value that failed its type decode or could not
// be turned into a legal node name.
type DecodeError struct {
	Facet string
	Raw   string
	Tag   byte
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode facet %s value %q (tag %q): %v", e.Facet, e.Raw, e.Tag, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EngineError wraps a failure of the faceted-navigation engine.
type EngineError struct {
	QueryName string
	Err       error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("facet engine (query %s): %v", e.QueryName, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }
