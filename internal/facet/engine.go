package facet

import (
	"context"

	"github.com/agentic-research/facetfs/internal/content"
)

// Count is the number of hits for one breakout value.
type Count struct {
	N int64
}

// HitsRequested controls whether View returns the matching nodes.
type HitsRequested struct {
	ResultRequested bool
	Offset          int
	Limit           int // <= 0 means no limit
}

// Result of a View call. Length is the total number of matches regardless
// of how many hits were returned.
type Result struct {
	Length int64
	Hits   []content.ID
}

// Query is a parsed docbase scope.
type Query struct {
	Docbase content.ID
	scope   uint32 // preorder position of the docbase
}

// Engine answers faceted-navigation queries.
type Engine interface {
	// Parse resolves a docbase (a node id, or "" for the root) into a query scope.
	Parse(ctx context.Context, docbase string) (*Query, error)

	// View counts the nodes under q that satisfy every constraint (field ->
	// raw term). When breakout is non-empty the second return maps each
	// value of that field, suffixed with its type tag, to its count; values
	// with no matches are omitted.
	View(ctx context.Context, queryName string, q *Query, constraints map[string]string,
		breakout string, hits HitsRequested) (*Result, map[string]Count, error)
}
