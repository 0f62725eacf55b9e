package facet

import (
	"fmt"
	"regexp"
	"strings"
)

// constraintPattern is the accumulated-search grammar: @facet='value'
// with an optional #modifier after the closing quote. A ' inside the value
// is not escaped.
var constraintPattern = regexp.MustCompile(`^@([^=]+)='(.+)'(#[^']*)?$`)

// Constraint is one accumulated facet=value restriction.
type Constraint struct {
	Facet    string
	Value    string
	Modifier string // "" or "#name"
}

// NewConstraint builds the constraint produced by breaking out facetSpec
// (which may carry a #modifier) at the raw term value.
func NewConstraint(facetSpec, value string) Constraint {
	base, mod := SplitFacetSpec(facetSpec)
	return Constraint{Facet: base, Value: value, Modifier: mod}
}

func ParseConstraint(s string) (Constraint, error) {
	m := constraintPattern.FindStringSubmatch(s)
	if m == nil {
		return Constraint{}, fmt.Errorf("malformed constraint %q", s)
	}
	return Constraint{Facet: m[1], Value: m[2], Modifier: m[3]}, nil
}

func (c Constraint) String() string {
	return "@" + c.Facet + "='" + c.Value + "'" + c.Modifier
}

// Field is the index field the constraint applies to.
func (c Constraint) Field() string {
	return c.Facet + c.Modifier
}

// SplitFacetSpec splits "name#modifier" into "name" and "#modifier".
func SplitFacetSpec(spec string) (string, string) {
	if i := strings.IndexByte(spec, '#'); i >= 0 {
		return spec[:i], spec[i:]
	}
	return spec, ""
}
