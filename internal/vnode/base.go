package vnode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentic-research/facetfs/internal/content"
	"github.com/agentic-research/facetfs/internal/facet"
	"github.com/agentic-research/facetfs/internal/metrics"
	"github.com/agentic-research/facetfs/internal/schema"
)

// Provider computes the full state of a virtual node from its identity.
type Provider interface {
	Populate(ctx context.Context, id ID) (*content.NodeState, error)
}

// RootProvider adds virtual children to a stored configuration node of a
// type it owns. st is already a private copy.
type RootProvider interface {
	PopulateChildren(ctx context.Context, st *content.NodeState) (*content.NodeState, error)
}

// DateRenderer formats a raw date facet value for display. Nil means the
// raw value is shown unchanged.
type DateRenderer func(raw string) (string, error)

// Options configures a Base.
type Options struct {
	Store    content.Store
	Registry schema.Registry
	Engine   facet.Engine
	Logger   *zap.Logger
	Metrics  *metrics.Metrics

	// MaxHits bounds the children of a result set node; <= 0 means no bound.
	MaxHits      int
	DateRenderer DateRenderer
}

// Base dispatches identities to providers and gives providers read access
// to the store, the schema and the query engine. It holds no mutable state
// after New returns and is safe for concurrent use.
type Base struct {
	store   content.Store
	reg     schema.Registry
	engine  facet.Engine
	logger  *zap.Logger
	metrics *metrics.Metrics
	maxHits int
	dates   DateRenderer

	roots map[string]RootProvider
	kinds map[Kind]Provider
}

// New builds a Base with every provider registered.
func New(opts Options) *Base {
	b := NewBase(opts)

	m := &mirror{b: b}
	b.RegisterRoot(schema.NTMirror, m)
	b.RegisterKind(KindMirror, m)

	v := &view{mirror: m}
	b.RegisterRoot(schema.NTFacetSelect, v)
	b.RegisterKind(KindView, v)

	bs := &bootstrap{b: b}
	b.RegisterRoot(schema.NTBootstrap, bs)
	b.RegisterKind(KindBootstrap, bs)

	fs := &facetSearch{b: b}
	b.RegisterRoot(schema.NTFacetSearch, fs)
	sub := &subSearch{facetSearch: fs}
	b.RegisterRoot(schema.NTFacetSubSearch, sub)
	b.RegisterKind(KindFacetSearch, sub)

	rs := &resultSet{b: b}
	b.RegisterRoot(schema.NTFacetResult, rs)
	b.RegisterKind(KindResultSet, rs)
	return b
}

// NewBase returns a Base with no providers registered.
func NewBase(opts Options) *Base {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Base{
		store:   opts.Store,
		reg:     opts.Registry,
		engine:  opts.Engine,
		logger:  logger,
		metrics: opts.Metrics,
		maxHits: opts.MaxHits,
		dates:   opts.DateRenderer,
		roots:   make(map[string]RootProvider),
		kinds:   make(map[Kind]Provider),
	}
}

// RegisterRoot makes p own stored nodes of primaryType. Not safe to call
// concurrently with Resolve.
func (b *Base) RegisterRoot(primaryType string, p RootProvider) {
	b.roots[primaryType] = p
}

// RegisterKind makes p populate identities of kind k. Not safe to call
// concurrently with Resolve.
func (b *Base) RegisterKind(k Kind, p Provider) {
	b.kinds[k] = p
}

// Resolve materializes any node. Stored nodes of a registered type get
// their virtual children appended; virtual identities go to the provider
// registered for their kind.
func (b *Base) Resolve(ctx context.Context, id content.NodeID) (*content.NodeState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch v := id.(type) {
	case content.ID:
		st, err := b.store.GetNodeState(ctx, v)
		if err != nil {
			return nil, err
		}
		rp, ok := b.roots[st.PrimaryType]
		if !ok {
			return st, nil
		}
		kind := st.PrimaryType
		start := time.Now()
		st, err = rp.PopulateChildren(ctx, st)
		b.metrics.ObservePopulation(kind, time.Since(start), err)
		if err != nil {
			return nil, fmt.Errorf("populate %s: %w", v, err)
		}
		return st, nil
	case ID:
		p, ok := b.kinds[v.Kind()]
		if !ok {
			return nil, fmt.Errorf("%w for %s", ErrNoProvider, v.Kind())
		}
		start := time.Now()
		st, err := p.Populate(ctx, v)
		b.metrics.ObservePopulation(v.Kind().String(), time.Since(start), err)
		if err != nil {
			return nil, fmt.Errorf("populate %s: %w", v.Key(), err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("resolve: unsupported identity %T", id)
	}
}

// GetNodeState reads a stored node.
func (b *Base) GetNodeState(ctx context.Context, id content.ID) (*content.NodeState, error) {
	return b.store.GetNodeState(ctx, id)
}

// upstream reads a stored node a virtual node depends on.
func (b *Base) upstream(ctx context.Context, id content.ID) (*content.NodeState, error) {
	st, err := b.store.GetNodeState(ctx, id)
	if errors.Is(err, content.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s: %w", ErrUpstreamMissing, id, err)
	}
	return st, err
}

// PropertyDef looks up a property definition.
func (b *Base) PropertyDef(typeName, name string) (schema.PropertyDef, error) {
	def, err := b.reg.PropertyDef(typeName, name)
	if err != nil {
		return schema.PropertyDef{}, &SchemaError{Type: typeName, Name: name, Err: err}
	}
	return def, nil
}

// NodeDef looks up a child node definition.
func (b *Base) NodeDef(parentType, name string) (schema.NodeDef, error) {
	def, err := b.reg.NodeDef(parentType, name)
	if err != nil {
		return schema.NodeDef{}, &SchemaError{Type: parentType, Name: name, Err: err}
	}
	return def, nil
}

// ResolveName checks a qualified name against the registered namespaces.
func (b *Base) ResolveName(name string) (string, error) {
	n, err := b.reg.ResolveName(name)
	if err != nil {
		return "", &SchemaError{Name: name, Err: err}
	}
	return n, nil
}

// CreateNew returns an empty state for a synthesized node.
func (b *Base) CreateNew(id, parent content.NodeID, primaryType string) *content.NodeState {
	return content.NewNodeState(id, parent, primaryType)
}

// docbase resolves a docbase property value: a node id, or an absolute
// path starting with "/".
func (b *Base) docbase(ctx context.Context, value string) (content.ID, error) {
	if strings.HasPrefix(value, "/") {
		id, err := content.ResolvePath(ctx, b.store, value)
		if err != nil {
			return "", fmt.Errorf("docbase %s: %w", value, err)
		}
		return id, nil
	}
	id, err := content.ParseID(value)
	if err != nil {
		return "", fmt.Errorf("docbase: %w", err)
	}
	return id, nil
}

// requiredValue returns the first value of a stored configuration property.
func requiredValue(st *content.NodeState, name string) (string, error) {
	p, ok := st.Property(name)
	if !ok || len(p.Values) == 0 {
		return "", &SchemaError{Type: st.PrimaryType, Name: name, Err: schema.ErrNoDefinition}
	}
	return p.Values[0], nil
}
