package facet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"go.uber.org/zap"

	"github.com/agentic-research/facetfs/internal/content"
	"github.com/agentic-research/facetfs/internal/schema"
)

// Index is an Engine over a content.Store. Nodes are numbered in preorder
// so that every subtree is a contiguous range; each (field, term) pair has
// a posting bitmap over those numbers. Only nodes whose type is not a
// container are hits.
//
// The index is built on first use and rebuilt after Invalidate.
type Index struct {
	store  content.Store
	reg    schema.Registry
	logger *zap.Logger

	mu       sync.RWMutex
	built    bool
	ids      []content.ID
	pos      map[content.ID]uint32
	end      []uint32 // preorder -> exclusive end of its subtree
	docs     *roaring.Bitmap
	postings map[string]map[string]*roaring.Bitmap // field -> term+tag -> nodes
}

func NewIndex(store content.Store, reg schema.Registry, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{store: store, reg: reg, logger: logger}
}

// Invalidate drops the index; the next query rebuilds it.
func (ix *Index) Invalidate() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.built = false
}

// Rebuild walks the store from the root and replaces the index.
func (ix *Index) Rebuild(ctx context.Context) error {
	start := time.Now()
	b := &builder{
		reg:      ix.reg,
		logger:   ix.logger,
		pos:      make(map[content.ID]uint32),
		docs:     roaring.New(),
		postings: make(map[string]map[string]*roaring.Bitmap),
	}
	if err := b.visit(ctx, ix.store, content.RootID); err != nil {
		return fmt.Errorf("build facet index: %w", err)
	}

	ix.mu.Lock()
	ix.ids, ix.pos, ix.end = b.ids, b.pos, b.end
	ix.docs, ix.postings = b.docs, b.postings
	ix.built = true
	ix.mu.Unlock()

	ix.logger.Info("facet index built",
		zap.Int("nodes", len(b.ids)),
		zap.Uint64("documents", b.docs.GetCardinality()),
		zap.Int("fields", len(b.postings)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (ix *Index) ensure(ctx context.Context) error {
	ix.mu.RLock()
	built := ix.built
	ix.mu.RUnlock()
	if built {
		return nil
	}
	return ix.Rebuild(ctx)
}

func (ix *Index) Parse(ctx context.Context, docbase string) (*Query, error) {
	if err := ix.ensure(ctx); err != nil {
		return nil, err
	}
	id := content.RootID
	if docbase != "" {
		parsed, err := content.ParseID(docbase)
		if err != nil {
			return nil, fmt.Errorf("parse docbase: %w", err)
		}
		id = parsed
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	p, ok := ix.pos[id]
	if !ok {
		return nil, fmt.Errorf("docbase %s: %w", id, content.ErrNotFound)
	}
	return &Query{Docbase: id, scope: p}, nil
}

func (ix *Index) View(ctx context.Context, queryName string, q *Query, constraints map[string]string,
	breakout string, hits HitsRequested) (*Result, map[string]Count, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if q == nil {
		return nil, nil, fmt.Errorf("view %s: nil query", queryName)
	}
	if err := ix.ensure(ctx); err != nil {
		return nil, nil, err
	}
	start := time.Now()

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if int(q.scope) >= len(ix.ids) || ix.ids[q.scope] != q.Docbase {
		return nil, nil, fmt.Errorf("view %s: query scope %s is stale", queryName, q.Docbase)
	}

	candidates := roaring.New()
	candidates.AddRange(uint64(q.scope)+1, uint64(ix.end[q.scope]))
	candidates.And(ix.docs)
	for field, value := range constraints {
		candidates.And(ix.match(field, value))
	}

	res := &Result{Length: int64(candidates.GetCardinality())}
	var counts map[string]Count
	if breakout != "" {
		counts = make(map[string]Count)
		for key, bm := range ix.postings[breakout] {
			if n := candidates.AndCardinality(bm); n > 0 {
				counts[key] = Count{N: int64(n)}
			}
		}
	}
	if hits.ResultRequested {
		it := candidates.Iterator()
		skipped := 0
		for it.HasNext() {
			p := it.Next()
			if skipped < hits.Offset {
				skipped++
				continue
			}
			if hits.Limit > 0 && len(res.Hits) >= hits.Limit {
				break
			}
			res.Hits = append(res.Hits, ix.ids[p])
		}
	}

	ix.logger.Debug("facet view",
		zap.String("query", queryName),
		zap.String("docbase", string(q.Docbase)),
		zap.Int("constraints", len(constraints)),
		zap.String("breakout", breakout),
		zap.Int64("length", res.Length),
		zap.Duration("duration", time.Since(start)))
	return res, counts, nil
}

// match returns the nodes whose field holds value under any type tag.
// Must be called with ix.mu held.
func (ix *Index) match(field, value string) *roaring.Bitmap {
	out := roaring.New()
	terms := ix.postings[field]
	for _, tag := range tags {
		if bm, ok := terms[value+string(tag)]; ok {
			out.Or(bm)
		}
	}
	return out
}

type builder struct {
	reg      schema.Registry
	logger   *zap.Logger
	ids      []content.ID
	pos      map[content.ID]uint32
	end      []uint32
	docs     *roaring.Bitmap
	postings map[string]map[string]*roaring.Bitmap
}

func (b *builder) visit(ctx context.Context, store content.Store, id content.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, seen := b.pos[id]; seen {
		return fmt.Errorf("node %s reachable twice", id)
	}
	st, err := store.GetNodeState(ctx, id)
	if err != nil {
		return err
	}
	p := uint32(len(b.ids))
	b.ids = append(b.ids, id)
	b.end = append(b.end, 0)
	b.pos[id] = p

	if !b.reg.IsContainer(st.PrimaryType) {
		b.docs.Add(p)
		for _, prop := range st.Properties {
			b.index(p, prop)
		}
	}
	for _, c := range st.Children {
		child, ok := c.ID.(content.ID)
		if !ok {
			continue
		}
		if err := b.visit(ctx, store, child); err != nil {
			return err
		}
	}
	b.end[p] = uint32(len(b.ids))
	return nil
}

func (b *builder) index(p uint32, prop content.Property) {
	tag := string(TagFor(prop.Type))
	for _, v := range prop.Values {
		term, byRes, err := terms(prop.Type, v)
		if err != nil {
			b.logger.Debug("value not indexed",
				zap.String("property", prop.Name),
				zap.String("value", v),
				zap.Error(err))
			continue
		}
		b.add(prop.Name, term+tag, p)
		for mod, t := range byRes {
			b.add(prop.Name+"#"+mod, t+tag, p)
		}
	}
}

func (b *builder) add(field, key string, p uint32) {
	m, ok := b.postings[field]
	if !ok {
		m = make(map[string]*roaring.Bitmap)
		b.postings[field] = m
	}
	bm, ok := m[key]
	if !ok {
		bm = roaring.New()
		m[key] = bm
	}
	bm.Add(p)
}

var _ Engine = (*Index)(nil)
