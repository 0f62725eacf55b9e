package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/agentic-research/facetfs/api"
	"github.com/agentic-research/facetfs/internal/config"
	"github.com/agentic-research/facetfs/internal/content"
	"github.com/agentic-research/facetfs/internal/facet"
	"github.com/agentic-research/facetfs/internal/graph"
	"github.com/agentic-research/facetfs/internal/metrics"
	"github.com/agentic-research/facetfs/internal/schema"
	"github.com/agentic-research/facetfs/internal/vnode"
)

// instance is one fully wired virtual tree: the upstream store with the
// configured mounts layered over it, the facet index, the provider base
// and the path graph.
type instance struct {
	*graph.VirtualGraph
	store    content.ReadWriter
	storeCfg api.Store
	closer   io.Closer
	index    *facet.Index
	base     *vnode.Base
}

// openStore opens the configured backend.
func openStore(cfg api.Store) (content.ReadWriter, io.Closer, error) {
	switch cfg.Backend {
	case api.BackendSQLite:
		s, err := content.OpenSQLite(cfg.Path)
		return s, s, err
	case api.BackendBolt:
		s, err := content.OpenBolt(cfg.Path)
		return s, s, err
	case api.BackendMemory, "":
		return content.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// importFile loads a JSON content tree into rw. Writes to a persistent
// store hold an exclusive lock on dbPath for the duration.
func importFile(ctx context.Context, rw content.ReadWriter, dbPath, path string, opts content.ImportOptions) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read import file: %w", err)
	}
	if dbPath != "" {
		unlock, err := content.LockFile(ctx, dbPath)
		if err != nil {
			return 0, err
		}
		defer func() { _ = unlock() }()
	}
	return content.ImportJSON(ctx, rw, data, opts)
}

func newInstance(ctx context.Context, cfg *api.Config, logger *zap.Logger, m *metrics.Metrics) (*instance, error) {
	store, closer, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	inst := &instance{store: store, storeCfg: cfg.Store, closer: closer}
	if err := inst.wire(ctx, cfg, logger, m); err != nil {
		_ = inst.Close()
		return nil, err
	}
	return inst, nil
}

// holds reports whether the instance's open store is the one cfg names and
// cannot be opened a second time. bbolt locks its file for the lifetime
// of the handle.
func (inst *instance) holds(cfg api.Store) bool {
	return inst.closer != nil && cfg.Backend == api.BackendBolt &&
		inst.storeCfg.Backend == cfg.Backend && inst.storeCfg.Path == cfg.Path
}

// rebuild wires a new tree over the store prev already holds. On success
// the store moves to the new instance, so closing prev leaves it open; on
// failure prev is untouched.
func rebuild(ctx context.Context, prev *instance, cfg *api.Config, logger *zap.Logger, m *metrics.Metrics) (*instance, error) {
	inst := &instance{store: prev.store, storeCfg: cfg.Store}
	if err := inst.wire(ctx, cfg, logger, m); err != nil {
		return nil, err
	}
	inst.closer, prev.closer = prev.closer, nil
	return inst, nil
}

func (inst *instance) wire(ctx context.Context, cfg *api.Config, logger *zap.Logger, m *metrics.Metrics) error {
	if cfg.Store.Import != "" {
		n, err := importFile(ctx, inst.store, cfg.Store.Path, cfg.Store.Import,
			content.ImportOptions{Selector: cfg.Store.Selector})
		if err != nil {
			return err
		}
		logger.Info("Imported content", zap.String("file", cfg.Store.Import), zap.Int("nodes", n))
	}

	overlay := content.NewOverlay(inst.store)
	if err := config.AttachMounts(overlay, cfg.Mounts); err != nil {
		return fmt.Errorf("attach mounts: %w", err)
	}

	reg := schema.Default()
	inst.index = facet.NewIndex(inst.store, reg, logger.Named("facet"))
	if err := inst.index.Rebuild(ctx); err != nil {
		return fmt.Errorf("build facet index: %w", err)
	}
	inst.base = vnode.New(vnode.Options{
		Store:    overlay,
		Registry: reg,
		Engine:   inst.index,
		Logger:   logger.Named("vnode"),
		Metrics:  m,
		MaxHits:  cfg.Engine.MaxHits,
	})

	g, err := graph.NewVirtualGraph(inst.base, graph.Options{
		CacheSize: cfg.Cache.Size,
		Timeout:   cfg.Engine.ResolveTimeout(),
		Metrics:   m,
		Logger:    logger.Named("graph"),
	})
	if err != nil {
		return err
	}
	inst.VirtualGraph = g
	return nil
}

// Close releases the store. HotSwapGraph.Swap calls it on the replaced
// instance.
func (inst *instance) Close() error {
	if inst.closer == nil {
		return nil
	}
	return inst.closer.Close()
}

var _ graph.Graph = (*instance)(nil)
