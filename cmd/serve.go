package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/agentic-research/facetfs/internal/graph"
	"github.com/agentic-research/facetfs/internal/logging"
	"github.com/agentic-research/facetfs/internal/metrics"
	"github.com/agentic-research/facetfs/internal/nfsmount"
)

var (
	nfsAddr    string
	serveMount string
)

func init() {
	f := serveCmd.Flags()
	f.StringVar(&nfsAddr, "nfs-addr", "", "NFS listen address (default: ephemeral port)")
	f.StringVar(&serveMount, "mount", "", "Also mount the NFS export at this path (requires sudo)")
	f.Bool("metrics", false, "Serve Prometheus metrics")
	f.String("metrics-addr", "", "Metrics listen address")
	_ = v.BindPFlag("metrics.enabled", f.Lookup("metrics"))
	_ = v.BindPFlag("metrics.addr", f.Lookup("metrics-addr"))
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the virtual tree over NFS",
	Long: `Serve the virtual tree read-only over NFSv3. The configuration is
exposed as /_config.json. SIGHUP reloads the configuration and swaps in
a freshly built tree without dropping the NFS listener.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(v)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		m := metrics.New()
		inst, err := newInstance(ctx, cfg, logger, m)
		if err != nil {
			return err
		}
		hot := graph.NewHotSwapGraph(inst)
		defer func() {
			if c, ok := hot.Current().(*instance); ok {
				_ = c.Close()
			}
		}()

		gfs := nfsmount.NewGraphFS(hot, cfg)
		srv, err := nfsmount.NewServer(gfs, nfsAddr, logger.Named("nfs"))
		if err != nil {
			return err
		}
		defer func() { _ = srv.Close() }()

		if cfg.Metrics.Enabled {
			ms := metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, m, func() error {
				_, err := hot.GetNode("")
				return err
			}, logger.Named("metrics"))
			if err := ms.Start(); err != nil {
				return err
			}
			defer func() { _ = ms.Stop() }()
		}

		if serveMount != "" {
			if err := nfsmount.Mount(srv.Port(), serveMount); err != nil {
				return err
			}
			logger.Info("Mounted", zap.String("mountpoint", serveMount))
			defer func() {
				if err := nfsmount.Unmount(serveMount); err != nil {
					logger.Warn("Unmount failed", zap.Error(err))
				}
			}()
		}

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(sigs)

		for {
			select {
			case sig := <-sigs:
				if sig != syscall.SIGHUP {
					logger.Info("Shutting down", zap.Stringer("signal", sig))
					return nil
				}
				if err := reload(ctx, v, hot, gfs, logger, m); err != nil {
					logger.Error("Reload failed, keeping current tree", zap.Error(err))
				}
			case err := <-srv.Done():
				return fmt.Errorf("nfs server: %w", err)
			case <-ctx.Done():
				return nil
			}
		}
	},
}

// reload rebuilds the tree from the current configuration and swaps it in.
// A bolt store the running tree already holds is shared with the new tree
// rather than reopened. Any failure leaves the running tree serving.
func reload(ctx context.Context, v *viper.Viper, hot *graph.HotSwapGraph, gfs *nfsmount.GraphFS, logger *zap.Logger, m *metrics.Metrics) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	var inst *instance
	if cur, ok := hot.Current().(*instance); ok && cur.holds(cfg.Store) {
		inst, err = rebuild(ctx, cur, cfg, logger, m)
	} else {
		inst, err = newInstance(ctx, cfg, logger, m)
	}
	if err != nil {
		return err
	}
	// Swap waits for requests still running on the old tree before closing it.
	if _, err := hot.Swap(inst); err != nil {
		logger.Warn("Close replaced tree", zap.Error(err))
	}
	gfs.SetConfig(cfg)
	logger.Info("Reloaded", zap.Int("mounts", len(cfg.Mounts)))
	return nil
}
