package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	facetfs "github.com/agentic-research/facetfs/internal/fs"
	"github.com/agentic-research/facetfs/internal/logging"
)

var mountCmd = &cobra.Command{
	Use:   "mount <mountpoint>",
	Short: "Mount the virtual tree read-only with FUSE",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mountPoint := args[0]

		cfg, err := loadConfig(v)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		inst, err := newInstance(cmd.Context(), cfg, logger, nil)
		if err != nil {
			return err
		}
		defer func() { _ = inst.Close() }()

		ffs := facetfs.NewFacetFS(inst, logger.Named("fuse"))

		// uid/gid keep the mount owned by the caller (fuse-t serves it over NFS).
		opts := []string{
			"-o", fmt.Sprintf("uid=%d", os.Getuid()),
			"-o", fmt.Sprintf("gid=%d", os.Getgid()),
		}

		logger.Info("Mounting", zap.String("mountpoint", mountPoint))
		if !facetfs.Mount(ffs, mountPoint, opts) {
			return fmt.Errorf("mount failed")
		}
		return nil
	},
}
