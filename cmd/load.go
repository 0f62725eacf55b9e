package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/facetfs/api"
	"github.com/agentic-research/facetfs/internal/content"
	"github.com/agentic-research/facetfs/internal/logging"
)

var loadParent string

func init() {
	loadCmd.Flags().StringVar(&loadParent, "parent", "/", "Path of the node to import under")
}

var loadCmd = &cobra.Command{
	Use:   "load <file.json>",
	Short: "Import a JSON content tree into a persistent store",
	Long: `Import a JSON content tree into a sqlite or bolt store. The store is
locked for the duration, so concurrent loads into the same database are
serialized. --selector picks the nodes to import with a JSONPath.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(v)
		if err != nil {
			return err
		}
		if cfg.Store.Backend == api.BackendMemory {
			return fmt.Errorf("load needs a persistent store: use --backend sqlite or bolt with --db")
		}
		logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		n, err := loadInto(cmd, cfg, args[0], loadParent)
		if err != nil {
			return err
		}
		logger.Info("Loaded content",
			zap.String("file", args[0]),
			zap.String("store", cfg.Store.Path),
			zap.Int("nodes", n))
		fmt.Fprintf(cmd.OutOrStdout(), "%d nodes loaded\n", n)
		return nil
	},
}

// loadInto imports file below parent in the configured store.
func loadInto(cmd *cobra.Command, cfg *api.Config, file, parent string) (int, error) {
	store, closer, err := openStore(cfg.Store)
	if err != nil {
		return 0, err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	return importFile(cmd.Context(), store, cfg.Store.Path, file,
		content.ImportOptions{Selector: cfg.Store.Selector, Parent: parent})
}
