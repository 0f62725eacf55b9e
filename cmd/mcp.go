package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/facetfs/internal/logging"
	"github.com/agentic-research/facetfs/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the virtual tree to agents over MCP (stdio)",
	Long: `Serve the virtual tree as MCP tools on stdin/stdout:

  list_children  children of a node, with facet counts where known
  get_node       type, mixins, properties, children and contained errors
  facet_counts   the values of a facet search with their document counts

Logs go to stderr.`,
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

		inst, err := newInstance(cmd.Context(), cfg, logger, nil)
		if err != nil {
			return err
		}
		defer func() { _ = inst.Close() }()

		logger.Info("Serving MCP on stdio", zap.String("version", Version))
		return mcpserver.New(inst.VirtualGraph, Version, logger.Named("mcp")).ServeStdio()
	},
}
