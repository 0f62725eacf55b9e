package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentic-research/facetfs/api"
	"github.com/agentic-research/facetfs/internal/config"
)

// Version is set at build time.
var Version = "dev"

// v merges flags, FACETFS_* environment variables and the config file.
// Flags win over the environment, which wins over the file.
var v = newViper()

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("FACETFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

var rootCmd = &cobra.Command{
	Use:   "facetfs",
	Short: "facetfs: faceted virtual content trees as filesystems",
	Long: `facetfs computes virtual subtrees over a stored content tree: mirrors,
filtered views, bootstrap copies and faceted-navigation searches that
partition documents by property values at every level.

The tree can be printed, served over NFS, mounted with FUSE or browsed
by agents over MCP.

Configuration sources (in order of precedence):
  1. Command line flags
  2. Environment variables (FACETFS_STORE_BACKEND, FACETFS_LOGGING_LEVEL, ...)
  3. The file given by --config (.yaml, .yml, .hcl or .json)`,
	SilenceUsage: true,
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"config":     "config",
	"backend":    "store.backend",
	"db":         "store.path",
	"import":     "store.import",
	"selector":   "store.selector",
	"log-level":  "logging.level",
	"log-format": "logging.format",
	"max-hits":   "engine.max_hits",
	"cache-size": "cache.size",
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringP("config", "c", "", "Path to a configuration file")
	f.String("backend", "", "Store backend: memory|sqlite|bolt")
	f.StringP("db", "d", "", "Store database path (sqlite, bolt)")
	f.String("import", "", "JSON content tree to import at startup")
	f.String("selector", "", "JSONPath selecting the nodes to import")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.String("log-format", "", "Log format: console|json")
	f.Int("max-hits", 0, "Maximum children of a result set node (0 = unbounded)")
	f.Int("cache-size", 0, "Number of resolved nodes kept in the cache")

	for flag, key := range flagKeys {
		_ = v.BindPFlag(key, f.Lookup(flag))
	}

	rootCmd.AddCommand(treeCmd, serveCmd, mountCmd, loadCmd, mcpCmd)
}

// loadConfig decodes the configuration file, applies flag and environment
// overrides, then defaults and validation.
func loadConfig(v *viper.Viper) (*api.Config, error) {
	cfg, err := config.Decode(v.GetString("config"))
	if err != nil {
		return nil, err
	}
	applyOverrides(v, cfg)
	if err := config.Finalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(v *viper.Viper, cfg *api.Config) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	str("store.backend", &cfg.Store.Backend)
	str("store.path", &cfg.Store.Path)
	str("store.import", &cfg.Store.Import)
	str("store.selector", &cfg.Store.Selector)
	str("logging.level", &cfg.Logging.Level)
	str("logging.format", &cfg.Logging.Format)
	num("engine.max_hits", &cfg.Engine.MaxHits)
	str("engine.timeout", &cfg.Engine.Timeout)
	num("cache.size", &cfg.Cache.Size)
	str("metrics.addr", &cfg.Metrics.Addr)
	if v.IsSet("metrics.enabled") {
		cfg.Metrics.Enabled = v.GetBool("metrics.enabled")
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
