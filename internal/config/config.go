// Package config loads, defaults and validates an api.Config.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentic-research/facetfs/api"
	"github.com/agentic-research/facetfs/internal/facet"
	"github.com/agentic-research/facetfs/internal/schema"
)

const (
	DefaultVersion     = "v1"
	DefaultCacheSize   = 4096
	DefaultMetricsAddr = ":9464"
	DefaultMetricsPath = "/metrics"
)

// ValidationError reports one invalid configuration field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Msg)
}

// Load reads the file at path, applies defaults and validates the result.
func Load(path string) (*api.Config, error) {
	cfg, err := Decode(path)
	if err != nil {
		return nil, err
	}
	if err := Finalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses path by extension (.yaml, .yml, .hcl, .json) without
// defaults or validation. An empty path yields an empty config.
func Decode(path string) (*api.Config, error) {
	cfg := &api.Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case ".hcl":
		if err := decodeHCL(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	return cfg, nil
}

// Finalize applies defaults then validates.
func Finalize(cfg *api.Config) error {
	setDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func setDefaults(cfg *api.Config) {
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = api.BackendMemory
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = DefaultCacheSize
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	for i := range cfg.Mounts {
		m := &cfg.Mounts[i]
		if m.Kind == api.KindFacetSearch && m.QueryName == "" {
			m.QueryName = m.Name
		}
	}
}

// Validate checks cfg after defaults have been applied.
func Validate(cfg *api.Config) error {
	switch cfg.Store.Backend {
	case api.BackendMemory:
	case api.BackendSQLite, api.BackendBolt:
		if cfg.Store.Path == "" {
			return &ValidationError{Field: "store.path", Msg: "is required for backend " + cfg.Store.Backend}
		}
	default:
		return &ValidationError{Field: "store.backend", Msg: fmt.Sprintf("must be memory, sqlite or bolt, got %q", cfg.Store.Backend)}
	}
	if cfg.Engine.MaxHits < 0 {
		return &ValidationError{Field: "engine.max_hits", Msg: "must not be negative"}
	}
	if t := cfg.Engine.Timeout; t != "" {
		if d, err := time.ParseDuration(t); err != nil || d < 0 {
			return &ValidationError{Field: "engine.timeout", Msg: fmt.Sprintf("must be a non-negative duration, got %q", t)}
		}
	}
	if cfg.Cache.Size < 1 {
		return &ValidationError{Field: "cache.size", Msg: "must be positive"}
	}
	if f := cfg.Logging.Format; f != "console" && f != "json" {
		return &ValidationError{Field: "logging.format", Msg: fmt.Sprintf("must be console or json, got %q", f)}
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return &ValidationError{Field: "metrics.path", Msg: "must start with /"}
	}

	reg := schema.Default()
	seen := make(map[string]bool, len(cfg.Mounts))
	for i, m := range cfg.Mounts {
		field := fmt.Sprintf("mounts[%d]", i)
		if m.Name == "" || strings.ContainsAny(m.Name, "/[]*|'\":") {
			return &ValidationError{Field: field + ".name", Msg: fmt.Sprintf("%q is not a legal node name", m.Name)}
		}
		if seen[m.Name] {
			return &ValidationError{Field: field + ".name", Msg: fmt.Sprintf("%q is used twice", m.Name)}
		}
		seen[m.Name] = true
		if m.Docbase == "" {
			return &ValidationError{Field: field + ".docbase", Msg: "is required"}
		}
		switch m.Kind {
		case api.KindMirror, api.KindBootstrap, api.KindFacetSearch:
		case api.KindView:
			if len(m.Facets) != len(m.Values) {
				return &ValidationError{Field: field + ".values", Msg: fmt.Sprintf("has %d entries for %d facets", len(m.Values), len(m.Facets))}
			}
		default:
			return &ValidationError{Field: field + ".kind", Msg: fmt.Sprintf("must be mirror, view, bootstrap or facetsearch, got %q", m.Kind)}
		}
		if err := validateFacets(reg, m.Facets); err != nil {
			return &ValidationError{Field: field + ".facets", Msg: err.Error()}
		}
	}
	return nil
}

// validateFacets checks facet specs ("name" or "name#resolution") against
// the built-in namespaces and the supported date resolutions.
func validateFacets(reg *schema.MemoryRegistry, facets []string) error {
	for _, spec := range facets {
		name, mod := facet.SplitFacetSpec(spec)
		if _, err := reg.ResolveName(name); err != nil {
			return fmt.Errorf("%w (known namespaces: %s)", err, strings.Join(reg.Namespaces(), ", "))
		}
		if mod == "" {
			continue
		}
		if !slices.Contains(facet.Resolutions(), mod[1:]) {
			return fmt.Errorf("%q: resolution must be one of %s", spec, strings.Join(facet.Resolutions(), ", "))
		}
	}
	return nil
}
