// Package api holds the declarative configuration of a facetfs instance.
package api

import "time"

// Config is the root configuration. It can be written as YAML, HCL or JSON;
// the HCL form uses one block per section and a labeled mount block per mount.
type Config struct {
	// Version of the configuration format.
	Version string `json:"version" yaml:"version"`
	// Store selects where upstream content lives.
	Store Store `json:"store" yaml:"store"`
	// Engine tunes the faceted-navigation engine.
	Engine Engine `json:"engine" yaml:"engine"`
	// Cache sizes the resolved-state cache of the virtual tree.
	Cache Cache `json:"cache" yaml:"cache"`
	// Logging configures the structured logger.
	Logging Logging `json:"logging" yaml:"logging"`
	// Metrics configures the Prometheus endpoint served by "serve".
	Metrics Metrics `json:"metrics" yaml:"metrics"`
	// Mounts are the virtual subtrees exposed under /mounts.
	Mounts []Mount `json:"mounts,omitempty" yaml:"mounts,omitempty"`
}

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

type Store struct {
	// Backend is memory, sqlite or bolt.
	Backend string `json:"backend" yaml:"backend" hcl:"backend,optional"`
	// Path of the database file (sqlite, bolt).
	Path string `json:"path,omitempty" yaml:"path,omitempty" hcl:"path,optional"`
	// Import is a JSON content tree loaded at startup.
	Import string `json:"import,omitempty" yaml:"import,omitempty" hcl:"import,optional"`
	// Selector is a JSONPath applied to Import.
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty" hcl:"selector,optional"`
}

type Engine struct {
	// MaxHits bounds the children of a result set node. 0 means unbounded.
	MaxHits int `json:"max_hits" yaml:"max_hits" hcl:"max_hits,optional"`
	// Timeout bounds one path resolution, e.g. "5s". Empty means none.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty" hcl:"timeout,optional"`
}

// ResolveTimeout parses Timeout. Validation rejects unparsable values.
func (e Engine) ResolveTimeout() time.Duration {
	d, _ := time.ParseDuration(e.Timeout)
	return d
}

type Cache struct {
	// Size is the number of resolved nodes kept.
	Size int `json:"size" yaml:"size" hcl:"size,optional"`
}

type Logging struct {
	Level  string `json:"level" yaml:"level" hcl:"level,optional"`
	Format string `json:"format" yaml:"format" hcl:"format,optional"`
}

type Metrics struct {
	Enabled bool   `json:"enabled" yaml:"enabled" hcl:"enabled,optional"`
	Addr    string `json:"addr" yaml:"addr" hcl:"addr,optional"`
	Path    string `json:"path" yaml:"path" hcl:"path,optional"`
}

// Mount kinds.
const (
	KindMirror      = "mirror"
	KindView        = "view"
	KindBootstrap   = "bootstrap"
	KindFacetSearch = "facetsearch"
)

// Mount declares one virtual subtree.
type Mount struct {
	// Name of the mount directory under /mounts.
	Name string `json:"name" yaml:"name" hcl:"name,label"`
	// Kind is mirror, view, bootstrap or facetsearch.
	Kind string `json:"kind" yaml:"kind" hcl:"kind"`
	// Docbase is the scope: a node id or an absolute path.
	Docbase string `json:"docbase" yaml:"docbase" hcl:"docbase"`
	// Facets lists the facets to break out by (facetsearch) or to filter on (view).
	Facets []string `json:"facets,omitempty" yaml:"facets,omitempty" hcl:"facets,optional"`
	// Values pairs with Facets for views.
	Values []string `json:"values,omitempty" yaml:"values,omitempty" hcl:"values,optional"`
	// Modes holds view modes; "single" shows one variant per handle.
	Modes []string `json:"modes,omitempty" yaml:"modes,omitempty" hcl:"modes,optional"`
	// QueryName names the facet search for the engine. Defaults to Name.
	QueryName string `json:"queryname,omitempty" yaml:"queryname,omitempty" hcl:"queryname,optional"`
}
