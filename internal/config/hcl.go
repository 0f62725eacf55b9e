package config

import (
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/agentic-research/facetfs/api"
)

// hclFile is the HCL shape of api.Config. Section blocks are optional.
type hclFile struct {
	Version string       `hcl:"version,optional"`
	Store   *api.Store   `hcl:"store,block"`
	Engine  *api.Engine  `hcl:"engine,block"`
	Cache   *api.Cache   `hcl:"cache,block"`
	Logging *api.Logging `hcl:"logging,block"`
	Metrics *api.Metrics `hcl:"metrics,block"`
	Mounts  []api.Mount  `hcl:"mount,block"`
}

func decodeHCL(filename string, src []byte, cfg *api.Config) error {
	var f hclFile
	if err := hclsimple.Decode(filename, src, nil, &f); err != nil {
		return err
	}
	cfg.Version = f.Version
	if f.Store != nil {
		cfg.Store = *f.Store
	}
	if f.Engine != nil {
		cfg.Engine = *f.Engine
	}
	if f.Cache != nil {
		cfg.Cache = *f.Cache
	}
	if f.Logging != nil {
		cfg.Logging = *f.Logging
	}
	if f.Metrics != nil {
		cfg.Metrics = *f.Metrics
	}
	cfg.Mounts = f.Mounts
	return nil
}
