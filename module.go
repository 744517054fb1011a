package fsx

import (
	"fmt"

	"github.com/gostratum/core/configx"
	"github.com/gostratum/metricsx"
	"github.com/gostratum/tracingx"
	"go.uber.org/fx"
)

// Module provides the storage configuration and instrumenter for fx.
// It does NOT include a backend; combine it with filestore.Module() to get
// a working Storage.
//
// Example usage:
//
//	app := core.New(
//	    fsx.Module(),
//	    filestore.Module(),
//	    fx.Invoke(func(store fsx.Storage) {
//	        // Use storage...
//	    }),
//	)
func Module() fx.Option {
	return fx.Module("fsx",
		fx.Provide(
			NewConfig,
			NewObservabilityInstrumenter,
		),
	)
}

// NewConfig creates a configuration from the configx loader
func NewConfig(loader configx.Loader) (*Config, error) {
	cfg := DefaultConfig()
	if err := loader.Bind(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return ResolveConfig(cfg)
}

// ResolveConfig normalizes and validates a literal configuration
func ResolveConfig(cfg *Config) (*Config, error) {
	resolved := cfg.Normalize()
	if err := ValidateConfig(resolved); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return resolved, nil
}

// ObservabilityDeps defines optional observability dependencies
type ObservabilityDeps struct {
	fx.In

	Metrics metricsx.Metrics `optional:"true"`
	Tracer  tracingx.Tracer  `optional:"true"`
}

// NewObservabilityInstrumenter creates an instrumenter for storage operations
func NewObservabilityInstrumenter(deps ObservabilityDeps) *Instrumenter {
	return NewInstrumenter(deps.Metrics, deps.Tracer)
}
