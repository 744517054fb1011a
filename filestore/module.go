package filestore

import (
	"context"

	"github.com/gostratum/core"
	"github.com/gostratum/core/logx"
	"go.uber.org/fx"

	"github.com/gostratum/fsx"
)

// Params are the fx dependencies of the Store
type Params struct {
	fx.In

	Lifecycle    fx.Lifecycle
	Config       *fsx.Config
	Logger       logx.Logger       `optional:"true"`
	Instrumenter *fsx.Instrumenter `optional:"true"`

	// Options contributed by other modules, e.g. fsx.WithFs or fsx.WithHTTPClient
	Options []fsx.Option `group:"fsx_options"`
}

// Result exposes the Store, its fsx.Storage view and its readiness check
type Result struct {
	fx.Out

	Store   *Store
	Storage fsx.Storage
	Health  core.Check `group:"health_checkers"`
}

// Module provides the Store for fx and ties it to the application lifecycle.
// Consumers supply *fsx.Config, usually through fsx.Module().
func Module() fx.Option {
	return fx.Module("fsx-filestore",
		fx.Provide(Provide),
	)
}

// Provide builds the Store and registers Start and Stop hooks
func Provide(p Params) (Result, error) {
	opts := make([]fsx.Option, 0, len(p.Options)+2)
	if p.Logger != nil {
		opts = append(opts, fsx.WithLogger(p.Logger))
	}
	if p.Instrumenter != nil {
		opts = append(opts, fsx.WithInstrumenter(p.Instrumenter))
	}
	opts = append(opts, p.Options...)

	store, err := New(p.Config, opts...)
	if err != nil {
		return Result{}, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return store.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return store.Stop(ctx)
		},
	})

	return Result{Store: store, Storage: store, Health: store.HealthCheck()}, nil
}
