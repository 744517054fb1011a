package fsx_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/gostratum/fsx"
	"github.com/gostratum/fsx/internal/testutil"
)

// The instrumenter is provided even when no metrics or tracer module is present.
func TestModuleProvidesInstrumenterWithoutObservability(t *testing.T) {
	// fsx.Module() would also provide NewConfig, which conflicts with the
	// config supplied by testutil.TestModule.
	app := fxtest.New(t,
		fx.Options(
			testutil.TestModule,
			fx.Provide(fsx.NewObservabilityInstrumenter),
			fx.Invoke(func(i *fsx.Instrumenter) {
				require.NotNil(t, i)
			}),
		),
	)

	defer app.RequireStart().RequireStop()
}
