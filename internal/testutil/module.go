package testutil

import (
	"github.com/gostratum/core/logx"
	"go.uber.org/fx"

	"github.com/gostratum/fsx"
)

// TestModule provides a filesystem configuration on an in-memory tree and a
// no-op logger, suitable for unit tests without external configuration.
//
// Example usage:
//
//	import "github.com/gostratum/fsx/internal/testutil"
//
//	func TestMyApp(t *testing.T) {
//	    app := fxtest.New(t,
//	        testutil.TestModule,
//	        filestore.Module(),
//	        fx.Invoke(func(s fsx.Storage) {
//	            // Use storage
//	        }),
//	    )
//	    // ...
//	}
var TestModule = fx.Module("fsx-test",
	fx.Provide(
		NewTestConfig,
		fx.Annotate(NewMemFsOption, fx.ResultTags(`group:"fsx_options"`)),
		func() logx.Logger { return logx.NewNoopLogger() },
	),
)

// NewTestConfig creates a filesystem configuration rooted at /data
func NewTestConfig() *fsx.Config {
	cfg := fsx.DefaultConfig()
	cfg.Backend = fsx.BackendFilesystem
	cfg.BasePrefix = "/data"
	return cfg
}

// NewMemFsOption keeps filesystem backends off the host disk
func NewMemFsOption() fsx.Option {
	return fsx.WithFs(NewMemFs())
}
