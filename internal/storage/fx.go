package storage

import "go.uber.org/fx"

// Module provides the document store.
var Module = fx.Module("storage",
	fx.Provide(NewS3Store),
)
