package metering

import (
	"go.uber.org/fx"
)

var Module = fx.Module("metering.module",
	fx.Provide(NewService),
)
