package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"licensegate/internal/httpapi"
	"licensegate/pkg/config"
	"licensegate/pkg/db"
	"licensegate/pkg/gen"
	"licensegate/pkg/health"
	"licensegate/pkg/logger"
	"licensegate/pkg/ratelimit"
	"licensegate/pkg/redis"
	"licensegate/pkg/server"
	"licensegate/pkg/task"
	"licensegate/services/license"
	"licensegate/services/metering"
	"licensegate/services/webhook"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		ratelimit.Module,
		health.Module,
		task.Client,
		task.Server,
		license.Module,
		license.TaskModule,
		metering.Module,
		webhook.Module,
		httpapi.Module,
		server.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
