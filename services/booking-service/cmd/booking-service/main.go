package main

import (
	"context"
	"os"
	"time"

	"github.com/md-rashed-zaman/consultdesk/libs/config"
	otelx "github.com/md-rashed-zaman/consultdesk/libs/otel"
	"github.com/md-rashed-zaman/consultdesk/libs/runtime"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/app"
)

func main() {
	logger := runtime.NewLogger(config.String("SERVICE_NAME", "booking-service"), config.String("LOG_LEVEL", "info"))

	env, err := app.LoadEnvironment()
	if err != nil {
		logger.Error("invalid environment", "err", err)
		os.Exit(1)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(env.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	a, err := app.Build(ctx, env, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	logger.Info("booking service starting", "mode", env.Mode, "notify_sink", env.NotifySink, "timezone", env.Timezone)
	if err := a.Run(ctx); err != nil {
		logger.Error("service stopped with error", "err", err)
	}
}
