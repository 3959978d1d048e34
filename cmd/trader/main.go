package main

import (
	"context"
	"log"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"kite_trader/internal/modules/config"
	"kite_trader/internal/modules/health"
	"kite_trader/internal/modules/journal"
	"kite_trader/internal/modules/kite"
	"kite_trader/internal/modules/postgres"
	"kite_trader/internal/notify"
	"kite_trader/internal/runner"
	"kite_trader/pkg/logger"
	"kite_trader/pkg/tracing"
)

func main() {
	zl, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	logger.Init(zl)
	logger.SetServiceName("trader")
	tracing.SetServiceName("trader")

	app := fx.New(
		fx.Provide(
			func() (context.Context, context.CancelFunc) {
				// отменяется в OnStop раннера: фид и воркеры гаснут
				// раньше, чем fx остановит health и БД
				return context.WithCancel(context.Background())
			},
		),
		config.Module(),
		postgres.Module(),
		journal.Module(),
		kite.Module(),
		notify.Module(),
		health.Module(),
		runner.Module(),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			if cfg.Jaeger.Host == "" {
				return nil
			}
			_, closer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Jaeger.Host,
				Port: cfg.Jaeger.Port,
			})
			if err != nil {
				return err
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					closer()
					return nil
				},
			})
			return nil
		}),
	)
	app.Run()
}
