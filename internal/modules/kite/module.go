package kite

import (
	"go.uber.org/fx"

	"kite_trader/internal/modules/config"
	healthsvc "kite_trader/internal/modules/health/service"
	"kite_trader/internal/modules/kite/service"
	"kite_trader/internal/order"
)

func Module() fx.Option {
	return fx.Module("kite",
		fx.Provide(
			service.NewClient,
			// *order.Manager получает апдейты статусов из того же сокета
			func(cfg *config.Config, om *order.Manager, st *healthsvc.State) *service.Ticker {
				return service.NewTicker(cfg, om.OnOrderUpdate, st)
			},
		),
	)
}
