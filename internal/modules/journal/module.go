package journal

import (
	"go.uber.org/fx"

	"kite_trader/internal/modules/journal/service"
)

func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(
			service.NewJournal,
		),
	)
}
