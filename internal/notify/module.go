package notify

import (
	"context"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			NewTelegram,
		),
		fx.Invoke(func(lc fx.Lifecycle, t *Telegram, ctx context.Context) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					return t.Start(ctx)
				},
			})
		}),
	)
}
