package runner

import (
	"context"
	"time"

	"go.uber.org/fx"

	"kite_trader/internal/marketdata"
	"kite_trader/internal/models"
	"kite_trader/internal/modules/config"
	healthsvc "kite_trader/internal/modules/health/service"
	journalsvc "kite_trader/internal/modules/journal/service"
	kitesvc "kite_trader/internal/modules/kite/service"
	"kite_trader/internal/notify"
	"kite_trader/internal/order"
	"kite_trader/internal/risk"
	"kite_trader/internal/strategy"
	"kite_trader/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func(cfg *config.Config) *marketdata.Aggregator {
				return marketdata.NewAggregator(cfg.SeriesCapacity)
			},
			func(gw *kitesvc.Client, j *journalsvc.Journal) *order.Manager {
				return order.NewManager(gw, j)
			},
			func(cfg *config.Config, om *order.Manager, n *notify.Telegram) *risk.Governor {
				interval, err := time.ParseDuration(cfg.RiskCheckInterval)
				if err != nil {
					interval = time.Second
				}
				return risk.NewGovernor(risk.Config{
					MaxDrawdown:     cfg.MaxDrawdownPct / 100,
					CheckInterval:   interval,
					StartingCapital: cfg.StartingCapital,
				}, om, n)
			},
			NewRouter,
			NewWarmuper,
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			ctx context.Context,
			cancel context.CancelFunc,
			cfg *config.Config,
			r *Router,
			w *Warmuper,
			gov *risk.Governor,
			ticker *kitesvc.Ticker,
			tg *notify.Telegram,
			st *healthsvc.State,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					// governor и router сцепляются с нотифайером здесь:
					// конструкторы связать напрямую не даёт порядок зависимостей
					tg.SetGovernor(gov)
					tg.SetStatusFunc(r.DumpAll)

					r.Start(ctx)
					go gov.Run(ctx)

					go func() {
						if err := w.Warmup(ctx); err != nil {
							logger.Error("warmup: %v", err)
						} else {
							st.SetReady(true)
						}

						out := make(chan models.Tick, 1024)
						go ticker.Run(ctx, out)
						for {
							select {
							case <-ctx.Done():
								return
							case t := <-out:
								r.OnTick(t)
							}
						}
					}()

					go dailyReset(ctx, cfg, r, w)
					return nil
				},
				OnStop: func(stopCtx context.Context) error {
					// этот хук fx зовёт первым: гасим фид, воркеры и
					// риск-цикл до остановки health и БД
					cancel()

					done := make(chan struct{})
					go func() {
						r.Wait()
						close(done)
					}()
					select {
					case <-done:
					case <-stopCtx.Done():
						logger.Warn("shutdown: workers did not drain in time")
					}
					return nil
				},
			})
		}),
	)
}

// dailyReset раз в сутки до открытия сбрасывает стратегии и обновляет
// вчерашние close.
func dailyReset(ctx context.Context, cfg *config.Config, r *Router, w *Warmuper) {
	at, err := strategy.ParseTimeOfDay(cfg.ResetAt)
	if err != nil {
		logger.Error("bad reset_at %q: %v", cfg.ResetAt, err)
		return
	}

	for {
		now := time.Now()
		next := at.On(now)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.ResetAll()
			w.RefreshPrevClose(ctx)
		}
	}
}
