package runner

import (
	"context"
	"sync"
	"time"

	"kite_trader/internal/marketdata"
	"kite_trader/internal/models"
	"kite_trader/internal/modules/config"
	kitesvc "kite_trader/internal/modules/kite/service"
	"kite_trader/pkg/logger"
)

// Warmuper наливает историю в агрегатор до старта фида: стратегии
// нужен вчерашний close и хвост 1m свечей для объёма/моментума.
type Warmuper struct {
	kite   *kitesvc.Client
	agg    *marketdata.Aggregator
	router *Router
	cfg    *config.Config

	// ограничитель параллелизма, чтобы не словить rate limit
	sem chan struct{}
}

func NewWarmuper(kite *kitesvc.Client, agg *marketdata.Aggregator, router *Router, cfg *config.Config) *Warmuper {
	return &Warmuper{
		kite:   kite,
		agg:    agg,
		router: router,
		cfg:    cfg,
		sem:    make(chan struct{}, 8),
	}
}

func (w *Warmuper) Warmup(ctx context.Context) error {
	now := time.Now()
	from := now.AddDate(0, 0, -w.cfg.WarmupDays)
	tfs := []models.Timeframe{models.TF1m, models.TF5m, models.TF15m}

	logger.Info("warmup start: %d instruments, %d days", len(w.cfg.Instruments), w.cfg.WarmupDays)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, in := range w.cfg.Instruments {
		in := in
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.sem <- struct{}{}
			defer func() { <-w.sem }()

			if err := w.warmupOne(ctx, in.Token, tfs, from, now); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		logger.Error("warmup finished with error: %v", firstErr)
		return firstErr
	}
	logger.Info("warmup finished, feed can start")
	return nil
}

func (w *Warmuper) warmupOne(ctx context.Context, token string, tfs []models.Timeframe, from, to time.Time) error {
	for _, tf := range tfs {
		candles, err := w.kite.HistoricalCandles(ctx, token, tf, from, to)
		if err != nil {
			return err
		}
		w.agg.LoadHistorical(token, tf, candles)
	}

	px, err := w.kite.PrevClose(ctx, token, to)
	if err != nil {
		// без PDC стратегия работает, просто не классифицирует гэп
		logger.Warn("warmup %s: prev close unavailable: %v", token, err)
		return nil
	}
	w.router.SetPrevClose(token, px)
	return nil
}

// RefreshPrevClose обновляет вчерашние close перед новой сессией.
func (w *Warmuper) RefreshPrevClose(ctx context.Context) {
	now := time.Now()
	for _, in := range w.cfg.Instruments {
		px, err := w.kite.PrevClose(ctx, in.Token, now)
		if err != nil {
			logger.Warn("refresh prev close %s: %v", in.Token, err)
			continue
		}
		w.router.SetPrevClose(in.Token, px)
	}
}
