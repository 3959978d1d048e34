package runner

import (
	"context"

	"kite_trader/internal/marketdata"
	"kite_trader/internal/metrics"
	"kite_trader/internal/models"
	"kite_trader/internal/risk"
	"kite_trader/internal/strategy"
)

// pipeline — путь одного инструмента: агрегация -> риск -> стратегия.
// Своя очередь и свой воркер: тики инструмента обрабатываются строго
// по порядку, параллелизм есть только между инструментами.
type pipeline struct {
	instrumentID string
	queue        chan models.Tick

	agg    *marketdata.Aggregator
	engine strategy.Engine
	gov    *risk.Governor

	onSignal func(ctx context.Context, sig models.Signal)
}

func (p *pipeline) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.queue:
			p.onTick(ctx, t)
		}
	}
}

func (p *pipeline) onTick(ctx context.Context, t models.Tick) {
	p.agg.Ingest(t)
	metrics.TicksIngested.WithLabelValues(p.instrumentID).Inc()

	// стоп/тейк проверяем на каждом тике, до стратегии
	p.gov.CheckPositions(ctx, p.instrumentID, t.LastPrice)

	if p.gov.Mitigation() {
		return
	}
	sig, ok := p.engine.Evaluate(ctx, p.agg.Series(p.instrumentID, models.TF1m))
	if ok && p.onSignal != nil {
		p.onSignal(ctx, sig)
	}
}
