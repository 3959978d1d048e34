package runner

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"kite_trader/internal/marketdata"
	"kite_trader/internal/metrics"
	"kite_trader/internal/models"
	"kite_trader/internal/modules/config"
	journalsvc "kite_trader/internal/modules/journal/service"
	"kite_trader/internal/notify"
	"kite_trader/internal/order"
	"kite_trader/internal/risk"
	"kite_trader/internal/strategy"
	"kite_trader/pkg/logger"
)

// Router раздаёт тики по пайплайнам инструментов. Карта строится один
// раз из вотчлиста, на горячем пути только lookup.
type Router struct {
	cfg     *config.Config
	orders  *order.Manager
	gov     *risk.Governor
	journal *journalsvc.Journal
	n       *notify.Telegram

	pipes map[string]*pipeline
	orbs  map[string]*strategy.ORB
	wg    sync.WaitGroup
}

func NewRouter(
	cfg *config.Config,
	agg *marketdata.Aggregator,
	orders *order.Manager,
	gov *risk.Governor,
	journal *journalsvc.Journal,
	n *notify.Telegram,
) (*Router, error) {
	marketOpen, err := strategy.ParseTimeOfDay(cfg.MarketOpen)
	if err != nil {
		return nil, errors.Wrap(err, "market_open")
	}
	strategyEnd, err := strategy.ParseTimeOfDay(cfg.StrategyEnd)
	if err != nil {
		return nil, errors.Wrap(err, "strategy_end")
	}

	r := &Router{
		cfg:     cfg,
		orders:  orders,
		gov:     gov,
		journal: journal,
		n:       n,
		pipes:   make(map[string]*pipeline, len(cfg.Instruments)),
		orbs:    make(map[string]*strategy.ORB, len(cfg.Instruments)),
	}

	for _, in := range cfg.Instruments {
		orb := strategy.NewORB(strategy.ORBConfig{
			InstrumentID:     in.Token,
			MarketOpen:       marketOpen,
			StrategyEnd:      strategyEnd,
			RangeMinutes:     cfg.RangeMinutes,
			VolumeLookback:   cfg.VolumeLookback,
			SpikeFactor:      cfg.SpikeFactor,
			MomentumLookback: cfg.MomentumLookback,
			MinDayRangePct:   cfg.MinDayRangePct,
			MinDayVolume:     cfg.MinDayVolume,
			Quantity:         cfg.Quantity,
		}, orders)

		r.orbs[in.Token] = orb
		r.pipes[in.Token] = &pipeline{
			instrumentID: in.Token,
			queue:        make(chan models.Tick, 256),
			agg:          agg,
			engine:       orb,
			gov:          gov,
			onSignal:     r.handleSignal,
		}
	}
	return r, nil
}

// Start поднимает воркер на каждый инструмент.
func (r *Router) Start(ctx context.Context) {
	for _, p := range r.pipes {
		p := p
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			p.run(ctx)
		}()
	}
	logger.Info("router started, %d instruments", len(r.pipes))
}

// Wait блокируется, пока воркеры не выйдут после отмены ctx:
// начатые обработки тиков дорабатывают до конца.
func (r *Router) Wait() {
	r.wg.Wait()
}

// OnTick — O(1) диспетчеризация. Незнакомый инструмент и переполненная
// очередь — дроп со счётчиком, фид тормозить нельзя.
func (r *Router) OnTick(t models.Tick) {
	p, ok := r.pipes[t.InstrumentID]
	if !ok {
		metrics.TicksDropped.Inc()
		return
	}
	select {
	case p.queue <- t:
	default:
		metrics.TicksDropped.Inc()
	}
}

// handleSignal вешает стоп на противоположную границу диапазона и
// тейк через RR от риска на сделку. Вызывается из воркера инструмента.
func (r *Router) handleSignal(ctx context.Context, sig models.Signal) {
	orb := r.orbs[sig.InstrumentID]
	high, low := orb.Range()

	var stop, target float64
	if sig.Side == models.SideBuy {
		stop = low
		target = sig.Price + r.cfg.TakeProfitRR*(sig.Price-stop)
	} else {
		stop = high
		target = sig.Price - r.cfg.TakeProfitRR*(stop-sig.Price)
	}
	r.gov.SetStopLoss(sig.InstrumentID, stop)
	r.gov.SetTakeProfit(sig.InstrumentID, target)

	if r.journal != nil {
		if err := r.journal.RecordSignal(ctx, sig); err != nil {
			logger.Warn("journal signal %s: %v", sig.InstrumentID, err)
		}
	}
	r.n.Sendf("📈 %s %s @ %.2f\nстоп %.2f, тейк %.2f\n%s",
		sig.Side, sig.InstrumentID, sig.Price, stop, target, sig.Reason)
}

// ResetAll — дневной сброс стратегий перед новой сессией.
// prevClose по инструментам подставляет warmuper.
func (r *Router) ResetAll() {
	for _, orb := range r.orbs {
		orb.Reset()
	}
	logger.Info("all strategies reset for new session")
}

func (r *Router) SetPrevClose(instrumentID string, px float64) {
	if orb, ok := r.orbs[instrumentID]; ok {
		orb.SetPrevClose(px)
	}
}

// DumpAll — статус стратегий для /status.
func (r *Router) DumpAll() string {
	var b strings.Builder
	for _, in := range r.cfg.Instruments {
		if orb, ok := r.orbs[in.Token]; ok {
			b.WriteString(orb.Dump())
			b.WriteByte('\n')
		}
	}
	return b.String()
}
