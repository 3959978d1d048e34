package risk

import (
	"context"
	"sync"
	"time"

	"kite_trader/internal/metrics"
	"kite_trader/internal/models"
	"kite_trader/internal/order"
	"kite_trader/pkg/logger"
)

// Notifier — алерты наружу (telegram). nil допустим.
type Notifier interface {
	Sendf(format string, args ...any)
}

type Config struct {
	MaxDrawdown     float64       // доля, например 0.10
	CheckInterval   time.Duration // период проверки просадки
	StartingCapital float64       // стартовый капитал для оценки портфеля
}

// Governor — две обязанности на общем состоянии: one-shot стоп/тейк
// по инструментам и портфельный выключатель по просадке.
type Governor struct {
	cfg    Config
	orders *order.Manager
	n      Notifier

	mu         sync.Mutex
	stops      map[string]float64
	targets    map[string]float64
	lastPrice  map[string]float64
	peak       float64
	drawdown   float64
	mitigation bool
}

func NewGovernor(cfg Config, orders *order.Manager, n Notifier) *Governor {
	if cfg.MaxDrawdown <= 0 {
		cfg.MaxDrawdown = 0.10
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Second
	}
	if cfg.StartingCapital <= 0 {
		cfg.StartingCapital = 100000
	}
	return &Governor{
		cfg:       cfg,
		orders:    orders,
		n:         n,
		stops:     make(map[string]float64),
		targets:   make(map[string]float64),
		lastPrice: make(map[string]float64),
		peak:      -1,
	}
}

func (g *Governor) SetStopLoss(instrumentID string, price float64) {
	g.mu.Lock()
	g.stops[instrumentID] = price
	g.mu.Unlock()
	logger.Info("stop-loss %s -> %.2f", instrumentID, price)
}

func (g *Governor) SetTakeProfit(instrumentID string, price float64) {
	g.mu.Lock()
	g.targets[instrumentID] = price
	g.mu.Unlock()
	logger.Info("take-profit %s -> %.2f", instrumentID, price)
}

// CheckPositions — проверка стопа/тейка по последней цене. Триггер
// one-shot: снимается после успешного выравнивающего ордера; при
// неудаче остаётся и сработает на следующей проверке. В режиме
// митигации — no-op.
func (g *Governor) CheckPositions(ctx context.Context, instrumentID string, lastPrice float64) {
	g.mu.Lock()
	if g.mitigation {
		g.mu.Unlock()
		return
	}
	g.lastPrice[instrumentID] = lastPrice
	stop, hasStop := g.stops[instrumentID]
	target, hasTarget := g.targets[instrumentID]
	g.mu.Unlock()

	pos, ok := g.orders.Ledger().Position(instrumentID)
	if !ok || pos.Flat() {
		return
	}

	var fire bool
	var clearStop bool
	var reason string
	if pos.Long() {
		if hasStop && lastPrice <= stop {
			fire, clearStop, reason = true, true, "stop"
		} else if hasTarget && lastPrice >= target {
			fire, clearStop, reason = true, false, "target"
		}
	} else {
		if hasStop && lastPrice >= stop {
			fire, clearStop, reason = true, true, "stop"
		} else if hasTarget && lastPrice <= target {
			fire, clearStop, reason = true, false, "target"
		}
	}
	if !fire {
		return
	}

	logger.Info("%s hit on %s at %.2f (net %d)", reason, instrumentID, lastPrice, pos.NetQty)
	if _, err := g.flatten(ctx, pos); err != nil {
		// триггер не снимаем — retry на следующей цене
		logger.Error("flatten %s after %s: %v", instrumentID, reason, err)
		return
	}

	g.mu.Lock()
	if clearStop {
		delete(g.stops, instrumentID)
	} else {
		delete(g.targets, instrumentID)
	}
	g.mu.Unlock()

	if g.n != nil {
		g.n.Sendf("⛔ %s: %s по %.2f, позиция закрыта", instrumentID, reason, lastPrice)
	}
}

// Run — независимый от тиков цикл проверки просадки.
// Останавливается кооперативно по ctx.
func (g *Governor) Run(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.checkDrawdown(ctx)
		}
	}
}

func (g *Governor) checkDrawdown(ctx context.Context) {
	value := g.portfolioValue()

	g.mu.Lock()
	if g.mitigation {
		g.mu.Unlock()
		return
	}
	if g.peak < 0 || value > g.peak {
		g.peak = value
	}
	g.drawdown = 0
	if g.peak > 0 {
		g.drawdown = (g.peak - value) / g.peak
	}
	trip := g.drawdown > g.cfg.MaxDrawdown
	if trip {
		g.mitigation = true
	}
	dd := g.drawdown
	g.mu.Unlock()

	metrics.PortfolioDrawdown.Set(dd)
	if !trip {
		return
	}

	metrics.RiskMitigation.Set(1)
	logger.Warn("max drawdown exceeded: %.2f%% > %.2f%%, entering mitigation mode",
		dd*100, g.cfg.MaxDrawdown*100)
	if g.n != nil {
		g.n.Sendf("🚨 Просадка %.1f%% — аварийное закрытие всех позиций", dd*100)
	}
	g.mitigate(ctx)
}

// mitigate снимает все активные ордера и выравнивает все открытые
// позиции. Выхода из режима нет — только ручной ResetMitigation.
func (g *Governor) mitigate(ctx context.Context) {
	for _, o := range g.orders.ActiveOrders() {
		if err := g.orders.Cancel(ctx, o.ID); err != nil {
			logger.Error("mitigation cancel %s: %v", o.ID, err)
		}
	}
	for _, pos := range g.orders.Ledger().Snapshot() {
		if pos.Flat() {
			continue
		}
		if _, err := g.flatten(ctx, pos); err != nil {
			logger.Error("mitigation flatten %s: %v", pos.InstrumentID, err)
		}
	}
}

func (g *Governor) flatten(ctx context.Context, pos models.Position) (string, error) {
	side := models.SideSell
	if pos.Short() {
		side = models.SideBuy
	}
	return g.orders.Place(ctx, models.OrderRequest{
		InstrumentID: pos.InstrumentID,
		Side:         side,
		Quantity:     pos.AbsQty(),
		Type:         models.OrderTypeMarket,
		Product:      models.ProductIntraday,
		Tag:          "risk_flatten",
	})
}

func (g *Governor) portfolioValue() float64 {
	g.mu.Lock()
	prices := make(map[string]float64, len(g.lastPrice))
	for k, v := range g.lastPrice {
		prices[k] = v
	}
	g.mu.Unlock()

	value := g.cfg.StartingCapital
	for id, pos := range g.orders.Ledger().Snapshot() {
		value += pos.RealizedPnL
		if pos.Flat() {
			continue
		}
		px, ok := prices[id]
		if !ok {
			px = pos.AvgPrice
		}
		// нереализованный результат открытой позиции
		value += (px - pos.AvgPrice) * float64(pos.NetQty)
	}
	return value
}

func (g *Governor) Mitigation() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mitigation
}

func (g *Governor) Drawdown() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.drawdown
}

// ResetMitigation — ручной сброс рубильника. Пик начинаем считать заново.
func (g *Governor) ResetMitigation() {
	g.mu.Lock()
	g.mitigation = false
	g.peak = -1
	g.drawdown = 0
	g.mu.Unlock()
	metrics.RiskMitigation.Set(0)
	logger.Warn("mitigation mode reset manually")
}
