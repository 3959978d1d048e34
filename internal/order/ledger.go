package order

import (
	"sync"
	"time"

	"kite_trader/internal/models"
)

// Ledger — нетто-позиции по инструментам. Мутируется только филлами,
// читается риск-менеджером через снапшот.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*models.Position
}

func NewLedger() *Ledger {
	return &Ledger{positions: make(map[string]*models.Position)}
}

// ApplyFill вносит исполнение в позицию. qty всегда положительный,
// направление задаёт side.
func (l *Ledger) ApplyFill(instrumentID string, side models.Side, qty int64, price float64) {
	if qty <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[instrumentID]
	if !ok {
		p = &models.Position{InstrumentID: instrumentID}
		l.positions[instrumentID] = p
	}

	delta := qty
	if side == models.SideSell {
		delta = -qty
	}

	switch {
	case p.NetQty == 0 || sameSign(p.NetQty, delta):
		// открытие или добор: средняя взвешивается по объёму
		oldAbs := abs(p.NetQty)
		newAbs := oldAbs + qty
		p.AvgPrice = (p.AvgPrice*float64(oldAbs) + price*float64(qty)) / float64(newAbs)
		p.NetQty += delta

	default:
		// сокращение или переворот
		closed := min64(abs(p.NetQty), qty)
		if p.NetQty > 0 {
			p.RealizedPnL += (price - p.AvgPrice) * float64(closed)
		} else {
			p.RealizedPnL += (p.AvgPrice - price) * float64(closed)
		}
		p.NetQty += delta
		if p.NetQty == 0 {
			p.AvgPrice = 0
		} else if sameSign(p.NetQty, delta) {
			// перевернулись: остаток открыт по цене филла
			p.AvgPrice = price
		}
	}
	p.Updated = time.Now()
}

// Position — копия позиции по инструменту.
func (l *Ledger) Position(instrumentID string) (models.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[instrumentID]
	if !ok {
		return models.Position{}, false
	}
	return *p, true
}

// Snapshot — согласованная копия всех позиций. Нулевые позиции
// остаются в снапшоте: риску важен их RealizedPnL.
func (l *Ledger) Snapshot() map[string]models.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]models.Position, len(l.positions))
	for id, p := range l.positions {
		out[id] = *p
	}
	return out
}

func sameSign(a, b int64) bool { return (a > 0) == (b > 0) }

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
